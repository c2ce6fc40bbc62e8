package main

import (
	"log"

	"rackyard/config"
	"rackyard/server"

	"github.com/joho/godotenv"
)

func main() {
	// .env удобен в деве; в проде переменные приходят из окружения
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app := &server.App{}
	app.Initialize(cfg)
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
