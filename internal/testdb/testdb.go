// Package testdb поднимает in-memory sqlite с полной схемой для тестов.
package testdb

import (
	"fmt"
	"strings"
	"testing"

	"rackyard/internal/db"
	"rackyard/internal/models"

	"gorm.io/gorm"
)

// Open — отдельная именованная in-memory база на каждый тест, чтобы
// параллельные тесты не делили состояние.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	d, err := db.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.AutoMigrate(
		&models.Datacenter{},
		&models.Rack{},
		&models.ITModel{},
		&models.User{},
		&models.Asset{},
		&models.NetworkPort{},
		&models.PowerPort{},
		&models.PDUPort{},
		&models.ChangePlan{},
		&models.AssetCP{},
		&models.NetworkPortCP{},
		&models.PowerPortCP{},
		&models.PDUPortCP{},
		&models.DecommissionedAsset{},
		&models.Log{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	if err := db.MigrateAssetUniqueIndexes(d); err != nil {
		t.Fatalf("index migration: %v", err)
	}
	return d
}
