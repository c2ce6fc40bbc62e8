package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rackyard/config"
	"rackyard/internal/audit"
	"rackyard/internal/cabling"
	"rackyard/internal/changeplan"
	"rackyard/internal/db"
	"rackyard/internal/health"
	"rackyard/internal/inventory"
	"rackyard/internal/logs"
	"rackyard/internal/middleware"
	"rackyard/internal/models"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type App struct {
	cfg        *config.Config
	Router     *mux.Router
	httpServer *http.Server

	db     *gorm.DB
	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) {
	a.cfg = cfg

	// 1) Логи
	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	// 2) БД
	d, err := db.Open(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	a.db = d

	if err := a.db.AutoMigrate(
		// площадки и каталог
		&models.Datacenter{},
		&models.Rack{},
		&models.ITModel{},
		&models.User{},

		// живой инвентарь
		&models.Asset{},
		&models.NetworkPort{},
		&models.PowerPort{},
		&models.PDUPort{},

		// change plans и тени
		&models.ChangePlan{},
		&models.AssetCP{},
		&models.NetworkPortCP{},
		&models.PowerPortCP{},
		&models.PDUPortCP{},

		// архив и аудит
		&models.DecommissionedAsset{},
		&models.Log{},
	); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}
	if err := db.MigrateAssetUniqueIndexes(a.db); err != nil {
		logs.Logger.Warnf("asset unique index migration: %v", err)
	}

	// 3) Роутер + middleware
	a.Router = mux.NewRouter()
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(middleware.LoggerMW)

	a.RegisterWebUI("/ui/")
	health.RegisterRoutesWithDB(a.Router, a.db)

	// 4) Сервисы. Детектор конфликтов и резолвер теней замыкают цикл
	// inventory <-> changeplan через интерфейсы.
	inv := inventory.NewRepo(a.db)
	cab := cabling.NewManager(a.db)
	rec := audit.NewRecorder(a.db)
	plans := changeplan.NewService(a.db, inv, cab, rec)
	inv.Conflicts = changeplan.NewDetector()
	cab.Resolver = plans

	// 5) HTTP. Plan-скоуп маршрутов /assets (query change_plan) должен
	// встать раньше живых маршрутов инвентаря.
	changeplan.NewHTTP(plans).RegisterRoutes(a.Router)
	cabling.NewHTTP(cab).RegisterRoutes(a.Router)
	inventory.NewHTTP(inv).RegisterRoutes(a.Router)
	audit.NewHTTP(rec).RegisterRoutes(a.Router)

	a.Router.Walk(func(rt *mux.Route, r *mux.Router, ancestors []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		log.Printf("route: %-6v %s", methods, path)
		return nil
	})
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return ErrNotInitialized
	}
	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigs; a.cancel() }()

	a.httpServer = &http.Server{
		Addr:         bind,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-a.ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.httpServer.Shutdown(ctx)
	return nil
}

var ErrNotInitialized = &initError{"server not initialized (call Initialize(cfg) first)"}

type initError struct{ s string }

func (e *initError) Error() string { return e.s }
