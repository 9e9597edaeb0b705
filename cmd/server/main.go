package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"activitychat/internal/config"
	"activitychat/internal/domain"
	"activitychat/internal/httpserver"
	"activitychat/internal/realtime"
	"activitychat/internal/security"
	"activitychat/internal/store/postgres"
	"activitychat/internal/store/sqlite"
)

func openStore(cfg *config.Config) (*sql.DB, domain.Repositories, error) {
	if cfg.DBDriver == config.DriverPostgres {
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, domain.Repositories{}, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, domain.Repositories{}, err
		}
		return db, postgres.NewRepositories(db), nil
	}

	db, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, domain.Repositories{}, err
	}
	if err := sqlite.Migrate(db); err != nil {
		db.Close()
		return nil, domain.Repositories{}, err
	}
	return db, sqlite.NewRepositories(db), nil
}

// @title           activitychat API
// @version         1.0
// @description     Activities, group chats, thread list and feed.

// @host            localhost:8000
// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	flag.Parse()
	defer glog.Flush()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		glog.Fatalf("failed to load config: %v", err)
	}

	// Initialize database
	db, repos, err := openStore(cfg)
	if err != nil {
		glog.Fatalf("failed to open %s database: %v", cfg.DBDriver, err)
	}
	defer db.Close()

	// Security components
	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(0)
	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyEncryptKeys)
	if err != nil {
		glog.Fatalf("failed to initialize encryptor: %v", err)
	}

	broker := realtime.NewBroker()

	// Build HTTP router
	router := httpserver.NewRouter(cfg, repos, broker, tokenSvc, passwordHasher, encryptor)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		glog.Infof("Starting %s on %s (%s store)", cfg.AppName, cfg.HTTPAddr(), cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	glog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown does not track hijacked realtime sockets; end their feeds here.
	broker.Close()
	if err := srv.Shutdown(ctx); err != nil {
		glog.Errorf("graceful shutdown failed: %v", err)
	}
}
