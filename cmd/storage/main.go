package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sheetnotes/internal/config"
	"sheetnotes/internal/handler"
	"sheetnotes/internal/logging"
	"sheetnotes/internal/middleware"
	"sheetnotes/internal/repository"
	"sheetnotes/internal/service"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error(ctx, "invalid timezone", "error", err)
		os.Exit(1)
	}

	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
	)

	client, err := kivik.New("couch", couchURL)
	if err != nil {
		logger.Error(ctx, "failed to connect to CouchDB", "error", err)
		os.Exit(1)
	}

	exists, err := client.DBExists(ctx, cfg.Database.Name)
	if err != nil {
		logger.Error(ctx, "failed to check database existence", "error", err)
		os.Exit(1)
	}

	if !exists {
		if err := client.CreateDB(ctx, cfg.Database.Name); err != nil {
			logger.Error(ctx, "failed to create database", "error", err)
			os.Exit(1)
		}
		logger.Info(ctx, "created database", "name", cfg.Database.Name)
	}

	noteRepo := repository.NewNoteRepository(client, cfg.Database.Name)
	userRepo := repository.NewUserRepository(client, cfg.Database.Name)

	storageService := service.NewStorageService(noteRepo, userRepo, loc, logger.With("component", "storage"))
	storageHandler := handler.NewStorageHandler(storageService, logger)

	r := mux.NewRouter()
	r.Use(middleware.LoggerMiddleware(logger))

	r.HandleFunc("/", storageHandler.List).Methods("GET")
	r.HandleFunc("/", storageHandler.Post).Methods("POST")
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"sheetnotes-storage"}`))
	}).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.StoragePort)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info(ctx, "starting storage service", "addr", addr, "couchdb", cfg.Database.Host+":"+cfg.Database.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "storage service failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down storage service")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "storage service forced to shutdown", "error", err)
	}

	if err := client.Close(); err != nil {
		logger.Error(ctx, "failed to close CouchDB client", "error", err)
	}
}
