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
	"sheetnotes/internal/envelope"
	"sheetnotes/internal/handler"
	"sheetnotes/internal/identity"
	"sheetnotes/internal/logging"
	"sheetnotes/internal/middleware"
	"sheetnotes/internal/notestore"
	"sheetnotes/internal/service"
	"sheetnotes/internal/websocket"

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

	if err := cfg.Validate(); err != nil {
		logger.Error(ctx, "invalid configuration", "error", err)
		os.Exit(1)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Error(ctx, "invalid timezone", "error", err)
		os.Exit(1)
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	wsManager := websocket.NewManager(
		cfg.WebSocket.MaxConnPerUser,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
		logger.With("component", "websocket"),
	)
	go wsManager.Run(runCtx)

	store := notestore.New(cfg.Storage.Endpoint, cfg.Storage.Timeout, logger.With("component", "notestore"))
	verifier, err := identity.NewGoogleVerifier(runCtx, cfg.Auth.GoogleClientID,
		identity.WithLogger(logger.With("component", "identity")))
	if err != nil {
		logger.Error(ctx, "failed to initialize token verifier", "error", err)
		os.Exit(1)
	}

	authService := service.NewAuthService(verifier, cfg.Auth.AllowedUsers, cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration)
	boardService := service.NewBoardService(store, service.BoardConfig{
		Envelope: envelope.Params{
			Secret:     cfg.Crypto.Secret,
			Salt:       cfg.Crypto.Salt,
			Iterations: cfg.Crypto.Iterations,
		},
		Location:        loc,
		OverdueInterval: cfg.Board.OverdueInterval,
		PushConcurrency: cfg.Board.PushConcurrency,
	}, wsManager, logger.With("component", "board"))

	authHandler := handler.NewAuthHandler(authService)
	noteHandler := handler.NewNoteHandler(boardService, store, logger)
	wsHandler := handler.NewWebSocketHandler(wsManager, authService,
		cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize, logger)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/verify", authHandler.Verify).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/logout", authHandler.Logout).Methods("POST", "OPTIONS")
	api.HandleFunc("/test-storage", noteHandler.TestStorage).Methods("GET", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(authService))

	protected.HandleFunc("/notes", noteHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes", noteHandler.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notes/raw", noteHandler.ListRaw).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/{id}", noteHandler.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/notes/{id}", noteHandler.Delete).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/notes/{id}/toggle", noteHandler.Toggle).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notes/{id}/move", noteHandler.Move).Methods("POST", "OPTIONS")
	protected.HandleFunc("/update-note", noteHandler.PostRaw).Methods("POST", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)

	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info(ctx, "starting sheetnotes server", "addr", addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "server forced to shutdown", "error", err)
	}
	stopRun()

	logger.Info(ctx, "server stopped gracefully")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"sheetnotes"}`))
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"Sheetnotes API","version":"1.0.0","endpoints":{"/api/auth/verify":"POST","/api/auth/logout":"POST","/api/notes":"GET, POST (protected)","/ws":"GET (token)"}}`))
}
