package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/internal/auth"
	"chat-relay/internal/config"
	"chat-relay/internal/database"
	"chat-relay/internal/handlers"
	"chat-relay/internal/services"
	"chat-relay/internal/websocket"
	"chat-relay/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		logger.Fatal("server exited", "error", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Setup(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("connected to database", "driver", cfg.Database.Driver)

	authService := auth.NewService(cfg.JWT)

	registry := websocket.NewRegistry()
	router := websocket.NewRouter(registry, log)
	dispatcher := websocket.NewDispatcher(db, router, cfg.Relay.Location(), log)
	manager := websocket.NewManager(registry, router, dispatcher, websocket.Options{
		SendBufferSize:    cfg.Relay.SendBufferSize,
		MaxMessageSize:    cfg.Relay.MaxMessageSize,
		RateLimitBurst:    cfg.Relay.RateLimitBurst,
		RateLimitInterval: cfg.Relay.RateLimitInterval,
	}, log)

	prometheus.MustRegister(websocket.RegistryCollector(registry))

	groupService := services.NewGroupService(db, registry, cfg.Relay.HistoryLimit)

	groupHandlers := handlers.NewGroupHandlers(groupService, cfg.Relay.Location())
	origins := handlers.NewOriginPolicy(cfg.Server.AllowedOrigins)
	wsHandlers := handlers.NewWebSocketHandlers(authService, manager, origins)

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, groupHandlers, wsHandlers)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      origins.CORS(loggingMiddleware(log, mux)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server started", "addr", cfg.Server.Port)
		printEndpoints(log, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by the server, so the
	// relay closes them itself.
	manager.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is required for WebSocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func printEndpoints(log *slog.Logger, addr string) {
	log.Info("endpoints",
		"websocket", "ws://localhost"+addr+"/ws/{group}",
		"group_page", "GET /groups/{group}",
		"active", "GET /groups/{group}/active",
		"metrics", "GET /metrics",
		"health", "GET /healthz",
	)
}
