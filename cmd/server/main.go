// Dating coach API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/rizzcoach/internal/analysis"
	"github.com/ashureev/rizzcoach/internal/api"
	"github.com/ashureev/rizzcoach/internal/coach"
	"github.com/ashureev/rizzcoach/internal/config"
	"github.com/ashureev/rizzcoach/internal/health"
	"github.com/ashureev/rizzcoach/internal/identity"
	"github.com/ashureev/rizzcoach/internal/live"
	"github.com/ashureev/rizzcoach/internal/middleware"
	"github.com/ashureev/rizzcoach/internal/reaper"
	"github.com/ashureev/rizzcoach/internal/session"
	"github.com/ashureev/rizzcoach/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return err
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	client, err := analysis.Select(ctx, analysis.Options{
		APIKey:   cfg.Analysis.APIKey,
		Model:    cfg.Analysis.Model,
		ProxyURL: cfg.Analysis.ProxyURL,
		Timeout:  cfg.Analysis.Timeout,
		Logger:   logger,
	})
	if err != nil {
		if errors.Is(err, analysis.ErrConfiguration) {
			slog.Error("Analysis is not configured; set GEMINI_API_KEY or ANALYSIS_PROXY_URL")
		}
		return err
	}

	convLogger, err := coach.NewConversationLogger(coach.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := convLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	healthSrv := health.New()
	registry := session.NewRegistry()
	connMgr := live.NewConnManager()
	orch := coach.New(client,
		coach.WithConversationLogger(convLogger),
		coach.WithLogger(logger),
		coach.WithFatalHook(healthSrv.ReportFatal),
	)

	limiter := api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Stop()

	// The analyze endpoints call the collaborator directly; a proxied
	// instance has no credential to serve them with.
	var serverClient analysis.Client
	if client.Mode() == analysis.ModeDirect {
		serverClient = client
	}

	sessionHandler := api.NewSessionHandler(registry, orch, limiter, cfg.MaxUploadBytes, cfg.Analysis.Timeout)
	analyzeHandler := api.NewAnalyzeHandler(serverClient, limiter, cfg.MaxUploadBytes, cfg.Analysis.Timeout)
	healthHandler := api.NewHealthHandler(repo, cfg, string(client.Mode()), healthSrv.Serving)
	liveHandler := live.NewHandler(registry, connMgr, cfg.FrontendURL, cfg.IsDevelopment())

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(middleware.Origins(cfg.FrontendURL)))

	healthHandler.RegisterRoutes(r)
	analyzeHandler.RegisterRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		sessionHandler.RegisterRoutes(r)
		r.Get("/ws/sessions", liveHandler.ServeHTTP)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket streams stay open
		IdleTimeout:  120 * time.Second,
	}

	var healthLis net.Listener
	if cfg.GRPCHealthAddr != "" {
		healthLis, err = net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return err
		}
	}

	reaper.Start(ctx, repo, cfg.SessionIdleTTL, cfg.ReaperInterval, func(userID string) {
		registry.Drop(userID)
		connMgr.CloseUser(userID)
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if healthLis != nil {
		g.Go(func() error {
			return healthSrv.Serve(gctx, healthLis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		sessionHandler.Wait()
		return err
	})

	return g.Wait()
}
