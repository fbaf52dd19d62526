package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/tunevest/share-engine/internal/catalog"
	"github.com/tunevest/share-engine/internal/config"
	"github.com/tunevest/share-engine/internal/ledger"
	"github.com/tunevest/share-engine/internal/market"
	"github.com/tunevest/share-engine/internal/metrics"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Log))

	var cleanup []func()
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Catalog store ---
	var cat catalog.Store
	if cfg.Storage.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Storage.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		cat = catalog.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured. Only catalog
		// records are cached; ledger state is always read live.
		if cfg.Storage.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.Storage.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			cat = catalog.NewCachedStore(cat, rdb, cfg.CacheTTL())
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL())
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory catalog (data will not persist)")
		cat = catalog.NewMemoryStore()
	}

	// --- Share ledger ---
	var led ledger.Ledger
	if cfg.Ledger.BaseURL != "" {
		led = ledger.NewClient(cfg.Ledger.BaseURL)
		slog.Info("using ledger gateway", "url", cfg.Ledger.BaseURL)
	} else {
		slog.Warn("LEDGER_URL not set, using in-memory ledger (dev only)")
		led = ledger.NewMemoryLedger()
	}

	// --- WebSocket hub ---
	wsHub := market.NewWSHub()
	go wsHub.Run()

	// --- Market service ---
	svc := market.NewService(cat, led, wsHub, cfg.Ledger.Spender).
		WithMarketParams(
			decimal.NewFromFloat(cfg.Market.FeeMultiplier),
			decimal.NewFromFloat(cfg.Market.JackpotRatio),
		)

	tickerCtx, stopTicker := context.WithCancel(context.Background())
	defer stopTicker()
	go svc.RunRoundTicker(tickerCtx, cfg.RoundTick())

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"share-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for trade and round-countdown broadcasts.
		r.Get("/ws", wsHub.HandleWS)

		// Track catalog and per-track market state.
		r.Get("/tracks", svc.ListTracks)
		r.Get("/tracks/{trackID}/market", svc.GetMarket)
		r.Get("/tracks/{trackID}/history", svc.GetHistory)
		r.Get("/tracks/{trackID}/projections", svc.GetProjections)
		r.Get("/tracks/{trackID}/quote", svc.GetQuote)
		r.Get("/tracks/{trackID}/evaluate", svc.Evaluate)

		// Ledger writes.
		r.Post("/trade", svc.ExecuteTrade)
		r.Post("/claim", svc.Claim)
		r.Post("/approve", svc.Approve)
		r.Post("/faucet", svc.Faucet)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("share-engine listening", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down share-engine...")
	stopTicker()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("share-engine stopped")
}

// newLogger builds the process logger from config. JSON is the production
// default; text is friendlier for local runs.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
