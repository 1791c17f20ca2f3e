package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	httpadapter "sponsorhub/internal/adapters/http"
	pg "sponsorhub/internal/adapters/postgres"
	"sponsorhub/internal/config"
	"sponsorhub/internal/services/importer"
	"sponsorhub/internal/services/resolver"
	"sponsorhub/internal/services/unmapped"
	"sponsorhub/internal/workers/retryrunner"
	"sponsorhub/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("warning: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	slogger := logger.New(cfg.LogLevel, cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.ToContext(ctx, slogger)

	if err := pg.Migrate(ctx, cfg.DatabaseURL); err != nil {
		log.Fatalf("migrate error: %v", err)
	}
	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer db.Close()

	clock := clockwork.NewRealClock()
	res := resolver.New(clock)
	queue := unmapped.New(db, res, clock)
	svc := importer.New(db, queue, res, clock)
	queue.AttachImporter(svc)

	srv := httpadapter.New(svc, queue, db, clock)
	r := chi.NewRouter()
	// every request carries the logger in its context
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(logger.ToContext(req.Context(), slogger)))
		})
	})
	r.Mount("/", srv.Routes())

	if cfg.RetryInterval > 0 {
		go retryrunner.Run(ctx, queue, cfg.RetryInterval, slogger)
		slogger.Info("unmapped retry worker started", "interval", cfg.RetryInterval)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, r) }()
	slogger.Info("listening", "addr", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slogger.Info("shutting down", "signal", sig.String())
		cancel()
		time.Sleep(300 * time.Millisecond)
	case err := <-errCh:
		log.Fatal(fmt.Errorf("server error: %w", err))
	}
}
