package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"campusconnect/api/internal/app"
	"campusconnect/api/internal/auth"
	"campusconnect/api/internal/config"
	"campusconnect/api/internal/ordering"
	"campusconnect/api/internal/search"
	"campusconnect/api/internal/store"
)

func main() {
	cfg := config.Load()
	if err := auth.RequireSecret(cfg.WebhookSecret); err != nil {
		log.Fatalf("WEBHOOK_SECRET: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if strings.TrimSpace(cfg.MigrationsDir) != "" {
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
	}

	notes := store.NewPostgresStore(db)

	var guard search.VersionGuard
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis to order change events")
		versions, err := ordering.NewRedisStore(cfg.RedisURL, cfg.EventVersionTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer versions.Close()
		guard = versions
	}

	pgfts := search.NewPgFTS(db)
	var (
		engine   *search.Meili
		syncer   *search.Syncer
		searcher search.Searcher = pgfts
		service  *app.Service
	)
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		engine = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, cfg.MeiliIndex, search.DefaultIndexSettings(cfg.MeiliMaxTotalHits))
		defer engine.Close()
		syncer = search.NewSyncer(engine, notes, notes, guard, cfg.SyncPageSize)
		searcher = search.NewService(search.NewGateway(engine), pgfts)
		service = app.New(cfg, notes, engine, syncer, searcher)
	} else {
		log.Printf("MEILI_URL not set, serving searches from PostgreSQL only")
		syncer = search.NewSyncer(disabledIndex{}, notes, notes, guard, cfg.SyncPageSize)
		service = app.New(cfg, notes, nil, syncer, searcher)
	}

	if engine != nil && cfg.SyncInterval > 0 {
		go runPeriodicSync(ctx, syncer, cfg.SyncInterval)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("CampusConnect search API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func runPeriodicSync(ctx context.Context, syncer *search.Syncer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := syncer.SyncAll(ctx)
			if err != nil {
				log.Printf("sync: periodic full sync: %v", err)
				continue
			}
			log.Printf("sync: periodic full sync pushed %d notes", result.Synced)
		}
	}
}

// disabledIndex rejects writes when no search engine is configured, so
// webhook deliveries fail loudly instead of being dropped.
type disabledIndex struct{}

func (disabledIndex) Upsert(context.Context, []search.Document) (int64, error) {
	return 0, search.ErrUnavailable
}

func (disabledIndex) Delete(context.Context, string) (int64, error) {
	return 0, search.ErrUnavailable
}

func (disabledIndex) Query(context.Context, search.EngineQuery) (search.EngineResult, error) {
	return search.EngineResult{}, search.ErrUnavailable
}

func (disabledIndex) Healthy() bool { return false }
