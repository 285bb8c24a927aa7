package main

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lineage/internal/app"
	"lineage/internal/cache"
	"lineage/internal/config"
	"lineage/internal/parents"
	"lineage/internal/search"
	"lineage/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	var migrations fs.FS = store.Migrations()
	if strings.TrimSpace(cfg.MigrationsDir) != "" {
		migrations = os.DirFS(cfg.MigrationsDir)
	}
	if err := store.ApplyMigrations(ctx, db, migrations); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	nodeStore := store.NewPostgresStore(db, cfg.DataSource)
	chains := search.NewPgChains(db)

	var searchService *search.Service
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, cfg.MeiliIndex)
		defer meiliClient.Close()
		searchService = search.NewService(chains, meiliClient, cfg.DocumentPrefix)
		meiliClient.OnRecover(func() {
			reindexCtx, cancel := context.WithTimeout(context.Background(), cfg.PropagateTimeout)
			defer cancel()
			if err := searchService.ReindexAll(reindexCtx); err != nil {
				log.Printf("search: reindex after recovery failed: %v", err)
			}
		})
	} else {
		log.Printf("MEILI_URL not set, chains are only recorded in PostgreSQL")
		searchService = search.NewService(chains, nil, cfg.DocumentPrefix)
	}

	// Shared memoization across runs with the same cache key
	var sharedCache parents.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for shared chain memoization")
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisCache.Close()
		sharedCache = redisCache
	} else {
		log.Printf("Using in-process memory for shared chain memoization")
	}

	propagator := parents.NewPropagator(nodeStore, nodeStore, searchService, sharedCache, parents.Options{
		ExpandConcurrency: cfg.ExpandConcurrency,
		WriteConcurrency:  cfg.WriteConcurrency,
	})
	service := app.New(cfg, nodeStore, propagator, chains)

	// Cancelled on shutdown so in-flight runs stop and report partial results
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	httpServer := app.NewHTTPServer(service, cfg.SyncToken)
	server := httpServer.Server(cfg.Addr, baseCtx, cfg.PropagateTimeout+30*time.Second)

	go func() {
		log.Printf("Lineage worker listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancelBase()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
