package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"onchainsummer/internal/adapters/content"
	web "onchainsummer/internal/adapters/http"
	"onchainsummer/internal/adapters/http/perf"
	"onchainsummer/internal/adapters/storage"
	articleStore "onchainsummer/internal/adapters/storage/article"
	scheduleLoader "onchainsummer/internal/adapters/storage/schedule"
	"onchainsummer/internal/application/orchestrators"
	"onchainsummer/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	// Schedule errors (duplicate slug, bad date) are fatal: a bad calendar must never serve.
	sched, err := scheduleLoader.Load(cfg.ScheduleFile)
	if err != nil {
		log.Fatalf("failed to load schedule: %v", err)
	}
	log.Printf("Schedule loaded: %d partners (tz=%s)", sched.Len(), sched.Location())

	db, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := storage.MigrateDB(context.Background(), db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Performance instrumentation: wrap DB with timing, create collector
	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, collector, cfg.SlowQuery())

	articles := articleStore.NewSQLiteStore(timedDB)
	fetcher := content.NewCachedFetcher(
		content.NewArweaveClient(cfg.ContentGateway, cfg.ContentTimeout()),
		articles,
		cfg.ArticleCacheTTL,
	)

	evictStopCh := make(chan struct{})
	orchestrators.StartArticleEvictor(orchestrators.EvictArticlesDeps{ArticleStore: articles}, time.Hour, cfg.ArticleMaxAge, evictStopCh)
	defer close(evictStopCh)

	csrfKey, _, err := cfg.CSRFKey()
	if err != nil {
		log.Fatalf("invalid CSRF key: %v", err)
	}

	mux := web.NewMux(cfg.StaticDir, &web.Deps{
		Schedule:       sched,
		Articles:       fetcher,
		SiteURL:        cfg.SiteURL,
		Version:        version,
		AllowSpoofDate: cfg.AllowSpoofDate,
		Production:     cfg.IsProduction(),
		CSRFKey:        csrfKey,
		TrustedOrigins: trustedOrigins(cfg),
		RateLimit:      cfg.RateLimit,
		SlowRequest:    cfg.SlowRequest(),
	}, collector)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Onchain Summer %s starting on %s (env=%s, schema=%d, spoofDate=%t)",
			version, cfg.Addr, cfg.Env, storage.LatestSchemaVersion(), cfg.AllowSpoofDate)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
}

// trustedOrigins lists the origins CSRF accepts on unsafe-method requests.
func trustedOrigins(cfg config.Config) []string {
	origins := []string{strings.TrimPrefix(strings.TrimPrefix(cfg.SiteURL, "https://"), "http://")}
	if !cfg.IsProduction() {
		origins = append(origins, "localhost"+cfg.Addr, "127.0.0.1"+cfg.Addr)
	}
	return origins
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
