package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrInvalidMaxAge is returned when eviction is asked to keep nothing.
var ErrInvalidMaxAge = errors.New("article max age must be positive")

// ArticleEvictionStore defines the store interface needed by this orchestrator.
type ArticleEvictionStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// EvictArticlesDeps holds dependencies for the orchestrator.
type EvictArticlesDeps struct {
	ArticleStore ArticleEvictionStore
}

// ExecuteEvictArticles removes cached articles fetched more than maxAge before now.
// PRE: maxAge > 0
// POST: Returns the number of evicted articles
func ExecuteEvictArticles(ctx context.Context, deps EvictArticlesDeps, now time.Time, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, ErrInvalidMaxAge
	}
	n, err := deps.ArticleStore.DeleteOlderThan(ctx, now.Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("articles_evicted", "count", n, "max_age", maxAge.String())
	}
	return n, nil
}

// StartArticleEvictor periodically evicts cached articles older than maxAge.
// PRE: interval > 0; stopCh is provided to signal shutdown
// POST: Worker runs until stopCh is closed
func StartArticleEvictor(deps EvictArticlesDeps, interval, maxAge time.Duration, stopCh <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if _, err := ExecuteEvictArticles(ctx, deps, time.Now(), maxAge); err != nil {
					slog.Error("article_eviction_failed", "error", err.Error())
				}
				cancel()
			case <-stopCh:
				slog.Info("article_evictor_stopped")
				return
			}
		}
	}()
}
