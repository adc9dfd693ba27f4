package content

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"onchainsummer/internal/domain/article"
)

// ArticleCache is the storage the cached fetcher reads through.
type ArticleCache interface {
	Save(ctx context.Context, a article.Article) error
	GetByDigest(ctx context.Context, digest string) (article.Article, error)
}

// CachedFetcher serves articles from cache and refreshes them from upstream
// once they are older than the TTL. Concurrent misses for one digest share a
// single upstream call. If a refresh fails, the stale copy is served.
type CachedFetcher struct {
	upstream Fetcher
	cache    ArticleCache
	ttl      time.Duration
	now      func() time.Time
	group    singleflight.Group
}

var _ Fetcher = (*CachedFetcher)(nil)

// NewCachedFetcher wraps upstream with cache. A non-positive ttl never refreshes.
func NewCachedFetcher(upstream Fetcher, cache ArticleCache, ttl time.Duration) *CachedFetcher {
	return &CachedFetcher{upstream: upstream, cache: cache, ttl: ttl, now: time.Now}
}

type fetchResult struct {
	article article.Article
	ok      bool
}

// Fetch implements Fetcher.
// PRE: digest is non-empty
// POST: cache errors never fail the call; upstream errors are returned only when no cached copy exists
func (f *CachedFetcher) Fetch(ctx context.Context, digest string) (article.Article, bool, error) {
	cached, err := f.cache.GetByDigest(ctx, digest)
	hasCached := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		slog.Warn("article_cache_read_failed", "digest", digest, "error", err)
	}
	if hasCached && !cached.IsStale(f.now(), f.ttl) {
		return cached, true, nil
	}

	// the shared call outlives any one caller; the upstream client bounds it with its own timeout
	sharedCtx := context.WithoutCancel(ctx)
	ch := f.group.DoChan(digest, func() (any, error) {
		a, ok, err := f.upstream.Fetch(sharedCtx, digest)
		if err != nil {
			return fetchResult{}, err
		}
		if ok {
			if saveErr := f.cache.Save(sharedCtx, a); saveErr != nil {
				slog.Warn("article_cache_write_failed", "digest", digest, "error", saveErr)
			}
		}
		return fetchResult{article: a, ok: ok}, nil
	})

	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		if hasCached {
			return cached, true, nil
		}
		return article.Article{}, false, ctx.Err()
	}
	if r.Shared {
		slog.Debug("article_fetch_shared", "digest", digest)
	}
	if r.Err != nil {
		if hasCached {
			slog.Warn("article_refresh_failed_serving_stale", "digest", digest, "error", r.Err)
			return cached, true, nil
		}
		return article.Article{}, false, r.Err
	}

	res := r.Val.(fetchResult)
	if !res.ok && hasCached {
		return cached, true, nil
	}
	return res.article, res.ok, nil
}
