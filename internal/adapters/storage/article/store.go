package article

import (
	"context"
	"time"

	domain "onchainsummer/internal/domain/article"
)

// Store caches articles fetched from the content network, keyed by digest.
type Store interface {
	Save(ctx context.Context, a domain.Article) error
	GetByDigest(ctx context.Context, digest string) (domain.Article, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
