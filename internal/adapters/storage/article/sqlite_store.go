package article

import (
	"context"
	"fmt"
	"time"

	"onchainsummer/internal/adapters/storage"
	domain "onchainsummer/internal/domain/article"
)

// fetchedAtLayout is fixed-width so stored timestamps sort as strings.
const fetchedAtLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new SQLiteStore.
// PRE: db is a valid, open database connection with migrations applied
// POST: store is ready for use
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save inserts or refreshes a cached article.
// PRE: a is a valid Article (Validate() returns nil)
// POST: article is persisted, replacing any previous copy for the digest
func (s *SQLiteStore) Save(ctx context.Context, a domain.Article) error {
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO article_cache (digest, transaction_id, title, body, fetched_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(digest) DO UPDATE SET
		   transaction_id=excluded.transaction_id, title=excluded.title,
		   body=excluded.body, fetched_at=excluded.fetched_at`,
		a.Digest, a.TransactionID, a.Title, a.Body, a.FetchedAt.UTC().Format(fetchedAtLayout),
	)
	if err != nil {
		return fmt.Errorf("save article %s: %w", a.Digest, err)
	}
	return nil
}

// GetByDigest retrieves a cached article.
// PRE: digest is non-empty
// POST: returns the article, or sql.ErrNoRows when not cached
func (s *SQLiteStore) GetByDigest(ctx context.Context, digest string) (domain.Article, error) {
	var a domain.Article
	var fetchedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT digest, transaction_id, title, body, fetched_at
		 FROM article_cache WHERE digest = ?`, digest,
	).Scan(&a.Digest, &a.TransactionID, &a.Title, &a.Body, &fetchedAt)
	if err != nil {
		return a, err
	}
	a.FetchedAt, err = time.Parse(fetchedAtLayout, fetchedAt)
	if err != nil {
		return a, fmt.Errorf("article %s: bad fetched_at %q: %w", digest, fetchedAt, err)
	}
	return a, nil
}

// DeleteOlderThan evicts articles fetched before cutoff.
// POST: returns the number of rows removed
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM article_cache WHERE fetched_at < ?`, cutoff.UTC().Format(fetchedAtLayout))
	if err != nil {
		return 0, fmt.Errorf("evict articles: %w", err)
	}
	return res.RowsAffected()
}
