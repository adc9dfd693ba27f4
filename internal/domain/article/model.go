package article

import (
	"errors"
	"strings"
	"time"
)

// Domain errors
var (
	ErrEmptyDigest = errors.New("article digest cannot be empty")
	ErrEmptyBody   = errors.New("article body cannot be empty")
)

// Article is a partner write-up published on the content network.
// Body is markdown.
type Article struct {
	Digest        string // original content digest the article was looked up by
	TransactionID string // content-network transaction holding the article
	Title         string
	Body          string
	FetchedAt     time.Time
}

// Validate checks if the Article has valid data.
// PRE: Article struct is populated
// POST: Returns nil if valid, error otherwise
func (a *Article) Validate() error {
	if strings.TrimSpace(a.Digest) == "" {
		return ErrEmptyDigest
	}
	if strings.TrimSpace(a.Body) == "" {
		return ErrEmptyBody
	}
	return nil
}

// IsStale reports whether the article was fetched longer than ttl before now.
// A non-positive ttl never expires.
// INVARIANT: a is not mutated
func (a Article) IsStale(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(a.FetchedAt) > ttl
}
