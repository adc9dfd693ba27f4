package content

import (
	"context"

	"onchainsummer/internal/domain/article"
)

// Fetcher looks up a partner article by its original content digest.
// ok is false, with a nil error, when the network has no article for digest.
type Fetcher interface {
	Fetch(ctx context.Context, digest string) (a article.Article, ok bool, err error)
}
