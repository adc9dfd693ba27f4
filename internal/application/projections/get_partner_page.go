package projections

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"onchainsummer/internal/domain/article"
	"onchainsummer/internal/domain/schedule"
)

// DefaultSiteURL is the canonical origin used for share links.
const DefaultSiteURL = "https://onchainsummer.xyz"

// PartnerPageArticleFetcher defines the content lookup needed by this projection.
// ok is false when the content network has no article for digest.
type PartnerPageArticleFetcher interface {
	Fetch(ctx context.Context, digest string) (a article.Article, ok bool, err error)
}

// GetPartnerPageDeps holds dependencies for the projection.
type GetPartnerPageDeps struct {
	Schedule       *schedule.Schedule
	ArticleFetcher PartnerPageArticleFetcher // optional
	SiteURL        string                    // defaults to DefaultSiteURL
}

// GetPartnerPageQuery carries the request-scoped inputs.
type GetPartnerPageQuery struct {
	Slug            string
	FeaturedAddress string
	Now             time.Time
}

// PartnerPage is everything the partner page and its share metadata render from.
type PartnerPage struct {
	Status         ResolutionStatus
	RedirectTo     string
	Today          schedule.DateKey
	Partner        schedule.Entry
	Featured       *schedule.Drop
	Remaining      []schedule.Drop
	StaticHeadline bool // a drop was requested explicitly
	Article        *article.Article
	ShareURL       string
}

// QueryGetPartnerPage resolves the partner, selects its featured drop and
// enriches the page with the partner article when one can be fetched.
// Article lookup is best-effort: any fetch failure yields a page without one.
// PRE: deps.Schedule is non-nil
// POST: Status is always set; Partner and drops only when Status is ResolutionAvailable
func QueryGetPartnerPage(ctx context.Context, q GetPartnerPageQuery, deps GetPartnerPageDeps) PartnerPage {
	res := ResolvePartner(deps.Schedule, q.Slug, q.Now)
	page := PartnerPage{Status: res.Status, RedirectTo: res.RedirectTo, Today: res.Today}
	if res.Status != ResolutionAvailable {
		return page
	}

	sel := SelectDrops(res.Entry.Drops, q.FeaturedAddress)
	page.Partner = res.Entry
	page.Featured = sel.Featured
	page.Remaining = sel.Remaining
	page.StaticHeadline = q.FeaturedAddress != ""
	page.ShareURL = shareURL(deps.SiteURL, res.Entry.Slug, q.FeaturedAddress)
	page.Article = fetchArticle(ctx, deps.ArticleFetcher, res.Entry)
	return page
}

func fetchArticle(ctx context.Context, fetcher PartnerPageArticleFetcher, entry schedule.Entry) *article.Article {
	if fetcher == nil || entry.ContentDigest == "" {
		return nil
	}
	a, ok, err := fetcher.Fetch(ctx, entry.ContentDigest)
	if err != nil {
		slog.Warn("article_fetch_failed", "slug", entry.Slug, "digest", entry.ContentDigest, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &a
}

func shareURL(site, slug, drop string) string {
	if site == "" {
		site = DefaultSiteURL
	}
	u := strings.TrimRight(site, "/") + "/partner/" + url.PathEscape(slug)
	if drop != "" {
		u += "?drop=" + url.QueryEscape(drop)
	}
	return u
}
