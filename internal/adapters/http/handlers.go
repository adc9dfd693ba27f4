package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/csrf"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"onchainsummer/internal/adapters/http/perf"
	"onchainsummer/internal/application/listutil"
	"onchainsummer/internal/application/projections"
	"onchainsummer/internal/domain/schedule"
)

// timeNow is a variable for testability.
var timeNow = time.Now

//go:embed templates/*.html
var templateFS embed.FS

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in markdown input is escaped (WithUnsafe is NOT set), preventing XSS.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// internalError logs the real error and returns a generic message to the client.
// This prevents leaking internal details per OWASP A05.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func isHTMLRequest(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") || strings.Contains(accept, "application/xhtml+xml")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json_encode_failed", "error", err)
	}
}

func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// renderTemplate executes templateName inside layout.html.
// The page is buffered so a failing template never leaves a half-written 200.
func renderTemplate(w http.ResponseWriter, r *http.Request, templateName string, status int, data any) {
	funcMap := template.FuncMap{
		"csrfToken":      func() string { return csrf.Token(r) },
		"renderMarkdown": renderMarkdown,
	}

	tpl, err := template.New("layout.html").Funcs(funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+templateName)
	if err != nil {
		internalError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// requestNow returns the instant the request is evaluated at.
// When spoof dates are enabled the first spoofDate value overrides the clock.
func requestNow(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("spoofDate")
	if raw == "" || !deps.AllowSpoofDate {
		return timeNow(), nil
	}
	return schedule.ParseSpoofDate(raw, deps.Schedule.Location())
}

// --- JSON shapes ---

type dropResponse struct {
	Address   string `json:"address"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	Creator   string `json:"creator,omitempty"`
	Type      string `json:"type,omitempty"`
	Price     string `json:"price,omitempty"`
	StartDate int64  `json:"startDate"`
	EndDate   int64  `json:"endDate"`
	Live      bool   `json:"live"`
}

type partnerResponse struct {
	Date        string `json:"date"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	BrandColor  string `json:"brandColor,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Twitter     string `json:"twitter,omitempty"`
}

type articleResponse struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type partnerPageResponse struct {
	Partner        partnerResponse  `json:"partner"`
	Featured       *dropResponse    `json:"featured"`
	Remaining      []dropResponse   `json:"remaining"`
	StaticHeadline bool             `json:"staticHeadline"`
	Article        *articleResponse `json:"article"`
	ShareURL       string           `json:"shareUrl"`
}

type scheduleItemResponse struct {
	Date        string `json:"date"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	BrandColor  string `json:"brandColor,omitempty"`
	DropCount   int    `json:"dropCount"`
	LiveDrops   int    `json:"liveDrops"`
}

type scheduleResponse struct {
	Today         string                 `json:"today"`
	Revealed      []scheduleItemResponse `json:"revealed"`
	UpcomingCount int                    `json:"upcomingCount"`
	NextReveal    string                 `json:"nextReveal,omitempty"`
	Page          *listutil.PageInfo     `json:"page,omitempty"`
}

func toDropResponse(d schedule.Drop, now time.Time) dropResponse {
	return dropResponse{
		Address:   d.Address,
		Name:      d.Name,
		Image:     d.Image,
		Creator:   d.Creator,
		Type:      d.Type,
		Price:     d.Price,
		StartDate: d.StartDate,
		EndDate:   d.EndDate,
		Live:      d.IsLive(now),
	}
}

func toPartnerPageResponse(page projections.PartnerPage, now time.Time) partnerPageResponse {
	p := page.Partner
	resp := partnerPageResponse{
		Partner: partnerResponse{
			Date:        p.Date.String(),
			Slug:        p.Slug,
			Name:        p.Name,
			URL:         p.URL,
			Description: p.Description,
			BrandColor:  p.BrandColor,
			Icon:        p.Icon,
			Twitter:     p.Twitter,
		},
		Remaining:      make([]dropResponse, 0, len(page.Remaining)),
		StaticHeadline: page.StaticHeadline,
		ShareURL:       page.ShareURL,
	}
	if page.Featured != nil {
		f := toDropResponse(*page.Featured, now)
		resp.Featured = &f
	}
	for _, d := range page.Remaining {
		resp.Remaining = append(resp.Remaining, toDropResponse(d, now))
	}
	if page.Article != nil {
		resp.Article = &articleResponse{Title: page.Article.Title, Body: page.Article.Body}
	}
	return resp
}

func toScheduleResponse(o projections.ScheduleOverview) scheduleResponse {
	resp := scheduleResponse{
		Today:         o.Today.String(),
		Revealed:      make([]scheduleItemResponse, 0, len(o.Revealed)),
		UpcomingCount: o.UpcomingCount,
		NextReveal:    o.NextReveal.String(),
	}
	for _, it := range o.Revealed {
		resp.Revealed = append(resp.Revealed, scheduleItemResponse{
			Date:        it.Date.String(),
			Slug:        it.Slug,
			Name:        it.Name,
			Description: it.Description,
			Icon:        it.Icon,
			BrandColor:  it.BrandColor,
			DropCount:   it.DropCount,
			LiveDrops:   it.LiveDrops,
		})
	}
	return resp
}

// --- Handlers ---

// handlePartner serves /{slug} and /partner/{slug}.
// Unknown slugs are 404; partners revealed after today redirect to the drop listing.
func handlePartner(w http.ResponseWriter, r *http.Request) {
	now, err := requestNow(r)
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidSpoofDate) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		internalError(w, err)
		return
	}

	page := projections.QueryGetPartnerPage(r.Context(), projections.GetPartnerPageQuery{
		Slug:            r.PathValue("slug"),
		FeaturedAddress: r.URL.Query().Get("drop"),
		Now:             now,
	}, projections.GetPartnerPageDeps{
		Schedule:       deps.Schedule,
		ArticleFetcher: deps.Articles,
		SiteURL:        deps.SiteURL,
	})

	switch page.Status {
	case projections.ResolutionNotFound:
		if isHTMLRequest(r) {
			renderTemplate(w, r, "not_found.html", http.StatusNotFound, nil)
			return
		}
		http.NotFound(w, r)
		return
	case projections.ResolutionNotYetAvailable:
		http.Redirect(w, r, page.RedirectTo, http.StatusTemporaryRedirect)
		return
	}

	if isHTMLRequest(r) {
		view := partnerView{PartnerPage: page, Now: now}
		if deps.AllowSpoofDate {
			view.SpoofDate = r.URL.Query().Get("spoofDate")
		}
		renderTemplate(w, r, "partner.html", http.StatusOK, view)
		return
	}
	writeJSON(w, http.StatusOK, toPartnerPageResponse(page, now))
}

// partnerView adds template-only fields to the page.
// Now is the evaluated instant, spoofed or not; SpoofDate is carried into drop links.
type partnerView struct {
	projections.PartnerPage
	Now       time.Time
	SpoofDate string
}

// ArticleTitle prefers the article's own title over the partner name.
func (v partnerView) ArticleTitle() string {
	if v.Article != nil && v.Article.Title != "" {
		return v.Article.Title
	}
	return v.Partner.Name
}

// HasArticle reports whether an article body can be rendered.
func (v partnerView) HasArticle() bool {
	return v.Article != nil && v.Article.Body != ""
}

// handleHome renders the drop listing that not-yet-revealed partners redirect to.
func handleHome(w http.ResponseWriter, r *http.Request) {
	now, err := requestNow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	overview := projections.QueryListSchedule(deps.Schedule, now)
	if isHTMLRequest(r) {
		renderTemplate(w, r, "home.html", http.StatusOK, overview)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(overview))
}

// handleScheduleAPI returns one page of the revealed schedule as JSON regardless of Accept.
func handleScheduleAPI(w http.ResponseWriter, r *http.Request) {
	now, err := requestNow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	overview := projections.QueryListSchedule(deps.Schedule, now)
	var info listutil.PageInfo
	overview.Revealed, info = listutil.Paginate(overview.Revealed, listutil.ParsePageParams(r.URL.Query()))

	resp := toScheduleResponse(overview)
	resp.Page = &info
	writeJSON(w, http.StatusOK, resp)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  deps.Version,
		"partners": deps.Schedule.Len(),
	})
}

// handleDebugPerf exposes the perf collector. Registered outside production only.
func handleDebugPerf(w http.ResponseWriter, r *http.Request) {
	if perfCollector == nil {
		writeJSON(w, http.StatusOK, perf.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, perfCollector.Snapshot())
}
