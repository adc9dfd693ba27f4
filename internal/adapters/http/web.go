package web

import (
	"crypto/rand"
	"log"
	"net/http"
	"time"

	"onchainsummer/internal/adapters/http/middleware"
	"onchainsummer/internal/adapters/http/perf"
	"onchainsummer/internal/application/projections"
	"onchainsummer/internal/domain/schedule"
)

// Deps holds everything the handlers read from.
type Deps struct {
	Schedule       *schedule.Schedule
	Articles       projections.PartnerPageArticleFetcher // optional
	SiteURL        string
	Version        string
	AllowSpoofDate bool
	Production     bool
	CSRFKey        []byte // 32 bytes; nil generates a per-process key outside production
	TrustedOrigins []string
	RateLimit      int // requests per second per client
	SlowRequest    time.Duration
}

// Global deps instance (set by NewMux)
var deps *Deps

// Global perf collector (set by NewMux)
var perfCollector *perf.Collector

// sweepStop stops the rate limiter sweeper of the previous NewMux call.
var sweepStop chan struct{}

// csrfKeyFor returns the configured key or a random one for development.
func csrfKeyFor(d *Deps) []byte {
	if len(d.CSRFKey) == 32 {
		return d.CSRFKey
	}
	if d.Production {
		log.Fatal("CSRF key is required in production")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		log.Fatalf("failed to generate CSRF key: %v", err)
	}
	log.Println("WARNING: using random CSRF key (tokens won't survive restart). Set OCS_CSRF_KEY for production.")
	return key
}

// NewMux wires HTTP handlers for the site.
func NewMux(staticDir string, d *Deps, collector *perf.Collector) http.Handler {
	deps = d
	perfCollector = collector

	mux := http.NewServeMux()
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	registerRoutes(mux, !d.Production)

	rate := d.RateLimit
	if rate <= 0 {
		rate = 20
	}
	limiter := middleware.NewRateLimiter(rate, time.Second)
	if sweepStop != nil {
		close(sweepStop)
	}
	sweepStop = make(chan struct{})
	limiter.StartSweeper(time.Minute, sweepStop)

	// Apply middleware: Timing -> RateLimit -> CSRF -> SecurityHeaders -> Mux
	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.CSRF(csrfKeyFor(d), d.Production, d.TrustedOrigins),
		middleware.RateLimit(limiter),
		middleware.Timing(collector, d.SlowRequest),
	)
}
