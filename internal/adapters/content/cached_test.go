package content

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"onchainsummer/internal/domain/article"
)

// mockCache implements ArticleCache for testing.
type mockCache struct {
	mu       sync.Mutex
	articles map[string]article.Article
	getErr   error
	saveErr  error
	saves    int
}

// Save implements ArticleCache for testing.
func (m *mockCache) Save(_ context.Context, a article.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.articles == nil {
		m.articles = make(map[string]article.Article)
	}
	m.articles[a.Digest] = a
	m.saves++
	return nil
}

// GetByDigest implements ArticleCache for testing.
func (m *mockCache) GetByDigest(_ context.Context, digest string) (article.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return article.Article{}, m.getErr
	}
	a, ok := m.articles[digest]
	if !ok {
		return article.Article{}, sql.ErrNoRows
	}
	return a, nil
}

// mockFetcher implements Fetcher for testing.
type mockFetcher struct {
	article article.Article
	ok      bool
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

// Fetch implements Fetcher for testing.
func (m *mockFetcher) Fetch(_ context.Context, digest string) (article.Article, bool, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return article.Article{}, false, m.err
	}
	a := m.article
	a.Digest = digest
	return a, m.ok, nil
}

var cacheNow = time.Date(2023, 8, 12, 0, 0, 0, 0, time.UTC)

func newTestFetcher(up Fetcher, cache ArticleCache) *CachedFetcher {
	f := NewCachedFetcher(up, cache, time.Hour)
	f.now = func() time.Time { return cacheNow }
	return f
}

// TestCachedFetcher_Miss verifies a miss goes upstream and fills the cache.
func TestCachedFetcher_Miss(t *testing.T) {
	up := &mockFetcher{article: article.Article{Title: "T", Body: "B", FetchedAt: cacheNow}, ok: true}
	cache := &mockCache{}
	f := newTestFetcher(up, cache)

	a, ok, err := f.Fetch(context.Background(), "d1")
	if err != nil || !ok || a.Body != "B" {
		t.Fatalf("Fetch = %+v, %v, %v", a, ok, err)
	}
	if cache.saves != 1 {
		t.Errorf("saves = %d, want 1", cache.saves)
	}

	// second call is served from cache
	if _, _, err := f.Fetch(context.Background(), "d1"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if up.calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", up.calls.Load())
	}
}

// TestCachedFetcher_StaleRefresh verifies expired copies are refetched.
func TestCachedFetcher_StaleRefresh(t *testing.T) {
	up := &mockFetcher{article: article.Article{Body: "fresh", FetchedAt: cacheNow}, ok: true}
	cache := &mockCache{articles: map[string]article.Article{
		"d1": {Digest: "d1", Body: "old", FetchedAt: cacheNow.Add(-2 * time.Hour)},
	}}

	a, ok, err := newTestFetcher(up, cache).Fetch(context.Background(), "d1")
	if err != nil || !ok || a.Body != "fresh" {
		t.Errorf("Fetch = %+v, %v, %v; want fresh copy", a, ok, err)
	}
}

// TestCachedFetcher_ServeStaleOnError verifies an upstream outage falls back to the cached copy.
func TestCachedFetcher_ServeStaleOnError(t *testing.T) {
	up := &mockFetcher{err: errors.New("gateway down")}
	cache := &mockCache{articles: map[string]article.Article{
		"d1": {Digest: "d1", Body: "old", FetchedAt: cacheNow.Add(-2 * time.Hour)},
	}}

	a, ok, err := newTestFetcher(up, cache).Fetch(context.Background(), "d1")
	if err != nil || !ok || a.Body != "old" {
		t.Errorf("Fetch = %+v, %v, %v; want stale copy", a, ok, err)
	}
}

// TestCachedFetcher_ErrorWithoutCache verifies upstream errors propagate when nothing is cached.
func TestCachedFetcher_ErrorWithoutCache(t *testing.T) {
	upErr := errors.New("gateway down")
	_, ok, err := newTestFetcher(&mockFetcher{err: upErr}, &mockCache{}).Fetch(context.Background(), "d1")
	if !errors.Is(err, upErr) || ok {
		t.Errorf("ok=%v err=%v, want upstream error", ok, err)
	}
}

// TestCachedFetcher_CacheFailuresPassThrough verifies a broken cache never blocks the article.
func TestCachedFetcher_CacheFailuresPassThrough(t *testing.T) {
	up := &mockFetcher{article: article.Article{Body: "B"}, ok: true}
	cache := &mockCache{getErr: errors.New("disk I/O error"), saveErr: errors.New("disk I/O error")}

	a, ok, err := newTestFetcher(up, cache).Fetch(context.Background(), "d1")
	if err != nil || !ok || a.Body != "B" {
		t.Errorf("Fetch = %+v, %v, %v", a, ok, err)
	}
}

// TestCachedFetcher_UpstreamMiss verifies misses are not cached.
func TestCachedFetcher_UpstreamMiss(t *testing.T) {
	cache := &mockCache{}
	_, ok, err := newTestFetcher(&mockFetcher{ok: false}, cache).Fetch(context.Background(), "d1")
	if err != nil || ok {
		t.Errorf("ok=%v err=%v, want clean miss", ok, err)
	}
	if cache.saves != 0 {
		t.Errorf("saves = %d, want 0", cache.saves)
	}
}

// TestCachedFetcher_CollapsesConcurrentMisses verifies one upstream call serves simultaneous requests.
func TestCachedFetcher_CollapsesConcurrentMisses(t *testing.T) {
	up := &mockFetcher{article: article.Article{Body: "B", FetchedAt: cacheNow}, ok: true, delay: 100 * time.Millisecond}
	f := newTestFetcher(up, &mockCache{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := f.Fetch(context.Background(), "d1"); err != nil || !ok {
				t.Errorf("Fetch: ok=%v err=%v", ok, err)
			}
		}()
	}
	wg.Wait()

	if n := up.calls.Load(); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}

// blockingFetcher holds every upstream call until release is closed and records the context it saw.
type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	ctxErr  atomic.Value
	calls   atomic.Int32
}

// Fetch implements Fetcher for testing.
func (b *blockingFetcher) Fetch(ctx context.Context, digest string) (article.Article, bool, error) {
	b.calls.Add(1)
	b.once.Do(func() { close(b.started) })
	<-b.release
	if err := ctx.Err(); err != nil {
		b.ctxErr.Store(err)
		return article.Article{}, false, err
	}
	return article.Article{Digest: digest, Body: "B", FetchedAt: cacheNow}, true, nil
}

// TestCachedFetcher_CallerCancelDoesNotAbortSharedFetch verifies one caller giving up
// leaves the in-flight fetch intact for the others.
func TestCachedFetcher_CallerCancelDoesNotAbortSharedFetch(t *testing.T) {
	up := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	cache := &mockCache{}
	f := newTestFetcher(up, cache)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := f.Fetch(firstCtx, "d1")
		firstErr <- err
	}()
	<-up.started

	type result struct {
		ok  bool
		err error
	}
	second := make(chan result, 1)
	go func() {
		_, ok, err := f.Fetch(context.Background(), "d1")
		second <- result{ok, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("canceled caller err = %v, want context.Canceled", err)
	}
	close(up.release)

	got := <-second
	if got.err != nil || !got.ok {
		t.Fatalf("second caller: ok=%v err=%v, want the shared article", got.ok, got.err)
	}
	if v := up.ctxErr.Load(); v != nil {
		t.Errorf("upstream saw canceled context: %v", v)
	}
	if cache.saves != 1 {
		t.Errorf("saves = %d, want 1", cache.saves)
	}
}
