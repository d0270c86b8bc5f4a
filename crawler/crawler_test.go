package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/harrybrwn/spiders/storage"
	"github.com/harrybrwn/spiders/web"
	"github.com/matryer/is"
	"github.com/sirupsen/logrus"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestCrawlerOrder(t *testing.T) {
	is := is.New(t)
	v := newMockVisitor(map[string][]string{
		"http://x.test/":   {"http://x.test/l1", "http://x.test/l2"},
		"http://x.test/l1": {},
		"http://x.test/l2": {},
	})
	c := New(mustParse("http://x.test/"), v, WithLogger(testLogger()))
	is.Equal(c.State(), Idle)
	got := crawlAll(t, c)
	is.Equal(got, []string{"http://x.test/", "http://x.test/l2", "http://x.test/l1"}) // depth first
	is.Equal(c.State(), Done)
}

func TestCrawlerDepthFirst(t *testing.T) {
	is := is.New(t)
	v := newMockVisitor(map[string][]string{
		"http://x.test/":    {"http://x.test/a", "http://x.test/b"},
		"http://x.test/b":   {"http://x.test/b/1", "http://x.test/"},
		"http://x.test/b/1": {"http://x.test/b"},
		"http://x.test/a":   {"http://x.test/a/1"},
		"http://x.test/a/1": nil,
	})
	c := New(mustParse("http://x.test/"), v, WithLogger(testLogger()), WithLimit(0))
	got := crawlAll(t, c)
	is.Equal(got, []string{
		"http://x.test/",
		"http://x.test/b",
		"http://x.test/b/1",
		"http://x.test/a",
		"http://x.test/a/1",
	})
	is.Equal(v.fetchCount(), 5) // revisits are never fetched
}

func TestCrawlerHostFilter(t *testing.T) {
	is := is.New(t)
	v := newMockVisitor(map[string][]string{
		"http://a.example/":        {"http://a.example/1", "http://b.example/", "https://a.example:8443/2"},
		"http://a.example/1":       {"http://b.example/x", "http://A.example/3"},
		"https://a.example:8443/2": {},
	})
	c := New(mustParse("http://a.example/"), v, WithHost("a.example"), WithLogger(testLogger()))
	got := crawlAll(t, c)
	is.Equal(got, []string{"http://a.example/", "https://a.example:8443/2", "http://a.example/1"})
	for _, s := range got {
		is.Equal(mustParse(s).Hostname(), "a.example")
	}
	// filtered urls are never claimed
	ok, err := v.set.Has(context.Background(), mustParse("http://b.example/"))
	is.NoErr(err)
	is.True(!ok)
}

func TestCrawlerHostFilterSeed(t *testing.T) {
	is := is.New(t)
	v := newMockVisitor(map[string][]string{"http://b.example/": {}})
	c := New(mustParse("http://b.example/"), v, WithHost("a.example"), WithLogger(testLogger()))
	_, err := c.Next(context.Background())
	is.Equal(err, ErrDone)
	is.Equal(v.fetchCount(), 0)
}

func TestCrawlerLimit(t *testing.T) {
	links := make(map[string][]string)
	for i := 0; i < 50; i++ {
		links[fmt.Sprintf("http://x.test/%d", i)] = []string{
			fmt.Sprintf("http://x.test/%d", i+1),
			fmt.Sprintf("http://x.test/%d", i+2),
		}
	}
	for _, limit := range []int{1, 3, 10, 25} {
		t.Run(fmt.Sprint(limit), func(t *testing.T) {
			is := is.New(t)
			v := newMockVisitor(links)
			v.errs["http://x.test/2"] = &web.FetchError{Kind: web.KindStatus, StatusCode: 500}
			c := New(mustParse("http://x.test/0"), v, WithLimit(limit), WithLogger(testLogger()))
			var outputs int
			for _, err := range c.All(context.Background()) {
				_ = err
				outputs++
			}
			is.True(outputs <= limit)
			is.Equal(outputs, limit)
			is.Equal(c.Count(), limit)
			is.True(c.Pending() > 0) // stopped early with urls left
			_, err := c.Next(context.Background())
			is.Equal(err, ErrDone)
		})
	}
}

func TestCrawlerDefaultLimit(t *testing.T) {
	is := is.New(t)
	links := make(map[string][]string)
	for i := 0; i < 100; i++ {
		links[fmt.Sprintf("http://x.test/%d", i)] = []string{fmt.Sprintf("http://x.test/%d", i+1)}
	}
	c := New(mustParse("http://x.test/0"), newMockVisitor(links), WithLogger(testLogger()))
	is.Equal(len(crawlAll(t, c)), DefaultLimit)
}

func TestCrawlerErrorsContinue(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	v := newMockVisitor(map[string][]string{
		"http://x.test/":  {"http://x.test/a", "http://x.test/b"},
		"http://x.test/a": {},
	})
	fail := &web.FetchError{Kind: web.KindTransport, URL: "http://x.test/b", Err: errors.New("connection refused")}
	v.errs["http://x.test/b"] = fail
	c := New(mustParse("http://x.test/"), v, WithLogger(testLogger()))

	page, err := c.Next(ctx)
	is.NoErr(err)
	is.Equal(page.URL.String(), "http://x.test/")
	page, err = c.Next(ctx)
	is.True(page == nil)
	is.Equal(err, fail)
	is.Equal(c.State(), Idle) // errors do not end the crawl
	page, err = c.Next(ctx)
	is.NoErr(err)
	is.Equal(page.URL.String(), "http://x.test/a")
	_, err = c.Next(ctx)
	is.Equal(err, ErrDone)
	_, err = c.Next(ctx)
	is.Equal(err, ErrDone) // done is sticky
	ok, err := v.set.Has(ctx, mustParse("http://x.test/b"))
	is.NoErr(err)
	is.True(ok) // failures stay visited
}

func TestCrawlerClaimError(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	v := newMockVisitor(map[string][]string{"http://x.test/": {}})
	v.claimErr = errors.New("redis: connection refused")
	c := New(mustParse("http://x.test/"), v, WithLimit(5), WithLogger(testLogger()))
	_, err := c.Next(ctx)
	is.True(errors.Is(err, v.claimErr))
	is.Equal(c.Count(), 1)
	is.Equal(v.fetchCount(), 0)
	_, err = c.Next(ctx)
	is.Equal(err, ErrDone) // the seed was consumed
}

func TestCrawlerClose(t *testing.T) {
	is := is.New(t)
	v := newMockVisitor(map[string][]string{"http://x.test/": {"http://x.test/a"}})
	v.block = make(chan struct{})
	c := New(mustParse("http://x.test/"), v, WithLogger(testLogger()))

	errs := make(chan error)
	go func() {
		_, err := c.Next(context.Background())
		errs <- err
	}()
	v.waitStarted(t)
	is.Equal(c.State(), Fetching)
	is.NoErr(c.Close())
	select {
	case err := <-errs:
		is.Equal(err, ErrDone)
	case <-time.After(5 * time.Second):
		t.Fatal("Next did not return after Close")
	}
	is.Equal(c.State(), Done)
	_, err := c.Next(context.Background())
	is.Equal(err, ErrDone)
}

func TestCrawlerCloseDuringClaim(t *testing.T) {
	is := is.New(t)
	v := newMockVisitor(map[string][]string{"http://x.test/": {"http://x.test/a"}})
	v.claimBlock = make(chan struct{})
	v.claimStarted = make(chan struct{}, 1)
	c := New(mustParse("http://x.test/"), v, WithLogger(testLogger()))

	errs := make(chan error)
	go func() {
		_, err := c.Next(context.Background())
		errs <- err
	}()
	select {
	case <-v.claimStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("claim never started")
	}
	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close waited on a slow visited set")
	}
	is.Equal(c.State(), Done)

	close(v.claimBlock)
	select {
	case err := <-errs:
		is.Equal(err, ErrDone)
	case <-time.After(5 * time.Second):
		t.Fatal("Next did not return")
	}
	is.Equal(v.fetchCount(), 0)
	is.Equal(c.Count(), 0)
}

func TestCrawlerContextCancel(t *testing.T) {
	is := is.New(t)
	v := newMockVisitor(map[string][]string{
		"http://x.test/":  {"http://x.test/a"},
		"http://x.test/a": {},
	})
	v.block = make(chan struct{})
	v.ignoreCtx = true
	defer close(v.block)
	c := New(mustParse("http://x.test/"), v, WithLogger(testLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		v.waitStarted(t)
		cancel()
	}()
	_, err := c.Next(ctx)
	is.Equal(err, context.Canceled)
	is.Equal(c.State(), Idle)
	is.Equal(c.Count(), 1)
	// the abandoned seed is not retried and nothing was pushed
	_, err = c.Next(context.Background())
	is.Equal(err, ErrDone)
}

func TestCrawlerAllBreak(t *testing.T) {
	is := is.New(t)
	v := newMockVisitor(map[string][]string{
		"http://x.test/":  {"http://x.test/a"},
		"http://x.test/a": {},
	})
	c := New(mustParse("http://x.test/"), v, WithLogger(testLogger()))
	n := 0
	for page, err := range c.All(context.Background()) {
		is.NoErr(err)
		is.Equal(page.URL.String(), "http://x.test/")
		n++
		break
	}
	is.Equal(n, 1)
	is.Equal(c.State(), Idle)
	is.Equal(v.fetchCount(), 1)
}

func TestCrawlerSharedVisitedSet(t *testing.T) {
	is := is.New(t)
	set := storage.NewInMemoryVisitedSet()
	pages := map[string][]string{
		"http://x.test/":  {"http://x.test/a", "http://x.test/b"},
		"http://x.test/a": {"http://x.test/b"},
		"http://x.test/b": {"http://x.test/a"},
	}
	v1, v2 := newMockVisitor(pages), newMockVisitor(pages)
	v1.set, v2.set = set, set
	c1 := New(mustParse("http://x.test/"), v1, WithLogger(testLogger()))
	c2 := New(mustParse("http://x.test/"), v2, WithLogger(testLogger()))
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]int)
	)
	for _, c := range []*Crawler{c1, c2} {
		wg.Add(1)
		go func(c *Crawler) {
			defer wg.Done()
			for page, err := range c.All(context.Background()) {
				if err != nil {
					t.Error(err)
					continue
				}
				mu.Lock()
				seen[page.URL.String()]++
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	is.Equal(len(seen), 3)
	for u, n := range seen {
		if n != 1 {
			t.Errorf("%s was fetched %d times", u, n)
		}
	}
}

func TestCrawlerEndToEnd(t *testing.T) {
	is := is.New(t)
	var (
		mu   sync.Mutex
		reqs []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqs = append(reqs, "http://"+r.Host+r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "text/html")
		if r.Host == "x.test" && r.URL.Path == "/" {
			io.WriteString(w, `<html><body>`+
				`<a href="/a">a</a>`+
				`<a href="#">top</a>`+
				`<a href="http://other.test/b">b</a>`+
				`</body></html>`)
			return
		}
		io.WriteString(w, "<html><body>leaf</body></html>")
	}))
	defer srv.Close()
	client := &http.Client{Transport: &http.Transport{
		// every host is served by the test server
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, srv.Listener.Addr().String())
		},
	}}
	v := web.NewVisitor(web.WithClient(client), web.WithLogger(testLogger()))
	c := New(mustParse("http://x.test/"), v, WithLimit(5), WithLogger(testLogger()))

	var got []string
	for page, err := range c.All(context.Background()) {
		is.NoErr(err)
		got = append(got, page.URL.String())
	}
	is.Equal(got, []string{"http://x.test/", "http://other.test/b", "http://x.test/a"})
	is.Equal(reqs, got) // no request for "#"
	is.Equal(c.Count(), 3)
}

func TestStateString(t *testing.T) {
	is := is.New(t)
	is.Equal(Idle.String(), "idle")
	is.Equal(Fetching.String(), "fetching")
	is.Equal(Done.String(), "done")
	is.Equal(State(7).String(), "unknown")
}

func crawlAll(t *testing.T, c *Crawler) []string {
	t.Helper()
	var urls []string
	for page, err := range c.All(context.Background()) {
		if err != nil {
			t.Fatal(err)
		}
		urls = append(urls, page.URL.String())
	}
	return urls
}

type mockVisitor struct {
	set      storage.VisitedSet
	pages    map[string][]string
	errs     map[string]error
	claimErr error
	block    chan struct{}
	started  chan struct{}
	// ignoreCtx makes a blocked fetch wait for block even after its
	// context is cancelled.
	ignoreCtx bool
	// claimBlock holds Claim until it is closed.
	claimBlock   chan struct{}
	claimStarted chan struct{}

	mu      sync.Mutex
	fetched []string
}

func newMockVisitor(pages map[string][]string) *mockVisitor {
	return &mockVisitor{
		set:     storage.NewInMemoryVisitedSet(),
		pages:   pages,
		errs:    make(map[string]error),
		started: make(chan struct{}, 1),
	}
}

func (m *mockVisitor) Claim(ctx context.Context, u *url.URL) (bool, error) {
	if m.claimBlock != nil {
		m.claimStarted <- struct{}{}
		<-m.claimBlock
	}
	if m.claimErr != nil {
		return false, &web.FetchError{Kind: web.KindDedupStore, URL: u.String(), Err: m.claimErr}
	}
	return m.set.Claim(ctx, u)
}

func (m *mockVisitor) Fetch(ctx context.Context, u *url.URL) (*web.Page, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, u.String())
	m.mu.Unlock()
	select {
	case m.started <- struct{}{}:
	default:
	}
	if m.block != nil && m.ignoreCtx {
		<-m.block
	} else if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, &web.FetchError{Kind: web.KindTransport, URL: u.String(), Err: ctx.Err()}
		}
	}
	if err, ok := m.errs[u.String()]; ok {
		return nil, err
	}
	page := &web.Page{URL: u, Status: 200}
	for _, l := range m.pages[u.String()] {
		page.Links = append(page.Links, mustParse(l))
	}
	return page, nil
}

func (m *mockVisitor) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fetched)
}

func (m *mockVisitor) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-m.started:
	case <-time.After(5 * time.Second):
		t.Error("fetch never started")
	}
}

func mustParse(urlstr string) *url.URL {
	u, err := url.Parse(urlstr)
	if err != nil {
		panic(err)
	}
	return u
}
