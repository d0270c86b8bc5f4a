// Package crawler walks a website one page at a time. Pages are produced
// as the caller asks for them, so the caller controls the pace of the
// crawl and when it stops.
package crawler

import (
	"context"
	"iter"
	"net/url"
	"sync"

	"github.com/harrybrwn/spiders/frontier"
	"github.com/harrybrwn/spiders/web"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultLimit is the visit limit used when none is given.
const DefaultLimit = 10

// ErrDone is returned by Next when there is nothing left to crawl.
var ErrDone = errors.New("crawl finished")

// Visitor claims and fetches urls. *web.Visitor is the usual
// implementation.
type Visitor interface {
	// Claim marks the url as visited and returns false if it already was.
	Claim(context.Context, *url.URL) (bool, error)
	// Fetch downloads and parses the page at the url.
	Fetch(context.Context, *url.URL) (*web.Page, error)
}

// State is the position of a Crawler in its fetch cycle.
type State int

const (
	// Idle means no fetch is running.
	Idle State = iota
	// Fetching means exactly one fetch is running.
	Fetching
	// Done means the frontier is empty, the limit was reached, or the
	// crawler was closed.
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Crawler is a pull-based crawl of pages starting from one seed url.
//
// At most one fetch is ever in flight. Next must not be called from more
// than one goroutine at a time, but Close may be called at any time and
// never waits on the network.
type Crawler struct {
	visitor  Visitor
	frontier *frontier.Stack
	host     string
	limit    int
	logger   logrus.FieldLogger
	tracer   trace.Tracer

	mu      sync.Mutex
	state   State
	count   int
	pending *fetch
}

type fetch struct {
	url    *url.URL
	cancel context.CancelFunc
	done   chan result
}

type result struct {
	page *web.Page
	err  error
}

type Option func(*Crawler)

// WithHost limits the crawl to urls with this hostname. Other urls are
// dropped without being marked as visited. Hostnames are compared as is,
// without case folding.
func WithHost(host string) Option { return func(c *Crawler) { c.host = host } }

// WithLimit sets the maximum number of fetch attempts. A limit less than
// one means there is no limit.
func WithLimit(n int) Option { return func(c *Crawler) { c.limit = n } }

func WithLogger(l logrus.FieldLogger) Option { return func(c *Crawler) { c.logger = l } }
func WithTracer(t trace.Tracer) Option       { return func(c *Crawler) { c.tracer = t } }

// New creates a crawler that starts at seed.
func New(seed *url.URL, v Visitor, opts ...Option) *Crawler {
	c := &Crawler{
		visitor:  v,
		frontier: frontier.New(seed),
		limit:    DefaultLimit,
		state:    Idle,
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("crawler")
	}
	return c
}

// Next returns the next crawled page. It blocks while the page is being
// fetched.
//
// If the fetch fails the error is returned and the crawl can continue with
// another call to Next. When nothing is left to crawl ErrDone is returned,
// and it will be returned on every call after that. If ctx ends before the
// fetch finishes then the fetch is abandoned and ctx.Err() is returned. The
// abandoned url stays visited and counts against the limit.
func (c *Crawler) Next(ctx context.Context) (*web.Page, error) {
	p, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		c.abandon(p)
		return nil, ctx.Err()
	case res := <-p.done:
		return c.finish(p, res)
	}
}

// All returns a sequence of crawled pages for use with range. A failed
// fetch is yielded as a nil page with an error and the crawl goes on. The
// sequence ends when there is nothing left to crawl, when ctx ends, or when
// the loop stops early.
func (c *Crawler) All(ctx context.Context) iter.Seq2[*web.Page, error] {
	return func(yield func(*web.Page, error) bool) {
		for {
			page, err := c.Next(ctx)
			if errors.Is(err, ErrDone) {
				return
			}
			if !yield(page, err) || ctx.Err() != nil {
				return
			}
		}
	}
}

// Close stops the crawl. A running fetch is cancelled and its result is
// dropped. Close always returns nil.
func (c *Crawler) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.pending.cancel()
		c.pending = nil
	}
	c.state = Done
	return nil
}

// State returns the crawler's current state.
func (c *Crawler) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Count returns the number of fetches that have been attempted.
func (c *Crawler) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Pending returns the number of urls waiting in the frontier, including
// duplicates and urls that will be filtered out.
func (c *Crawler) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frontier.Len()
}

// begin returns the running fetch, starting a new one when the crawler is
// idle.
func (c *Crawler) begin(ctx context.Context) (*fetch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		switch c.state {
		case Done:
			return nil, ErrDone
		case Fetching:
			return c.pending, nil
		}
		u, err := c.candidate()
		if err != nil {
			return nil, err
		}
		fresh, err := c.claim(ctx, u)
		if c.state == Done {
			// closed while claiming
			return nil, ErrDone
		}
		if err != nil {
			c.count++
			c.logger.WithError(err).WithField("url", u.String()).Warn("could not claim url")
			return nil, err
		}
		if !fresh {
			continue
		}
		c.count++
		c.launch(ctx, u)
		return c.pending, nil
	}
}

// candidate pops the next url that passes the host filter. It must be
// called with c.mu held.
func (c *Crawler) candidate() (*url.URL, error) {
	for {
		if c.limit > 0 && c.count >= c.limit {
			c.logger.WithField("limit", c.limit).Debug("visit limit reached")
			c.state = Done
			return nil, ErrDone
		}
		u, ok := c.frontier.Pop()
		if !ok {
			c.state = Done
			return nil, ErrDone
		}
		if c.host != "" && u.Hostname() != c.host {
			c.logger.WithFields(logrus.Fields{
				"url": u.String(), "host": c.host,
			}).Trace("skipping url from other host")
			continue
		}
		return u, nil
	}
}

// claim marks u as visited without holding c.mu, since the visited set may
// be a remote store. It must be called with c.mu held.
func (c *Crawler) claim(ctx context.Context, u *url.URL) (bool, error) {
	c.mu.Unlock()
	defer c.mu.Lock()
	return c.visitor.Claim(ctx, u)
}

// launch starts fetching u in the background. It must be called with c.mu
// held.
func (c *Crawler) launch(ctx context.Context, u *url.URL) {
	ctx, cancel := context.WithCancel(ctx)
	p := &fetch{
		url:    u,
		cancel: cancel,
		done:   make(chan result, 1),
	}
	c.pending = p
	c.state = Fetching

	ctx, span := c.tracer.Start(
		ctx, "crawler.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			keyURL.String(u.String()),
			keyCount.Int(c.count),
		),
	)
	go func() {
		defer span.End()
		page, err := c.visitor.Fetch(ctx, u)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(keyLinks.Int(len(page.Links)))
		}
		p.done <- result{page: page, err: err}
	}()
}

// abandon drops a fetch that the caller stopped waiting for.
func (c *Crawler) abandon(p *fetch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.cancel()
	if c.pending != p {
		return
	}
	c.pending = nil
	c.state = Idle
	c.logger.WithField("url", p.url.String()).Debug("abandoned fetch")
}

// finish folds a completed fetch back into the crawler.
func (c *Crawler) finish(p *fetch, res result) (*web.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.cancel()
	if c.pending != p {
		// closed while the fetch was running
		return nil, ErrDone
	}
	c.pending = nil
	c.state = Idle
	logger := c.logger.WithField("url", p.url.String())
	if res.err != nil {
		logger.WithError(res.err).Warn("failed to fetch page")
		return nil, res.err
	}
	c.frontier.Push(res.page.Links...)
	logger.WithFields(logrus.Fields{
		"links":   len(res.page.Links),
		"pending": c.frontier.Len(),
		"count":   c.count,
	}).Debug("visited page")
	return res.page, nil
}

const (
	keyURL   = attribute.Key("crawler.url")
	keyCount = attribute.Key("crawler.count")
	keyLinks = attribute.Key("crawler.links")
)
