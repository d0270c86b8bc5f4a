package web

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/harrybrwn/spiders/internal/httputil"
	"github.com/harrybrwn/spiders/storage"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout is the request timeout of the client that a Visitor
	// creates when it is not given one.
	DefaultTimeout = 30 * time.Second
	// DefaultUserAgent is sent with every request unless overridden.
	DefaultUserAgent = "spiders/0.1 (+https://github.com/harrybrwn/spiders)"
)

// Visitor fetches pages and keeps track of which urls have been visited.
type Visitor struct {
	client    httputil.Doer
	visited   storage.VisitedSet
	userAgent string
	maxBody   int64
	logger    logrus.FieldLogger
}

type VisitorOption func(*Visitor)

// WithClient sets the http client. The client is shared and never
// modified by the Visitor.
func WithClient(c httputil.Doer) VisitorOption { return func(v *Visitor) { v.client = c } }

// WithVisitedSet sets the visited set. Visitors in different crawlers or
// processes can share one set to avoid fetching a url twice.
func WithVisitedSet(s storage.VisitedSet) VisitorOption {
	return func(v *Visitor) { v.visited = s }
}

func WithUserAgent(ua string) VisitorOption { return func(v *Visitor) { v.userAgent = ua } }

// WithMaxBodySize limits how many bytes of a response body are read.
// Anything past the limit is ignored. Zero means no limit.
func WithMaxBodySize(n int64) VisitorOption { return func(v *Visitor) { v.maxBody = n } }

func WithLogger(l logrus.FieldLogger) VisitorOption { return func(v *Visitor) { v.logger = l } }

func NewVisitor(opts ...VisitorOption) *Visitor {
	v := &Visitor{userAgent: DefaultUserAgent}
	for _, o := range opts {
		o(v)
	}
	if v.client == nil {
		v.client = &http.Client{Timeout: DefaultTimeout}
	}
	if v.visited == nil {
		v.visited = storage.NewInMemoryVisitedSet()
	}
	if v.logger == nil {
		v.logger = log
	}
	return v
}

// VisitedSet returns the set used to de-duplicate urls.
func (v *Visitor) VisitedSet() storage.VisitedSet { return v.visited }

// Visit claims the url and then fetches it. If the url was already claimed
// then ErrAlreadyVisited is returned and no request is made.
func (v *Visitor) Visit(ctx context.Context, u *url.URL) (*Page, error) {
	fresh, err := v.Claim(ctx, u)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, ErrAlreadyVisited
	}
	return v.Fetch(ctx, u)
}

// Claim marks the url as visited. It returns false if the url had already
// been claimed, by this Visitor or by anyone sharing its visited set.
func (v *Visitor) Claim(ctx context.Context, u *url.URL) (bool, error) {
	fresh, err := v.visited.Claim(ctx, u)
	if err != nil {
		return false, &FetchError{Kind: KindDedupStore, URL: u.String(), Err: err}
	}
	return fresh, nil
}

// Fetch sends a GET request for the url, reads the whole body, and parses
// it. Fetch does not look at the visited set; use Visit or Claim for that.
func (v *Visitor) Fetch(ctx context.Context, u *url.URL) (*Page, error) {
	var (
		link = u.String()
		l    = *u
		now  = time.Now()
	)
	req := &http.Request{
		Method:     "GET",
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Host:       u.Host,
		URL:        &l,
		Header: http.Header{
			"User-Agent": {v.userAgent},
			"Accept":     {"text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"},
		},
		Body:    http.NoBody,
		GetBody: httputil.DefaultGetBody,
	}
	resp, err := v.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, URL: link, Err: err}
	}
	if !httputil.IsSuccess(resp.StatusCode) {
		httputil.Drain(resp.Body, 4096)
		return nil, &FetchError{Kind: KindStatus, URL: link, StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if v.maxBody > 0 {
		body = io.LimitReader(resp.Body, v.maxBody)
	}
	// TODO parse from the response body as it streams in instead of
	// buffering the whole thing.
	raw, err := io.ReadAll(body)
	resp.Body.Close()
	if err != nil {
		return nil, &FetchError{Kind: KindBodyRead, URL: link, Err: err}
	}

	page, err := ParsePage(u, bytes.NewReader(raw))
	if err != nil {
		return nil, &FetchError{Kind: KindParse, URL: link, Err: err}
	}
	page.ResponseTime = time.Since(now)
	page.Status = resp.StatusCode
	page.ContentType = getContentType(resp)
	page.Redirected = wasRedirected(resp)

	v.logger.WithFields(logrus.Fields{
		"url":    link,
		"status": page.Status,
		"links":  len(page.Links),
		"resp":   page.ResponseTime,
	}).Debug("fetched page")
	return page, nil
}
