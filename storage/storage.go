// Package storage holds the visited set implementations used to
// de-duplicate page fetches.
package storage

import (
	"context"
	"net/url"
	"sync"
)

// VisitedSet is a set of urls that have been fetched or claimed for
// fetching.
type VisitedSet interface {
	// Claim adds the url to the set if it is absent. It returns true only
	// for the caller that added the url, so two crawlers sharing a set will
	// never both get true for the same url.
	Claim(context.Context, *url.URL) (bool, error)
	// Has reports whether the url has already been claimed.
	Has(context.Context, *url.URL) (bool, error)
}

// NewInMemoryVisitedSet returns a VisitedSet backed by a map. It is safe
// for concurrent use but is not shared between processes.
func NewInMemoryVisitedSet() *InMemoryVisitedSet {
	return &InMemoryVisitedSet{m: make(map[string]struct{})}
}

type InMemoryVisitedSet struct {
	mu sync.Mutex
	m  map[string]struct{}
}

func (s *InMemoryVisitedSet) Claim(_ context.Context, u *url.URL) (bool, error) {
	key := Key(u)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; ok {
		return false, nil
	}
	s.m[key] = struct{}{}
	return true, nil
}

func (s *InMemoryVisitedSet) Has(_ context.Context, u *url.URL) (bool, error) {
	key := Key(u)
	s.mu.Lock()
	_, ok := s.m[key]
	s.mu.Unlock()
	return ok, nil
}

// Len returns the number of urls in the set.
func (s *InMemoryVisitedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Key is the string that a url is stored under. Fragments are dropped
// because they point into the same document.
func Key(u *url.URL) string {
	var l = *u
	stripURL(&l)
	return l.String()
}

func stripURL(u *url.URL) {
	u.Fragment = ""
	u.RawFragment = ""
}

const keyPrefix = "visited_"

func urlKey(u *url.URL) []byte {
	s := Key(u)
	key := make([]byte, len(keyPrefix), len(s)+len(keyPrefix))
	copy(key, keyPrefix)
	return append(key, s...)
}
