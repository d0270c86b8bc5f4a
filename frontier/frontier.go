// Package frontier holds the urls that have been discovered but not yet
// fetched.
package frontier

import "net/url"

// Stack is a last-in-first-out frontier. The most recently discovered link
// is visited first, which gives the crawl a depth-first bias.
//
// Duplicates are allowed. De-duplication happens when a url is popped and
// claimed, not when it is pushed. A Stack is not safe for concurrent use.
type Stack struct {
	urls []*url.URL
}

// New creates a frontier seeded with urls. The last seed is popped first.
func New(seeds ...*url.URL) *Stack {
	s := &Stack{urls: make([]*url.URL, 0, len(seeds))}
	s.Push(seeds...)
	return s
}

// Push adds urls in order, so the last one given is the next one popped.
// Nil urls are ignored.
func (s *Stack) Push(urls ...*url.URL) {
	for _, u := range urls {
		if u == nil {
			continue
		}
		s.urls = append(s.urls, u)
	}
}

// Pop removes and returns the most recently pushed url. The bool is false
// when the frontier is empty.
func (s *Stack) Pop() (*url.URL, bool) {
	n := len(s.urls)
	if n == 0 {
		return nil, false
	}
	u := s.urls[n-1]
	s.urls[n-1] = nil
	s.urls = s.urls[:n-1]
	return u, true
}

func (s *Stack) Len() int { return len(s.urls) }
