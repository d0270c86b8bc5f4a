package storage

import (
	"context"
	"net/url"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// NewBloomVisitedSet creates an in-process VisitedSet sized for n urls with
// the given false positive rate. A false positive means a url is treated
// as visited and never fetched, in exchange for constant memory.
func NewBloomVisitedSet(n uint, fpRate float64) *BloomVisitedSet {
	return &BloomVisitedSet{f: bloom.NewWithEstimates(n, fpRate)}
}

type BloomVisitedSet struct {
	mu sync.Mutex
	f  *bloom.BloomFilter
}

func (s *BloomVisitedSet) Claim(_ context.Context, u *url.URL) (bool, error) {
	key := Key(u)
	s.mu.Lock()
	present := s.f.TestAndAddString(key)
	s.mu.Unlock()
	return !present, nil
}

func (s *BloomVisitedSet) Has(_ context.Context, u *url.URL) (bool, error) {
	key := Key(u)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.TestString(key), nil
}

// EstimatedCount is the approximate number of urls in the set.
func (s *BloomVisitedSet) EstimatedCount() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint(s.f.ApproximatedSize())
}
