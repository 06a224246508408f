package progression

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// gateSet hands out one weighted semaphore per key, dropping it once the
// last holder releases.
type gateSet struct {
	weight int64
	mu     sync.Mutex
	gates  map[string]*gate
}

type gate struct {
	sem  *semaphore.Weighted
	refs int
}

func newGateSet(weight int64) *gateSet {
	return &gateSet{weight: weight, gates: make(map[string]*gate)}
}

// acquire takes n units of key's semaphore, waiting until ctx is done.
func (s *gateSet) acquire(ctx context.Context, key string, n int64) (release func(), err error) {
	s.mu.Lock()
	g, ok := s.gates[key]
	if !ok {
		g = &gate{sem: semaphore.NewWeighted(s.weight)}
		s.gates[key] = g
	}
	g.refs++
	s.mu.Unlock()

	if err := g.sem.Acquire(ctx, n); err != nil {
		s.unref(key, g)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.sem.Release(n)
			s.unref(key, g)
		})
	}, nil
}

func (s *gateSet) unref(key string, g *gate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.refs--
	if g.refs == 0 {
		delete(s.gates, key)
	}
}

func (s *gateSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gates)
}
