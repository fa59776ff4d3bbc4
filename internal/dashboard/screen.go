package dashboard

import (
	"context"
	"sync"

	"tecky-admin/internal/entitycache"
)

// Screen is one live collection: a cache fed by a snapshot fetch and by
// push events.
type Screen[K comparable, E any] struct {
	cache  *entitycache.Synchronizer[K, E]
	fetch  func(ctx context.Context) ([]E, error)
	source entitycache.PushSource[K, E]

	mu     sync.Mutex
	unbind func()
}

func NewScreen[K comparable, E any](
	cache *entitycache.Synchronizer[K, E],
	fetch func(ctx context.Context) ([]E, error),
	source entitycache.PushSource[K, E],
) *Screen[K, E] {
	return &Screen[K, E]{cache: cache, fetch: fetch, source: source}
}

func (s *Screen[K, E]) Cache() *entitycache.Synchronizer[K, E] { return s.cache }

// Mount subscribes to push first and then loads the snapshot, so nothing
// pushed during the fetch is lost. A fetch error leaves the screen
// subscribed; call Refresh to retry.
func (s *Screen[K, E]) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.unbind == nil {
		s.unbind = s.cache.Bind(s.source)
	}
	s.mu.Unlock()
	return s.Refresh(ctx)
}

func (s *Screen[K, E]) Refresh(ctx context.Context) error {
	return s.cache.Refresh(ctx, s.fetch)
}

// Unmount stops push delivery. The cached entities stay readable.
func (s *Screen[K, E]) Unmount() {
	s.mu.Lock()
	unbind := s.unbind
	s.unbind = nil
	s.mu.Unlock()
	if unbind != nil {
		unbind()
	}
}

func (s *Screen[K, E]) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unbind != nil
}
