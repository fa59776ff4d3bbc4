// Package entitycache keeps an ordered, id-keyed collection consistent
// while snapshot loads, push events and optimistic local mutations
// interleave.
package entitycache

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Config[K comparable, E any] struct {
	// Name identifies the collection in logs and metrics ("jobs", "contacts").
	Name string

	Key     func(E) K
	Version func(E) int64

	// Merge combines a cached entity with an incoming copy of the same id
	// (duplicate Created, server-confirmed mutation result). Defaults to
	// taking the incoming copy.
	Merge func(cur, incoming E) E

	Logger   *zap.Logger
	Observer Observer
}

type mutation[K comparable, E any] struct {
	id    K
	patch Patch[E]
	// prev is the entry as it was right before the patch. Events applied
	// while the mutation is in flight never overwrite it.
	prev Entry[E]
	// orphaned is set when the entity is deleted while in flight.
	orphaned bool
}

// logEntry is one change recorded while a snapshot fetch is open. local
// marks changes made through Mutate and Remove rather than pushed.
type logEntry[K comparable, E any] struct {
	ev    Event[K, E]
	local bool
}

type subscription[E any] struct {
	fn   Listener[E]
	once sync.Once
}

type Synchronizer[K comparable, E any] struct {
	cfg Config[K, E]
	log *zap.Logger
	obs Observer

	// opMu serializes collection-affecting operations. Each one queues its
	// notification before releasing opMu, so listeners observe changes in
	// application order.
	opMu sync.Mutex

	mu       sync.RWMutex
	order    []K
	items    map[K]*Entry[E]
	inflight map[uuid.UUID]*mutation[K, E]
	byID     map[K]uuid.UUID

	// changes applied while at least one snapshot fetch is open
	backlog    []logEntry[K, E]
	backlogSeq uint64 // sequence number of backlog[0]
	open       map[uint64]int

	lmu       sync.Mutex
	listeners []*subscription[E]
	queue     [][]Entry[E]
	draining  bool
}

func New[K comparable, E any](cfg Config[K, E]) *Synchronizer[K, E] {
	if cfg.Key == nil || cfg.Version == nil {
		panic("entitycache: Key and Version are required")
	}
	if cfg.Merge == nil {
		cfg.Merge = func(_, incoming E) E { return incoming }
	}
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Synchronizer[K, E]{
		cfg:      cfg,
		log:      l.With(zap.String("collection", cfg.Name)),
		obs:      obs,
		items:    make(map[K]*Entry[E]),
		inflight: make(map[uuid.UUID]*mutation[K, E]),
		byID:     make(map[K]uuid.UUID),
		open:     make(map[uint64]int),
	}
}

func (s *Synchronizer[K, E]) Name() string { return s.cfg.Name }

// ApplyEvent merges one push event into the collection and notifies
// subscribers exactly once, even when the event turns out to be a no-op.
func (s *Synchronizer[K, E]) ApplyEvent(ev Event[K, E]) {
	s.opMu.Lock()
	s.mu.Lock()
	ev = s.normalize(ev)
	outcome := s.applyLocked(ev)
	s.recordLocked(ev, false)
	s.mu.Unlock()

	if outcome != OutcomeApplied {
		s.log.Debug("event ignored",
			zap.Stringer("kind", ev.Kind),
			zap.Any("id", ev.ID),
			zap.Int64("version", ev.Version),
			zap.String("outcome", string(outcome)),
		)
	}
	s.obs.EventApplied(s.cfg.Name, ev.Kind, outcome)

	s.queueNotify()
	s.settle(ev.ID, PendingConfirmed)
	s.opMu.Unlock()
	s.flush()
}

func (s *Synchronizer[K, E]) recordLocked(ev Event[K, E], local bool) {
	if len(s.open) > 0 {
		s.backlog = append(s.backlog, logEntry[K, E]{ev: ev, local: local})
	}
}

func (s *Synchronizer[K, E]) normalize(ev Event[K, E]) Event[K, E] {
	if ev.Kind == Deleted {
		return ev
	}
	ev.ID = s.cfg.Key(ev.Entity)
	if ev.Version == 0 {
		ev.Version = s.cfg.Version(ev.Entity)
	}
	return ev
}

func (s *Synchronizer[K, E]) applyLocked(ev Event[K, E]) Outcome {
	switch ev.Kind {
	case Created:
		cur, ok := s.items[ev.ID]
		if !ok {
			cur = &Entry[E]{Value: ev.Entity, Version: ev.Version}
			s.items[ev.ID] = cur
			s.order = append([]K{ev.ID}, s.order...)
			s.settleAfterEvent(ev.ID, cur, PendingNone)
			return OutcomeApplied
		}
		if ev.Version < cur.Version {
			return OutcomeStale
		}
		cur.Value = s.cfg.Merge(cur.Value, ev.Entity)
		cur.Version = ev.Version
		s.settleAfterEvent(ev.ID, cur, PendingNone)
		return OutcomeApplied

	case Updated:
		cur, ok := s.items[ev.ID]
		if !ok {
			return OutcomeUnknown
		}
		if ev.Version <= cur.Version {
			return OutcomeStale
		}
		cur.Value = ev.Entity
		cur.Version = ev.Version
		s.settleAfterEvent(ev.ID, cur, PendingConfirmed)
		return OutcomeApplied

	case Deleted:
		if mid, ok := s.byID[ev.ID]; ok {
			s.inflight[mid].orphaned = true
			delete(s.byID, ev.ID)
		}
		if !s.removeLocked(ev.ID) {
			return OutcomeUnknown
		}
		return OutcomeApplied
	}
	return OutcomeUnknown
}

// settleAfterEvent layers an in-flight patch back on top of a value that
// an event just replaced, so the entry keeps showing the pending change.
func (s *Synchronizer[K, E]) settleAfterEvent(id K, cur *Entry[E], state PendingState) {
	if mid, ok := s.byID[id]; ok {
		cur.Value = s.inflight[mid].patch.Apply(cur.Value)
		cur.Pending = PendingOptimistic
		return
	}
	cur.Pending = state
}

func (s *Synchronizer[K, E]) removeLocked(id K) bool {
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	for i, k := range s.order {
		if k == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// settle clears a transient pending state once listeners have seen it.
func (s *Synchronizer[K, E]) settle(id K, transient PendingState) {
	s.mu.Lock()
	if cur, ok := s.items[id]; ok && cur.Pending == transient {
		cur.Pending = PendingNone
	}
	s.mu.Unlock()
}

// Mutate applies patch to the entity immediately, notifies, then blocks on
// confirm. On success the server copy (if any) is merged in. On failure only
// the fields the patch touched are restored, listeners get one notification
// with the entry in PendingFailed, the entry drops back to PendingNone
// without a further notification, and confirm's error is returned.
//
// A commit that lands while a snapshot fetch is open is recorded and
// replayed over the loaded snapshot.
//
// Only one mutation per entity may be in flight at a time.
func (s *Synchronizer[K, E]) Mutate(ctx context.Context, id K, patch Patch[E], confirm ConfirmFunc[E]) error {
	s.opMu.Lock()
	s.mu.Lock()
	cur, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		s.opMu.Unlock()
		return fmt.Errorf("%w: %v", ErrNotFound, id)
	}
	mid := uuid.New()
	m := &mutation[K, E]{id: id, patch: patch, prev: *cur}
	s.inflight[mid] = m
	s.byID[id] = mid
	cur.Value = patch.Apply(cur.Value)
	cur.Pending = PendingOptimistic
	s.mu.Unlock()
	s.queueNotify()
	s.opMu.Unlock()
	s.flush()

	confirmed, err := confirm(ctx)

	s.opMu.Lock()
	s.mu.Lock()
	delete(s.inflight, mid)
	if s.byID[id] == mid {
		delete(s.byID, id)
	}
	var outcome Outcome
	cur, ok = s.items[id]
	switch {
	case m.orphaned || !ok:
		outcome = OutcomeDiscarded
	case err != nil:
		cur.Value = patch.Restore(cur.Value, m.prev.Value)
		cur.Pending = PendingFailed
		outcome = OutcomeRolledBack
	default:
		if confirmed != nil {
			if v := s.cfg.Version(*confirmed); v >= cur.Version {
				cur.Value = s.cfg.Merge(cur.Value, *confirmed)
				cur.Version = v
			}
		}
		cur.Pending = PendingNone
		outcome = OutcomeCommitted
		s.recordLocked(Event[K, E]{Kind: Updated, ID: id, Entity: cur.Value, Version: cur.Version}, true)
	}
	s.mu.Unlock()

	s.log.Debug("mutation resolved",
		zap.Any("id", id),
		zap.String("mutation_id", mid.String()),
		zap.String("outcome", string(outcome)),
		zap.Error(err),
	)
	s.obs.MutationResolved(s.cfg.Name, outcome)

	s.queueNotify()
	s.settle(id, PendingFailed)
	s.opMu.Unlock()
	s.flush()
	return err
}

// Remove deletes an entity after confirm succeeds. The collection is not
// touched while confirm runs or when it fails.
func (s *Synchronizer[K, E]) Remove(ctx context.Context, id K, confirm func(ctx context.Context) error) error {
	s.mu.RLock()
	_, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %v", ErrNotFound, id)
	}

	if err := confirm(ctx); err != nil {
		return err
	}

	s.opMu.Lock()
	s.mu.Lock()
	if mid, ok := s.byID[id]; ok {
		s.inflight[mid].orphaned = true
		delete(s.byID, id)
	}
	s.removeLocked(id)
	s.recordLocked(Event[K, E]{Kind: Deleted, ID: id}, true)
	s.mu.Unlock()
	s.queueNotify()
	s.opMu.Unlock()
	s.flush()
	return nil
}

// Subscribe registers fn and returns a function that removes it. The
// returned function may be called any number of times.
//
// Listeners run after the operation's locks are released and may call back
// into the synchronizer. A notification raised from inside a listener is
// delivered once the current fan-out finishes.
func (s *Synchronizer[K, E]) Subscribe(fn Listener[E]) (unsubscribe func()) {
	sub := &subscription[E]{fn: fn}
	s.lmu.Lock()
	s.listeners = append(s.listeners, sub)
	s.lmu.Unlock()

	return func() {
		sub.once.Do(func() {
			s.lmu.Lock()
			defer s.lmu.Unlock()
			for i, l := range s.listeners {
				if l == sub {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// queueNotify captures the collection for delivery by flush. Callers hold
// opMu so the queue follows application order.
func (s *Synchronizer[K, E]) queueNotify() {
	s.lmu.Lock()
	none := len(s.listeners) == 0
	s.lmu.Unlock()
	if none {
		return
	}
	items := s.Items()
	s.lmu.Lock()
	s.queue = append(s.queue, items)
	s.lmu.Unlock()
}

// flush delivers queued notifications. Only one goroutine drains at a time;
// others return and leave their entries to it.
func (s *Synchronizer[K, E]) flush() {
	s.lmu.Lock()
	if s.draining {
		s.lmu.Unlock()
		return
	}
	s.draining = true
	s.lmu.Unlock()

	finished := false
	defer func() {
		// a panicking listener must not wedge later deliveries
		if !finished {
			s.lmu.Lock()
			s.draining = false
			s.lmu.Unlock()
		}
	}()

	for {
		s.lmu.Lock()
		if len(s.queue) == 0 {
			s.queue = nil
			s.draining = false
			finished = true
			s.lmu.Unlock()
			return
		}
		items := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		subs := slices.Clone(s.listeners)
		s.lmu.Unlock()

		for _, sub := range subs {
			sub.fn(items)
		}
	}
}

// Items returns a copy of the collection in display order.
func (s *Synchronizer[K, E]) Items() []Entry[E] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry[E], 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.items[id])
	}
	return out
}

func (s *Synchronizer[K, E]) Get(id K) (Entry[E], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.items[id]
	if !ok {
		return Entry[E]{}, false
	}
	return *cur, true
}

func (s *Synchronizer[K, E]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
