package entitycache

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// SnapshotLoad is an open snapshot fetch. Events, committed mutations and
// confirmed removals between BeginSnapshot and Load are recorded and
// replayed on top of the loaded entities, so a change that races the fetch
// is never lost.
type SnapshotLoad[K comparable, E any] struct {
	s     *Synchronizer[K, E]
	start uint64
	done  bool
}

// BeginSnapshot must be called before the snapshot request is issued.
// Every SnapshotLoad must end with exactly one Load or Abort.
func (s *Synchronizer[K, E]) BeginSnapshot() *SnapshotLoad[K, E] {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := s.backlogSeq + uint64(len(s.backlog))
	s.open[start]++
	return &SnapshotLoad[K, E]{s: s, start: start}
}

// Load replaces the collection with items, keeps entities that have a
// mutation in flight, replays the events recorded since BeginSnapshot and
// notifies subscribers.
func (l *SnapshotLoad[K, E]) Load(items []E) {
	s := l.s
	s.opMu.Lock()
	s.mu.Lock()
	if l.done {
		s.mu.Unlock()
		s.opMu.Unlock()
		return
	}
	l.done = true

	replay := s.eventsSinceLocked(l.start)
	s.closeLocked(l.start)
	s.replaceLocked(items)
	for _, le := range replay {
		s.replayLocked(le)
	}
	s.clearConfirmedLocked()
	size := len(s.order)
	s.mu.Unlock()

	s.log.Debug("snapshot loaded", zap.Int("size", size), zap.Int("replayed", len(replay)))
	s.obs.SnapshotLoaded(s.cfg.Name, size, len(replay))
	s.queueNotify()
	s.opMu.Unlock()
	s.flush()
}

// replayLocked re-applies one recorded change over a freshly loaded
// snapshot. In-flight mutations were already resolved against these
// changes when they happened live, so replay never orphans one.
func (s *Synchronizer[K, E]) replayLocked(le logEntry[K, E]) {
	ev := le.ev
	switch {
	case ev.Kind == Deleted:
		// A live delete clears byID, so a mutation still in flight on this
		// id began after the delete, on a re-created entity.
		if _, ok := s.byID[ev.ID]; ok {
			return
		}
		s.removeLocked(ev.ID)
	case le.local:
		cur, ok := s.items[ev.ID]
		if !ok || cur.Version > ev.Version {
			return
		}
		cur.Value = ev.Entity
		cur.Version = ev.Version
		s.settleAfterEvent(ev.ID, cur, PendingNone)
	default:
		s.applyLocked(ev)
	}
}

// Abort closes the fetch without touching the collection.
func (l *SnapshotLoad[K, E]) Abort() {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.done {
		return
	}
	l.done = true
	s.closeLocked(l.start)
}

// LoadSnapshot replaces the collection wholesale. Use Refresh or
// BeginSnapshot when push events may arrive while the snapshot is fetched.
func (s *Synchronizer[K, E]) LoadSnapshot(items []E) {
	s.BeginSnapshot().Load(items)
}

// Refresh fetches a snapshot and loads it. A fetch error is returned as is
// and leaves the collection untouched.
func (s *Synchronizer[K, E]) Refresh(ctx context.Context, fetch func(ctx context.Context) ([]E, error)) error {
	load := s.BeginSnapshot()
	items, err := fetch(ctx)
	if err != nil {
		load.Abort()
		return fmt.Errorf("fetch %s snapshot: %w", s.cfg.Name, err)
	}
	load.Load(items)
	return nil
}

func (s *Synchronizer[K, E]) eventsSinceLocked(seq uint64) []logEntry[K, E] {
	if seq < s.backlogSeq {
		seq = s.backlogSeq
	}
	i := int(seq - s.backlogSeq)
	if i >= len(s.backlog) {
		return nil
	}
	out := make([]logEntry[K, E], len(s.backlog)-i)
	copy(out, s.backlog[i:])
	return out
}

// closeLocked forgets one open fetch and trims backlog entries no open
// fetch can still need.
func (s *Synchronizer[K, E]) closeLocked(start uint64) {
	if s.open[start]--; s.open[start] <= 0 {
		delete(s.open, start)
	}
	if len(s.open) == 0 {
		s.backlogSeq += uint64(len(s.backlog))
		s.backlog = nil
		return
	}
	oldest := ^uint64(0)
	for seq := range s.open {
		if seq < oldest {
			oldest = seq
		}
	}
	if drop := int(oldest - s.backlogSeq); drop > 0 {
		s.backlog = append([]logEntry[K, E](nil), s.backlog[drop:]...)
		s.backlogSeq = oldest
	}
}

func (s *Synchronizer[K, E]) replaceLocked(items []E) {
	next := make(map[K]*Entry[E], len(items))
	order := make([]K, 0, len(items))
	for _, e := range items {
		id := s.cfg.Key(e)
		if _, dup := next[id]; dup {
			continue
		}
		next[id] = &Entry[E]{Value: e, Version: s.cfg.Version(e)}
		order = append(order, id)
	}

	var kept []K
	for id, mid := range s.byID {
		cur, ok := s.items[id]
		if !ok {
			continue
		}
		m := s.inflight[mid]
		if fresh, ok := next[id]; ok {
			if fresh.Version < cur.Version {
				c := *cur
				next[id] = &c
				continue
			}
			fresh.Value = m.patch.Apply(fresh.Value)
			fresh.Pending = PendingOptimistic
			continue
		}
		c := *cur
		next[id] = &c
		kept = append(kept, id)
	}
	// optimistic entries missing from the snapshot keep their relative order
	if len(kept) > 0 {
		pos := make(map[K]int, len(s.order))
		for i, id := range s.order {
			pos[id] = i
		}
		slices.SortFunc(kept, func(a, b K) int { return pos[a] - pos[b] })
		order = append(kept, order...)
	}

	s.items = next
	s.order = order
}

// clearConfirmedLocked drops transient confirmed states left by replay.
func (s *Synchronizer[K, E]) clearConfirmedLocked() {
	for _, e := range s.items {
		if e.Pending == PendingConfirmed {
			e.Pending = PendingNone
		}
	}
}
