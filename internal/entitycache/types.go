package entitycache

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("entitycache: entity not found")

// PendingState tracks whether a local mutation on an entity has been
// acknowledged by the server. It never leaves the cache.
type PendingState int

const (
	PendingNone PendingState = iota
	PendingOptimistic
	PendingConfirmed
	PendingFailed
)

func (p PendingState) String() string {
	switch p {
	case PendingOptimistic:
		return "optimistic"
	case PendingConfirmed:
		return "confirmed"
	case PendingFailed:
		return "failed"
	default:
		return "none"
	}
}

type Kind int

const (
	Created Kind = iota + 1
	Updated
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Entry is one cached entity plus its cache-local bookkeeping.
type Entry[E any] struct {
	Value   E
	Version int64
	Pending PendingState
}

// Event is a push notification for a single entity.
// For Created and Updated the ID and Version are taken from Entity when
// left zero. Deleted only needs ID.
type Event[K comparable, E any] struct {
	Kind    Kind
	ID      K
	Entity  E
	Version int64
}

// Patch is a partial update of an entity's fields.
//
// Apply returns e with the patched fields set. Restore returns cur with
// only the patched fields copied back from prev; every other field of cur
// must be left untouched.
type Patch[E any] interface {
	Apply(e E) E
	Restore(cur, prev E) E
}

// PatchFunc adapts a pair of functions to Patch.
type PatchFunc[E any] struct {
	ApplyFn   func(e E) E
	RestoreFn func(cur, prev E) E
}

func (p PatchFunc[E]) Apply(e E) E           { return p.ApplyFn(e) }
func (p PatchFunc[E]) Restore(cur, prev E) E { return p.RestoreFn(cur, prev) }

// ConfirmFunc performs the server side of an optimistic mutation. A nil
// entity with a nil error is a plain acknowledgement.
type ConfirmFunc[E any] func(ctx context.Context) (*E, error)

// Listener receives the ordered collection after every collection-affecting
// operation. It may call back into the synchronizer.
type Listener[E any] func(items []Entry[E])

type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeStale      Outcome = "stale"
	OutcomeUnknown    Outcome = "unknown"
	OutcomeCommitted  Outcome = "committed"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeDiscarded  Outcome = "discarded"
)

// Observer is told about every event and mutation outcome. Used for metrics.
type Observer interface {
	EventApplied(collection string, kind Kind, outcome Outcome)
	MutationResolved(collection string, outcome Outcome)
	SnapshotLoaded(collection string, size, replayed int)
}

type nopObserver struct{}

func (nopObserver) EventApplied(string, Kind, Outcome) {}
func (nopObserver) MutationResolved(string, Outcome)   {}
func (nopObserver) SnapshotLoaded(string, int, int)    {}
