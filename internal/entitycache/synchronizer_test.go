package entitycache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rec struct {
	ID string
	V  int64
	A  int
	B  int
}

func newRecs() *Synchronizer[string, rec] {
	return New(Config[string, rec]{
		Name:    "recs",
		Key:     func(r rec) string { return r.ID },
		Version: func(r rec) int64 { return r.V },
	})
}

func setA(v int) Patch[rec] {
	return PatchFunc[rec]{
		ApplyFn:   func(r rec) rec { r.A = v; return r },
		RestoreFn: func(cur, prev rec) rec { cur.A = prev.A; return cur },
	}
}

// pending runs Mutate in the background and lets the test decide how the
// confirmation resolves.
type pending struct {
	started chan struct{}
	resolve chan func() (*rec, error)
	done    chan error
}

func startMutate(s *Synchronizer[string, rec], id string, p Patch[rec]) *pending {
	pm := &pending{
		started: make(chan struct{}),
		resolve: make(chan func() (*rec, error)),
		done:    make(chan error, 1),
	}
	go func() {
		pm.done <- s.Mutate(context.Background(), id, p, func(context.Context) (*rec, error) {
			close(pm.started)
			return (<-pm.resolve)()
		})
	}()
	<-pm.started
	return pm
}

func (p *pending) succeed(r *rec) error {
	p.resolve <- func() (*rec, error) { return r, nil }
	return <-p.done
}

func (p *pending) fail(err error) error {
	p.resolve <- func() (*rec, error) { return nil, err }
	return <-p.done
}

func values(s *Synchronizer[string, rec]) []rec {
	var out []rec
	for _, e := range s.Items() {
		out = append(out, e.Value)
	}
	return out
}

func TestApplyEvent_CreatedPrependsAndDeduplicates(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1}})

	s.ApplyEvent(Event[string, rec]{Kind: Created, Entity: rec{ID: "b", V: 1}})
	s.ApplyEvent(Event[string, rec]{Kind: Created, Entity: rec{ID: "b", V: 1, A: 7}})
	s.ApplyEvent(Event[string, rec]{Kind: Created, Entity: rec{ID: "b", V: 1, A: 7}})

	require.Equal(t, 2, s.Len())
	assert.Equal(t, []rec{{ID: "b", V: 1, A: 7}, {ID: "a", V: 1}}, values(s))
}

func TestApplyEvent_UpdatedIsIdempotent(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1, A: 1}})

	ev := Event[string, rec]{Kind: Updated, Entity: rec{ID: "a", V: 2, A: 2}}
	s.ApplyEvent(ev)
	once := s.Items()
	s.ApplyEvent(ev)

	assert.Equal(t, once, s.Items())
}

func TestApplyEvent_OutOfOrderVersionsNeverRegress(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1, A: 1}})

	s.ApplyEvent(Event[string, rec]{Kind: Updated, Entity: rec{ID: "a", V: 3, A: 3}})
	s.ApplyEvent(Event[string, rec]{Kind: Updated, Entity: rec{ID: "a", V: 2, A: 2}})
	s.ApplyEvent(Event[string, rec]{Kind: Created, Entity: rec{ID: "a", V: 1, A: 1}})

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, rec{ID: "a", V: 3, A: 3}, got.Value)
	assert.Equal(t, int64(3), got.Version)
}

func TestApplyEvent_UnknownIDIsIgnored(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1}})

	s.ApplyEvent(Event[string, rec]{Kind: Updated, Entity: rec{ID: "zz", V: 9}})
	s.ApplyEvent(Event[string, rec]{Kind: Deleted, ID: "zz"})

	assert.Equal(t, []rec{{ID: "a", V: 1}}, values(s))
}

func TestApplyEvent_NotifiesOncePerCallEvenForNoop(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 2}})

	calls := 0
	var seen []PendingState
	unsubscribe := s.Subscribe(func(items []Entry[rec]) {
		calls++
		if len(items) > 0 {
			seen = append(seen, items[0].Pending)
		}
	})
	defer unsubscribe()

	s.ApplyEvent(Event[string, rec]{Kind: Updated, Entity: rec{ID: "a", V: 1}})
	s.ApplyEvent(Event[string, rec]{Kind: Updated, Entity: rec{ID: "a", V: 3}})

	assert.Equal(t, 2, calls)
	assert.Equal(t, []PendingState{PendingNone, PendingConfirmed}, seen)

	got, _ := s.Get("a")
	assert.Equal(t, PendingNone, got.Pending)
}

func TestSubscribe_UnsubscribeIsIdempotent(t *testing.T) {
	s := newRecs()
	calls := 0
	unsubscribe := s.Subscribe(func([]Entry[rec]) { calls++ })
	other := 0
	s.Subscribe(func([]Entry[rec]) { other++ })

	s.LoadSnapshot(nil)
	unsubscribe()
	unsubscribe()
	s.LoadSnapshot(nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
}

func TestMutate_CommitsServerCopy(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1, A: 1, B: 1}})

	p := startMutate(s, "a", setA(2))
	got, _ := s.Get("a")
	assert.Equal(t, 2, got.Value.A)
	assert.Equal(t, PendingOptimistic, got.Pending)

	require.NoError(t, p.succeed(&rec{ID: "a", V: 2, A: 2, B: 5}))

	got, _ = s.Get("a")
	assert.Equal(t, rec{ID: "a", V: 2, A: 2, B: 5}, got.Value)
	assert.Equal(t, PendingNone, got.Pending)
}

func TestMutate_PlainAcknowledgementKeepsPatch(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1, A: 1}})

	err := s.Mutate(context.Background(), "a", setA(4), func(context.Context) (*rec, error) { return nil, nil })
	require.NoError(t, err)

	got, _ := s.Get("a")
	assert.Equal(t, 4, got.Value.A)
	assert.Equal(t, PendingNone, got.Pending)
}

func TestMutate_RollbackRestoresOnlyTouchedFields(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "e", V: 1, A: 1, B: 1}})

	p := startMutate(s, "e", setA(2))
	s.ApplyEvent(Event[string, rec]{Kind: Updated, Entity: rec{ID: "e", V: 2, A: 1, B: 2}})

	mid, _ := s.Get("e")
	assert.Equal(t, rec{ID: "e", V: 2, A: 2, B: 2}, mid.Value)
	assert.Equal(t, PendingOptimistic, mid.Pending)

	boom := errors.New("boom")
	err := p.fail(boom)
	require.ErrorIs(t, err, boom)

	got, _ := s.Get("e")
	assert.Equal(t, rec{ID: "e", V: 2, A: 1, B: 2}, got.Value)
	assert.Equal(t, PendingNone, got.Pending)
}

func TestMutate_ListenersSeeOptimisticThenFailed(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1, A: 1}})

	var states []PendingState
	s.Subscribe(func(items []Entry[rec]) { states = append(states, items[0].Pending) })

	err := s.Mutate(context.Background(), "a", setA(9), func(context.Context) (*rec, error) {
		return nil, errors.New("nope")
	})
	require.Error(t, err)
	assert.Equal(t, []PendingState{PendingOptimistic, PendingFailed}, states)

	// failed is only reported; the entry settles without another notification
	got, _ := s.Get("a")
	assert.Equal(t, PendingNone, got.Pending)
	assert.Len(t, states, 2)
}

func TestSubscribe_ListenerMayCallBack(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1}})

	var lens []int
	s.Subscribe(func(items []Entry[rec]) {
		lens = append(lens, len(items))
		if len(items) == 1 {
			// reacting to a render by changing the collection
			s.ApplyEvent(Event[string, rec]{Kind: Created, Entity: rec{ID: "b", V: 1}})
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.ApplyEvent(Event[string, rec]{Kind: Updated, Entity: rec{ID: "a", V: 2}})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener calling back into the cache deadlocked")
	}

	assert.Equal(t, []int{1, 2}, lens)
	assert.Equal(t, 2, s.Len())
}

func TestMutate_DeleteWins(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "y", V: 1}, {ID: "z", V: 1}})

	p := startMutate(s, "y", setA(3))
	s.ApplyEvent(Event[string, rec]{Kind: Deleted, ID: "y"})

	require.NoError(t, p.succeed(&rec{ID: "y", V: 2, A: 3}))

	_, ok := s.Get("y")
	assert.False(t, ok)
	assert.Equal(t, []rec{{ID: "z", V: 1}}, values(s))
}

func TestMutate_DeletedThenFailedStaysDeleted(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "y", V: 1}})

	p := startMutate(s, "y", setA(3))
	s.ApplyEvent(Event[string, rec]{Kind: Deleted, ID: "y"})
	_ = p.fail(errors.New("gone"))

	assert.Equal(t, 0, s.Len())
}

func TestMutate_UnrelatedEntitiesResolveIndependently(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1, A: 1}, {ID: "b", V: 1, A: 1}})

	pa := startMutate(s, "a", setA(10))
	pb := startMutate(s, "b", setA(20))

	require.NoError(t, pb.succeed(nil))
	require.Error(t, pa.fail(errors.New("a failed")))

	a, _ := s.Get("a")
	b, _ := s.Get("b")
	assert.Equal(t, 1, a.Value.A)
	assert.Equal(t, 20, b.Value.A)
	assert.Equal(t, PendingNone, b.Pending)
}

func TestMutate_MissingID(t *testing.T) {
	s := newRecs()
	called := false
	err := s.Mutate(context.Background(), "nope", setA(1), func(context.Context) (*rec, error) {
		called = true
		return nil, nil
	})
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, called)
}

func TestMutate_StaleServerCopyIsDropped(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1, A: 1, B: 1}})

	p := startMutate(s, "a", setA(2))
	s.ApplyEvent(Event[string, rec]{Kind: Updated, Entity: rec{ID: "a", V: 5, A: 1, B: 5}})
	require.NoError(t, p.succeed(&rec{ID: "a", V: 2, A: 2, B: 1}))

	got, _ := s.Get("a")
	assert.Equal(t, rec{ID: "a", V: 5, A: 2, B: 5}, got.Value)
}

func TestRemove(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1}, {ID: "b", V: 1}})

	err := s.Remove(context.Background(), "a", func(context.Context) error { return errors.New("denied") })
	require.Error(t, err)
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.Remove(context.Background(), "a", func(context.Context) error { return nil }))
	assert.Equal(t, []rec{{ID: "b", V: 1}}, values(s))

	require.ErrorIs(t, s.Remove(context.Background(), "a", func(context.Context) error { return nil }), ErrNotFound)
}
