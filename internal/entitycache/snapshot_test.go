package entitycache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresh_EventDuringFetchSurvivesSnapshot(t *testing.T) {
	s := newRecs()

	err := s.Refresh(context.Background(), func(context.Context) ([]rec, error) {
		// the push for X lands before the list response comes back
		s.ApplyEvent(Event[string, rec]{Kind: Created, Entity: rec{ID: "x", V: 1}})
		return []rec{{ID: "a", V: 1}}, nil
	})
	require.NoError(t, err)

	_, ok := s.Get("x")
	assert.True(t, ok)
	assert.Equal(t, []rec{{ID: "x", V: 1}, {ID: "a", V: 1}}, values(s))
}

func TestRefresh_DeleteDuringFetchIsReplayed(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1}, {ID: "b", V: 1}})

	err := s.Refresh(context.Background(), func(context.Context) ([]rec, error) {
		s.ApplyEvent(Event[string, rec]{Kind: Deleted, ID: "a"})
		return []rec{{ID: "a", V: 1}, {ID: "b", V: 1}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []rec{{ID: "b", V: 1}}, values(s))
}

func TestRefresh_SnapshotNewerThanBufferedEvent(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1, A: 1}})

	err := s.Refresh(context.Background(), func(context.Context) ([]rec, error) {
		s.ApplyEvent(Event[string, rec]{Kind: Updated, Entity: rec{ID: "a", V: 2, A: 2}})
		return []rec{{ID: "a", V: 3, A: 3}}, nil
	})
	require.NoError(t, err)

	got, _ := s.Get("a")
	assert.Equal(t, 3, got.Value.A)
	assert.Equal(t, PendingNone, got.Pending)
}

func TestRefresh_FetchErrorLeavesCollection(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1}})

	notified := 0
	s.Subscribe(func([]Entry[rec]) { notified++ })

	boom := errors.New("list failed")
	err := s.Refresh(context.Background(), func(context.Context) ([]rec, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []rec{{ID: "a", V: 1}}, values(s))
	assert.Equal(t, 0, notified)

	// nothing recorded for the aborted fetch leaks into the next one
	s.ApplyEvent(Event[string, rec]{Kind: Created, Entity: rec{ID: "late", V: 1}})
	s.LoadSnapshot([]rec{{ID: "a", V: 1}})
	_, ok := s.Get("late")
	assert.False(t, ok)
}

func TestLoadSnapshot_ReplacesButKeepsOptimistic(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1, A: 1}, {ID: "b", V: 1}, {ID: "c", V: 1}})

	p := startMutate(s, "b", setA(5))

	s.LoadSnapshot([]rec{{ID: "a", V: 2, A: 2}})

	got := values(s)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, 5, got[0].A)
	assert.Equal(t, rec{ID: "a", V: 2, A: 2}, got[1])

	require.NoError(t, p.succeed(nil))
	b, _ := s.Get("b")
	assert.Equal(t, PendingNone, b.Pending)
}

func TestLoadSnapshot_ReappliesPatchOnFresherCopy(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1, A: 1, B: 1}})

	p := startMutate(s, "a", setA(5))
	s.LoadSnapshot([]rec{{ID: "a", V: 2, A: 1, B: 2}})

	got, _ := s.Get("a")
	assert.Equal(t, rec{ID: "a", V: 2, A: 5, B: 2}, got.Value)
	assert.Equal(t, PendingOptimistic, got.Pending)

	require.Error(t, p.fail(errors.New("x")))
	got, _ = s.Get("a")
	assert.Equal(t, rec{ID: "a", V: 2, A: 1, B: 2}, got.Value)
}

func TestLoadSnapshot_DropsDuplicateIDs(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1, A: 1}, {ID: "a", V: 1, A: 2}})
	assert.Equal(t, []rec{{ID: "a", V: 1, A: 1}}, values(s))
}

func TestSnapshotLoad_OverlappingFetches(t *testing.T) {
	s := newRecs()

	first := s.BeginSnapshot()
	s.ApplyEvent(Event[string, rec]{Kind: Created, Entity: rec{ID: "x", V: 1}})
	second := s.BeginSnapshot()
	s.ApplyEvent(Event[string, rec]{Kind: Created, Entity: rec{ID: "y", V: 1}})

	first.Load([]rec{{ID: "a", V: 1}})
	assert.ElementsMatch(t, []string{"a", "x", "y"}, ids(s))

	second.Load([]rec{{ID: "a", V: 1}, {ID: "x", V: 1}})
	assert.ElementsMatch(t, []string{"a", "x", "y"}, ids(s))

	second.Abort()
	first.Load(nil)
	assert.Equal(t, 3, s.Len())
}

func ids(s *Synchronizer[string, rec]) []string {
	var out []string
	for _, r := range values(s) {
		out = append(out, r.ID)
	}
	return out
}

func TestRefresh_MutationCommittedDuringFetch(t *testing.T) {
	ack := func(r *rec) ConfirmFunc[rec] {
		return func(context.Context) (*rec, error) { return r, nil }
	}

	t.Run("server copy", func(t *testing.T) {
		s := newRecs()
		s.LoadSnapshot([]rec{{ID: "a", V: 1, A: 1}})

		err := s.Refresh(context.Background(), func(ctx context.Context) ([]rec, error) {
			require.NoError(t, s.Mutate(ctx, "a", setA(2), ack(&rec{ID: "a", V: 2, A: 2})))
			// the list was read before the write landed
			return []rec{{ID: "a", V: 1, A: 1}}, nil
		})
		require.NoError(t, err)

		got, _ := s.Get("a")
		assert.Equal(t, rec{ID: "a", V: 2, A: 2}, got.Value)
		assert.Equal(t, int64(2), got.Version)
		assert.Equal(t, PendingNone, got.Pending)
	})

	t.Run("plain acknowledgement", func(t *testing.T) {
		s := newRecs()
		s.LoadSnapshot([]rec{{ID: "a", V: 1, A: 1, B: 1}})

		err := s.Refresh(context.Background(), func(ctx context.Context) ([]rec, error) {
			require.NoError(t, s.Mutate(ctx, "a", setA(2), ack(nil)))
			return []rec{{ID: "a", V: 1, A: 1, B: 1}}, nil
		})
		require.NoError(t, err)

		got, _ := s.Get("a")
		assert.Equal(t, rec{ID: "a", V: 1, A: 2, B: 1}, got.Value)
	})

	t.Run("newer snapshot wins", func(t *testing.T) {
		s := newRecs()
		s.LoadSnapshot([]rec{{ID: "a", V: 1, A: 1}})

		err := s.Refresh(context.Background(), func(ctx context.Context) ([]rec, error) {
			require.NoError(t, s.Mutate(ctx, "a", setA(2), ack(&rec{ID: "a", V: 2, A: 2})))
			return []rec{{ID: "a", V: 3, A: 7}}, nil
		})
		require.NoError(t, err)

		got, _ := s.Get("a")
		assert.Equal(t, rec{ID: "a", V: 3, A: 7}, got.Value)
	})
}

func TestRefresh_RollbackDuringFetchKeepsSnapshot(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1, A: 1}})

	err := s.Refresh(context.Background(), func(ctx context.Context) ([]rec, error) {
		err := s.Mutate(ctx, "a", setA(2), func(context.Context) (*rec, error) { return nil, errors.New("rejected") })
		require.Error(t, err)
		return []rec{{ID: "a", V: 1, A: 1}}, nil
	})
	require.NoError(t, err)

	got, _ := s.Get("a")
	assert.Equal(t, 1, got.Value.A)
}

func TestRefresh_RemoveDuringFetchIsReplayed(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "a", V: 1}, {ID: "b", V: 1}})

	err := s.Refresh(context.Background(), func(ctx context.Context) ([]rec, error) {
		require.NoError(t, s.Remove(ctx, "a", func(context.Context) error { return nil }))
		return []rec{{ID: "a", V: 1}, {ID: "b", V: 1}}, nil
	})
	require.NoError(t, err)

	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, []rec{{ID: "b", V: 1}}, values(s))
}

func TestSnapshotLoad_ReplayedDeleteKeepsLaterMutation(t *testing.T) {
	s := newRecs()
	s.LoadSnapshot([]rec{{ID: "y", V: 1}})

	load := s.BeginSnapshot()
	s.ApplyEvent(Event[string, rec]{Kind: Deleted, ID: "y"})
	s.ApplyEvent(Event[string, rec]{Kind: Created, Entity: rec{ID: "y", V: 2}})
	p := startMutate(s, "y", setA(5))

	load.Load([]rec{{ID: "y", V: 1}})

	got, ok := s.Get("y")
	require.True(t, ok)
	assert.Equal(t, rec{ID: "y", V: 2, A: 5}, got.Value)
	assert.Equal(t, PendingOptimistic, got.Pending)

	require.NoError(t, p.succeed(&rec{ID: "y", V: 3, A: 5}))
	got, _ = s.Get("y")
	assert.Equal(t, rec{ID: "y", V: 3, A: 5}, got.Value)
	assert.Equal(t, PendingNone, got.Pending)
}
