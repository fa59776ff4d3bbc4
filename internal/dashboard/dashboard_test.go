package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tecky-admin/internal/domain"
	"tecky-admin/internal/entitycache"
)

func seededAPI() *fakeAPI {
	return &fakeAPI{
		jobs: []domain.Job{
			{JobID: "J-2", Position: "Designer", Version: 1},
			{JobID: "J-1", Position: "SRE", Location: "Remote", Version: 1},
		},
		apps: []domain.Application{
			{ID: "a1", JobID: "J-1", Name: "Ada", Status: domain.StatusApplied, Version: 1},
		},
		contacts: []domain.Contact{
			{ID: "c1", Name: "Grace", Message: "hello", Version: 1},
		},
	}
}

func TestLoadMountsEveryScreen(t *testing.T) {
	tr := newFakeTransport()
	d := New(seededAPI(), tr, Options{})
	defer d.Close()

	require.NoError(t, d.Load(context.Background()))
	assert.Equal(t, 2, d.Jobs.Cache().Len())
	assert.Equal(t, 1, d.Applications.Cache().Len())
	assert.Equal(t, 1, d.Contacts.Cache().Len())
	assert.Equal(t, 3, tr.count())

	tr.emit(domain.EventJobCreated, domain.Job{JobID: "J-3", Position: "PM", Version: 1})
	items := d.Jobs.Cache().Items()
	assert.Equal(t, "J-3", items[0].Value.JobID)

	d.Close()
	assert.Equal(t, 0, tr.count())
	tr.emit(domain.EventJobCreated, domain.Job{JobID: "J-4", Version: 1})
	assert.Equal(t, 3, d.Jobs.Cache().Len())
}

func TestMountKeepsEventPushedDuringFetch(t *testing.T) {
	tr := newFakeTransport()
	api := seededAPI()
	api.onListContacts = func() ([]domain.Contact, error) {
		// the server commits and pushes a new message before the list
		// response reaches us
		tr.emit(domain.EventContactCreated, domain.Contact{ID: "c2", Name: "Late", Version: 1})
		return []domain.Contact{{ID: "c1", Name: "Grace", Version: 1}}, nil
	}
	d := New(api, tr, Options{})
	defer d.Close()

	require.NoError(t, d.Contacts.Mount(context.Background()))
	_, ok := d.Contacts.Cache().Get("c2")
	assert.True(t, ok)
	assert.Equal(t, 2, d.Contacts.Cache().Len())
}

func TestMountFailureStaysSubscribed(t *testing.T) {
	tr := newFakeTransport()
	api := seededAPI()
	api.onListContacts = func() ([]domain.Contact, error) { return nil, errRefused }
	d := New(api, tr, Options{})
	defer d.Close()

	err := d.Load(context.Background())
	require.ErrorIs(t, err, errRefused)
	assert.Equal(t, 0, d.Contacts.Cache().Len())
	assert.True(t, d.Contacts.Mounted())

	api.onListContacts = nil
	require.NoError(t, d.Contacts.Refresh(context.Background()))
	assert.Equal(t, 1, d.Contacts.Cache().Len())
}

func TestMarkContactRead(t *testing.T) {
	tr := newFakeTransport()
	api := seededAPI()
	d := New(api, tr, Options{})
	defer d.Close()
	require.NoError(t, d.Load(context.Background()))

	var seen []entitycache.PendingState
	d.Contacts.Cache().Subscribe(func(items []entitycache.Entry[domain.Contact]) {
		seen = append(seen, items[0].Pending)
	})

	err := d.MarkContactRead(context.Background(), "c1")
	require.ErrorIs(t, err, errRefused)
	got, _ := d.Contacts.Cache().Get("c1")
	assert.False(t, got.Value.Read)
	assert.Equal(t, []entitycache.PendingState{entitycache.PendingOptimistic, entitycache.PendingFailed}, seen)

	api.onSetRead = func(_ context.Context, id string, read bool) (domain.Contact, error) {
		return domain.Contact{ID: id, Name: "Grace", Message: "hello", Read: read, Version: 2}, nil
	}
	require.NoError(t, d.MarkContactRead(context.Background(), "c1"))
	got, _ = d.Contacts.Cache().Get("c1")
	assert.True(t, got.Value.Read)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, entitycache.PendingNone, got.Pending)
}

func TestSetApplicationStatus_RollbackKeepsPushedFields(t *testing.T) {
	tr := newFakeTransport()
	api := seededAPI()
	release := make(chan struct{})
	started := make(chan struct{})
	api.onSetStatus = func(ctx context.Context, id string, st domain.ApplicationStatus) (domain.Application, error) {
		close(started)
		<-release
		return domain.Application{}, errRefused
	}
	d := New(api, tr, Options{})
	defer d.Close()
	require.NoError(t, d.Load(context.Background()))

	done := make(chan error, 1)
	go func() { done <- d.ShortlistApplication(context.Background(), "a1") }()
	<-started

	mid, _ := d.Applications.Cache().Get("a1")
	assert.Equal(t, domain.StatusShortlisted, mid.Value.Status)

	tr.emit(domain.EventApplicationUpdated, domain.Application{
		ID: "a1", JobID: "J-1", Name: "Ada Lovelace", Status: domain.StatusApplied, Version: 2,
	})
	mid, _ = d.Applications.Cache().Get("a1")
	assert.Equal(t, "Ada Lovelace", mid.Value.Name)
	assert.Equal(t, domain.StatusShortlisted, mid.Value.Status)

	close(release)
	select {
	case err := <-done:
		require.ErrorIs(t, err, errRefused)
	case <-time.After(time.Second):
		t.Fatal("mutation never resolved")
	}

	got, _ := d.Applications.Cache().Get("a1")
	assert.Equal(t, domain.StatusApplied, got.Value.Status)
	assert.Equal(t, "Ada Lovelace", got.Value.Name)
	assert.Equal(t, int64(2), got.Version)
}

func TestSetApplicationStatus_RejectsUnknownStatus(t *testing.T) {
	d := New(seededAPI(), newFakeTransport(), Options{})
	assert.Error(t, d.SetApplicationStatus(context.Background(), "a1", "hired"))
}

func TestUpdateJob(t *testing.T) {
	tr := newFakeTransport()
	api := seededAPI()
	api.onUpdateJob = func(_ context.Context, id string, f domain.JobFields) (domain.Job, error) {
		return f.Apply(domain.Job{JobID: id, Version: 2}), nil
	}
	d := New(api, tr, Options{})
	require.NoError(t, d.Load(context.Background()))

	require.NoError(t, d.UpdateJob(context.Background(), "J-1", domain.JobFields{Position: "Staff SRE", Location: "Berlin"}))
	got, _ := d.Jobs.Cache().Get("J-1")
	assert.Equal(t, "Staff SRE", got.Value.Position)
	assert.Equal(t, "Berlin", got.Value.Location)
	assert.Equal(t, int64(2), got.Version)

	require.ErrorIs(t, d.UpdateJob(context.Background(), "J-404", domain.JobFields{}), entitycache.ErrNotFound)
}

func TestDeleteJob(t *testing.T) {
	tr := newFakeTransport()
	api := seededAPI()
	d := New(api, tr, Options{})
	require.NoError(t, d.Load(context.Background()))

	api.onDeleteJob = func(context.Context, string) (domain.Tombstone, error) { return domain.Tombstone{}, errRefused }
	require.ErrorIs(t, d.DeleteJob(context.Background(), "J-1"), errRefused)
	assert.Equal(t, 2, d.Jobs.Cache().Len())

	api.onDeleteJob = nil
	require.NoError(t, d.DeleteJob(context.Background(), "J-1"))
	assert.Equal(t, 1, d.Jobs.Cache().Len())

	// the server's own push for the deletion and its cascade
	tr.emit(domain.EventApplicationDeleted, domain.Tombstone{ID: "a1", Version: 2})
	tr.emit(domain.EventJobDeleted, domain.Tombstone{ID: "J-1", Version: 2})
	assert.Equal(t, 1, d.Jobs.Cache().Len())
	assert.Equal(t, 0, d.Applications.Cache().Len())
}

func TestDeletedPayloadForms(t *testing.T) {
	tr := newFakeTransport()
	d := New(seededAPI(), tr, Options{})
	require.NoError(t, d.Load(context.Background()))

	tr.emitRaw(domain.EventJobDeleted, `"J-2"`)
	tr.emitRaw(domain.EventJobDeleted, `{"nope":true}`)
	tr.emitRaw(domain.EventJobCreated, `not json`)

	_, ok := d.Jobs.Cache().Get("J-2")
	assert.False(t, ok)
	assert.Equal(t, 1, d.Jobs.Cache().Len())
}
