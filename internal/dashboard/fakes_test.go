package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"tecky-admin/internal/domain"
	"tecky-admin/internal/push"
)

type fakeTransport struct {
	mu   sync.Mutex
	subs map[int]push.Handlers
	next int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[int]push.Handlers)}
}

func (f *fakeTransport) Subscribe(h push.Handlers) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeTransport) emit(typ string, data any) {
	b, _ := json.Marshal(data)
	f.emitRaw(typ, string(b))
}

func (f *fakeTransport) emitRaw(typ string, raw string) {
	f.mu.Lock()
	var fns []func(json.RawMessage)
	for _, h := range f.subs {
		if fn := h[typ]; fn != nil {
			fns = append(fns, fn)
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(json.RawMessage(raw))
	}
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

var errRefused = errors.New("refused")

// fakeAPI serves fixed snapshots. The hooks, when set, replace the
// default behavior of a call.
type fakeAPI struct {
	jobs     []domain.Job
	apps     []domain.Application
	contacts []domain.Contact

	onListContacts func() ([]domain.Contact, error)
	onSetRead      func(ctx context.Context, id string, read bool) (domain.Contact, error)
	onSetStatus    func(ctx context.Context, id string, st domain.ApplicationStatus) (domain.Application, error)
	onUpdateJob    func(ctx context.Context, id string, f domain.JobFields) (domain.Job, error)
	onDeleteJob    func(ctx context.Context, id string) (domain.Tombstone, error)
}

func (a *fakeAPI) ListJobs(context.Context) ([]domain.Job, error) { return a.jobs, nil }

func (a *fakeAPI) UpdateJob(ctx context.Context, id string, f domain.JobFields) (domain.Job, error) {
	if a.onUpdateJob != nil {
		return a.onUpdateJob(ctx, id, f)
	}
	return domain.Job{}, errRefused
}

func (a *fakeAPI) DeleteJob(ctx context.Context, id string) (domain.Tombstone, error) {
	if a.onDeleteJob != nil {
		return a.onDeleteJob(ctx, id)
	}
	return domain.Tombstone{ID: id}, nil
}

func (a *fakeAPI) ListApplications(context.Context, string) ([]domain.Application, error) {
	return a.apps, nil
}

func (a *fakeAPI) SetApplicationStatus(ctx context.Context, id string, st domain.ApplicationStatus) (domain.Application, error) {
	if a.onSetStatus != nil {
		return a.onSetStatus(ctx, id, st)
	}
	return domain.Application{}, errRefused
}

func (a *fakeAPI) ListContacts(context.Context) ([]domain.Contact, error) {
	if a.onListContacts != nil {
		return a.onListContacts()
	}
	return a.contacts, nil
}

func (a *fakeAPI) SetContactRead(ctx context.Context, id string, read bool) (domain.Contact, error) {
	if a.onSetRead != nil {
		return a.onSetRead(ctx, id, read)
	}
	return domain.Contact{}, errRefused
}

func (a *fakeAPI) DeleteContact(_ context.Context, id string) (domain.Tombstone, error) {
	return domain.Tombstone{ID: id}, nil
}
