// Package dashboard wires the admin dashboard's live collections (jobs,
// applications, contacts) to the REST API and the push stream, and
// exposes the dashboard's optimistic operations.
package dashboard

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tecky-admin/internal/domain"
	"tecky-admin/internal/entitycache"
	"tecky-admin/internal/logger"
)

// API is the subset of the admin REST API the dashboard calls.
// *restclient.Client implements it.
type API interface {
	ListJobs(ctx context.Context) ([]domain.Job, error)
	UpdateJob(ctx context.Context, jobID string, f domain.JobFields) (domain.Job, error)
	DeleteJob(ctx context.Context, jobID string) (domain.Tombstone, error)

	ListApplications(ctx context.Context, jobID string) ([]domain.Application, error)
	SetApplicationStatus(ctx context.Context, id string, st domain.ApplicationStatus) (domain.Application, error)

	ListContacts(ctx context.Context) ([]domain.Contact, error)
	SetContactRead(ctx context.Context, id string, read bool) (domain.Contact, error)
	DeleteContact(ctx context.Context, id string) (domain.Tombstone, error)
}

type Options struct {
	Logger   *zap.Logger
	Observer entitycache.Observer
}

type Dashboard struct {
	Jobs         *Screen[string, domain.Job]
	Applications *Screen[string, domain.Application]
	Contacts     *Screen[string, domain.Contact]

	api API
	log *zap.Logger
}

func New(api API, t Transport, opts Options) *Dashboard {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(logger.Component("dashboard"))

	d := &Dashboard{api: api, log: log}

	d.Jobs = NewScreen(
		entitycache.New(entitycache.Config[string, domain.Job]{
			Name: "jobs", Key: domain.JobKey, Version: domain.JobVersion,
			Logger: log, Observer: opts.Observer,
		}),
		api.ListJobs,
		topicSource[domain.Job]{t: t, topics: domain.JobTopics, log: log},
	)
	d.Applications = NewScreen(
		entitycache.New(entitycache.Config[string, domain.Application]{
			Name: "applications", Key: domain.ApplicationKey, Version: domain.ApplicationVersion,
			Logger: log, Observer: opts.Observer,
		}),
		func(ctx context.Context) ([]domain.Application, error) { return api.ListApplications(ctx, "") },
		topicSource[domain.Application]{t: t, topics: domain.ApplicationTopics, log: log},
	)
	d.Contacts = NewScreen(
		entitycache.New(entitycache.Config[string, domain.Contact]{
			Name: "contacts", Key: domain.ContactKey, Version: domain.ContactVersion,
			Logger: log, Observer: opts.Observer,
		}),
		api.ListContacts,
		topicSource[domain.Contact]{t: t, topics: domain.ContactTopics, log: log},
	)
	return d
}

// Load mounts every screen in parallel. It fails if any snapshot fails;
// screens that loaded stay mounted.
func (d *Dashboard) Load(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Jobs.Mount(ctx) })
	g.Go(func() error { return d.Applications.Mount(ctx) })
	g.Go(func() error { return d.Contacts.Mount(ctx) })
	return g.Wait()
}

// Refresh reloads every snapshot, e.g. after the push stream reconnected.
func (d *Dashboard) Refresh(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Jobs.Refresh(ctx) })
	g.Go(func() error { return d.Applications.Refresh(ctx) })
	g.Go(func() error { return d.Contacts.Refresh(ctx) })
	return g.Wait()
}

func (d *Dashboard) Close() {
	d.Jobs.Unmount()
	d.Applications.Unmount()
	d.Contacts.Unmount()
}

func confirmWith[E any](call func(ctx context.Context) (E, error)) entitycache.ConfirmFunc[E] {
	return func(ctx context.Context) (*E, error) {
		e, err := call(ctx)
		if err != nil {
			return nil, err
		}
		return &e, nil
	}
}

func (d *Dashboard) logOp(op, id string, err error) {
	if err != nil {
		d.log.Warn("operation failed", logger.Op(op), logger.EntityID(id), logger.Err(err))
		return
	}
	d.log.Debug("operation confirmed", logger.Op(op), logger.EntityID(id))
}

// MarkContactRead flips a message to read right away and rolls it back if
// the server refuses.
func (d *Dashboard) MarkContactRead(ctx context.Context, id string) error {
	return d.SetContactRead(ctx, id, true)
}

func (d *Dashboard) SetContactRead(ctx context.Context, id string, read bool) error {
	err := d.Contacts.Cache().Mutate(ctx, id, domain.ReadPatch(read),
		confirmWith(func(ctx context.Context) (domain.Contact, error) {
			return d.api.SetContactRead(ctx, id, read)
		}))
	d.logOp("set_contact_read", id, err)
	return err
}

func (d *Dashboard) ShortlistApplication(ctx context.Context, id string) error {
	return d.SetApplicationStatus(ctx, id, domain.StatusShortlisted)
}

func (d *Dashboard) SetApplicationStatus(ctx context.Context, id string, st domain.ApplicationStatus) error {
	if _, ok := domain.ParseApplicationStatus(string(st)); !ok {
		return fmt.Errorf("unknown application status %q", st)
	}
	err := d.Applications.Cache().Mutate(ctx, id, domain.StatusPatch(st),
		confirmWith(func(ctx context.Context) (domain.Application, error) {
			return d.api.SetApplicationStatus(ctx, id, st)
		}))
	d.logOp("set_application_status", id, err)
	return err
}

func (d *Dashboard) UpdateJob(ctx context.Context, jobID string, f domain.JobFields) error {
	err := d.Jobs.Cache().Mutate(ctx, jobID, f,
		confirmWith(func(ctx context.Context) (domain.Job, error) {
			return d.api.UpdateJob(ctx, jobID, f)
		}))
	d.logOp("update_job", jobID, err)
	return err
}

// DeleteJob removes the posting once the server confirms. The server also
// deletes the job's applications and pushes their deletions.
func (d *Dashboard) DeleteJob(ctx context.Context, jobID string) error {
	err := d.Jobs.Cache().Remove(ctx, jobID, func(ctx context.Context) error {
		_, err := d.api.DeleteJob(ctx, jobID)
		return err
	})
	d.logOp("delete_job", jobID, err)
	return err
}

func (d *Dashboard) DeleteContact(ctx context.Context, id string) error {
	err := d.Contacts.Cache().Remove(ctx, id, func(ctx context.Context) error {
		_, err := d.api.DeleteContact(ctx, id)
		return err
	})
	d.logOp("delete_contact", id, err)
	return err
}

// ContactView filters and pages the live contact list.
func (d *Dashboard) ContactView(q ContactQuery) ContactPage {
	return FilterContacts(d.Contacts.Cache().Items(), q)
}
