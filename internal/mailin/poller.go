// Package mailin ingests contact requests that arrive by email into the
// contacts table, next to the ones posted through the public form.
package mailin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap/v2"
	"go.uber.org/zap"

	"tecky-admin/internal/config"
	"tecky-admin/internal/domain"
	"tecky-admin/internal/events"
	"tecky-admin/internal/logger"
	"tecky-admin/internal/store"
)

// Dialer opens a mailbox session for acct.
type Dialer func(ctx context.Context, acct Account, log *zap.Logger) (Mailbox, error)

type Publisher interface {
	Publish(evt string)
}

// Counter receives per-result counts. *metrics.Metrics implements it.
type Counter interface {
	MailIngested(result string, n int)
}

// Result values reported to Counter.
const (
	ResultCreated   = "created"
	ResultDuplicate = "duplicate"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

type Poller struct {
	DB       *sql.DB
	Hub      Publisher
	Metrics  Counter
	Config   func() config.Config
	Password func(cfg config.Config) (string, error)
	Dial     Dialer

	status atomic.Value // Status
}

// Status describes the most recent poll.
type Status struct {
	Running     bool   `json:"running"`
	LastRunAt   string `json:"last_run_at,omitempty"`
	LastOkAt    string `json:"last_ok_at,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	LastCreated int    `json:"last_created"`
}

func (p *Poller) Status() Status {
	st, _ := p.status.Load().(Status)
	return st
}

// Tick runs one poll and records its outcome in Status. It is the task
// handed to the scheduler.
func (p *Poller) Tick(ctx context.Context) error {
	if !p.Config().Mail.Enabled {
		return nil
	}
	st := p.Status()
	st.Running = true
	st.LastRunAt = time.Now().Format(time.RFC3339)
	p.status.Store(st)

	res, err := p.PollOnce(ctx)

	st.Running = false
	st.LastCreated = res.Created
	if err != nil {
		st.LastError = err.Error()
	} else {
		st.LastError = ""
		st.LastOkAt = time.Now().Format(time.RFC3339)
	}
	p.status.Store(st)
	return err
}

type Stats struct {
	Fetched   int
	Created   int
	Duplicate int
	Skipped   int
	Failed    int
}

// PollOnce fetches unseen messages, stores the ones that parse as contacts
// and marks everything it is done with as seen. A message whose insert
// failed stays unseen and is retried on the next poll.
func (p *Poller) PollOnce(ctx context.Context) (Stats, error) {
	var st Stats
	cfg := p.Config()
	if !cfg.Mail.Enabled {
		return st, nil
	}
	log := logger.From(ctx).With(logger.Component("mailin"))

	password, err := p.Password(cfg)
	if err != nil {
		return st, fmt.Errorf("imap password: %w", err)
	}
	dial := p.Dial
	if dial == nil {
		dial = DialIMAP
	}
	mb, err := dial(ctx, Account{
		Host:     cfg.Mail.IMAPHost,
		Port:     cfg.Mail.IMAPPort,
		Username: cfg.Mail.Username,
		Password: password,
		Mailbox:  cfg.Mail.Mailbox,
	}, log)
	if err != nil {
		return st, err
	}
	defer func() { _ = mb.Close() }()

	msgs, err := mb.FetchUnseen(ctx, cfg.Mail.SubjectPrefix, cfg.Mail.MaxPerPoll)
	if err != nil {
		return st, err
	}
	st.Fetched = len(msgs)

	done := make([]imap.UID, 0, len(msgs))
	for _, raw := range msgs {
		if err := ctx.Err(); err != nil {
			break
		}
		switch p.ingest(ctx, log, raw, cfg.Mail.SubjectPrefix) {
		case ResultCreated:
			st.Created++
		case ResultDuplicate:
			st.Duplicate++
		case ResultSkipped:
			st.Skipped++
		case ResultFailed:
			st.Failed++
			continue
		}
		done = append(done, raw.UID)
	}

	if p.Metrics != nil {
		p.Metrics.MailIngested(ResultCreated, st.Created)
		p.Metrics.MailIngested(ResultDuplicate, st.Duplicate)
		p.Metrics.MailIngested(ResultSkipped, st.Skipped)
		p.Metrics.MailIngested(ResultFailed, st.Failed)
	}

	if err := mb.MarkSeen(done); err != nil {
		return st, fmt.Errorf("mark seen: %w", err)
	}
	if st.Fetched > 0 {
		log.Info("mail poll",
			zap.Int("fetched", st.Fetched),
			zap.Int("created", st.Created),
			zap.Int("duplicate", st.Duplicate),
			zap.Int("skipped", st.Skipped),
			zap.Int("failed", st.Failed),
		)
	}
	return st, nil
}

func (p *Poller) ingest(ctx context.Context, log *zap.Logger, raw RawMessage, prefix string) string {
	m, err := ParseMessage(raw.Body)
	if err != nil {
		log.Warn("unparseable message", zap.Uint32("uid", uint32(raw.UID)), logger.Err(err))
		return ResultSkipped
	}
	if m.Subject == "" {
		m.Subject = raw.Subject
	}
	if m.Date.IsZero() {
		m.Date = raw.Date
	}

	in, err := ExtractContact(m, prefix)
	if err != nil {
		log.Debug("message skipped", zap.String("subject", m.Subject), logger.Err(err))
		return ResultSkipped
	}

	c, err := store.CreateContact(ctx, p.DB, in)
	switch {
	case errors.Is(err, store.ErrConflict):
		return ResultDuplicate
	case errors.Is(err, store.ErrInvalid):
		log.Debug("message skipped", zap.String("subject", m.Subject), logger.Err(err))
		return ResultSkipped
	case err != nil:
		log.Error("store contact", zap.String("message_id", m.MessageID), logger.Err(err))
		return ResultFailed
	}

	if p.Hub != nil {
		p.Hub.Publish(events.MakeEvent("", domain.EventContactCreated, c))
	}
	return ResultCreated
}
