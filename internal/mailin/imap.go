package mailin

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"
)

// RawMessage is one unseen message as fetched from the server. Body holds
// the full RFC822 bytes fetched with BODY.PEEK[] so fetching never sets
// \Seen on its own.
type RawMessage struct {
	UID     imap.UID
	Subject string
	Date    time.Time
	Body    []byte
}

// Mailbox is the slice of an IMAP session the poller needs.
type Mailbox interface {
	FetchUnseen(ctx context.Context, subject string, max int) ([]RawMessage, error)
	MarkSeen(uids []imap.UID) error
	Close() error
}

// Account is what DialIMAP needs to open a session.
type Account struct {
	Host     string
	Port     int
	Username string
	Password string
	Mailbox  string
}

func (a Account) addr() string {
	port := a.Port
	if port == 0 {
		port = 993
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(port))
}

type imapMailbox struct {
	c    *imapclient.Client
	log  *zap.Logger
	stop func() bool
}

// DialIMAP connects over TLS, logs in and selects the account's mailbox.
// The connection is closed when ctx ends.
func DialIMAP(ctx context.Context, acct Account, log *zap.Logger) (Mailbox, error) {
	if acct.Host == "" {
		return nil, errors.New("imap host is required")
	}
	if acct.Username == "" || acct.Password == "" {
		return nil, errors.New("imap username/password is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	c, err := imapclient.DialTLS(acct.addr(), &imapclient.Options{
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: acct.Host},
	})
	if err != nil {
		return nil, fmt.Errorf("imap dial tls: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })

	if err := c.Login(acct.Username, acct.Password).Wait(); err != nil {
		stop()
		_ = c.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}

	mailbox := acct.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := c.Select(mailbox, &imap.SelectOptions{ReadOnly: false}).Wait(); err != nil {
		stop()
		_ = c.Close()
		return nil, fmt.Errorf("imap select %q: %w", mailbox, err)
	}
	return &imapMailbox{c: c, log: log, stop: stop}, nil
}

// FetchUnseen returns up to max unseen messages whose subject contains
// subject, oldest first.
func (m *imapMailbox) FetchUnseen(ctx context.Context, subject string, max int) ([]RawMessage, error) {
	if max <= 0 {
		max = 50
	}
	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	if subject != "" {
		criteria.Header = []imap.SearchCriteriaHeaderField{{Key: "Subject", Value: subject}}
	}

	searchData, err := m.c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap uid search unseen: %w", err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if len(uids) > max {
		uids = uids[:max]
	}

	bodyAll := &imap.FetchItemBodySection{Specifier: imap.PartSpecifierNone, Peek: true}
	fetchCmd := m.c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodyAll},
	})
	defer func() { _ = fetchCmd.Close() }()

	out := make([]RawMessage, 0, len(uids))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil {
			return nil, fmt.Errorf("imap fetch collect: %w", err)
		}
		rm := RawMessage{UID: buf.UID}
		if buf.Envelope != nil {
			rm.Subject = buf.Envelope.Subject
			rm.Date = buf.Envelope.Date
		}
		if b := buf.FindBodySection(bodyAll); b != nil {
			rm.Body = append([]byte(nil), b...)
		}
		out = append(out, rm)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("imap fetch close: %w", err)
	}
	return out, nil
}

// MarkSeen sets \Seen on uids. Store returns a fetch command whose Close
// carries the final status.
func (m *imapMailbox) MarkSeen(uids []imap.UID) error {
	if len(uids) == 0 {
		return nil
	}
	cmd := m.c.Store(imap.UIDSetNum(uids...), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("imap store add seen: %w", err)
	}
	return nil
}

// Close logs out then closes the connection.
func (m *imapMailbox) Close() error {
	m.stop()
	if err := m.c.Logout().Wait(); err != nil {
		m.log.Debug("imap logout", zap.Error(err))
	}
	return m.c.Close()
}
