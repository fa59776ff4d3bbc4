package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tecky-admin/internal/domain"
)

const contactColumns = `id, name, email, phone, message, read, version, submitted_at`

func scanContact(row interface{ Scan(...any) error }) (domain.Contact, error) {
	var c domain.Contact
	var read int
	var submitted string
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Message, &read, &c.Version, &submitted); err != nil {
		return domain.Contact{}, err
	}
	c.Read = read != 0
	c.SubmittedAt = parseTime(submitted)
	return c, nil
}

func ListContacts(ctx context.Context, db *sql.DB) ([]domain.Contact, error) {
	rows, err := db.QueryContext(ctx, `
SELECT `+contactColumns+`
FROM contacts
ORDER BY submitted_at DESC, rowid DESC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func GetContact(ctx context.Context, db *sql.DB, id string) (domain.Contact, error) {
	c, err := scanContact(db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Contact{}, ErrNotFound
	}
	return c, err
}

type ContactInput struct {
	Name    string
	Email   string
	Phone   string
	Message string
	// SourceID dedupes ingested mail (Message-ID); empty for form posts.
	SourceID    string
	SubmittedAt time.Time
}

// CreateContact stores a new message. When SourceID was already ingested it
// returns ErrConflict.
func CreateContact(ctx context.Context, db *sql.DB, in ContactInput) (domain.Contact, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Message = strings.TrimSpace(in.Message)
	if in.Name == "" || in.Email == "" || in.Message == "" {
		return domain.Contact{}, fmt.Errorf("create contact: %w: name, email and message are required", ErrInvalid)
	}
	submitted := in.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now()
	}

	id := uuid.NewString()
	_, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO contacts (id, name, email, phone, message, read, source_id, version, submitted_at)
VALUES (?, ?, ?, ?, ?, 0, ?, 1, ?);`,
		id, in.Name, in.Email, strings.TrimSpace(in.Phone), in.Message, in.SourceID,
		formatTime(submitted),
	)
	if err != nil {
		return domain.Contact{}, fmt.Errorf("create contact: %w", err)
	}
	var changes int
	if err := db.QueryRowContext(ctx, `SELECT changes();`).Scan(&changes); err != nil {
		return domain.Contact{}, err
	}
	if changes == 0 {
		return domain.Contact{}, ErrConflict
	}
	return GetContact(ctx, db, id)
}

func SetContactRead(ctx context.Context, db *sql.DB, id string, read bool) (domain.Contact, error) {
	v := 0
	if read {
		v = 1
	}
	res, err := db.ExecContext(ctx, `UPDATE contacts SET read = ?, version = version + 1 WHERE id = ?;`, v, id)
	if err != nil {
		return domain.Contact{}, fmt.Errorf("set contact read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Contact{}, ErrNotFound
	}
	return GetContact(ctx, db, id)
}

func DeleteContact(ctx context.Context, db *sql.DB, id string) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, `DELETE FROM contacts WHERE id = ? RETURNING version;`, id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("delete contact: %w", err)
	}
	return v + 1, nil
}

// DeleteContactsOlderThan removes messages submitted before cutoff and
// returns tombstones for them.
func DeleteContactsOlderThan(ctx context.Context, db *sql.DB, cutoff time.Time) ([]domain.Tombstone, error) {
	rows, err := db.QueryContext(ctx, `
DELETE FROM contacts
WHERE submitted_at < ?
RETURNING id, version;`, formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("cleanup contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Tombstone
	for rows.Next() {
		var t domain.Tombstone
		if err := rows.Scan(&t.ID, &t.Version); err != nil {
			return nil, err
		}
		t.Version++
		out = append(out, t)
	}
	return out, rows.Err()
}
