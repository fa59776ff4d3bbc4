package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"tecky-admin/internal/domain"
)

const applicationColumns = `id, job_id, name, email, phone, resume_key, status, version, created_at`

func scanApplication(row interface{ Scan(...any) error }) (domain.Application, error) {
	var a domain.Application
	var resumeKey, status, created string
	if err := row.Scan(&a.ID, &a.JobID, &a.Name, &a.Email, &a.Phone, &resumeKey, &status, &a.Version, &created); err != nil {
		return domain.Application{}, err
	}
	a.ResumeURL = DocumentURL(resumeKey)
	a.Status = domain.ApplicationStatus(status)
	a.CreatedAt = parseTime(created)
	return a, nil
}

// ListApplications returns applications newest first, optionally for one job.
func ListApplications(ctx context.Context, db *sql.DB, jobID string) ([]domain.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications`
	var args []any
	if jobID = strings.TrimSpace(jobID); jobID != "" {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC;`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Application{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func GetApplication(ctx context.Context, db *sql.DB, id string) (domain.Application, error) {
	a, err := scanApplication(db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Application{}, ErrNotFound
	}
	return a, err
}

type ApplicationInput struct {
	JobID     string
	Name      string
	Email     string
	Phone     string
	ResumeKey string
}

func CreateApplication(ctx context.Context, db *sql.DB, in ApplicationInput) (domain.Application, error) {
	in.JobID = strings.TrimSpace(in.JobID)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.JobID == "" || in.Name == "" || in.Email == "" {
		return domain.Application{}, fmt.Errorf("create application: %w: jobId, name and email are required", ErrInvalid)
	}
	if _, err := GetJob(ctx, db, in.JobID); err != nil {
		return domain.Application{}, fmt.Errorf("create application: job %s: %w", in.JobID, err)
	}

	id := uuid.NewString()
	_, err := db.ExecContext(ctx, `
INSERT INTO applications (id, job_id, name, email, phone, resume_key, status, version, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?);`,
		id, in.JobID, in.Name, in.Email, strings.TrimSpace(in.Phone), in.ResumeKey, string(domain.StatusApplied), now(),
	)
	if err != nil {
		return domain.Application{}, fmt.Errorf("create application: %w", err)
	}
	return GetApplication(ctx, db, id)
}

func UpdateApplicationStatus(ctx context.Context, db *sql.DB, id string, status domain.ApplicationStatus) (domain.Application, error) {
	res, err := db.ExecContext(ctx, `
UPDATE applications SET status = ?, version = version + 1 WHERE id = ?;`,
		string(status), id,
	)
	if err != nil {
		return domain.Application{}, fmt.Errorf("update application status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Application{}, ErrNotFound
	}
	return GetApplication(ctx, db, id)
}
