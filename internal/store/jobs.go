package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tecky-admin/internal/domain"
)

const jobColumns = `job_id, position, location, experience, pdf_key, version, updated_at`

func scanJob(row interface{ Scan(...any) error }) (domain.Job, error) {
	var j domain.Job
	var pdfKey, updated string
	if err := row.Scan(&j.JobID, &j.Position, &j.Location, &j.Experience, &pdfKey, &j.Version, &updated); err != nil {
		return domain.Job{}, err
	}
	j.PDFURL = DocumentURL(pdfKey)
	j.UpdatedAt = parseTime(updated)
	return j, nil
}

// ListJobs returns every posting, newest first.
func ListJobs(ctx context.Context, db *sql.DB) ([]domain.Job, error) {
	rows, err := db.QueryContext(ctx, `
SELECT `+jobColumns+`
FROM jobs
ORDER BY created_at DESC, rowid DESC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func GetJob(ctx context.Context, db *sql.DB, jobID string) (domain.Job, error) {
	j, err := scanJob(db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = ?;`, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, ErrNotFound
	}
	return j, err
}

type JobInput struct {
	JobID      string
	Position   string
	Location   string
	Experience string
	PDFKey     string // empty keeps the current document on update
}

func (in JobInput) normalize() JobInput {
	in.JobID = strings.TrimSpace(in.JobID)
	in.Position = strings.TrimSpace(in.Position)
	in.Location = strings.TrimSpace(in.Location)
	in.Experience = strings.TrimSpace(in.Experience)
	return in
}

func CreateJob(ctx context.Context, db *sql.DB, in JobInput) (domain.Job, error) {
	in = in.normalize()
	if in.JobID == "" || in.Position == "" {
		return domain.Job{}, fmt.Errorf("create job: %w: jobId and position are required", ErrInvalid)
	}

	ts := now()
	_, err := db.ExecContext(ctx, `
INSERT INTO jobs (job_id, position, location, experience, pdf_key, version, created_at, updated_at)
SELECT ?, ?, ?, ?, ?, 1, ?, ?
WHERE NOT EXISTS (SELECT 1 FROM jobs WHERE job_id = ?);`,
		in.JobID, in.Position, in.Location, in.Experience, in.PDFKey, ts, ts, in.JobID,
	)
	if err != nil {
		return domain.Job{}, fmt.Errorf("create job: %w", err)
	}
	var changes int
	if err := db.QueryRowContext(ctx, `SELECT changes();`).Scan(&changes); err != nil {
		return domain.Job{}, err
	}
	if changes == 0 {
		return domain.Job{}, ErrConflict
	}
	return GetJob(ctx, db, in.JobID)
}

// UpdateJob rewrites the descriptive fields of a posting and bumps its version.
func UpdateJob(ctx context.Context, db *sql.DB, jobID string, in JobInput) (domain.Job, error) {
	in = in.normalize()
	if in.Position == "" {
		return domain.Job{}, fmt.Errorf("update job: %w: position is required", ErrInvalid)
	}
	res, err := db.ExecContext(ctx, `
UPDATE jobs
SET position = ?, location = ?, experience = ?,
    pdf_key = CASE WHEN ? != '' THEN ? ELSE pdf_key END,
    version = version + 1, updated_at = ?
WHERE job_id = ?;`,
		in.Position, in.Location, in.Experience, in.PDFKey, in.PDFKey, now(), jobID,
	)
	if err != nil {
		return domain.Job{}, fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Job{}, ErrNotFound
	}
	return GetJob(ctx, db, jobID)
}

// DeleteJob removes a posting and its applications. It returns tombstones
// for the job and for every application removed with it.
func DeleteJob(ctx context.Context, db *sql.DB, jobID string) (domain.Tombstone, []domain.Tombstone, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Tombstone{}, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	job := domain.Tombstone{ID: jobID}
	err = tx.QueryRowContext(ctx, `SELECT version FROM jobs WHERE job_id = ?;`, jobID).Scan(&job.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Tombstone{}, nil, ErrNotFound
	}
	if err != nil {
		return domain.Tombstone{}, nil, err
	}
	job.Version++

	rows, err := tx.QueryContext(ctx, `DELETE FROM applications WHERE job_id = ? RETURNING id, version;`, jobID)
	if err != nil {
		return domain.Tombstone{}, nil, fmt.Errorf("delete job applications: %w", err)
	}
	var apps []domain.Tombstone
	for rows.Next() {
		var t domain.Tombstone
		if err := rows.Scan(&t.ID, &t.Version); err != nil {
			rows.Close()
			return domain.Tombstone{}, nil, err
		}
		t.Version++
		apps = append(apps, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.Tombstone{}, nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = ?;`, jobID); err != nil {
		return domain.Tombstone{}, nil, fmt.Errorf("delete job: %w", err)
	}
	return job, apps, tx.Commit()
}
