package domain

import (
	"strings"
	"time"
)

type ApplicationStatus string

const (
	StatusApplied     ApplicationStatus = "applied"
	StatusShortlisted ApplicationStatus = "shortlisted"
	StatusRejected    ApplicationStatus = "rejected"
)

func ParseApplicationStatus(s string) (ApplicationStatus, bool) {
	st := ApplicationStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusApplied, StatusShortlisted, StatusRejected:
		return st, true
	}
	return "", false
}

// Application is a candidate's submission against a Job.
type Application struct {
	ID        string            `json:"id"`
	JobID     string            `json:"jobId"`
	Name      string            `json:"name"`
	Email     string            `json:"email"`
	Phone     string            `json:"phone,omitempty"`
	ResumeURL string            `json:"resumeUrl,omitempty"`
	Status    ApplicationStatus `json:"status"`
	Version   int64             `json:"version"`
	CreatedAt time.Time         `json:"createdAt"`
}

func ApplicationKey(a Application) string    { return a.ID }
func ApplicationVersion(a Application) int64 { return a.Version }

// StatusPatch moves an application to a new status.
type StatusPatch ApplicationStatus

func (p StatusPatch) Apply(a Application) Application {
	a.Status = ApplicationStatus(p)
	return a
}

func (p StatusPatch) Restore(cur, prev Application) Application {
	cur.Status = prev.Status
	return cur
}
