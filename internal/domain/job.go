package domain

import "time"

// Job is an open position managed from the admin dashboard. JobID is
// assigned by the admin when the posting is created and never changes.
type Job struct {
	JobID      string    `json:"jobId"`
	Position   string    `json:"position"`
	Location   string    `json:"location"`
	Experience string    `json:"experience"`
	PDFURL     string    `json:"pdfUrl,omitempty"`
	Version    int64     `json:"version"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func JobKey(j Job) string    { return j.JobID }
func JobVersion(j Job) int64 { return j.Version }

// JobFields edits the descriptive fields of a posting.
type JobFields struct {
	Position   string `json:"position"`
	Location   string `json:"location"`
	Experience string `json:"experience"`
}

func (p JobFields) Apply(j Job) Job {
	j.Position = p.Position
	j.Location = p.Location
	j.Experience = p.Experience
	return j
}

func (p JobFields) Restore(cur, prev Job) Job {
	cur.Position = prev.Position
	cur.Location = prev.Location
	cur.Experience = prev.Experience
	return cur
}
