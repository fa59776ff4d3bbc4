package domain

import (
	"strings"
	"time"
)

// Contact is a message left through the public contact form.
type Contact struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone,omitempty"`
	Message     string    `json:"message"`
	SubmittedAt time.Time `json:"submittedAt"`
	Read        bool      `json:"read"`
	Version     int64     `json:"version"`
}

func ContactKey(c Contact) string    { return c.ID }
func ContactVersion(c Contact) int64 { return c.Version }

// Matches reports whether term appears in the name, email, message or phone.
// Matching is case-insensitive except for the phone number.
func (c Contact) Matches(term string) bool {
	term = strings.TrimSpace(term)
	if term == "" {
		return true
	}
	t := strings.ToLower(term)
	return strings.Contains(strings.ToLower(c.Name), t) ||
		strings.Contains(strings.ToLower(c.Email), t) ||
		strings.Contains(strings.ToLower(c.Message), t) ||
		(c.Phone != "" && strings.Contains(c.Phone, term))
}

// ReadPatch flips the read flag of a contact message.
type ReadPatch bool

func (p ReadPatch) Apply(c Contact) Contact {
	c.Read = bool(p)
	return c
}

func (p ReadPatch) Restore(cur, prev Contact) Contact {
	cur.Read = prev.Read
	return cur
}
