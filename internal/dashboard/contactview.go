package dashboard

import (
	"fmt"
	"strings"
	"time"

	"tecky-admin/internal/domain"
	"tecky-admin/internal/entitycache"
)

const DefaultPageSize = 8

type ReadFilter int

const (
	ReadAll ReadFilter = iota
	ReadOnly
	UnreadOnly
)

func ParseReadFilter(s string) (ReadFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return ReadAll, nil
	case "read":
		return ReadOnly, nil
	case "unread":
		return UnreadOnly, nil
	}
	return ReadAll, fmt.Errorf("status must be all, read or unread, got %q", s)
}

// ContactQuery selects a page of contacts. From and To bound the
// submission day inclusively in Location (local time when nil); zero
// values leave that side open.
type ContactQuery struct {
	Status   ReadFilter
	Search   string
	From, To time.Time
	Location *time.Location
	Page     int // 1-based
	PageSize int
}

type ContactPage struct {
	Items []entitycache.Entry[domain.Contact]
	// Total is the number of matches across all pages.
	Total int
	Page  int
	Pages int
	// Unread counts unread messages in the whole collection, unfiltered.
	Unread int
}

func FilterContacts(all []entitycache.Entry[domain.Contact], q ContactQuery) ContactPage {
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	loc := q.Location
	if loc == nil {
		loc = time.Local
	}

	var out ContactPage
	var matched []entitycache.Entry[domain.Contact]
	for _, e := range all {
		c := e.Value
		if !c.Read {
			out.Unread++
		}
		if (q.Status == ReadOnly && !c.Read) || (q.Status == UnreadOnly && c.Read) {
			continue
		}
		if !inDayRange(c.SubmittedAt, q.From, q.To, loc) {
			continue
		}
		if !c.Matches(q.Search) {
			continue
		}
		matched = append(matched, e)
	}

	out.Total = len(matched)
	out.Pages = (out.Total + size - 1) / size
	out.Page = q.Page
	if out.Page < 1 {
		out.Page = 1
	}
	if out.Pages > 0 && out.Page > out.Pages {
		out.Page = out.Pages
	}
	start := (out.Page - 1) * size
	end := min(start+size, out.Total)
	if start < end {
		out.Items = matched[start:end]
	}
	return out
}

func inDayRange(t, from, to time.Time, loc *time.Location) bool {
	day := dayOf(t, loc)
	if !from.IsZero() && day.Before(dayOf(from, loc)) {
		return false
	}
	if !to.IsZero() && day.After(dayOf(to, loc)) {
		return false
	}
	return true
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
