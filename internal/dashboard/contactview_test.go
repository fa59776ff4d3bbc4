package dashboard

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tecky-admin/internal/domain"
	"tecky-admin/internal/entitycache"
)

func contactEntries(n int) []entitycache.Entry[domain.Contact] {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var out []entitycache.Entry[domain.Contact]
	for i := 0; i < n; i++ {
		out = append(out, entitycache.Entry[domain.Contact]{Value: domain.Contact{
			ID:          fmt.Sprintf("c%d", i),
			Name:        fmt.Sprintf("Person %d", i),
			Email:       fmt.Sprintf("p%d@example.com", i),
			Message:     "hello",
			SubmittedAt: base.AddDate(0, 0, i),
			Read:        i%2 == 0,
		}})
	}
	return out
}

func TestFilterContacts_Pagination(t *testing.T) {
	all := contactEntries(19)

	p := FilterContacts(all, ContactQuery{})
	assert.Equal(t, 19, p.Total)
	assert.Equal(t, 3, p.Pages)
	assert.Equal(t, 1, p.Page)
	assert.Len(t, p.Items, DefaultPageSize)
	assert.Equal(t, 9, p.Unread)

	p = FilterContacts(all, ContactQuery{Page: 3})
	assert.Len(t, p.Items, 3)
	assert.Equal(t, "c16", p.Items[0].Value.ID)

	p = FilterContacts(all, ContactQuery{Page: 99})
	assert.Equal(t, 3, p.Page)

	p = FilterContacts(nil, ContactQuery{Page: 2})
	assert.Equal(t, 0, p.Pages)
	assert.Empty(t, p.Items)
}

func TestFilterContacts_StatusSearchAndDates(t *testing.T) {
	all := contactEntries(10)

	p := FilterContacts(all, ContactQuery{Status: UnreadOnly})
	assert.Equal(t, 5, p.Total)
	for _, e := range p.Items {
		assert.False(t, e.Value.Read)
	}

	p = FilterContacts(all, ContactQuery{Search: "P7@EXAMPLE"})
	require.Equal(t, 1, p.Total)
	assert.Equal(t, "c7", p.Items[0].Value.ID)

	// day bounds are inclusive regardless of time of day
	p = FilterContacts(all, ContactQuery{
		From:     time.Date(2026, 3, 3, 23, 59, 0, 0, time.UTC),
		To:       time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		Location: time.UTC,
	})
	assert.Equal(t, 3, p.Total)

	p = FilterContacts(all, ContactQuery{Status: ReadOnly, From: time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), Location: time.UTC})
	assert.Equal(t, 1, p.Total)
	assert.Equal(t, "c8", p.Items[0].Value.ID)
}

func TestParseReadFilter(t *testing.T) {
	f, err := ParseReadFilter("Unread")
	require.NoError(t, err)
	assert.Equal(t, UnreadOnly, f)

	_, err = ParseReadFilter("archived")
	assert.Error(t, err)
}
