package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeEventRoundTrip(t *testing.T) {
	msg := MakeEvent("req-1", "jobDeleted", map[string]any{"id": "J-7", "version": 3})

	e, err := Decode([]byte(msg))
	require.NoError(t, err)
	assert.Equal(t, "jobDeleted", e.Type)
	assert.Equal(t, EnvelopeVersion, e.Version)
	assert.Equal(t, "req-1", e.RequestID)
	assert.False(t, e.At.IsZero())

	var data struct {
		ID      string `json:"id"`
		Version int64  `json:"version"`
	}
	require.NoError(t, json.Unmarshal(e.Data, &data))
	assert.Equal(t, "J-7", data.ID)
	assert.Equal(t, int64(3), data.Version)
}

func TestDecodeRejectsMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"v":1}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestHubFanOutAndDrop(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()
	assert.Equal(t, 2, h.Clients())

	h.Publish("one")
	assert.Equal(t, "one", <-a)
	assert.Equal(t, "one", <-b)

	// fill b's buffer without draining it
	for i := 0; i < cap(b)+3; i++ {
		h.Publish("x")
		<-a
	}
	assert.Equal(t, uint64(3), h.Dropped())

	h.Unsubscribe(b)
	h.Unsubscribe(b)
	assert.Equal(t, 1, h.Clients())
	_, open := <-b
	assert.True(t, open, "buffered values are still readable after close")
}
