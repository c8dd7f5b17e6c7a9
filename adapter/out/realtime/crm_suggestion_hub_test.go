package realtime

import (
	"testing"

	"crm_server/core/port/out"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestionHub_FanOut(t *testing.T) {
	hub := NewSuggestionHub(zerolog.Nop())
	a := hub.Subscribe()
	b := hub.Subscribe()
	require.Equal(t, 2, hub.ConnectedCount())

	event := &out.SuggestionsUpdatedEvent{ID: "e1", Type: out.EventAccepted, Generation: 2}
	hub.Notify(event)

	assert.Same(t, event, <-a)
	assert.Same(t, event, <-b)
	assert.Equal(t, int64(2), hub.GetMetrics().MessagesSent)
}

func TestSuggestionHub_DropsWhenBufferFull(t *testing.T) {
	hub := NewSuggestionHub(zerolog.Nop())
	hub.bufferSize = 1
	ch := hub.Subscribe()

	hub.Notify(&out.SuggestionsUpdatedEvent{ID: "first"})
	hub.Notify(&out.SuggestionsUpdatedEvent{ID: "second"})

	got := <-ch
	assert.Equal(t, "first", got.ID)
	m := hub.GetMetrics()
	assert.Equal(t, int64(1), m.MessagesSent)
	assert.Equal(t, int64(1), m.MessagesDropped)
}

func TestSuggestionHub_Unsubscribe(t *testing.T) {
	hub := NewSuggestionHub(zerolog.Nop())
	ch := hub.Subscribe()
	hub.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, hub.ConnectedCount())

	hub.Notify(&out.SuggestionsUpdatedEvent{ID: "after"})
	hub.Notify(nil)
}

func TestSerializeEvent(t *testing.T) {
	data, err := SerializeEvent(&out.SuggestionsUpdatedEvent{ID: "x", Type: out.EventDropped, ContactIDs: []int64{7}, Count: 1})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"suggestions.dropped"`)
	assert.Contains(t, string(data), `"contact_ids":[7]`)
}
