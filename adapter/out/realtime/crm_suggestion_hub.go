// Package realtime fans suggestion events out to live UI connections.
package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"crm_server/core/port/out"

	"github.com/rs/zerolog"
)

const (
	defaultBufferSize        = 64
	defaultHeartbeatInterval = 30 * time.Second
)

// SuggestionHub implements out.SuggestionEventSink for Server-Sent Events
// subscribers. Slow subscribers lose events instead of blocking the store.
type SuggestionHub struct {
	mu      sync.RWMutex
	clients map[chan *out.SuggestionsUpdatedEvent]struct{}
	log     zerolog.Logger

	bufferSize        int
	heartbeatInterval time.Duration

	messagesSent    atomic.Int64
	messagesDropped atomic.Int64
}

// NewSuggestionHub creates a hub.
func NewSuggestionHub(log zerolog.Logger) *SuggestionHub {
	return &SuggestionHub{
		clients:           make(map[chan *out.SuggestionsUpdatedEvent]struct{}),
		log:               log.With().Str("component", "suggestion_hub").Logger(),
		bufferSize:        defaultBufferSize,
		heartbeatInterval: defaultHeartbeatInterval,
	}
}

var _ out.SuggestionEventSink = (*SuggestionHub)(nil)

// Subscribe registers a new subscriber channel.
func (h *SuggestionHub) Subscribe() <-chan *out.SuggestionsUpdatedEvent {
	ch := make(chan *out.SuggestionsUpdatedEvent, h.bufferSize)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Debug().Int("total_connections", total).Msg("client subscribed")
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (h *SuggestionHub) Unsubscribe(ch <-chan *out.SuggestionsUpdatedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if c == ch {
			delete(h.clients, c)
			close(c)
			break
		}
	}
}

// Notify delivers event to every subscriber without blocking.
func (h *SuggestionHub) Notify(event *out.SuggestionsUpdatedEvent) {
	if event == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- event:
			h.messagesSent.Add(1)
		default:
			h.messagesDropped.Add(1)
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Uint64("generation", event.Generation).
				Msg("dropped event due to full buffer")
		}
	}
}

// ConnectedCount returns the number of live subscribers.
func (h *SuggestionHub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HeartbeatInterval is how often idle streams should send a keep-alive comment.
func (h *SuggestionHub) HeartbeatInterval() time.Duration {
	return h.heartbeatInterval
}

// HubMetrics holds hub counters.
type HubMetrics struct {
	Connections     int   `json:"connections"`
	MessagesSent    int64 `json:"messages_sent"`
	MessagesDropped int64 `json:"messages_dropped"`
}

// GetMetrics returns hub counters.
func (h *SuggestionHub) GetMetrics() HubMetrics {
	return HubMetrics{
		Connections:     h.ConnectedCount(),
		MessagesSent:    h.messagesSent.Load(),
		MessagesDropped: h.messagesDropped.Load(),
	}
}

// SerializeEvent renders the SSE data line for event.
func SerializeEvent(event *out.SuggestionsUpdatedEvent) ([]byte, error) {
	return json.Marshal(event)
}
