package messaging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"crm_server/core/port/out"

	"github.com/rs/zerolog"
)

const (
	defaultForwardBuffer  = 256
	defaultPublishTimeout = 5 * time.Second
)

// EventForwarder relays in-process suggestion events to a publisher on its own
// goroutine. Notify never blocks; events that do not fit the buffer are dropped.
type EventForwarder struct {
	publisher out.SuggestionEventPublisher
	events    chan *out.SuggestionsUpdatedEvent
	timeout   time.Duration
	log       zerolog.Logger

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewEventForwarder creates a forwarder. Call Run to start delivery.
func NewEventForwarder(publisher out.SuggestionEventPublisher, bufferSize int, log zerolog.Logger) *EventForwarder {
	if bufferSize <= 0 {
		bufferSize = defaultForwardBuffer
	}
	return &EventForwarder{
		publisher: publisher,
		events:    make(chan *out.SuggestionsUpdatedEvent, bufferSize),
		timeout:   defaultPublishTimeout,
		log:       log.With().Str("component", "event_forwarder").Logger(),
		done:      make(chan struct{}),
	}
}

var _ out.SuggestionEventSink = (*EventForwarder)(nil)

func (f *EventForwarder) Notify(event *out.SuggestionsUpdatedEvent) {
	if event == nil {
		return
	}
	select {
	case f.events <- event:
	default:
		f.dropped.Add(1)
		f.log.Warn().Str("event_type", string(event.Type)).Msg("forward buffer full, event dropped")
	}
}

// Run publishes queued events until ctx is cancelled, then drains what is
// already buffered.
func (f *EventForwarder) Run(ctx context.Context) {
	defer close(f.done)

	for {
		select {
		case event := <-f.events:
			f.publish(ctx, event)
		case <-ctx.Done():
			f.drain()
			return
		}
	}
}

// Wait blocks until Run has returned.
func (f *EventForwarder) Wait() {
	<-f.done
}

func (f *EventForwarder) drain() {
	for {
		select {
		case event := <-f.events:
			f.publish(context.Background(), event)
		default:
			return
		}
	}
}

func (f *EventForwarder) publish(parent context.Context, event *out.SuggestionsUpdatedEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), f.timeout)
	defer cancel()

	if err := f.publisher.PublishSuggestionsUpdated(ctx, event); err != nil {
		f.failed.Add(1)
		f.log.Error().Err(err).
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Msg("failed to forward suggestion event")
		return
	}
	f.published.Add(1)
}

// ForwarderStats holds delivery counters.
type ForwarderStats struct {
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
}

func (f *EventForwarder) Stats() ForwarderStats {
	return ForwarderStats{
		Published: f.published.Load(),
		Dropped:   f.dropped.Load(),
		Failed:    f.failed.Load(),
	}
}
