package http

import (
	"bufio"
	"time"

	"crm_server/adapter/out/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// SuggestionEventsHandler streams suggestion store events as Server-Sent Events.
type SuggestionEventsHandler struct {
	hub *realtime.SuggestionHub
	log zerolog.Logger
}

func NewSuggestionEventsHandler(hub *realtime.SuggestionHub, log zerolog.Logger) *SuggestionEventsHandler {
	return &SuggestionEventsHandler{
		hub: hub,
		log: log.With().Str("handler", "suggestion_events").Logger(),
	}
}

// Register must run before ResolutionHandler.Register so that /suggestions/events
// is not captured by /suggestions/:contactId.
func (h *SuggestionEventsHandler) Register(router fiber.Router) {
	router.Get("/suggestions/events", h.Stream)
}

func (h *SuggestionEventsHandler) Stream(c *fiber.Ctx) error {
	events := h.hub.Subscribe()
	heartbeat := h.hub.HeartbeatInterval()

	h.log.Info().Int("connections", h.hub.ConnectedCount()).Msg("SSE client connected")

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		defer func() {
			h.hub.Unsubscribe(events)
			h.log.Info().Msg("SSE client disconnected")
		}()

		w.WriteString("event: connected\n")
		w.WriteString("data: {\"status\":\"connected\"}\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}

				data, err := realtime.SerializeEvent(event)
				if err != nil {
					h.log.Error().Err(err).Msg("failed to serialize event")
					continue
				}

				w.WriteString("event: ")
				w.WriteString(string(event.Type))
				w.WriteString("\n")
				w.WriteString("data: ")
				w.Write(data)
				w.WriteString("\n\n")

				if err := w.Flush(); err != nil {
					h.log.Debug().Err(err).Msg("client disconnected during write")
					return
				}

			case <-ticker.C:
				w.WriteString(": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					h.log.Debug().Err(err).Msg("client disconnected during heartbeat")
					return
				}
			}
		}
	})

	return nil
}
