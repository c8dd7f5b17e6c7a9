package http

import (
	"context"
	"errors"
	"sort"

	"crm_server/core/domain"
	"crm_server/core/port/in"
	"crm_server/core/port/out"
	"crm_server/core/service/resolution"
	"crm_server/infra/middleware"
	"crm_server/pkg/apperr"
	"crm_server/pkg/metrics"
	"crm_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultComputeLimit = 100
	maxComputeLimit     = 500
)

// ResolutionHandler exposes the suggestion workflow over HTTP.
type ResolutionHandler struct {
	service   in.ResolutionService
	contacts  out.ContactRepository
	decisions out.ResolutionLogRepository
	latency   *metrics.LatencyRegistry
	limiter   middleware.Limiter
}

func NewResolutionHandler(service in.ResolutionService, contacts out.ContactRepository) *ResolutionHandler {
	return &ResolutionHandler{service: service, contacts: contacts}
}

// WithDecisionLog enables GET /suggestions/:contactId/decisions.
func (h *ResolutionHandler) WithDecisionLog(decisions out.ResolutionLogRepository) *ResolutionHandler {
	h.decisions = decisions
	return h
}

// WithLatency adds per-stage latency to GET /suggestions/stats.
func (h *ResolutionHandler) WithLatency(latency *metrics.LatencyRegistry) *ResolutionHandler {
	h.latency = latency
	return h
}

// WithComputeLimiter throttles POST /suggestions/compute per client.
func (h *ResolutionHandler) WithComputeLimiter(limiter middleware.Limiter) *ResolutionHandler {
	h.limiter = limiter
	return h
}

func (h *ResolutionHandler) Register(router fiber.Router) {
	suggestions := router.Group("/suggestions")

	if h.limiter != nil {
		suggestions.Post("/compute", middleware.RateLimit(h.limiter, "compute"), h.Compute)
	} else {
		suggestions.Post("/compute", h.Compute)
	}
	suggestions.Get("/", h.List)
	suggestions.Get("/stats", h.Stats)

	suggestions.Get("/:contactId", h.Get)
	suggestions.Get("/:contactId/decisions", h.Decisions)
	suggestions.Post("/:contactId/accept", h.Accept)
	suggestions.Post("/:contactId/reject", h.Reject)
}

// Compute runs a suggestion pass over one page of unassociated contacts.
func (h *ResolutionHandler) Compute(c *fiber.Ctx) error {
	ctx := c.UserContext()
	page := response.GetPagination(c, defaultComputeLimit, maxComputeLimit)

	contacts, total, err := h.contacts.ListUnassociated(ctx, &out.ContactListQuery{
		Search: c.Query("search"),
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		return apperr.DatabaseError("list contacts", err)
	}

	results, err := h.service.ComputeSuggestions(ctx, contacts)
	if err != nil {
		return computeError(err)
	}

	var gen uint64
	for _, s := range results {
		gen = s.Generation
		break
	}
	if gen == 0 {
		_, gen = h.service.Snapshot()
	}

	return response.OKWithMeta(c, sortedSuggestions(results, ""), &response.Meta{
		Total:      total,
		Limit:      page.Limit,
		Offset:     page.Offset,
		HasMore:    page.Offset+len(contacts) < total,
		Generation: gen,
	})
}

func computeError(err error) error {
	switch {
	case errors.Is(err, resolution.ErrSuperseded):
		return apperr.Conflict("suggestion pass superseded by a newer pass").WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Timeout("compute suggestions")
	case resolution.IsLookupFailure(err):
		return apperr.LookupFailed("compute suggestions", err)
	default:
		return apperr.InternalWithError(err)
	}
}

// List returns the current suggestion map, optionally filtered by ?kind=.
func (h *ResolutionHandler) List(c *fiber.Ctx) error {
	kind := domain.SuggestionKind(c.Query("kind"))
	if kind != "" && kind != domain.SuggestionExisting && kind != domain.SuggestionCreate {
		return apperr.InvalidInput("kind", "must be existing or create")
	}

	snapshot, gen := h.service.Snapshot()
	list := sortedSuggestions(snapshot, kind)
	return response.OKWithMeta(c, list, &response.Meta{Total: len(list), Generation: gen})
}

// SuggestionStats summarizes the current suggestion map.
type SuggestionStats struct {
	Generation uint64                    `json:"generation"`
	Pending    int                       `json:"pending"`
	Existing   int                       `json:"existing"`
	Create     int                       `json:"create"`
	Latency    map[string]map[string]any `json:"latency,omitempty"`
}

func (h *ResolutionHandler) Stats(c *fiber.Ctx) error {
	snapshot, gen := h.service.Snapshot()

	stats := SuggestionStats{Generation: gen, Pending: len(snapshot)}
	for _, s := range snapshot {
		if s.IsExisting() {
			stats.Existing++
		} else {
			stats.Create++
		}
	}

	if h.latency != nil {
		stats.Latency = make(map[string]map[string]any)
		for stage, st := range h.latency.AllStats() {
			stats.Latency[stage] = st.ToMap()
		}
	}

	return response.OK(c, stats)
}

func (h *ResolutionHandler) Get(c *fiber.Ctx) error {
	contactID, err := ParseIDParam(c, "contactId")
	if err != nil {
		return err
	}

	s, ok := h.service.Suggestion(contactID)
	if !ok {
		return apperr.SuggestionNotFound(contactID)
	}
	return response.OK(c, s)
}

// Accept applies the pending suggestion and returns the refreshed contact.
func (h *ResolutionHandler) Accept(c *fiber.Ctx) error {
	ctx := c.UserContext()
	contactID, err := ParseIDParam(c, "contactId")
	if err != nil {
		return err
	}

	contact, err := h.contacts.GetByID(ctx, contactID)
	if err != nil {
		return lookupError("contact", err)
	}

	if err := h.service.AcceptSuggestion(ctx, contact, nil); err != nil {
		return err
	}

	refreshed, err := h.contacts.GetByID(ctx, contactID)
	if err != nil {
		return lookupError("contact", err)
	}
	return response.OK(c, refreshed)
}

// Reject discards the pending suggestion and returns the manual flow context.
func (h *ResolutionHandler) Reject(c *fiber.Ctx) error {
	ctx := c.UserContext()
	contactID, err := ParseIDParam(c, "contactId")
	if err != nil {
		return err
	}

	contact, err := h.contacts.GetByID(ctx, contactID)
	if err != nil {
		return lookupError("contact", err)
	}

	flow, err := h.service.RejectSuggestion(ctx, contact)
	if err != nil {
		return err
	}
	return response.OK(c, flow)
}

func (h *ResolutionHandler) Decisions(c *fiber.Ctx) error {
	if h.decisions == nil {
		return apperr.Unavailable("decision log")
	}
	contactID, err := ParseIDParam(c, "contactId")
	if err != nil {
		return err
	}

	decisions, err := h.decisions.ListDecisions(c.UserContext(), contactID, c.QueryInt("limit", 20))
	if err != nil {
		return apperr.DatabaseError("list decisions", err)
	}
	return response.OKWithMeta(c, decisions, &response.Meta{Total: len(decisions)})
}

func sortedSuggestions(m map[int64]*domain.Suggestion, kind domain.SuggestionKind) []*domain.Suggestion {
	list := make([]*domain.Suggestion, 0, len(m))
	for _, s := range m {
		if kind != "" && s.Kind != kind {
			continue
		}
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ContactID < list[j].ContactID })
	return list
}
