package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/goccy/go-json"

	"crm_server/config"
	"crm_server/core/domain"
	"crm_server/core/port/out"
	"crm_server/pkg/logger"
)

// ComputeReport is what -mode=compute prints.
type ComputeReport struct {
	Generation  uint64               `json:"generation"`
	Contacts    int                  `json:"contacts"`
	Total       int                  `json:"total"`
	Suggestions []*domain.Suggestion `json:"suggestions"`
}

// RunCompute runs one suggestion pass over the first page of unassociated
// contacts and writes the result to w as JSON.
func RunCompute(ctx context.Context, cfg *config.Config, w io.Writer) error {
	deps, cleanup, err := NewDependencies(ctx, cfg, NewZerolog(cfg, os.Stderr))
	if err != nil {
		return err
	}
	defer cleanup()

	contacts, total, err := deps.ContactRepo.ListUnassociated(ctx, &out.ContactListQuery{Limit: cfg.ComputePageSize})
	if err != nil {
		return fmt.Errorf("list contacts: %w", err)
	}

	results, err := deps.ResolutionService.ComputeSuggestions(ctx, contacts)
	if err != nil {
		return fmt.Errorf("compute suggestions: %w", err)
	}
	_, gen := deps.ResolutionService.Snapshot()

	report := ComputeReport{
		Generation:  gen,
		Contacts:    len(contacts),
		Total:       total,
		Suggestions: make([]*domain.Suggestion, 0, len(results)),
	}
	for _, s := range results {
		report.Suggestions = append(report.Suggestions, s)
	}
	sort.Slice(report.Suggestions, func(i, j int) bool {
		return report.Suggestions[i].ContactID < report.Suggestions[j].ContactID
	})

	logger.Info("Computed %d suggestions for %d contacts", len(report.Suggestions), len(contacts))

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
