package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/korhaliv/projectlens/internal/model"
)

type extractedConflict struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Severity       string   `json:"severity"`
	RequirementIDs []string `json:"requirement_ids"`
}

// detectConflicts asks the model for contradicting requirement sets. A
// returned conflict that names fewer than two resolvable requirement ids
// is discarded rather than failing the stage.
//
// Conflict labels are numbered by position in the current batch, not by
// the cross-run allocator the other entity kinds use. Regenerate runs
// therefore restart conflict numbering at CON-001; downstream consumers
// rely on this per-batch numbering.
func (p *Pipeline) detectConflicts(ctx context.Context, rs *runState) error {
	const stage = "conflict_detection"

	requirements, err := p.store.ListRequirements(ctx, rs.projectID)
	if err != nil {
		return err
	}
	if len(requirements) < 2 {
		p.logRun(ctx, rs, "conflict_detector", "info", "fewer than two requirements, skipping", "")
		return nil
	}
	known := make(map[string]struct{}, len(requirements))
	for _, req := range requirements {
		known[req.ID] = struct{}{}
	}

	raw, err := p.generate(ctx, rs, stage, fmt.Sprintf(conflictsPrompt, formatRequirementList(requirements)))
	if err != nil {
		return err
	}
	var batch []extractedConflict
	if err := decodeModelJSON(stage, raw, &batch); err != nil {
		return err
	}

	position := 0
	for _, cand := range batch {
		ids := resolveRequirementIDs(cand.RequirementIDs, known)
		if len(ids) < 2 {
			p.logRun(ctx, rs, "conflict_detector", "warn",
				"conflict discarded", fmt.Sprintf("title=%q resolved_ids=%d", cand.Title, len(ids)))
			continue
		}
		position++
		conflict := model.Conflict{
			ID:             fmt.Sprintf("CON-%03d", position),
			ProjectID:      rs.projectID,
			Title:          strings.TrimSpace(cand.Title),
			Description:    strings.TrimSpace(cand.Description),
			Severity:       model.NormalizeSeverity(cand.Severity),
			RequirementIDs: ids,
		}
		if err := p.store.InsertConflict(ctx, conflict); err != nil {
			return err
		}
		rs.counters.ConflictsFound++
	}
	p.logRun(ctx, rs, "conflict_detector", "info",
		fmt.Sprintf("%d conflicts detected", rs.counters.ConflictsFound), "")
	return nil
}

func resolveRequirementIDs(raw []string, known map[string]struct{}) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
