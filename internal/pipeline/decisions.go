package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/korhaliv/projectlens/internal/model"
)

type extractedDecision struct {
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Type          string  `json:"type"`
	Status        string  `json:"status"`
	Confidence    float64 `json:"confidence"`
	SourceExcerpt string  `json:"source_excerpt"`
}

// extractDecisions runs one full-corpus extraction and persists every
// decision, attributing each to the source whose text contains a prefix of
// the decision's excerpt, with the first source as fallback.
func (p *Pipeline) extractDecisions(ctx context.Context, rs *runState) error {
	const stage = "decision_extraction"

	existing, err := p.store.ListDecisions(ctx, rs.projectID)
	if err != nil {
		return err
	}
	labels := make([]string, 0, len(existing))
	for _, dec := range existing {
		labels = append(labels, dec.ID)
	}
	alloc := newLabelAllocator("DEC", labels)

	corpus := buildCorpus(rs.sources, p.cfg.CorpusCap)
	raw, err := p.generate(ctx, rs, stage, fmt.Sprintf(decisionsPrompt, corpus))
	if err != nil {
		return err
	}
	var batch []extractedDecision
	if err := decodeModelJSON(stage, raw, &batch); err != nil {
		return err
	}

	for _, cand := range batch {
		title := strings.TrimSpace(cand.Title)
		if title == "" {
			continue
		}
		dec := model.Decision{
			ID:          alloc.Next(),
			ProjectID:   rs.projectID,
			Title:       title,
			Description: strings.TrimSpace(cand.Description),
			Type:        model.NormalizeDecisionType(cand.Type),
			Status:      model.NormalizeDecisionStatus(cand.Status),
			Confidence:  model.ClampScore(cand.Confidence),
			SourceID:    p.resolveExcerptSource(rs.sources, cand.SourceExcerpt),
			Excerpt:     strings.TrimSpace(cand.SourceExcerpt),
		}
		if err := p.store.InsertDecision(ctx, dec); err != nil {
			return err
		}
		rs.counters.DecisionsFound++
	}
	p.logRun(ctx, rs, "decision_extractor", "info",
		fmt.Sprintf("%d decisions extracted", rs.counters.DecisionsFound), "")
	return nil
}

// resolveExcerptSource finds the source whose content contains the first
// 100 characters of the excerpt, falling back to the first source.
func (p *Pipeline) resolveExcerptSource(sources []model.Source, excerpt string) string {
	if len(sources) == 0 {
		return ""
	}
	needle := strings.TrimSpace(excerpt)
	if len(needle) > 100 {
		needle = needle[:100]
	}
	if needle != "" {
		for _, src := range sources {
			if strings.Contains(src.Content, needle) {
				return src.ID
			}
		}
	}
	return sources[0].ID
}
