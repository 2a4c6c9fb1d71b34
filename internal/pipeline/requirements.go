package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/korhaliv/projectlens/internal/model"
)

type extractedRequirement struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Priority      string   `json:"priority"`
	Confidence    float64  `json:"confidence"`
	SourceExcerpt string   `json:"source_excerpt"`
	Rationale     string   `json:"rationale"`
	Tags          []string `json:"tags"`
}

// extractRequirements walks every source, chunking oversized content, and
// persists the deduplicated requirement set. Requirements re-discovered in
// overlapping chunks merge by exact normalized title; candidates that
// near-duplicate an already-persisted requirement are skipped so repeated
// runs on unchanged sources add nothing.
func (p *Pipeline) extractRequirements(ctx context.Context, rs *runState) error {
	const stage = "requirement_extraction"

	existing, err := p.store.ListRequirements(ctx, rs.projectID)
	if err != nil {
		return err
	}
	existingTitles := make([]string, 0, len(existing))
	existingLabels := make([]string, 0, len(existing))
	for _, req := range existing {
		existingTitles = append(existingTitles, req.Title)
		existingLabels = append(existingLabels, req.ID)
	}
	alloc := newLabelAllocator("REQ", existingLabels)

	for _, src := range rs.sources {
		if err := p.store.UpdateSourceStatus(ctx, rs.projectID, src.ID, model.SourceExtracting); err != nil {
			return err
		}

		chunks := SplitContent(src.Content, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
		candidates := make([]extractedRequirement, 0)
		seenTitles := make(map[string]struct{})
		for _, chunk := range chunks {
			prompt := fmt.Sprintf(requirementsPrompt, chunk.Index+1, chunk.Total, chunk.Text)
			raw, err := p.generate(ctx, rs, stage, prompt)
			if err != nil {
				return err
			}
			var batch []extractedRequirement
			if err := decodeModelJSON(stage, raw, &batch); err != nil {
				return err
			}
			for _, cand := range batch {
				title := strings.TrimSpace(cand.Title)
				if title == "" {
					continue
				}
				key := strings.ToLower(title)
				if _, ok := seenTitles[key]; ok {
					continue
				}
				seenTitles[key] = struct{}{}
				cand.Title = title
				candidates = append(candidates, cand)
			}
		}

		inserted := 0
		for _, cand := range candidates {
			if isDuplicateTitle(cand.Title, existingTitles) {
				continue
			}
			req := model.Requirement{
				ID:          alloc.Next(),
				ProjectID:   rs.projectID,
				Title:       cand.Title,
				Description: strings.TrimSpace(cand.Description),
				Category:    model.NormalizeCategory(cand.Category),
				Priority:    model.NormalizePriority(cand.Priority),
				Confidence:  model.ClampScore(cand.Confidence),
				SourceID:    src.ID,
				Excerpt:     strings.TrimSpace(cand.SourceExcerpt),
				Rationale:   strings.TrimSpace(cand.Rationale),
				Tags:        cand.Tags,
			}
			if err := p.store.InsertRequirement(ctx, req); err != nil {
				return err
			}
			link := model.TraceLink{
				ProjectID:    rs.projectID,
				FromType:     model.NodeSource,
				FromID:       src.ID,
				ToType:       model.NodeRequirement,
				ToID:         req.ID,
				Relationship: "extracted_from",
				Strength:     req.Confidence,
			}
			if err := p.store.InsertTraceLink(ctx, link); err != nil {
				return err
			}
			existingTitles = append(existingTitles, req.Title)
			rs.counters.RequirementsFound++
			inserted++
		}

		if err := p.store.UpdateSourceStatus(ctx, rs.projectID, src.ID, model.SourceExtracted); err != nil {
			return err
		}
		rs.counters.SourcesProcessed++
		p.logRun(ctx, rs, "requirement_extractor", "info",
			fmt.Sprintf("source %s processed", src.Name),
			fmt.Sprintf("chunks=%d candidates=%d inserted=%d", len(chunks), len(candidates), inserted))
	}
	return nil
}
