package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/korhaliv/projectlens/internal/model"
)

type extractedEvent struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
}

// extractTimeline runs one full-corpus extraction for dates, deadlines and
// milestones.
func (p *Pipeline) extractTimeline(ctx context.Context, rs *runState) error {
	const stage = "timeline_extraction"

	corpus := buildCorpus(rs.sources, p.cfg.CorpusCap)
	raw, err := p.generate(ctx, rs, stage, fmt.Sprintf(timelinePrompt, corpus))
	if err != nil {
		return err
	}
	var batch []extractedEvent
	if err := decodeModelJSON(stage, raw, &batch); err != nil {
		return err
	}

	inserted := 0
	for _, cand := range batch {
		title := strings.TrimSpace(cand.Title)
		if title == "" {
			continue
		}
		event := model.TimelineEvent{
			ID:          uuid.NewString(),
			ProjectID:   rs.projectID,
			Title:       title,
			Description: strings.TrimSpace(cand.Description),
			Date:        strings.TrimSpace(cand.Date),
			Type:        model.NormalizeTimelineType(cand.Type),
			Confidence:  model.ClampScore(cand.Confidence),
		}
		if err := p.store.InsertTimelineEvent(ctx, event); err != nil {
			return err
		}
		inserted++
	}
	p.logRun(ctx, rs, "timeline_extractor", "info",
		fmt.Sprintf("%d timeline events extracted", inserted), "")
	return nil
}
