package pipeline

import (
	"context"
	"fmt"

	"github.com/korhaliv/projectlens/internal/model"
	"github.com/korhaliv/projectlens/internal/store"
)

type classificationResult struct {
	Relevance       float64  `json:"relevance"`
	DetectedType    string   `json:"detected_type"`
	Summary         string   `json:"summary"`
	Topics          []string `json:"topics"`
	HasRequirements bool     `json:"has_requirements"`
	HasDecisions    bool     `json:"has_decisions"`
	HasStakeholders bool     `json:"has_stakeholders"`
}

// classifySources scores every source for relevance and attaches the
// detected type, summary and content flags to the source record.
func (p *Pipeline) classifySources(ctx context.Context, rs *runState) error {
	const stage = "classification"
	for i := range rs.sources {
		src := &rs.sources[i]
		if err := p.store.UpdateSourceStatus(ctx, rs.projectID, src.ID, model.SourceClassifying); err != nil {
			return err
		}
		prompt := fmt.Sprintf(classificationPrompt, src.Name, src.Content)
		raw, err := p.generate(ctx, rs, stage, prompt)
		if err != nil {
			return err
		}
		var result classificationResult
		if err := decodeModelJSON(stage, raw, &result); err != nil {
			return err
		}
		applied := store.SourceClassification{
			Relevance:       model.ClampScore(result.Relevance),
			DetectedType:    result.DetectedType,
			Summary:         result.Summary,
			Topics:          result.Topics,
			HasRequirements: result.HasRequirements,
			HasDecisions:    result.HasDecisions,
			HasStakeholders: result.HasStakeholders,
		}
		if err := p.store.ApplyClassification(ctx, rs.projectID, src.ID, applied); err != nil {
			return err
		}
		src.Status = model.SourceClassified
		src.Relevance = applied.Relevance
		src.HasRequirements = result.HasRequirements
		src.HasDecisions = result.HasDecisions
		src.HasStakeholders = result.HasStakeholders
		p.logRun(ctx, rs, "classifier", "info",
			fmt.Sprintf("source %s classified", src.Name),
			fmt.Sprintf("relevance=%.2f type=%s", applied.Relevance, result.DetectedType))
	}
	return nil
}
