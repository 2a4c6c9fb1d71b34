package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/korhaliv/projectlens/internal/model"
)

type extractedStakeholder struct {
	Name           string `json:"name"`
	Role           string `json:"role"`
	Department     string `json:"department"`
	InfluenceLevel string `json:"influence_level"`
	Sentiment      string `json:"sentiment"`
}

// extractStakeholders runs one capped-corpus extraction and upserts every
// named person, linking each to the sources that mention them. A
// stakeholder never mentioned verbatim is linked to every source as a
// conservative fallback with reduced strength.
func (p *Pipeline) extractStakeholders(ctx context.Context, rs *runState) error {
	const stage = "stakeholder_extraction"

	corpus := buildCorpus(rs.sources, p.cfg.CorpusCap)
	raw, err := p.generate(ctx, rs, stage, fmt.Sprintf(stakeholdersPrompt, corpus))
	if err != nil {
		return err
	}
	var batch []extractedStakeholder
	if err := decodeModelJSON(stage, raw, &batch); err != nil {
		return err
	}

	for _, cand := range batch {
		name := strings.TrimSpace(cand.Name)
		if name == "" {
			continue
		}
		lower := strings.ToLower(name)
		var mentions []model.Source
		for _, src := range rs.sources {
			if strings.Contains(strings.ToLower(src.Content), lower) {
				mentions = append(mentions, src)
			}
		}

		sh := model.Stakeholder{
			ID:         uuid.NewString(),
			ProjectID:  rs.projectID,
			Name:       name,
			Role:       strings.TrimSpace(cand.Role),
			Department: strings.TrimSpace(cand.Department),
			Influence:  model.NormalizeInfluence(cand.InfluenceLevel),
			Sentiment:  model.NormalizeSentiment(cand.Sentiment),
		}
		for _, src := range mentions {
			sh.SourceIDs = append(sh.SourceIDs, src.ID)
		}
		storedID, err := p.store.UpsertStakeholder(ctx, sh)
		if err != nil {
			return err
		}
		rs.counters.StakeholdersFound++

		linkTargets := mentions
		strength := 0.9
		if len(linkTargets) == 0 {
			linkTargets = rs.sources
			strength = 0.5
		}
		for _, src := range linkTargets {
			link := model.TraceLink{
				ProjectID:    rs.projectID,
				FromType:     model.NodeSource,
				FromID:       src.ID,
				ToType:       model.NodeStakeholder,
				ToID:         storedID,
				Relationship: "mentioned_in",
				Strength:     strength,
			}
			if err := p.store.InsertTraceLink(ctx, link); err != nil {
				return err
			}
		}
	}
	p.logRun(ctx, rs, "stakeholder_extractor", "info",
		fmt.Sprintf("%d stakeholders extracted", rs.counters.StakeholdersFound), "")
	return nil
}
