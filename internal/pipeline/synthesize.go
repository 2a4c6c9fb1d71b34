package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/korhaliv/projectlens/internal/model"
)

// DocTypeBRD is the document type key for the synthesized business
// requirements document.
const DocTypeBRD = "brd"

// synthesizeDocuments aggregates the extracted entity set into one
// structured synthesis request and persists the resulting report as a new
// document version, superseding prior versions.
func (p *Pipeline) synthesizeDocuments(ctx context.Context, rs *runState) error {
	const stage = "document_synthesis"

	intelligence, err := p.aggregateIntelligence(ctx, rs)
	if err != nil {
		return err
	}
	raw, err := p.generate(ctx, rs, stage, fmt.Sprintf(synthesisPrompt, intelligence))
	if err != nil {
		return err
	}
	var sections map[string]string
	if err := decodeModelJSON(stage, raw, &sections); err != nil {
		return err
	}
	if len(sections) == 0 {
		return &ParseError{Stage: stage, Snippet: snippet(raw), Err: fmt.Errorf("synthesis returned no sections")}
	}

	version, err := p.store.InsertDocumentVersion(ctx, model.GeneratedDocument{
		ProjectID: rs.projectID,
		DocType:   DocTypeBRD,
		Sections:  sections,
	})
	if err != nil {
		return err
	}
	p.logRun(ctx, rs, "synthesizer", "info",
		fmt.Sprintf("document version %d generated", version),
		fmt.Sprintf("sections=%d", len(sections)))
	return nil
}

// aggregateIntelligence renders counts, breakdowns and capped per-entity
// text blocks for the synthesis prompt.
func (p *Pipeline) aggregateIntelligence(ctx context.Context, rs *runState) (string, error) {
	requirements, err := p.store.ListRequirements(ctx, rs.projectID)
	if err != nil {
		return "", err
	}
	stakeholders, err := p.store.ListStakeholders(ctx, rs.projectID)
	if err != nil {
		return "", err
	}
	decisions, err := p.store.ListDecisions(ctx, rs.projectID)
	if err != nil {
		return "", err
	}
	events, err := p.store.ListTimelineEvents(ctx, rs.projectID)
	if err != nil {
		return "", err
	}
	conflicts, err := p.store.ListConflicts(ctx, rs.projectID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Counts: %d requirements, %d stakeholders, %d decisions, %d timeline events, %d conflicts.\n\n",
		len(requirements), len(stakeholders), len(decisions), len(events), len(conflicts))

	if len(requirements) > 0 {
		byCategory := make(map[model.RequirementCategory]int)
		byPriority := make(map[model.Priority]int)
		total := 0.0
		for _, req := range requirements {
			byCategory[req.Category]++
			byPriority[req.Priority]++
			total += req.Confidence
		}
		fmt.Fprintf(&b, "Average requirement confidence: %.2f\n", total/float64(len(requirements)))
		b.WriteString("Category breakdown:")
		for category, n := range byCategory {
			fmt.Fprintf(&b, " %s=%d", category, n)
		}
		b.WriteString("\nPriority breakdown:")
		for priority, n := range byPriority {
			fmt.Fprintf(&b, " %s=%d", priority, n)
		}
		b.WriteString("\n\nRequirements:\n")
		b.WriteString(formatRequirementList(requirements))
	}

	if len(stakeholders) > 0 {
		b.WriteString("\nStakeholders:\n")
		for _, sh := range stakeholders {
			fmt.Fprintf(&b, "- %s (%s, influence: %s, sentiment: %s)\n", sh.Name, sh.Role, sh.Influence, sh.Sentiment)
		}
	}
	if len(decisions) > 0 {
		b.WriteString("\nDecisions:\n")
		for _, dec := range decisions {
			fmt.Fprintf(&b, "- %s [%s/%s]: %s\n", dec.ID, dec.Type, dec.Status, dec.Title)
		}
	}
	if len(events) > 0 {
		b.WriteString("\nTimeline:\n")
		for _, event := range events {
			date := event.Date
			if date == "" {
				date = "undated"
			}
			fmt.Fprintf(&b, "- [%s] %s (%s)\n", date, event.Title, event.Type)
		}
	}
	if len(conflicts) > 0 {
		b.WriteString("\nConflicts:\n")
		for _, conflict := range conflicts {
			fmt.Fprintf(&b, "- %s (%s): %s [%s]\n", conflict.ID, conflict.Severity, conflict.Title,
				strings.Join(conflict.RequirementIDs, ", "))
		}
	}

	out := b.String()
	if p.cfg.CorpusCap > 0 && len(out) > p.cfg.CorpusCap {
		out = out[:p.cfg.CorpusCap]
	}
	return out, nil
}
