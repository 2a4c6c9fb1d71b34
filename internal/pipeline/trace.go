package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/korhaliv/projectlens/internal/model"
)

// severityStrength maps conflict severity to the strength of its blocks
// edges.
func severityStrength(severity model.ConflictSeverity) float64 {
	switch severity {
	case model.SeverityCritical:
		return 0.95
	case model.SeverityMajor:
		return 0.8
	default:
		return 0.6
	}
}

// buildTraceability derives cross-entity edges over the full accumulated
// entity set. Purely additive: it never deletes or mutates entities, so
// re-running it in isolation is safe.
func (p *Pipeline) buildTraceability(ctx context.Context, rs *runState) error {
	requirements, err := p.store.ListRequirements(ctx, rs.projectID)
	if err != nil {
		return err
	}
	stakeholders, err := p.store.ListStakeholders(ctx, rs.projectID)
	if err != nil {
		return err
	}
	decisions, err := p.store.ListDecisions(ctx, rs.projectID)
	if err != nil {
		return err
	}
	conflicts, err := p.store.ListConflicts(ctx, rs.projectID)
	if err != nil {
		return err
	}
	events, err := p.store.ListTimelineEvents(ctx, rs.projectID)
	if err != nil {
		return err
	}

	linked := 0
	add := func(link model.TraceLink) error {
		link.ProjectID = rs.projectID
		if err := p.store.InsertTraceLink(ctx, link); err != nil {
			return err
		}
		linked++
		return nil
	}

	// Requirement proposed_by Stakeholder when the evidence excerpt
	// names the person.
	for _, req := range requirements {
		excerpt := strings.ToLower(req.Excerpt)
		if excerpt == "" {
			continue
		}
		for _, sh := range stakeholders {
			if strings.Contains(excerpt, strings.ToLower(sh.Name)) {
				err := add(model.TraceLink{
					FromType: model.NodeRequirement, FromID: req.ID,
					ToType: model.NodeStakeholder, ToID: sh.ID,
					Relationship: "proposed_by", Strength: 0.85,
				})
				if err != nil {
					return err
				}
			}
		}
	}

	// Decision affects Requirement by direct mention, with a keyword
	// overlap fallback so every decision links to at least one
	// requirement.
	for _, dec := range decisions {
		text := strings.ToLower(dec.Title + " " + dec.Description)
		matched := false
		for _, req := range requirements {
			if mentionsRequirement(text, req) {
				err := add(model.TraceLink{
					FromType: model.NodeDecision, FromID: dec.ID,
					ToType: model.NodeRequirement, ToID: req.ID,
					Relationship: "affects", Strength: 0.75,
				})
				if err != nil {
					return err
				}
				matched = true
			}
		}
		if !matched && len(requirements) > 0 {
			best := bestKeywordMatch(text, requirements)
			err := add(model.TraceLink{
				FromType: model.NodeDecision, FromID: dec.ID,
				ToType: model.NodeRequirement, ToID: best.ID,
				Relationship: "affects", Strength: 0.5,
			})
			if err != nil {
				return err
			}
		}
	}

	// Conflict blocks each requirement it contradicts, strength graded
	// by severity.
	for _, conflict := range conflicts {
		strength := severityStrength(conflict.Severity)
		for _, reqID := range conflict.RequirementIDs {
			err := add(model.TraceLink{
				FromType: model.NodeConflict, FromID: conflict.ID,
				ToType: model.NodeRequirement, ToID: reqID,
				Relationship: "blocks", Strength: strength,
			})
			if err != nil {
				return err
			}
		}
	}

	// Timeline events point back at their evidencing source, first
	// source as fallback.
	for _, event := range events {
		sourceID := event.SourceID
		if sourceID == "" && len(rs.sources) > 0 {
			sourceID = rs.sources[0].ID
		}
		if sourceID == "" {
			continue
		}
		err := add(model.TraceLink{
			FromType: model.NodeTimeline, FromID: event.ID,
			ToType: model.NodeSource, ToID: sourceID,
			Relationship: "mentioned_in", Strength: event.Confidence,
		})
		if err != nil {
			return err
		}
	}

	p.logRun(ctx, rs, "trace_linker", "info", fmt.Sprintf("%d trace links derived", linked), "")
	return nil
}

// mentionsRequirement reports whether the decision text contains the
// requirement's id or a prefix of its title.
func mentionsRequirement(text string, req model.Requirement) bool {
	if strings.Contains(text, strings.ToLower(req.ID)) {
		return true
	}
	title := strings.ToLower(strings.TrimSpace(req.Title))
	if title == "" {
		return false
	}
	if len(title) > 30 {
		title = title[:30]
	}
	return strings.Contains(text, title)
}

// bestKeywordMatch scores each requirement by how many of its title words
// longer than three characters appear in the decision text and returns the
// best scorer, first requirement on a total miss.
func bestKeywordMatch(text string, requirements []model.Requirement) model.Requirement {
	best := requirements[0]
	bestScore := -1
	for _, req := range requirements {
		score := 0
		for _, word := range strings.Fields(strings.ToLower(req.Title)) {
			if len(word) > 3 && strings.Contains(text, word) {
				score++
			}
		}
		if score > bestScore {
			best = req
			bestScore = score
		}
	}
	return best
}
