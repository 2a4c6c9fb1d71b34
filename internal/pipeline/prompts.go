package pipeline

import (
	"fmt"
	"strings"

	"github.com/korhaliv/projectlens/internal/model"
)

const analystSystem = "You are a senior business analyst extracting structured project intelligence from raw communication artifacts. Respond with JSON matching the requested shape exactly. Do not invent facts that are not supported by the text."

const classificationPrompt = `Classify the following project communication artifact.
Return a JSON object with these fields:
{
  "relevance": number between 0 and 1,
  "detected_type": short string naming the document kind,
  "summary": one or two sentence summary,
  "topics": array of short topic strings,
  "has_requirements": boolean,
  "has_decisions": boolean,
  "has_stakeholders": boolean
}

Artifact name: %s
Artifact content:
%s`

const requirementsPrompt = `Extract every distinct requirement stated or implied in the text below.
Return a JSON array; each element:
{
  "title": short imperative title,
  "description": fuller description,
  "category": one of functional, non_functional, business, technical, security, performance, compliance, integration,
  "priority": one of critical, high, medium, low,
  "confidence": number between 0 and 1,
  "source_excerpt": verbatim sentence(s) the requirement comes from,
  "rationale": why this counts as a requirement,
  "tags": array of short strings
}
Return [] if the text contains no requirements.

Text (window %d of %d):
%s`

const stakeholdersPrompt = `Identify every person mentioned in the project communications below.
Return a JSON array; each element:
{
  "name": person's name as written,
  "role": their role if stated,
  "department": department if stated,
  "influence_level": one of decision_maker, influencer, contributor, observer,
  "sentiment": one of supportive, neutral, resistant, unknown
}
Return [] if no people are mentioned.

Communications:
%s`

const decisionsPrompt = `Extract every project decision recorded in the communications below.
Return a JSON array; each element:
{
  "title": short title,
  "description": what was decided and why,
  "type": one of architectural, functional, business, technical, process,
  "status": one of proposed, approved, rejected, deferred,
  "confidence": number between 0 and 1,
  "source_excerpt": verbatim sentence(s) evidencing the decision
}
Return [] if no decisions are present.

Communications:
%s`

const timelinePrompt = `Extract dates, deadlines and milestones from the communications below.
Return a JSON array; each element:
{
  "title": short title,
  "description": what the event is,
  "date": ISO date if one is stated, otherwise omit,
  "type": one of milestone, deadline, decision, approval, dependency,
  "confidence": number between 0 and 1
}
Return [] if there are no timeline events.

Communications:
%s`

const conflictsPrompt = `The requirements below were extracted from one project. Find pairs or groups that contradict each other.
Return a JSON array; each element:
{
  "title": short title of the contradiction,
  "description": why the requirements conflict,
  "severity": one of critical, major, minor,
  "requirement_ids": array of at least two requirement ids from the list
}
Return [] if there are no conflicts.

Requirements:
%s`

const synthesisPrompt = `Compose a business requirements document from the structured project intelligence below.
Return a JSON object mapping section names to markdown bodies, with at least these sections:
"executive_summary", "objectives", "scope", "requirements_analysis", "stakeholder_analysis", "decision_log", "timeline", "risks_and_conflicts", "confidence_report".

Project intelligence:
%s`

func formatRequirementList(reqs []model.Requirement) string {
	var b strings.Builder
	for _, req := range reqs {
		fmt.Fprintf(&b, "- %s: %s", req.ID, req.Title)
		if strings.TrimSpace(req.Description) != "" {
			fmt.Fprintf(&b, " (%s)", req.Description)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// buildCorpus concatenates source contents with name headers, truncating at
// limit characters to bound prompt size.
func buildCorpus(sources []model.Source, limit int) string {
	var b strings.Builder
	for _, src := range sources {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== %s (%s) ===\n", src.Name, src.Kind)
		b.WriteString(src.Content)
		if limit > 0 && b.Len() >= limit {
			break
		}
	}
	corpus := b.String()
	if limit > 0 && len(corpus) > limit {
		corpus = corpus[:limit]
	}
	return corpus
}
