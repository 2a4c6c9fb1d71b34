package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/korhaliv/projectlens/internal/common"
	"github.com/korhaliv/projectlens/internal/config"
	"github.com/korhaliv/projectlens/internal/llm"
	"github.com/korhaliv/projectlens/internal/model"
	"github.com/korhaliv/projectlens/internal/store"
)

// Options controls one pipeline invocation.
type Options struct {
	// Regenerate wipes previously extracted entities before the run.
	// Sources and run history are preserved.
	Regenerate bool
	// PreferredProvider overrides the configured generation backend for
	// this run when its API key is available.
	PreferredProvider string
}

// runState is the per-run context threaded through every stage: the run
// identity, the provider resolved for this run, the loaded source set and
// the running counters persisted with each status transition.
type runState struct {
	runID     string
	projectID string
	provider  llm.Provider
	sources   []model.Source
	counters  model.RunCounters
}

// Pipeline sequences the extraction stages for a project and owns the
// single-run-per-project exclusivity and cancellation registry.
type Pipeline struct {
	store    Store
	provider llm.Provider
	cfg      config.Config
	logger   *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New constructs a Pipeline over the given store and default provider.
func New(st Store, provider llm.Provider, cfg config.Config) *Pipeline {
	return &Pipeline{
		store:    st,
		provider: provider,
		cfg:      cfg,
		logger:   common.Logger(),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// stageProgress maps each run status to the project progress percentage
// shown while that stage executes.
var stageProgress = map[model.RunStatus]int{
	model.RunIngesting:              5,
	model.RunClassifying:            15,
	model.RunExtractingRequirements: 35,
	model.RunExtractingStakeholders: 50,
	model.RunExtractingDecisions:    60,
	model.RunExtractingTimeline:     70,
	model.RunDetectingConflicts:     80,
	model.RunBuildingTraceability:   90,
	model.RunGeneratingDocuments:    95,
	model.RunCompleted:              100,
}

// Run executes the full extraction pipeline for a project, blocking until
// the run reaches a terminal state. It returns the final counters. A
// concurrent call for the same project fails with ErrRunInProgress; the
// claim is transactional, so two racing calls cannot both start.
func (p *Pipeline) Run(ctx context.Context, projectID string, opts Options) (model.RunCounters, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return model.RunCounters{}, errors.New("pipeline: project id required")
	}
	if _, err := p.store.GetProject(ctx, projectID); err != nil {
		return model.RunCounters{}, err
	}

	rs := &runState{
		runID:     uuid.NewString(),
		projectID: projectID,
		provider:  p.resolveProvider(ctx, opts.PreferredProvider),
	}
	if err := p.store.ClaimRun(ctx, rs.runID, projectID, time.Now()); err != nil {
		if errors.Is(err, store.ErrRunActive) {
			return model.RunCounters{}, ErrRunInProgress
		}
		return model.RunCounters{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.registerCancel(projectID, cancel)
	defer p.unregisterCancel(projectID, cancel)

	// Terminal-state writes must land even when the caller's context is
	// gone, or the claimed run stays non-terminal and blocks every later
	// claim for the project.
	persistCtx := context.WithoutCancel(ctx)

	p.logger.Info("pipeline: run started", "project", projectID, "run", rs.runID,
		"provider", rs.provider.Name(), "regenerate", opts.Regenerate)

	if err := p.execute(runCtx, rs, opts); err != nil {
		status := model.RunFailed
		if errors.Is(err, context.Canceled) {
			status = model.RunCancelled
		}
		if finishErr := p.store.FinishRun(persistCtx, rs.runID, status, rs.counters, err.Error()); finishErr != nil {
			p.logger.Error("pipeline: recording terminal run state failed", "run", rs.runID, "error", finishErr)
		}
		if resetErr := p.store.SetProjectStatus(persistCtx, projectID, model.ProjectDraft, 0); resetErr != nil {
			p.logger.Error("pipeline: resetting project after failure failed", "project", projectID, "error", resetErr)
		}
		p.logRun(persistCtx, rs, "controller", "error", "run ended", err.Error())
		p.logger.Warn("pipeline: run ended", "project", projectID, "run", rs.runID, "status", status, "error", err)
		return rs.counters, err
	}

	if err := p.store.FinishRun(persistCtx, rs.runID, model.RunCompleted, rs.counters, ""); err != nil {
		return rs.counters, fmt.Errorf("record completed run: %w", err)
	}
	if err := p.store.SetProjectStatus(persistCtx, projectID, model.ProjectActive, stageProgress[model.RunCompleted]); err != nil {
		return rs.counters, fmt.Errorf("activate project: %w", err)
	}
	p.logRun(persistCtx, rs, "controller", "info", "run completed", "")
	p.logger.Info("pipeline: run completed", "project", projectID, "run", rs.runID,
		"requirements", rs.counters.RequirementsFound, "stakeholders", rs.counters.StakeholdersFound,
		"decisions", rs.counters.DecisionsFound, "conflicts", rs.counters.ConflictsFound)
	return rs.counters, nil
}

// execute drives the linear stage sequence. Each stage's writes are
// committed before the next stage reads the accumulated entity set.
func (p *Pipeline) execute(ctx context.Context, rs *runState, opts Options) error {
	if opts.Regenerate {
		if err := p.store.DeleteDerived(ctx, rs.projectID); err != nil {
			return fmt.Errorf("regenerate wipe: %w", err)
		}
		p.logRun(ctx, rs, "controller", "info", "previous extraction cleared", "")
	}

	if err := p.ingest(ctx, rs); err != nil {
		return err
	}

	stages := []struct {
		status model.RunStatus
		agent  string
		run    func(context.Context, *runState) error
	}{
		{model.RunClassifying, "classifier", p.classifySources},
		{model.RunExtractingRequirements, "requirement_extractor", p.extractRequirements},
		{model.RunExtractingStakeholders, "stakeholder_extractor", p.extractStakeholders},
		{model.RunExtractingDecisions, "decision_extractor", p.extractDecisions},
		{model.RunExtractingTimeline, "timeline_extractor", p.extractTimeline},
		{model.RunDetectingConflicts, "conflict_detector", p.detectConflicts},
		{model.RunBuildingTraceability, "trace_linker", p.buildTraceability},
		{model.RunGeneratingDocuments, "synthesizer", p.synthesizeDocuments},
	}
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.transition(ctx, rs, stage.status); err != nil {
			return err
		}
		p.logRun(ctx, rs, stage.agent, "info", fmt.Sprintf("stage %s started", stage.status), "")
		if err := stage.run(ctx, rs); err != nil {
			return err
		}
	}
	return nil
}

// ingest loads the project's sources and fails fast when there is nothing
// to extract from.
func (p *Pipeline) ingest(ctx context.Context, rs *runState) error {
	if err := p.transition(ctx, rs, model.RunIngesting); err != nil {
		return err
	}
	sources, err := p.store.ListSources(ctx, rs.projectID)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return ErrNoSources
	}
	rs.sources = sources
	p.logRun(ctx, rs, "controller", "info", fmt.Sprintf("%d sources loaded", len(sources)), "")
	return nil
}

// transition persists the run's new status and the project's progress so
// an observer can poll the run mid-flight.
func (p *Pipeline) transition(ctx context.Context, rs *runState, status model.RunStatus) error {
	if err := p.store.SetRunStatus(ctx, rs.runID, status, rs.counters); err != nil {
		return fmt.Errorf("persist status %s: %w", status, err)
	}
	if progress, ok := stageProgress[status]; ok {
		if err := p.store.SetProjectStatus(ctx, rs.projectID, model.ProjectActive, progress); err != nil {
			return fmt.Errorf("persist progress for %s: %w", status, err)
		}
	}
	p.logger.Debug("pipeline: stage transition", "project", rs.projectID, "run", rs.runID, "status", status)
	return nil
}

// Cancel requests cooperative cancellation of the project's active run, if
// any. The run observes the cancellation at the next stage boundary or
// blocking provider call and terminates as cancelled.
func (p *Pipeline) Cancel(projectID string) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[strings.TrimSpace(projectID)]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// LatestRun exposes the most recent run record for status polling.
func (p *Pipeline) LatestRun(ctx context.Context, projectID string) (model.PipelineRun, error) {
	return p.store.LatestRun(ctx, projectID)
}

// RecentLogs exposes the run log trail for a project, newest first.
func (p *Pipeline) RecentLogs(ctx context.Context, projectID string, limit int) ([]model.RunLogEntry, error) {
	return p.store.RecentRunLogs(ctx, projectID, limit)
}

func (p *Pipeline) registerCancel(projectID string, cancel context.CancelFunc) {
	p.mu.Lock()
	p.cancels[projectID] = cancel
	p.mu.Unlock()
}

func (p *Pipeline) unregisterCancel(projectID string, cancel context.CancelFunc) {
	p.mu.Lock()
	delete(p.cancels, projectID)
	p.mu.Unlock()
	cancel()
}

// resolveProvider honours a per-run provider preference, falling back to
// the pipeline's default provider when the preference cannot be satisfied.
func (p *Pipeline) resolveProvider(ctx context.Context, preferred string) llm.Provider {
	preferred = strings.ToLower(strings.TrimSpace(preferred))
	if preferred == "" || preferred == p.provider.Name() {
		return p.provider
	}
	candidate := llm.NewProvider(ctx, preferred)
	if candidate.Name() != preferred {
		p.logger.Warn("pipeline: preferred provider unavailable, using default",
			"preferred", preferred, "default", p.provider.Name())
		return p.provider
	}
	return candidate
}

// generate wraps a provider call so backend failures surface as
// GenerationError and can be told apart from parse failures.
func (p *Pipeline) generate(ctx context.Context, rs *runState, stage, prompt string) (string, error) {
	out, err := rs.provider.Generate(ctx, llm.GenerateRequest{
		System:    analystSystem,
		Prompt:    prompt,
		JSONMode:  true,
		MaxTokens: p.cfg.MaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &GenerationError{Provider: rs.provider.Name(), Stage: stage, Err: err}
	}
	return out, nil
}

// logRun appends one durable observability entry for the run. Log failures
// are reported but never abort a stage.
func (p *Pipeline) logRun(ctx context.Context, rs *runState, agent, level, message, detail string) {
	entry := model.RunLogEntry{
		RunID:     rs.runID,
		ProjectID: rs.projectID,
		Agent:     agent,
		Level:     level,
		Message:   message,
		Detail:    detail,
	}
	if err := p.store.AppendRunLog(ctx, entry); err != nil {
		p.logger.Warn("pipeline: appending run log failed", "run", rs.runID, "error", err)
	}
}
