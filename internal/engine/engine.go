// Package engine sequences a full mythology generation: two provider
// phases, parsing and salvage, validation, section recovery, an optional
// fidelity retry, and final assembly. The engine is an explicit state
// machine owned by the caller; all progress reaches the caller through
// callbacks, never shared mutable state.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loreforge/loreforge/internal/config"
	"github.com/loreforge/loreforge/internal/myth"
	"github.com/loreforge/loreforge/internal/parse"
	"github.com/loreforge/loreforge/internal/prompt"
	"github.com/loreforge/loreforge/internal/provider"
	"github.com/loreforge/loreforge/internal/recovery"
	"github.com/loreforge/loreforge/internal/stream"
	"github.com/loreforge/loreforge/internal/validate"
)

// Phase names the current state of the generation state machine.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhasePreparing      Phase = "preparing"
	PhaseRequesting     Phase = "requesting"
	PhaseParsing        Phase = "parsing"
	PhaseValidating     Phase = "validating"
	PhaseAutoCompleting Phase = "auto-completing"
	PhaseFidelityCheck  Phase = "fidelity-check"
	PhaseFinalizing     Phase = "finalizing"
	PhaseComplete       Phase = "complete"
	PhaseFailed         Phase = "failed"
)

// State is a snapshot of the generation for presentation layers.
type State struct {
	Phase Phase
	// StreamText accumulates the raw streamed text of the phase in flight.
	StreamText string
	// Document is set only once the generation completes.
	Document *myth.MythDocument
	// Err is set on the failed transition.
	Err error
}

// Callbacks deliver progress to the presentation layer. All callbacks are
// optional. OnStateChange and OnRecovery are invoked from the generating
// goroutine; OnProgress fires from the streaming goroutine of the provider
// call in flight.
type Callbacks struct {
	OnStateChange func(State)
	OnProgress    func(snippet string)
	OnRecovery    func(myth.RecoveryStatus)
}

// Result bundles the finished document with the reports produced along the
// way, so the caller can present partial-success detail.
type Result struct {
	Document   myth.MythDocument
	Recovery   myth.RecoveryStatus
	Creativity validate.CreativityReport
	Fidelity   *myth.FidelityReport
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithCallbacks(cb Callbacks) Option {
	return func(e *Engine) {
		e.callbacks = cb
	}
}

// WithResolver replaces the heuristic that turns free-text relationship
// strings into structured edges.
func WithResolver(r myth.RelationshipResolver) Option {
	return func(e *Engine) {
		e.resolver = r
	}
}

// Engine runs at most one generation at a time. A second Generate while one
// is active returns ErrGenerationInFlight; gating beyond that is the
// caller's job.
type Engine struct {
	provider   provider.Provider
	limits     config.Limits
	thresholds config.Thresholds
	resolver   myth.RelationshipResolver
	logger     *slog.Logger
	callbacks  Callbacks
	recoverer  *recovery.Coordinator

	mu         sync.Mutex
	phase      Phase
	streamText string
	document   *myth.MythDocument
	lastErr    error
	// generation increments on every start and cancel; in-flight handlers
	// compare against it before touching state, so late results from a
	// cancelled generation are discarded rather than applied.
	generation uint64
	active     bool
}

func New(p provider.Provider, limits config.Limits, th config.Thresholds, opts ...Option) *Engine {
	e := &Engine{
		provider:   p,
		limits:     limits,
		thresholds: th,
		resolver:   myth.NameMatchResolver{},
		logger:     slog.Default(),
		phase:      PhaseIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine")
	e.recoverer = recovery.New(p, limits, th, e.logger)
	return e
}

// State returns a snapshot of the current generation state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{Phase: e.phase, StreamText: e.streamText, Document: e.document, Err: e.lastErr}
}

// Cancel aborts the generation in flight, if any, and resets to idle.
// In-flight provider calls are not interrupted mid-request but their
// results are discarded when they land.
func (e *Engine) Cancel() {
	e.mu.Lock()
	e.generation++
	e.active = false
	e.phase = PhaseIdle
	e.streamText = ""
	e.document = nil
	e.lastErr = nil
	cb := e.callbacks.OnStateChange
	snap := State{Phase: PhaseIdle}
	e.mu.Unlock()

	e.logger.Info("generation cancelled")
	if cb != nil {
		cb(snap)
	}
}

// Generate runs the full pipeline for req and blocks until it completes,
// fails, or is cancelled.
func (e *Engine) Generate(ctx context.Context, req myth.GenerationRequest) (*Result, error) {
	gen, err := e.begin()
	if err != nil {
		return nil, err
	}

	genID := uuid.NewString()
	logger := e.logger.With("generation_id", genID)
	logger.Info("generation started", "mood", req.Mood, "customized", len(req.Customized()))

	if e.limits.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.limits.TotalTimeout)
		defer cancel()
	}

	res, err := e.run(ctx, gen, req, logger)
	if err != nil {
		e.fail(gen, err)
		logger.Error("generation failed", "error", err)
		return nil, err
	}
	if !e.complete(gen, res) {
		return nil, ErrCancelled
	}
	logger.Info("generation complete",
		"entities", len(res.Document.Entities),
		"recovery_resolved", res.Recovery.Resolved)
	return res, nil
}

func (e *Engine) run(ctx context.Context, gen uint64, req myth.GenerationRequest, logger *slog.Logger) (*Result, error) {
	working := &myth.PartialMythDocument{}

	// Phase 1: story and entities.
	if !e.setPhase(gen, PhasePreparing) {
		return nil, ErrCancelled
	}
	p1, err := prompt.Phase1(req)
	if err != nil {
		return nil, err
	}
	fragment, err := e.runPhase(ctx, gen, "phase 1", p1, req.Mood, logger)
	if err != nil {
		return nil, err
	}
	working.Merge(fragment)
	if working.Story == nil && len(working.Entities) == 0 {
		return nil, &ParseFailure{Phase: "phase 1", Err: parse.ErrUnparseable}
	}

	// Phase 2: world map, analysis, language. Its story/entities echoes are
	// never trusted and never reach the working document.
	if !e.setPhase(gen, PhasePreparing) {
		return nil, ErrCancelled
	}
	var story myth.Story
	if working.Story != nil {
		story = *working.Story
	}
	p2, err := prompt.Phase2(req, story, working.Entities)
	if err != nil {
		return nil, err
	}
	fragment, err = e.runPhase(ctx, gen, "phase 2", p2, req.Mood, logger)
	if err != nil && !IsParseFailure(err) {
		return nil, err
	}
	if fragment != nil {
		fragment.Story = nil
		fragment.Entities = nil
		working.Merge(fragment)
	}

	// Validation.
	if !e.setPhase(gen, PhaseValidating) {
		return nil, ErrCancelled
	}
	res := &Result{Recovery: myth.RecoveryStatus{Resolved: true}}
	res.Creativity = validate.Creativity(working)
	if !res.Creativity.Original {
		logger.Warn("well-known figures detected in generated content", "matches", res.Creativity.Matches)
	}
	completeness := validate.Completeness(working, e.thresholds)

	// Section recovery.
	if completeness.NeedsRecovery() {
		if !e.setPhase(gen, PhaseAutoCompleting) {
			return nil, ErrCancelled
		}
		status, rerr := e.recoverer.Recover(ctx, req, working)
		if rerr != nil && working.IsEmpty() {
			return nil, &ParseFailure{Phase: "recovery", Err: rerr}
		}
		res.Recovery = status
		if cb := e.callbacks.OnRecovery; cb != nil && e.current(gen) {
			cb(status)
		}
	}

	// Fidelity check, with at most one enhanced retry.
	if len(req.Customized()) > 0 {
		if !e.setPhase(gen, PhaseFidelityCheck) {
			return nil, ErrCancelled
		}
		report := validate.Fidelity(req, working)
		res.Fidelity = &report
		if report.Score < e.limits.FidelityRetryCutoff {
			e.fidelityRetry(ctx, gen, req, working, res, logger)
		}
	}

	// Finalize.
	if !e.setPhase(gen, PhaseFinalizing) {
		return nil, ErrCancelled
	}
	working.Entities = myth.ResolveRelationships(working.Entities, e.resolver)
	res.Document = working.Assemble()
	return res, nil
}

// runPhase issues one provider call with streaming, parses the response,
// and falls back to section salvage.
func (e *Engine) runPhase(ctx context.Context, gen uint64, name, phasePrompt, mood string, logger *slog.Logger) (*myth.PartialMythDocument, error) {
	if !e.setPhase(gen, PhaseRequesting) {
		return nil, ErrCancelled
	}
	text, err := e.callProvider(ctx, gen, name, phasePrompt, prompt.TemperatureForMood(mood), logger)
	if err != nil {
		return nil, err
	}

	if !e.setPhase(gen, PhaseParsing) {
		return nil, ErrCancelled
	}
	fragment, strategy, perr := parse.Document(text)
	if perr == nil {
		logger.Debug("response parsed", "phase", name, "strategy", strategy.String())
		return fragment, nil
	}
	logger.Warn("full parse failed, salvaging sections", "phase", name, "error", perr)
	fragment = parse.ExtractSections(text, nil)
	if fragment.IsEmpty() {
		return nil, &ParseFailure{Phase: name, Err: perr}
	}
	logger.Info("salvaged sections", "phase", name, "sections", fragment.PresentSections())
	return fragment, nil
}

// callProvider races one provider call against the phase timeout, stepping
// the output budget down on context overflow. On timeout the partial
// streamed text is returned as if it were the response.
func (e *Engine) callProvider(ctx context.Context, gen uint64, name, phasePrompt string, temperature float64, logger *slog.Logger) (string, error) {
	budgets := e.limits.OutputTokenBudgets
	if len(budgets) == 0 {
		budgets = []int{8192}
	}

	overflowRetries := 0
	for i, budget := range budgets {
		text, err := e.raceCall(ctx, gen, phasePrompt, temperature, budget)
		if err == nil {
			return text, nil
		}
		if errors.Is(err, ErrCancelled) || ctx.Err() != nil {
			return "", ErrCancelled
		}
		if provider.IsContextOverflow(err) && i < len(budgets)-1 && overflowRetries < e.limits.MaxProviderRetries {
			overflowRetries++
			logger.Warn("output budget exceeded context, stepping down",
				"phase", name, "budget", budget, "next_budget", budgets[i+1])
			continue
		}
		// A failed call that streamed text before dying still feeds salvage.
		if partial := provider.PartialText(err); partial != "" {
			logger.Warn("provider call failed with partial body, attempting salvage",
				"phase", name, "error", err, "partial_len", len(partial))
			return partial, nil
		}
		return "", &ProviderFailure{Phase: name, Err: err}
	}
	return "", &ProviderFailure{Phase: name, Err: errors.New("output budget sequence exhausted")}
}

type callOutcome struct {
	text string
	err  error
}

// raceCall runs one provider call against the phase timer. Whichever
// resolves first wins; on timeout the engine's guarded stream snapshot
// stands in for the response. The aggregator belongs to the streaming
// goroutine and is never read from here.
func (e *Engine) raceCall(ctx context.Context, gen uint64, phasePrompt string, temperature float64, budget int) (string, error) {
	e.resetStream(gen)

	agg := stream.NewAggregator(func(snippet string) {
		e.progress(gen, snippet)
	},
		stream.WithFlushInterval(e.limits.StreamFlushInterval),
		stream.WithMaxBuffer(e.limits.StreamMaxBuffer),
	)

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan callOutcome, 1)
	go func() {
		text, err := e.provider.Generate(callCtx, phasePrompt, provider.GenerateOptions{
			Temperature:     temperature,
			MaxOutputTokens: budget,
			OnChunk: func(chunk string) {
				agg.Append(chunk)
				e.appendStream(gen, chunk)
			},
		})
		done <- callOutcome{text: text, err: err}
	}()

	var timeout <-chan time.Time
	if e.limits.PhaseTimeout > 0 {
		timer := time.NewTimer(e.limits.PhaseTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case out := <-done:
		if !e.current(gen) {
			return "", ErrCancelled
		}
		return out.text, out.err
	case <-timeout:
		cancel()
		text, ok := e.streamSnapshot(gen)
		if !ok {
			return "", ErrCancelled
		}
		e.logger.Warn("phase timed out, using partial streamed text", "buffered_len", len(text))
		return text, nil
	case <-ctx.Done():
		return "", ErrCancelled
	}
}

// fidelityRetry issues one enhanced phase-1 call naming the missing
// features. The candidate with the higher fidelity score is kept; ties keep
// the original to avoid churn.
func (e *Engine) fidelityRetry(ctx context.Context, gen uint64, req myth.GenerationRequest, working *myth.PartialMythDocument, res *Result, logger *slog.Logger) {
	logger.Info("fidelity below cutoff, retrying phase 1",
		"score", res.Fidelity.Score, "missing", res.Fidelity.MissingFeatures)

	retryPrompt, err := prompt.EnhancedRetry(req, res.Fidelity.MissingFeatures)
	if err != nil {
		logger.Warn("enhanced retry prompt failed", "error", err)
		return
	}
	fragment, err := e.runPhase(ctx, gen, "enhanced retry", retryPrompt, req.Mood, logger)
	if err != nil {
		logger.Warn("enhanced retry failed, keeping original", "error", err)
		return
	}
	if fragment.Story == nil && len(fragment.Entities) == 0 {
		return
	}

	candidate := *working
	if fragment.Story != nil {
		candidate.Story = fragment.Story
	}
	if len(fragment.Entities) > 0 {
		candidate.Entities = fragment.Entities
	}
	retryReport := validate.Fidelity(req, &candidate)
	logger.Info("enhanced retry scored", "original", res.Fidelity.Score, "retry", retryReport.Score)
	if retryReport.Score > res.Fidelity.Score {
		*working = candidate
		*res.Fidelity = retryReport
	}
}

// --- state machine plumbing -------------------------------------------------

func (e *Engine) begin() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return 0, ErrGenerationInFlight
	}
	e.generation++
	e.active = true
	e.document = nil
	e.lastErr = nil
	e.streamText = ""
	return e.generation, nil
}

func (e *Engine) current(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation == gen
}

// setPhase transitions the state machine, returning false when gen is
// stale (cancelled or superseded) so the caller can stop.
func (e *Engine) setPhase(gen uint64, phase Phase) bool {
	e.mu.Lock()
	if e.generation != gen {
		e.mu.Unlock()
		return false
	}
	e.phase = phase
	cb := e.callbacks.OnStateChange
	snap := State{Phase: phase, StreamText: e.streamText}
	e.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
	return true
}

func (e *Engine) resetStream(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation == gen {
		e.streamText = ""
	}
}

// streamSnapshot returns a copy of the accumulated stream text, with ok
// false when gen is stale.
func (e *Engine) streamSnapshot(gen uint64) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streamText, e.generation == gen
}

func (e *Engine) appendStream(gen uint64, chunk string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation == gen {
		e.streamText += chunk
	}
}

func (e *Engine) progress(gen uint64, snippet string) {
	e.mu.Lock()
	ok := e.generation == gen
	cb := e.callbacks.OnProgress
	e.mu.Unlock()
	if ok && cb != nil {
		cb(snippet)
	}
}

func (e *Engine) complete(gen uint64, res *Result) bool {
	e.mu.Lock()
	if e.generation != gen {
		e.mu.Unlock()
		return false
	}
	e.phase = PhaseComplete
	e.document = &res.Document
	e.active = false
	cb := e.callbacks.OnStateChange
	snap := State{Phase: PhaseComplete, Document: e.document}
	e.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
	return true
}

// fail records a terminal failure and settles back to a clean idle so the
// caller can start over.
func (e *Engine) fail(gen uint64, err error) {
	e.mu.Lock()
	if e.generation != gen {
		e.mu.Unlock()
		return
	}
	e.phase = PhaseFailed
	e.lastErr = err
	e.active = false
	e.streamText = ""
	cb := e.callbacks.OnStateChange
	e.mu.Unlock()

	if cb != nil {
		cb(State{Phase: PhaseFailed, Err: err})
	}
}
