package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/orchid/internal/metrics"
	"github.com/harun/orchid/pkg/coordinator"
	"github.com/harun/orchid/pkg/history"
	"github.com/harun/orchid/pkg/intent"
	"github.com/harun/orchid/pkg/planner"
	"github.com/harun/orchid/pkg/reasoning"
	"github.com/harun/orchid/pkg/subagent"
	"github.com/rs/zerolog"
)

// TurnIO carries the user-facing channels a turn may suspend on: the
// clarification question channel and the plan feedback channel.
type TurnIO struct {
	Asker    intent.Asker
	Feedback planner.FeedbackChannel
}

// Orchestrator is the top-level state machine. It routes each turn through
// either the planner flow or the direct flow, owns session state, and
// enforces the termination policy.
type Orchestrator struct {
	engine      reasoning.Engine
	registry    *subagent.Registry
	classifier  *intent.Classifier
	clarifier   *intent.Loop
	planner     *planner.Planner
	coordinator *coordinator.Coordinator
	store       *history.Store
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	defaultMode  Mode
	agentTimeout time.Duration
	historyDepth int

	sessions map[string]*Session
	mu       sync.RWMutex
}

// Config holds orchestrator configuration.
type Config struct {
	Engine   reasoning.Engine
	Registry *subagent.Registry
	Store    *history.Store    // optional; turns are not persisted when nil
	Metrics  *metrics.Metrics  // optional
	Logger   zerolog.Logger

	DefaultMode              Mode
	MaxClarificationAttempts int
	MaxIterations            int
	ConfidenceThreshold      float64
	AgentTimeout             time.Duration
	FallbackAgent            string
	HistoryDepth             int
}

// New creates an orchestrator and its sub-components.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("reasoning engine is required")
	}
	if cfg.Registry == nil || cfg.Registry.Count() == 0 {
		return nil, fmt.Errorf("agent registry with at least one agent is required")
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = ModeDirect
	}
	if !cfg.DefaultMode.Valid() {
		return nil, errInvalidMode(cfg.DefaultMode)
	}
	if cfg.FallbackAgent == "" {
		return nil, fmt.Errorf("fallback agent is required")
	}
	if _, err := cfg.Registry.Resolve(cfg.FallbackAgent); err != nil {
		return nil, fmt.Errorf("fallback agent: %w", err)
	}
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = 60 * time.Second
	}
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = 20
	}

	classifier, err := intent.NewClassifier(intent.ClassifierConfig{
		Engine:    cfg.Engine,
		Labels:    cfg.Registry.Labels(),
		Threshold: cfg.ConfidenceThreshold,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	clarifier, err := intent.NewLoop(intent.LoopConfig{
		Classifier:    classifier,
		Engine:        cfg.Engine,
		MaxAttempts:   cfg.MaxClarificationAttempts,
		FallbackLabel: cfg.FallbackAgent,
		Logger:        cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	plannerSvc, err := planner.New(planner.Config{
		Engine:       cfg.Engine,
		Capabilities: capabilitiesOf(cfg.Registry),
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	coord, err := coordinator.New(coordinator.Config{
		Engine:        cfg.Engine,
		Registry:      cfg.Registry,
		MaxIterations: cfg.MaxIterations,
		AgentTimeout:  cfg.AgentTimeout,
		Logger:        cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		engine:       cfg.Engine,
		registry:     cfg.Registry,
		classifier:   classifier,
		clarifier:    clarifier,
		planner:      plannerSvc,
		coordinator:  coord,
		store:        cfg.Store,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		defaultMode:  cfg.DefaultMode,
		agentTimeout: cfg.AgentTimeout,
		historyDepth: cfg.HistoryDepth,
		sessions:     make(map[string]*Session),
	}, nil
}

// CreateSession starts a new session. An empty mode uses the default.
func (o *Orchestrator) CreateSession(ctx context.Context, mode Mode) (*Session, error) {
	if mode == "" {
		o.mu.RLock()
		mode = o.defaultMode
		o.mu.RUnlock()
	}
	if !mode.Valid() {
		return nil, errInvalidMode(mode)
	}

	session := NewSession(mode)

	if o.store != nil {
		if err := o.store.CreateSession(ctx, session.ID, string(mode)); err != nil {
			return nil, err
		}
	}

	o.mu.Lock()
	o.sessions[session.ID] = session
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.SessionsActive.Inc()
	}

	o.logger.Info().
		Str("session_id", session.ID).
		Str("mode", string(mode)).
		Msg("Session created")

	return session, nil
}

// SetDefaultMode changes the mode new sessions start in and applies it to
// existing sessions that are between turns. A session with a turn in flight
// keeps its mode; the change reaches it at the next turn boundary.
func (o *Orchestrator) SetDefaultMode(mode Mode) error {
	if !mode.Valid() {
		return errInvalidMode(mode)
	}

	o.mu.Lock()
	o.defaultMode = mode
	sessions := make([]*Session, 0, len(o.sessions))
	for _, session := range o.sessions {
		sessions = append(sessions, session)
	}
	o.mu.Unlock()

	for _, session := range sessions {
		if err := session.SetMode(mode); errors.Is(err, ErrSessionBusy) {
			o.logger.Debug().
				Str("session_id", session.ID).
				Msg("Turn in flight, session keeps its mode")
		}
	}

	o.logger.Info().Str("mode", string(mode)).Msg("Default mode updated")
	return nil
}

// GetSession returns a session by ID.
func (o *Orchestrator) GetSession(id string) (*Session, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	session, ok := o.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, nil
}

// CancelSession aborts the session's in-flight turn, if any.
func (o *Orchestrator) CancelSession(id string) error {
	session, err := o.GetSession(id)
	if err != nil {
		return err
	}
	session.Cancel()
	return nil
}

// EndSession archives and forgets a session.
func (o *Orchestrator) EndSession(ctx context.Context, id string) error {
	session, err := o.GetSession(id)
	if err != nil {
		return err
	}
	session.Cancel()

	if o.store != nil {
		if err := o.store.ArchiveSession(ctx, id); err != nil {
			o.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to archive session")
		}
	}

	o.mu.Lock()
	delete(o.sessions, id)
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.SessionsActive.Dec()
	}

	return nil
}

// RunTurn processes one user turn through the session's mode. The mode is
// snapshotted at turn start and cannot change mid-turn.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID, utterance string, io TurnIO) (*TurnResult, error) {
	if utterance == "" {
		return nil, fmt.Errorf("utterance cannot be empty")
	}

	session, err := o.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	turnCtx, mode, err := session.beginTurn(ctx)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With().
		Str("session_id", session.ID).
		Str("mode", string(mode)).
		Logger()
	logger.Info().Msg("Turn started")

	started := time.Now()

	var result *TurnResult
	switch mode {
	case ModePlanner:
		result = o.plannerFlow(turnCtx, session, utterance, io, logger)
	default:
		result = o.directFlow(turnCtx, session, utterance, io, logger)
	}

	finalState := StateTurnComplete
	if result.Outcome == OutcomeCancelled {
		finalState = StateCancelled
	}
	session.endTurn(finalState)

	o.persistTurn(session, utterance, result)

	if o.metrics != nil {
		o.metrics.TurnsTotal.WithLabelValues(string(mode), string(result.Outcome)).Inc()
		o.metrics.TurnDuration.WithLabelValues(string(mode)).Observe(time.Since(started).Seconds())
	}

	logger.Info().
		Str("outcome", string(result.Outcome)).
		Dur("elapsed", time.Since(started)).
		Msg("Turn finished")

	return result, nil
}

// directFlow classifies intent, clarifies if needed, and dispatches once.
func (o *Orchestrator) directFlow(ctx context.Context, session *Session, utterance string, io TurnIO, logger zerolog.Logger) *TurnResult {
	session.setState(StateClassifying)

	turnHistory := o.loadHistory(ctx, session.ID)

	resolved, err := o.classifier.Classify(ctx, utterance, turnHistory)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return &TurnResult{Outcome: OutcomeCancelled, Err: err}
		}
		// Engine failure means unresolved, never an arbitrary label.
		logger.Warn().Err(err).Msg("Classification failed, treating as unresolved")
		resolved = intent.Intent{Label: intent.LabelUnresolved}
	}

	rounds := 0
	if !resolved.Resolved() {
		if io.Asker == nil {
			return &TurnResult{Outcome: OutcomeFailed, Err: fmt.Errorf("intent unresolved and no clarification channel available")}
		}

		session.setState(StateClarifying)
		resolved, rounds, err = o.clarifier.Clarify(ctx, io.Asker, utterance, turnHistory)
		session.addClarifications(rounds)
		if o.metrics != nil {
			o.metrics.ClarificationsTotal.Add(float64(rounds))
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return &TurnResult{Outcome: OutcomeCancelled, Err: err}
			}
			return &TurnResult{Outcome: OutcomeFailed, ClarificationRounds: rounds, Err: err}
		}
	}

	if o.metrics != nil {
		o.metrics.ClassificationsTotal.WithLabelValues(resolved.Label).Inc()
	}

	session.setState(StateDispatching)

	reg, err := o.registry.Resolve(resolved.Label)
	if err != nil {
		// Should not happen with consistent configuration; surfaced, never
		// silently re-routed.
		return &TurnResult{Outcome: OutcomeFailed, Intent: resolved.Label, ClarificationRounds: rounds, Err: err}
	}

	execCtx, cancel := context.WithTimeout(ctx, o.agentTimeout)
	defer cancel()

	started := time.Now()
	result, err := reg.Agent.Execute(execCtx, utterance, subagent.TurnContext{
		SessionID: session.ID,
		History:   turnHistory,
	})
	if o.metrics != nil {
		o.metrics.AgentExecutionDuration.WithLabelValues(reg.Descriptor.Name).Observe(time.Since(started).Seconds())
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return &TurnResult{Outcome: OutcomeCancelled, Intent: resolved.Label, ClarificationRounds: rounds, Err: ctx.Err()}
		}
		if o.metrics != nil {
			o.metrics.AgentExecutionErrorsTotal.WithLabelValues(reg.Descriptor.Name).Inc()
		}
		return &TurnResult{
			Outcome:             OutcomeFailed,
			Intent:              resolved.Label,
			Agent:               reg.Descriptor.Name,
			ClarificationRounds: rounds,
			Err:                 fmt.Errorf("agent execution failed: %w", err),
		}
	}

	return &TurnResult{
		Outcome:             OutcomeCompleted,
		Answer:              result.Content,
		Intent:              resolved.Label,
		Agent:               reg.Descriptor.Name,
		ClarificationRounds: rounds,
	}
}

// plannerFlow drafts a plan, loops on human feedback until acceptance, then
// hands the accepted plan to the coordinator.
func (o *Orchestrator) plannerFlow(ctx context.Context, session *Session, utterance string, io TurnIO, logger zerolog.Logger) *TurnResult {
	if io.Feedback == nil {
		return &TurnResult{Outcome: OutcomeFailed, Err: fmt.Errorf("planner mode requires a feedback channel")}
	}

	session.setState(StatePlanning)

	plan, err := o.planner.Review(ctx, utterance, io.Feedback, func(p *planner.Plan) {
		session.setPendingPlan(p)
		session.setState(StateAwaitingFeedback)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return &TurnResult{Outcome: OutcomeCancelled, Err: err}
		}
		return &TurnResult{Outcome: OutcomeFailed, Err: err}
	}

	session.setState(StateCoordinating)

	outcome, err := o.coordinator.Run(ctx, plan, subagent.TurnContext{
		SessionID: session.ID,
		History:   o.loadHistory(ctx, session.ID),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return &TurnResult{Outcome: OutcomeCancelled, Err: err}
		}
		return &TurnResult{Outcome: OutcomeFailed, Err: err}
	}

	if o.metrics != nil {
		o.metrics.LoopIterations.Observe(float64(outcome.Iterations))
	}

	result := &TurnResult{
		Answer:       outcome.Answer,
		Observations: outcome.Observations,
		Iterations:   outcome.Iterations,
	}
	if outcome.Completed() {
		result.Outcome = OutcomeCompleted
	} else {
		// Iteration-limit cutoff is reported distinctly, never as success.
		result.Outcome = OutcomeIncomplete
		logger.Warn().Int("iterations", outcome.Iterations).Msg("Turn ended incomplete")
	}

	return result
}

// loadHistory formats recent turns for prompt context.
func (o *Orchestrator) loadHistory(ctx context.Context, sessionID string) []string {
	if o.store == nil {
		return nil
	}

	turns, err := o.store.Turns(ctx, sessionID, o.historyDepth)
	if err != nil {
		o.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to load history")
		return nil
	}

	var lines []string
	for _, t := range turns {
		lines = append(lines, "user: "+t.Utterance)
		if t.Answer != "" {
			lines = append(lines, "assistant: "+t.Answer)
		}
	}
	return lines
}

// persistTurn records the finished turn and its observations for audit.
func (o *Orchestrator) persistTurn(session *Session, utterance string, result *TurnResult) {
	if o.store == nil {
		return
	}

	records := make([]history.ObservationRecord, len(result.Observations))
	for i, obs := range result.Observations {
		records[i] = history.ObservationRecord{
			ID:        obs.ID,
			Seq:       obs.Seq,
			Agent:     obs.Agent,
			Query:     obs.Query,
			Content:   obs.Content,
			Failed:    obs.Failed,
			Reason:    obs.Reason,
			CreatedAt: obs.CreatedAt,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := o.store.AppendTurn(ctx, session.ID, utterance, result.Answer, string(result.Outcome), records); err != nil {
		o.logger.Error().Err(err).Str("session_id", session.ID).Msg("Failed to persist turn")
	}
}

func capabilitiesOf(registry *subagent.Registry) []reasoning.Capability {
	descriptors := registry.List()
	capabilities := make([]reasoning.Capability, len(descriptors))
	for i, d := range descriptors {
		capabilities[i] = reasoning.Capability{
			Name:        d.Name,
			Description: d.Description,
			Input:       d.Input,
			Output:      d.Output,
		}
	}
	return capabilities
}
