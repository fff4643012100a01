package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/orchid/internal/config"
	"github.com/harun/orchid/internal/logger"
	"github.com/harun/orchid/internal/metrics"
	"github.com/harun/orchid/pkg/history"
	"github.com/harun/orchid/pkg/orchestrator"
	"github.com/harun/orchid/pkg/reasoning"
	"github.com/harun/orchid/pkg/subagent"
)

// runtime bundles the wired components a command runs with.
type runtime struct {
	cfg     *config.Config
	logger  *logger.Logger
	store   *history.Store
	metrics *metrics.Metrics
	orch    *orchestrator.Orchestrator
}

func (r *runtime) close() {
	if r.store != nil {
		r.store.Close()
	}
	if r.logger != nil {
		r.logger.Close()
	}
}

// buildRuntime loads config and wires the orchestrator stack.
func buildRuntime(console bool) (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	log, err := logger.New(logger.Config{
		Level:   level,
		File:    cfg.Logging.File,
		Console: console,
		Pretty:  console,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	zl := log.GetZerolog()

	completer, err := buildCompleter(cfg)
	if err != nil {
		log.Close()
		return nil, err
	}

	engine, err := reasoning.NewLLMEngine(reasoning.Config{
		Completer: completer,
		Timeout:   time.Duration(cfg.Orchestrator.ReasoningTimeout) * time.Second,
		Logger:    zl,
	})
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to create reasoning engine: %w", err)
	}

	registry, err := buildRegistry(cfg, completer, zl)
	if err != nil {
		log.Close()
		return nil, err
	}

	store, err := history.New(history.Config{
		Path:   cfg.History.Path,
		Logger: zl,
	})
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	m := metrics.NewMetrics()

	orch, err := orchestrator.New(orchestrator.Config{
		Engine:                   engine,
		Registry:                 registry,
		Store:                    store,
		Metrics:                  m,
		Logger:                   zl,
		DefaultMode:              orchestrator.Mode(cfg.Orchestrator.Mode),
		MaxClarificationAttempts: cfg.Orchestrator.MaxClarificationAttempts,
		MaxIterations:            cfg.Orchestrator.MaxIterations,
		ConfidenceThreshold:      cfg.Orchestrator.ConfidenceThreshold,
		AgentTimeout:             time.Duration(cfg.Orchestrator.AgentTimeout) * time.Second,
		FallbackAgent:            cfg.Orchestrator.FallbackAgent,
		HistoryDepth:             cfg.Orchestrator.HistoryDepth,
	})
	if err != nil {
		store.Close()
		log.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	return &runtime{
		cfg:     cfg,
		logger:  log,
		store:   store,
		metrics: m,
		orch:    orch,
	}, nil
}

// buildCompleter picks the highest-priority AI profile.
func buildCompleter(cfg *config.Config) (reasoning.Completer, error) {
	if len(cfg.AI.Profiles) == 0 {
		return nil, fmt.Errorf("no AI credentials configured: at least one AI profile is required")
	}

	profiles := make([]config.AIProfile, len(cfg.AI.Profiles))
	copy(profiles, cfg.AI.Profiles)
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Priority < profiles[j].Priority
	})

	p := profiles[0]
	completer, err := reasoning.NewCompleter(reasoning.Profile{
		Provider: p.Provider,
		APIKey:   p.APIKey,
		Model:    p.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("AI profile %s: %w", p.ID, err)
	}
	return completer, nil
}

// buildRegistry constructs and seals the sub-agent registry from config.
func buildRegistry(cfg *config.Config, completer reasoning.Completer, zl zerolog.Logger) (*subagent.Registry, error) {
	registry := subagent.NewRegistry()

	for _, a := range cfg.Agents {
		descriptor := subagent.Descriptor{
			Name:        a.Name,
			Description: a.Description,
			Input:       a.Input,
			Output:      a.Output,
		}

		var agent subagent.Agent
		switch a.Kind {
		case "llm":
			llmAgent, err := subagent.NewLLMAgent(subagent.LLMAgentConfig{
				Name:         a.Name,
				SystemPrompt: a.SystemPrompt,
				Completer:    completer,
				Logger:       zl,
			})
			if err != nil {
				return nil, fmt.Errorf("agent %s: %w", a.Name, err)
			}
			agent = llmAgent
		case "static":
			agent = subagent.NewStaticAgent(a.Name, a.Reply)
		default:
			return nil, fmt.Errorf("agent %s: unknown kind %s", a.Name, a.Kind)
		}

		if err := registry.Register(subagent.Registration{Descriptor: descriptor, Agent: agent}); err != nil {
			return nil, err
		}
	}

	registry.Seal()
	return registry, nil
}
