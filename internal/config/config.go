package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Orchid configuration
type Config struct {
	// Orchestrator behavior
	Orchestrator OrchestratorConfig `json:"orchestrator" mapstructure:"orchestrator"`

	// Agents
	Agents []AgentConfig `json:"agents" mapstructure:"agents"`

	// AI configuration
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Gateway configuration
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// History store configuration
	History HistoryConfig `json:"history" mapstructure:"history"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// OrchestratorConfig holds turn-routing behavior
type OrchestratorConfig struct {
	Mode                     string  `json:"mode" mapstructure:"mode"` // planner, direct
	MaxClarificationAttempts int     `json:"max_clarification_attempts" mapstructure:"max_clarification_attempts"`
	MaxIterations            int     `json:"max_iterations" mapstructure:"max_iterations"`
	ConfidenceThreshold      float64 `json:"confidence_threshold" mapstructure:"confidence_threshold"`
	ReasoningTimeout         int     `json:"reasoning_timeout" mapstructure:"reasoning_timeout"` // seconds
	AgentTimeout             int     `json:"agent_timeout" mapstructure:"agent_timeout"`         // seconds
	FallbackAgent            string  `json:"fallback_agent" mapstructure:"fallback_agent"`
	HistoryDepth             int     `json:"history_depth" mapstructure:"history_depth"`
}

// AgentConfig represents a sub-agent configuration
type AgentConfig struct {
	Name         string `json:"name" mapstructure:"name"`
	Kind         string `json:"kind" mapstructure:"kind"` // llm, static
	Description  string `json:"description" mapstructure:"description"`
	Input        string `json:"input" mapstructure:"input"`
	Output       string `json:"output" mapstructure:"output"`
	SystemPrompt string `json:"system_prompt" mapstructure:"system_prompt"`
	Reply        string `json:"reply" mapstructure:"reply"` // static kind only
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Model    string `json:"model" mapstructure:"model"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Port         int    `json:"port" mapstructure:"port"`
	Host         string `json:"host" mapstructure:"host"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
	MetricsPort  int    `json:"metrics_port" mapstructure:"metrics_port"`
}

// HistoryConfig holds turn-history store configuration
type HistoryConfig struct {
	Path          string `json:"path" mapstructure:"path"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days"`
	CronSchedule  string `json:"cron_schedule" mapstructure:"cron_schedule"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			Mode:                     "direct",
			MaxClarificationAttempts: 3,
			MaxIterations:            10,
			ConfidenceThreshold:      0.7,
			ReasoningTimeout:         30,
			AgentTimeout:             60,
			FallbackAgent:            "concierge",
			HistoryDepth:             20,
		},
		Agents: []AgentConfig{
			{
				Name:        "knowledge_qa",
				Kind:        "llm",
				Description: "Answers factual and how-to questions from general knowledge",
				Input:       "a question in natural language",
				Output:      "a direct answer with brief supporting context",
				SystemPrompt: "You answer the user's question directly and concisely. " +
					"If you do not know, say so rather than guessing.",
			},
			{
				Name:        "product_recommendation",
				Kind:        "llm",
				Description: "Recommends products matching stated needs and constraints",
				Input:       "a description of what the user is looking for",
				Output:      "a short ranked list of recommendations with reasons",
				SystemPrompt: "You recommend products that match the user's stated needs. " +
					"Give at most three options and say why each fits.",
			},
			{
				Name:        "concierge",
				Kind:        "static",
				Description: "General fallback when no specialist applies",
				Input:       "any request",
				Output:      "a polite handoff response",
				Reply: "I'm not sure which of my specialists can help with that. " +
					"Could you rephrase, or tell me more about what you need?",
			},
		},
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Gateway: GatewayConfig{
			Enabled:     false,
			Port:        8080,
			Host:        "0.0.0.0",
			MetricsPort: 9090,
		},
		History: HistoryConfig{
			RetentionDays: 7,
			CronSchedule:  "0 3 * * *",
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	mode := c.Orchestrator.Mode
	if mode != "planner" && mode != "direct" {
		return fmt.Errorf("orchestrator mode must be planner or direct, got %q", mode)
	}
	if c.Orchestrator.MaxClarificationAttempts < 1 {
		return fmt.Errorf("max_clarification_attempts must be at least 1")
	}
	if c.Orchestrator.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1")
	}
	if c.Orchestrator.ConfidenceThreshold < 0 || c.Orchestrator.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0 and 1")
	}

	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent must be configured")
	}

	names := make(map[string]bool, len(c.Agents))
	for i, agent := range c.Agents {
		if agent.Name == "" {
			return fmt.Errorf("agent %d: name is required", i)
		}
		if names[agent.Name] {
			return fmt.Errorf("agent %s: duplicate name", agent.Name)
		}
		names[agent.Name] = true

		switch agent.Kind {
		case "llm":
			if agent.SystemPrompt == "" {
				return fmt.Errorf("agent %s: system_prompt is required for llm agents", agent.Name)
			}
		case "static":
			if agent.Reply == "" {
				return fmt.Errorf("agent %s: reply is required for static agents", agent.Name)
			}
		default:
			return fmt.Errorf("agent %s: invalid kind %s (must be: llm, static)", agent.Name, agent.Kind)
		}
	}

	if c.Orchestrator.FallbackAgent != "" && !names[c.Orchestrator.FallbackAgent] {
		return fmt.Errorf("fallback agent %s is not a configured agent", c.Orchestrator.FallbackAgent)
	}

	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.Provider != "anthropic" && profile.Provider != "openai" {
			return fmt.Errorf("AI profile %s: invalid provider %s (must be: anthropic, openai)", profile.ID, profile.Provider)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
	}

	return nil
}
