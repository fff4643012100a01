package reasoning

import "fmt"

// Profile holds credentials for a reasoning backend.
type Profile struct {
	Provider string `json:"provider"` // "anthropic", "openai"
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

// NewCompleter creates a completer from a profile.
func NewCompleter(profile Profile) (Completer, error) {
	switch profile.Provider {
	case "anthropic":
		return NewAnthropicCompleter(profile.APIKey, profile.Model), nil
	case "openai":
		return NewOpenAICompleter(profile.APIKey, profile.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}
