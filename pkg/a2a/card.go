package a2a

import "fmt"

// WellKnownCardPath is the discovery path where the agent card is served.
const WellKnownCardPath = "/.well-known/agent.json"

// CardConfig is the static configuration an agent card is built from. It is
// assembled by the bootstrap layer from flags and environment, already
// validated for types; BuildCard validates content.
type CardConfig struct {
	Name        string
	Description string
	Version     string
	Host        string
	Port        int
	// HostOverride replaces the advertised URL derived from Host and Port,
	// for deployments behind a proxy or tunnel.
	HostOverride string
	Organization string

	InputModes  []string
	OutputModes []string
	Skills      []AgentSkill

	Streaming              bool
	StateTransitionHistory bool
}

// AdvertisedURL returns the URL clients should use to reach the agent.
func (c *CardConfig) AdvertisedURL() string {
	if c.HostOverride != "" {
		return c.HostOverride
	}
	return fmt.Sprintf("http://%s:%d/", c.Host, c.Port)
}

// BuildCard constructs the agent card from static configuration. It is pure:
// no side effects, and the only failure mode is invalid configuration,
// reported as a *ValidationError. Capability flags are conservative; a
// feature not enabled here is refused by the request handler.
func BuildCard(cfg CardConfig) (*AgentCard, error) {
	if cfg.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "agent name is required"}
	}
	if cfg.Version == "" {
		return nil, &ValidationError{Field: "version", Reason: "agent version is required"}
	}
	if cfg.HostOverride == "" && cfg.Host == "" {
		return nil, &ValidationError{Field: "host", Reason: "host or host override is required"}
	}
	if len(cfg.Skills) == 0 {
		return nil, &ValidationError{Field: "skills", Reason: "at least one skill is required"}
	}
	if len(cfg.InputModes) == 0 {
		return nil, &ValidationError{Field: "inputModes", Reason: "at least one input mode is required"}
	}
	if len(cfg.OutputModes) == 0 {
		return nil, &ValidationError{Field: "outputModes", Reason: "at least one output mode is required"}
	}

	seen := make(map[string]bool, len(cfg.Skills))
	for _, skill := range cfg.Skills {
		if skill.ID == "" {
			return nil, &ValidationError{Field: "skills", Reason: "skill id is required"}
		}
		if skill.Name == "" {
			return nil, &ValidationError{Field: "skills", Reason: fmt.Sprintf("skill %q has no name", skill.ID)}
		}
		if seen[skill.ID] {
			return nil, &ValidationError{Field: "skills", Reason: fmt.Sprintf("duplicate skill id %q", skill.ID)}
		}
		seen[skill.ID] = true
	}

	card := &AgentCard{
		Name:    cfg.Name,
		URL:     cfg.AdvertisedURL(),
		Version: cfg.Version,
		Capabilities: AgentCapabilities{
			Streaming:              cfg.Streaming,
			StateTransitionHistory: cfg.StateTransitionHistory,
		},
		DefaultInputModes:  cfg.InputModes,
		DefaultOutputModes: cfg.OutputModes,
		Skills:             cfg.Skills,
	}
	if cfg.Description != "" {
		card.Description = &cfg.Description
	}
	if cfg.Organization != "" {
		card.Provider = &AgentProvider{Organization: cfg.Organization}
	}
	return card, nil
}

// SupportsInputMode reports whether the card accepts the given content type,
// either as a default input mode or via any skill.
func (c *AgentCard) SupportsInputMode(mode string) bool {
	for _, m := range c.DefaultInputModes {
		if m == mode {
			return true
		}
	}
	for _, s := range c.Skills {
		for _, m := range s.InputModes {
			if m == mode {
				return true
			}
		}
	}
	return false
}

// Skill returns the skill with the given id, or nil.
func (c *AgentCard) Skill(id string) *AgentSkill {
	for i := range c.Skills {
		if c.Skills[i].ID == id {
			return &c.Skills[i]
		}
	}
	return nil
}
