package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is an optional YAML document layering deployment-specific settings
// over the environment: tool pricing and per-session throttles live here
// because they change together and are reviewed as a unit.
type Profile struct {
	Name    string        `yaml:"name"`
	Pricing PricingConfig `yaml:"pricing"`
	Limits  LimitsConfig  `yaml:"limits"`
}

// PricingConfig overrides the published tool rate card.
type PricingConfig struct {
	SearchCallUSD         float64 `yaml:"search_call_usd"`
	LLMPromptUSDPer1K     float64 `yaml:"llm_prompt_usd_per_1k"`
	LLMCompletionUSDPer1K float64 `yaml:"llm_completion_usd_per_1k"`
}

// LimitsConfig tunes per-session throttling.
type LimitsConfig struct {
	ToolCallsPerSecond float64 `yaml:"tool_calls_per_second"`
	ToolCallBurst      int     `yaml:"tool_call_burst"`
}

// LoadProfile reads profile_<name>.yaml from dir. A missing name returns a
// zero profile without error; a named profile that cannot be read is a
// configuration fault.
func LoadProfile(dir, name string) (Profile, error) {
	if strings.TrimSpace(name) == "" {
		return Profile{}, nil
	}
	path := filepath.Join(dir, fmt.Sprintf("profile_%s.yaml", name))
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("config: read profile %s: %w", name, err)
	}
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("config: parse profile %s: %w", name, err)
	}
	return p, nil
}
