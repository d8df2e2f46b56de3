// Package generation routes chat prompts to a generation backend. It owns the
// backend cache, the dispatcher that picks a strategy from the current
// configuration, the streaming coordinator and the per-connection session loop.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultTemperature applies when a configuration leaves temperature unset.
const DefaultTemperature = 0.7

// Mode is the single authoritative backend selector.
type Mode string

const (
	ModeUnconfigured Mode = ""
	ModeLocal        Mode = "local"
	ModeRemoteAPI    Mode = "remote_api"
)

func (m Mode) String() string {
	if m == ModeUnconfigured {
		return "unconfigured"
	}
	return string(m)
}

// ParseMode accepts "local", "remote_api" (or "api"), and "" / "unconfigured".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unconfigured", "none":
		return ModeUnconfigured, nil
	case "local":
		return ModeLocal, nil
	case "remote_api", "api", "remote":
		return ModeRemoteAPI, nil
	}
	return ModeUnconfigured, fmt.Errorf("generation: unknown mode %q", s)
}

var (
	// ErrAmbiguousMode is returned when both legacy flags are set.
	ErrAmbiguousMode = errors.New("generation: local and api modes are mutually exclusive")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("generation: invalid configuration")
)

// ResolveMode collapses the legacy isLocal/isApi flag pair into a Mode.
func ResolveMode(isLocal, isAPI bool) (Mode, error) {
	switch {
	case isLocal && isAPI:
		return ModeUnconfigured, ErrAmbiguousMode
	case isLocal:
		return ModeLocal, nil
	case isAPI:
		return ModeRemoteAPI, nil
	}
	return ModeUnconfigured, nil
}

// Configuration is one snapshot of the generation settings. It is read once
// per prompt and never cached.
type Configuration struct {
	Mode         Mode
	ProviderName string
	ModelID      string
	Credential   string
	Temperature  *float64
	SystemPrompt string
}

// EffectiveTemperature returns Temperature or DefaultTemperature when unset.
func (c Configuration) EffectiveTemperature() float64 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

// Validate checks the fields the selected mode needs.
func (c Configuration) Validate() error {
	switch c.Mode {
	case ModeUnconfigured:
		return nil
	case ModeLocal:
		if strings.TrimSpace(c.ModelID) == "" {
			return fmt.Errorf("%w: local mode requires a model identifier", ErrInvalidConfig)
		}
	case ModeRemoteAPI:
		var missing []string
		if strings.TrimSpace(c.ProviderName) == "" {
			missing = append(missing, "provider")
		}
		if strings.TrimSpace(c.ModelID) == "" {
			missing = append(missing, "model")
		}
		if c.Credential == "" {
			missing = append(missing, "credential")
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: remote mode requires %s", ErrInvalidConfig, strings.Join(missing, ", "))
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, string(c.Mode))
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("%w: temperature must be within [0, 2]", ErrInvalidConfig)
	}
	return nil
}

// String renders the configuration with the credential masked so it can be
// logged with %v.
func (c Configuration) String() string {
	return fmt.Sprintf("{mode=%s provider=%s model=%s credential=%s temperature=%.2f}",
		c.Mode, c.ProviderName, c.ModelID, MaskSecret(c.Credential), c.EffectiveTemperature())
}

// MaskSecret hides all but the last four characters of long secrets and all
// of short ones.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// ConfigProvider supplies the current configuration. A missing record must
// come back as a zero Configuration (ModeUnconfigured), not an error.
type ConfigProvider interface {
	CurrentConfig(ctx context.Context) (Configuration, error)
}

// StaticConfig is a ConfigProvider that always returns itself.
type StaticConfig Configuration

func (s StaticConfig) CurrentConfig(context.Context) (Configuration, error) {
	return Configuration(s), nil
}
