// Package gameconfig loads the game tuning file: wait durations for each
// decision point and the reveal animation cadence.
package gameconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KraakeAA/CoinFlipHelper/internal/match/engine"
)

// Config mirrors the YAML tuning file. Durations are plain integers so the
// file stays hand-editable.
type Config struct {
	Game struct {
		OfferTimeoutSec      int `yaml:"offer_timeout_sec"`
		ChoiceTimeoutSec     int `yaml:"choice_timeout_sec"`
		CallTimeoutSec       int `yaml:"call_timeout_sec"`
		AnimationSteps       int `yaml:"animation_steps"`
		AnimationStepDelayMs int `yaml:"animation_step_delay_ms"`
	} `yaml:"game"`
}

// Load reads the tuning file at path. A missing file is not an error; the
// defaults apply.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

// Timings converts the file values to engine timings, falling back to the
// engine defaults for any value left unset.
func (c *Config) Timings() engine.Timings {
	t := engine.DefaultTimings()
	if c.Game.OfferTimeoutSec > 0 {
		t.OfferWait = time.Duration(c.Game.OfferTimeoutSec) * time.Second
	}
	if c.Game.ChoiceTimeoutSec > 0 {
		t.ChoiceWait = time.Duration(c.Game.ChoiceTimeoutSec) * time.Second
	}
	if c.Game.CallTimeoutSec > 0 {
		t.CallWait = time.Duration(c.Game.CallTimeoutSec) * time.Second
	}
	if c.Game.AnimationSteps > 0 {
		t.AnimationSteps = c.Game.AnimationSteps
	}
	if c.Game.AnimationStepDelayMs > 0 {
		t.AnimationStepDelay = time.Duration(c.Game.AnimationStepDelayMs) * time.Millisecond
	}
	return t
}
