package gameconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/KraakeAA/CoinFlipHelper/internal/match/engine"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, engine.DefaultTimings(), cfg.Timings())
}

func TestLoadOverridesTimings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
game:
  offer_timeout_sec: 90
  choice_timeout_sec: 15
  animation_step_delay_ms: 500
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	timings := cfg.Timings()
	require.Equal(t, 90*time.Second, timings.OfferWait)
	require.Equal(t, 15*time.Second, timings.ChoiceWait)
	require.Equal(t, 500*time.Millisecond, timings.AnimationStepDelay)

	// Unset values keep their defaults.
	require.Equal(t, engine.DefaultTimings().CallWait, timings.CallWait)
	require.Equal(t, engine.DefaultTimings().AnimationSteps, timings.AnimationSteps)
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.yaml")
	require.NoError(t, os.WriteFile(path, []byte("game: ["), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
