package rng

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KraakeAA/CoinFlipHelper/internal/models"
)

func TestFlipCoinCoversBothSides(t *testing.T) {
	r := New()
	seen := map[models.Side]int{}
	for i := 0; i < 1000; i++ {
		side := r.FlipCoin()
		require.Contains(t, []models.Side{models.SideHeads, models.SideTails}, side)
		seen[side]++
	}
	require.Positive(t, seen[models.SideHeads])
	require.Positive(t, seen[models.SideTails])
}

func TestChooseCallerCoversBothPlayers(t *testing.T) {
	r := New()
	seen := map[int64]int{}
	for i := 0; i < 1000; i++ {
		caller := r.ChooseCaller(11, 22)
		require.Contains(t, []int64{11, 22}, caller)
		seen[caller]++
	}
	require.Positive(t, seen[11])
	require.Positive(t, seen[22])
}
