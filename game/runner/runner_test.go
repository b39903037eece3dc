package runner

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/kasuganosora/gen1sim/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedTeams() *[2][]battle.Set {
	return &[2][]battle.Set{
		{
			{Species: "Tauros", Moves: []string{"Body Slam", "Hyper Beam", "Earthquake", "Blizzard"}},
			{Species: "Exeggutor", Moves: []string{"Sleep Powder", "Psychic", "Explosion", "Mega Drain"}},
		},
		{
			{Species: "Alakazam", Moves: []string{"Psychic", "Seismic Toss", "Recover", "Thunder Wave"}},
			{Species: "Rhydon", Moves: []string{"Earthquake", "Rock Slide", "Body Slam", "Substitute"}},
		},
	}
}

func TestSeed_StableAndDistinct(t *testing.T) {
	assert.Equal(t, Seed(42, 3), Seed(42, 3))
	seen := map[[4]uint16]bool{}
	for i := 0; i < 100; i++ {
		seen[Seed(42, i)] = true
	}
	assert.Len(t, seen, 100)
	assert.NotEqual(t, Seed(1, 0), Seed(2, 0))
}

func TestRun_FixedTeams(t *testing.T) {
	cfg := Config{
		Workers:  3,
		Battles:  12,
		MaxTurns: 200,
		Seed:     7,
		Strategy: "weighted",
		Teams:    fixedTeams(),
	}
	rep, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 12, rep.Battles)
	assert.Zero(t, rep.Failed)
	assert.Equal(t, rep.Battles, rep.Wins+rep.Losses+rep.Ties+rep.Truncated)
	for i, o := range rep.Outcomes {
		assert.Equal(t, i, o.Index)
		assert.Equal(t, Seed(7, i), o.Seed)
		assert.Len(t, o.Digest, 64)
	}

	again, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	for i := range rep.Outcomes {
		assert.Equal(t, rep.Outcomes[i].Digest, again.Outcomes[i].Digest, "battle %d", i)
	}
}

func TestRun_RandomTeamsReplay(t *testing.T) {
	rep, err := Run(context.Background(), Config{
		Workers:  4,
		Battles:  16,
		MaxTurns: 100,
		Seed:     99,
		Strategy: "random",
	})
	require.NoError(t, err, "every battle must replay to the same digest")
	assert.Equal(t, 16, rep.Battles)
}

func TestRun_UnknownStrategy(t *testing.T) {
	_, err := Run(context.Background(), Config{Battles: 1, Strategy: "minimax"})
	assert.Error(t, err)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := Run(ctx, Config{Battles: 5, Teams: fixedTeams()})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, rep.Battles)
}

func TestGame_Truncated(t *testing.T) {
	cfg := Config{MaxTurns: 1, Teams: fixedTeams(), Dex: resource.Default(), Rules: battle.DefaultRules()}
	out, err := cfg.game(0).Play()
	require.NoError(t, err)
	assert.True(t, out.Truncated)
	assert.Equal(t, 1, out.Turns)
}

func TestRandomTeam(t *testing.T) {
	dex := resource.Default()
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 50; i++ {
		team := RandomTeam(dex, rng)
		require.NotEmpty(t, team)
		require.LessOrEqual(t, len(team), 6)
		for _, s := range team {
			assert.Len(t, s.Moves, 4)
			assert.NotContains(t, s.Moves, "Struggle")
			assert.GreaterOrEqual(t, s.Level, 50)
			assert.LessOrEqual(t, s.Level, 100)
		}
		_, err := battle.NewBattle(battle.BattleConfig{P1: team, P2: team, Dex: dex})
		assert.NoError(t, err)
	}
}
