// Package runner plays many independent self-play battles in parallel and
// checks that each one replays to the same log.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/kasuganosora/gen1sim/game/ai"
	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/kasuganosora/gen1sim/protocol"
	"github.com/kasuganosora/gen1sim/resource"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNondeterministic is returned when a replayed battle diverges.
var ErrNondeterministic = errors.New("runner: replay diverged")

// Config configures a Run.
type Config struct {
	Workers  int
	Battles  int
	MaxTurns int
	Seed     uint64
	Strategy string
	Dex      *resource.Dex
	Rules    battle.Rules
	// Teams fixes both rosters; nil draws fresh random rosters per battle.
	Teams  *[2][]battle.Set
	Logger *zap.Logger
}

// Outcome is the result of one battle.
type Outcome struct {
	Index     int               `json:"index"`
	Seed      [4]uint16         `json:"seed"`
	Result    battle.ResultType `json:"result"`
	Turns     int               `json:"turns"`
	Lines     int               `json:"lines"`
	Digest    string            `json:"digest"`
	Truncated bool              `json:"truncated"` // stopped at MaxTurns
	Err       string            `json:"error,omitempty"`
}

// Report aggregates a Run.
type Report struct {
	Battles   int           `json:"battles"`
	Wins      int           `json:"wins"`
	Losses    int           `json:"losses"`
	Ties      int           `json:"ties"`
	Truncated int           `json:"truncated"`
	Failed    int           `json:"failed"`
	Turns     int           `json:"turns"`
	Elapsed   time.Duration `json:"elapsed"`
	Outcomes  []Outcome     `json:"-"`
}

func (r *Report) add(o Outcome) {
	r.Battles++
	r.Turns += o.Turns
	switch {
	case o.Err != "":
		r.Failed++
	case o.Truncated:
		r.Truncated++
	case o.Result == battle.ResultWin:
		r.Wins++
	case o.Result == battle.ResultLose:
		r.Losses++
	case o.Result == battle.ResultTie:
		r.Ties++
	}
}

// Seed derives the seed of battle i from a base seed with splitmix64.
func Seed(base uint64, i int) [4]uint16 {
	z := base + uint64(i+1)*0x9E3779B97F4A7C15
	z = (z ^ z>>30) * 0xBF58476D1CE4E5B9
	z = (z ^ z>>27) * 0x94D049BB133111EB
	z ^= z >> 31
	return [4]uint16{uint16(z >> 48), uint16(z >> 32), uint16(z >> 16), uint16(z)}
}

// Run plays cfg.Battles battles on cfg.Workers goroutines. Each battle is
// played twice; a digest mismatch stops the run with ErrNondeterministic.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 1000
	}
	if cfg.Dex == nil {
		cfg.Dex = resource.Default()
	}
	if cfg.Rules.TurnLimit <= 0 {
		cfg.Rules.TurnLimit = battle.DefaultRules().TurnLimit
	}
	if _, err := ai.New(cfg.Strategy, 0); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	start := time.Now()
	outcomes := make([]Outcome, cfg.Battles)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := 0; i < cfg.Battles; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			game := cfg.game(i)
			first, err := game.Play()
			if err != nil {
				return err
			}
			again, err := cfg.game(i).Play()
			if err != nil {
				return err
			}
			if first.Digest != again.Digest {
				logger.Error("replay diverged",
					zap.Int("battle", i),
					zap.Uint16s("seed", game.Seed[:]),
					zap.String("first", first.Digest),
					zap.String("again", again.Digest))
				return fmt.Errorf("%w: battle %d seed %v", ErrNondeterministic, i, game.Seed)
			}
			first.Index = i
			outcomes[i] = first
			if first.Err != "" {
				logger.Warn("battle failed", zap.Int("battle", i), zap.Uint16s("seed", game.Seed[:]), zap.String("error", first.Err))
			} else {
				logger.Debug("battle done",
					zap.Int("battle", i),
					zap.Stringer("result", first.Result),
					zap.Int("turns", first.Turns))
			}
			return nil
		})
	}
	err := g.Wait()

	rep := &Report{Outcomes: outcomes, Elapsed: time.Since(start)}
	for _, o := range outcomes {
		if o.Digest != "" {
			rep.add(o)
		}
	}
	return rep, err
}

func (cfg *Config) game(i int) *Game {
	seed := Seed(cfg.Seed, i)
	g := &Game{
		Dex:      cfg.Dex,
		Rules:    cfg.Rules,
		Seed:     seed,
		MaxTurns: cfg.MaxTurns,
	}
	rng := rand.New(rand.NewPCG(uint64(seed[0])<<16|uint64(seed[1]), uint64(seed[2])<<16|uint64(seed[3])))
	if cfg.Teams != nil {
		g.Teams = *cfg.Teams
	} else {
		g.Teams = [2][]battle.Set{RandomTeam(cfg.Dex, rng), RandomTeam(cfg.Dex, rng)}
	}
	for p := range g.Players {
		g.Players[p], _ = ai.New(cfg.Strategy, rng.Uint64())
	}
	return g
}

// Game is one self-play battle.
type Game struct {
	Dex      *resource.Dex
	Rules    battle.Rules
	Teams    [2][]battle.Set
	Seed     [4]uint16
	Players  [2]ai.Strategy
	MaxTurns int
}

// Play runs g to the end or to MaxTurns. Engine failures, panics included,
// are reported in the outcome; the error is for invalid rosters and
// strategy failures.
func (g *Game) Play() (out Outcome, err error) {
	out.Seed = g.Seed
	var lines []string
	defer func() {
		if p := recover(); p != nil {
			out.Err = fmt.Sprintf("panic: %v", p)
			out.Lines = len(lines)
			out.Digest = protocol.Digest(lines)
		}
	}()
	b, err := battle.NewBattle(battle.BattleConfig{
		P1:    g.Teams[0],
		P2:    g.Teams[1],
		Seed:  g.Seed,
		Dex:   g.Dex,
		Rules: &g.Rules,
	})
	if err != nil {
		return out, err
	}
	lines = protocol.Header([2]string{b.Sides[0].Name, b.Sides[1].Name}, [2]int{len(g.Teams[0]), len(g.Teams[1])}, g.Rules)
	r, events, err := b.Start()
	lines = append(lines, protocol.Render(events)...)
	for err == nil && !r.Ended() && b.Turn < g.MaxTurns {
		var cs [2]battle.Choice
		for i, p := range g.Players {
			if cs[i], err = p.Choose(b, battle.SideID(i), r); err != nil {
				return out, fmt.Errorf("runner: %s choose: %w", battle.SideID(i), err)
			}
		}
		r, events, err = b.Play(cs[0], cs[1])
		lines = append(lines, protocol.Render(events)...)
	}
	if err != nil {
		out.Err = err.Error()
	}
	out.Result = r.Type
	out.Turns = b.Turn
	out.Lines = len(lines)
	out.Truncated = err == nil && !r.Ended()
	out.Digest = protocol.Digest(lines)
	return out, nil
}

// RandomTeam draws a roster of one to six species with up to four distinct
// moves each.
func RandomTeam(dex *resource.Dex, rng *rand.Rand) []battle.Set {
	team := make([]battle.Set, 1+rng.IntN(6))
	for i := range team {
		sp := dex.Species[rng.IntN(len(dex.Species))]
		moves := make([]string, 0, 4)
		for _, k := range rng.Perm(len(dex.Moves)) {
			if m := dex.Moves[k]; m.Num != resource.MoveStruggle {
				moves = append(moves, m.Name)
			}
			if len(moves) == cap(moves) {
				break
			}
		}
		team[i] = battle.Set{
			Species: sp.Name,
			Level:   50 + rng.IntN(51),
			Moves:   moves,
			EVs:     battle.MaxEVs,
		}
	}
	return team
}
