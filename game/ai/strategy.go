// Package ai picks choices for computer-controlled seats and self-play.
package ai

import (
	"fmt"
	"math/rand/v2"

	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/kasuganosora/gen1sim/resource"
)

// Strategy picks one choice for a side after a result.
type Strategy interface {
	Choose(b *battle.Battle, id battle.SideID, r battle.Result) (battle.Choice, error)
}

// New returns the named strategy: "random", "weighted" or "tree".
func New(name string, seed uint64) (Strategy, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	switch name {
	case "", "random":
		return &Random{Rng: rng}, nil
	case "weighted":
		return &Weighted{Rng: rng}, nil
	case "tree":
		return &Tree{Rng: rng, BT: DefaultTree()}, nil
	}
	return nil, fmt.Errorf("ai: unknown strategy %q", name)
}

func newContext(b *battle.Battle, id battle.SideID, r battle.Result, rng *rand.Rand) (*AIContext, error) {
	cs, err := b.Choices(id, r)
	if err != nil {
		return nil, err
	}
	return &AIContext{Battle: b, Side: id, Result: r, Choices: cs, Rng: rng}, nil
}

// Random picks uniformly among the legal choices.
type Random struct {
	Rng *rand.Rand
}

func (s *Random) Choose(b *battle.Battle, id battle.SideID, r battle.Result) (battle.Choice, error) {
	cs, err := b.Choices(id, r)
	if err != nil {
		return battle.Choice{}, err
	}
	if len(cs) == 0 {
		return battle.Pass(), nil
	}
	return cs[s.Rng.IntN(len(cs))], nil
}

// Weighted rates every legal choice and draws among the best rated ones.
type Weighted struct {
	Rng *rand.Rand
}

func (s *Weighted) Choose(b *battle.Battle, id battle.SideID, r battle.Result) (battle.Choice, error) {
	ctx, err := newContext(b, id, r, s.Rng)
	if err != nil {
		return battle.Choice{}, err
	}
	if len(ctx.Choices) == 0 {
		return battle.Pass(), nil
	}
	return weightedSelect(ctx, ctx.Choices), nil
}

// Tree runs a behavior tree per decision.
type Tree struct {
	Rng *rand.Rand
	BT  *BehaviorTree
}

func (s *Tree) Choose(b *battle.Battle, id battle.SideID, r battle.Result) (battle.Choice, error) {
	ctx, err := newContext(b, id, r, s.Rng)
	if err != nil {
		return battle.Choice{}, err
	}
	if len(ctx.Choices) == 0 {
		return battle.Pass(), nil
	}
	if s.BT.Tick(ctx) != StatusSuccess {
		return ctx.Choices[0], nil
	}
	return ctx.Picked, nil
}

// rate scores a choice from 0 (useless) to 9. Damaging moves scale with
// power against the foe's types, status moves sit in the middle and
// switches low unless forced.
func rate(ctx *AIContext, c battle.Choice) int {
	self := ctx.self()
	switch c.Type {
	case battle.ChoiceSwitch:
		if forcedSwitch(ctx) {
			return 1 + int(8*ctx.hpRatio(int(c.Data)))
		}
		return 2
	case battle.ChoiceMove:
		if c.Data == 0 {
			return 1
		}
		user := self.Active()
		m := user.Moves[c.Data-1].Move
		if m.BP == 0 {
			return 4
		}
		power := m.BP
		if user.HasType(m.Type) {
			power = power * 3 / 2
		}
		foe := ctx.foe()
		dex := ctx.Battle.Dex()
		power = power * dex.Effectiveness(m.Type, foe.Types[0]) / resource.Neutral
		if foe.Types[1] != foe.Types[0] {
			power = power * dex.Effectiveness(m.Type, foe.Types[1]) / resource.Neutral
		}
		if power == 0 {
			return 0
		}
		return min(9, 1+power/25)
	}
	return 1
}

// weightedSelect keeps the choices rated within two of the best and draws
// one with weight rating - (best - 3).
func weightedSelect(ctx *AIContext, choices []battle.Choice) battle.Choice {
	ratings := make([]int, len(choices))
	maxRating := 0
	for i, c := range choices {
		ratings[i] = rate(ctx, c)
		maxRating = max(maxRating, ratings[i])
	}
	if maxRating == 0 {
		return choices[ctx.Rng.IntN(len(choices))]
	}

	threshold := maxRating - 2
	base := maxRating - 3
	var filtered []battle.Choice
	var weights []int
	total := 0
	for i, c := range choices {
		if ratings[i] < threshold || ratings[i] == 0 {
			continue
		}
		w := max(1, ratings[i]-base)
		filtered = append(filtered, c)
		weights = append(weights, w)
		total += w
	}

	roll := ctx.Rng.IntN(total)
	for i, w := range weights {
		roll -= w
		if roll < 0 {
			return filtered[i]
		}
	}
	return filtered[len(filtered)-1]
}
