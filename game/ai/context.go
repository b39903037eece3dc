package ai

import (
	"math/rand/v2"

	"github.com/kasuganosora/gen1sim/game/battle"
)

// AIContext is passed to every behavior tree node while one choice is made.
type AIContext struct {
	Battle  *battle.Battle
	Side    battle.SideID
	Result  battle.Result
	Choices []battle.Choice // legal choices, switches first
	Rng     *rand.Rand

	// Picked is set by the action node that succeeded.
	Picked battle.Choice
}

func (c *AIContext) self() *battle.Side { return c.Battle.Sides[c.Side] }

func (c *AIContext) foe() *battle.Combatant { return c.self().Foe().Active() }

// switches returns the switch choices among the legal ones.
func (c *AIContext) switches() []battle.Choice {
	var out []battle.Choice
	for _, ch := range c.Choices {
		if ch.Type == battle.ChoiceSwitch {
			out = append(out, ch)
		}
	}
	return out
}

func (c *AIContext) moves() []battle.Choice {
	var out []battle.Choice
	for _, ch := range c.Choices {
		if ch.Type == battle.ChoiceMove {
			out = append(out, ch)
		}
	}
	return out
}

// hpRatio is HP over max HP of the combatant at 1-based position pos.
func (c *AIContext) hpRatio(pos int) float64 {
	m := c.self().Team[pos-1]
	if m.MaxHP() == 0 {
		return 0
	}
	return float64(m.HP) / float64(m.MaxHP())
}
