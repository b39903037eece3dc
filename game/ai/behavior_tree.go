package ai

import "github.com/kasuganosora/gen1sim/game/battle"

// Status is the result of a behavior tree node tick.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
)

// Node is a single node in a behavior tree.
type Node interface {
	Tick(ctx *AIContext) Status
}

// Selector succeeds as soon as one child succeeds.
type Selector struct {
	Children []Node
}

func (s *Selector) Tick(ctx *AIContext) Status {
	for _, c := range s.Children {
		if c.Tick(ctx) == StatusSuccess {
			return StatusSuccess
		}
	}
	return StatusFailure
}

// Sequence succeeds only when all children succeed.
type Sequence struct {
	Children []Node
}

func (s *Sequence) Tick(ctx *AIContext) Status {
	for _, c := range s.Children {
		if c.Tick(ctx) == StatusFailure {
			return StatusFailure
		}
	}
	return StatusSuccess
}

// ConditionNode evaluates a predicate.
type ConditionNode struct {
	Fn func(*AIContext) bool
}

func (cn *ConditionNode) Tick(ctx *AIContext) Status {
	if cn.Fn(ctx) {
		return StatusSuccess
	}
	return StatusFailure
}

// ActionNode picks a choice. It fails when it has nothing to pick.
type ActionNode struct {
	Fn func(*AIContext) (battle.Choice, bool)
}

func (an *ActionNode) Tick(ctx *AIContext) Status {
	c, ok := an.Fn(ctx)
	if !ok {
		return StatusFailure
	}
	ctx.Picked = c
	return StatusSuccess
}

// Inverter negates the result of its child.
type Inverter struct {
	Child Node
}

func (i *Inverter) Tick(ctx *AIContext) Status {
	if i.Child.Tick(ctx) == StatusSuccess {
		return StatusFailure
	}
	return StatusSuccess
}

// BehaviorTree wraps the root node.
type BehaviorTree struct {
	Root Node
}

func (bt *BehaviorTree) Tick(ctx *AIContext) Status {
	if bt.Root == nil {
		return StatusFailure
	}
	return bt.Root.Tick(ctx)
}

// --- leaves ---

func forcedSwitch(ctx *AIContext) bool {
	return ctx.Result.Request(ctx.Side) == battle.RequestSwitch
}

// inDanger holds when the active combatant is below a quarter of its HP
// and a healthier teammate could come in.
func inDanger(ctx *AIContext) bool {
	return ctx.hpRatio(1) < 0.25 && len(ctx.switches()) > 0
}

func foeLow(ctx *AIContext) bool {
	f := ctx.foe()
	return f.HP*10 < f.MaxHP()*3
}

// healthiestSwitch picks the bench member with the highest HP ratio, the
// lowest position on ties.
func healthiestSwitch(ctx *AIContext) (battle.Choice, bool) {
	var best battle.Choice
	bestRatio := -1.0
	for _, c := range ctx.switches() {
		if r := ctx.hpRatio(int(c.Data)); r > bestRatio {
			best, bestRatio = c, r
		}
	}
	return best, bestRatio > ctx.hpRatio(1) || forcedSwitch(ctx) && bestRatio >= 0
}

// strongestMove picks the move with the best rating against the foe.
func strongestMove(ctx *AIContext) (battle.Choice, bool) {
	var best battle.Choice
	bestRating := 0
	for _, c := range ctx.moves() {
		if r := rate(ctx, c); r > bestRating {
			best, bestRating = c, r
		}
	}
	return best, bestRating > 0
}

func weightedPick(ctx *AIContext) (battle.Choice, bool) {
	if len(ctx.Choices) == 0 {
		return battle.Pass(), true
	}
	return weightedSelect(ctx, ctx.Choices), true
}

// DefaultTree switches out when forced or in danger, finishes a weakened
// foe with its strongest move, and otherwise picks by weighted rating.
func DefaultTree() *BehaviorTree {
	return &BehaviorTree{Root: &Selector{Children: []Node{
		&Sequence{Children: []Node{
			&ConditionNode{Fn: forcedSwitch},
			&ActionNode{Fn: healthiestSwitch},
		}},
		&Sequence{Children: []Node{
			&Inverter{Child: &ConditionNode{Fn: forcedSwitch}},
			&ConditionNode{Fn: inDanger},
			&ActionNode{Fn: healthiestSwitch},
		}},
		&Sequence{Children: []Node{
			&ConditionNode{Fn: foeLow},
			&ActionNode{Fn: strongestMove},
		}},
		&ActionNode{Fn: weightedPick},
	}}}
}
