package battle

import (
	"github.com/kasuganosora/gen1sim/resource"
	"go.uber.org/zap"
)

// Action is one side's resolved intent for the turn.
type Action struct {
	Side   SideID
	Choice Choice
	// Move is the move the choice resolves to, including the move forced by
	// a lock when the side passes. Nil for switches.
	Move *resource.Move
}

// TurnManager determines the action order for a battle turn.
type TurnManager interface {
	// MakeActionOrder returns the two sides in execution order. It may draw
	// from the battle's random source to break ties.
	MakeActionOrder(b *Battle, acts [2]Action) [2]SideID
}

// DefaultTurnManager implements the cartridge ordering: switches before
// moves, then priority, then modified speed, then a coin flip.
type DefaultTurnManager struct{}

func (DefaultTurnManager) MakeActionOrder(b *Battle, acts [2]Action) [2]SideID {
	sw1 := acts[P1].Choice.Type == ChoiceSwitch
	sw2 := acts[P2].Choice.Type == ChoiceSwitch
	switch {
	case sw1 && !sw2:
		return [2]SideID{P1, P2}
	case sw2 && !sw1:
		return [2]SideID{P2, P1}
	case !sw1 && !sw2:
		p1, p2 := priority(acts[P1].Move), priority(acts[P2].Move)
		if p1 != p2 {
			if p1 > p2 {
				return [2]SideID{P1, P2}
			}
			return [2]SideID{P2, P1}
		}
	}

	// Both switching orders by the speed of the combatants leaving.
	s1 := b.Sides[P1].Active().Stats.Spe
	s2 := b.Sides[P2].Active().Stats.Spe
	if s1 > s2 || s1 == s2 && b.random(TagSpeedTie, 2) == 0 {
		return [2]SideID{P1, P2}
	}
	return [2]SideID{P2, P1}
}

func priority(m *resource.Move) int {
	if m == nil {
		return 0
	}
	return m.Priority
}

// resolveAction maps a choice to the move it will execute.
func (b *Battle) resolveAction(s *Side, ch Choice) Action {
	a := Action{Side: s.ID, Choice: ch}
	c := s.Active()
	switch ch.Type {
	case ChoiceMove:
		if ch.Data == 0 {
			a.Move = b.dex.MoveByNum(resource.MoveStruggle)
		} else {
			a.Move = c.Moves[ch.Data-1].Move
		}
	case ChoicePass:
		if c.HP == 0 {
			break
		}
		v := &c.Volatiles
		for _, k := range []VolatileKind{VolRecharging, VolThrashing, VolCharging, VolBide, VolRage} {
			if lock := v.Get(k); lock != nil {
				a.Move = lock.Move
				break
			}
		}
	}
	return a
}

// playTurn resolves one full turn from the two submitted choices.
func (b *Battle) playTurn(choices [2]Choice) {
	var acts [2]Action
	for i, s := range b.Sides {
		acts[i] = b.resolveAction(s, choices[i])
		// Recorded even if the combatant will not get to act.
		if choices[i].Type == ChoiceMove {
			s.LastSelectedMove = acts[i].Move
		}
	}

	order := b.turnMgr.MakeActionOrder(b, acts)
	b.logger.Debug("turn order",
		zap.Int("turn", b.Turn), zap.Stringer("first", order[0]), zap.Stringer("second", order[1]))

	for _, id := range order {
		a := acts[id]
		s := b.Sides[id]
		switch {
		case a.Choice.Type == ChoiceSwitch:
			s.switchTo(int(a.Choice.Data))
		case a.Move != nil:
			b.runAction(s.Active(), a)
		}
		// Any faint ends the turn; end-of-turn bookkeeping is skipped.
		if b.flushFaints() {
			return
		}
	}
	b.endTurn()
	b.nextTurn()
}

// endTurn counts down the turn-scoped volatiles of both actives.
func (b *Battle) endTurn() {
	for _, s := range b.Sides {
		c := s.Active()
		v := &c.Volatiles
		v.Remove(VolFlinch)

		if d := v.Get(VolDisable); d != nil {
			d.Duration--
			if d.Duration <= 0 {
				v.Remove(VolDisable)
				b.emit(ev(KindEnd, c.Ident(), "Disable"))
			}
		}
		if bind := v.Get(VolBinding); bind != nil {
			bind.Duration--
			if bind.Duration <= 0 {
				b.releaseBinding(c)
			}
		}
		if t := v.Get(VolPartiallyTrapped); t != nil {
			t.Duration--
			if t.Duration <= 0 {
				v.Remove(VolPartiallyTrapped)
			}
		}
	}
}

// releaseBinding ends c's binding lock and frees its target.
func (b *Battle) releaseBinding(c *Combatant) {
	bind := c.Volatiles.Get(VolBinding)
	if bind == nil {
		return
	}
	if t := bind.Target; t != nil && t.Active() {
		t.Volatiles.Remove(VolPartiallyTrapped)
	}
	c.Volatiles.Remove(VolBinding)
}
