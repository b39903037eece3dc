package battle

import (
	"github.com/kasuganosora/gen1sim/resource"
	"go.uber.org/zap"
)

// useKind distinguishes how a move came to be executed.
type useKind uint8

const (
	useFresh    useKind = iota // chosen from the moveset this turn
	useCalled                  // called by Metronome or Mirror Move
	useContinue                // a locked continuation or a charged second turn
)

// runAction executes one move action: the pre-move gates, the move itself,
// then the actor's residual damage.
func (b *Battle) runAction(c *Combatant, a Action) {
	if b.beforeMove(c, a) {
		b.executeMove(c, a)
	}
	// A faint caused by the move ends the turn before any residual.
	if len(b.faints) == 0 && c.HP > 0 {
		b.residual(c, b.targetOf(c, a.Move) != c)
	}
	if b.recharge == c {
		if c.HP > 0 {
			b.emit(ev(KindMustRecharge, c.Ident()))
		}
		b.recharge = nil
	}
}

// beforeMove runs the status gates in cartridge order. It reports whether
// the combatant gets to act.
func (b *Battle) beforeMove(c *Combatant, a Action) bool {
	v := &c.Volatiles

	if c.Status == StatusSleep {
		c.SleepTurns--
		if c.SleepTurns <= 0 {
			c.Status = StatusNone
			c.SleepTurns = 0
			c.SleptByFoe = false
			b.emit(ev(KindCureStatus, c.Ident(), StatusSleep.String()).with(kw("msg")))
		} else {
			b.emit(evCant(c, "slp"))
		}
		b.interrupt(c)
		return false
	}
	if c.Status == StatusFreeze {
		b.emit(evCant(c, "frz"))
		b.interrupt(c)
		return false
	}
	if v.Has(VolRecharging) {
		v.Remove(VolRecharging)
		b.emit(evCant(c, "recharge"))
		return false
	}
	if v.Has(VolFlinch) {
		v.Remove(VolFlinch)
		b.emit(evCant(c, "flinch"))
		b.interrupt(c)
		return false
	}
	if d := v.Get(VolDisable); d != nil && a.Move == d.Move {
		b.emit(evCant(c, "Disable", d.Move.Name))
		b.interrupt(c)
		return false
	}
	if v.Has(VolPartiallyTrapped) {
		b.emit(evCant(c, "partiallytrapped"))
		b.interrupt(c)
		return false
	}
	if conf := v.Get(VolConfusion); conf != nil {
		conf.Duration--
		if conf.Duration <= 0 {
			v.Remove(VolConfusion)
			b.emit(ev(KindEnd, c.Ident(), "confusion"))
		} else {
			b.emit(ev(KindActivate, c.Ident(), "confusion"))
			if b.random(TagConfused, 256) >= 128 {
				dmg := confusionDamage(c)
				b.selfHit(c, dmg, from("confusion"))
				b.interrupt(c)
				return false
			}
		}
	}
	if c.Status == StatusParalysis && b.random(TagParalyzed, 256) < 63 {
		b.emit(evCant(c, "par"))
		b.interrupt(c)
		return false
	}
	return true
}

// interrupt drops the multi-turn states a lost turn cancels. Rage and
// recharging survive.
func (b *Battle) interrupt(c *Combatant) {
	v := &c.Volatiles
	v.Remove(VolThrashing)
	v.Remove(VolCharging)
	v.Remove(VolBide)
	b.releaseBinding(c)
}

// executeMove resolves the move the action stands for, honouring locks.
func (b *Battle) executeMove(c *Combatant, a Action) {
	v := &c.Volatiles
	switch {
	case v.Has(VolBide):
		b.bideTurn(c)
		return
	case v.Has(VolThrashing):
		m := v.Get(VolThrashing).Move
		b.useMove(c, m, m.Name, useContinue)
		return
	case v.Has(VolCharging):
		m := v.Get(VolCharging).Move
		v.Remove(VolCharging)
		b.useMove(c, m, m.Name, useContinue)
		return
	case v.Has(VolRage):
		m := v.Get(VolRage).Move
		b.useMove(c, m, m.Name, useContinue)
		return
	}

	m := a.Move
	foe := c.Side.Foe().Active()
	if bind := v.Get(VolBinding); bind != nil && bind.Move == m && bind.Target == foe && foe.HP > 0 {
		b.continueBinding(c, bind)
		return
	}

	slot := int(a.Choice.Data)
	if a.Choice.Type != ChoiceMove {
		slot = c.slotOf(m)
	}
	if slot > 0 {
		s := &c.Moves[slot-1]
		// PP is a six bit counter on the cartridge.
		s.PP--
		if s.PP < 0 {
			s.PP = 63
		}
	}
	c.LastMove = m
	b.logger.Debug("use move",
		zap.String("user", c.Ident()), zap.String("move", m.Name), zap.Int("slot", slot))
	b.useMove(c, m, "", useFresh)
}

// useMove dispatches on the move's effect. src is the [from] attribution of
// the move line, empty for a freshly chosen move.
func (b *Battle) useMove(u *Combatant, m *resource.Move, src string, kind useKind) {
	u.Side.LastUsedMove = m
	t := b.targetOf(u, m)
	switch e := m.Effect; {
	case e == resource.Metronome:
		b.announce(u, m, u, src)
		called := b.metronomePool[b.random(TagMetronome, len(b.metronomePool))]
		b.useMove(u, called, m.Name, useCalled)
	case e == resource.MirrorMove:
		b.mirrorMove(u, m, src)
	case e == resource.Bide:
		b.startBide(u, m, src)
	case e == resource.Counter:
		b.counter(u, t, m, src)
	case (e == resource.Charge || e == resource.Fly || e == resource.SkyAttack) && kind != useContinue:
		b.prepare(u, m, src)
	case e.IsStatus():
		b.statusMove(u, t, m, src)
	default:
		b.attack(u, t, m, src, kind)
	}
}

// targetOf returns the combatant the move line names.
func (b *Battle) targetOf(u *Combatant, m *resource.Move) *Combatant {
	if m == nil {
		return u
	}
	if m.Effect.SelfTargeting() && m.Effect != resource.Conversion || m.Num == resource.MoveTeleport {
		return u
	}
	return u.Side.Foe().Active()
}

func invulnerable(c *Combatant) bool {
	ch := c.Volatiles.Get(VolCharging)
	return ch != nil && ch.Invulnerable
}

// hits performs the accuracy check. An invulnerable target is missed
// without a draw; Swift never misses.
func (b *Battle) hits(u, t *Combatant, m *resource.Move) bool {
	if m.Effect == resource.Swift {
		return true
	}
	if t != u && invulnerable(t) {
		return false
	}
	thr := accuracyThreshold(m.Accuracy, u.Boosts[BoostAccuracy], t.Boosts[BoostEvasion])
	return b.random(TagAccuracy, 256) < thr
}

// announce emits the move line.
func (b *Battle) announce(u *Combatant, m *resource.Move, t *Combatant, src string, kws ...KWArg) {
	e := evMove(u, m.Name, t)
	if src != "" {
		e = e.with(from(src))
	}
	b.emit(e.with(kws...))
}

func (b *Battle) miss(u *Combatant, m *resource.Move, t *Combatant, src string) {
	b.announce(u, m, t, src, kw("miss"))
	b.emit(ev(KindMiss, u.Ident()))
}

// prepare runs the charge turn of a two-turn move.
func (b *Battle) prepare(u *Combatant, m *resource.Move, src string) {
	ch := u.Volatiles.Add(VolCharging)
	ch.Move = m
	ch.Invulnerable = m.Effect == resource.Fly
	b.announce(u, m, nil, src, kw("still"))
	b.emit(ev(KindPrepare, u.Ident(), m.Name))
}

func (b *Battle) mirrorMove(u *Combatant, m *resource.Move, src string) {
	b.announce(u, m, u, src)
	last := u.Side.Foe().Active().LastMove
	if last == nil || last.Effect == resource.MirrorMove {
		b.emit(evFail(u))
		return
	}
	b.useMove(u, last, m.Name, useCalled)
}

// counterable reports whether m is a move Counter can answer: a damaging
// Normal or Fighting move other than Counter. Fixed damage moves do not
// count, level and half-HP damage do.
func counterable(m *resource.Move) bool {
	if m == nil || m.Effect == resource.Counter {
		return false
	}
	if m.Type != resource.Normal && m.Type != resource.Fighting {
		return false
	}
	switch m.Effect {
	case resource.LevelDamage, resource.SuperFang:
		return true
	case resource.FixedDamage:
		return false
	}
	return m.BP > 0
}

func (b *Battle) counter(u, t *Combatant, m *resource.Move, src string) {
	if !b.hits(u, t, m) {
		b.miss(u, m, t, src)
		return
	}
	b.announce(u, m, t, src)
	foe := u.Side.Foe()
	if !counterable(foe.LastUsedMove) || !counterable(foe.LastSelectedMove) || b.LastDamage == 0 {
		b.emit(evFail(u))
		return
	}
	b.dealDamage(t, 2*b.LastDamage)
}

func (b *Battle) startBide(u *Combatant, m *resource.Move, src string) {
	b.announce(u, m, u, src)
	bide := u.Volatiles.Add(VolBide)
	bide.Move = m
	bide.Duration = b.rangeOf(TagBide, 2, 4)
	b.emit(ev(KindStart, u.Ident(), "Bide"))
}

// bideTurn stores energy, or releases twice the stored damage on the last
// turn. The release ignores typing and invulnerability.
func (b *Battle) bideTurn(u *Combatant) {
	bide := u.Volatiles.Get(VolBide)
	bide.Duration--
	if bide.Duration > 0 {
		bide.Damage += b.LastDamage
		b.emit(ev(KindActivate, u.Ident(), "Bide"))
		return
	}
	total := bide.Damage
	u.Volatiles.Remove(VolBide)
	b.emit(ev(KindEnd, u.Ident(), "Bide"))
	if total == 0 {
		b.emit(evFail(u))
		return
	}
	t := u.Side.Foe().Active()
	if t.Volatiles.Has(VolSubstitute) {
		return
	}
	b.dealDamage(t, 2*total)
}

// continueBinding replays a binding move on its trapped target: no draws,
// no PP, the stored damage.
func (b *Battle) continueBinding(u *Combatant, bind *Volatile) {
	t := bind.Target
	u.Side.LastUsedMove = bind.Move
	b.announce(u, bind.Move, t, bind.Move.Name)
	b.dealDamage(t, bind.Damage)
	t.Volatiles.Add(VolPartiallyTrapped).Duration = 2
}
