package battle

import (
	"strconv"

	"github.com/kasuganosora/gen1sim/resource"
	"go.uber.org/zap"
)

// Hit count and binding duration distribution over a random(8) draw.
var multiHitTable = [8]int{2, 2, 2, 3, 3, 3, 4, 5}

var boostNames = [numBoosts]string{"atk", "def", "spe", "spa", "accuracy", "evasion"}

// attack resolves a damaging move against t.
func (b *Battle) attack(u, t *Combatant, m *resource.Move, src string, kind useKind) {
	e := m.Effect

	if e == resource.DreamEater && !t.Asleep() {
		b.announce(u, m, t, src)
		b.emit(ev(KindImmune, t.Ident()))
		return
	}
	eff := b.effectiveness(m.Type, t)
	if eff == 0 && e != resource.Binding && e != resource.LevelDamage {
		b.announce(u, m, t, src)
		b.emit(ev(KindImmune, t.Ident()))
		b.afterMiss(u, t, m, kind)
		return
	}
	if e == resource.OHKO && t.Stats.Spe > u.Stats.Spe {
		b.announce(u, m, t, src)
		b.emit(ev(KindImmune, t.Ident()).with(kw("ohko")))
		return
	}
	if !b.hits(u, t, m) {
		b.miss(u, m, t, src)
		b.afterMiss(u, t, m, kind)
		return
	}

	hadSub := t.Volatiles.Has(VolSubstitute)
	hits := 1
	switch e {
	case resource.DoubleHit, resource.Twineedle:
		hits = 2
	case resource.MultiHit:
		hits = multiHitTable[b.random(TagMultiHit, 8)]
	}

	var (
		dmg   int
		crit  bool
		typed bool
	)
	switch {
	case e == resource.FixedDamage:
		dmg = m.BP
	case e == resource.LevelDamage:
		dmg = u.Level
	case e == resource.Psywave:
		dmg = b.random(TagPsywave, u.Level*3/2)
	case e == resource.SuperFang:
		dmg = max(t.HP/2, 1)
	case e == resource.OHKO:
		dmg = 0xFFFF
	case e == resource.Binding && eff == 0:
		dmg = 0
	default:
		crit = b.random(TagCritical, 256) < critThreshold(u, e == resource.HighCritical)
		ctx := &DamageContext{
			Attacker:      u,
			Defender:      t,
			Move:          m,
			Power:         m.BP,
			Crit:          crit,
			Effectiveness: eff,
		}
		dmg = b.calculate(ctx)
		typed = true
	}

	b.announce(u, m, t, src)
	if crit {
		b.emit(ev(KindCrit, t.Ident()))
	}
	if typed {
		switch {
		case eff > 100:
			b.emit(ev(KindSuperEffective, t.Ident()))
		case eff < 100:
			b.emit(ev(KindResisted, t.Ident()))
		}
	}

	if e == resource.Psywave && dmg == 0 {
		hits = 0
	}
	var (
		dealt int
		broke bool
		n     int
	)
	for n < hits {
		n++
		var d int
		d, broke = b.dealDamage(t, dmg)
		dealt += d
		if e == resource.Twineedle {
			b.secondary(u, t, m, hadSub)
		}
		if broke || t.HP == 0 {
			break
		}
	}
	if hits > 1 {
		b.emit(ev(KindHitCount, t.Ident(), strconv.Itoa(n)))
	}
	if e == resource.OHKO && t.HP == 0 {
		b.emit(ev(KindOHKO))
	}
	b.rageHit(u, t)

	switch e {
	case resource.DrainHP, resource.DreamEater:
		if !hadSub && dealt > 0 && u.HP < u.MaxHP() {
			u.HP = min(u.MaxHP(), u.HP+max(1, dealt/2))
			b.emit(evHeal(u).with(from("drain"), of(t)))
		}
	case resource.Recoil, resource.Struggle:
		if !broke {
			r := dealt / 4
			if e == resource.Struggle {
				r = dealt / 2
			}
			b.hurt(u, max(1, r), from("Recoil"), of(t))
		}
	case resource.Explode:
		if !broke {
			u.HP = 0
			b.faint(u)
		}
	case resource.PayDay:
		b.emit(ev(KindFieldActivate, "move: Pay Day"))
	case resource.HyperBeam:
		if !broke && (t.HP > 0 || kind == useCalled) {
			u.Volatiles.Add(VolRecharging).Move = m
			b.recharge = u
		}
	case resource.Binding:
		if kind == useContinue {
			break
		}
		d := multiHitTable[b.random(TagBinding, 8)]
		if t.HP > 0 {
			t.Volatiles.Add(VolPartiallyTrapped).Duration = 2
		}
		if kind != useCalled {
			bind := u.Volatiles.Add(VolBinding)
			bind.Duration = d
			bind.Target = t
			bind.Damage = dmg
			bind.Move = m
		}
	case resource.Thrashing:
		b.thrashStep(u, m, kind)
	case resource.Rage:
		if kind != useContinue {
			u.Volatiles.Add(VolRage).Move = m
		}
	}

	if e.IsSecondary() && e != resource.Twineedle {
		b.secondary(u, t, m, hadSub)
	}
	if m.Type == resource.Fire && e != resource.Binding && !hadSub &&
		t.HP > 0 && t.Status == StatusFreeze {
		t.Status = StatusNone
		b.emit(ev(KindCureStatus, t.Ident(), StatusFreeze.String()).with(kw("msg")))
	}
}

// afterMiss applies what a move does when it misses or has no effect.
func (b *Battle) afterMiss(u, t *Combatant, m *resource.Move, kind useKind) {
	switch m.Effect {
	case resource.JumpKick:
		b.selfHit(u, 1)
	case resource.Explode:
		u.HP = 0
		b.faint(u)
	case resource.Thrashing:
		b.thrashStep(u, m, kind)
	case resource.Rage:
		if kind != useContinue {
			u.Volatiles.Add(VolRage).Move = m
		}
	case resource.Binding:
		if kind == useFresh {
			b.releaseBinding(u)
		}
	}
}

// thrashStep advances the Thrash lock. The lock ends in confusion.
func (b *Battle) thrashStep(u *Combatant, m *resource.Move, kind useKind) {
	if kind != useContinue {
		d := b.rangeOf(TagThrash, 3, 5)
		th := u.Volatiles.Add(VolThrashing)
		th.Duration = d - 1
		th.Move = m
		return
	}
	th := u.Volatiles.Get(VolThrashing)
	if th == nil {
		return
	}
	th.Duration--
	if th.Duration > 0 {
		return
	}
	u.Volatiles.Remove(VolThrashing)
	conf := u.Volatiles.Add(VolConfusion)
	conf.Duration = b.rangeOf(TagConfusion, 2, 6)
	b.emit(ev(KindStart, u.Ident(), "confusion").with(kw("silent")))
}

// dealDamage applies dmg to t, or to its substitute. It returns the damage
// taken and whether a substitute broke.
func (b *Battle) dealDamage(t *Combatant, dmg int) (int, bool) {
	if sub := t.Volatiles.Get(VolSubstitute); sub != nil {
		if dmg >= sub.HP {
			t.Volatiles.Remove(VolSubstitute)
			b.emit(ev(KindEnd, t.Ident(), "Substitute"))
			return 0, true
		}
		sub.HP -= dmg
		b.emit(ev(KindActivate, t.Ident(), "Substitute").with(kw("damage")))
		return dmg, false
	}
	dmg = min(dmg, t.HP)
	t.HP -= dmg
	b.LastDamage = dmg
	b.emit(evDamage(t))
	if t.HP == 0 {
		b.faint(t)
	}
	return dmg, false
}

// hurt removes HP outside of an attack. It does not touch LastDamage.
func (b *Battle) hurt(c *Combatant, dmg int, kws ...KWArg) {
	c.HP = max(0, c.HP-dmg)
	b.emit(evDamage(c).with(kws...))
	if c.HP == 0 {
		b.faint(c)
	}
}

// selfHit damages u with its own confusion or crash damage. A user behind a
// substitute hits the foe's substitute instead, if there is one.
func (b *Battle) selfHit(u *Combatant, dmg int, kws ...KWArg) {
	if !u.Volatiles.Has(VolSubstitute) {
		b.hurt(u, dmg, kws...)
		return
	}
	foe := u.Side.Foe().Active()
	if foe.Volatiles.Has(VolSubstitute) {
		b.dealDamage(foe, dmg)
	}
}

// rageHit boosts a raging target that was just hit.
func (b *Battle) rageHit(u, t *Combatant) {
	if t == u || t.HP == 0 || !t.Volatiles.Has(VolRage) {
		return
	}
	b.changeStat(t, t, BoostAtk, 1, false, from("Rage"))
}

// secondary rolls the chance effect of a damaging move. The roll is drawn
// even when the hit landed on a substitute or knocked the target out.
func (b *Battle) secondary(u, t *Combatant, m *resource.Move, hadSub bool) {
	e := m.Effect
	switch e {
	case resource.BurnChance1, resource.BurnChance2, resource.FreezeChance,
		resource.ParalyzeChance1, resource.ParalyzeChance2:
		if t.HasType(m.Type) {
			return
		}
	}
	if b.random(TagSecondary, 256) >= secondaryThreshold(e) {
		return
	}
	if hadSub || t.HP == 0 {
		return
	}
	switch e {
	case resource.PoisonChance1, resource.PoisonChance2, resource.Twineedle:
		if t.Status != StatusNone || t.HasType(resource.Poison) {
			return
		}
		b.inflict(u, t, StatusPoison)
	case resource.BurnChance1, resource.BurnChance2:
		if t.Status != StatusNone {
			return
		}
		b.inflict(u, t, StatusBurn)
	case resource.FreezeChance:
		if t.Status != StatusNone || b.freezeClause(t) {
			return
		}
		b.inflict(u, t, StatusFreeze)
	case resource.ParalyzeChance1, resource.ParalyzeChance2:
		if t.Status != StatusNone {
			return
		}
		b.inflict(u, t, StatusParalysis)
	case resource.FlinchChance1, resource.FlinchChance2:
		t.Volatiles.Add(VolFlinch)
		t.Volatiles.Remove(VolRecharging)
	case resource.ConfusionChance:
		if t.Volatiles.Has(VolConfusion) {
			return
		}
		conf := t.Volatiles.Add(VolConfusion)
		conf.Duration = b.rangeOf(TagConfusion, 2, 6)
		b.emit(ev(KindStart, t.Ident(), "confusion"))
	case resource.AttackDownChance:
		b.changeStat(u, t, BoostAtk, -1, false)
	case resource.DefenseDownChance:
		b.changeStat(u, t, BoostDef, -1, false)
	case resource.SpeedDownChance:
		b.changeStat(u, t, BoostSpe, -1, false)
	case resource.SpecialDownChance:
		b.changeStat(u, t, BoostSpc, -1, true)
	}
}

// inflict sets a status from a foe's move and emits it.
func (b *Battle) inflict(u, t *Combatant, st Status, kws ...KWArg) {
	t.Status = st
	t.StatusSource = u
	switch st {
	case StatusParalysis:
		t.Volatiles.Add(VolParSpeedDrop)
		t.applyParalysisDrop()
	case StatusBurn:
		t.Volatiles.Add(VolBrnAttackDrop)
		t.applyBurnDrop()
	}
	b.emit(ev(KindStatus, t.Ident(), st.String()).with(kws...))
}

func (b *Battle) sleepClause(t *Combatant) bool {
	if !b.rules.SleepClause {
		return false
	}
	for _, c := range t.Side.Team {
		if c != t && c.HP > 0 && c.Status == StatusSleep && c.SleptByFoe {
			return true
		}
	}
	return false
}

func (b *Battle) freezeClause(t *Combatant) bool {
	if !b.rules.FreezeClause {
		return false
	}
	for _, c := range t.Side.Team {
		if c.HP > 0 && c.Status == StatusFreeze {
			return true
		}
	}
	return false
}

// statEffect maps a stat-changing effect to the boost it changes.
func statEffect(e resource.Effect) (stat, n int) {
	switch e {
	case resource.AttackUp1:
		return BoostAtk, 1
	case resource.AttackUp2:
		return BoostAtk, 2
	case resource.DefenseUp1:
		return BoostDef, 1
	case resource.DefenseUp2:
		return BoostDef, 2
	case resource.SpeedUp2:
		return BoostSpe, 2
	case resource.SpecialUp1, resource.SpecialUp2:
		return BoostSpc, 1 + int(e-resource.SpecialUp1)
	case resource.EvasionUp1:
		return BoostEvasion, 1
	case resource.AttackDown1:
		return BoostAtk, -1
	case resource.DefenseDown1:
		return BoostDef, -1
	case resource.DefenseDown2:
		return BoostDef, -2
	case resource.SpeedDown1:
		return BoostSpe, -1
	case resource.AccuracyDown1:
		return BoostAccuracy, -1
	}
	return 0, 0
}

// changeStat moves c's stage by n on behalf of by. It reports false when the
// stage is already at its limit. Special is one stat but prints as two
// lines; spdFirst picks their order.
//
// A successful change also reapplies the paralysis or burn penalty to by's
// opponent. A penalty on a stat that was not just rebuilt stacks.
func (b *Battle) changeStat(by, c *Combatant, stat, n int, spdFirst bool, kws ...KWArg) bool {
	old := c.Boosts[stat]
	c.Boosts[stat] = clamp(old+n, -6, 6)
	delta := c.Boosts[stat] - old
	if delta == 0 {
		return false
	}
	c.recompute(stat)

	kind := KindBoost
	amount := delta
	if delta < 0 {
		kind, amount = KindUnboost, -delta
	}
	if stat == BoostSpc {
		first, second := "spa", "spd"
		if spdFirst {
			first, second = second, first
		}
		b.emit(evBoost(kind, c, first, amount).with(kws...))
		b.emit(evBoost(kind, c, second, amount).with(kws...))
	} else {
		b.emit(evBoost(kind, c, boostNames[stat], amount).with(kws...))
	}

	foe := by.Side.Foe().Active()
	switch foe.Status {
	case StatusParalysis:
		foe.applyParalysisDrop()
	case StatusBurn:
		foe.applyBurnDrop()
	}
	return true
}

// statusMove resolves a move that deals no damage.
func (b *Battle) statusMove(u, t *Combatant, m *resource.Move, src string) {
	e := m.Effect
	if t == u {
		b.announce(u, m, u, src)
		b.selfEffect(u, m)
		return
	}

	switch {
	case m.Num == resource.MoveThunderWave && b.effectiveness(m.Type, t) == 0,
		e == resource.LeechSeed && t.HasType(resource.Grass):
		b.announce(u, m, t, src)
		b.emit(ev(KindImmune, t.Ident()))
		return
	}

	// Sleep lands on a recharging target without an accuracy check.
	sleepGlitch := e == resource.Sleep && t.Volatiles.Has(VolRecharging)
	var ok bool
	switch {
	case sleepGlitch:
		ok = true
	case e == resource.Transform || e == resource.Mimic:
		ok = !invulnerable(t)
	default:
		ok = b.hits(u, t, m)
	}
	if !ok {
		b.miss(u, m, t, src)
		return
	}

	b.announce(u, m, t, src)
	b.LastDamage = 0
	b.rageHit(u, t)

	hasSub := t.Volatiles.Has(VolSubstitute)
	switch e {
	case resource.Sleep:
		if !sleepGlitch {
			if t.Status == StatusSleep {
				b.emit(evFail(t, "slp"))
				return
			}
			if t.Status != StatusNone {
				b.emit(evFail(t))
				return
			}
		}
		if b.sleepClause(t) {
			return
		}
		t.Volatiles.Remove(VolRecharging)
		t.SleepTurns = b.rangeOf(TagSleep, 1, 8)
		t.SleptByFoe = true
		b.inflict(u, t, StatusSleep, from("move: "+m.Name))

	case resource.PoisonEffect:
		switch {
		case t.Poisoned():
			b.emit(evFail(t, t.Status.String()))
		case t.Status != StatusNone:
			b.emit(evFail(t))
		case t.HasType(resource.Poison):
			b.emit(ev(KindImmune, t.Ident()))
		case hasSub:
			b.emit(evFail(t))
		case m.Num == resource.MoveToxic:
			t.Volatiles.Add(VolToxic)
			b.inflict(u, t, StatusToxic)
		default:
			b.inflict(u, t, StatusPoison)
		}

	case resource.Paralyze:
		switch {
		case t.Status == StatusParalysis:
			b.emit(evFail(t, "par"))
		case t.Status != StatusNone:
			b.emit(evFail(t))
		default:
			b.inflict(u, t, StatusParalysis)
		}

	case resource.Confusion:
		if hasSub {
			b.emit(evFail(t))
			return
		}
		if t.Volatiles.Has(VolConfusion) {
			return
		}
		conf := t.Volatiles.Add(VolConfusion)
		conf.Duration = b.rangeOf(TagConfusion, 2, 6)
		b.emit(ev(KindStart, t.Ident(), "confusion"))

	case resource.AttackDown1, resource.DefenseDown1, resource.DefenseDown2,
		resource.SpeedDown1, resource.AccuracyDown1:
		if hasSub || t.Volatiles.Has(VolMist) {
			b.emit(evFail(t))
			return
		}
		stat, n := statEffect(e)
		if !b.changeStat(u, t, stat, n, false) {
			b.emit(evFail(t))
		}

	case resource.LeechSeed:
		if t.Volatiles.Has(VolLeechSeed) {
			return
		}
		t.Volatiles.Add(VolLeechSeed)
		b.emit(ev(KindStart, t.Ident(), "move: Leech Seed"))

	case resource.Disable:
		if t.LastMove == nil {
			b.emit(evFail(t))
			return
		}
		if t.Volatiles.Has(VolDisable) {
			return
		}
		d := b.rangeOf(TagDisableDuration, 1, 7)
		slot := t.Moves[b.random(TagDisableMove, len(t.Moves))]
		dis := t.Volatiles.Add(VolDisable)
		dis.Duration = d
		dis.Move = slot.Move
		b.emit(ev(KindStart, t.Ident(), "Disable", slot.Move.Name))

	case resource.Mimic:
		slot := u.slotOf(b.dex.MoveByNum(resource.MoveMimic))
		if slot == 0 {
			b.emit(evFail(u))
			return
		}
		copied := t.Moves[b.random(TagMimic, len(t.Moves))].Move
		u.Moves[slot-1].Move = copied
		u.mimicSlot = slot
		b.emit(ev(KindStart, u.Ident(), "Mimic", copied.Name))

	case resource.Transform:
		u.transformInto(t)
		b.emit(ev(KindTransform, u.Ident(), t.Ident()))

	case resource.SwitchAndTeleport:
		// Whirlwind and Roar do nothing in a trainer battle.
	}
}

// selfEffect resolves a status move aimed at its user.
func (b *Battle) selfEffect(u *Combatant, m *resource.Move) {
	e := m.Effect
	v := &u.Volatiles
	switch e {
	case resource.AttackUp1, resource.AttackUp2, resource.DefenseUp1,
		resource.DefenseUp2, resource.SpeedUp2, resource.SpecialUp1,
		resource.SpecialUp2, resource.EvasionUp1:
		stat, n := statEffect(e)
		if !b.changeStat(u, u, stat, n, e == resource.SpecialUp2) {
			b.emit(evFail(u))
		}

	case resource.FocusEnergy:
		if v.Has(VolFocusEnergy) {
			b.emit(evFail(u))
			return
		}
		v.Add(VolFocusEnergy)
		b.emit(ev(KindStart, u.Ident(), "move: Focus Energy"))

	case resource.Haze:
		b.haze(u)

	case resource.Heal:
		if !b.canHeal(u) {
			b.emit(evFail(u))
			return
		}
		u.HP = min(u.MaxHP(), u.HP+u.MaxHP()/2)
		b.emit(evHeal(u))

	case resource.Rest:
		if !b.canHeal(u) {
			b.emit(evFail(u))
			return
		}
		b.rangeOf(TagSleep, 1, 8)
		u.Status = StatusSleep
		u.SleepTurns = 2
		u.SleptByFoe = false
		u.StatusSource = nil
		b.emit(ev(KindStatus, u.Ident(), StatusSleep.String()).with(from("move: Rest")))
		u.HP = u.MaxHP()
		b.emit(evHeal(u).with(kw("silent")))

	case resource.LightScreen, resource.Reflect, resource.Mist:
		k, name := VolLightScreen, "Light Screen"
		switch e {
		case resource.Reflect:
			k, name = VolReflect, "Reflect"
		case resource.Mist:
			k, name = VolMist, "Mist"
		}
		if v.Has(k) {
			b.emit(evFail(u))
			return
		}
		v.Add(k)
		b.emit(ev(KindStart, u.Ident(), name))

	case resource.Splash:
		b.emit(ev(KindNothing))

	case resource.Substitute:
		if v.Has(VolSubstitute) {
			b.emit(evFail(u, "move: Substitute"))
			return
		}
		if u.HP*4 < u.MaxHP() {
			b.emit(evFail(u, "move: Substitute").with(kw("weak")))
			return
		}
		cost := u.MaxHP() / 4
		v.Add(VolSubstitute).HP = cost + 1
		b.emit(ev(KindStart, u.Ident(), "Substitute"))
		if cost > 0 {
			b.hurt(u, cost)
		}

	case resource.Conversion:
		t := u.Side.Foe().Active()
		u.Types = t.Types
		types := t.Types[0].String()
		if t.Types[1] != t.Types[0] {
			types += "/" + t.Types[1].String()
		}
		b.emit(ev(KindStart, u.Ident(), "typechange", types).with(from("move: Conversion"), of(t)))

	case resource.SwitchAndTeleport:
		// Teleport fails silently in a trainer battle.

	default:
		b.logger.Warn("unhandled self effect", zap.String("move", m.Name), zap.Stringer("effect", e))
	}
}

// canHeal is the recovery check. The cartridge compares the HP bytes
// separately, so a gap of 255 (mod 256) reads as full health.
func (b *Battle) canHeal(u *Combatant) bool {
	missing := u.MaxHP() - u.HP
	return missing != 0 && missing%256 != 255
}

// haze resets both actives. The user keeps its status; the foe's is cured.
func (b *Battle) haze(u *Combatant) {
	b.emit(ev(KindActivate, u.Ident(), "move: Haze"))
	b.emit(ev(KindClearAllBoost).with(kw("silent")))
	foe := u.Side.Foe().Active()
	for _, c := range []*Combatant{u, foe} {
		c.Boosts = Boosts{}
		if c == foe && c.Status != StatusNone {
			st := c.Status
			c.Status = StatusNone
			c.SleepTurns = 0
			c.SleptByFoe = false
			b.emit(ev(KindCureStatus, c.Ident(), st.String()).with(kw("silent")))
		}
		if c.Status == StatusToxic {
			c.Status = StatusPoison
		}
		for _, k := range c.Volatiles.Ordered() {
			if k == VolToxic {
				c.Volatiles.Get(k).Counter = 0
				continue
			}
			switch k {
			case VolConfusion:
				b.emit(ev(KindEnd, c.Ident(), "confusion"))
			case VolDisable:
				b.emit(ev(KindEnd, c.Ident(), "Disable"))
			}
			c.Volatiles.Remove(k)
			b.emit(ev(KindEnd, c.Ident(), k.String()).with(kw("silent")))
		}
		c.recomputeAll()
	}
}
