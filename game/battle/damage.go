package battle

import "github.com/kasuganosora/gen1sim/resource"

// DamageContext bundles everything needed to compute one damage event.
type DamageContext struct {
	Attacker *Combatant
	Defender *Combatant
	Move     *resource.Move
	Power    int
	Crit     bool
	// Effectiveness is the combined type factor in hundredths; 100 is
	// neutral.
	Effectiveness int
	// Damage is filled in by the calculation.
	Damage int
}

// calculate runs the cartridge damage pipeline. It draws the damage roll
// only when the pre-roll damage exceeds 1.
func (b *Battle) calculate(ctx *DamageContext) int {
	// ① Pick the stats. A critical hit doubles the level and reads the
	// stored stats, which skips stages, status drops and screens.
	a, d, m := ctx.Attacker, ctx.Defender, ctx.Move
	special := m.Special()
	level := a.Level
	var atk, def int
	if ctx.Crit {
		level *= 2
		atk, def = a.Stored.Atk, d.Stored.Def
		if special {
			atk, def = a.Stored.Spc, d.Stored.Spc
		}
	} else {
		atk, def = a.Stats.Atk, d.Stats.Def
		if special {
			atk, def = a.Stats.Spc, d.Stats.Spc
			if d.Volatiles.Has(VolLightScreen) {
				def *= 2
			}
		} else if d.Volatiles.Has(VolReflect) {
			def *= 2
		}
	}

	// ② Stats past one byte are quartered and truncated to a byte, which
	// is where the rollover and division by zero anomalies come from.
	if atk > 255 || def > 255 {
		atk = max((atk/4)&0xFF, 1)
		def = max((def/4)&0xFF, 1)
	}

	// ③ Self-destructing moves halve defense.
	if m.Effect == resource.Explode {
		def = max(def/2, 1)
	}

	// ④ Base damage, clamped to 1..997 before the +2.
	dmg := baseDamage(level, ctx.Power, atk, def)

	// ⑤ Same-type bonus.
	if a.HasType(m.Type) {
		dmg += dmg / 2
	}

	// ⑥ Type effectiveness, one truncation per defending type.
	dmg = b.applyEffectiveness(dmg, m.Type, d)

	// ⑦ Random roll in 217..255.
	if dmg > 1 {
		dmg = dmg * b.rangeOf(TagDamage, 217, 256) / 255
	}

	// ⑧ A hit that lands always removes something.
	if dmg == 0 {
		dmg = 1
	}
	ctx.Damage = dmg
	return dmg
}

// effectiveness is the combined type factor of t against c in hundredths.
func (b *Battle) effectiveness(t resource.Type, c *Combatant) int {
	e := b.dex.Effectiveness(t, c.Types[0]) * 10
	if c.Types[1] != c.Types[0] {
		e = e * b.dex.Effectiveness(t, c.Types[1]) / 10
	}
	return e
}

func (b *Battle) applyEffectiveness(dmg int, t resource.Type, c *Combatant) int {
	dmg = dmg * b.dex.Effectiveness(t, c.Types[0]) / 10
	if c.Types[1] != c.Types[0] {
		dmg = dmg * b.dex.Effectiveness(t, c.Types[1]) / 10
	}
	return dmg
}

// confusionDamage is the typeless 40 power hit a confused combatant deals
// itself: own attack against own defense, no roll, no critical.
func confusionDamage(c *Combatant) int {
	atk, def := c.Stats.Atk, c.Stats.Def
	if c.Volatiles.Has(VolReflect) {
		def *= 2
	}
	if atk > 255 || def > 255 {
		atk = max((atk/4)&0xFF, 1)
		def = max((def/4)&0xFF, 1)
	}
	return baseDamage(c.Level, 40, atk, def)
}

func baseDamage(level, power, atk, def int) int {
	return min(max((level*2/5+2)*power*atk/def/50, 1), 997) + 2
}
