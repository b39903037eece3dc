package battle

import "github.com/kasuganosora/gen1sim/resource"

// Boost indices.
const (
	BoostAtk = iota
	BoostDef
	BoostSpe
	BoostSpc
	BoostAccuracy
	BoostEvasion

	numBoosts
)

// Boosts holds stat stages in -6..+6.
type Boosts [numBoosts]int

// Stat ceiling after a stage is applied.
const maxStat = 999

// Stage multipliers for -6..+6 as numerator/denominator pairs. The same
// table scales stats and accuracy.
var stageRatios = [13][2]int{
	{25, 100}, {28, 100}, {33, 100}, {40, 100}, {50, 100}, {66, 100},
	{1, 1},
	{15, 10}, {2, 1}, {25, 10}, {3, 1}, {35, 10}, {4, 1},
}

// CalcStat computes a non-HP stat from base, DV, EV and level.
func CalcStat(base, dv, ev, level int) int {
	return ((base+dv)*2+ev/4)*level/100 + 5
}

// CalcHP computes maximum HP.
func CalcHP(base, dv, ev, level int) int {
	return ((base+dv)*2+ev/4)*level/100 + level + 10
}

// HPDV derives the HP DV from the low bits of the other four.
func HPDV(dvs resource.Stats) int {
	return (dvs.Atk&1)<<3 | (dvs.Def&1)<<2 | (dvs.Spe&1)<<1 | dvs.Spc&1
}

// applyStage scales a stat by a stage, clamped to 1..999.
func applyStage(stat, stage int) int {
	r := stageRatios[stage+6]
	v := stat * r[0] / r[1]
	if v > maxStat {
		v = maxStat
	}
	if v < 1 {
		v = 1
	}
	return v
}

// accuracyThreshold turns a move's percentage accuracy into the 0..255
// threshold compared against a random byte.
func accuracyThreshold(pct, accStage, evaStage int) int {
	acc := pct * 255 / 100
	r := stageRatios[accStage+6]
	acc = acc * r[0] / r[1]
	r = stageRatios[-evaStage+6]
	acc = acc * r[0] / r[1]
	if acc > 255 {
		acc = 255
	}
	if acc < 1 {
		acc = 1
	}
	return acc
}

// critThreshold is the critical hit chance out of 256. It always comes from
// the original species, even after Transform.
func critThreshold(c *Combatant, high bool) int {
	t := c.BaseSpecies.Base.Spe / 2
	if c.Volatiles.Has(VolFocusEnergy) {
		t /= 2
	} else {
		t = clamp(t*2, 1, 255)
	}
	if high {
		return clamp(t*4, 1, 255)
	}
	return t / 2
}

// secondaryThreshold is the chance out of 256 for a secondary effect.
func secondaryThreshold(e resource.Effect) int {
	pct := 0
	switch e {
	case resource.BurnChance1, resource.FreezeChance, resource.ParalyzeChance1,
		resource.FlinchChance1, resource.ConfusionChance:
		pct = 10
	case resource.PoisonChance1, resource.Twineedle:
		pct = 20
	case resource.BurnChance2, resource.ParalyzeChance2, resource.FlinchChance2:
		pct = 30
	case resource.AttackDownChance, resource.DefenseDownChance,
		resource.SpecialDownChance, resource.SpeedDownChance:
		pct = 33
	case resource.PoisonChance2:
		pct = 40
	}
	return (pct*256 + 99) / 100
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
