package resource

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Effect is the closed set of move behaviours. The battle engine switches
// over it exhaustively.
type Effect uint8

const (
	None Effect = iota
	AttackUp1
	AttackUp2
	DefenseUp1
	DefenseUp2
	SpeedUp2
	SpecialUp1
	SpecialUp2
	EvasionUp1
	AttackDown1
	DefenseDown1
	DefenseDown2
	SpeedDown1
	AccuracyDown1
	Sleep
	PoisonEffect
	Paralyze
	Confusion
	Conversion
	FocusEnergy
	Haze
	Heal
	LeechSeed
	LightScreen
	Reflect
	Mimic
	Mist
	Splash
	Substitute
	SwitchAndTeleport
	Transform
	Bide
	Disable
	Metronome
	MirrorMove
	Rest
	Counter
	DrainHP
	DreamEater
	Explode
	JumpKick
	PayDay
	Rage
	Recoil
	Binding
	Charge
	Fly
	SkyAttack
	FixedDamage
	LevelDamage
	Psywave
	SuperFang
	DoubleHit
	HighCritical
	HyperBeam
	MultiHit
	OHKO
	Swift
	Thrashing
	Twineedle
	Struggle
	AttackDownChance
	DefenseDownChance
	SpecialDownChance
	SpeedDownChance
	BurnChance1
	BurnChance2
	ConfusionChance
	FlinchChance1
	FlinchChance2
	FreezeChance
	ParalyzeChance1
	ParalyzeChance2
	PoisonChance1
	PoisonChance2

	numEffects
)

var effectNames = [numEffects]string{
	"None", "AttackUp1", "AttackUp2", "DefenseUp1", "DefenseUp2", "SpeedUp2",
	"SpecialUp1", "SpecialUp2", "EvasionUp1", "AttackDown1", "DefenseDown1",
	"DefenseDown2", "SpeedDown1", "AccuracyDown1", "Sleep", "Poison",
	"Paralyze", "Confusion", "Conversion", "FocusEnergy", "Haze", "Heal",
	"LeechSeed", "LightScreen", "Reflect", "Mimic", "Mist", "Splash",
	"Substitute", "SwitchAndTeleport", "Transform", "Bide", "Disable",
	"Metronome", "MirrorMove", "Rest", "Counter", "DrainHP", "DreamEater",
	"Explode", "JumpKick", "PayDay", "Rage", "Recoil", "Binding", "Charge",
	"Fly", "SkyAttack", "FixedDamage", "LevelDamage", "Psywave", "SuperFang",
	"DoubleHit", "HighCritical", "HyperBeam", "MultiHit", "OHKO", "Swift",
	"Thrashing", "Twineedle", "Struggle", "AttackDownChance",
	"DefenseDownChance", "SpecialDownChance", "SpeedDownChance",
	"BurnChance1", "BurnChance2", "ConfusionChance", "FlinchChance1",
	"FlinchChance2", "FreezeChance", "ParalyzeChance1", "ParalyzeChance2",
	"PoisonChance1", "PoisonChance2",
}

func (e Effect) String() string {
	if e < numEffects {
		return effectNames[e]
	}
	return fmt.Sprintf("Effect(%d)", uint8(e))
}

// ParseEffect looks an effect up by name.
func ParseEffect(s string) (Effect, error) {
	for i, n := range effectNames {
		if n == s {
			return Effect(i), nil
		}
	}
	return 0, fmt.Errorf("resource: unknown effect %q", s)
}

func (e Effect) MarshalYAML() (interface{}, error) {
	return e.String(), nil
}

func (e *Effect) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseEffect(n.Value)
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// IsStatus reports whether the effect is a pure status move: it deals no
// damage and resolves entirely in its effect handler.
func (e Effect) IsStatus() bool {
	return e >= AttackUp1 && e <= Bide || e == Disable || e == Metronome ||
		e == MirrorMove || e == Rest
}

// SelfTargeting reports whether the move affects only its user and so never
// checks accuracy.
func (e Effect) SelfTargeting() bool {
	switch e {
	case AttackUp1, AttackUp2, DefenseUp1, DefenseUp2, SpeedUp2, SpecialUp1,
		SpecialUp2, EvasionUp1, FocusEnergy, Haze, Heal, LightScreen, Reflect,
		Mist, Splash, Substitute, Bide, Metronome, MirrorMove, Rest, Conversion:
		return true
	}
	return false
}

// IsSecondary reports whether the effect is a chance effect rolled after a
// damaging hit.
func (e Effect) IsSecondary() bool {
	return e >= AttackDownChance && e <= PoisonChance2 || e == Twineedle
}

// IsStatDown reports whether the effect lowers one of the target's stats.
func (e Effect) IsStatDown() bool {
	return e >= AttackDown1 && e <= AccuracyDown1
}

// IsStatUp reports whether the effect raises one of the user's stats.
func (e Effect) IsStatUp() bool {
	return e >= AttackUp1 && e <= EvasionUp1
}
