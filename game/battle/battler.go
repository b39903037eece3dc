package battle

import (
	"fmt"
	"strconv"

	"github.com/kasuganosora/gen1sim/resource"
)

// Status is the non-volatile status condition. A combatant carries at most
// one.
type Status uint8

const (
	StatusNone Status = iota
	StatusSleep
	StatusPoison
	StatusBurn
	StatusFreeze
	StatusParalysis
	StatusToxic
)

var statusNames = [...]string{"", "slp", "psn", "brn", "frz", "par", "tox"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStatus maps a protocol status id to a Status.
func ParseStatus(s string) (Status, error) {
	for i, n := range statusNames {
		if n == s {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("battle: unknown status %q", s)
}

// MoveSlot is one known move and its remaining PP.
type MoveSlot struct {
	Move  *resource.Move
	PP    int
	MaxPP int
}

// Set describes one roster member before the battle starts.
type Set struct {
	Species string          `json:"species" yaml:"species"`
	Level   int             `json:"level,omitempty" yaml:"level,omitempty"` // 0 = 100
	Moves   []string        `json:"moves" yaml:"moves"`
	EVs     resource.Stats  `json:"evs,omitempty" yaml:"evs,omitempty"`
	DVs     *resource.Stats `json:"dvs,omitempty" yaml:"dvs,omitempty"` // nil = 15 everywhere
	HP      *int            `json:"hp,omitempty" yaml:"hp,omitempty"`   // nil = full
	Status  Status          `json:"status,omitempty" yaml:"status,omitempty"`
	PP      []int           `json:"pp,omitempty" yaml:"pp,omitempty"` // per slot, nil = full
}

// MaxEVs is the EV spread the reference harness uses for competitive sets.
var MaxEVs = resource.Stats{HP: 255, Atk: 255, Def: 255, Spe: 255, Spc: 255}

// Combatant is one roster member during a battle.
type Combatant struct {
	Side *Side
	Name string

	Species     *resource.Species // changes on Transform
	BaseSpecies *resource.Species
	Level       int
	Types       [2]resource.Type

	Stored resource.Stats // Stored.HP is the maximum
	Stats  resource.Stats // modified stats used in battle, HP unused
	HP     int

	Status     Status
	SleepTurns int
	// StatusSource is the foe whose secondary effect caused Status.
	StatusSource *Combatant
	// SleptByFoe marks sleep from a foe's move, counted by Sleep Clause.
	SleptByFoe bool

	Boosts    Boosts
	Moves     []MoveSlot
	Volatiles Volatiles
	Fainted   bool

	// LastMove is the last move this combatant used since switching in.
	LastMove *resource.Move

	Transformed bool
	baseStored  resource.Stats
	baseMoves   []MoveSlot
	mimicSlot   int // 1-based, 0 = none
}

func newCombatant(dex *resource.Dex, s *Side, set Set) (*Combatant, error) {
	sp, err := dex.SpeciesByID(set.Species)
	if err != nil {
		return nil, err
	}
	if len(set.Moves) == 0 || len(set.Moves) > 4 {
		return nil, fmt.Errorf("battle: %s: %d moves, want 1..4", sp.Name, len(set.Moves))
	}
	level := set.Level
	if level == 0 {
		level = 100
	}
	if level < 1 || level > 100 {
		return nil, fmt.Errorf("battle: %s: level %d out of range", sp.Name, level)
	}
	dvs := resource.Stats{Atk: 15, Def: 15, Spe: 15, Spc: 15}
	if set.DVs != nil {
		dvs = *set.DVs
	}
	dvs.HP = HPDV(dvs)

	c := &Combatant{
		Side:        s,
		Name:        sp.Name,
		Species:     sp,
		BaseSpecies: sp,
		Level:       level,
		Types:       sp.Types,
		Status:      set.Status,
	}
	b := sp.Base
	c.Stored = resource.Stats{
		HP:  CalcHP(b.HP, dvs.HP, set.EVs.HP, level),
		Atk: CalcStat(b.Atk, dvs.Atk, set.EVs.Atk, level),
		Def: CalcStat(b.Def, dvs.Def, set.EVs.Def, level),
		Spe: CalcStat(b.Spe, dvs.Spe, set.EVs.Spe, level),
		Spc: CalcStat(b.Spc, dvs.Spc, set.EVs.Spc, level),
	}
	c.Stats = c.Stored
	c.HP = c.Stored.HP
	if set.HP != nil {
		c.HP = clamp(*set.HP, 0, c.Stored.HP)
	}
	if c.Status == StatusSleep {
		c.SleepTurns = 7
	}
	for i, name := range set.Moves {
		m, err := dex.MoveByID(name)
		if err != nil {
			return nil, err
		}
		slot := MoveSlot{Move: m, PP: m.PP * 8 / 5, MaxPP: m.PP * 8 / 5}
		if i < len(set.PP) {
			slot.PP = set.PP[i]
		}
		c.Moves = append(c.Moves, slot)
	}
	return c, nil
}

// Ident is the protocol reference to the combatant, e.g. "p1a: Pikachu".
func (c *Combatant) Ident() string {
	return c.Side.ID.String() + "a: " + c.Name
}

// Details is the species with a level suffix when the level is not 100.
func (c *Combatant) Details() string {
	if c.Level == 100 {
		return c.BaseSpecies.Name
	}
	return c.BaseSpecies.Name + ", L" + strconv.Itoa(c.Level)
}

// HPStatus renders "hp/max[ status]", or "0 fnt".
func (c *Combatant) HPStatus() string {
	if c.HP == 0 {
		return "0 fnt"
	}
	s := strconv.Itoa(c.HP) + "/" + strconv.Itoa(c.Stored.HP)
	if c.Status != StatusNone {
		s += " " + c.Status.String()
	}
	return s
}

func (c *Combatant) MaxHP() int { return c.Stored.HP }

func (c *Combatant) HasType(t resource.Type) bool {
	return c.Types[0] == t || c.Types[1] == t
}

func (c *Combatant) Active() bool { return c.Side.Active() == c }

func (c *Combatant) Asleep() bool { return c.Status == StatusSleep }

// Poisoned reports psn or tox.
func (c *Combatant) Poisoned() bool {
	return c.Status == StatusPoison || c.Status == StatusToxic
}

// slotOf returns the 1-based slot holding m, or 0.
func (c *Combatant) slotOf(m *resource.Move) int {
	if m == nil {
		return 0
	}
	for i := range c.Moves {
		if c.Moves[i].Move == m {
			return i + 1
		}
	}
	return 0
}

// recompute rebuilds one modified stat from its stored value and stage.
func (c *Combatant) recompute(boost int) {
	switch boost {
	case BoostAtk:
		c.Stats.Atk = applyStage(c.Stored.Atk, c.Boosts[BoostAtk])
	case BoostDef:
		c.Stats.Def = applyStage(c.Stored.Def, c.Boosts[BoostDef])
	case BoostSpe:
		c.Stats.Spe = applyStage(c.Stored.Spe, c.Boosts[BoostSpe])
	case BoostSpc:
		c.Stats.Spc = applyStage(c.Stored.Spc, c.Boosts[BoostSpc])
	}
}

func (c *Combatant) recomputeAll() {
	for i := BoostAtk; i <= BoostSpc; i++ {
		c.recompute(i)
	}
}

// applyParalysisDrop quarters speed, the in-battle paralysis penalty.
func (c *Combatant) applyParalysisDrop() {
	c.Stats.Spe = max(c.Stats.Spe/4, 1)
}

// applyBurnDrop halves attack, the in-battle burn penalty.
func (c *Combatant) applyBurnDrop() {
	c.Stats.Atk = max(c.Stats.Atk/2, 1)
}

// transformInto copies the target's species, types, stored stats except HP,
// boosts and moves. Modified stats are left alone.
func (c *Combatant) transformInto(t *Combatant) {
	if !c.Transformed {
		c.baseStored = c.Stored
		c.baseMoves = c.Moves
	}
	c.Transformed = true
	c.Species = t.Species
	c.Types = t.Types
	hp := c.Stored.HP
	c.Stored = t.Stored
	c.Stored.HP = hp
	c.Boosts = t.Boosts
	c.Moves = make([]MoveSlot, len(t.Moves))
	for i, s := range t.Moves {
		c.Moves[i] = MoveSlot{Move: s.Move, PP: 5, MaxPP: 5}
	}
}

// switchOut clears everything scoped to the time spent in battle.
func (c *Combatant) switchOut() {
	b := c.Side.battle
	b.releaseBinding(c)
	if bind := c.Side.Foe().Active().Volatiles.Get(VolBinding); bind != nil && bind.Target == c {
		bind.Target = nil
	}
	if c.Transformed {
		c.Transformed = false
		c.Species = c.BaseSpecies
		c.Stored = c.baseStored
		c.Moves = c.baseMoves
		c.baseMoves = nil
	}
	if c.mimicSlot > 0 {
		c.Moves[c.mimicSlot-1].Move = b.dex.MoveByNum(resource.MoveMimic)
		c.mimicSlot = 0
	}
	c.Types = c.BaseSpecies.Types
	c.Volatiles.Clear()
	c.Boosts = Boosts{}
	c.Stats = c.Stored
	c.LastMove = nil
	if c.Status == StatusToxic {
		c.Status = StatusPoison
	}
}

// switchIn reapplies the paralysis and burn penalties to fresh stats.
func (c *Combatant) switchIn() {
	switch c.Status {
	case StatusParalysis:
		c.Volatiles.Add(VolParSpeedDrop)
		c.applyParalysisDrop()
	case StatusBurn:
		c.Volatiles.Add(VolBrnAttackDrop)
		c.applyBurnDrop()
	}
}
