package battle

import (
	"sort"

	"github.com/kasuganosora/gen1sim/resource"
)

// VolatileKind enumerates the switch-scoped conditions a combatant can carry.
type VolatileKind uint8

const (
	VolBide VolatileKind = iota
	VolThrashing
	VolFlinch
	VolCharging
	VolBinding
	VolPartiallyTrapped
	VolConfusion
	VolMist
	VolFocusEnergy
	VolSubstitute
	VolRecharging
	VolRage
	VolLeechSeed
	VolToxic
	VolLightScreen
	VolReflect
	VolDisable
	VolParSpeedDrop
	VolBrnAttackDrop

	numVolatiles
)

// Protocol ids, used when a volatile is ended silently.
var volatileIDs = [numVolatiles]string{
	"bide", "lockedmove", "flinch", "twoturnmove", "partialtrappinglock",
	"partiallytrapped", "confusion", "mist", "focusenergy", "substitute",
	"mustrecharge", "rage", "leechseed", "residualdmg", "lightscreen",
	"reflect", "disable", "parspeeddrop", "brnattackdrop",
}

func (k VolatileKind) String() string { return volatileIDs[k] }

// Volatile is the payload of one volatile. Each kind reads only the fields
// it needs.
type Volatile struct {
	Duration     int
	Counter      int
	Damage       int
	HP           int
	Slot         int
	Move         *resource.Move
	Target       *Combatant
	Invulnerable bool

	seq uint32
}

// Volatiles is a fixed-capacity set. A kind is present at most once and
// iteration follows insertion order.
type Volatiles struct {
	entries [numVolatiles]Volatile
	mask    uint32
	seq     uint32
}

func (v *Volatiles) Has(k VolatileKind) bool { return v.mask&(1<<k) != 0 }

// Get returns the payload of k, or nil when absent.
func (v *Volatiles) Get(k VolatileKind) *Volatile {
	if !v.Has(k) {
		return nil
	}
	return &v.entries[k]
}

// Add inserts k with a zero payload. Re-adding a present kind resets its
// payload but keeps its position.
func (v *Volatiles) Add(k VolatileKind) *Volatile {
	seq := v.entries[k].seq
	if !v.Has(k) {
		v.seq++
		seq = v.seq
	}
	v.entries[k] = Volatile{seq: seq}
	v.mask |= 1 << k
	return &v.entries[k]
}

func (v *Volatiles) Remove(k VolatileKind) {
	v.mask &^= 1 << k
	v.entries[k] = Volatile{}
}

func (v *Volatiles) Clear() { *v = Volatiles{} }

func (v *Volatiles) Len() int {
	n := 0
	for m := v.mask; m != 0; m &= m - 1 {
		n++
	}
	return n
}

// Ordered lists the present kinds in insertion order.
func (v *Volatiles) Ordered() []VolatileKind {
	out := make([]VolatileKind, 0, v.Len())
	for k := VolatileKind(0); k < numVolatiles; k++ {
		if v.Has(k) {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return v.entries[out[i]].seq < v.entries[out[j]].seq
	})
	return out
}
