package battle

import (
	"fmt"
	"math"
)

// Tag names the computation a random draw feeds. Scripted sources check it so
// that a test fails loudly the moment the engine draws something unexpected.
type Tag uint8

const (
	TagSpeedTie Tag = iota
	TagAccuracy
	TagCritical
	TagDamage
	TagSecondary
	TagSleep
	TagConfusion
	TagConfused
	TagParalyzed
	TagThrash
	TagBinding
	TagMultiHit
	TagDisableDuration
	TagDisableMove
	TagMetronome
	TagMimic
	TagBide
	TagPsywave

	numTags
)

var tagNames = [numTags]string{
	"speedTie", "accuracy", "critical", "damage", "secondary", "sleep",
	"confusion", "confused", "paralyzed", "thrash", "binding", "multiHit",
	"disableDuration", "disableMove", "metronome", "mimic", "bide", "psywave",
}

func (t Tag) String() string {
	if t < numTags {
		return tagNames[t]
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// ParseTag looks a tag up by its name.
func ParseTag(s string) (Tag, error) {
	for i, n := range tagNames {
		if n == s {
			return Tag(i), nil
		}
	}
	return 0, fmt.Errorf("battle: unknown tag %q", s)
}

// Source produces raw 32-bit random values.
type Source interface {
	Next(tag Tag) uint32
}

// PRNG is the 64-bit linear congruential generator of the reference
// simulator. The zero value is a valid generator seeded with zeros.
type PRNG struct {
	seed uint64
}

// NewPRNG seeds a generator from four 16-bit words, most significant first.
func NewPRNG(seed [4]uint16) *PRNG {
	return &PRNG{seed: uint64(seed[0])<<48 | uint64(seed[1])<<32 | uint64(seed[2])<<16 | uint64(seed[3])}
}

// Next advances the generator and returns the upper 32 bits of the new seed.
func (p *PRNG) Next(Tag) uint32 {
	p.seed = p.seed*0x5D588B656C078965 + 0x269EC3
	return uint32(p.seed >> 32)
}

// Seed returns the current state as four 16-bit words.
func (p *PRNG) Seed() [4]uint16 {
	return [4]uint16{uint16(p.seed >> 48), uint16(p.seed >> 32), uint16(p.seed >> 16), uint16(p.seed)}
}

// Roll is one scripted draw.
type Roll struct {
	Tag   Tag
	Value uint32
}

func (r Roll) String() string { return fmt.Sprintf("%s:%d", r.Tag, r.Value) }

// ScriptedSource replays a fixed list of rolls. A draw whose tag does not
// match the next roll, or a draw past the end, panics with a
// *DeterminismError which Battle converts into a returned error.
type ScriptedSource struct {
	rolls []Roll
	pos   int
}

// NewScriptedSource creates a source replaying rolls in order.
func NewScriptedSource(rolls ...Roll) *ScriptedSource {
	return &ScriptedSource{rolls: rolls}
}

// Push appends rolls to the script.
func (s *ScriptedSource) Push(rolls ...Roll) { s.rolls = append(s.rolls, rolls...) }

// Exhausted reports whether every scripted roll has been consumed.
func (s *ScriptedSource) Exhausted() bool { return s.pos >= len(s.rolls) }

// Remaining returns the rolls not consumed yet.
func (s *ScriptedSource) Remaining() []Roll { return s.rolls[s.pos:] }

func (s *ScriptedSource) Next(tag Tag) uint32 {
	if s.pos >= len(s.rolls) {
		panic(&DeterminismError{Index: s.pos, Got: tag, Exhausted: true})
	}
	r := s.rolls[s.pos]
	if r.Tag != tag {
		panic(&DeterminismError{Index: s.pos, Got: tag, Want: r.Tag})
	}
	s.pos++
	return r.Value
}

// DeterminismError reports a draw the script did not anticipate.
type DeterminismError struct {
	Index     int
	Got       Tag
	Want      Tag
	Exhausted bool
}

func (e *DeterminismError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("battle: roll %d: script exhausted, engine drew %s", e.Index, e.Got)
	}
	return fmt.Sprintf("battle: roll %d: engine drew %s, script has %s", e.Index, e.Got, e.Want)
}

// Scripted-roll helpers. Ranged(n, d) is the raw value that scales to n
// under a draw over d outcomes.
const (
	MinRoll uint32 = 0
	MaxRoll uint32 = math.MaxUint32
)

func Ranged(n, d uint32) uint32 {
	return uint32(uint64(n) * (uint64(1<<32) / uint64(d)))
}

// random scales a raw draw into [0, n).
func scale(raw uint32, n int) int {
	return int(uint64(raw) * uint64(n) >> 32)
}

func (b *Battle) random(tag Tag, n int) int {
	return scale(b.src.Next(tag), n)
}

func (b *Battle) rangeOf(tag Tag, lo, hi int) int {
	return b.random(tag, hi-lo) + lo
}

func (b *Battle) chance(tag Tag, num, den int) bool {
	return b.random(tag, den) < num
}
