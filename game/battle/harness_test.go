package battle

import (
	"slices"
	"strings"
	"testing"

	"github.com/kasuganosora/gen1sim/resource"
)

var (
	hit    = Roll{TagAccuracy, MinRoll}
	miss   = Roll{TagAccuracy, MaxRoll}
	crit   = Roll{TagCritical, MinRoll}
	noCrit = Roll{TagCritical, MaxRoll}
	minDmg = Roll{TagDamage, MinRoll}
	maxDmg = Roll{TagDamage, MaxRoll}

	parCant = Roll{TagParalyzed, Ranged(63, 256) - 1}
	parCan  = Roll{TagParalyzed, Ranged(63, 256)}
	cfzCan  = Roll{TagConfused, Ranged(128, 256) - 1}
	cfzCant = Roll{TagConfused, Ranged(128, 256)}
	minWrap = Roll{TagBinding, MinRoll}
	maxWrap = Roll{TagBinding, MaxRoll}
)

// tie makes side n (1 or 2) win a speed tie.
func tie(n int) Roll { return Roll{TagSpeedTie, Ranged(uint32(n), 2) - 1} }

// proc is a secondary roll landing on n out of 256.
func proc(n int) Roll { return Roll{TagSecondary, Ranged(uint32(n), 256) - 1} }

func slp(n int) Roll { return Roll{TagSleep, Ranged(uint32(n), 7)} }

func cfz(n int) Roll { return Roll{TagConfusion, Ranged(uint32(n-1), 4) - 1} }

func thrash(n int) Roll { return Roll{TagThrash, Ranged(uint32(n-2), 2) - 1} }

func bide(n int) Roll { return Roll{TagBide, Ranged(uint32(n-2), 2)} }

func multiHit(n int) Roll {
	i := slices.Index(multiHitTable[:], n)
	return Roll{TagMultiHit, Ranged(uint32(i), 8)}
}

func disableDuration(n int) Roll {
	return Roll{TagDisableDuration, Ranged(uint32(n), 6) - 1}
}

func disableMove(slot, n int) Roll {
	return Roll{TagDisableMove, Ranged(uint32(slot), uint32(n)) - 1}
}

// metronome is the roll that makes Metronome call the named move.
func metronome(t *testing.T, name string) Roll {
	t.Helper()
	var pool []string
	for _, m := range resource.Default().Moves {
		if m.Num != resource.MoveMetronome && m.Num != resource.MoveStruggle {
			pool = append(pool, m.Name)
		}
	}
	i := slices.Index(pool, name)
	if i < 0 {
		t.Fatalf("metronome: unknown move %q", name)
	}
	return Roll{TagMetronome, Ranged(uint32(i+1), uint32(len(pool))) - 1}
}

func set(species string, moves ...string) Set {
	return Set{Species: species, EVs: MaxEVs, Moves: moves}
}

type scenario struct {
	t    *testing.T
	b    *Battle
	src  *ScriptedSource
	mark int
}

// startBattle builds and starts a battle driven by rolls. Without a setup
// function the start events are excluded from verify, as the reference
// harness clears its log after starting.
func startBattle(t *testing.T, rolls []Roll, p1, p2 []Set, setup ...func(b *Battle)) *scenario {
	t.Helper()
	src := NewScriptedSource(rolls...)
	b, err := NewBattle(BattleConfig{P1: p1, P2: p2, Source: src})
	if err != nil {
		t.Fatalf("NewBattle: %v", err)
	}
	for _, fn := range setup {
		fn(b)
	}
	if _, _, err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s := &scenario{t: t, b: b, src: src}
	if len(setup) == 0 {
		s.mark = b.Log().Len()
	}
	return s
}

func (s *scenario) p1() *Combatant { return s.b.Sides[P1].Active() }
func (s *scenario) p2() *Combatant { return s.b.Sides[P2].Active() }

// play submits one turn of choices written as "move N", "switch N" or "".
func (s *scenario) play(c1, c2 string) Result {
	s.t.Helper()
	ch1, err := ParseChoice(c1)
	if err != nil {
		s.t.Fatal(err)
	}
	ch2, err := ParseChoice(c2)
	if err != nil {
		s.t.Fatal(err)
	}
	r, _, err := s.b.Play(ch1, ch2)
	if err != nil {
		s.t.Fatalf("Play(%q, %q): %v", c1, c2, err)
	}
	return r
}

// choices renders the legal choices of a side after the last turn.
func (s *scenario) choices(id SideID) []string {
	s.t.Helper()
	cs, err := s.b.Choices(id, s.b.Result())
	if err != nil {
		s.t.Fatal(err)
	}
	out := []string{}
	for _, c := range cs {
		out = append(out, c.String())
	}
	return out
}

// verify compares the log since the mark and checks every roll was used.
func (s *scenario) verify(want []string) {
	s.t.Helper()
	got := s.b.Log().Lines()[s.mark:]
	n := max(len(got), len(want))
	for i := 0; i < n; i++ {
		var g, w string
		if i < len(got) {
			g = got[i]
		}
		if i < len(want) {
			w = want[i]
		}
		if g != w {
			s.t.Fatalf("line %d: got %q, want %q\nfull log:\n%s", i, g, w, strings.Join(got, "\n"))
		}
	}
	if !s.src.Exhausted() {
		s.t.Errorf("unused rolls: %v", s.src.Remaining())
	}
}
