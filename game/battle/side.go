package battle

import (
	"fmt"

	"github.com/kasuganosora/gen1sim/resource"
	"go.uber.org/zap"
)

// SideID identifies one of the two players.
type SideID uint8

const (
	P1 SideID = iota
	P2
)

func (id SideID) String() string {
	if id == P1 {
		return "p1"
	}
	return "p2"
}

// ParseSideID accepts "p1" or "p2".
func ParseSideID(s string) (SideID, error) {
	switch s {
	case "p1":
		return P1, nil
	case "p2":
		return P2, nil
	}
	return 0, fmt.Errorf("battle: unknown side %q", s)
}

// Side is one player's roster. Team is kept in position order: Team[0] is
// the active combatant and switching swaps positions 1 and n.
type Side struct {
	ID   SideID
	Name string
	Team []*Combatant

	// LastUsedMove is the last move used by any combatant of this side. It
	// survives switching and is what Counter inspects.
	LastUsedMove *resource.Move
	// LastSelectedMove is the move chosen for the current or latest turn.
	LastSelectedMove *resource.Move

	battle *Battle
}

func (s *Side) Active() *Combatant { return s.Team[0] }

// Foe returns the opposing side.
func (s *Side) Foe() *Side { return s.battle.Sides[1-s.ID] }

// Position returns the 1-based team position of c, or 0.
func (s *Side) Position(c *Combatant) int {
	for i, m := range s.Team {
		if m == c {
			return i + 1
		}
	}
	return 0
}

// Bench lists the positions 2..6 holding a combatant that can still fight.
func (s *Side) Bench() []int {
	var out []int
	for i := 1; i < len(s.Team); i++ {
		if s.Team[i].HP > 0 {
			out = append(out, i+1)
		}
	}
	return out
}

// Defeated reports whether every combatant has fainted.
func (s *Side) Defeated() bool {
	for _, c := range s.Team {
		if c.HP > 0 {
			return false
		}
	}
	return true
}

// switchTo swaps the active combatant with position n and emits the switch.
func (s *Side) switchTo(n int) {
	s.Team[0].switchOut()
	s.Team[0], s.Team[n-1] = s.Team[n-1], s.Team[0]
	in := s.Team[0]
	in.switchIn()
	s.battle.emit(evSwitch(in))
	s.battle.logger.Debug("switch",
		zap.String("side", s.ID.String()), zap.String("name", in.Name), zap.Int("position", n))
}
