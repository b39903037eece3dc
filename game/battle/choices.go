package battle

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ChoiceType is the kind of a submitted choice.
type ChoiceType uint8

const (
	ChoicePass ChoiceType = iota
	ChoiceMove
	ChoiceSwitch
)

// Choice is one side's decision for a request. Data is the 1-based move slot
// (0 = Struggle) or the team position to switch to.
type Choice struct {
	Type ChoiceType `json:"type"`
	Data uint8      `json:"data"`
}

func Pass() Choice          { return Choice{Type: ChoicePass} }
func Move(slot int) Choice  { return Choice{Type: ChoiceMove, Data: uint8(slot)} }
func Switch(pos int) Choice { return Choice{Type: ChoiceSwitch, Data: uint8(pos)} }

func (c Choice) String() string {
	switch c.Type {
	case ChoiceMove:
		return "move " + strconv.Itoa(int(c.Data))
	case ChoiceSwitch:
		return "switch " + strconv.Itoa(int(c.Data))
	}
	return "pass"
}

// ParseChoice reads "pass", "move N" or "switch N". The empty string is a
// pass.
func ParseChoice(s string) (Choice, error) {
	f := strings.Fields(s)
	if len(f) == 0 || len(f) == 1 && f[0] == "pass" {
		return Pass(), nil
	}
	if len(f) != 2 {
		return Choice{}, fmt.Errorf("battle: malformed choice %q", s)
	}
	n, err := strconv.Atoi(f[1])
	if err != nil || n < 0 || n > 6 {
		return Choice{}, fmt.Errorf("battle: malformed choice %q", s)
	}
	switch f[0] {
	case "move":
		if n > 4 {
			break
		}
		return Move(n), nil
	case "switch":
		if n < 2 {
			break
		}
		return Switch(n), nil
	}
	return Choice{}, fmt.Errorf("battle: malformed choice %q", s)
}

func (c Choice) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Choice) UnmarshalText(b []byte) error {
	v, err := ParseChoice(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Choices lists the legal choices of a side for the given result, in the
// order switches then moves. An empty list means the side only passes.
func (b *Battle) Choices(id SideID, r Result) ([]Choice, error) {
	if b.err != nil {
		return nil, b.err
	}
	if r.Ended() {
		return nil, ErrBattleEnded
	}
	s := b.Sides[id]
	switch r.Request(id) {
	case RequestPass:
		return nil, nil
	case RequestSwitch:
		var out []Choice
		for _, n := range s.Bench() {
			out = append(out, Switch(n))
		}
		if len(out) == 0 {
			out = append(out, Pass())
		}
		return out, nil
	}

	c := s.Active()
	if locked(c) {
		return nil, nil
	}
	var out []Choice
	for _, n := range s.Bench() {
		out = append(out, Switch(n))
	}
	// A binding user may only continue its move, PP or not.
	if c.Volatiles.Has(VolBinding) {
		if slot := c.slotOf(s.LastSelectedMove); slot > 0 {
			return append(out, Move(slot)), nil
		}
	}
	moves := 0
	for i, m := range c.Moves {
		if m.PP > 0 && !disabled(c, i+1) {
			out = append(out, Move(i+1))
			moves++
		}
	}
	if moves == 0 {
		out = append(out, Move(0))
	}
	return out, nil
}

// locked reports whether the active combatant's next action is forced.
func locked(c *Combatant) bool {
	v := &c.Volatiles
	return v.Has(VolThrashing) || v.Has(VolCharging) || v.Has(VolRecharging) ||
		v.Has(VolBide) || v.Has(VolRage)
}

func disabled(c *Combatant, slot int) bool {
	d := c.Volatiles.Get(VolDisable)
	return d != nil && c.Moves[slot-1].Move == d.Move
}

func (b *Battle) validate(id SideID, c Choice) error {
	legal, err := b.Choices(id, b.result)
	if err != nil {
		return err
	}
	if len(legal) == 0 && c.Type == ChoicePass || slices.Contains(legal, c) {
		return nil
	}
	return fmt.Errorf("%w: %s: %s", ErrIllegalChoice, id, c)
}
