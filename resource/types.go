package resource

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Type is a Gen 1 elemental type, numbered in cartridge order.
type Type uint8

const (
	Normal Type = iota
	Fighting
	Flying
	Poison
	Ground
	Rock
	Bug
	Ghost
	Fire
	Water
	Grass
	Electric
	Psychic
	Ice
	Dragon
)

// NumTypes is the number of types in the chart.
const NumTypes = 15

var typeNames = [NumTypes]string{
	"Normal", "Fighting", "Flying", "Poison", "Ground", "Rock", "Bug", "Ghost",
	"Fire", "Water", "Grass", "Electric", "Psychic", "Ice", "Dragon",
}

func (t Type) String() string {
	if int(t) < NumTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Special reports whether moves of this type use the Special stat.
func (t Type) Special() bool {
	return t >= Fire
}

// ParseType looks a type up by its display name.
func ParseType(s string) (Type, error) {
	for i, n := range typeNames {
		if n == s {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("resource: unknown type %q", s)
}

func (t Type) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

func (t *Type) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseType(n.Value)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Effectiveness values, in tenths.
const (
	Immune           = 0
	NotVeryEffective = 5
	Neutral          = 10
	SuperEffective   = 20
)

// TypeChart holds the effectiveness of every attacking type against every
// defending type.
type TypeChart [NumTypes][NumTypes]uint8

// Effectiveness returns the multiplier of att against def in tenths.
func (c *TypeChart) Effectiveness(att, def Type) int {
	return int(c[att][def])
}

type matchup struct {
	Attacker Type `yaml:"attacker"`
	Defender Type `yaml:"defender"`
	Factor   int  `yaml:"factor"`
}

func buildChart(rows []matchup) (*TypeChart, error) {
	c := &TypeChart{}
	for a := range c {
		for d := range c[a] {
			c[a][d] = Neutral
		}
	}
	for _, m := range rows {
		switch m.Factor {
		case Immune, NotVeryEffective, SuperEffective:
		default:
			return nil, fmt.Errorf("resource: bad factor %d for %s -> %s", m.Factor, m.Attacker, m.Defender)
		}
		c[m.Attacker][m.Defender] = uint8(m.Factor)
	}
	return c, nil
}
