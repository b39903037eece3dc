package resource

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var embedded embed.FS

var (
	ErrUnknownSpecies = errors.New("resource: unknown species")
	ErrUnknownMove    = errors.New("resource: unknown move")
)

// Stats is the Gen 1 stat block. Spc is the single Special stat.
type Stats struct {
	HP  int `yaml:"hp" json:"hp"`
	Atk int `yaml:"atk" json:"atk"`
	Def int `yaml:"def" json:"def"`
	Spe int `yaml:"spe" json:"spe"`
	Spc int `yaml:"spc" json:"spc"`
}

// Species is one entry of the Pokédex.
type Species struct {
	Num   int     `yaml:"num"`
	Name  string  `yaml:"name"`
	Types [2]Type `yaml:"types"`
	Base  Stats   `yaml:"base"`

	ID string `yaml:"-"`
}

// Move is one entry of the move table.
type Move struct {
	Num      int    `yaml:"num"`
	Name     string `yaml:"name"`
	Type     Type   `yaml:"type"`
	BP       int    `yaml:"bp"`
	Accuracy int    `yaml:"acc"` // percent
	PP       int    `yaml:"pp"`
	Effect   Effect `yaml:"effect"`
	Priority int    `yaml:"priority"`

	ID string `yaml:"-"`
}

// Special reports whether the move uses the Special stat.
func (m *Move) Special() bool { return m.Type.Special() }

// Move numbers the engine refers to directly.
const (
	MoveNone        = 0
	MoveRazorWind   = 13
	MoveWhirlwind   = 18
	MoveFly         = 19
	MoveBind        = 20
	MoveWrap        = 35
	MoveRoar        = 46
	MoveSonicBoom   = 49
	MoveCounter     = 68
	MoveThunderWave = 86
	MoveDig         = 91
	MoveToxic       = 92
	MoveTeleport    = 100
	MoveMimic       = 102
	MoveMetronome   = 118
	MoveMirrorMove  = 119
	MoveSwift       = 129
	MoveTransform   = 144
	MoveRest        = 156
	MoveStruggle    = 165
)

// Dex holds the static game data. It is read-only after Load.
type Dex struct {
	DataPath string

	Species []*Species // index = num-1
	Moves   []*Move    // index = num-1
	Chart   *TypeChart

	speciesByID map[string]*Species
	movesByID   map[string]*Move
}

// NewDex creates a Dex. When dataPath is non-empty, YAML files found there
// replace the embedded tables of the same name.
func NewDex(dataPath string) *Dex {
	return &Dex{DataPath: dataPath}
}

var (
	defaultOnce sync.Once
	defaultDex  *Dex
)

// Default returns the Dex built from the embedded tables. It panics if the
// embedded data is malformed, which only a broken build can cause.
func Default() *Dex {
	defaultOnce.Do(func() {
		d := NewDex("")
		if err := d.Load(); err != nil {
			panic(err)
		}
		defaultDex = d
	})
	return defaultDex
}

// Load reads the species, move and type tables.
func (d *Dex) Load() error {
	var species []*Species
	if err := d.loadYAML("species.yaml", &species); err != nil {
		return err
	}
	var moves []*Move
	if err := d.loadYAML("moves.yaml", &moves); err != nil {
		return err
	}
	var chart []matchup
	if err := d.loadYAML("types.yaml", &chart); err != nil {
		return err
	}

	d.speciesByID = make(map[string]*Species, len(species))
	d.Species = make([]*Species, len(species))
	for i, s := range species {
		if s.Num != i+1 {
			return fmt.Errorf("resource: species %q out of order (num %d at %d)", s.Name, s.Num, i+1)
		}
		s.ID = ToID(s.Name)
		d.Species[i] = s
		d.speciesByID[s.ID] = s
	}
	d.movesByID = make(map[string]*Move, len(moves))
	d.Moves = make([]*Move, len(moves))
	for i, m := range moves {
		if m.Num != i+1 {
			return fmt.Errorf("resource: move %q out of order (num %d at %d)", m.Name, m.Num, i+1)
		}
		m.ID = ToID(m.Name)
		d.Moves[i] = m
		d.movesByID[m.ID] = m
	}
	c, err := buildChart(chart)
	if err != nil {
		return err
	}
	d.Chart = c
	return nil
}

func (d *Dex) loadYAML(file string, out interface{}) error {
	var (
		data []byte
		err  error
	)
	if d.DataPath != "" {
		data, err = os.ReadFile(filepath.Join(d.DataPath, file))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("resource: read %s: %w", file, err)
		}
	}
	if data == nil {
		data, err = embedded.ReadFile("data/" + file)
		if err != nil {
			return fmt.Errorf("resource: read embedded %s: %w", file, err)
		}
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("resource: parse %s: %w", file, err)
	}
	return nil
}

// SpeciesByID looks a species up by name or id.
func (d *Dex) SpeciesByID(name string) (*Species, error) {
	if s, ok := d.speciesByID[ToID(name)]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSpecies, name)
}

// MoveByID looks a move up by name or id.
func (d *Dex) MoveByID(name string) (*Move, error) {
	if m, ok := d.movesByID[ToID(name)]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMove, name)
}

// MoveByNum returns the move with the given number, or nil.
func (d *Dex) MoveByNum(num int) *Move {
	if num < 1 || num > len(d.Moves) {
		return nil
	}
	return d.Moves[num-1]
}

// SpeciesByNum returns the species with the given number, or nil.
func (d *Dex) SpeciesByNum(num int) *Species {
	if num < 1 || num > len(d.Species) {
		return nil
	}
	return d.Species[num-1]
}

// Effectiveness returns the multiplier of att against def in tenths.
func (d *Dex) Effectiveness(att, def Type) int {
	return d.Chart.Effectiveness(att, def)
}

// ToID folds a display name into the lowercase alphanumeric id used for
// lookups: "Mr. Mime" -> "mrmime", "Double-Edge" -> "doubleedge".
func ToID(name string) string {
	folded := cases.Fold().String(name)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
