package resource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDexCounts(t *testing.T) {
	d := Default()
	assert.Len(t, d.Species, 151)
	assert.Len(t, d.Moves, 165)
}

func TestToID(t *testing.T) {
	cases := map[string]string{
		"Mr. Mime":      "mrmime",
		"Farfetch'd":    "farfetchd",
		"Double-Edge":   "doubleedge",
		"Nidoran-F":     "nidoranf",
		"THUNDERBOLT":   "thunderbolt",
		"soft boiled":   "softboiled",
		"Self-Destruct": "selfdestruct",
	}
	for in, want := range cases {
		assert.Equal(t, want, ToID(in), in)
	}
}

func TestSpeciesLookup(t *testing.T) {
	d := Default()

	s, err := d.SpeciesByID("Starmie")
	require.NoError(t, err)
	assert.Equal(t, 121, s.Num)
	assert.Equal(t, [2]Type{Water, Psychic}, s.Types)
	assert.Equal(t, Stats{HP: 60, Atk: 75, Def: 85, Spe: 115, Spc: 100}, s.Base)

	s, err = d.SpeciesByID("mrmime")
	require.NoError(t, err)
	assert.Equal(t, "Mr. Mime", s.Name)

	_, err = d.SpeciesByID("Togepi")
	assert.ErrorIs(t, err, ErrUnknownSpecies)
}

func TestMoveLookup(t *testing.T) {
	d := Default()

	m, err := d.MoveByID("Quick Attack")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Priority)

	m, err = d.MoveByID("counter")
	require.NoError(t, err)
	assert.Equal(t, -1, m.Priority)
	assert.Equal(t, MoveCounter, m.Num)

	m = d.MoveByNum(MoveStruggle)
	require.NotNil(t, m)
	assert.Equal(t, Struggle, m.Effect)
	assert.Equal(t, "struggle", m.ID)

	m = d.MoveByNum(MoveToxic)
	require.NotNil(t, m)
	assert.Equal(t, PoisonEffect, m.Effect)

	assert.Nil(t, d.MoveByNum(0))
	assert.Nil(t, d.MoveByNum(166))

	_, err = d.MoveByID("Shadow Ball")
	assert.ErrorIs(t, err, ErrUnknownMove)
}

func TestMoveNumbersMatchNames(t *testing.T) {
	d := Default()
	for num, id := range map[int]string{
		MoveRazorWind:  "razorwind",
		MoveWhirlwind:  "whirlwind",
		MoveFly:        "fly",
		MoveBind:       "bind",
		MoveWrap:       "wrap",
		MoveRoar:       "roar",
		MoveSonicBoom:  "sonicboom",
		MoveDig:        "dig",
		MoveTeleport:   "teleport",
		MoveMimic:      "mimic",
		MoveMetronome:  "metronome",
		MoveMirrorMove: "mirrormove",
		MoveSwift:      "swift",
		MoveTransform:  "transform",
		MoveRest:       "rest",
	} {
		assert.Equal(t, id, d.MoveByNum(num).ID)
	}
}

func TestGen1TypeChart(t *testing.T) {
	d := Default()
	assert.Equal(t, Immune, d.Effectiveness(Ghost, Psychic))
	assert.Equal(t, SuperEffective, d.Effectiveness(Bug, Poison))
	assert.Equal(t, SuperEffective, d.Effectiveness(Poison, Bug))
	assert.Equal(t, Neutral, d.Effectiveness(Ice, Fire))
	assert.Equal(t, Immune, d.Effectiveness(Electric, Ground))
	assert.Equal(t, Immune, d.Effectiveness(Normal, Ghost))
	assert.Equal(t, NotVeryEffective, d.Effectiveness(Water, Water))
	assert.Equal(t, Neutral, d.Effectiveness(Normal, Normal))
}

func TestSpecialTypes(t *testing.T) {
	for _, ty := range []Type{Fire, Water, Grass, Electric, Psychic, Ice, Dragon} {
		assert.True(t, ty.Special(), ty.String())
	}
	for _, ty := range []Type{Normal, Fighting, Flying, Poison, Ground, Rock, Bug, Ghost} {
		assert.False(t, ty.Special(), ty.String())
	}
}

func TestEffectNamesRoundTrip(t *testing.T) {
	for e := None; e < numEffects; e++ {
		got, err := ParseEffect(e.String())
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}
	_, err := ParseEffect("Explosion")
	assert.Error(t, err)
}

func TestLoadOverrideDirectory(t *testing.T) {
	dir := t.TempDir()
	override := "- {num: 1, name: Missingno, types: [Bird, Normal], base: {hp: 33, atk: 136, def: 0, spe: 29, spc: 6}}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "species.yaml"), []byte(override), 0o644))

	err := NewDex(dir).Load()
	require.Error(t, err, "unknown type must be rejected")

	override = "- {num: 1, name: Missingno, types: [Normal, Normal], base: {hp: 33, atk: 136, def: 0, spe: 29, spc: 6}}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "species.yaml"), []byte(override), 0o644))

	d := NewDex(dir)
	require.NoError(t, d.Load())
	assert.Len(t, d.Species, 1)
	assert.Len(t, d.Moves, 165, "moves fall back to the embedded table")
	s, err := d.SpeciesByID("MissingNo.")
	require.NoError(t, err)
	assert.Equal(t, 136, s.Base.Atk)
}

func TestLoadRejectsOutOfOrder(t *testing.T) {
	dir := t.TempDir()
	bad := "- {num: 2, name: Pound, type: Normal, bp: 40, acc: 100, pp: 35, effect: None}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "moves.yaml"), []byte(bad), 0o644))
	assert.Error(t, NewDex(dir).Load())
}
