package model_test

import (
	"testing"
	"time"

	"github.com/kasuganosora/gen1sim/model"
	"github.com/kasuganosora/gen1sim/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	rec := &model.BattleRecord{
		MatchID: "7d0f6a43-0a43-4c1e-9b0e-3f1e2d9c5b11",
		Seed:    datatypes.NewJSONType([4]uint16{1, 2, 3, 4}),
		P1Name:  "Player 1",
		P2Name:  "Player 2",
		Teams:   datatypes.JSON(`[[{"species":"Mew"}],[{"species":"Mew"}]]`),
		Choices: datatypes.JSONSlice[string]{"move 1|move 1"},
		Log:     datatypes.JSONSlice[string]{"|move|p1a: Mew|Pound|p2a: Mew", "|win|Player 1"},
		Digest:  "abc",
		Result:  "win",
		Turns:   1,
		EndedAt: time.Now(),
	}
	require.NoError(t, db.Create(rec).Error)
	assert.Greater(t, rec.ID, int64(0))

	var found model.BattleRecord
	require.NoError(t, db.Where("match_id = ?", rec.MatchID).First(&found).Error)
	assert.Equal(t, [4]uint16{1, 2, 3, 4}, found.Seed.Data())
	assert.Equal(t, []string{"move 1|move 1"}, []string(found.Choices))
	assert.Len(t, found.Log, 2)
	assert.Equal(t, "win", found.Result)

	al := &model.AuditLog{
		TraceID: "trace-001", MatchID: rec.MatchID, Seat: "p1", Action: "choose",
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.Create(al).Error)
}

func TestBattleRecord_UniqueMatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	require.NoError(t, db.Create(&model.BattleRecord{MatchID: "m1"}).Error)
	assert.Error(t, db.Create(&model.BattleRecord{MatchID: "m1"}).Error)
}
