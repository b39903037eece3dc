package model

import (
	"time"

	"gorm.io/datatypes"
)

// BattleRecord is a finished battle: everything needed to replay it plus
// the filtered log and its digest.
type BattleRecord struct {
	ID      int64                         `gorm:"primaryKey;autoIncrement" json:"id"`
	MatchID string                        `gorm:"uniqueIndex;size:36;not null" json:"match_id"`
	Seed    datatypes.JSONType[[4]uint16] `json:"seed"`
	P1Name  string                        `gorm:"size:32" json:"p1_name"`
	P2Name  string                        `gorm:"size:32" json:"p2_name"`
	Teams   datatypes.JSON                `json:"teams"` // [2][]battle.Set as submitted
	Rules   datatypes.JSON                `json:"rules"`
	Choices datatypes.JSONSlice[string]   `json:"choices"` // "p1choice|p2choice" per call
	Log     datatypes.JSONSlice[string]   `json:"log"`
	Digest  string                        `gorm:"index:idx_battle_digest;size:64" json:"digest"`
	Result  string                        `gorm:"size:8" json:"result"` // win | lose | tie from p1's side, "" if abandoned
	Turns   int                           `json:"turns"`
	Error   string                        `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime:milli" json:"created_at"`
	EndedAt   time.Time `gorm:"index:idx_battle_ended" json:"ended_at"`
}
