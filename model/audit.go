package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records one seat or admin action against a match.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:36" json:"trace_id"`
	MatchID    string         `gorm:"index:idx_audit_match;size:36" json:"match_id"`
	Seat       string         `gorm:"size:2" json:"seat"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	Request    datatypes.JSON `json:"request"`
	Error      string         `gorm:"type:text" json:"error"`
	IP         string         `gorm:"size:45" json:"ip"`
	Turn       int            `json:"turn"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
