package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/gen1sim/game/match"
	"github.com/kasuganosora/gen1sim/model"
	"github.com/kasuganosora/gen1sim/protocol"
	"github.com/kasuganosora/gen1sim/resource"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const recordPageMax = 100

// RecordHandler serves finished battles from the database.
type RecordHandler struct {
	db     *gorm.DB
	dex    *resource.Dex
	logger *zap.Logger
}

// NewRecordHandler creates a RecordHandler.
func NewRecordHandler(db *gorm.DB, dex *resource.Dex, logger *zap.Logger) *RecordHandler {
	return &RecordHandler{db: db, dex: dex, logger: logger}
}

// recordSummary is a list row; the log and choices are left out.
type recordSummary struct {
	MatchID string `json:"match_id"`
	P1Name  string `json:"p1_name"`
	P2Name  string `json:"p2_name"`
	Result  string `json:"result"`
	Turns   int    `json:"turns"`
	Digest  string `json:"digest"`
	EndedAt string `json:"ended_at"`
}

// List returns finished battles, newest first.
// GET /api/records?limit=20&offset=0&result=win
func (h *RecordHandler) List(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= recordPageMax {
		limit = l
	}
	offset, _ := strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}

	q := h.db.Model(&model.BattleRecord{})
	if r, ok := c.GetQuery("result"); ok {
		q = q.Where("result = ?", r)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	var recs []model.BattleRecord
	if err := q.Select("match_id, p1_name, p2_name, result, turns, digest, ended_at").
		Order("ended_at DESC").Limit(limit).Offset(offset).
		Find(&recs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	out := make([]recordSummary, len(recs))
	for i, r := range recs {
		out[i] = recordSummary{
			MatchID: r.MatchID,
			P1Name:  r.P1Name,
			P2Name:  r.P2Name,
			Result:  r.Result,
			Turns:   r.Turns,
			Digest:  r.Digest,
			EndedAt: r.EndedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		}
	}
	c.JSON(http.StatusOK, gin.H{"records": out, "total": total})
}

func (h *RecordHandler) load(c *gin.Context) (*model.BattleRecord, bool) {
	var rec model.BattleRecord
	err := h.db.Where("match_id = ?", c.Param("id")).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return nil, false
	}
	return &rec, true
}

// Get returns a full record.
// GET /api/records/:id
func (h *RecordHandler) Get(c *gin.Context) {
	if rec, ok := h.load(c); ok {
		c.JSON(http.StatusOK, rec)
	}
}

// Verify replays a record from its seed, rosters and choices and reports
// whether the log it produces has the stored digest.
// POST /api/records/:id/verify
func (h *RecordHandler) Verify(c *gin.Context) {
	rec, ok := h.load(c)
	if !ok {
		return
	}
	lines, err := match.Replay(rec, h.dex)
	switch {
	case errors.Is(err, match.ErrDigestMismatch):
		h.logger.Warn("record failed replay",
			zap.String("match_id", rec.MatchID),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"ok":     false,
			"digest": rec.Digest,
			"replay": protocol.Digest(lines),
		})
	case err != nil:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true, "digest": rec.Digest, "lines": len(lines)})
	}
}
