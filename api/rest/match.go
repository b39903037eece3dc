package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/gen1sim/audit"
	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/kasuganosora/gen1sim/game/match"
	mw "github.com/kasuganosora/gen1sim/middleware"
	"go.uber.org/zap"
)

// MatchHandler handles live match REST endpoints.
type MatchHandler struct {
	mgr    *match.Manager
	audit  *audit.Service
	logger *zap.Logger
}

// NewMatchHandler creates a MatchHandler. auditSvc may be nil.
func NewMatchHandler(mgr *match.Manager, auditSvc *audit.Service, logger *zap.Logger) *MatchHandler {
	return &MatchHandler{mgr: mgr, audit: auditSvc, logger: logger}
}

// matchStatus maps match and engine errors to HTTP status codes.
func matchStatus(err error) int {
	switch {
	case errors.Is(err, match.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, match.ErrEnded), errors.Is(err, battle.ErrBattleEnded):
		return http.StatusConflict
	case errors.Is(err, match.ErrWrongSeat), errors.Is(err, match.ErrVetoed):
		return http.StatusForbidden
	case errors.Is(err, battle.ErrIllegalChoice):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Create starts a match.
// POST /api/matches
func (h *MatchHandler) Create(c *gin.Context) {
	var req match.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.P1) == 0 || len(req.P2) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "both teams need at least one set"})
		return
	}
	m, tokens, err := h.mgr.Create(c.Request.Context(), req)
	if err != nil {
		// roster, rules and strategy problems all surface here
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("match created via api",
		zap.String("match_id", m.ID),
		zap.String("trace_id", mw.GetTraceID(c)))
	c.JSON(http.StatusCreated, gin.H{
		"match":  m.Summary(),
		"tokens": gin.H{"p1": tokens[0], "p2": tokens[1]},
	})
}

// List returns the live matches.
// GET /api/matches
func (h *MatchHandler) List(c *gin.Context) {
	ms := h.mgr.List()
	c.JSON(http.StatusOK, gin.H{"matches": ms, "count": len(ms)})
}

// Get returns one live match.
// GET /api/matches/:id
func (h *MatchHandler) Get(c *gin.Context) {
	m, err := h.mgr.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}
	c.JSON(http.StatusOK, m.Summary())
}

// Log returns the protocol lines from index since on. It also serves
// matches already evicted from memory.
// GET /api/matches/:id/log?since=0
func (h *MatchHandler) Log(c *gin.Context) {
	since, err := strconv.Atoi(c.DefaultQuery("since", "0"))
	if err != nil || since < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
		return
	}
	lines, err := h.mgr.Backlog(c.Request.Context(), c.Param("id"), since)
	if err != nil {
		c.JSON(matchStatus(err), gin.H{"error": err.Error()})
		return
	}
	if lines == nil {
		lines = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "lines": lines})
}

// Choices lists what the authenticated seat may submit.
// GET /api/matches/:id/choices
func (h *MatchHandler) Choices(c *gin.Context) {
	seat, _ := mw.GetSeat(c)
	m, err := h.mgr.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}
	cs, err := m.Choices(seat)
	if err != nil {
		c.JSON(matchStatus(err), gin.H{"error": err.Error()})
		return
	}
	if cs == nil {
		cs = []battle.Choice{}
	}
	c.JSON(http.StatusOK, gin.H{"seat": seat.String(), "choices": cs})
}

// Request returns the seat's pending request line.
// GET /api/matches/:id/request
func (h *MatchHandler) Request(c *gin.Context) {
	seat, _ := mw.GetSeat(c)
	m, err := h.mgr.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}
	req, err := m.Request(seat)
	if err != nil {
		c.JSON(matchStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"seat": seat.String(), "request": req})
}

// Choose submits the seat's choice for the current decision.
// POST /api/matches/:id/choose {"choice":"move 1"}
func (h *MatchHandler) Choose(c *gin.Context) {
	seat, _ := mw.GetSeat(c)
	id := c.Param("id")
	var req struct {
		Choice battle.Choice `json:"choice"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	err := h.mgr.Choose(c.Request.Context(), id, seat, req.Choice)
	if h.audit != nil {
		entry := audit.AuditEntry{
			TraceID:    mw.GetTraceID(c),
			MatchID:    id,
			Seat:       seat.String(),
			Action:     "choose",
			Request:    req,
			IP:         c.ClientIP(),
			DurationMs: int(time.Since(start).Milliseconds()),
		}
		if err != nil {
			entry.Error = err.Error()
		}
		h.audit.Log(entry)
	}
	if err != nil {
		c.JSON(matchStatus(err), gin.H{"error": err.Error()})
		return
	}

	m, err := h.mgr.Get(id)
	if err != nil {
		// ended and evicted in the same call
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "match": m.Summary()})
}
