package rest

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/gen1sim/config"
	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/kasuganosora/gen1sim/game/match"
	"github.com/kasuganosora/gen1sim/game/player"
	"github.com/kasuganosora/gen1sim/game/runner"
	"github.com/kasuganosora/gen1sim/resource"
	"github.com/kasuganosora/gen1sim/scheduler"
	"go.uber.org/zap"
)

const maxFuzzBattles = 10000

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	mgr    *match.Manager
	sm     *player.SessionManager
	sched  *scheduler.Scheduler
	dex    *resource.Dex
	rules  battle.Rules
	fuzz   config.FuzzConfig
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler. fuzz supplies the defaults of
// POST /api/admin/fuzz.
func NewAdminHandler(
	mgr *match.Manager,
	sm *player.SessionManager,
	sched *scheduler.Scheduler,
	dex *resource.Dex,
	rules battle.Rules,
	fuzz config.FuzzConfig,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{mgr: mgr, sm: sm, sched: sched, dex: dex, rules: rules, fuzz: fuzz, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_seats": h.sm.Count(),
		"live_matches":    len(h.mgr.List()),
		"scheduler_tasks": h.sched.ListTickers(),
	})
}

// Stats counts finished matches by outcome.
// GET /api/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.mgr.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// Recent lists the ids of the most recently finished matches.
// GET /api/admin/recent?n=20
func (h *AdminHandler) Recent(c *gin.Context) {
	n := 20
	if v, err := strconv.Atoi(c.Query("n")); err == nil && v > 0 && v <= 1000 {
		n = v
	}
	ids, err := h.mgr.Recent(c.Request.Context(), n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache error"})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"matches": ids})
}

// Sweep abandons matches idle for longer than the given duration.
// POST /api/admin/sweep {"idle":"10m"}
func (h *AdminHandler) Sweep(c *gin.Context) {
	var req struct {
		Idle string `json:"idle" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	idle, err := time.ParseDuration(req.Idle)
	if err != nil || idle < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid idle duration"})
		return
	}
	n := h.mgr.Sweep(c.Request.Context(), idle)
	c.JSON(http.StatusOK, gin.H{"abandoned": n})
}

// Abandon ends a live match without a result.
// POST /api/admin/matches/:id/abandon
func (h *AdminHandler) Abandon(c *gin.Context) {
	id := c.Param("id")
	if err := h.mgr.Abandon(c.Request.Context(), id); err != nil {
		c.JSON(matchStatus(err), gin.H{"error": err.Error()})
		return
	}
	h.sm.CloseMatch(id)
	h.logger.Info("admin abandoned match", zap.String("match_id", id))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// KickSeat disconnects the session playing a seat. The seat stays open and
// may reconnect with its token.
// POST /api/admin/matches/:id/kick/:seat
func (h *AdminHandler) KickSeat(c *gin.Context) {
	seat, err := battle.ParseSideID(c.Param("seat"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid seat"})
		return
	}
	s := h.sm.Get(player.Key(c.Param("id"), seat))
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "seat not connected"})
		return
	}
	s.Close()
	h.logger.Info("admin kicked seat",
		zap.String("match_id", s.MatchID),
		zap.Stringer("seat", seat))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Fuzz runs a batch of self-play battles, each replayed to check that it
// reproduces the same log.
// POST /api/admin/fuzz {"battles":100,"workers":4,"seed":1,"strategy":"random"}
func (h *AdminHandler) Fuzz(c *gin.Context) {
	req := h.fuzz
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Battles <= 0 || req.Battles > maxFuzzBattles {
		c.JSON(http.StatusBadRequest, gin.H{"error": "battles must be between 1 and " + strconv.Itoa(maxFuzzBattles)})
		return
	}
	rep, err := runner.Run(c.Request.Context(), runner.Config{
		Workers:  req.Workers,
		Battles:  req.Battles,
		MaxTurns: req.MaxTurns,
		Seed:     req.Seed,
		Strategy: req.Strategy,
		Dex:      h.dex,
		Rules:    h.rules,
		Logger:   h.logger,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if rep == nil {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error(), "report": rep})
		return
	}
	h.logger.Info("admin fuzz run",
		zap.Int("battles", rep.Battles),
		zap.Int("failed", rep.Failed),
		zap.Duration("elapsed", rep.Elapsed))
	c.JSON(http.StatusOK, gin.H{"report": rep})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
