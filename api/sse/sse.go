// Package sse streams a match's protocol log to spectators.
package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/gen1sim/cache"
	"github.com/kasuganosora/gen1sim/game/match"
	"go.uber.org/zap"
)

const keepalive = 30 * time.Second

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub cache.PubSub
	mgr    *match.Manager
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, mgr *match.Manager, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, mgr: mgr, logger: logger}
}

// since reads the resume point: the Last-Event-ID header a reconnecting
// EventSource sends, else the since query parameter.
func since(c *gin.Context) (int, error) {
	if v := c.GetHeader("Last-Event-ID"); v != "" {
		n, err := strconv.Atoi(v)
		return n + 1, err
	}
	if v := c.Query("since"); v != "" {
		return strconv.Atoi(v)
	}
	return 0, nil
}

// ServeSSE handles GET /api/matches/:id/events.
// Every protocol line is a "line" event whose id is its index in the log.
// A finished match ends the stream with an "end" event.
func (h *Handler) ServeSSE(c *gin.Context) {
	id := c.Param("id")
	from, err := since(c)
	if err != nil || from < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, match.Channel(id))
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	backlog, err := h.mgr.Backlog(c.Request.Context(), id, from)
	if errors.Is(err, match.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}
	if err != nil {
		h.logger.Error("sse backlog failed", zap.String("match_id", id), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	next := from
	for _, l := range backlog {
		writeLine(c, match.Line{Seq: next, Text: l})
		next++
	}
	c.Writer.Flush()

	// A match no longer in memory has already ended: the backlog is all.
	m, err := h.mgr.Get(id)
	if err != nil || m.Summary().Ended {
		rest, _ := h.mgr.Backlog(c.Request.Context(), id, next)
		for _, l := range rest {
			writeLine(c, match.Line{Seq: next, Text: l})
			next++
		}
		writeEnd(c, next)
		return
	}

	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			l, err := match.DecodeLine(msg.Payload)
			if err != nil {
				continue
			}
			if l.End {
				writeEnd(c, l.Seq)
				return
			}
			if l.Seq < next {
				continue
			}
			next = l.Seq + 1
			writeLine(c, l)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

func writeLine(c *gin.Context, l match.Line) {
	// protocol lines never contain newlines
	fmt.Fprintf(c.Writer, "id: %d\nevent: line\ndata: %s\n\n", l.Seq, l.Text)
}

func writeEnd(c *gin.Context, lines int) {
	fmt.Fprintf(c.Writer, "event: end\ndata: {\"lines\":%d}\n\n", lines)
	c.Writer.Flush()
}
