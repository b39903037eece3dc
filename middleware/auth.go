package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/gen1sim/cache"
	"github.com/kasuganosora/gen1sim/config"
	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/kasuganosora/gen1sim/game/match"
)

const (
	MatchIDKey = "match_id"
	SeatKey    = "seat"
)

// bearer returns the token from the Authorization header, or from the
// token query parameter for EventSource and WebSocket clients that cannot
// set headers.
func bearer(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

// SeatAuth validates a seat token for the match named by the :id route
// parameter. The token must still be the live one stored for that seat; a
// finished match revokes its tokens.
func SeatAuth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := bearer(ctx)
		if tokenStr == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := ParseSeatToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if id := ctx.Param("id"); id != "" && id != claims.MatchID {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token is for another match"})
			return
		}
		seat, err := battle.ParseSideID(claims.Seat)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		live, err := c.Get(cacheCtx, match.SeatKey(claims.MatchID, seat))
		if err != nil || subtle.ConstantTimeCompare([]byte(live), []byte(tokenStr)) != 1 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "seat closed"})
			return
		}

		ctx.Set(MatchIDKey, claims.MatchID)
		ctx.Set(SeatKey, seat)
		ctx.Next()
	}
}

// GetSeat retrieves the authenticated seat from the Gin context.
func GetSeat(c *gin.Context) (battle.SideID, bool) {
	if v, exists := c.Get(SeatKey); exists {
		return v.(battle.SideID), true
	}
	return 0, false
}
