package rest_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/gen1sim/api/rest"
	"github.com/kasuganosora/gen1sim/audit"
	"github.com/kasuganosora/gen1sim/config"
	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/kasuganosora/gen1sim/game/match"
	"github.com/kasuganosora/gen1sim/game/player"
	mw "github.com/kasuganosora/gen1sim/middleware"
	"github.com/kasuganosora/gen1sim/resource"
	"github.com/kasuganosora/gen1sim/scheduler"
	"github.com/kasuganosora/gen1sim/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSecret   = "rest-test-secret"
	testAdminKey = "test-key"
)

func nopLogger() *zap.Logger { return zap.NewNop() }

type env struct {
	r     *gin.Engine
	db    *gorm.DB
	dex   *resource.Dex
	mgr   *match.Manager
	sm    *player.SessionManager
	audit *audit.Service
}

// newEnv wires the REST routes the way the server does, minus rate limits.
func newEnv(t *testing.T, adminKey string) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	dex := testutil.Dex(t)
	sec := config.SecurityConfig{JWTSecret: testSecret}
	e := &env{
		db:    db,
		dex:   dex,
		sm:    player.NewSessionManager(nopLogger()),
		audit: audit.New(db, nopLogger()),
	}
	e.mgr = match.NewManager(match.Config{
		Dex:      dex,
		Cache:    c,
		PubSub:   ps,
		Recorder: e.audit,
		Tokens: func(id string, seat battle.SideID, ttl time.Duration) (string, error) {
			return mw.GenerateSeatToken(id, seat.String(), testSecret, ttl)
		},
		Logger: nopLogger(),
	})
	sched := scheduler.New(nopLogger())
	t.Cleanup(func() {
		e.mgr.Close(context.Background())
		sched.Stop()
		e.audit.Stop(context.Background())
	})

	mh := rest.NewMatchHandler(e.mgr, e.audit, nopLogger())
	rh := rest.NewRecordHandler(db, dex, nopLogger())
	ah := rest.NewAdminHandler(e.mgr, e.sm, sched, dex, battle.DefaultRules(),
		config.FuzzConfig{Workers: 2, MaxTurns: 200, Strategy: "random"}, nopLogger())

	r := gin.New()
	r.Use(mw.TraceID())
	api := r.Group("/api")
	api.POST("/matches", mh.Create)
	api.GET("/matches", mh.List)
	api.GET("/matches/:id", mh.Get)
	api.GET("/matches/:id/log", mh.Log)
	seat := api.Group("/matches/:id", mw.SeatAuth(sec, c))
	seat.GET("/choices", mh.Choices)
	seat.GET("/request", mh.Request)
	seat.POST("/choose", mh.Choose)
	api.GET("/records", rh.List)
	api.GET("/records/:id", rh.Get)
	api.POST("/records/:id/verify", rh.Verify)

	admin := api.Group("/admin", rest.AdminAuth(adminKey))
	admin.GET("/metrics", ah.Metrics)
	admin.GET("/stats", ah.Stats)
	admin.GET("/recent", ah.Recent)
	admin.POST("/sweep", ah.Sweep)
	admin.POST("/matches/:id/abandon", ah.Abandon)
	admin.POST("/matches/:id/kick/:seat", ah.KickSeat)
	admin.POST("/fuzz", ah.Fuzz)
	admin.GET("/scheduler", ah.ListSchedulerTasks)
	e.r = r
	return e
}

func (e *env) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *env) get(path string, header ...string) *httptest.ResponseRecorder {
	return e.do(http.MethodGet, path, "", header...)
}

func (e *env) post(path, body string, header ...string) *httptest.ResponseRecorder {
	return e.do(http.MethodPost, path, body, header...)
}

func bearer(tok string) []string { return []string{"Authorization", "Bearer " + tok} }

func admin() []string { return []string{"X-Admin-Key", testAdminKey} }

const createBody = `{
	"p1": [
		{"species":"Tauros","moves":["Body Slam","Hyper Beam","Earthquake","Blizzard"]},
		{"species":"Chansey","moves":["Ice Beam","Thunderbolt","Soft-Boiled","Thunder Wave"]}
	],
	"p2": [
		{"species":"Starmie","moves":["Surf","Thunderbolt","Recover","Thunder Wave"]}
	],
	"seed": [1, 2, 3, 4],
	"bots": ["", "random"]
}`

const botBody = `{
	"p1": [{"species":"Jolteon","moves":["Thunderbolt","Double Kick","Pin Missile","Thunder Wave"]}],
	"p2": [{"species":"Golem","moves":["Earthquake","Rock Slide","Explosion","Body Slam"]}],
	"seed": [5, 6, 7, 8],
	"bots": ["random", "random"]
}`
