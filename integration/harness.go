// Package integration drives a fully wired server over real HTTP,
// WebSocket and SSE connections.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/kasuganosora/gen1sim/api/rest"
	"github.com/kasuganosora/gen1sim/api/sse"
	apows "github.com/kasuganosora/gen1sim/api/ws"
	"github.com/kasuganosora/gen1sim/audit"
	"github.com/kasuganosora/gen1sim/cache"
	"github.com/kasuganosora/gen1sim/config"
	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/kasuganosora/gen1sim/game/match"
	"github.com/kasuganosora/gen1sim/game/player"
	mw "github.com/kasuganosora/gen1sim/middleware"
	"github.com/kasuganosora/gen1sim/plugin/hook"
	"github.com/kasuganosora/gen1sim/resource"
	"github.com/kasuganosora/gen1sim/scheduler"
	"github.com/kasuganosora/gen1sim/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with all subsystems wired together.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	SM     *player.SessionManager
	Mgr    *match.Manager
	Hooks  *hook.HookCenter
	Audit  *audit.Service
	Dex    *resource.Dex
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	WSURL  string // ws://127.0.0.1:<port>
	Sec    config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	dex := testutil.Dex(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}

	// ---- Match systems ----
	auditSvc := audit.New(db, logger)
	sched := scheduler.New(logger)
	hooks := hook.NewHookCenter()
	rules := battle.DefaultRules()
	mgr := match.NewManager(match.Config{
		Dex:      dex,
		Rules:    rules,
		Cache:    c,
		PubSub:   pubsub,
		Hooks:    hooks,
		Recorder: auditSvc,
		Tokens: func(id string, seat battle.SideID, ttl time.Duration) (string, error) {
			return mw.GenerateSeatToken(id, seat.String(), sec.JWTSecret, ttl)
		},
		TokenTTL:  sec.JWTTTLH,
		Scheduler: sched,
		Grace:     time.Minute,
		Logger:    logger,
	})
	sm := player.NewSessionManager(logger)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	matchH := apirest.NewMatchHandler(mgr, auditSvc, logger)
	recordH := apirest.NewRecordHandler(db, dex, logger)
	adminH := apirest.NewAdminHandler(mgr, sm, sched, dex, rules, config.FuzzConfig{Workers: 2, MaxTurns: 200}, logger)
	wsH := apows.NewHandler(mgr, pubsub, sec, sm, auditSvc, apows.NewRouter(logger), logger)
	sseH := sse.NewHandler(pubsub, mgr, logger)

	api := r.Group("/api")
	{
		api.POST("/matches", matchH.Create)
		api.GET("/matches", matchH.List)
		api.GET("/matches/:id", matchH.Get)
		api.GET("/matches/:id/log", matchH.Log)
		api.GET("/matches/:id/events", sseH.ServeSSE)

		seatG := api.Group("/matches/:id")
		seatG.Use(mw.SeatAuth(sec, c))
		seatG.GET("/choices", matchH.Choices)
		seatG.GET("/request", matchH.Request)
		seatG.POST("/choose", matchH.Choose)
		seatG.GET("/ws", wsH.ServeWS)

		api.GET("/records", recordH.List)
		api.GET("/records/:id", recordH.Get)
		api.POST("/records/:id/verify", recordH.Verify)

		adminG := api.Group("/admin")
		adminG.Use(apirest.AdminAuth(AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/stats", adminH.Stats)
		adminG.POST("/matches/:id/abandon", adminH.Abandon)
		adminG.POST("/matches/:id/kick/:seat", adminH.KickSeat)
	}

	// ---- Start server ----
	server := httptest.NewServer(r)
	ts := &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		SM:     sm,
		Mgr:    mgr,
		Hooks:  hooks,
		Audit:  auditSvc,
		Dex:    dex,
		Server: server,
		URL:    server.URL,
		WSURL:  "ws" + server.URL[len("http"):],
		Sec:    sec,
	}
	t.Cleanup(func() {
		sm.CloseAllSessions()
		server.Close()
		sched.Stop()
		mgr.Close(context.Background())
		auditSvc.Stop(context.Background())
	})
	return ts
}

// --- HTTP helpers ---

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest("POST", ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Match helpers ---

// Created is the response of POST /api/matches.
type Created struct {
	Match  match.Summary `json:"match"`
	Tokens struct {
		P1 string `json:"p1"`
		P2 string `json:"p2"`
	} `json:"tokens"`
}

// CreateMatch starts a match through the API.
func (ts *TestServer) CreateMatch(t *testing.T, req match.CreateRequest) Created {
	t.Helper()
	resp := ts.PostJSON(t, "/api/matches", req, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out Created
	ReadJSON(t, resp, &out)
	return out
}

// Choices lists the legal choices of the seat holding token.
func (ts *TestServer) Choices(t *testing.T, matchID, token string) []string {
	t.Helper()
	resp := ts.Get(t, "/api/matches/"+matchID+"/choices", token)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil
	}
	var out struct {
		Choices []string `json:"choices"`
	}
	ReadJSON(t, resp, &out)
	return out.Choices
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// Uses a background readLoop to avoid gorilla/websocket's SetReadDeadline bug.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult // buffered channel from readLoop
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the seat WebSocket of a match with its seat token.
func (ts *TestServer) ConnectWS(t *testing.T, matchID, token string) *WSClient {
	t.Helper()
	url := ts.WSURL + "/api/matches/" + matchID + "/ws?token=" + token
	dialer := websocket.Dialer{}
	conn, resp, err := dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 1024)}
	go wc.readLoop()
	t.Cleanup(func() { conn.Close() })
	return wc
}

// readLoop continuously reads from the websocket in a dedicated goroutine.
func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a JSON message packet to the WebSocket.
func (wc *WSClient) Send(msgType string, payload interface{}) error {
	seq := atomic.AddUint64(&wc.seq, 1)
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return wc.Conn.WriteJSON(player.Packet{Seq: seq, Type: msgType, Payload: payloadJSON})
}

// RecvAny reads one packet with a timeout, returning an error instead of
// failing the test on timeout or read failure.
func (wc *WSClient) RecvAny(timeout time.Duration) (player.Packet, error) {
	select {
	case res := <-wc.readCh:
		if res.err != nil {
			return player.Packet{}, res.err
		}
		var pkt player.Packet
		err := json.Unmarshal(res.data, &pkt)
		return pkt, err
	case <-time.After(timeout):
		return player.Packet{}, &timeoutError{}
	}
}

// timeoutError implements net.Error for timeout detection in callers.
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "read timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

// RecvType reads packets until one with the given type is found (within timeout).
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) player.Packet {
	wc.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			wc.t.Fatalf("timed out waiting for message type %q", msgType)
		}
		pkt, err := wc.RecvAny(remaining)
		if err != nil {
			wc.t.Fatalf("WS recv failed while waiting for %q: %v", msgType, err)
		}
		if pkt.Type == msgType {
			return pkt
		}
	}
}
