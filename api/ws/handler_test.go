package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/gen1sim/audit"
	"github.com/kasuganosora/gen1sim/config"
	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/kasuganosora/gen1sim/game/match"
	"github.com/kasuganosora/gen1sim/game/player"
	mw "github.com/kasuganosora/gen1sim/middleware"
	"github.com/kasuganosora/gen1sim/model"
	"github.com/kasuganosora/gen1sim/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "ws-test-secret"

type wsFixture struct {
	mgr *match.Manager
	sm  *player.SessionManager
	db  *gorm.DB
	srv *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, ps := testutil.SetupTestCache(t)
	db := testutil.SetupTestDB(t)
	auditSvc := audit.New(db, nop())
	sec := config.SecurityConfig{JWTSecret: testSecret}

	f := &wsFixture{sm: player.NewSessionManager(nop()), db: db}
	f.mgr = match.NewManager(match.Config{
		Dex:    testutil.Dex(t),
		Cache:  c,
		PubSub: ps,
		Tokens: func(id string, seat battle.SideID, ttl time.Duration) (string, error) {
			return mw.GenerateSeatToken(id, seat.String(), testSecret, ttl)
		},
		Recorder: auditSvc,
	})
	h := NewHandler(f.mgr, ps, sec, f.sm, auditSvc, NewRouter(nop()), nop())

	r := gin.New()
	r.GET("/api/matches/:id/ws", mw.SeatAuth(sec, c), h.ServeWS)
	f.srv = httptest.NewServer(r)
	t.Cleanup(func() {
		f.srv.Close()
		f.mgr.Close(context.Background())
		auditSvc.Stop(context.Background())
	})
	return f
}

func (f *wsFixture) create(t *testing.T) (string, string) {
	t.Helper()
	m, tokens, err := f.mgr.Create(context.Background(), match.CreateRequest{
		P1: []battle.Set{
			{Species: "Tauros", Moves: []string{"Body Slam", "Hyper Beam", "Earthquake", "Blizzard"}},
			{Species: "Chansey", Moves: []string{"Ice Beam", "Thunderbolt", "Soft-Boiled", "Thunder Wave"}},
		},
		P2: []battle.Set{
			{Species: "Starmie", Moves: []string{"Surf", "Thunderbolt", "Recover", "Thunder Wave"}},
		},
		Seed: &[4]uint16{1, 2, 3, 4},
		Bots: [2]string{"", "random"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, tokens[0])
	return m.ID, tokens[0]
}

func (f *wsFixture) dial(t *testing.T, id, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/matches/" + id + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readPacket(t *testing.T, conn *websocket.Conn) player.Packet {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var pkt player.Packet
	require.NoError(t, conn.ReadJSON(&pkt))
	return pkt
}

// readUntil skips packets until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) player.Packet {
	t.Helper()
	for {
		if pkt := readPacket(t, conn); pkt.Type == typ {
			return pkt
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, seq uint64, typ string, payload interface{}) {
	t.Helper()
	p, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(player.Packet{Seq: seq, Type: typ, Payload: p}))
}

func TestServeWS_RejectsMissingToken(t *testing.T) {
	f := newWSFixture(t)
	id, _ := f.create(t)
	resp, err := http.Get(f.srv.URL + "/api/matches/" + id + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWS_BacklogThenRequest(t *testing.T) {
	f := newWSFixture(t)
	id, token := f.create(t)
	conn := f.dial(t, id, token)

	m, err := f.mgr.Get(id)
	require.NoError(t, err)
	want := m.Lines(0)
	require.NotEmpty(t, want)

	for i, text := range want {
		pkt := readPacket(t, conn)
		require.Equal(t, "line", pkt.Type)
		var l match.Line
		require.NoError(t, json.Unmarshal(pkt.Payload, &l))
		assert.Equal(t, i, l.Seq)
		assert.Equal(t, text, l.Text)
	}

	pkt := readPacket(t, conn)
	require.Equal(t, "request", pkt.Type)
	var req requestPayload
	require.NoError(t, json.Unmarshal(pkt.Payload, &req))
	assert.True(t, strings.HasPrefix(req.Request, "|request|p1|"), req.Request)

	assert.Eventually(t, func() bool { return f.sm.Get(player.Key(id, battle.P1)) != nil },
		time.Second, 10*time.Millisecond)
}

func TestServeWS_ChooseAcked(t *testing.T) {
	f := newWSFixture(t)
	id, token := f.create(t)
	conn := f.dial(t, id, token)
	readUntil(t, conn, "request")

	m, err := f.mgr.Get(id)
	require.NoError(t, err)
	cs, err := m.Choices(battle.P1)
	require.NoError(t, err)
	choice := cs[len(cs)-1]

	send(t, conn, 1, "choose", map[string]string{"choice": choice.String()})
	pkt := readUntil(t, conn, "ack")
	var ack struct {
		Choice string `json:"choice"`
	}
	require.NoError(t, json.Unmarshal(pkt.Payload, &ack))
	assert.Equal(t, choice.String(), ack.Choice)

	// the bot answered, so the turn resolved and a new request or the end follows
	for {
		pkt := readPacket(t, conn)
		if pkt.Type == "request" || pkt.Type == "end" {
			break
		}
	}

	assert.Eventually(t, func() bool {
		var n int64
		f.db.Model(&model.AuditLog{}).Where("action = ? AND match_id = ?", "choose", id).Count(&n)
		return n == 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestServeWS_IllegalChoiceReported(t *testing.T) {
	f := newWSFixture(t)
	id, token := f.create(t)
	conn := f.dial(t, id, token)
	readUntil(t, conn, "request")

	send(t, conn, 1, "choose", map[string]string{"choice": "switch 6"})
	pkt := readUntil(t, conn, "error")
	var e errorPayload
	require.NoError(t, json.Unmarshal(pkt.Payload, &e))
	assert.Equal(t, "choose", e.Type)
	assert.NotEmpty(t, e.Error)
}

func TestServeWS_Ping(t *testing.T) {
	f := newWSFixture(t)
	id, token := f.create(t)
	conn := f.dial(t, id, token)

	send(t, conn, 0, "ping", map[string]int64{"ts": 1234})
	pkt := readUntil(t, conn, "pong")
	var pong struct {
		ClientTS int64 `json:"client_ts"`
	}
	require.NoError(t, json.Unmarshal(pkt.Payload, &pong))
	assert.Equal(t, int64(1234), pong.ClientTS)
}

func TestServeWS_LogSince(t *testing.T) {
	f := newWSFixture(t)
	id, token := f.create(t)
	conn := f.dial(t, id, token)
	readUntil(t, conn, "request")

	send(t, conn, 0, "log", map[string]int{"since": 1})
	pkt := readUntil(t, conn, "line")
	var l match.Line
	require.NoError(t, json.Unmarshal(pkt.Payload, &l))
	assert.Equal(t, 1, l.Seq)
}

func TestServeWS_EndOnAbandon(t *testing.T) {
	f := newWSFixture(t)
	id, token := f.create(t)
	conn := f.dial(t, id, token)
	readUntil(t, conn, "request")

	require.NoError(t, f.mgr.Abandon(context.Background(), id))
	pkt := readUntil(t, conn, "end")
	var end struct {
		End bool `json:"end"`
	}
	require.NoError(t, json.Unmarshal(pkt.Payload, &end))
	assert.True(t, end.End)
}
