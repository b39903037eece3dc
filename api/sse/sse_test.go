package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/kasuganosora/gen1sim/game/match"
	"github.com/kasuganosora/gen1sim/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*match.Manager, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, ps := testutil.SetupTestCache(t)
	mgr := match.NewManager(match.Config{Dex: testutil.Dex(t), Cache: c, PubSub: ps})
	h := NewHandler(ps, mgr, zap.NewNop())
	r := gin.New()
	r.GET("/api/matches/:id/events", h.ServeSSE)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		mgr.Close(context.Background())
	})
	return mgr, srv
}

func create(t *testing.T, mgr *match.Manager, bots [2]string) *match.Match {
	t.Helper()
	m, _, err := mgr.Create(context.Background(), match.CreateRequest{
		P1:   []battle.Set{{Species: "Jolteon", Moves: []string{"Thunderbolt", "Double Kick", "Pin Missile", "Thunder Wave"}}},
		P2:   []battle.Set{{Species: "Golem", Moves: []string{"Earthquake", "Rock Slide", "Explosion", "Body Slam"}}},
		Seed: &[4]uint16{9, 9, 9, 9},
		Bots: bots,
	})
	require.NoError(t, err)
	return m
}

type event struct {
	id, name, data string
}

// readEvents parses the stream until an "end" event or EOF.
func readEvents(t *testing.T, resp *http.Response) []event {
	t.Helper()
	var out []event
	var cur event
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.name != "" {
				out = append(out, cur)
				if cur.name == "end" {
					return out
				}
			}
			cur = event{}
		case strings.HasPrefix(line, "id: "):
			cur.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		}
	}
	return out
}

func TestServeSSE_NotFound(t *testing.T) {
	_, srv := setup(t)
	resp, err := http.Get(srv.URL + "/api/matches/nope/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeSSE_BadSince(t *testing.T) {
	mgr, srv := setup(t)
	m := create(t, mgr, [2]string{"", ""})
	resp, err := http.Get(srv.URL + "/api/matches/" + m.ID + "/events?since=x")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeSSE_StreamsToEnd(t *testing.T) {
	mgr, srv := setup(t)
	m := create(t, mgr, [2]string{"", ""})
	want := m.Lines(0)

	resp, err := http.Get(srv.URL + "/api/matches/" + m.ID + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = mgr.Abandon(context.Background(), m.ID)
	}()

	events := readEvents(t, resp)
	require.Len(t, events, len(want)+1)
	for i, l := range want {
		assert.Equal(t, "line", events[i].name)
		assert.Equal(t, l, events[i].data)
	}
	assert.Equal(t, "0", events[0].id)
	assert.Equal(t, "end", events[len(events)-1].name)
}

func TestServeSSE_ResumeFinished(t *testing.T) {
	mgr, srv := setup(t)
	m := create(t, mgr, [2]string{"random", "random"})
	require.Eventually(t, func() bool { return m.Summary().Ended }, 5*time.Second, 10*time.Millisecond)
	all := m.Lines(0)
	require.Greater(t, len(all), 3)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/matches/"+m.ID+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "2")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readEvents(t, resp)
	require.Len(t, events, len(all)-3+1)
	assert.Equal(t, "3", events[0].id)
	assert.Equal(t, all[3], events[0].data)
	assert.Equal(t, "end", events[len(events)-1].name)
}
