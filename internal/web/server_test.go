package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mtzanidakis/convoy/internal/agent"
	"github.com/mtzanidakis/convoy/internal/config"
	"github.com/mtzanidakis/convoy/internal/natsbus"
	"github.com/mtzanidakis/convoy/internal/store"
)

type fakeTeam struct {
	status agent.TeamStatus
	killed []string
}

func (f *fakeTeam) Status() agent.TeamStatus { return f.status }

func (f *fakeTeam) Kill(id string) error {
	for _, a := range f.status.Agents {
		if a.Agent == id {
			if !a.Alive {
				return errors.New("team member is already dead")
			}
			f.killed = append(f.killed, id)
			return nil
		}
	}
	return errors.New("unknown team member")
}

func newTestServer(t *testing.T, cfg config.WebConfig) (*Server, *store.Store, *fakeTeam) {
	t.Helper()
	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "web.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	team := &fakeTeam{status: agent.TeamStatus{
		Team:  "alpha",
		RunID: "run-1",
		Tick:  42,
		Agents: []agent.Status{
			{Agent: "a1", Alive: true, Role: agent.RoleCommander, Commander: "a1"},
			{Agent: "a2", Alive: true, Role: agent.RoleFollower, Commander: "a1"},
			{Agent: "a3", Alive: false},
		},
	}}
	return NewServer(s, nil, team, cfg, "test"), s, team
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec.Code
}

func TestTeamEndpoints(t *testing.T) {
	srv, _, team := newTestServer(t, config.WebConfig{})
	h := srv.Handler()

	var st agent.TeamStatus
	if code := get(t, h, "/api/team", &st); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if st.Team != "alpha" || len(st.Agents) != 3 || st.Tick != 42 {
		t.Errorf("unexpected team status: %+v", st)
	}

	var a agent.Status
	if code := get(t, h, "/api/team/agents/a2", &a); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if a.Commander != "a1" || a.Role != agent.RoleFollower {
		t.Errorf("unexpected agent status: %+v", a)
	}
	if code := get(t, h, "/api/team/agents/ghost", nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown agent, got %d", code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/team/agents/a2/kill", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("kill: expected 200, got %d", rec.Code)
	}
	if len(team.killed) != 1 || team.killed[0] != "a2" {
		t.Errorf("expected a2 killed, got %v", team.killed)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/team/agents/a3/kill", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("kill dead member: expected 409, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/team/agents/ghost/kill", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("kill unknown member: expected 404, got %d", rec.Code)
	}
}

func TestRunEndpoints(t *testing.T) {
	srv, s, _ := newTestServer(t, config.WebConfig{})
	h := srv.Handler()

	if err := s.CreateRun(&store.Run{ID: "run-1", Team: "alpha", Seed: 9, Members: []string{"a1", "a2"}}); err != nil {
		t.Fatalf("create run: %v", err)
	}
	for i, typ := range []string{"elected", "hierarchy_built", "elected"} {
		ev := &store.Event{
			EventID: "ev-" + string(rune('a'+i)),
			RunID:   "run-1",
			Tick:    int64(i + 1),
			AgentID: "a1",
			Type:    typ,
			Data:    json.RawMessage(`{"epoch":1}`),
		}
		if err := s.SaveEvent(ev); err != nil {
			t.Fatalf("save event: %v", err)
		}
	}

	var runs []map[string]any
	if code := get(t, h, "/api/runs", &runs); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(runs) != 1 || runs[0]["id"] != "run-1" {
		t.Fatalf("unexpected runs: %v", runs)
	}

	var events []map[string]any
	if code := get(t, h, "/api/runs/run-1/events", &events); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	data, _ := events[0]["data"].(map[string]any)
	if data["epoch"] != float64(1) {
		t.Errorf("expected event data to be inlined, got %v", events[0]["data"])
	}

	first := int(events[0]["id"].(float64))
	if code := get(t, h, "/api/runs/run-1/events?limit=1&after="+strconv.Itoa(first), &events); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(events) != 1 || events[0]["type"] != "hierarchy_built" {
		t.Errorf("unexpected paged events: %v", events)
	}

	var summary struct {
		Events map[string]int `json:"events"`
	}
	if code := get(t, h, "/api/runs/run-1/summary", &summary); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if summary.Events["elected"] != 2 || summary.Events["hierarchy_built"] != 1 {
		t.Errorf("unexpected summary: %v", summary.Events)
	}

	if code := get(t, h, "/api/runs/missing", nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for missing run, got %d", code)
	}
	if code := get(t, h, "/api/runs/missing/events", nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for missing run events, got %d", code)
	}
	if code := get(t, h, "/api/runs?limit=abc", nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, config.WebConfig{})

	var status map[string]any
	if code := get(t, srv.Handler(), "/api/status", &status); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if status["team"] != "alpha" || status["alive"] != float64(2) || status["version"] != "test" {
		t.Errorf("unexpected status: %v", status)
	}
}

func TestStatusReportsBusClients(t *testing.T) {
	bus, err := natsbus.New(config.NATSConfig{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("failed to start bus: %v", err)
	}
	defer bus.Close()

	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "web.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	client, err := natsbus.NewClient(bus)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	srv := NewServer(s, bus, nil, config.WebConfig{}, "test")
	var status map[string]any
	if code := get(t, srv.Handler(), "/api/status", &status); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if status["nats_clients"] != float64(1) {
		t.Errorf("expected 1 nats client, got %v", status["nats_clients"])
	}
	if _, ok := status["team"]; ok {
		t.Errorf("expected no team fields without a team, got %v", status)
	}
}

func TestBasicAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, config.WebConfig{Auth: "secret"})
	h := srv.Handler()

	if code := get(t, h, "/api/team", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/team", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with credentials, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/team", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected preflight 200, got %d", rec.Code)
	}
}

func TestWebSocketReceivesEvents(t *testing.T) {
	srv, _, _ := newTestServer(t, config.WebConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv.hub.Broadcast(Event{Type: "elected", Payload: map[string]string{"agent": "a1"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != "elected" {
		t.Errorf("expected elected event, got %q", got.Type)
	}
}
