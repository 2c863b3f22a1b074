package agent

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mtzanidakis/convoy/internal/config"
	"github.com/mtzanidakis/convoy/internal/natsbus"
	"github.com/mtzanidakis/convoy/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	p := testProtocol()
	p.RotationInterval = 100000
	return &config.Config{
		Team:     config.TeamConfig{Name: "alpha", Members: []string{"a1", "a2", "a3", "a4"}},
		Protocol: p,
		Arena: config.ArenaConfig{
			Width:        800,
			Height:       600,
			TickInterval: 2 * time.Millisecond,
			SensorRange:  300,
			EngageRange:  200,
			Seed:         3,
		},
		Report: config.ReportConfig{Cron: "* * * * *"},
		Log:    config.LogConfig{Level: "info"},
	}
}

type orchestratorHarness struct {
	orch   *Orchestrator
	store  *store.Store
	client *natsbus.Client
	cancel context.CancelFunc
	done   chan error
}

func startOrchestrator(t *testing.T, cfg *config.Config) *orchestratorHarness {
	t.Helper()

	bus, err := natsbus.New(config.NATSConfig{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	t.Cleanup(bus.Close)

	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "convoy.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	o, err := NewOrchestrator(bus, s, cfg)
	require.NoError(t, err)
	t.Cleanup(o.Close)

	client, err := natsbus.NewClient(bus)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	ctx, cancel := context.WithCancel(context.Background())
	h := &orchestratorHarness{orch: o, store: s, client: client, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- o.Run(ctx) }()
	t.Cleanup(cancel)

	require.Eventually(t, func() bool { return o.RunID() != "" }, 2*time.Second, 5*time.Millisecond)
	return h
}

func (h *orchestratorHarness) stop(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func (h *orchestratorHarness) request(t *testing.T, typ string, payload any) map[string]any {
	t.Helper()
	cmd := map[string]any{"type": typ}
	if payload != nil {
		cmd["payload"] = payload
	}
	data, err := json.Marshal(cmd)
	require.NoError(t, err)

	msg, err := h.client.Request(natsbus.TopicControl("alpha"), data, 2*time.Second)
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &resp))
	return resp
}

// agreedCommander returns the commander every alive agent follows once all
// of them reached steady state.
func agreedCommander(st TeamStatus) string {
	commander := ""
	for _, s := range st.Agents {
		if !s.Alive {
			continue
		}
		if s.Phase != PhaseSteady || s.Commander == "" {
			return ""
		}
		if commander != "" && s.Commander != commander {
			return ""
		}
		commander = s.Commander
	}
	return commander
}

func TestOrchestratorRunsTeamToAgreement(t *testing.T) {
	h := startOrchestrator(t, testConfig())

	var commander string
	require.Eventually(t, func() bool {
		commander = agreedCommander(h.orch.Status())
		return commander != ""
	}, 5*time.Second, 10*time.Millisecond)

	st := h.orch.Status()
	assert.Len(t, st.Agents, 4)
	for _, s := range st.Agents {
		if s.Agent == commander {
			assert.Equal(t, RoleCommander, s.Role)
			continue
		}
		assert.Equal(t, RoleFollower, s.Role)
	}

	runID := h.orch.RunID()
	h.stop(t)

	run, err := h.store.GetRun(runID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, store.RunFinished, run.Status)
	assert.Positive(t, run.Ticks)

	counts, err := h.store.CountEvents(runID)
	require.NoError(t, err)
	assert.Positive(t, counts[EventElected])
	assert.Equal(t, 1, counts[EventRunFinished])
}

func TestOrchestratorControlKillReplacesCommander(t *testing.T) {
	h := startOrchestrator(t, testConfig())

	var commander string
	require.Eventually(t, func() bool {
		commander = agreedCommander(h.orch.Status())
		return commander != ""
	}, 5*time.Second, 10*time.Millisecond)

	resp := h.request(t, "kill", map[string]string{"agent": commander})
	require.Equal(t, true, resp["ok"], "kill response: %v", resp)

	require.Eventually(t, func() bool {
		next := agreedCommander(h.orch.Status())
		return next != "" && next != commander
	}, 5*time.Second, 10*time.Millisecond)

	resp = h.request(t, "kill", map[string]string{"agent": commander})
	assert.Contains(t, resp["error"], "already dead")

	runID := h.orch.RunID()
	h.stop(t)

	counts, err := h.store.CountEvents(runID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["casualty"])
	assert.Positive(t, counts[EventPromoted])
}

func TestOrchestratorControlStatus(t *testing.T) {
	h := startOrchestrator(t, testConfig())
	defer h.stop(t)

	resp := h.request(t, "status", nil)
	require.Equal(t, true, resp["ok"])

	status, ok := resp["status"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alpha", status["team"])
	assert.Equal(t, h.orch.RunID(), status["run_id"])
	agents, ok := status["agents"].([]any)
	require.True(t, ok)
	assert.Len(t, agents, 4)

	resp = h.request(t, "bogus", nil)
	assert.Equal(t, "unknown command: bogus", resp["error"])

	resp = h.request(t, "kill", nil)
	assert.Equal(t, "agent is required", resp["error"])
}

func TestOrchestratorControlReload(t *testing.T) {
	cfg := testConfig()
	h := startOrchestrator(t, cfg)
	defer h.stop(t)

	resp := h.request(t, "reload", nil)
	assert.Equal(t, "reload not supported", resp["error"])

	next := *cfg
	next.Protocol.RotationInterval = 500
	next.Protocol.MailboxSize = 8
	next.Report.Cron = "*/5 * * * *"
	h.orch.SetReloader(func() (*config.Config, error) { return &next, nil })

	resp = h.request(t, "reload", nil)
	require.Equal(t, true, resp["ok"], "reload response: %v", resp)
	assert.Equal(t, []any{"protocol", "report"}, resp["changed"])

	resp = h.request(t, "reload", nil)
	assert.Equal(t, []any{}, resp["changed"])
}

func TestOrchestratorRejectsBadSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Report.Cron = "not a cron"

	bus, err := natsbus.New(config.NATSConfig{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	t.Cleanup(bus.Close)

	_, err = NewOrchestrator(bus, nil, cfg)
	require.Error(t, err)
}
