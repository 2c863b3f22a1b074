package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mtzanidakis/convoy/internal/agent"
	"github.com/mtzanidakis/convoy/internal/config"
	"github.com/mtzanidakis/convoy/internal/natsbus"
	"github.com/nats-io/nats.go"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want map[string]string
	}{
		{"empty", []string{}, map[string]string{}},
		{"single flag", []string{"--agent", "a1"}, map[string]string{"agent": "a1"}},
		{"flag without value is ignored", []string{"--agent"}, map[string]string{}},
		{"non-flag args ignored", []string{"positional", "--agent", "a1"}, map[string]string{"agent": "a1"}},
		{"short prefix not treated as flag", []string{"-a", "a1"}, map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseArgs(tt.args)
			if len(got) != len(tt.want) {
				t.Errorf("parseArgs(%v) returned %d entries, want %d", tt.args, len(got), len(tt.want))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("parseArgs(%v)[%q] = %q, want %q", tt.args, k, got[k], v)
				}
			}
		})
	}
}

// startResponder runs an embedded NATS server with a fake control endpoint
// for team "test".
func startResponder(t *testing.T, handle func(req ipcRequest) any) string {
	t.Helper()
	bus, err := natsbus.New(config.NATSConfig{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(bus.Close)

	conn, err := nats.Connect(bus.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(conn.Close)

	_, err = conn.Subscribe(natsbus.TopicControl("test"), func(msg *nats.Msg) {
		var req ipcRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		resp, _ := json.Marshal(handle(req))
		msg.Respond(resp)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	conn.Flush()
	return bus.ClientURL()
}

func TestSendIPCStatus(t *testing.T) {
	url := startResponder(t, func(req ipcRequest) any {
		if req.Type != "status" {
			t.Errorf("expected type status, got %s", req.Type)
		}
		return map[string]any{"ok": true, "status": agent.TeamStatus{
			Team: "test",
			Tick: 12,
			Agents: []agent.Status{
				{Agent: "a1", Alive: true, Phase: agent.PhaseSteady, Role: agent.RoleCommander, Commander: "a1", Epoch: 1},
				{Agent: "a2", Alive: true, Phase: agent.PhaseSteady, Role: agent.RoleFollower, Commander: "a1", Epoch: 1, Predecessor: "a1"},
			},
		}}
	})

	resp, err := sendIPC(url, "test", "status", nil)
	if err != nil {
		t.Fatalf("sendIPC: %v", err)
	}
	if resp.Status == nil || len(resp.Status.Agents) != 2 {
		t.Fatalf("unexpected status: %+v", resp.Status)
	}

	var out bytes.Buffer
	printStatus(&out, resp.Status)
	text := out.String()
	if !strings.Contains(text, "tick 12") || !strings.Contains(text, "follows=a1") {
		t.Errorf("unexpected status output:\n%s", text)
	}
}

func TestSendIPCKill(t *testing.T) {
	url := startResponder(t, func(req ipcRequest) any {
		if req.Type != "kill" {
			t.Errorf("expected type kill, got %s", req.Type)
		}
		if req.Payload["agent"] != "a2" {
			t.Errorf("expected agent a2, got %v", req.Payload["agent"])
		}
		return map[string]any{"ok": true}
	})

	resp, err := sendIPC(url, "test", "kill", map[string]any{"agent": "a2"})
	if err != nil {
		t.Fatalf("sendIPC: %v", err)
	}
	if !resp.OK || resp.Error != "" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestSendIPCReload(t *testing.T) {
	url := startResponder(t, func(req ipcRequest) any {
		return map[string]any{"ok": true, "changed": []string{"protocol", "report"}}
	})

	resp, err := sendIPC(url, "test", "reload", nil)
	if err != nil {
		t.Fatalf("sendIPC: %v", err)
	}
	if len(resp.Changed) != 2 || resp.Changed[0] != "protocol" {
		t.Errorf("unexpected changed list: %v", resp.Changed)
	}
}

func TestSendIPCErrorResponse(t *testing.T) {
	url := startResponder(t, func(req ipcRequest) any {
		return map[string]any{"error": "unknown team member \"ghost\""}
	})

	resp, err := sendIPC(url, "test", "kill", map[string]any{"agent": "ghost"})
	if err != nil {
		t.Fatalf("sendIPC: %v", err)
	}
	if resp.Error == "" {
		t.Error("expected error in response")
	}
}

func TestSendIPCNoResponder(t *testing.T) {
	bus, err := natsbus.New(config.NATSConfig{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(bus.Close)

	if _, err := sendIPC(bus.ClientURL(), "nobody", "status", nil); err == nil {
		t.Fatal("expected error without a responder")
	}
}
