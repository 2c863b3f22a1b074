package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mtzanidakis/convoy/internal/agent"
	"github.com/mtzanidakis/convoy/internal/natsbus"
	"github.com/nats-io/nats.go"
)

type ipcRequest struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

type ipcResponse struct {
	OK      bool              `json:"ok,omitempty"`
	Error   string            `json:"error,omitempty"`
	Changed []string          `json:"changed,omitempty"`
	Status  *agent.TeamStatus `json:"status,omitempty"`
}

func sendIPC(natsURL, team, reqType string, payload map[string]any) (*ipcResponse, error) {
	conn, err := nats.Connect(natsURL, nats.Name("convoyctl"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	defer conn.Close()

	data, err := json.Marshal(ipcRequest{Type: reqType, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	msg, err := conn.Request(natsbus.TopicControl(team), data, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ipc request: %w", err)
	}

	var resp ipcResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}

func parseArgs(args []string) map[string]string {
	result := make(map[string]string)
	for i := 0; i < len(args); i++ {
		if len(args[i]) > 2 && args[i][:2] == "--" && i+1 < len(args) {
			result[args[i][2:]] = args[i+1]
			i++
		}
	}
	return result
}

// printStatus renders one line per agent.
func printStatus(w io.Writer, st *agent.TeamStatus) {
	fmt.Fprintf(w, "Team %s  run %s  tick %d  hostiles %d\n", st.Team, st.RunID, st.Tick, len(st.Arena.Hostiles))
	for _, a := range st.Agents {
		state := "dead"
		if a.Alive {
			state = string(a.Phase)
		}
		role := string(a.Role)
		if role == "" {
			role = "-"
		}
		line := fmt.Sprintf("  %-12s %-10s %-9s commander=%s epoch=%d", a.Agent, state, role, a.Commander, a.Epoch)
		if a.Predecessor != "" {
			line += " follows=" + a.Predecessor
		}
		if a.Target != "" {
			line += " target=" + a.Target
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  convoyctl status")
	fmt.Fprintln(os.Stderr, `  convoyctl kill --agent "..."`)
	fmt.Fprintln(os.Stderr, "  convoyctl reload")
	os.Exit(1)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	natsURL := os.Getenv("CONVOY_NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}
	team := os.Getenv("CONVOY_TEAM")
	if team == "" {
		team = "alpha"
	}

	if len(os.Args) < 2 {
		usage()
	}

	command := os.Args[1]
	rest := os.Args[2:]

	switch command {
	case "status":
		resp, err := sendIPC(natsURL, team, "status", nil)
		if err != nil {
			fatal("%v", err)
		}
		if resp.Error != "" {
			fatal("%s", resp.Error)
		}
		if resp.Status == nil {
			fatal("empty status response")
		}
		printStatus(os.Stdout, resp.Status)

	case "kill":
		args := parseArgs(rest)
		if args["agent"] == "" {
			fatal("--agent is required")
		}
		resp, err := sendIPC(natsURL, team, "kill", map[string]any{"agent": args["agent"]})
		if err != nil {
			fatal("%v", err)
		}
		if resp.Error != "" {
			fatal("%s", resp.Error)
		}
		fmt.Printf("Casualty scheduled: %s\n", args["agent"])

	case "reload":
		resp, err := sendIPC(natsURL, team, "reload", nil)
		if err != nil {
			fatal("%v", err)
		}
		if resp.Error != "" {
			fatal("%s", resp.Error)
		}
		if len(resp.Changed) == 0 {
			fmt.Println("Nothing to reload.")
		} else {
			fmt.Printf("Reloaded: %s\n", strings.Join(resp.Changed, ", "))
		}

	default:
		fatal("unknown command: %s", command)
	}
}
