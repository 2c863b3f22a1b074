package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/convoy/internal/arena"
	"github.com/mtzanidakis/convoy/internal/config"
	"github.com/mtzanidakis/convoy/internal/journal"
	"github.com/mtzanidakis/convoy/internal/natsbus"
	"github.com/mtzanidakis/convoy/internal/protocol"
	"github.com/mtzanidakis/convoy/internal/schedule"
	"github.com/mtzanidakis/convoy/internal/scheduler"
	"github.com/mtzanidakis/convoy/internal/store"
	"github.com/mtzanidakis/convoy/internal/teamnet"
	"github.com/nats-io/nats.go"
)

// EventSnapshot is published by the report schedule.
const EventSnapshot = "snapshot"

// EventRunFinished closes every run in the journal.
const EventRunFinished = "run_finished"

// Orchestrator runs a whole team in one process: one Agent and bus link per
// member, the arena that drives them, the event journal, the report
// schedule and the control endpoint.
type Orchestrator struct {
	bus      *natsbus.Bus
	client   *natsbus.Client
	store    *store.Store
	team     string
	recorder *journal.Recorder
	arena    *arena.Arena
	agents   []*Agent
	links    []*teamnet.Link
	reporter *scheduler.Scheduler

	mu       sync.RWMutex
	cfg      *config.Config
	running  bool
	reloader func() (*config.Config, error)
	level    *slog.LevelVar
}

// EventListener receives every journaled team event.
type EventListener = journal.Listener

type IPCCommand struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// TeamStatus is the observable state of a running team.
type TeamStatus struct {
	Team   string         `json:"team"`
	RunID  string         `json:"run_id"`
	Tick   int64          `json:"tick"`
	Agents []Status       `json:"agents"`
	Arena  arena.Snapshot `json:"arena"`
}

func NewOrchestrator(bus *natsbus.Bus, s *store.Store, cfg *config.Config) (*Orchestrator, error) {
	sched, err := schedule.Parse(cfg.Report.Cron)
	if err != nil {
		return nil, fmt.Errorf("report schedule: %w", err)
	}

	field, err := arena.New(cfg.Arena, cfg.Team.Members)
	if err != nil {
		return nil, fmt.Errorf("init arena: %w", err)
	}

	client, err := natsbus.NewClient(bus, nats.Name("convoy-orchestrator"))
	if err != nil {
		return nil, fmt.Errorf("orchestrator nats client: %w", err)
	}

	o := &Orchestrator{
		bus:      bus,
		client:   client,
		store:    s,
		team:     cfg.Team.Name,
		recorder: journal.New(client, s, cfg.Team.Name),
		arena:    field,
		cfg:      cfg,
	}
	o.reporter = scheduler.New("report", sched, o.report)
	field.SetPublisher(o.recorder)

	for i, id := range cfg.Team.Members {
		if err := o.spawn(i, id); err != nil {
			o.Close()
			return nil, err
		}
	}

	return o, nil
}

// spawn connects member id to the bus and attaches its agent to the arena.
func (o *Orchestrator) spawn(i int, id string) error {
	var target atomic.Pointer[Agent]
	link, err := teamnet.Dial(o.bus.ClientURL(), o.cfg.Team.Name, id, func(d protocol.Delivery) {
		if a := target.Load(); a != nil {
			a.OnMessage(d)
		}
	})
	if err != nil {
		return fmt.Errorf("connect %s: %w", id, err)
	}
	o.links = append(o.links, link)

	seed := o.arena.Seed(i)
	a, err := New(Options{
		ID:        id,
		Team:      o.cfg.Team.Members,
		Protocol:  o.cfg.Protocol,
		Arena:     Bounds{Width: o.cfg.Arena.Width, Height: o.cfg.Arena.Height},
		Body:      o.arena.Body(id),
		Clock:     o.arena,
		Transport: link,
		Events:    link,
		Rand:      rand.New(rand.NewPCG(seed, seed>>1|1)),
	})
	if err != nil {
		return fmt.Errorf("create agent %s: %w", id, err)
	}
	target.Store(a)
	o.agents = append(o.agents, a)
	o.arena.Attach(a)
	return nil
}

// SetReloader installs the config source used by the reload command.
func (o *Orchestrator) SetReloader(fn func() (*config.Config, error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reloader = fn
}

// SetLogLevel installs the level variable that reload updates.
func (o *Orchestrator) SetLogLevel(lv *slog.LevelVar) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.level = lv
}

// OnEvent registers a listener for journaled events.
func (o *Orchestrator) OnEvent(listener EventListener) {
	o.recorder.AddListener(listener)
}

func (o *Orchestrator) RunID() string {
	return o.recorder.RunID()
}

// Run plays one run to completion and records it in the store.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("team %s run already started", o.team)
	}
	o.running = true
	cfg := o.cfg
	o.mu.Unlock()

	run := &store.Run{
		ID:      uuid.New().String(),
		Team:    cfg.Team.Name,
		Seed:    cfg.Arena.Seed,
		Members: cfg.Team.Members,
		Status:  store.RunRunning,
	}
	if err := o.store.CreateRun(run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	if err := o.recorder.Start(run.ID); err != nil {
		o.failRun(run.ID)
		return fmt.Errorf("start journal: %w", err)
	}

	ctl, err := o.client.Subscribe(natsbus.TopicControl(cfg.Team.Name), o.handleIPC)
	if err != nil {
		o.recorder.Stop()
		o.failRun(run.ID)
		return fmt.Errorf("subscribe control: %w", err)
	}

	slog.Info("team run started", "team", cfg.Team.Name, "run", run.ID, "members", len(o.agents), "seed", cfg.Arena.Seed)

	reportCtx, stopReports := context.WithCancel(ctx)
	reportsDone := make(chan struct{})
	go func() {
		defer close(reportsDone)
		o.reporter.Start(reportCtx)
	}()

	outcome := o.arena.Run(ctx)

	stopReports()
	<-reportsDone
	if err := ctl.Unsubscribe(); err != nil {
		slog.Warn("unsubscribe control", "error", err)
	}

	ticks := o.arena.Now()
	if err := o.recorder.Publish(ticks, EventRunFinished, map[string]any{
		"outcome": string(outcome),
		"alive":   o.aliveCount(),
	}); err != nil {
		slog.Warn("publish run result failed", "error", err)
	}
	for _, l := range o.links {
		if err := l.Flush(); err != nil {
			slog.Warn("flush link", "agent", l.Agent(), "error", err)
		}
	}
	if err := o.client.Flush(); err != nil {
		slog.Warn("flush orchestrator client", "error", err)
	}
	o.recorder.Stop()

	status := store.RunFinished
	if outcome == arena.OutcomeTeamLost {
		status = store.RunFailed
	}
	if err := o.store.FinishRun(run.ID, status, ticks); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	slog.Info("team run finished", "team", cfg.Team.Name, "run", run.ID, "outcome", outcome, "ticks", ticks)
	return nil
}

func (o *Orchestrator) failRun(id string) {
	if err := o.store.FinishRun(id, store.RunFailed, o.arena.Now()); err != nil {
		slog.Error("mark run failed", "run", id, "error", err)
	}
}

// Close releases the bus connections.
func (o *Orchestrator) Close() {
	for _, l := range o.links {
		l.Close()
	}
	o.client.Close()
}

func (o *Orchestrator) aliveCount() int {
	n := 0
	for _, a := range o.agents {
		if a.Status().Alive {
			n++
		}
	}
	return n
}

// Status returns a snapshot of every agent and the arena.
func (o *Orchestrator) Status() TeamStatus {
	st := TeamStatus{
		Team:  o.team,
		RunID: o.RunID(),
		Tick:  o.arena.Now(),
		Arena: o.arena.Snapshot(),
	}
	for _, a := range o.agents {
		st.Agents = append(st.Agents, a.Status())
	}
	return st
}

// Kill injects the death of a team member at the next tick.
func (o *Orchestrator) Kill(id string) error {
	return o.arena.Kill(id)
}

// Reload applies the reloadable parts of cfg and returns the names of the
// settings that changed.
func (o *Orchestrator) Reload(cfg *config.Config) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	d := config.Diff(o.cfg, cfg)
	for _, field := range d.NonReloadable {
		slog.Warn("config change requires restart", "field", field)
	}
	if !d.HasChanges() {
		return nil, nil
	}

	var changed []string
	if d.ReportChanged {
		sched, err := schedule.Parse(d.NewReportCron)
		if err != nil {
			return nil, fmt.Errorf("report schedule: %w", err)
		}
		o.reporter.UpdateSchedule(sched)
		changed = append(changed, "report")
		slog.Info("report schedule updated", "schedule", sched.String())
	}
	if d.ProtocolChanged {
		for _, a := range o.agents {
			a.Reconfigure(d.NewProtocol)
		}
		changed = append(changed, "protocol")
	}
	if d.LogLevelChanged && o.level != nil {
		o.level.Set(cfg.Log.SlogLevel())
		changed = append(changed, "log")
		slog.Info("log level updated", "level", cfg.Log.Level)
	}

	next := *o.cfg
	next.Protocol = cfg.Protocol
	next.Protocol.TieBreakRange = o.cfg.Protocol.TieBreakRange
	next.Protocol.MailboxSize = o.cfg.Protocol.MailboxSize
	next.Report = cfg.Report
	next.Log = cfg.Log
	o.cfg = &next
	return changed, nil
}

// report publishes a team snapshot into the journal.
func (o *Orchestrator) report(_ context.Context, at time.Time) {
	st := o.Status()

	commanders := make(map[string]int)
	alive := 0
	for _, s := range st.Agents {
		if !s.Alive {
			continue
		}
		alive++
		if s.Commander != "" {
			commanders[s.Commander]++
		}
	}

	if err := o.recorder.Publish(st.Tick, EventSnapshot, map[string]any{
		"alive":      alive,
		"commanders": commanders,
		"hostiles":   len(st.Arena.Hostiles),
		"at":         at.UTC().Format(time.RFC3339),
	}); err != nil {
		slog.Warn("publish snapshot failed", "error", err)
	}
	if st.RunID != "" {
		if err := o.store.UpdateRunTicks(st.RunID, st.Tick); err != nil {
			slog.Warn("update run ticks failed", "run", st.RunID, "error", err)
		}
	}
}

func (o *Orchestrator) handleIPC(msg *nats.Msg) {
	var cmd IPCCommand
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		slog.Warn("invalid IPC command", "error", err)
		o.respondIPC(msg, map[string]any{"error": "invalid command"})
		return
	}

	slog.Info("IPC command received", "type", cmd.Type)

	switch cmd.Type {
	case "status":
		o.respondIPC(msg, map[string]any{"ok": true, "status": o.Status()})
	case "kill":
		o.ipcKill(msg, cmd.Payload)
	case "reload":
		o.ipcReload(msg)
	default:
		slog.Warn("unknown IPC command", "type", cmd.Type)
		o.respondIPC(msg, map[string]any{"error": "unknown command: " + cmd.Type})
	}
}

func (o *Orchestrator) respondIPC(msg *nats.Msg, data any) {
	resp, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to marshal IPC response", "error", err)
		return
	}
	if err := msg.Respond(resp); err != nil {
		slog.Error("failed to respond to IPC", "error", err)
	}
}

func (o *Orchestrator) ipcKill(msg *nats.Msg, payload json.RawMessage) {
	var req struct {
		Agent string `json:"agent"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.Agent == "" {
		o.respondIPC(msg, map[string]any{"error": "agent is required"})
		return
	}
	if err := o.Kill(req.Agent); err != nil {
		o.respondIPC(msg, map[string]any{"error": err.Error()})
		return
	}
	slog.Info("casualty injected via IPC", "agent", req.Agent)
	o.respondIPC(msg, map[string]any{"ok": true})
}

func (o *Orchestrator) ipcReload(msg *nats.Msg) {
	o.mu.RLock()
	load := o.reloader
	o.mu.RUnlock()

	if load == nil {
		o.respondIPC(msg, map[string]any{"error": "reload not supported"})
		return
	}
	cfg, err := load()
	if err != nil {
		o.respondIPC(msg, map[string]any{"error": fmt.Sprintf("load config: %v", err)})
		return
	}
	changed, err := o.Reload(cfg)
	if err != nil {
		o.respondIPC(msg, map[string]any{"error": err.Error()})
		return
	}
	if changed == nil {
		changed = []string{}
	}
	slices.Sort(changed)
	o.respondIPC(msg, map[string]any{"ok": true, "changed": changed})
}
