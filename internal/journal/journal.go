// Package journal persists the coordination events a team publishes on the
// bus and fans them out to in-process listeners.
package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/convoy/internal/natsbus"
	"github.com/mtzanidakis/convoy/internal/store"
	"github.com/mtzanidakis/convoy/internal/teamnet"
	"github.com/nats-io/nats.go"
)

// SourceArena is the Agent value of events published by the simulation
// rather than a team member.
const SourceArena = "arena"

// Listener is called for every event after it has been stored.
type Listener func(ev teamnet.Event)

type Recorder struct {
	client *natsbus.Client
	store  *store.Store
	team   string

	mu        sync.RWMutex
	runID     string
	sub       *nats.Subscription
	listeners []Listener
}

func New(client *natsbus.Client, s *store.Store, team string) *Recorder {
	return &Recorder{
		client: client,
		store:  s,
		team:   team,
	}
}

func (r *Recorder) AddListener(fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Start records every team event under runID until Stop.
func (r *Recorder) Start(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub != nil {
		return fmt.Errorf("journal already recording run %s", r.runID)
	}

	sub, err := r.client.Subscribe(natsbus.TopicTeamEvents(r.team), r.handle)
	if err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}
	if err := r.client.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flush subscription: %w", err)
	}

	r.runID = runID
	r.sub = sub
	slog.Info("journal recording", "team", r.team, "run", runID)
	return nil
}

// Stop drains pending events and stops recording.
func (r *Recorder) Stop() {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	if sub == nil {
		return
	}
	if err := sub.Drain(); err != nil {
		slog.Warn("drain journal subscription", "error", err)
	}
	// Drain returns before the last callbacks finish.
	deadline := time.Now().Add(2 * time.Second)
	for sub.IsValid() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

// Publish emits an event on behalf of the simulation.
func (r *Recorder) Publish(tick int64, typ string, data map[string]any) error {
	ev := teamnet.Event{
		ID:    uuid.New().String(),
		Team:  r.team,
		Agent: SourceArena,
		Type:  typ,
		Tick:  tick,
		Data:  data,
		Time:  time.Now().UTC(),
	}
	if err := r.client.PublishJSON(natsbus.TopicTeamEvents(r.team), ev); err != nil {
		return fmt.Errorf("publish %s: %w", typ, err)
	}
	return nil
}

func (r *Recorder) RunID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runID
}

func (r *Recorder) handle(msg *nats.Msg) {
	var ev teamnet.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		slog.Warn("invalid event payload", "error", err)
		return
	}
	if err := r.Record(ev); err != nil {
		slog.Error("record event failed", "type", ev.Type, "agent", ev.Agent, "error", err)
	}
}

// Record stores ev in the current run and notifies listeners.
func (r *Recorder) Record(ev teamnet.Event) error {
	r.mu.RLock()
	runID := r.runID
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.RUnlock()

	var data json.RawMessage
	if len(ev.Data) > 0 {
		raw, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("encode event data: %w", err)
		}
		data = raw
	}

	if err := r.store.SaveEvent(&store.Event{
		EventID: ev.ID,
		RunID:   runID,
		Tick:    ev.Tick,
		AgentID: ev.Agent,
		Type:    ev.Type,
		Data:    data,
	}); err != nil {
		return err
	}

	for _, fn := range listeners {
		fn(ev)
	}
	return nil
}
