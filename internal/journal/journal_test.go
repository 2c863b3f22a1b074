package journal

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mtzanidakis/convoy/internal/config"
	"github.com/mtzanidakis/convoy/internal/natsbus"
	"github.com/mtzanidakis/convoy/internal/protocol"
	"github.com/mtzanidakis/convoy/internal/store"
	"github.com/mtzanidakis/convoy/internal/teamnet"
)

func setup(t *testing.T) (*natsbus.Bus, *store.Store, *Recorder) {
	t.Helper()

	bus, err := natsbus.New(config.NATSConfig{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	t.Cleanup(bus.Close)

	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "journal.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.CreateRun(&store.Run{ID: "run-1", Team: "alpha", Members: []string{"a", "b"}}); err != nil {
		t.Fatalf("create run: %v", err)
	}

	client, err := natsbus.NewClient(bus)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(client.Close)

	return bus, s, New(client, s, "alpha")
}

func waitForEvents(t *testing.T, s *store.Store, n int) []store.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		events, err := s.ListEvents("run-1", 0, 0)
		if err != nil {
			t.Fatalf("list events: %v", err)
		}
		if len(events) >= n {
			return events
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d events, got %d", n, len(events))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRecordsAgentEvents(t *testing.T) {
	bus, s, rec := setup(t)

	var mu sync.Mutex
	var seen []string
	rec.AddListener(func(ev teamnet.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Type)
	})

	if err := rec.Start("run-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rec.Stop()

	link, err := teamnet.Dial(bus.ClientURL(), "alpha", "a", func(protocol.Delivery) {})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer link.Close()

	link.Emit(6, "elected", map[string]any{"commander": "b"})
	link.Emit(8, "hierarchy_built", nil)
	if err := link.Flush(); err != nil {
		t.Fatal(err)
	}

	events := waitForEvents(t, s, 2)
	if events[0].Type != "elected" || events[0].AgentID != "a" || events[0].Tick != 6 {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if string(events[0].Data) != `{"commander":"b"}` {
		t.Errorf("unexpected data %s", events[0].Data)
	}
	if events[1].Data != nil {
		t.Errorf("expected no data, got %s", events[1].Data)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Errorf("expected listener to see 2 events, got %v", seen)
	}
}

func TestPublishRecordsArenaEvent(t *testing.T) {
	_, s, rec := setup(t)

	if err := rec.Start("run-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rec.Stop()

	if err := rec.Publish(42, "snapshot", map[string]any{"alive": 3}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	events := waitForEvents(t, s, 1)
	if events[0].AgentID != SourceArena || events[0].Type != "snapshot" || events[0].Tick != 42 {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestStartTwiceFails(t *testing.T) {
	_, _, rec := setup(t)

	if err := rec.Start("run-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rec.Stop()

	if err := rec.Start("run-2"); err == nil {
		t.Error("expected error starting an active journal")
	}
	if rec.RunID() != "run-1" {
		t.Errorf("expected run-1, got %s", rec.RunID())
	}
}

func TestRecordDeduplicates(t *testing.T) {
	_, s, rec := setup(t)
	rec.runID = "run-1"

	ev := teamnet.Event{ID: "same", Agent: "a", Type: "rotated", Tick: 300}
	for range 2 {
		if err := rec.Record(ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	events, _ := s.ListEvents("run-1", 0, 0)
	if len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
}
