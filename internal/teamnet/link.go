// Package teamnet connects one agent to its team over NATS. Echoes and
// duplicate deliveries are dropped before they reach the agent.
package teamnet

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/convoy/internal/natsbus"
	"github.com/mtzanidakis/convoy/internal/protocol"
	"github.com/nats-io/nats.go"
)

const defaultSeenCap = 1024

// Handler receives every decoded delivery addressed to the link's agent.
type Handler func(protocol.Delivery)

// Event is a protocol state change published on the team events topic.
type Event struct {
	ID    string         `json:"id"`
	Team  string         `json:"team"`
	Agent string         `json:"agent"`
	Type  string         `json:"type"`
	Tick  int64          `json:"tick"`
	Data  map[string]any `json:"data,omitempty"`
	Time  time.Time      `json:"time"`
}

// Link connects one team member to the message bus. It subscribes to the
// team broadcast topic and the member's own topic, drops duplicates and
// self-originated messages, and hands the rest to the handler.
type Link struct {
	team    string
	agent   string
	client  *natsbus.Client
	handler Handler
	subs    []*nats.Subscription

	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string
	seenCap int
}

// Dial opens a dedicated connection for agent and subscribes it.
func Dial(url, team, agent string, handler Handler) (*Link, error) {
	client, err := natsbus.NewClientFromURL(url,
		nats.Name("convoy-"+agent),
		nats.NoEcho(),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", agent, err)
	}

	l := &Link{
		team:    team,
		agent:   agent,
		client:  client,
		handler: handler,
		seen:    make(map[string]struct{}),
		seenCap: defaultSeenCap,
	}

	for _, topic := range []string{
		natsbus.TopicTeamBroadcast(team),
		natsbus.TopicTeamAgent(team, agent),
	} {
		sub, err := client.Subscribe(topic, l.receive)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
		l.subs = append(l.subs, sub)
	}

	if err := client.Flush(); err != nil {
		l.Close()
		return nil, fmt.Errorf("flush subscriptions: %w", err)
	}

	return l, nil
}

func (l *Link) Agent() string { return l.agent }

// Broadcast publishes msg to every other team member.
func (l *Link) Broadcast(tick int64, msg protocol.Message) error {
	data, err := protocol.Encode(l.agent, "", tick, msg)
	if err != nil {
		return err
	}
	if err := l.client.Publish(natsbus.TopicTeamBroadcast(l.team), data); err != nil {
		return fmt.Errorf("broadcast %s: %w", msg.Kind(), err)
	}
	return nil
}

// Send publishes msg to a single team member.
func (l *Link) Send(to string, tick int64, msg protocol.Message) error {
	data, err := protocol.Encode(l.agent, to, tick, msg)
	if err != nil {
		return err
	}
	if err := l.client.Publish(natsbus.TopicTeamAgent(l.team, to), data); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Kind(), to, err)
	}
	return nil
}

// Emit publishes a state change event. Failures are logged, not returned.
func (l *Link) Emit(tick int64, typ string, data map[string]any) {
	ev := Event{
		ID:    uuid.New().String(),
		Team:  l.team,
		Agent: l.agent,
		Type:  typ,
		Tick:  tick,
		Data:  data,
		Time:  time.Now().UTC(),
	}
	if err := l.client.PublishJSON(natsbus.TopicTeamEvents(l.team), ev); err != nil {
		slog.Warn("publish event failed", "agent", l.agent, "type", typ, "error", err)
	}
}

func (l *Link) Flush() error {
	return l.client.Flush()
}

func (l *Link) Close() {
	for _, sub := range l.subs {
		_ = sub.Unsubscribe()
	}
	l.subs = nil
	l.client.Close()
}

func (l *Link) receive(msg *nats.Msg) {
	d, err := protocol.Decode(msg.Data)
	if err != nil {
		slog.Warn("dropping undecodable message", "agent", l.agent, "subject", msg.Subject, "error", err)
		return
	}
	if d.From == l.agent {
		return
	}
	if !l.markSeen(d.ID) {
		slog.Debug("dropping duplicate message", "agent", l.agent, "id", d.ID)
		return
	}
	l.handler(d)
}

// markSeen records id and reports whether it was new. The set is bounded;
// the oldest ids are forgotten first.
func (l *Link) markSeen(id string) bool {
	if id == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[id]; ok {
		return false
	}
	l.seen[id] = struct{}{}
	l.order = append(l.order, id)
	if len(l.order) > l.seenCap {
		delete(l.seen, l.order[0])
		l.order = l.order[1:]
	}
	return true
}
