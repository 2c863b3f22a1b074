package agent

import (
	"sync"

	"github.com/mtzanidakis/convoy/internal/config"
	"github.com/mtzanidakis/convoy/internal/protocol"
)

type inputKind int

const (
	inputDelivery inputKind = iota
	inputDeath
	inputSighting
	inputReconfigure
)

// input is one queued stimulus, consumed by the agent's tick.
type input struct {
	kind     inputKind
	delivery protocol.Delivery
	subject  string
	sighting protocol.Sighting
	protocol config.ProtocolConfig
}

// Mailbox buffers inputs between ticks. Bus deliveries are capped; inputs
// from the environment are never dropped.
type Mailbox struct {
	pending   []input
	delivered int
	limit     int
	mu        sync.Mutex
}

func NewMailbox(limit int) *Mailbox {
	return &Mailbox{limit: limit}
}

// Enqueue adds in and reports whether it was accepted.
func (m *Mailbox) Enqueue(in input) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if in.kind == inputDelivery {
		if m.limit > 0 && m.delivered >= m.limit {
			return false
		}
		m.delivered++
	}
	m.pending = append(m.pending, in)
	return true
}

// Drain returns everything queued so far in arrival order.
func (m *Mailbox) Drain() []input {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.pending
	m.pending = nil
	m.delivered = 0
	return out
}

func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
