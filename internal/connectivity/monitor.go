// Package connectivity tracks whether the reconciliation server is
// reachable and publishes online/offline transitions.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Event int

const (
	BecameOnline Event = iota + 1
	BecameOffline
)

func (e Event) String() string {
	switch e {
	case BecameOnline:
		return "became-online"
	case BecameOffline:
		return "became-offline"
	default:
		return "unknown"
	}
}

// Prober reports nil when the remote side is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

const (
	DefaultProbeInterval = 30 * time.Second
	subscriberBuffer     = 8
)

type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[int]chan Event
	nextID int

	prober   Prober
	interval time.Duration
	logger   *slog.Logger
}

type MonitorOption func(*Monitor)

func WithProber(p Prober, interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.prober = p
		if interval > 0 {
			m.interval = interval
		}
	}
}

func WithLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewMonitor(initial bool, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		online:   initial,
		subs:     make(map[int]chan Event),
		interval: DefaultProbeInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records the current state. Subscribers are notified only on a
// transition. A subscriber that is not keeping up misses the event.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online

	ev := BecameOffline
	if online {
		ev = BecameOnline
	}
	m.logger.Info("connectivity changed", "event", ev.String())

	for id, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.logger.Warn("dropped connectivity event for slow subscriber", "subscriber", id, "event", ev.String())
		}
	}
}

// Subscribe returns a channel of transitions and a func that closes it.
func (m *Monitor) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Event, subscriberBuffer)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if m.prober == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.probe(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	err := m.prober.Probe(probeCtx)
	if err != nil && ctx.Err() != nil {
		return
	}
	if err != nil {
		m.logger.Debug("probe failed", "error", err)
	}
	m.Set(err == nil)
}
