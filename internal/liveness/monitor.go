// Package liveness detects dead connections that never signaled a close.
package liveness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"teamsync/internal/metrics"
	"teamsync/internal/websocket"
)

// Registry is the read access the monitor needs over live connections.
type Registry interface {
	All() []*websocket.Connection
}

// Config holds the monitor's timing parameters.
type Config struct {
	// ProbeInterval is how often every live connection is pinged.
	ProbeInterval time.Duration
	// SweepInterval is how often idle connections are scanned for eviction.
	SweepInterval time.Duration
	// IdleTimeout is how long a connection may go without a liveness signal
	// before it is evicted.
	IdleTimeout time.Duration
}

// DefaultConfig returns the reference timings: probe every 30s, sweep every
// 60s, evict after 5 minutes of silence.
func DefaultConfig() Config {
	return Config{
		ProbeInterval: 30 * time.Second,
		SweepInterval: 60 * time.Second,
		IdleTimeout:   5 * time.Minute,
	}
}

// Monitor periodically probes connections and evicts the ones that stop
// responding. Probing and eviction run on their own tickers, independent of
// message traffic: an idle-but-alive peer stays connected on probe responses
// alone.
type Monitor struct {
	registry Registry
	evict    func(*websocket.Connection)
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger

	now func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewMonitor creates a monitor. evict is called for each connection whose
// lastSeen exceeds the idle timeout; it must be safe to call concurrently
// with the close path (the session server's Disconnect is).
func NewMonitor(registry Registry, evict func(*websocket.Connection), cfg Config, m *metrics.Metrics, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		registry: registry,
		evict:    evict,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Start launches the probe and sweep loops.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}
	m.running = true
	m.stopCh = make(chan struct{})

	go m.run(ctx, m.stopCh)

	return nil
}

// Stop halts the loops. Connections already being evicted finish evicting.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrNotRunning
	}
	m.running = false
	close(m.stopCh)

	return nil
}

func (m *Monitor) run(ctx context.Context, stopCh chan struct{}) {
	probe := time.NewTicker(m.cfg.ProbeInterval)
	defer probe.Stop()
	sweep := time.NewTicker(m.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-probe.C:
			m.ProbeOnce()
		case <-sweep.C:
			m.SweepOnce()
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ProbeOnce pings every live connection. A failed ping is only logged; the
// peer either answers a later probe or ages out at the next sweep.
func (m *Monitor) ProbeOnce() {
	deadline := m.now().Add(10 * time.Second)
	for _, conn := range m.registry.All() {
		if err := conn.Ping(deadline); err != nil {
			m.logger.Debug("probe failed", "error", err, "userId", conn.UserID, "connId", conn.ID)
		}
	}
}

// SweepOnce evicts every connection whose last liveness signal is older than
// the idle timeout.
func (m *Monitor) SweepOnce() {
	cutoff := m.now().Add(-m.cfg.IdleTimeout)
	for _, conn := range m.registry.All() {
		if conn.LastSeen().After(cutoff) {
			continue
		}
		m.metrics.EvictionsTotal.Inc()
		m.logger.Warn("evicting unresponsive connection",
			"userId", conn.UserID,
			"teamId", conn.TeamID,
			"connId", conn.ID,
			"lastSeen", conn.LastSeen(),
		)
		m.evict(conn)
	}
}
