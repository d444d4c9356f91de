package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xweng-opaida/agent-viewer/internal/infrastructure/logging"
	"github.com/xweng-opaida/agent-viewer/internal/infrastructure/monitoring"
	"github.com/xweng-opaida/agent-viewer/internal/infrastructure/resilience"
	"github.com/xweng-opaida/agent-viewer/internal/shared/id"
)

// Config bounds the manager's interactions with the runtime.
type Config struct {
	// ReadyTimeout bounds how long a create waits for the container to
	// announce its VNC port.
	ReadyTimeout time.Duration
	// ReadyPoll is the interval between log polls while waiting.
	ReadyPoll time.Duration
	// StopTimeout bounds the best-effort teardown of a failed launch.
	StopTimeout time.Duration
	// QueryTimeout bounds each discovery query against the runtime.
	QueryTimeout time.Duration
}

// DefaultConfig returns the manager timing defaults.
func DefaultConfig() Config {
	return Config{
		ReadyTimeout: 30 * time.Second,
		ReadyPoll:    500 * time.Millisecond,
		StopTimeout:  10 * time.Second,
		QueryTimeout: 10 * time.Second,
	}
}

// Manager orchestrates session lifecycle: create, stop, cleanup, and
// discovery, all against the same registry the bridge reads.
type Manager struct {
	registry   *Registry
	runtime    Runtime
	launcher   Launcher
	discoverer *Discoverer
	breaker    *resilience.Breaker
	metrics    *monitoring.Metrics
	log        *logging.Logger
	cfg        Config
}

// NewManager creates a lifecycle manager.
func NewManager(registry *Registry, rt Runtime, launcher Launcher, cfg Config, log *logging.Logger) *Manager {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultConfig().ReadyTimeout
	}
	if cfg.ReadyPoll <= 0 {
		cfg.ReadyPoll = DefaultConfig().ReadyPoll
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultConfig().StopTimeout
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultConfig().QueryTimeout
	}
	return &Manager{
		registry:   registry,
		runtime:    rt,
		launcher:   launcher,
		discoverer: NewDiscoverer(rt, cfg.QueryTimeout, log),
		log:        log,
		cfg:        cfg,
	}
}

// WithMetrics adds metrics tracking to the manager.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// WithBreaker guards runtime queries with a circuit breaker.
func (m *Manager) WithBreaker(breaker *resilience.Breaker) *Manager {
	m.breaker = breaker
	return m
}

// List returns a snapshot of all tracked sessions.
func (m *Manager) List() []Record {
	return m.registry.List()
}

// Running resolves a session the bridge may dial.
func (m *Manager) Running(sessionID string) (Record, bool) {
	return m.registry.Running(sessionID)
}

// Create allocates ports, launches a container, and waits for its VNC
// server to become ready. On any failure the reserved ports are released
// and no record survives.
func (m *Manager) Create(ctx context.Context) (Record, error) {
	debug, vnc, display, err := m.registry.AllocatePorts()
	if err != nil {
		return Record{}, err
	}

	provisional := Record{
		ID:        string(id.NewSessionID()),
		VNCPort:   vnc,
		DebugPort: debug,
		Display:   FormatDisplay(display),
		State:     StateStarting,
		CreatedAt: time.Now(),
	}
	m.registry.Add(provisional)

	// Removing the provisional record releases all three reservations.
	fail := func(err error) (Record, error) {
		m.registry.Remove(provisional.ID)
		if m.metrics != nil && IsLaunchFailed(err) {
			m.metrics.RecordLaunchFailure()
		}
		return Record{}, err
	}

	m.log.Info("launching session",
		zap.Int("debug_port", debug),
		zap.Int("vnc_port", vnc),
		zap.String("display", provisional.Display),
	)

	res, err := m.launcher.Launch(ctx, debug, vnc, provisional.Display)
	if err != nil {
		le := &LaunchError{Err: err}
		if res != nil {
			le.Stdout = res.Stdout
			le.Stderr = res.Stderr
		}
		return fail(le)
	}

	actual, err := m.waitReady(ctx, res.ContainerID)
	if err != nil {
		m.teardown(res.ContainerID)
		return fail(err)
	}

	confirmed := provisional
	confirmed.ID = res.ContainerID
	confirmed.VNCPort = actual
	confirmed.WSEndpoint = res.WSEndpoint
	confirmed.State = StateRunning

	// A stop on the provisional id, or a port conflict, loses the
	// container: the session must not surface with unreserved ports.
	if err := m.registry.Promote(provisional.ID, confirmed); err != nil {
		m.teardown(res.ContainerID)
		return fail(err)
	}

	if m.metrics != nil {
		m.metrics.RecordSessionCreated()
		m.metrics.SetSessionsActive(m.registry.Len())
	}
	m.log.Info("session running",
		zap.String("session_id", confirmed.ID),
		zap.Int("vnc_port", confirmed.VNCPort),
	)
	return confirmed, nil
}

// StopResult reports how a stop resolved.
type StopResult struct {
	ID          string `json:"id"`
	AlreadyGone bool   `json:"already_gone"`
}

// Stop removes a session. Stopping an unknown id succeeds with a note;
// the record is removed and its ports released even when the runtime
// reports the container already gone.
func (m *Manager) Stop(ctx context.Context, sessionID string) (StopResult, error) {
	rec, ok := m.registry.Get(sessionID)
	if !ok {
		return StopResult{ID: sessionID, AlreadyGone: true}, nil
	}

	m.registry.SetState(sessionID, StateStopping)
	if err := m.runtime.Stop(ctx, rec.ID); err != nil {
		// Treat as stopped: the record goes away regardless.
		m.log.Warn("runtime stop reported an error",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	m.registry.Remove(sessionID)

	if m.metrics != nil {
		m.metrics.RecordSessionStopped()
		m.metrics.SetSessionsActive(m.registry.Len())
	}
	return StopResult{ID: sessionID}, nil
}

// Cleanup drops every tracked session the runtime no longer reports as
// present, releasing its ports. Provisional records are skipped: they are
// not visible to the runtime yet. Returns the removed session ids.
func (m *Manager) Cleanup(ctx context.Context) []string {
	var removed []string
	for _, rec := range m.registry.List() {
		if rec.State == StateStarting {
			continue
		}
		running, err := m.runtime.IsRunning(ctx, rec.ID)
		if err != nil {
			m.log.Warn("cleanup could not query container, keeping record",
				zap.String("session_id", rec.ID),
				zap.Error(err),
			)
			continue
		}
		if !running {
			m.registry.Remove(rec.ID)
			removed = append(removed, rec.ID)
		}
	}
	if len(removed) > 0 {
		m.log.Info("cleanup removed stopped sessions", zap.Strings("session_ids", removed))
		if m.metrics != nil {
			m.metrics.SetSessionsActive(m.registry.Len())
		}
	}
	return removed
}

// Discover reconciles the registry with the runtime's view. On query
// failure the registry keeps its last-known-good state and a
// DiscoveryError is returned.
func (m *Manager) Discover(ctx context.Context) (ReplaceResult, error) {
	records, err := m.queryDiscovery(ctx)
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordDiscovery("error")
		}
		return ReplaceResult{}, &DiscoveryError{Err: err}
	}

	result := m.registry.ReplaceDiscovered(records)
	for _, c := range result.Conflicts {
		m.log.Warn("discovered session skipped",
			zap.String("session_id", c.ID),
			zap.Int("vnc_port", c.VNCPort),
			zap.Error(ErrPortConflict),
		)
	}
	if m.metrics != nil {
		m.metrics.RecordDiscovery("ok")
		m.metrics.SetSessionsActive(m.registry.Len())
	}
	return result, nil
}

// Refresh runs discovery and returns the resulting session list. A failed
// query is logged and the last-known-good list is served instead.
func (m *Manager) Refresh(ctx context.Context) []Record {
	if _, err := m.Discover(ctx); err != nil {
		m.log.Warn("discovery failed, serving last known state", zap.Error(err))
	}
	return m.registry.List()
}

func (m *Manager) queryDiscovery(ctx context.Context) ([]Record, error) {
	if m.breaker == nil {
		return m.discoverer.Discover(ctx)
	}
	result, err := m.breaker.Execute(func() (interface{}, error) {
		return m.discoverer.Discover(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Record), nil
}

// waitReady polls the container's output for the ready marker. The result
// is tri-state: the negotiated port once ready, retry while the marker is
// absent, and a LaunchError when the container exits or the wait times out.
func (m *Manager) waitReady(ctx context.Context, containerID string) (int, error) {
	deadline := time.NewTimer(m.cfg.ReadyTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.cfg.ReadyPoll)
	defer ticker.Stop()

	var lastOutput string
	for {
		output, err := m.runtime.Logs(ctx, containerID)
		if err == nil {
			lastOutput = output
			if port, ok := ExtractVNCPort(output); ok {
				return port, nil
			}
		}

		if running, rerr := m.runtime.IsRunning(ctx, containerID); rerr == nil && !running {
			return 0, &LaunchError{
				Stdout: lastOutput,
				Err:    errors.New("container exited before the VNC server became ready"),
			}
		}

		select {
		case <-ctx.Done():
			return 0, &LaunchError{Stdout: lastOutput, Err: ctx.Err()}
		case <-deadline.C:
			return 0, &LaunchError{
				Stdout: lastOutput,
				Err:    fmt.Errorf("no ready marker within %s", m.cfg.ReadyTimeout),
			}
		case <-ticker.C:
		}
	}
}

// teardown best-effort stops a container whose create failed, so a
// half-started session does not linger in the runtime.
func (m *Manager) teardown(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StopTimeout)
	defer cancel()
	if err := m.runtime.Stop(ctx, containerID); err != nil {
		m.log.Warn("failed to tear down container after launch failure",
			zap.String("container_id", containerID),
			zap.Error(err),
		)
	}
}
