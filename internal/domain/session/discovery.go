package session

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xweng-opaida/agent-viewer/internal/infrastructure/logging"
)

// readyMarker is the line the container's VNC server prints once it is
// accepting connections. The captured port is the session's remote port.
var readyMarker = regexp.MustCompile(`Listening for VNC connections on TCP port (\d+)`)

// ExtractVNCPort scans captured container output for the first ready
// marker and returns the negotiated VNC port. The second return is false
// while the server has not announced itself yet.
func ExtractVNCPort(output string) (int, bool) {
	m := readyMarker.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	port, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return port, true
}

// ContainerInfo is one session report from the external runtime.
type ContainerInfo struct {
	ID      string
	Running bool
	Output  string
}

// Runtime is the external container runtime consulted by discovery,
// cleanup, and stop. Implementations live in internal/runtime.
type Runtime interface {
	// List returns every container matching the session naming
	// convention, including its captured startup output.
	List(ctx context.Context) ([]ContainerInfo, error)
	// IsRunning reports whether the container still exists and runs.
	// An absent container is (false, nil), not an error.
	IsRunning(ctx context.Context, id string) (bool, error)
	// Logs returns the container's captured output so far.
	Logs(ctx context.Context, id string) (string, error)
	// Stop stops the container. Stopping an absent container is nil.
	Stop(ctx context.Context, id string) error
}

// LaunchResult is what the external launcher reports for a new session.
type LaunchResult struct {
	ContainerID string
	WSEndpoint  string
	Stdout      string
	Stderr      string
}

// Launcher starts the container and its desktop server. Implementations
// live in internal/runtime.
type Launcher interface {
	Launch(ctx context.Context, debugPort, vncPort int, display string) (*LaunchResult, error)
}

// Discoverer finds sessions created out-of-band by querying the runtime
// and scanning each running container's output for the ready marker.
type Discoverer struct {
	runtime Runtime
	timeout time.Duration
	log     *logging.Logger
}

// NewDiscoverer creates a discoverer with a bounded query timeout.
func NewDiscoverer(rt Runtime, timeout time.Duration, log *logging.Logger) *Discoverer {
	return &Discoverer{runtime: rt, timeout: timeout, log: log}
}

// Discover queries the runtime and returns a Record for every running
// container that has announced its VNC port. Containers without the
// marker are not ready yet and are left for the next round. A failed
// query returns an error and no records.
func (d *Discoverer) Discover(ctx context.Context) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	containers, err := d.runtime.List(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(containers))
	for _, c := range containers {
		if !c.Running {
			continue
		}
		port, ok := ExtractVNCPort(c.Output)
		if !ok {
			d.log.Debug("container has no VNC port in output yet, skipping",
				zap.String("container_id", c.ID),
			)
			continue
		}
		records = append(records, Record{
			ID:        c.ID,
			VNCPort:   port,
			State:     StateRunning,
			CreatedAt: time.Now(),
		})
	}
	return records, nil
}
