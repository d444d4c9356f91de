package ws

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xweng-opaida/agent-viewer/internal/domain/session"
	"github.com/xweng-opaida/agent-viewer/internal/infrastructure/logging"
	"github.com/xweng-opaida/agent-viewer/internal/infrastructure/monitoring"
)

const (
	// upstreamReadSize caps a single upstream read. Reads are forwarded
	// the moment they arrive; there is no batching.
	upstreamReadSize = 4096

	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  upstreamReadSize,
	WriteBufferSize: upstreamReadSize,
	CheckOrigin: func(r *http.Request) bool {
		// The viewer UI is served from arbitrary hosts in lab setups.
		return true
	},
}

// Resolver is the registry lookup the bridge performs before dialing.
type Resolver interface {
	Running(sessionID string) (session.Record, bool)
}

// Handler bridges a browser WebSocket to a session's raw VNC TCP port.
// Each connection runs two independent copy loops; the first side to see
// EOF or an error tears both ends down exactly once.
type Handler struct {
	sessions    Resolver
	host        string
	dialTimeout time.Duration
	metrics     *monitoring.Metrics
	log         *logging.Logger
}

// NewHandler creates a bridge handler dialing upstreams on host.
func NewHandler(sessions Resolver, host string, dialTimeout time.Duration, log *logging.Logger) *Handler {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &Handler{
		sessions:    sessions,
		host:        host,
		dialTimeout: dialTimeout,
		log:         log,
	}
}

// WithMetrics adds bridge metrics.
func (h *Handler) WithMetrics(metrics *monitoring.Metrics) *Handler {
	h.metrics = metrics
	return h
}

// Bridge handles GET /vnc/:id.
func (h *Handler) Bridge(c *gin.Context) {
	sessionID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	rec, ok := h.sessions.Running(sessionID)
	if !ok {
		h.closeWith(conn, websocket.ClosePolicyViolation, "session "+sessionID+" not found")
		if h.metrics != nil {
			h.metrics.RecordBridgeError("not_found")
		}
		return
	}

	addr := net.JoinHostPort(h.host, strconv.Itoa(rec.VNCPort))
	upstream, err := net.DialTimeout("tcp", addr, h.dialTimeout)
	if err != nil {
		h.log.Warn("vnc upstream unreachable",
			zap.String("session_id", sessionID),
			zap.String("addr", addr),
			zap.Error(err),
		)
		h.closeWith(conn, websocket.CloseInternalServerErr, "vnc upstream unreachable")
		if h.metrics != nil {
			h.metrics.RecordBridgeError("upstream_unreachable")
		}
		return
	}

	h.log.Info("bridge opened",
		zap.String("session_id", sessionID),
		zap.String("upstream", addr),
	)
	if h.metrics != nil {
		h.metrics.BridgeOpened()
		defer h.metrics.BridgeClosed()
	}

	h.relay(conn, upstream)

	h.log.Info("bridge closed", zap.String("session_id", sessionID))
}

// relay copies bytes in both directions until either side terminates,
// then closes both endpoints. The sync.Once makes the shutdown sequence
// run exactly once regardless of which loop finishes first.
func (h *Handler) relay(conn *websocket.Conn, upstream net.Conn) {
	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			upstream.Close()
			conn.Close()
		})
	}
	defer shutdown()

	done := make(chan struct{}, 2)

	// client -> upstream: one WebSocket message becomes one write.
	go func() {
		defer shutdown()
		defer func() { done <- struct{}{} }()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if _, err := upstream.Write(data); err != nil {
				return
			}
			if h.metrics != nil {
				h.metrics.AddBridgeBytes("client_to_vnc", len(data))
			}
		}
	}()

	// upstream -> client: each read is flushed as one binary message.
	go func() {
		defer shutdown()
		defer func() { done <- struct{}{} }()
		buf := make([]byte, upstreamReadSize)
		for {
			n, err := upstream.Read(buf)
			if n > 0 {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
					return
				}
				if h.metrics != nil {
					h.metrics.AddBridgeBytes("vnc_to_client", n)
				}
			}
			if err != nil {
				return
			}
		}
	}()

	<-done
	<-done
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeTimeout)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		h.log.Debug("failed to send close frame", zap.Error(err))
	}
}
