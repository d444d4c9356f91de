package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xweng-opaida/agent-viewer/internal/domain/session"
	"github.com/xweng-opaida/agent-viewer/internal/infrastructure/logging"
)

// SessionService is what the handlers need from the session manager.
type SessionService interface {
	List() []session.Record
	Refresh(ctx context.Context) []session.Record
	Create(ctx context.Context) (session.Record, error)
	Stop(ctx context.Context, sessionID string) (session.StopResult, error)
	Cleanup(ctx context.Context) []string
	Discover(ctx context.Context) (session.ReplaceResult, error)
}

// Handlers contains all HTTP handlers for the session API.
type Handlers struct {
	sessions SessionService
	log      *logging.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(sessions SessionService, log *logging.Logger) *Handlers {
	return &Handlers{sessions: sessions, log: log}
}

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"sessions": len(h.sessions.List()),
	})
}

// ListSessions handles GET /api/sessions. The list is refreshed from the
// runtime first; a failed refresh serves the last-known-good registry.
func (h *Handlers) ListSessions(c *gin.Context) {
	records := h.sessions.Refresh(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"sessions": recordMap(records),
		"count":    len(records),
	})
}

// CreateSession handles POST /api/sessions.
func (h *Handlers) CreateSession(c *gin.Context) {
	rec, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		h.log.Error("session create failed", zap.Error(err))
		status, body := createErrorResponse(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// StopSession handles POST /api/sessions/:id/stop. Stopping an unknown
// session succeeds with an already_gone note.
func (h *Handlers) StopSession(c *gin.Context) {
	result, err := h.sessions.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"id":           result.ID,
		"already_gone": result.AlreadyGone,
	})
}

// CleanupSessions handles POST /api/sessions/cleanup.
func (h *Handlers) CleanupSessions(c *gin.Context) {
	removed := h.sessions.Cleanup(c.Request.Context())
	if removed == nil {
		removed = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// DiscoverSessions handles POST /api/sessions/discover. Unlike the list
// refresh, an explicit discover surfaces query failures to the caller.
func (h *Handlers) DiscoverSessions(c *gin.Context) {
	result, err := h.sessions.Discover(c.Request.Context())
	if err != nil {
		h.log.Error("discovery failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	conflicts := make([]string, 0, len(result.Conflicts))
	for _, rec := range result.Conflicts {
		conflicts = append(conflicts, rec.ID)
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions":  recordMap(h.sessions.List()),
		"added":     len(result.Added),
		"removed":   len(result.Removed),
		"conflicts": conflicts,
	})
}

// recordMap renders records as the id -> record mapping the UI consumes.
func recordMap(records []session.Record) map[string]session.Record {
	out := make(map[string]session.Record, len(records))
	for _, rec := range records {
		out[rec.ID] = rec
	}
	return out
}

func createErrorResponse(err error) (int, gin.H) {
	if errors.Is(err, session.ErrExhausted) {
		return http.StatusServiceUnavailable, gin.H{"error": err.Error()}
	}
	var le *session.LaunchError
	if errors.As(err, &le) {
		return http.StatusBadGateway, gin.H{
			"error":  le.Error(),
			"stdout": le.Stdout,
			"stderr": le.Stderr,
		}
	}
	if errors.Is(err, session.ErrPortConflict) {
		return http.StatusConflict, gin.H{"error": err.Error()}
	}
	// The session was stopped while it was still starting.
	if errors.Is(err, session.ErrNotFound) {
		return http.StatusConflict, gin.H{"error": err.Error()}
	}
	return http.StatusInternalServerError, gin.H{"error": err.Error()}
}
