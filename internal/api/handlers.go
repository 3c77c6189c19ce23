package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/Unisami/workrelay"
	"github.com/Unisami/workrelay/internal/remote"
	"github.com/gin-gonic/gin"
)

// DefaultQueryTTL is applied when a query request does not name its own TTL.
const DefaultQueryTTL = 60 * time.Second

// recordRequest carries the properties for a create or update submission.
type recordRequest struct {
	Properties map[string]any `json:"properties" binding:"required"`
}

// queryRequest names a cache key, an opaque remote filter, and an optional
// TTL for the cached result.
type queryRequest struct {
	Key        string         `json:"key" binding:"required"`
	Filter     map[string]any `json:"filter"`
	TTLSeconds int            `json:"ttl_seconds"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeRelayError maps relay and remote errors onto HTTP status codes.
// Shutdown maps to 503 so load balancers stop routing to a draining daemon;
// remote API errors pass their status through.
func writeRelayError(c *gin.Context, err error) {
	if errors.Is(err, workrelay.ErrShuttingDown) {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	if apiErr := remote.AsAPIError(err); apiErr != nil {
		c.JSON(apiErr.StatusCode, errorResponse{Error: apiErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// handleEnqueueCreate accepts a fire-and-forget create. The 202 means
// "queued", not "stored": failures after this point are logged and counted
// but not reported to the caller.
func (s *Server) handleEnqueueCreate(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.layer.Enqueue(workrelay.OpCreate, "", req.Properties, nil); err != nil {
		writeRelayError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// handleEnqueueUpdate accepts a fire-and-forget update to one record. The
// record's cache entry is invalidated once the remote call completes.
func (s *Server) handleEnqueueUpdate(c *gin.Context) {
	id := c.Param("id")

	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.layer.Enqueue(workrelay.OpUpdate, id, req.Properties, nil); err != nil {
		writeRelayError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "id": id})
}

// handleStore creates one record synchronously and returns its new ID.
func (s *Server) handleStore(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	id, err := s.layer.StoreOne(req.Properties)
	if err != nil {
		writeRelayError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// handleQuery runs a read-through query: cache hits return without touching
// the remote API.
func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	ttl := DefaultQueryTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	records, err := s.layer.QueryCached(req.Key, req.Filter, ttl)
	if err != nil {
		writeRelayError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(records), "records": records})
}

// handleStats returns the relay layer's counters.
func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.layer.Stats())
}

// handleHealth returns the health status of the API server
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   version,
		Uptime:    time.Since(startTime).String(),
	})
}
