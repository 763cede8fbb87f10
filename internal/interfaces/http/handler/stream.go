package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentmarket/backend/internal/domain/stream"
)

// StreamHandler serves topic history over REST and live events over
// WebSocket
type StreamHandler struct {
	BaseHandler
	bus stream.Bus
	hub http.Handler
}

// NewStreamHandler creates a new StreamHandler. hub handles WebSocket
// upgrades for live subscriptions.
func NewStreamHandler(bus stream.Bus, hub http.Handler) *StreamHandler {
	return &StreamHandler{bus: bus, hub: hub}
}

// RegisterRoutes registers stream routes on the API group
func (h *StreamHandler) RegisterRoutes(rg *gin.RouterGroup) {
	streams := rg.Group("/streams")
	{
		streams.GET("/history", h.History)
		streams.GET("/ws", gin.WrapH(h.hub))
	}
}

// streamHistoryRequest carries the query parameters of a history read
type streamHistoryRequest struct {
	Topic    string `form:"topic" binding:"required"`
	AfterSeq int64  `form:"after_seq" binding:"omitempty,min=0"`
	Limit    int    `form:"limit" binding:"omitempty,min=1"`
}

// History returns retained events of a topic after a sequence, oldest
// first
func (h *StreamHandler) History(c *gin.Context) {
	var req streamHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid history query: topic is required, after_seq and limit must be non-negative")
		return
	}

	events, err := h.bus.History(c.Request.Context(), req.Topic, req.AfterSeq, req.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, gin.H{
		"topic":  req.Topic,
		"events": events,
		"count":  len(events),
	})
}
