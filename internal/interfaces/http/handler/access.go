package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	accessapp "github.com/agentmarket/backend/internal/application/access"
	"github.com/agentmarket/backend/internal/interfaces/http/middleware"
)

// AccessHandler exposes the buyer's entitlement and quota view
type AccessHandler struct {
	BaseHandler
	gateService *accessapp.GateService
}

func NewAccessHandler(gateService *accessapp.GateService) *AccessHandler {
	return &AccessHandler{gateService: gateService}
}

// RegisterRoutes registers access routes on the API group
func (h *AccessHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/agents/:id/access", middleware.BuyerIdentity(), h.Usage)
}

// Usage reports what the caller could do against an agent right now
// without consuming any quota
func (h *AccessHandler) Usage(c *gin.Context) {
	buyerID, err := getBuyerID(c)
	if err != nil {
		h.Unauthorized(c, "Buyer identity is required")
		return
	}

	agentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid agent ID")
		return
	}

	decision, err := h.gateService.Usage(c.Request.Context(), buyerID, agentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, decision)
}
