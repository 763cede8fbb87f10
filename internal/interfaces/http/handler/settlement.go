package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	paymentapp "github.com/agentmarket/backend/internal/application/payment"
	"github.com/agentmarket/backend/internal/domain/payment"
	"github.com/agentmarket/backend/internal/infrastructure/telemetry"
	"github.com/agentmarket/backend/internal/interfaces/http/middleware"
)

// SettlementHandler serves the tier purchase and settlement endpoints
type SettlementHandler struct {
	BaseHandler
	settlementService *paymentapp.SettlementService
	metrics           *telemetry.MarketplaceMetrics
}

// NewSettlementHandler creates a new SettlementHandler. metrics may be
// nil when telemetry is disabled.
func NewSettlementHandler(settlementService *paymentapp.SettlementService, metrics *telemetry.MarketplaceMetrics) *SettlementHandler {
	return &SettlementHandler{
		settlementService: settlementService,
		metrics:           metrics,
	}
}

// RegisterRoutes registers settlement routes on the API group
func (h *SettlementHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/agents/:id/tiers/:code/quote", h.Quote)

	settlements := rg.Group("/settlements", middleware.BuyerIdentity())
	{
		settlements.POST("", h.Start)
		settlements.GET("", h.ListMine)
		settlements.GET("/:txRef", h.Status)
		settlements.POST("/:txRef/confirm", h.Confirm)
		settlements.POST("/:txRef/cancel", h.Cancel)
		settlements.POST("/:txRef/retry", h.Retry)
	}
}

// Quote prices a tier purchase including the marketplace surcharge
func (h *SettlementHandler) Quote(c *gin.Context) {
	agentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid agent ID")
		return
	}

	quote, err := h.settlementService.Quote(c.Request.Context(), agentID, c.Param("code"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, quote)
}

// Start opens a settlement for a tier purchase
func (h *SettlementHandler) Start(c *gin.Context) {
	buyerID, err := getBuyerID(c)
	if err != nil {
		h.Unauthorized(c, "Buyer identity is required")
		return
	}

	var req StartSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	agentID, err := uuid.Parse(req.AgentID)
	if err != nil {
		h.BadRequest(c, "Invalid agent ID")
		return
	}

	settlement, err := h.settlementService.Start(c.Request.Context(), paymentapp.StartInput{
		TxRef:    req.TxRef,
		BuyerID:  buyerID,
		AgentID:  agentID,
		TierCode: req.TierCode,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toSettlementResponse(settlement))
}

// Confirm commits a settlement at the quoted total. Confirming the
// same reference twice returns the first outcome without charging
// again.
func (h *SettlementHandler) Confirm(c *gin.Context) {
	var req ConfirmSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	ctx := c.Request.Context()
	settlement, err := h.settlementService.Confirm(ctx, paymentapp.ConfirmInput{
		TxRef:    c.Param("txRef"),
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.recordOutcome(c, settlement)
	h.Success(c, toSettlementResponse(settlement))
}

// Status returns the settlement for a reference, polling the provider
// when the outcome is still pending. When the provider is unreachable
// the stored status is returned with the stale flag set.
func (h *SettlementHandler) Status(c *gin.Context) {
	result, err := h.settlementService.Status(c.Request.Context(), c.Param("txRef"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := toSettlementResponse(result.Settlement)
	resp.Stale = result.Stale
	h.Success(c, resp)
}

// Cancel aborts a settlement before the provider holds the charge
func (h *SettlementHandler) Cancel(c *gin.Context) {
	var req CancelSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	settlement, err := h.settlementService.Cancel(c.Request.Context(), c.Param("txRef"), req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toSettlementResponse(settlement))
}

// Retry re-opens a failed settlement in CONFIRM with a fresh quote
func (h *SettlementHandler) Retry(c *gin.Context) {
	settlement, err := h.settlementService.Retry(c.Request.Context(), c.Param("txRef"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toSettlementResponse(settlement))
}

// ListMine returns the caller's settlements, newest first
func (h *SettlementHandler) ListMine(c *gin.Context) {
	buyerID, err := getBuyerID(c)
	if err != nil {
		h.Unauthorized(c, "Buyer identity is required")
		return
	}

	settlements, err := h.settlementService.ListByBuyer(c.Request.Context(), buyerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toSettlementResponses(settlements))
}

// recordOutcome records settlement metrics for terminal outcomes
func (h *SettlementHandler) recordOutcome(c *gin.Context, settlement *payment.Settlement) {
	if h.metrics == nil {
		return
	}
	switch settlement.Status {
	case payment.SettlementStatusSuccess, payment.SettlementStatusError:
		h.metrics.RecordSettlement(c.Request.Context(), string(settlement.Status), settlement.TotalAmount)
	}
}
