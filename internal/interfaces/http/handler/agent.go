package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	agentapp "github.com/agentmarket/backend/internal/application/agent"
	catalogapp "github.com/agentmarket/backend/internal/application/catalog"
	"github.com/agentmarket/backend/internal/domain/access"
	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/agentmarket/backend/internal/infrastructure/telemetry"
	"github.com/agentmarket/backend/internal/interfaces/http/dto"
	"github.com/agentmarket/backend/internal/interfaces/http/middleware"
)

// AgentHandler serves the agent catalog and invocation endpoints
type AgentHandler struct {
	BaseHandler
	agentService      *catalogapp.AgentService
	invocationService *agentapp.InvocationService
	metrics           *telemetry.MarketplaceMetrics
}

// NewAgentHandler creates a new AgentHandler. metrics may be nil when
// telemetry is disabled.
func NewAgentHandler(
	agentService *catalogapp.AgentService,
	invocationService *agentapp.InvocationService,
	metrics *telemetry.MarketplaceMetrics,
) *AgentHandler {
	return &AgentHandler{
		agentService:      agentService,
		invocationService: invocationService,
		metrics:           metrics,
	}
}

// RegisterRoutes registers agent routes on the API group
func (h *AgentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	agents := rg.Group("/agents")
	{
		agents.POST("", h.CreateAgent)
		agents.GET("", h.ListAgents)
		agents.GET("/:id", h.GetAgent)
		agents.PATCH("/:id/status", h.SetAgentStatus)
		agents.GET("/:id/tiers", h.ListTiers)
		agents.POST("/:id/tiers", h.AddTier)
		agents.PUT("/:id/tiers/:code", h.UpdateTier)
		agents.POST("/:id/invoke", middleware.BuyerIdentity(), h.Invoke)
	}
}

// CreateAgent lists a new agent in the catalog
func (h *AgentHandler) CreateAgent(c *gin.Context) {
	var req CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	agent, err := h.agentService.CreateAgent(c.Request.Context(), catalogapp.CreateAgentInput{
		Name:         req.Name,
		Description:  req.Description,
		Category:     req.Category,
		ModelRef:     req.ModelRef,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toAgentResponse(agent))
}

// GetAgent returns one agent with its active tiers
func (h *AgentHandler) GetAgent(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	agent, err := h.agentService.GetAgent(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toAgentResponse(agent))
}

// ListAgents returns a page of the catalog
func (h *AgentHandler) ListAgents(c *gin.Context) {
	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	filter := shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
		Search:   req.Search,
	}
	if category := c.Query("category"); category != "" {
		filter.Filters = map[string]interface{}{"category": category}
	}

	page, err := h.agentService.ListAgents(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, toAgentResponses(page.Items), page.Total, page.Page, page.PageSize)
}

// SetAgentStatus enables or disables an agent
func (h *AgentHandler) SetAgentStatus(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req SetAgentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	agent, err := h.agentService.SetAgentStatus(c.Request.Context(), id, *req.Active)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toAgentResponse(agent))
}

// ListTiers returns the active tiers of an agent
func (h *AgentHandler) ListTiers(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	tiers, err := h.agentService.ListTiers(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTierResponses(tiers))
}

// AddTier attaches a new pricing tier to an agent
func (h *AgentHandler) AddTier(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req CreateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	tier, err := h.agentService.AddTier(c.Request.Context(), id, catalogapp.CreateTierInput{
		Code:        req.Code,
		Name:        req.Name,
		PriceModel:  req.PriceModel,
		Price:       req.Price,
		Currency:    req.Currency,
		UnitsPerDay: req.UnitsPerDay,
		Unlimited:   req.Unlimited,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toTierResponse(tier))
}

// UpdateTier supersedes the active revision of a tier with new terms
func (h *AgentHandler) UpdateTier(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	code := c.Param("code")

	var req CreateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	tier, err := h.agentService.UpdateTier(c.Request.Context(), id, code, catalogapp.CreateTierInput{
		Code:        code,
		Name:        req.Name,
		PriceModel:  req.PriceModel,
		Price:       req.Price,
		Currency:    req.Currency,
		UnitsPerDay: req.UnitsPerDay,
		Unlimited:   req.Unlimited,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTierResponse(tier))
}

// Invoke runs one buyer invocation through the access gate and the
// inference provider
func (h *AgentHandler) Invoke(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	buyerID, err := getBuyerID(c)
	if err != nil {
		h.Unauthorized(c, "Buyer identity is required")
		return
	}

	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	ctx := c.Request.Context()
	start := time.Now()
	result, err := h.invocationService.Invoke(ctx, agentapp.InvokeInput{
		BuyerID: buyerID,
		AgentID: id,
		Prompt:  req.Prompt,
	})
	if err != nil {
		var denied *access.DeniedError
		if errors.As(err, &denied) {
			if h.metrics != nil {
				h.metrics.RecordAccessDenied(ctx, id, denied.Code())
			}
			h.renderDenied(c, denied)
			return
		}
		h.HandleError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordInvocation(ctx, id, result.TierCode, time.Since(start))
	}

	h.Success(c, result)
}

// renderDenied writes a refused invocation with the full decision in
// the body so clients can offer the upgrade path
func (h *AgentHandler) renderDenied(c *gin.Context, denied *access.DeniedError) {
	resp := dto.Response{
		Success: false,
		Data:    denied.Decision,
		Error: &dto.ErrorInfo{
			Code:      denied.Code(),
			Message:   denied.Error(),
			RequestID: getRequestID(c),
		},
	}
	c.JSON(dto.GetHTTPStatus(denied.Code()), resp)
}

// parseID parses the :id path parameter
func (h *AgentHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid agent ID")
		return uuid.Nil, false
	}
	return id, true
}
