package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	accessapp "github.com/agentmarket/backend/internal/application/access"
	"github.com/agentmarket/backend/internal/domain/access"
	"github.com/agentmarket/backend/internal/interfaces/http/middleware"
)

type accessHandlerDeps struct {
	agentRepo       *MockAgentRepository
	tierRepo        *MockTierRepository
	entitlementRepo *MockEntitlementRepository
	usageRepo       *MockUsageCounterRepository
}

func setupAccessHandler() (*AccessHandler, *accessHandlerDeps) {
	deps := &accessHandlerDeps{
		agentRepo:       new(MockAgentRepository),
		tierRepo:        new(MockTierRepository),
		entitlementRepo: new(MockEntitlementRepository),
		usageRepo:       new(MockUsageCounterRepository),
	}

	gate := accessapp.NewGateService(deps.agentRepo, deps.tierRepo, deps.entitlementRepo, deps.usageRepo, zap.NewNop(), accessapp.DefaultGateConfig())
	return NewAccessHandler(gate), deps
}

func setupAccessRouter(handler *AccessHandler) *gin.Engine {
	router := setupTestRouter()
	handler.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func TestAccessHandler_Usage_FreeTier(t *testing.T) {
	handler, deps := setupAccessHandler()

	agentID := uuid.New()
	deps.entitlementRepo.On("FindEffective", mock.Anything, testBuyerID, agentID, mock.Anything).
		Return([]access.Entitlement{}, nil)
	deps.usageRepo.On("Used", mock.Anything, testBuyerID, agentID, mock.Anything).Return(int64(3), nil)

	router := setupAccessRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/"+agentID.String()+"/access", nil)
	req.Header.Set(middleware.BuyerIDHeader, testBuyerID.String())
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tier_code":"FREE"`)
	assert.Contains(t, w.Body.String(), `"remaining":2`)

	// reading usage never consumes a unit
	deps.usageRepo.AssertNotCalled(t, "Increment")
}

func TestAccessHandler_Usage_Exhausted(t *testing.T) {
	handler, deps := setupAccessHandler()

	agentID := uuid.New()
	deps.entitlementRepo.On("FindEffective", mock.Anything, testBuyerID, agentID, mock.Anything).
		Return([]access.Entitlement{}, nil)
	deps.usageRepo.On("Used", mock.Anything, testBuyerID, agentID, mock.Anything).Return(int64(5), nil)

	router := setupAccessRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/"+agentID.String()+"/access", nil)
	req.Header.Set(middleware.BuyerIDHeader, testBuyerID.String())
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"allowed":false`)
	assert.Contains(t, w.Body.String(), `"remaining":0`)
}

func TestAccessHandler_Usage_MissingBuyerHeader(t *testing.T) {
	handler, _ := setupAccessHandler()

	router := setupAccessRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/"+uuid.New().String()+"/access", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAccessHandler_Usage_InvalidAgentID(t *testing.T) {
	handler, _ := setupAccessHandler()

	router := setupAccessRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/nope/access", nil)
	req.Header.Set(middleware.BuyerIDHeader, testBuyerID.String())
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
