package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/agentmarket/backend/internal/domain/payment"
)

// SettlementResponse represents a settlement in responses
type SettlementResponse struct {
	ID           uuid.UUID  `json:"id"`
	TxRef        string     `json:"tx_ref"`
	BuyerID      uuid.UUID  `json:"buyer_id"`
	AgentID      uuid.UUID  `json:"agent_id"`
	TierCode     string     `json:"tier_code"`
	BaseAmount   string     `json:"base_amount"`
	TotalAmount  string     `json:"total_amount"`
	Currency     string     `json:"currency"`
	Status       string     `json:"status"`
	Stale        bool       `json:"stale,omitempty"` // set when the provider could not be reached
	Attempt      int        `json:"attempt"`
	ProviderRef  string     `json:"provider_ref,omitempty"`
	FailureCode  string     `json:"failure_code,omitempty"`
	FailureCause string     `json:"failure_cause,omitempty"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	SettledAt    *time.Time `json:"settled_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// StartSettlementRequest opens a settlement for a tier purchase
type StartSettlementRequest struct {
	TxRef    string `json:"tx_ref" binding:"required,max=100"`
	AgentID  string `json:"agent_id" binding:"required,uuid"`
	TierCode string `json:"tier_code" binding:"required,max=50"`
}

// ConfirmSettlementRequest commits a settlement at the quoted total
type ConfirmSettlementRequest struct {
	Amount   string `json:"amount" binding:"required"`
	Currency string `json:"currency" binding:"omitempty,len=3"`
}

// CancelSettlementRequest aborts a settlement
type CancelSettlementRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

func toSettlementResponse(s *payment.Settlement) SettlementResponse {
	return SettlementResponse{
		ID:           s.ID,
		TxRef:        s.TxRef,
		BuyerID:      s.BuyerID,
		AgentID:      s.AgentID,
		TierCode:     s.TierCode,
		BaseAmount:   s.BaseAmount.String(),
		TotalAmount:  s.TotalAmount.String(),
		Currency:     s.Currency,
		Status:       string(s.Status),
		Attempt:      s.Attempt,
		ProviderRef:  s.ProviderRef,
		FailureCode:  s.FailureCode,
		FailureCause: s.FailureCause,
		SubmittedAt:  s.SubmittedAt,
		SettledAt:    s.SettledAt,
		CreatedAt:    s.CreatedAt,
	}
}

func toSettlementResponses(settlements []payment.Settlement) []SettlementResponse {
	out := make([]SettlementResponse, 0, len(settlements))
	for i := range settlements {
		out = append(out, toSettlementResponse(&settlements[i]))
	}
	return out
}
