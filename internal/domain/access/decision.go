package access

import (
	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Decision is the outcome of an access check for one invocation.
// When Allowed is false, DenyCode carries the domain error code that
// explains the refusal and NeedsUpgrade tells the caller whether a
// paid tier would lift it.
type Decision struct {
	Allowed      bool      `json:"allowed"`
	BuyerID      uuid.UUID `json:"buyer_id"`
	AgentID      uuid.UUID `json:"agent_id"`
	TierCode     string    `json:"tier_code"`
	IsPaid       bool      `json:"is_paid"` // governed by a paid entitlement rather than the free tier
	Unlimited    bool      `json:"unlimited"`
	Limit        int64     `json:"limit"`     // daily allowance under the resolved tier; 0 when unlimited
	Remaining    int64     `json:"remaining"` // units left after this invocation; 0 when unlimited
	Day          string    `json:"day"`
	DenyCode     string    `json:"deny_code,omitempty"`
	NeedsUpgrade bool      `json:"needs_upgrade,omitempty"`
}

// Allow builds a permitting decision
func Allow(buyerID, agentID uuid.UUID, tierCode, day string, limit, remaining int64, unlimited, isPaid bool) Decision {
	return Decision{
		Allowed:   true,
		BuyerID:   buyerID,
		AgentID:   agentID,
		TierCode:  tierCode,
		IsPaid:    isPaid,
		Unlimited: unlimited,
		Limit:     limit,
		Remaining: remaining,
		Day:       day,
	}
}

// Deny builds a refusing decision. Denials never consume usage. An
// exhausted quota is the one refusal a purchase can lift, so only that
// deny code sets NeedsUpgrade.
func Deny(buyerID, agentID uuid.UUID, tierCode, day, denyCode string, limit int64, isPaid bool) Decision {
	return Decision{
		Allowed:      false,
		BuyerID:      buyerID,
		AgentID:      agentID,
		TierCode:     tierCode,
		IsPaid:       isPaid,
		Limit:        limit,
		Day:          day,
		DenyCode:     denyCode,
		NeedsUpgrade: denyCode == shared.ErrQuotaExceeded.Code,
	}
}

// DeniedError wraps a refusing decision so transport layers can render
// the full decision alongside the error code.
type DeniedError struct {
	Decision Decision
}

func (e *DeniedError) Error() string {
	return DenyMessage(e.Decision.DenyCode)
}

// Code returns the domain error code carried by the decision
func (e *DeniedError) Code() string {
	return e.Decision.DenyCode
}

// DenyMessage maps a deny code to a human readable message
func DenyMessage(code string) string {
	switch code {
	case "QUOTA_EXCEEDED":
		return "Daily usage quota exceeded"
	case "ZERO_LIMIT_TIER":
		return "The purchased tier grants no daily units, contact the agent owner"
	case "AGENT_DISABLED":
		return "The agent is currently disabled"
	default:
		return "Invocation denied"
	}
}
