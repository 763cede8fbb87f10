package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// CommonSortFields contains fields common to most entities
var CommonSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// AgentSortFields contains allowed sort fields for agents
var AgentSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"name":       true,
	"category":   true,
	"status":     true,
}

// TierSortFields contains allowed sort fields for tiers
var TierSortFields = map[string]bool{
	"id":            true,
	"created_at":    true,
	"updated_at":    true,
	"code":          true,
	"revision":      true,
	"price":         true,
	"units_per_day": true,
	"active":        true,
}

// SettlementSortFields contains allowed sort fields for settlements
var SettlementSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"tx_ref":       true,
	"status":       true,
	"total_amount": true,
	"submitted_at": true,
	"settled_at":   true,
}
