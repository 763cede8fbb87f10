package ledger

// Charge statuses returned by the ledger
const (
	chargeStatusAccepted = "ACCEPTED"
	chargeStatusPending  = "PENDING"
	chargeStatusSettled  = "SETTLED"
	chargeStatusRejected = "REJECTED"
)

// chargeRequest is the charge submission payload
type chargeRequest struct {
	TxRef    string `json:"tx_ref"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// chargeResponse is the ledger's view of a charge
type chargeResponse struct {
	ProviderRef string `json:"provider_ref"`
	TxRef       string `json:"tx_ref"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

// errorResponse is the ledger's error envelope
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
