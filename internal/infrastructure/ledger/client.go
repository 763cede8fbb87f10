// Package ledger provides the HTTP client for the external payment ledger.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentmarket/backend/internal/domain/payment"
	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/agentmarket/backend/internal/domain/shared/valueobject"
)

// Config holds the ledger client configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("ledger: base URL is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return nil
}

// HTTPProvider submits charges to the payment ledger over HTTP.
// It implements payment.LedgerProvider.
type HTTPProvider struct {
	config     *Config
	httpClient *http.Client
}

var _ payment.LedgerProvider = (*HTTPProvider)(nil)

// NewHTTPProvider creates a ledger provider client
func NewHTTPProvider(config *Config) (*HTTPProvider, error) {
	if config == nil {
		return nil, errors.New("ledger: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &HTTPProvider{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// SubmitCharge submits a charge to the ledger. A rejection by the
// ledger maps to shared.ErrProviderRejected; a timeout or transport
// failure maps to shared.ErrProviderTimeout because the outcome is
// unknown and the charge may still settle.
func (p *HTTPProvider) SubmitCharge(ctx context.Context, txRef string, amount valueobject.Money) (*payment.ProviderOutcome, error) {
	reqBody := chargeRequest{
		TxRef:    txRef,
		Amount:   amount.Amount().String(),
		Currency: string(amount.Currency()),
	}

	var resp chargeResponse
	if err := p.doRequest(ctx, http.MethodPost, "/v1/charges", reqBody, &resp); err != nil {
		return nil, err
	}

	return p.toOutcome(&resp)
}

// ChargeStatus polls the ledger for the outcome of a submitted charge
func (p *HTTPProvider) ChargeStatus(ctx context.Context, txRef string) (*payment.ProviderOutcome, error) {
	var resp chargeResponse
	if err := p.doRequest(ctx, http.MethodGet, "/v1/charges/"+txRef, nil, &resp); err != nil {
		return nil, err
	}

	return p.toOutcome(&resp)
}

func (p *HTTPProvider) toOutcome(resp *chargeResponse) (*payment.ProviderOutcome, error) {
	switch resp.Status {
	case chargeStatusSettled:
		return &payment.ProviderOutcome{ProviderRef: resp.ProviderRef, Settled: true}, nil
	case chargeStatusAccepted, chargeStatusPending:
		return &payment.ProviderOutcome{ProviderRef: resp.ProviderRef, Settled: false}, nil
	case chargeStatusRejected:
		return nil, fmt.Errorf("%w: %s", shared.ErrProviderRejected, resp.Reason)
	default:
		return nil, fmt.Errorf("ledger: unknown charge status %q", resp.Status)
	}
}

func (p *HTTPProvider) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ledger: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("ledger: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// The request may have reached the ledger before the failure,
		// so the outcome is unknown.
		return fmt.Errorf("%w: %v", shared.ErrProviderTimeout, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", shared.ErrProviderTimeout, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("ledger: failed to decode response: %w", err)
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
			return fmt.Errorf("%w: %s", shared.ErrProviderRejected, errResp.Message)
		}
		return fmt.Errorf("%w: HTTP %d", shared.ErrProviderRejected, resp.StatusCode)
	default:
		return fmt.Errorf("%w: HTTP %d", shared.ErrProviderTimeout, resp.StatusCode)
	}
}
