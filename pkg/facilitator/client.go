// Package facilitator implements the HTTP client for the external payment
// facilitator service, which owns signature verification and on-chain
// settlement. The gate treats it as the source of truth for both.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ordkit/ordinals-x402/pkg/types"
)

// DefaultURL is the public x402 facilitator endpoint.
const DefaultURL = "https://x402.org/facilitator"

const (
	headerContentType   = "Content-Type"
	mimeApplicationJSON = "application/json"
)

// Config configures a facilitator client.
type Config struct {
	URL     string
	Timeout time.Duration

	// CreateAuthHeaders, when set, supplies per-operation auth headers
	// keyed by operation name ("verify", "settle", "supported").
	CreateAuthHeaders func() (map[string]map[string]string, error)
}

// Client talks to a payment facilitator over HTTPS.
type Client struct {
	url               string
	httpClient        *http.Client
	createAuthHeaders func() (map[string]map[string]string, error)
}

// NewClient creates a facilitator client. A nil config uses the public
// facilitator with default timeouts.
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{URL: DefaultURL}
	}

	httpCli := &http.Client{Timeout: 30 * time.Second}
	if config.Timeout > 0 {
		httpCli.Timeout = config.Timeout
	}

	url := config.URL
	if url == "" {
		url = DefaultURL
	}

	return &Client{
		url:               url,
		httpClient:        httpCli,
		createAuthHeaders: config.CreateAuthHeaders,
	}
}

// Verify asks the facilitator whether a payment proof validly signs the
// given requirements. A transport or non-200 failure is an error, distinct
// from a well-formed "invalid" answer.
func (c *Client) Verify(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.VerifyResponse, error) {
	reqBody := types.VerifyRequest{
		X402Version:         types.ProtocolVersion,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	}

	var verifyResp types.VerifyResponse
	if err := c.post(ctx, "verify", reqBody, &verifyResp); err != nil {
		return nil, err
	}
	return &verifyResp, nil
}

// Settle submits a verified payment for on-chain settlement.
func (c *Client) Settle(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.SettleResponse, error) {
	reqBody := types.SettleRequest{
		X402Version:         types.ProtocolVersion,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	}

	var settleResp types.SettleResponse
	if err := c.post(ctx, "settle", reqBody, &settleResp); err != nil {
		return nil, err
	}
	return &settleResp, nil
}

// Supported retrieves the scheme/network pairs the facilitator can process.
func (c *Client) Supported(ctx context.Context) (*types.SupportedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/supported", c.url), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supported request: %w", err)
	}
	req.Header.Set(headerContentType, mimeApplicationJSON)

	if err := c.addAuthHeader(req, "supported"); err != nil {
		return nil, fmt.Errorf("failed to apply supported auth headers: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send supported request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get supported payment kinds: %s", resp.Status)
	}

	var supportedResp types.SupportedResponse
	if err := json.NewDecoder(resp.Body).Decode(&supportedResp); err != nil {
		return nil, fmt.Errorf("failed to decode supported response: %w", err)
	}
	return &supportedResp, nil
}

func (c *Client) post(ctx context.Context, operation string, body any, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/%s", c.url, operation), bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	req.Header.Set(headerContentType, mimeApplicationJSON)

	if err := c.addAuthHeader(req, operation); err != nil {
		return fmt.Errorf("failed to apply %s auth headers: %w", operation, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to %s payment: %s", operation, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) addAuthHeader(req *http.Request, key string) error {
	if c.createAuthHeaders == nil {
		return nil
	}

	headers, err := c.createAuthHeaders()
	if err != nil {
		return fmt.Errorf("create auth headers: %w", err)
	}

	actionHeaders, ok := headers[key]
	if !ok {
		return nil
	}

	for headerKey, value := range actionHeaders {
		req.Header.Set(headerKey, value)
	}
	return nil
}
