// Package bridge is the payer-side process: an MCP stdio server whose
// tools relay into the priced HTTP API through a client that runs the
// 402 challenge/retry handshake.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ordkit/ordinals-x402/pkg/logger"
	"github.com/ordkit/ordinals-x402/pkg/signer"
	"github.com/ordkit/ordinals-x402/pkg/types"
)

// callState tracks one call through the payment handshake. The explicit
// states make the single-retry limit a checkable invariant rather than
// branch logic.
type callState int

const (
	stateUnattempted callState = iota
	stateChallenged
	stateRetried
	stateDone
)

// CallError is a structured failure from the priced API.
type CallError struct {
	StatusCode int
	Reason     string
	Body       string
}

func (e *CallError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("call failed with status %d: %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("call failed with status %d", e.StatusCode)
}

// PayingClient issues HTTP calls to the priced API, paying challenges with
// its signing credential. Calls are serialized: one in-flight call per
// credential, so concurrent tool invocations cannot race on signatures.
type PayingClient struct {
	baseURL    string
	credential *signer.Credential
	httpClient *http.Client
	log        logger.Logger
	nowFunc    func() time.Time

	mu sync.Mutex
}

// NewPayingClient creates a client for the API at baseURL paying with the
// given credential.
func NewPayingClient(baseURL string, credential *signer.Credential, log logger.Logger) *PayingClient {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &PayingClient{
		baseURL:    baseURL,
		credential: credential,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log,
		nowFunc:    time.Now,
	}
}

// Call performs one API call, transparently handling the payment
// handshake: an initial 402 is answered by signing the returned
// requirements and retrying once. A 402 on the retry leg is terminal for
// this call.
func (c *PayingClient) Call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	callID := uuid.NewString()
	state := stateUnattempted
	var payment *types.PaymentPayload
	var result json.RawMessage

	for state != stateDone {
		resp, respBody, err := c.do(ctx, method, path, bodyBytes, callID, payment)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusPaymentRequired {
			var challenge types.PaymentRequired
			if err := json.Unmarshal(respBody, &challenge); err != nil {
				return nil, fmt.Errorf("unparseable 402 challenge: %w", err)
			}

			if state == stateRetried {
				// A 402 on the paid leg: the proof was rejected. Terminal.
				return nil, &CallError{
					StatusCode: resp.StatusCode,
					Reason:     challenge.Error,
					Body:       string(respBody),
				}
			}
			if len(challenge.Accepts) == 0 {
				return nil, &CallError{StatusCode: resp.StatusCode, Reason: "challenge carries no payment requirements"}
			}

			state = stateChallenged
			requirements := challenge.Accepts[0]
			payment, err = c.credential.SignRequirements(ctx, requirements, c.nowFunc())
			if err != nil {
				return nil, fmt.Errorf("failed to sign payment requirements: %w", err)
			}

			c.log.Debug("paying challenge", map[string]any{
				"call_id":  callID,
				"resource": requirements.Resource,
				"amount":   requirements.Amount,
			})
			state = stateRetried
			continue
		}

		if resp.StatusCode >= http.StatusBadRequest {
			return nil, &CallError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		if receipt := resp.Header.Get(types.PaymentResponseHeader); receipt != "" {
			if settle, err := types.DecodeSettleResponseFromBase64(receipt); err == nil {
				c.log.Debug("payment settled", map[string]any{"call_id": callID, "transaction": settle.Transaction})
			}
		}
		state = stateDone
		result = respBody
	}
	return result, nil
}

func (c *PayingClient) do(ctx context.Context, method, path string, body []byte, callID string, payment *types.PaymentPayload) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", callID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if payment != nil {
		encoded, err := payment.EncodeToBase64String()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode payment payload: %w", err)
		}
		req.Header.Set(types.PaymentHeader, encoded)
		req.Header.Set(types.PaymentPayerHeader, c.credential.Address())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}
	return resp, respBody, nil
}
