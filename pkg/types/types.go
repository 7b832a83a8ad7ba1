// Package types defines the x402 wire types exchanged between the paying
// client, the resource server and the payment facilitator, plus the base64
// header codecs used to carry them over HTTP.
package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the x402 protocol version this service speaks.
const ProtocolVersion = 1

// Header names for the payment proof pair and the settlement receipt.
const (
	PaymentHeader         = "X-Payment"
	PaymentPayerHeader    = "X-Payment-Payer"
	PaymentResponseHeader = "X-Payment-Response"
)

// PaymentRequirements describes what payment is acceptable for a resource.
// A value is built fresh per request and must be reproducible: the same
// (price, resource) input yields byte-equal requirements, so the proof a
// client signs on the retry leg verifies against exactly what was issued.
type PaymentRequirements struct {
	Scheme            string        `json:"scheme"`
	Network           string        `json:"network"`
	Asset             string        `json:"asset"`
	Amount            string        `json:"amount"`
	PayTo             string        `json:"payTo"`
	Resource          string        `json:"resource"`
	Description       string        `json:"description,omitempty"`
	MimeType          string        `json:"mimeType,omitempty"`
	MaxTimeoutSeconds int           `json:"maxTimeoutSeconds,omitempty"`
	Extra             *PaymentExtra `json:"extra,omitempty"`
}

// PaymentExtra carries the EIP-712 domain information a client needs to
// produce a transferWithAuthorization signature for the priced asset.
type PaymentExtra struct {
	Name          string `json:"name,omitempty"`
	Version       string `json:"version,omitempty"`
	SignatureType string `json:"signatureType,omitempty"`
}

// PaymentPayload is the decoded payment proof supplied by a client.
type PaymentPayload struct {
	X402Version int              `json:"x402Version"`
	Scheme      string           `json:"scheme"`
	Network     string           `json:"network"`
	Payload     *ExactEvmPayload `json:"payload"`
}

// ExactEvmPayload is the proof body for the "exact" EVM scheme: an EIP-3009
// authorization and the signature over it.
type ExactEvmPayload struct {
	Signature     string                        `json:"signature"`
	Authorization *ExactEvmPayloadAuthorization `json:"authorization"`
}

// ExactEvmPayloadAuthorization mirrors the EIP-3009
// TransferWithAuthorization message (used by USDC).
type ExactEvmPayloadAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// PaymentRequired is the JSON body of a 402 challenge.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// VerifyResponse is the facilitator's answer to a verify call.
type VerifyResponse struct {
	IsValid       bool    `json:"isValid"`
	InvalidReason *string `json:"invalidReason,omitempty"`
	Payer         *string `json:"payer,omitempty"`
}

// SettleResponse is the facilitator's answer to a settle call.
type SettleResponse struct {
	Success     bool    `json:"success"`
	ErrorReason *string `json:"errorReason,omitempty"`
	Transaction string  `json:"transaction"`
	Network     string  `json:"network"`
	Payer       *string `json:"payer,omitempty"`
}

// EncodeToBase64String serializes the settle response for the
// X-Payment-Response header.
func (s *SettleResponse) EncodeToBase64String() (string, error) {
	jsonBytes, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode settle response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}

// DecodeSettleResponseFromBase64 decodes an X-Payment-Response header value.
func DecodeSettleResponseFromBase64(encoded string) (*SettleResponse, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 string: %w", err)
	}

	var resp SettleResponse
	if err := json.Unmarshal(decoded, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settle response: %w", err)
	}
	return &resp, nil
}

// EncodeToBase64String serializes the payload for the X-Payment header.
func (p *PaymentPayload) EncodeToBase64String() (string, error) {
	jsonBytes, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}

// DecodePaymentPayloadFromBase64 decodes an X-Payment header value.
func DecodePaymentPayloadFromBase64(encoded string) (*PaymentPayload, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 string: %w", err)
	}

	var payload PaymentPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment payload: %w", err)
	}
	payload.X402Version = ProtocolVersion

	return &payload, nil
}

// SetUSDCInfo fills Extra with the EIP-712 domain of the USDC deployment
// this service prices in. Mainnet contracts register as "USD Coin",
// testnets as "USDC".
func (p *PaymentRequirements) SetUSDCInfo(testnet bool) {
	name := "USD Coin"
	if testnet {
		name = "USDC"
	}
	p.Extra = &PaymentExtra{
		Name:          name,
		Version:       "2",
		SignatureType: "authorization",
	}
}

// VerifyRequest is the body posted to the facilitator's /verify endpoint.
type VerifyRequest struct {
	X402Version         int                  `json:"x402Version"`
	PaymentPayload      *PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements *PaymentRequirements `json:"paymentRequirements"`
}

// SettleRequest is the body posted to the facilitator's /settle endpoint.
type SettleRequest struct {
	X402Version         int                  `json:"x402Version"`
	PaymentPayload      *PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements *PaymentRequirements `json:"paymentRequirements"`
}

// SupportedKind is one scheme/network pair a facilitator can process.
type SupportedKind struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportedResponse is the facilitator's /supported answer.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}
