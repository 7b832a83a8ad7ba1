package gate

import (
	"errors"
	"fmt"
)

// Reason codes carried on 402 rejections. MissingProof is the expected
// first leg of the handshake, not a fault; the rest are terminal for the
// call that triggered them.
const (
	ReasonMissingProof     = "MissingProof"
	ReasonProofInvalid     = "ProofInvalid"
	ReasonProofExpired     = "ProofExpired"
	ReasonProofReplayed    = "ProofReplayed"
	ReasonSettlementFailed = "SettlementFailed"
	ReasonActionFailed     = "ActionFailed"
)

// ErrInvalidPrice is returned by BuildRequirements for non-positive prices.
var ErrInvalidPrice = errors.New("InvalidPrice: price must be a positive integer amount of minor units")

// PaymentError is a payment-specific error with a stable code.
type PaymentError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewPaymentError creates a new payment error.
func NewPaymentError(code, message string, details map[string]any) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// SettlementError marks a settlement failure after the protected action has
// already run. It must never be conflated with an action fault: the action's
// effect stands, unpaid, until reconciled out of band.
type SettlementError struct {
	Reason string
	Err    error
}

func (e *SettlementError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ReasonSettlementFailed, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ReasonSettlementFailed, e.Reason)
}

func (e *SettlementError) Unwrap() error { return e.Err }
