// Package gate implements the pay-to-call policy engine: it challenges
// unpaid requests with 402 payment requirements, verifies supplied proofs
// against exactly those requirements, guards against replay, and settles
// verified payments after the protected action has run.
package gate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ordkit/ordinals-x402/pkg/logger"
	"github.com/ordkit/ordinals-x402/pkg/metrics"
	"github.com/ordkit/ordinals-x402/pkg/types"
)

// Facilitator is the external service owning signature verification and
// on-chain settlement.
type Facilitator interface {
	Verify(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.VerifyResponse, error)
	Settle(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.SettleResponse, error)
}

// SettlementJournal records settlement outcomes for reconciliation. The
// unsettled entries are the executed-but-unpaid actions an operator must
// chase out of band.
type SettlementJournal interface {
	RecordSettlement(ctx context.Context, rec SettlementRecord) error
}

// SettlementRecord is one settlement outcome.
type SettlementRecord struct {
	ID          string
	ProofKey    string
	Resource    string
	Payer       string
	Amount      string
	Network     string
	Transaction string
	Status      string // "settled" or "unsettled"
	CreatedAt   time.Time
}

const (
	SettlementStatusSettled   = "settled"
	SettlementStatusUnsettled = "unsettled"
)

// DecisionKind is the outcome class of an admit call.
type DecisionKind int

const (
	// DecisionChallenge: no proof supplied; respond 402 with requirements.
	DecisionChallenge DecisionKind = iota
	// DecisionAdmitted: proof verified and consumed; run the action once,
	// then settle.
	DecisionAdmitted
	// DecisionRejected: proof supplied but unusable; respond 402 with the
	// reason, never run the action.
	DecisionRejected
)

// Decision is the gate's answer for one request.
type Decision struct {
	Kind         DecisionKind
	Requirements types.PaymentRequirements
	Receipt      *ProofReceipt
	Reason       string
	Message      string
}

// ProofReceipt identifies an admitted payment through to settlement.
type ProofReceipt struct {
	Key          string
	Payer        string
	Payload      *types.PaymentPayload
	Requirements types.PaymentRequirements
}

// Headers is the minimal view of request headers the gate inspects.
type Headers interface {
	Get(key string) string
}

// Gate enforces the verify-then-act-then-settle ordering for protected
// calls.
type Gate struct {
	facilitator Facilitator
	store       ReplayStore
	journal     SettlementJournal
	log         logger.Logger
	rec         metrics.Recorder
	nowFunc     func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

func WithLogger(log logger.Logger) Option {
	return func(g *Gate) { g.log = log }
}

func WithMetrics(rec metrics.Recorder) Option {
	return func(g *Gate) { g.rec = rec }
}

func WithReplayStore(store ReplayStore) Option {
	return func(g *Gate) { g.store = store }
}

func WithJournal(journal SettlementJournal) Option {
	return func(g *Gate) { g.journal = journal }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.nowFunc = now }
}

// NewGate creates a gate backed by the given facilitator. Defaults: an
// in-memory replay store, noop logging and metrics.
func NewGate(facilitator Facilitator, opts ...Option) *Gate {
	g := &Gate{
		facilitator: facilitator,
		store:       NewInMemoryReplayStore(),
		log:         logger.NoopLogger{},
		rec:         metrics.NoopRecorder{},
		nowFunc:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit decides whether a request may execute the protected action behind
// the given requirements. Verification always precedes the action; the
// consumed-proof insert is atomic with the Admitted decision, so of two
// racing submissions of the same proof exactly one is admitted.
func (g *Gate) Admit(ctx context.Context, headers Headers, req types.PaymentRequirements) (Decision, error) {
	labels := map[string]string{"resource": req.Resource}

	payment := headers.Get(types.PaymentHeader)
	if payment == "" {
		// Expected first leg of the handshake, not a fault.
		g.log.Debug("issuing payment challenge", map[string]any{"resource": req.Resource, "amount": req.Amount})
		g.rec.IncCounter(metrics.EventChallenge, labels)
		return Decision{Kind: DecisionChallenge, Requirements: req, Reason: ReasonMissingProof}, nil
	}

	payloadBytes, err := base64.StdEncoding.DecodeString(payment)
	if err != nil {
		return g.reject(req, ReasonProofInvalid, "payment header is not valid base64", labels), nil
	}

	var payload types.PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return g.reject(req, ReasonProofInvalid, "payment header is not a valid payload", labels), nil
	}
	payload.X402Version = types.ProtocolVersion

	if payload.Payload == nil || payload.Payload.Authorization == nil {
		return g.reject(req, ReasonProofInvalid, "payment payload is missing its authorization", labels), nil
	}

	auth := payload.Payload.Authorization

	if payload.Scheme != req.Scheme || payload.Network != req.Network {
		return g.reject(req, ReasonProofInvalid, "scheme or network does not match the requirements", labels), nil
	}
	if auth.Value != req.Amount {
		return g.reject(req, ReasonProofInvalid, "authorized amount does not match the requirements", labels), nil
	}
	if !strings.EqualFold(auth.To, req.PayTo) {
		return g.reject(req, ReasonProofInvalid, "authorized recipient does not match the requirements", labels), nil
	}
	if payer := headers.Get(types.PaymentPayerHeader); payer != "" && !strings.EqualFold(payer, auth.From) {
		return g.reject(req, ReasonProofInvalid, "payer header does not match the authorization signer", labels), nil
	}

	now := g.nowFunc()
	validBefore, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if err != nil {
		return g.reject(req, ReasonProofInvalid, "authorization validBefore is not a unix timestamp", labels), nil
	}
	if validBefore <= now.Unix() {
		return g.reject(req, ReasonProofExpired, "payment authorization has expired", labels), nil
	}

	verifyStart := g.nowFunc()
	verifyResp, err := g.facilitator.Verify(ctx, &payload, &req)
	g.rec.ObserveLatency("verify", g.nowFunc().Sub(verifyStart), labels)
	if err != nil {
		// A timed-out or failed verification is Failed, not Unpaid: the
		// caller gets a 500, never a fresh challenge.
		g.log.Error("facilitator verify failed", map[string]any{"resource": req.Resource, "error": err.Error()})
		return Decision{}, err
	}
	if !verifyResp.IsValid {
		msg := "payment verification failed"
		if verifyResp.InvalidReason != nil {
			msg = *verifyResp.InvalidReason
		}
		return g.reject(req, ReasonProofInvalid, msg, labels), nil
	}

	payer := auth.From
	if verifyResp.Payer != nil && *verifyResp.Payer != "" {
		payer = *verifyResp.Payer
	}

	// Replay entries outlive the proof's validity window so a proof can
	// never be respent after its entry is swept.
	key := ProofKey(payloadBytes)
	retention := now.Add(2 * time.Duration(req.MaxTimeoutSeconds) * time.Second)
	inserted, err := g.store.Consume(ctx, key, payer, retention)
	if err != nil {
		g.log.Error("replay store failure", map[string]any{"resource": req.Resource, "error": err.Error()})
		return Decision{}, err
	}
	if !inserted {
		g.rec.IncCounter(metrics.EventReplay, labels)
		return g.reject(req, ReasonProofReplayed, "payment proof has already been used", labels), nil
	}

	g.rec.IncCounter(metrics.EventAdmitted, labels)
	g.log.Info("payment admitted", map[string]any{"resource": req.Resource, "payer": payer, "amount": req.Amount})

	return Decision{
		Kind: DecisionAdmitted,
		Receipt: &ProofReceipt{
			Key:          key,
			Payer:        payer,
			Payload:      &payload,
			Requirements: req,
		},
	}, nil
}

// Settle charges an admitted payment. It must be called only after the
// protected action completed successfully. Failures come back as a
// *SettlementError and are journaled as unsettled for reconciliation; the
// action's effect is neither retried nor rolled back here.
func (g *Gate) Settle(ctx context.Context, receipt *ProofReceipt) (*types.SettleResponse, error) {
	labels := map[string]string{"resource": receipt.Requirements.Resource}

	settleStart := g.nowFunc()
	resp, err := g.facilitator.Settle(ctx, receipt.Payload, &receipt.Requirements)
	g.rec.ObserveLatency("settle", g.nowFunc().Sub(settleStart), labels)

	if err != nil {
		g.recordSettlement(ctx, receipt, "", SettlementStatusUnsettled)
		g.rec.IncCounter(metrics.EventSettlementFailed, labels)
		g.log.Error("settlement failed after action execution", map[string]any{
			"resource": receipt.Requirements.Resource,
			"payer":    receipt.Payer,
			"amount":   receipt.Requirements.Amount,
			"error":    err.Error(),
		})
		return nil, &SettlementError{Reason: "facilitator settle call failed", Err: err}
	}
	if !resp.Success {
		reason := "settlement declined"
		if resp.ErrorReason != nil {
			reason = *resp.ErrorReason
		}
		g.recordSettlement(ctx, receipt, "", SettlementStatusUnsettled)
		g.rec.IncCounter(metrics.EventSettlementFailed, labels)
		g.log.Error("settlement declined after action execution", map[string]any{
			"resource": receipt.Requirements.Resource,
			"payer":    receipt.Payer,
			"amount":   receipt.Requirements.Amount,
			"reason":   reason,
		})
		return nil, &SettlementError{Reason: reason}
	}

	g.recordSettlement(ctx, receipt, resp.Transaction, SettlementStatusSettled)
	g.rec.IncCounter(metrics.EventSettled, labels)
	return resp, nil
}

func (g *Gate) reject(req types.PaymentRequirements, reason, message string, labels map[string]string) Decision {
	g.rec.IncCounter(metrics.EventRejected, labels)
	g.log.Warn("payment rejected", map[string]any{"resource": req.Resource, "reason": reason, "detail": message})
	return Decision{Kind: DecisionRejected, Requirements: req, Reason: reason, Message: message}
}

func (g *Gate) recordSettlement(ctx context.Context, receipt *ProofReceipt, transaction, status string) {
	if g.journal == nil {
		return
	}

	rec := SettlementRecord{
		ProofKey:    receipt.Key,
		Resource:    receipt.Requirements.Resource,
		Payer:       receipt.Payer,
		Amount:      receipt.Requirements.Amount,
		Network:     receipt.Requirements.Network,
		Transaction: transaction,
		Status:      status,
		CreatedAt:   g.nowFunc(),
	}
	if err := g.journal.RecordSettlement(ctx, rec); err != nil {
		g.log.Error("failed to journal settlement record", map[string]any{
			"resource": rec.Resource,
			"status":   status,
			"error":    err.Error(),
		})
	}
}
