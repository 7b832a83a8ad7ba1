package gate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordkit/ordinals-x402/pkg/types"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

const (
	testPayTo = "0x1111111111111111111111111111111111111111"
	testPayer = "0x2222222222222222222222222222222222222222"
)

type mockFacilitator struct {
	mu          sync.Mutex
	verifyCalls int32
	settleCalls int32
	verifyResp  *types.VerifyResponse
	verifyErr   error
	settleResp  *types.SettleResponse
	settleErr   error
	lastSettled *types.PaymentPayload
}

func (m *mockFacilitator) Verify(_ context.Context, _ *types.PaymentPayload, _ *types.PaymentRequirements) (*types.VerifyResponse, error) {
	atomic.AddInt32(&m.verifyCalls, 1)
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	if m.verifyResp != nil {
		return m.verifyResp, nil
	}
	return &types.VerifyResponse{IsValid: true}, nil
}

func (m *mockFacilitator) Settle(_ context.Context, payload *types.PaymentPayload, _ *types.PaymentRequirements) (*types.SettleResponse, error) {
	atomic.AddInt32(&m.settleCalls, 1)
	m.mu.Lock()
	m.lastSettled = payload
	m.mu.Unlock()
	if m.settleErr != nil {
		return nil, m.settleErr
	}
	if m.settleResp != nil {
		return m.settleResp, nil
	}
	return &types.SettleResponse{Success: true, Transaction: "0xabc", Network: "base-sepolia"}, nil
}

type recordingJournal struct {
	mu      sync.Mutex
	records []SettlementRecord
}

func (j *recordingJournal) RecordSettlement(_ context.Context, rec SettlementRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return nil
}

func testRequirements(t *testing.T) types.PaymentRequirements {
	t.Helper()
	req, err := BuildRequirements(1000000, "/api/v1/inscriptions", "create an inscription", PricingConfig{
		Network: "base-sepolia",
		PayTo:   testPayTo,
	})
	require.NoError(t, err)
	return req
}

func signedHeader(t *testing.T, mutate func(*types.PaymentPayload)) http.Header {
	t.Helper()
	payload := &types.PaymentPayload{
		X402Version: types.ProtocolVersion,
		Scheme:      "exact",
		Network:     "base-sepolia",
		Payload: &types.ExactEvmPayload{
			Signature: "0xdeadbeef",
			Authorization: &types.ExactEvmPayloadAuthorization{
				From:        testPayer,
				To:          testPayTo,
				Value:       "1000000",
				ValidAfter:  "0",
				ValidBefore: strconv.FormatInt(testNow.Add(5*time.Minute).Unix(), 10),
				Nonce:       "0x0101010101010101010101010101010101010101010101010101010101010101",
			},
		},
	}
	if mutate != nil {
		mutate(payload)
	}
	encoded, err := payload.EncodeToBase64String()
	require.NoError(t, err)
	h := http.Header{}
	h.Set(types.PaymentHeader, encoded)
	return h
}

func newTestGate(fac *mockFacilitator, opts ...Option) *Gate {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewGate(fac, opts...)
}

func TestBuildRequirementsRejectsNonPositivePrice(t *testing.T) {
	cfg := PricingConfig{Network: "base-sepolia", PayTo: testPayTo}

	for _, price := range []int64{0, -1, -1000000} {
		_, err := BuildRequirements(price, "/r", "", cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidPrice)
	}
}

func TestBuildRequirementsOneDollar(t *testing.T) {
	req := testRequirements(t)

	assert.Equal(t, "1000000", req.Amount)
	assert.Equal(t, "exact", req.Scheme)
	assert.Equal(t, "base-sepolia", req.Network)
	assert.Equal(t, "0x036CbD53842c5426634e7929541eC2318f3dCF7e", req.Asset)
	assert.Equal(t, testPayTo, req.PayTo)
	assert.Equal(t, DefaultTimeoutSeconds, req.MaxTimeoutSeconds)
	require.NotNil(t, req.Extra)
	assert.Equal(t, "USDC", req.Extra.Name)

	// Deterministic: the retry leg must verify against exactly what was
	// issued on the challenge leg.
	again, err := BuildRequirements(1000000, "/api/v1/inscriptions", "create an inscription", PricingConfig{
		Network: "base-sepolia",
		PayTo:   testPayTo,
	})
	require.NoError(t, err)
	assert.Equal(t, req, again)
}

func TestAdmitChallengesWithoutProof(t *testing.T) {
	fac := &mockFacilitator{}
	g := newTestGate(fac)
	store := NewInMemoryReplayStore()
	g.store = store

	decision, err := g.Admit(context.Background(), http.Header{}, testRequirements(t))
	require.NoError(t, err)

	assert.Equal(t, DecisionChallenge, decision.Kind)
	assert.Equal(t, ReasonMissingProof, decision.Reason)
	assert.Equal(t, "1000000", decision.Requirements.Amount)

	// A challenge has no side effects whatsoever.
	assert.Zero(t, atomic.LoadInt32(&fac.verifyCalls))
	assert.Zero(t, atomic.LoadInt32(&fac.settleCalls))
	assert.Zero(t, store.Len())
}

func TestAdmitRejectsMalformedProof(t *testing.T) {
	fac := &mockFacilitator{}
	g := newTestGate(fac)

	for name, value := range map[string]string{
		"not base64": "!!!not-base64!!!",
		"not json":   base64.StdEncoding.EncodeToString([]byte("not json")),
		"no payload": base64.StdEncoding.EncodeToString([]byte(`{"x402Version":1,"scheme":"exact","network":"base-sepolia"}`)),
	} {
		h := http.Header{}
		h.Set(types.PaymentHeader, value)

		decision, err := g.Admit(context.Background(), h, testRequirements(t))
		require.NoError(t, err, name)
		assert.Equal(t, DecisionRejected, decision.Kind, name)
		assert.Equal(t, ReasonProofInvalid, decision.Reason, name)
	}

	// Structural rejections never reach the facilitator.
	assert.Zero(t, atomic.LoadInt32(&fac.verifyCalls))
}

func TestAdmitRejectsMismatchedProof(t *testing.T) {
	fac := &mockFacilitator{}
	g := newTestGate(fac)
	req := testRequirements(t)

	cases := map[string]func(*types.PaymentPayload){
		"wrong amount":    func(p *types.PaymentPayload) { p.Payload.Authorization.Value = "999999" },
		"wrong recipient": func(p *types.PaymentPayload) { p.Payload.Authorization.To = testPayer },
		"wrong network":   func(p *types.PaymentPayload) { p.Network = "base" },
		"wrong scheme":    func(p *types.PaymentPayload) { p.Scheme = "upto" },
	}
	for name, mutate := range cases {
		decision, err := g.Admit(context.Background(), signedHeader(t, mutate), req)
		require.NoError(t, err, name)
		assert.Equal(t, DecisionRejected, decision.Kind, name)
		assert.Equal(t, ReasonProofInvalid, decision.Reason, name)
	}
	assert.Zero(t, atomic.LoadInt32(&fac.verifyCalls))
}

func TestAdmitRejectsExpiredProof(t *testing.T) {
	fac := &mockFacilitator{}
	g := newTestGate(fac)

	h := signedHeader(t, func(p *types.PaymentPayload) {
		p.Payload.Authorization.ValidBefore = strconv.FormatInt(testNow.Add(-time.Second).Unix(), 10)
	})
	decision, err := g.Admit(context.Background(), h, testRequirements(t))
	require.NoError(t, err)

	assert.Equal(t, DecisionRejected, decision.Kind)
	assert.Equal(t, ReasonProofExpired, decision.Reason)
	assert.Zero(t, atomic.LoadInt32(&fac.verifyCalls))
}

func TestAdmitRejectsMismatchedPayerHeader(t *testing.T) {
	g := newTestGate(&mockFacilitator{})

	h := signedHeader(t, nil)
	h.Set(types.PaymentPayerHeader, "0x3333333333333333333333333333333333333333")

	decision, err := g.Admit(context.Background(), h, testRequirements(t))
	require.NoError(t, err)
	assert.Equal(t, DecisionRejected, decision.Kind)
	assert.Equal(t, ReasonProofInvalid, decision.Reason)
}

func TestAdmitRejectsFacilitatorInvalid(t *testing.T) {
	reason := "invalid_signature"
	fac := &mockFacilitator{verifyResp: &types.VerifyResponse{IsValid: false, InvalidReason: &reason}}
	g := newTestGate(fac)
	store := NewInMemoryReplayStore()
	g.store = store

	decision, err := g.Admit(context.Background(), signedHeader(t, nil), testRequirements(t))
	require.NoError(t, err)

	assert.Equal(t, DecisionRejected, decision.Kind)
	assert.Equal(t, ReasonProofInvalid, decision.Reason)
	assert.Equal(t, reason, decision.Message)
	// An unverified proof is never consumed; the client may fix and retry.
	assert.Zero(t, store.Len())
}

func TestAdmitSurfacesFacilitatorOutage(t *testing.T) {
	fac := &mockFacilitator{verifyErr: errors.New("connection refused")}
	g := newTestGate(fac)

	_, err := g.Admit(context.Background(), signedHeader(t, nil), testRequirements(t))
	require.Error(t, err)
}

func TestAdmitHappyPathThenReplay(t *testing.T) {
	fac := &mockFacilitator{}
	g := newTestGate(fac)
	h := signedHeader(t, nil)
	req := testRequirements(t)

	decision, err := g.Admit(context.Background(), h, req)
	require.NoError(t, err)
	require.Equal(t, DecisionAdmitted, decision.Kind)
	require.NotNil(t, decision.Receipt)
	assert.Equal(t, testPayer, decision.Receipt.Payer)
	assert.NotEmpty(t, decision.Receipt.Key)

	// Byte-identical resubmission is a replay even though it still
	// verifies.
	replayed, err := g.Admit(context.Background(), h, req)
	require.NoError(t, err)
	assert.Equal(t, DecisionRejected, replayed.Kind)
	assert.Equal(t, ReasonProofReplayed, replayed.Reason)
}

func TestAdmitConcurrentReplayHasOneWinner(t *testing.T) {
	fac := &mockFacilitator{}
	g := newTestGate(fac)
	h := signedHeader(t, nil)
	req := testRequirements(t)

	const racers = 16
	var admitted, replayed int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			decision, err := g.Admit(context.Background(), h, req)
			require.NoError(t, err)
			switch decision.Kind {
			case DecisionAdmitted:
				atomic.AddInt32(&admitted, 1)
			case DecisionRejected:
				require.Equal(t, ReasonProofReplayed, decision.Reason)
				atomic.AddInt32(&replayed, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), admitted)
	assert.Equal(t, int32(racers-1), replayed)
}

func TestSettleSuccessJournals(t *testing.T) {
	fac := &mockFacilitator{}
	journal := &recordingJournal{}
	g := newTestGate(fac, WithJournal(journal))

	decision, err := g.Admit(context.Background(), signedHeader(t, nil), testRequirements(t))
	require.NoError(t, err)
	require.Equal(t, DecisionAdmitted, decision.Kind)

	resp, err := g.Settle(context.Background(), decision.Receipt)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "0xabc", resp.Transaction)

	require.Len(t, journal.records, 1)
	rec := journal.records[0]
	assert.Equal(t, SettlementStatusSettled, rec.Status)
	assert.Equal(t, "0xabc", rec.Transaction)
	assert.Equal(t, "1000000", rec.Amount)
	assert.Equal(t, testPayer, rec.Payer)
}

func TestSettleFailureJournalsUnsettled(t *testing.T) {
	declined := "insufficient_funds"
	fac := &mockFacilitator{settleResp: &types.SettleResponse{Success: false, ErrorReason: &declined}}
	journal := &recordingJournal{}
	g := newTestGate(fac, WithJournal(journal))

	decision, err := g.Admit(context.Background(), signedHeader(t, nil), testRequirements(t))
	require.NoError(t, err)

	_, err = g.Settle(context.Background(), decision.Receipt)
	require.Error(t, err)

	var settleErr *SettlementError
	require.ErrorAs(t, err, &settleErr)
	assert.Equal(t, declined, settleErr.Reason)

	require.Len(t, journal.records, 1)
	assert.Equal(t, SettlementStatusUnsettled, journal.records[0].Status)
	assert.Empty(t, journal.records[0].Transaction)
}

func TestReplayStoreExpiry(t *testing.T) {
	store := NewInMemoryReplayStore()
	clock := testNow
	store.nowFunc = func() time.Time { return clock }

	key := ProofKey([]byte("payload"))
	inserted, err := store.Consume(context.Background(), key, testPayer, testNow.Add(10*time.Minute))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.Consume(context.Background(), key, testPayer, testNow.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, inserted)

	// Past retention the entry is swept and the key is free again.
	clock = testNow.Add(11 * time.Minute)
	inserted, err = store.Consume(context.Background(), key, testPayer, clock.Add(10*time.Minute))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, 1, store.Len())
}

func TestProofKeyStable(t *testing.T) {
	a := []byte(`{"scheme":"exact"}`)
	assert.Equal(t, ProofKey(a), ProofKey(a))
	assert.NotEqual(t, ProofKey(a), ProofKey([]byte(`{"scheme":"upto"}`)))
	assert.Len(t, ProofKey(a), 64)
}

func TestPaymentStateTransitions(t *testing.T) {
	assert.True(t, StateUnpaid.CanTransition(StateChallenged))
	assert.True(t, StateChallenged.CanTransition(StateVerified))
	assert.True(t, StateVerified.CanTransition(StateSettled))
	assert.True(t, StateVerified.CanTransition(StateFailed))

	// Terminal states stay terminal, and a timeout never resets to unpaid.
	assert.False(t, StateSettled.CanTransition(StateUnpaid))
	assert.False(t, StateFailed.CanTransition(StateChallenged))
	assert.False(t, StateChallenged.CanTransition(StateUnpaid))
}

func TestDecisionUnmarshalsAsChallengeBody(t *testing.T) {
	req := testRequirements(t)
	body, err := json.Marshal(types.PaymentRequired{
		X402Version: types.ProtocolVersion,
		Error:       "payment required",
		Accepts:     []types.PaymentRequirements{req},
	})
	require.NoError(t, err)
	assert.Contains(t, string(body), `"amount":"1000000"`)
	assert.Contains(t, string(body), `"payTo":"`+testPayTo+`"`)
}
