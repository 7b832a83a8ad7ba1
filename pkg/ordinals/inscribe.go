package ordinals

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// DefaultFeeRate is applied to inscription requests that don't set one.
const DefaultFeeRate = 10

// MaxContentBytes caps inscription content at the standardness limit for a
// single reveal transaction.
const MaxContentBytes = 390000

var validate = validator.New()

// InscriptionRequest is the input schema for the create-inscription action.
type InscriptionRequest struct {
	Content        string `json:"content" validate:"required"`
	ContentType    string `json:"content_type" validate:"required"`
	ReceiveAddress string `json:"receive_address" validate:"required,min=26,max=90"`
	FeeRate        int64  `json:"fee_rate,omitempty" validate:"omitempty,gt=0"`
}

// Validate checks the request against its schema.
func (r *InscriptionRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid inscription request: %w", err)
	}
	if len(r.Content) > MaxContentBytes {
		return fmt.Errorf("inscription content exceeds %d bytes", MaxContentBytes)
	}
	return nil
}

// Inscription is the result of a broadcast inscription: the commit/reveal
// transaction pair and the resulting inscription id.
type Inscription struct {
	ID             string `json:"inscription_id"`
	CommitTxID     string `json:"commit_txid"`
	RevealTxID     string `json:"reveal_txid"`
	RevealTxHex    string `json:"reveal_tx_hex"`
	FeeRate        int64  `json:"fee_rate"`
	ContentType    string `json:"content_type"`
	ContentLength  int    `json:"content_length"`
	ReceiveAddress string `json:"receive_address"`
}

// Broadcaster creates and broadcasts Ordinals inscriptions.
type Broadcaster interface {
	Inscribe(ctx context.Context, req *InscriptionRequest) (*Inscription, error)
}

// MockBroadcaster fabricates deterministic commit/reveal transactions
// without touching a wallet or the network. Equal requests produce equal
// ids, which doubles as the idempotency key for reconciliation.
type MockBroadcaster struct{}

func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{}
}

func (b *MockBroadcaster) Inscribe(_ context.Context, req *InscriptionRequest) (*Inscription, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	feeRate := req.FeeRate
	if feeRate == 0 {
		feeRate = DefaultFeeRate
	}

	commitTxID := fakeTxID("commit", req)
	revealTxID := fakeTxID("reveal", req)

	return &Inscription{
		ID:             revealTxID + "i0",
		CommitTxID:     commitTxID,
		RevealTxID:     revealTxID,
		RevealTxHex:    fakeTxHex(revealTxID),
		FeeRate:        feeRate,
		ContentType:    req.ContentType,
		ContentLength:  len(req.Content),
		ReceiveAddress: req.ReceiveAddress,
	}, nil
}

func fakeTxID(stage string, req *InscriptionRequest) string {
	h := sha256.New()
	h.Write([]byte(stage))
	h.Write([]byte(req.ContentType))
	h.Write([]byte(req.Content))
	h.Write([]byte(req.ReceiveAddress))
	return hex.EncodeToString(h.Sum(nil))
}

// fakeTxHex renders a minimal version-2 transaction shell around the txid.
// Enough for callers that only display or hash it.
func fakeTxHex(txid string) string {
	return "02000000000101" + txid + "0000000000fdffffff00000000"
}
