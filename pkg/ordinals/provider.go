// Package ordinals holds the Bitcoin-facing domain operations served behind
// the payment gate: address and transaction lookups, fee estimation, and
// Ordinals inscription creation.
package ordinals

import (
	"context"
	"errors"
)

// ErrNotFound is returned for addresses or transactions the provider does
// not know about.
var ErrNotFound = errors.New("not found")

// AddressInfo is the balance and activity view of one address. Balances
// are satoshis.
type AddressInfo struct {
	Address          string `json:"address"`
	ConfirmedBalance int64  `json:"confirmed_balance"`
	PendingBalance   int64  `json:"pending_balance"`
	TxCount          int64  `json:"tx_count"`
}

// Transaction is a summarized transaction view.
type Transaction struct {
	TxID        string `json:"txid"`
	Version     int32  `json:"version"`
	Size        int64  `json:"size"`
	Weight      int64  `json:"weight"`
	Fee         int64  `json:"fee"`
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height,omitempty"`
	InputCount  int    `json:"input_count"`
	OutputCount int    `json:"output_count"`
}

// FeeEstimates are recommended fee rates in sat/vB by confirmation target.
type FeeEstimates struct {
	Fastest  int64 `json:"fastest"`
	HalfHour int64 `json:"half_hour"`
	Hour     int64 `json:"hour"`
	Economy  int64 `json:"economy"`
	Minimum  int64 `json:"minimum"`
}

// NetworkInfo identifies the chain the service is answering for.
type NetworkInfo struct {
	Network     string `json:"network"`
	BlockHeight int64  `json:"block_height"`
}

// Stats is a snapshot of mempool load.
type Stats struct {
	MempoolTxCount int64 `json:"mempool_tx_count"`
	MempoolVsize   int64 `json:"mempool_vsize"`
	TotalFees      int64 `json:"total_fees"`
}

// Provider answers Bitcoin data queries. Implementations: Client against a
// mempool.space-compatible API, StaticProvider for offline and dev use.
type Provider interface {
	AddressInfo(ctx context.Context, address string) (*AddressInfo, error)
	Transaction(ctx context.Context, txid string) (*Transaction, error)
	FeeEstimates(ctx context.Context) (*FeeEstimates, error)
	NetworkInfo(ctx context.Context) (*NetworkInfo, error)
	Stats(ctx context.Context) (*Stats, error)
}
