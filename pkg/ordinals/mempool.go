package ordinals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultMempoolURL is the public mempool.space mainnet API.
const DefaultMempoolURL = "https://mempool.space/api"

// Client is a Provider backed by a mempool.space-compatible REST API.
type Client struct {
	baseURL    string
	network    string
	httpClient *http.Client
}

// NewClient creates a mempool-backed provider. baseURL defaults to the
// public mempool.space API when empty.
func NewClient(baseURL, network string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultMempoolURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		network:    network,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type addressResponse struct {
	Address    string `json:"address"`
	ChainStats struct {
		FundedTxoSum int64 `json:"funded_txo_sum"`
		SpentTxoSum  int64 `json:"spent_txo_sum"`
		TxCount      int64 `json:"tx_count"`
	} `json:"chain_stats"`
	MempoolStats struct {
		FundedTxoSum int64 `json:"funded_txo_sum"`
		SpentTxoSum  int64 `json:"spent_txo_sum"`
		TxCount      int64 `json:"tx_count"`
	} `json:"mempool_stats"`
}

func (c *Client) AddressInfo(ctx context.Context, address string) (*AddressInfo, error) {
	var resp addressResponse
	if err := c.getJSON(ctx, "/address/"+address, &resp); err != nil {
		return nil, err
	}
	return &AddressInfo{
		Address:          address,
		ConfirmedBalance: resp.ChainStats.FundedTxoSum - resp.ChainStats.SpentTxoSum,
		PendingBalance:   resp.MempoolStats.FundedTxoSum - resp.MempoolStats.SpentTxoSum,
		TxCount:          resp.ChainStats.TxCount + resp.MempoolStats.TxCount,
	}, nil
}

type txResponse struct {
	TxID    string `json:"txid"`
	Version int32  `json:"version"`
	Size    int64  `json:"size"`
	Weight  int64  `json:"weight"`
	Fee     int64  `json:"fee"`
	Vin     []any  `json:"vin"`
	Vout    []any  `json:"vout"`
	Status  struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
}

func (c *Client) Transaction(ctx context.Context, txid string) (*Transaction, error) {
	var resp txResponse
	if err := c.getJSON(ctx, "/tx/"+txid, &resp); err != nil {
		return nil, err
	}
	return &Transaction{
		TxID:        resp.TxID,
		Version:     resp.Version,
		Size:        resp.Size,
		Weight:      resp.Weight,
		Fee:         resp.Fee,
		Confirmed:   resp.Status.Confirmed,
		BlockHeight: resp.Status.BlockHeight,
		InputCount:  len(resp.Vin),
		OutputCount: len(resp.Vout),
	}, nil
}

type feesResponse struct {
	FastestFee  int64 `json:"fastestFee"`
	HalfHourFee int64 `json:"halfHourFee"`
	HourFee     int64 `json:"hourFee"`
	EconomyFee  int64 `json:"economyFee"`
	MinimumFee  int64 `json:"minimumFee"`
}

func (c *Client) FeeEstimates(ctx context.Context) (*FeeEstimates, error) {
	var resp feesResponse
	if err := c.getJSON(ctx, "/v1/fees/recommended", &resp); err != nil {
		return nil, err
	}
	return &FeeEstimates{
		Fastest:  resp.FastestFee,
		HalfHour: resp.HalfHourFee,
		Hour:     resp.HourFee,
		Economy:  resp.EconomyFee,
		Minimum:  resp.MinimumFee,
	}, nil
}

func (c *Client) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	var height int64
	if err := c.getJSON(ctx, "/blocks/tip/height", &height); err != nil {
		return nil, err
	}
	return &NetworkInfo{Network: c.network, BlockHeight: height}, nil
}

type mempoolResponse struct {
	Count    int64 `json:"count"`
	Vsize    int64 `json:"vsize"`
	TotalFee int64 `json:"total_fee"`
}

func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var resp mempoolResponse
	if err := c.getJSON(ctx, "/mempool", &resp); err != nil {
		return nil, err
	}
	return &Stats{
		MempoolTxCount: resp.Count,
		MempoolVsize:   resp.Vsize,
		TotalFees:      resp.TotalFee,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request to %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
