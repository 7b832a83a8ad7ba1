// Package signer holds the payer-side signing credential. A Credential is
// built once at process start and passed explicitly to everything that
// signs; there is no lazily initialized shared key state.
package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/ordkit/ordinals-x402/pkg/types"
)

// Credential is an immutable signing identity for the payer role.
type Credential struct {
	privateKey *ecdsa.PrivateKey
	address    string
}

// NewCredentialFromHex parses a hex-encoded secp256k1 private key, with or
// without the 0x prefix.
func NewCredentialFromHex(privateKeyHex string) (*Credential, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &Credential{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey).Hex(),
	}, nil
}

// Address returns the payer address derived from the credential.
func (c *Credential) Address() string {
	return c.address
}

// SignRequirements produces a payment proof for exactly the given
// requirements: an EIP-3009 transferWithAuthorization message over the
// (recipient, amount) tuple, bound to the asset contract via the EIP-712
// domain, with a random nonce and a validity window matching the
// requirements' timeout.
func (c *Credential) SignRequirements(ctx context.Context, req types.PaymentRequirements, now time.Time) (*types.PaymentPayload, error) {
	netCfg, ok := types.LookupNetwork(req.Network)
	if !ok {
		return nil, fmt.Errorf("unsupported network: %s", req.Network)
	}

	value, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %q", req.Amount)
	}

	timeout := req.MaxTimeoutSeconds
	if timeout == 0 {
		timeout = 300
	}

	nonce, err := randomNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	validAfter := big.NewInt(0)
	validBefore := big.NewInt(now.Unix() + int64(timeout))

	domainName := "USD Coin"
	domainVersion := "2"
	if req.Extra != nil {
		if req.Extra.Name != "" {
			domainName = req.Extra.Name
		}
		if req.Extra.Version != "" {
			domainVersion = req.Extra.Version
		}
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			Version:           domainVersion,
			ChainId:           math.NewHexOrDecimal256(netCfg.ChainID),
			VerifyingContract: req.Asset,
		},
		Message: apitypes.TypedDataMessage{
			"from":        c.address,
			"to":          req.PayTo,
			"value":       value.String(),
			"validAfter":  validAfter.String(),
			"validBefore": validBefore.String(),
			"nonce":       nonce,
		},
	}

	signature, err := c.signTypedData(typedData)
	if err != nil {
		return nil, err
	}

	return &types.PaymentPayload{
		X402Version: types.ProtocolVersion,
		Scheme:      req.Scheme,
		Network:     req.Network,
		Payload: &types.ExactEvmPayload{
			Signature: hexutil.Encode(signature),
			Authorization: &types.ExactEvmPayloadAuthorization{
				From:        c.address,
				To:          req.PayTo,
				Value:       value.String(),
				ValidAfter:  validAfter.String(),
				ValidBefore: validBefore.String(),
				Nonce:       nonce,
			},
		},
	}, nil
}

// signTypedData signs EIP-712 typed data and returns a 65-byte signature
// with the v value adjusted to 27/28.
func (c *Credential) signTypedData(typedData apitypes.TypedData) ([]byte, error) {
	dataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash struct: %w", err)
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	// EIP-712 digest: 0x19 0x01 <domainSeparator> <dataHash>
	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, dataHash...)
	digest := crypto.Keccak256(rawData)

	signature, err := crypto.Sign(digest, c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	signature[64] += 27

	return signature, nil
}

func randomNonce() (string, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(nonce[:]), nil
}
