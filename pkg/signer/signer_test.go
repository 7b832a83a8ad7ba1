package signer

import (
	"context"
	"encoding/hex"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordkit/ordinals-x402/pkg/types"
)

// Throwaway test key, never funded.
const testPrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testRequirements() types.PaymentRequirements {
	req := types.PaymentRequirements{
		Scheme:            "exact",
		Network:           "base-sepolia",
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Amount:            "1000000",
		PayTo:             "0x1111111111111111111111111111111111111111",
		Resource:          "/api/v1/inscriptions",
		MaxTimeoutSeconds: 300,
	}
	req.SetUSDCInfo(true)
	return req
}

func TestNewCredentialFromHex(t *testing.T) {
	withPrefix, err := NewCredentialFromHex("0x" + testPrivateKey)
	require.NoError(t, err)
	withoutPrefix, err := NewCredentialFromHex(testPrivateKey)
	require.NoError(t, err)

	assert.Equal(t, withPrefix.Address(), withoutPrefix.Address())
	assert.True(t, strings.HasPrefix(withPrefix.Address(), "0x"))
	assert.Len(t, withPrefix.Address(), 42)

	_, err = NewCredentialFromHex("not-a-key")
	assert.Error(t, err)
}

func TestSignRequirements(t *testing.T) {
	cred, err := NewCredentialFromHex(testPrivateKey)
	require.NoError(t, err)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	payload, err := cred.SignRequirements(context.Background(), testRequirements(), now)
	require.NoError(t, err)

	assert.Equal(t, types.ProtocolVersion, payload.X402Version)
	assert.Equal(t, "exact", payload.Scheme)
	assert.Equal(t, "base-sepolia", payload.Network)

	auth := payload.Payload.Authorization
	assert.Equal(t, cred.Address(), auth.From)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", auth.To)
	assert.Equal(t, "1000000", auth.Value)
	assert.Equal(t, "0", auth.ValidAfter)

	validBefore, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
	require.NoError(t, err)
	assert.Equal(t, now.Unix()+300, validBefore)

	sig, err := hex.DecodeString(strings.TrimPrefix(payload.Payload.Signature, "0x"))
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])
}

func TestSignRequirementsFreshNoncePerCall(t *testing.T) {
	cred, err := NewCredentialFromHex(testPrivateKey)
	require.NoError(t, err)

	now := time.Now()
	first, err := cred.SignRequirements(context.Background(), testRequirements(), now)
	require.NoError(t, err)
	second, err := cred.SignRequirements(context.Background(), testRequirements(), now)
	require.NoError(t, err)

	assert.NotEqual(t, first.Payload.Authorization.Nonce, second.Payload.Authorization.Nonce)
	assert.NotEqual(t, first.Payload.Signature, second.Payload.Signature)
}

func TestSignRequirementsRejectsUnknownNetwork(t *testing.T) {
	cred, err := NewCredentialFromHex(testPrivateKey)
	require.NoError(t, err)

	req := testRequirements()
	req.Network = "solana"
	_, err = cred.SignRequirements(context.Background(), req, time.Now())
	assert.Error(t, err)
}
