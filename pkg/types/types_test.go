package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupNetwork(t *testing.T) {
	base, ok := LookupNetwork("base")
	require.True(t, ok)
	assert.Equal(t, int64(8453), base.ChainID)
	assert.False(t, base.Testnet)

	sepolia, ok := LookupNetwork("base-sepolia")
	require.True(t, ok)
	assert.Equal(t, int64(84532), sepolia.ChainID)
	assert.True(t, sepolia.Testnet)

	_, ok = LookupNetwork("mainnet")
	assert.False(t, ok)
}

func TestDecodePaymentPayloadForcesVersion(t *testing.T) {
	payload := &PaymentPayload{
		Scheme:  "exact",
		Network: "base",
		Payload: &ExactEvmPayload{
			Signature:     "0xdeadbeef",
			Authorization: &ExactEvmPayloadAuthorization{Value: "1000000"},
		},
	}
	encoded, err := payload.EncodeToBase64String()
	require.NoError(t, err)

	decoded, err := DecodePaymentPayloadFromBase64(encoded)
	require.NoError(t, err)
	assert.Equal(t, ProtocolVersion, decoded.X402Version)
	assert.Equal(t, "1000000", decoded.Payload.Authorization.Value)

	_, err = DecodePaymentPayloadFromBase64("%%%")
	assert.Error(t, err)
}

func TestSetUSDCInfo(t *testing.T) {
	var mainnet PaymentRequirements
	mainnet.SetUSDCInfo(false)
	assert.Equal(t, "USD Coin", mainnet.Extra.Name)
	assert.Equal(t, "2", mainnet.Extra.Version)

	var testnet PaymentRequirements
	testnet.SetUSDCInfo(true)
	assert.Equal(t, "USDC", testnet.Extra.Name)
}
