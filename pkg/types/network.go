package types

// NetworkConfig describes an EVM network this service can price payments on.
type NetworkConfig struct {
	ChainID      int64
	USDCAddress  string
	USDCDecimals int
	Testnet      bool
}

// SupportedNetworks maps x402 network identifiers to their USDC deployment.
var SupportedNetworks = map[string]NetworkConfig{
	"base": {
		ChainID:      8453,
		USDCAddress:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		USDCDecimals: 6,
	},
	"base-sepolia": {
		ChainID:      84532,
		USDCAddress:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		USDCDecimals: 6,
		Testnet:      true,
	},
}

// LookupNetwork returns the configuration for a network identifier.
func LookupNetwork(network string) (NetworkConfig, bool) {
	cfg, ok := SupportedNetworks[network]
	return cfg, ok
}
