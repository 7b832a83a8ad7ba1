package gate

import (
	"fmt"
	"strconv"

	"github.com/ordkit/ordinals-x402/pkg/types"
)

// DefaultTimeoutSeconds is the validity window applied to requirements that
// don't specify one.
const DefaultTimeoutSeconds = 300

// PricingConfig fixes the payment rail all requirements are built against.
type PricingConfig struct {
	Network string
	PayTo   string
}

// BuildRequirements produces the payment requirements for one priced
// resource. Price is a count of the asset's minor units and must be
// positive; anything else is ErrInvalidPrice, never clamped. The output is
// deterministic for equal inputs so a proof signed against a challenge
// verifies against the rebuilt requirements on the retry leg.
func BuildRequirements(price int64, resourcePath, description string, cfg PricingConfig) (types.PaymentRequirements, error) {
	if price <= 0 {
		return types.PaymentRequirements{}, fmt.Errorf("%w (got %d)", ErrInvalidPrice, price)
	}

	netCfg, ok := types.LookupNetwork(cfg.Network)
	if !ok {
		return types.PaymentRequirements{}, NewPaymentError("unsupported_network",
			fmt.Sprintf("no USDC deployment configured for network %s", cfg.Network), nil)
	}

	req := types.PaymentRequirements{
		Scheme:            "exact",
		Network:           cfg.Network,
		Asset:             netCfg.USDCAddress,
		Amount:            strconv.FormatInt(price, 10),
		PayTo:             cfg.PayTo,
		Resource:          resourcePath,
		Description:       description,
		MimeType:          "application/json",
		MaxTimeoutSeconds: DefaultTimeoutSeconds,
	}
	req.SetUSDCInfo(netCfg.Testnet)

	return req, nil
}
