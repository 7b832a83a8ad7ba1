package ordinals

import "context"

// Static fee rates in sat/vB served when no live provider is configured.
const (
	staticFastestFee  = 25
	staticHalfHourFee = 15
	staticHourFee     = 10
	staticEconomyFee  = 5
	staticMinimumFee  = 1
)

// StaticProvider serves fixed responses: empty balances, constant fees, a
// frozen tip height. Used for offline development and as the fallback when
// no data provider is reachable.
type StaticProvider struct {
	Network     string
	BlockHeight int64
}

func NewStaticProvider(network string) *StaticProvider {
	return &StaticProvider{Network: network, BlockHeight: 868000}
}

func (p *StaticProvider) AddressInfo(_ context.Context, address string) (*AddressInfo, error) {
	return &AddressInfo{Address: address}, nil
}

func (p *StaticProvider) Transaction(_ context.Context, _ string) (*Transaction, error) {
	return nil, ErrNotFound
}

func (p *StaticProvider) FeeEstimates(_ context.Context) (*FeeEstimates, error) {
	return &FeeEstimates{
		Fastest:  staticFastestFee,
		HalfHour: staticHalfHourFee,
		Hour:     staticHourFee,
		Economy:  staticEconomyFee,
		Minimum:  staticMinimumFee,
	}, nil
}

func (p *StaticProvider) NetworkInfo(_ context.Context) (*NetworkInfo, error) {
	return &NetworkInfo{Network: p.Network, BlockHeight: p.BlockHeight}, nil
}

func (p *StaticProvider) Stats(_ context.Context) (*Stats, error) {
	return &Stats{}, nil
}
