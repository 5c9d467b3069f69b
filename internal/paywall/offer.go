package paywall

import (
	"fmt"

	x402 "github.com/x402-foundation/x402fetch"
	"github.com/x402-foundation/x402fetch/mechanisms/evm"
	"github.com/x402-foundation/x402fetch/types"
)

// Offer is one way to pay for the protected resource, in normalized form.
type Offer struct {
	Scheme            string
	Network           x402.Network
	Asset             string
	PayTo             string
	Amount            string
	MaxTimeoutSeconds int
	Extra             map[string]interface{}
}

// USDCOffer prices the resource in the default stablecoin of an EVM network.
// price is a decimal amount such as "0.01".
func USDCOffer(network x402.Network, payTo, price string) (Offer, error) {
	config, ok := evm.NetworkConfigs[string(network)]
	if !ok {
		return Offer{}, fmt.Errorf("no default asset for network %s", network)
	}
	asset := config.DefaultAsset

	amount, err := x402.ParseUnits(price, int32(asset.Decimals))
	if err != nil {
		return Offer{}, err
	}

	return Offer{
		Scheme:            evm.SchemeExact,
		Network:           network,
		Asset:             asset.Address,
		PayTo:             payTo,
		Amount:            amount.String(),
		MaxTimeoutSeconds: 60,
		Extra: map[string]interface{}{
			"name":    asset.Name,
			"version": asset.Version,
		},
	}, nil
}

func (o Offer) v1(options *Options, resource string) (types.PaymentRequirementsV1, error) {
	network, ok := types.V1NetworkName(string(o.Network))
	if !ok {
		return types.PaymentRequirementsV1{}, fmt.Errorf("network %s has no v1 name", o.Network)
	}
	return types.PaymentRequirementsV1{
		Scheme:            o.Scheme,
		Network:           network,
		MaxAmountRequired: o.Amount,
		Resource:          resource,
		Description:       options.Description,
		MimeType:          options.MimeType,
		PayTo:             o.PayTo,
		MaxTimeoutSeconds: o.MaxTimeoutSeconds,
		Asset:             o.Asset,
		Extra:             o.Extra,
	}, nil
}

func (o Offer) v2() types.PaymentRequirementsV2 {
	return types.PaymentRequirementsV2{
		Scheme:            o.Scheme,
		Network:           types.CAIP2Network(string(o.Network)),
		Asset:             o.Asset,
		Amount:            o.Amount,
		PayTo:             o.PayTo,
		MaxTimeoutSeconds: o.MaxTimeoutSeconds,
		Extra:             o.Extra,
	}
}
