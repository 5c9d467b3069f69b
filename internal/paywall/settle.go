package paywall

import (
	"context"

	"github.com/google/uuid"

	x402 "github.com/x402-foundation/x402fetch"
)

// Settler verifies and settles a payment proof for the offer it was matched
// to. A real deployment forwards both to a facilitator.
type Settler func(ctx context.Context, payload x402.PaymentPayload, offer Offer) (x402.SettleResponse, error)

// DevSettler accepts every proof without touching a chain. The transaction
// hash is a random id so responses stay distinguishable.
func DevSettler(_ context.Context, payload x402.PaymentPayload, offer Offer) (x402.SettleResponse, error) {
	return x402.SettleResponse{
		Success:     true,
		Transaction: "dev-" + uuid.NewString(),
		Network:     offer.Network,
		Payer:       payerOf(payload),
	}, nil
}

// payerOf reads the EIP-3009 authorizer, when the proof has one.
func payerOf(payload x402.PaymentPayload) string {
	authorization, ok := payload.Payload["authorization"].(map[string]interface{})
	if !ok {
		return ""
	}
	from, _ := authorization["from"].(string)
	return from
}
