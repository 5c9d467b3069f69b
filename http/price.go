package http

import (
	"context"
	"io"
	"math/big"
	"net/http"

	x402 "github.com/x402-foundation/x402fetch"
)

// CheckPrice probes req without a payment header and returns the highest
// amount the server asks for. It reports false when the resource is free or
// the probe fails for any reason; failures are logged, never returned.
func (c *Client) CheckPrice(ctx context.Context, req *http.Request) (*big.Int, bool) {
	if req == nil || req.URL == nil {
		c.log.Warn("x402 price check failed", map[string]any{"error": "request has no URL"})
		return nil, false
	}
	call, err := c.NewCall(req)
	if err != nil {
		c.log.Warn("x402 price check failed", map[string]any{"url": req.URL.String(), "error": err})
		return nil, false
	}

	probe := call.newRequest(ctx)
	probe.Header.Del(HeaderPaymentSignature)
	probe.Header.Del(HeaderXPayment)

	resp, err := c.doer.Do(probe)
	if err != nil {
		c.log.Warn("x402 price check failed", map[string]any{"url": probe.URL.String(), "error": err})
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		io.Copy(io.Discard, resp.Body)
		return nil, false
	}

	required, err := call.readPaymentRequired(resp)
	if err != nil {
		c.log.Warn("x402 price check failed", map[string]any{"url": probe.URL.String(), "error": err})
		return nil, false
	}

	amount, err := x402.MaxAmount(required.Accepts)
	if err != nil {
		c.log.Warn("x402 price check failed", map[string]any{"url": probe.URL.String(), "error": err})
		return nil, false
	}
	return amount, true
}
