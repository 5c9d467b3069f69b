package http

import (
	"context"
	"math/big"
	"net/http"
)

// ConfirmFunc decides whether a price above the ceiling may be paid.
type ConfirmFunc func(ctx context.Context, confirmation *PriceConfirmation) (bool, error)

// PaymentRoundTripper implements http.RoundTripper with x402 payment
// handling. Each RoundTrip is its own Call, so the single-retry guard never
// leaks between requests.
type PaymentRoundTripper struct {
	client  *Client
	ceiling *big.Int
	confirm ConfirmFunc
}

// RoundTripperOption configures a PaymentRoundTripper
type RoundTripperOption func(*PaymentRoundTripper)

// WithCeiling sets the price ceiling applied to every request.
func WithCeiling(ceiling *big.Int) RoundTripperOption {
	return func(t *PaymentRoundTripper) {
		t.ceiling = ceiling
	}
}

// WithConfirmFunc sets the callback consulted when a price exceeds the
// ceiling. Without one the 402 is returned to the caller unchanged.
func WithConfirmFunc(fn ConfirmFunc) RoundTripperOption {
	return func(t *PaymentRoundTripper) {
		t.confirm = fn
	}
}

type transportDoer struct {
	rt http.RoundTripper
}

func (d transportDoer) Do(req *http.Request) (*http.Response, error) {
	return d.rt.RoundTrip(req)
}

// WrapHTTPClientWithPayment wraps a standard HTTP client with x402 payment
// handling. Requests go out through the client's original transport. The
// client's logger, sink and header settings are kept.
func WrapHTTPClientWithPayment(httpClient *http.Client, client *Client, opts ...RoundTripperOption) *http.Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	originalTransport := httpClient.Transport
	if originalTransport == nil {
		originalTransport = http.DefaultTransport
	}

	inner := *client
	inner.doer = transportDoer{rt: originalTransport}

	t := &PaymentRoundTripper{client: &inner}
	for _, opt := range opts {
		opt(t)
	}

	wrapped := *httpClient
	wrapped.Transport = t
	return &wrapped
}

// RoundTrip implements http.RoundTripper
func (t *PaymentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	call, err := t.client.NewCall(req)
	if err != nil {
		return nil, err
	}

	result, err := call.Execute(ctx, t.ceiling, false)
	if err != nil {
		return nil, err
	}
	if !result.NeedsConfirmation() {
		return result.Response, nil
	}

	if t.confirm == nil {
		return result.Response, nil
	}
	ok, err := t.confirm(ctx, result.Confirmation)
	if err != nil {
		return nil, err
	}
	if !ok {
		return result.Response, nil
	}

	result, err = call.Execute(ctx, nil, true)
	if err != nil {
		return nil, err
	}
	return result.Response, nil
}
