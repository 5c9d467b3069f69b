// Package http runs x402 paid fetches over net/http.
//
// A Client probes a resource, parses the 402 payment requirements, checks the
// price against an optional ceiling, signs with the first supported scheme
// and retries exactly once with the proof attached:
//
//	client := http.NewClient(signers, http.WithTransitionSink(sink))
//	result, err := client.Execute(ctx, req, ceiling, false)
//	if result.NeedsConfirmation() {
//	    // ask the user, then resume without a second probe
//	}
//
// Callers that need suspend and resume keep the Call returned by NewCall.
// WrapHTTPClientWithPayment hides all of this behind an http.RoundTripper.
package http

import (
	"context"
	"io"
	"net/http"
)

// Get performs a GET request with automatic payment handling
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Post performs a POST request with automatic payment handling
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.Do(ctx, req)
}
