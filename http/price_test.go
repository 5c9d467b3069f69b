package http_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402http "github.com/x402-foundation/x402fetch/http"
)

func TestCheckPrice(t *testing.T) {
	srv := newPaywall(t, "0.25")
	signers, scheme := newSigners(t)
	client := x402http.NewClient(signers)

	amount, ok := client.CheckPrice(context.Background(), get(t, srv.URL+"/paid/x"))
	require.True(t, ok)
	assert.Equal(t, "250000", amount.String())
	assert.Zero(t, scheme.calls.Load())
	assert.Equal(t, int32(1), srv.requests.Load())
}

func TestCheckPriceStripsPaymentHeader(t *testing.T) {
	srv := newPaywall(t, "0.25")
	signers, _ := newSigners(t)
	client := x402http.NewClient(signers)

	req := get(t, srv.URL+"/paid/x")
	req.Header.Set(x402http.HeaderPaymentSignature, "stale")

	amount, ok := client.CheckPrice(context.Background(), req)
	require.True(t, ok)
	assert.Equal(t, "250000", amount.String())
	assert.Equal(t, "stale", req.Header.Get(x402http.HeaderPaymentSignature))
}

func TestCheckPriceFreeOrFailing(t *testing.T) {
	free := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	broken := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte("not json"))
	}))
	signers, _ := newSigners(t)
	client := x402http.NewClient(signers)

	for _, url := range []string{free.URL, broken.URL, "http://127.0.0.1:1"} {
		amount, ok := client.CheckPrice(context.Background(), get(t, url))
		assert.False(t, ok, url)
		assert.Nil(t, amount, url)
	}
}

func TestCheckPriceNilRequest(t *testing.T) {
	signers, _ := newSigners(t)
	client := x402http.NewClient(signers)

	amount, ok := client.CheckPrice(context.Background(), nil)
	assert.False(t, ok)
	assert.Nil(t, amount)
}
