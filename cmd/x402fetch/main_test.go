package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x402-foundation/x402fetch/internal/paywall"
)

const (
	testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testPayTo      = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// isolateEnv clears every variable the CLI reads and installs a wallet.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SVM_PRIVATE_KEY", "EVM_RPC_URL", "SOLANA_RPC_URL", "SOLANA_DEVNET_RPC_URL",
		"X402_MAX_AMOUNT", "X402_PAYMENT_HEADER", "X402_TIMEOUT", "METRICS_ADDR",
		"PAYWALL_ADDR", "PAYWALL_PAY_TO", "PAYWALL_NETWORK", "PAYWALL_PRICE", "PAYWALL_VERSION",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("EVM_PRIVATE_KEY", testPrivateKey)
}

type paywallServer struct {
	*httptest.Server
	requests atomic.Int32
}

func newPaywall(t *testing.T, price string) *paywallServer {
	t.Helper()
	offer, err := paywall.USDCOffer("eip155:84532", testPayTo, price)
	require.NoError(t, err)
	router := paywall.NewRouter(paywall.WithOffer(offer))

	s := &paywallServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func runApp(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	app := newApp()
	var stdout, stderr bytes.Buffer
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.Reader = strings.NewReader(stdin)

	err := app.RunContext(context.Background(), append([]string{"x402fetch"}, args...))
	return stdout.String(), stderr.String(), err
}

func TestFetchPaysAndFilters(t *testing.T) {
	isolateEnv(t)
	srv := newPaywall(t, "0.01")

	stdout, stderr, err := runApp(t, "", "fetch", "--include", "--jq", ".message", srv.URL+"/paid/report")
	require.NoError(t, err)
	assert.Equal(t, "\"payment accepted\"\n", stdout)
	assert.Contains(t, stderr, "State:       Settled")
	assert.Contains(t, stderr, "Settled:     true")
	assert.EqualValues(t, 2, srv.requests.Load())
}

func TestFetchAsksBeforePayingAboveCeiling(t *testing.T) {
	isolateEnv(t)

	t.Run("declined", func(t *testing.T) {
		srv := newPaywall(t, "0.01")
		stdout, stderr, err := runApp(t, "n\n", "fetch", "--max-amount", "100", srv.URL+"/paid/report")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "payment declined")
		assert.Contains(t, stderr, "Price 0.01 exceeds your ceiling of 0.0001")
		assert.Empty(t, stdout)
		assert.EqualValues(t, 1, srv.requests.Load())
	})

	t.Run("accepted", func(t *testing.T) {
		srv := newPaywall(t, "0.01")
		stdout, _, err := runApp(t, "y\n", "fetch", "--max-amount", "100", srv.URL+"/paid/report")
		require.NoError(t, err)
		assert.Contains(t, stdout, "payment accepted")
		// the confirmed call reuses the quote instead of probing again
		assert.EqualValues(t, 2, srv.requests.Load())
	})

	t.Run("yes flag", func(t *testing.T) {
		srv := newPaywall(t, "0.01")
		stdout, stderr, err := runApp(t, "", "fetch", "--max-price", "0.001", "--yes", srv.URL+"/paid/report")
		require.NoError(t, err)
		assert.Contains(t, stdout, "payment accepted")
		assert.NotContains(t, stderr, "Pay?")
	})

	t.Run("environment ceiling", func(t *testing.T) {
		t.Setenv("X402_MAX_AMOUNT", "20000")
		srv := newPaywall(t, "0.01")
		stdout, stderr, err := runApp(t, "", "fetch", srv.URL+"/paid/report")
		require.NoError(t, err)
		assert.Contains(t, stdout, "payment accepted")
		assert.NotContains(t, stderr, "Pay?")
	})
}

func TestFetchWithoutWallet(t *testing.T) {
	isolateEnv(t)
	t.Setenv("EVM_PRIVATE_KEY", "")
	srv := newPaywall(t, "0.01")

	_, _, err := runApp(t, "", "fetch", srv.URL+"/paid/report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no wallet configured")
	assert.Zero(t, srv.requests.Load())
}

func TestFetchInvalidConfig(t *testing.T) {
	isolateEnv(t)
	t.Setenv("X402_MAX_AMOUNT", "lots")

	_, _, err := runApp(t, "", "fetch", "http://127.0.0.1/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxAmount")
}

func TestPrice(t *testing.T) {
	isolateEnv(t)
	srv := newPaywall(t, "0.25")

	stdout, _, err := runApp(t, "", "price", srv.URL+"/paid/report")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/paid/report: 0.25 (250000 units)\n", stdout)

	stdout, _, err = runApp(t, "", "price", "--json", srv.URL+"/healthz")
	require.NoError(t, err)
	var out priceOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.False(t, out.Paid)
	assert.Empty(t, out.Amount)
}

func TestBuildRequestHeaders(t *testing.T) {
	req, err := buildRequest(context.Background(), "post", "http://example.com/x",
		[]string{"Accept: application/json", "X-Trace:  abc "}, "hello")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "abc", req.Header.Get("X-Trace"))

	_, err = buildRequest(context.Background(), "GET", "http://example.com/x", []string{"no-colon"}, "")
	require.Error(t, err)
}

func TestApplyJQ(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		filter  string
		want    string
		wantErr bool
	}{
		{name: "field", body: `{"a": {"b": 1}}`, filter: ".a.b", want: "1\n"},
		{name: "stream", body: `[1, 2]`, filter: ".[]", want: "1\n2\n"},
		{name: "large integer", body: `{"amount": 10000}`, filter: ".amount", want: "10000\n"},
		{name: "parse error", body: `{}`, filter: ".[", wantErr: true},
		{name: "runtime error", body: `{"a": "x"}`, filter: ".a + 1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := applyJQ(&out, []byte(tt.body), tt.filter)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.String())
		})
	}
}
