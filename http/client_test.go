package http_test

import (
	"context"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-foundation/x402fetch"
	x402http "github.com/x402-foundation/x402fetch/http"
	"github.com/x402-foundation/x402fetch/internal/paywall"
	"github.com/x402-foundation/x402fetch/mechanisms/evm"
	evmsigner "github.com/x402-foundation/x402fetch/signers/evm"
)

const (
	testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testPayTo      = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// countingScheme counts signer invocations of the wrapped scheme.
type countingScheme struct {
	x402.SchemeNetworkClient
	calls atomic.Int32
}

func (s *countingScheme) CreatePaymentPayload(ctx context.Context, req x402.PaymentRequirements) (x402.PaymentProof, error) {
	s.calls.Add(1)
	return s.SchemeNetworkClient.CreatePaymentPayload(ctx, req)
}

func newSigners(t *testing.T) (*x402.X402Client, *countingScheme) {
	t.Helper()
	signer, err := evmsigner.NewClientSignerFromPrivateKey(testPrivateKey)
	require.NoError(t, err)
	scheme := &countingScheme{SchemeNetworkClient: evm.NewExactEvmScheme(signer)}
	return x402.Newx402Client().Register("eip155:*", scheme), scheme
}

// server counts every request that reaches it.
type server struct {
	*httptest.Server
	requests atomic.Int32
}

func newServer(t *testing.T, handler http.Handler) *server {
	t.Helper()
	s := &server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func newPaywall(t *testing.T, price string, opts ...paywall.Option) *server {
	t.Helper()
	offer, err := paywall.USDCOffer("eip155:84532", testPayTo, price)
	require.NoError(t, err)
	return newServer(t, paywall.NewRouter(append([]paywall.Option{paywall.WithOffer(offer)}, opts...)...))
}

func get(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

type recordingSink struct {
	mu          sync.Mutex
	transitions []x402.StateTransition
}

func (s *recordingSink) OnTransition(t x402.StateTransition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, t)
}

func (s *recordingSink) states() []x402.FetchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var states []x402.FetchState
	for _, t := range s.transitions {
		states = append(states, t.To)
	}
	return states
}

func TestExecuteFreeResource(t *testing.T) {
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("free"))
	}))
	signers, scheme := newSigners(t)
	sink := &recordingSink{}
	client := x402http.NewClient(signers, x402http.WithTransitionSink(sink))

	result, err := client.Execute(context.Background(), get(t, srv.URL), nil, false)
	require.NoError(t, err)
	defer result.Response.Body.Close()

	assert.Equal(t, x402.StateInitialRequest, result.State)
	assert.Equal(t, http.StatusOK, result.Response.StatusCode)
	body, _ := io.ReadAll(result.Response.Body)
	assert.Equal(t, "free", string(body))
	assert.Zero(t, scheme.calls.Load())
	assert.Equal(t, int32(1), srv.requests.Load())

	require.Len(t, sink.transitions, 1)
	assert.True(t, sink.transitions[0].Final)
}

func TestExecuteSettles(t *testing.T) {
	for _, version := range []int{x402.ProtocolVersionV1, x402.ProtocolVersion} {
		t.Run(x402http.PaymentHeaderName(version), func(t *testing.T) {
			srv := newPaywall(t, "0.01", paywall.WithVersion(version))
			signers, scheme := newSigners(t)
			sink := &recordingSink{}
			client := x402http.NewClient(signers, x402http.WithTransitionSink(sink))

			result, err := client.Execute(context.Background(), get(t, srv.URL+"/paid/report"), big.NewInt(20000), false)
			require.NoError(t, err)
			defer result.Response.Body.Close()

			assert.Equal(t, x402.StateSettled, result.State)
			assert.Equal(t, http.StatusOK, result.Response.StatusCode)
			assert.Equal(t, int32(1), scheme.calls.Load())
			assert.Equal(t, int32(2), srv.requests.Load())

			require.NotNil(t, result.Settlement)
			assert.True(t, result.Settlement.Success)
			assert.Equal(t, testAddress, result.Settlement.Payer)
			assert.Equal(t, x402.Network("eip155:84532"), result.Settlement.Network)

			require.NotNil(t, result.Selected)
			assert.Equal(t, "10000", result.Selected.Amount)
			assert.Equal(t, []x402.FetchState{
				x402.StatePriceChecked,
				x402.StatePaymentRequired,
				x402.StatePaymentCreated,
				x402.StateSettled,
			}, sink.states())
		})
	}
}

func TestExecuteHeaderOnlyDocument(t *testing.T) {
	srv := newPaywall(t, "0.01", paywall.WithHeaderOnly())
	signers, _ := newSigners(t)
	client := x402http.NewClient(signers)

	result, err := client.Execute(context.Background(), get(t, srv.URL+"/paid/x"), nil, false)
	require.NoError(t, err)
	defer result.Response.Body.Close()
	assert.Equal(t, x402.StateSettled, result.State)
}

func TestExecuteRejectedPayment(t *testing.T) {
	srv := newPaywall(t, "0.01", paywall.WithSettler(func(ctx context.Context, payload x402.PaymentPayload, offer paywall.Offer) (x402.SettleResponse, error) {
		return x402.SettleResponse{Success: false, ErrorReason: "insufficient_funds", Network: offer.Network}, nil
	}))
	signers, scheme := newSigners(t)
	client := x402http.NewClient(signers)

	result, err := client.Execute(context.Background(), get(t, srv.URL+"/paid/x"), big.NewInt(20000), false)
	require.NoError(t, err)
	defer result.Response.Body.Close()

	assert.Equal(t, x402.StatePaymentFailed, result.State)
	assert.Equal(t, http.StatusPaymentRequired, result.Response.StatusCode)
	require.NotNil(t, result.Settlement)
	assert.False(t, result.Settlement.Success)
	assert.Equal(t, "insufficient_funds", result.Settlement.ErrorReason)
	assert.Equal(t, int32(1), scheme.calls.Load())
	assert.Equal(t, int32(2), srv.requests.Load(), "a rejected payment is never retried")
}

func TestExecutePriceConfirmation(t *testing.T) {
	srv := newPaywall(t, "0.05")
	signers, scheme := newSigners(t)
	sink := &recordingSink{}
	client := x402http.NewClient(signers, x402http.WithTransitionSink(sink))

	call, err := client.NewCall(get(t, srv.URL+"/paid/x"))
	require.NoError(t, err)

	result, err := call.Execute(context.Background(), big.NewInt(10000), false)
	require.NoError(t, err)
	require.True(t, result.NeedsConfirmation())
	assert.Equal(t, "10000", result.Confirmation.OldCeiling.String())
	assert.Equal(t, "50000", result.Confirmation.NewAmount.String())
	assert.Equal(t, x402.StatePriceChecked, result.State)
	assert.Equal(t, http.StatusPaymentRequired, result.Response.StatusCode)
	assert.Zero(t, scheme.calls.Load())
	assert.Equal(t, int32(1), srv.requests.Load())

	result, err = call.Execute(context.Background(), nil, true)
	require.NoError(t, err)
	defer result.Response.Body.Close()

	assert.Equal(t, x402.StateSettled, result.State)
	assert.Equal(t, int32(1), scheme.calls.Load())
	assert.Equal(t, int32(2), srv.requests.Load(), "resume must not probe again")
	assert.Equal(t, x402.StateSettled, call.State())

	for _, tr := range sink.transitions {
		assert.Equal(t, call.ID(), tr.CallID)
	}
}

func TestExecuteResumeWithRaisedCeiling(t *testing.T) {
	srv := newPaywall(t, "0.05")
	signers, _ := newSigners(t)
	client := x402http.NewClient(signers)

	call, err := client.NewCall(get(t, srv.URL+"/paid/x"))
	require.NoError(t, err)

	result, err := call.Execute(context.Background(), big.NewInt(10000), false)
	require.NoError(t, err)
	require.True(t, result.NeedsConfirmation())

	result, err = call.Execute(context.Background(), big.NewInt(60000), false)
	require.NoError(t, err)
	defer result.Response.Body.Close()
	assert.Equal(t, x402.StateSettled, result.State)
	assert.Equal(t, int32(2), srv.requests.Load())
}

func TestExecuteConfirmedOnlyApprovesSuspendedQuote(t *testing.T) {
	cheap, err := paywall.USDCOffer("eip155:84532", testPayTo, "0.01")
	require.NoError(t, err)
	expensive, err := paywall.USDCOffer("eip155:84532", testPayTo, "1000")
	require.NoError(t, err)
	cheapRouter := paywall.NewRouter(paywall.WithOffer(cheap))
	expensiveRouter := paywall.NewRouter(paywall.WithOffer(expensive))

	var raised atomic.Bool
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raised.Load() {
			expensiveRouter.ServeHTTP(w, r)
			return
		}
		cheapRouter.ServeHTTP(w, r)
	}))
	signers, scheme := newSigners(t)
	client := x402http.NewClient(signers)

	result, err := client.Execute(context.Background(), get(t, srv.URL+"/paid/x"), big.NewInt(5000), false)
	require.NoError(t, err)
	require.True(t, result.NeedsConfirmation())
	assert.Equal(t, "10000", result.Confirmation.NewAmount.String())

	raised.Store(true)

	// a new call was never suspended, so confirmed cannot lift its ceiling
	result, err = client.Execute(context.Background(), get(t, srv.URL+"/paid/x"), big.NewInt(5000), true)
	require.NoError(t, err)
	require.True(t, result.NeedsConfirmation())
	assert.Equal(t, "1000000000", result.Confirmation.NewAmount.String())
	assert.Equal(t, x402.StatePriceChecked, result.State)
	assert.Zero(t, scheme.calls.Load())
	assert.Equal(t, int32(2), srv.requests.Load())
}

func TestExecuteFailureDiscardsConfirmation(t *testing.T) {
	srv := newPaywall(t, "0.05")
	signers := x402.Newx402Client()
	client := x402http.NewClient(signers)

	call, err := client.NewCall(get(t, srv.URL+"/paid/x"))
	require.NoError(t, err)

	result, err := call.Execute(context.Background(), big.NewInt(10000), false)
	require.NoError(t, err)
	require.True(t, result.NeedsConfirmation())

	_, err = call.Execute(context.Background(), nil, true)
	require.True(t, x402.IsKind(err, x402.ErrKindNoSupportedScheme))
	assert.Equal(t, x402.StateError, call.State())

	signer, err := evmsigner.NewClientSignerFromPrivateKey(testPrivateKey)
	require.NoError(t, err)
	scheme := &countingScheme{SchemeNetworkClient: evm.NewExactEvmScheme(signer)}
	signers.Register("eip155:*", scheme)

	result, err = call.Execute(context.Background(), nil, false)
	require.NoError(t, err)
	require.True(t, result.NeedsConfirmation(), "the earlier confirmation ended with the failed attempt")
	assert.Zero(t, scheme.calls.Load())
	assert.Equal(t, int32(2), srv.requests.Load())
}

func TestExecuteValidationFailureDiscardsConfirmation(t *testing.T) {
	offer, err := paywall.USDCOffer("eip155:84532", testPayTo, "0.05")
	require.NoError(t, err)
	router := paywall.NewRouter(paywall.WithOffer(offer))

	var malformed atomic.Bool
	malformed.Store(true)
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if malformed.Load() {
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write([]byte("not json"))
			return
		}
		router.ServeHTTP(w, r)
	}))
	signers, scheme := newSigners(t)
	client := x402http.NewClient(signers)

	call, err := client.NewCall(get(t, srv.URL+"/paid/x"))
	require.NoError(t, err)

	_, err = call.Execute(context.Background(), big.NewInt(10000), true)
	require.True(t, x402.IsKind(err, x402.ErrKindValidation))

	malformed.Store(false)
	result, err := call.Execute(context.Background(), nil, false)
	require.NoError(t, err)
	require.True(t, result.NeedsConfirmation())
	assert.Zero(t, scheme.calls.Load())
}

func TestExecuteCeilingUsesMaxAcrossAccepts(t *testing.T) {
	cheap, err := paywall.USDCOffer("eip155:84532", testPayTo, "0.01")
	require.NoError(t, err)
	expensive, err := paywall.USDCOffer("eip155:8453", testPayTo, "0.05")
	require.NoError(t, err)

	srv := newServer(t, paywall.NewRouter(paywall.WithOffer(cheap), paywall.WithOffer(expensive)))
	signers, scheme := newSigners(t)
	client := x402http.NewClient(signers)

	result, err := client.Execute(context.Background(), get(t, srv.URL+"/paid/x"), big.NewInt(20000), false)
	require.NoError(t, err)
	require.True(t, result.NeedsConfirmation())
	assert.Equal(t, "50000", result.Confirmation.NewAmount.String())
	assert.Zero(t, scheme.calls.Load())
}

func TestExecuteLoopGuard(t *testing.T) {
	srv := newPaywall(t, "0.01")
	signers, scheme := newSigners(t)
	client := x402http.NewClient(signers)

	for _, header := range []string{x402http.HeaderXPayment, x402http.HeaderPaymentSignature} {
		req := get(t, srv.URL+"/paid/x")
		req.Header.Set(header, "eyJ4NDAyVmVyc2lvbiI6Mn0=")

		result, err := client.Execute(context.Background(), req, nil, false)
		assert.Nil(t, result)
		require.Error(t, err)

		var protoErr *x402.ProtocolError
		require.True(t, errors.As(err, &protoErr))
		assert.Equal(t, x402.ErrKindPaymentAlreadyAttempted, protoErr.Kind)
		assert.Equal(t, x402.StatePaymentAlreadyAttempted, protoErr.State)
	}

	assert.Zero(t, srv.requests.Load())
	assert.Zero(t, scheme.calls.Load())
}

func TestExecuteSameCallTwice(t *testing.T) {
	srv := newPaywall(t, "0.01")
	signers, _ := newSigners(t)
	client := x402http.NewClient(signers)

	call, err := client.NewCall(get(t, srv.URL+"/paid/x"))
	require.NoError(t, err)

	result, err := call.Execute(context.Background(), nil, false)
	require.NoError(t, err)
	result.Response.Body.Close()

	_, err = call.Execute(context.Background(), nil, false)
	assert.True(t, x402.IsKind(err, x402.ErrKindPaymentAlreadyAttempted))
	assert.Equal(t, int32(2), srv.requests.Load())
}

func TestExecuteMalformedPaymentRequired(t *testing.T) {
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"x402Version":1,"accepts":[{"scheme":"exact","network":"eip155:8453"}]}`))
	}))
	signers, scheme := newSigners(t)
	client := x402http.NewClient(signers)

	_, err := client.Execute(context.Background(), get(t, srv.URL), nil, false)
	require.Error(t, err)
	assert.True(t, x402.IsKind(err, x402.ErrKindValidation))
	assert.Zero(t, scheme.calls.Load())
	assert.Equal(t, int32(1), srv.requests.Load())
}

func TestExecuteNoSupportedScheme(t *testing.T) {
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"x402Version":2,"accepts":[{"scheme":"exact","network":"solana","asset":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","amount":"100","payTo":"2wKupLR9q6wXYppw8Gr2NvWxKBUqm4PPJKkQfoxHDBg4","maxTimeoutSeconds":60}]}`))
	}))
	signers, _ := newSigners(t)
	client := x402http.NewClient(signers)

	_, err := client.Execute(context.Background(), get(t, srv.URL), nil, false)
	require.Error(t, err)

	var protoErr *x402.ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.Equal(t, x402.ErrKindNoSupportedScheme, protoErr.Kind)
	var payErr *x402.PaymentError
	assert.True(t, errors.As(err, &payErr))
	assert.Equal(t, int32(1), srv.requests.Load())
}

type failingScheme struct {
	err error
}

func (f failingScheme) Scheme() string { return evm.SchemeExact }

func (f failingScheme) CreatePaymentPayload(ctx context.Context, req x402.PaymentRequirements) (x402.PaymentProof, error) {
	return x402.PaymentProof{}, f.err
}

func TestExecuteSigningFailure(t *testing.T) {
	srv := newPaywall(t, "0.01")
	signers := x402.Newx402Client().Register("eip155:*", failingScheme{err: x402.ErrUserRejected})
	sink := &recordingSink{}
	client := x402http.NewClient(signers, x402http.WithTransitionSink(sink))

	_, err := client.Execute(context.Background(), get(t, srv.URL+"/paid/x"), nil, false)
	require.Error(t, err)

	var protoErr *x402.ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.Equal(t, x402.ErrKindSigning, protoErr.Kind)
	assert.False(t, protoErr.Retryable())

	var signErr *x402.SigningError
	require.True(t, errors.As(err, &signErr))
	assert.Equal(t, x402.SigningUserRejected, signErr.Reason)
	assert.True(t, errors.Is(err, x402.ErrUserRejected))

	assert.Equal(t, int32(1), srv.requests.Load(), "no retry after a signing failure")
	states := sink.states()
	assert.Equal(t, x402.StatePaymentFailed, states[len(states)-1])
}

func TestExecuteCancelledWhileSigning(t *testing.T) {
	srv := newPaywall(t, "0.01")
	ctx, cancel := context.WithCancel(context.Background())
	signers := x402.Newx402Client().Register("eip155:*", cancellingScheme{cancel: cancel})
	client := x402http.NewClient(signers)

	req := get(t, srv.URL+"/paid/x")
	_, err := client.Execute(ctx, req, nil, false)
	require.Error(t, err)
	assert.True(t, x402.IsKind(err, x402.ErrKindCancelled))
	assert.Empty(t, req.Header.Get(x402http.HeaderPaymentSignature), "original request untouched")
	assert.Equal(t, int32(1), srv.requests.Load())
}

type cancellingScheme struct {
	cancel context.CancelFunc
}

func (c cancellingScheme) Scheme() string { return evm.SchemeExact }

func (c cancellingScheme) CreatePaymentPayload(ctx context.Context, req x402.PaymentRequirements) (x402.PaymentProof, error) {
	c.cancel()
	return x402.PaymentProof{
		Scheme:  req.Scheme,
		Network: req.Network,
		Kind:    x402.ProofKindEIP3009Signature,
		Payload: map[string]interface{}{"signature": "0x"},
	}, nil
}

func TestExecuteNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	signers, _ := newSigners(t)
	client := x402http.NewClient(signers)

	_, err := client.Execute(context.Background(), get(t, url), nil, false)
	require.Error(t, err)

	var protoErr *x402.ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.Equal(t, x402.ErrKindNetwork, protoErr.Kind)
	assert.Equal(t, x402.StateInitialRequest, protoErr.State)
	assert.True(t, protoErr.Retryable())
}

func TestExecuteReplaysBody(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	offer, err := paywall.USDCOffer("eip155:84532", testPayTo, "0.01")
	require.NoError(t, err)
	router := paywall.NewRouter(paywall.WithOffer(offer))
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		mu.Unlock()
		router.ServeHTTP(w, r)
	}))

	signers, _ := newSigners(t)
	client := x402http.NewClient(signers)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/paid/x", io.NopCloser(strings.NewReader(`{"q":1}`)))
	require.NoError(t, err)
	result, err := client.Execute(context.Background(), req, nil, false)
	require.NoError(t, err)
	defer result.Response.Body.Close()

	assert.Equal(t, x402.StateSettled, result.State)
	assert.Equal(t, []string{`{"q":1}`, `{"q":1}`}, bodies)
}

func TestExecutePaymentHeaderOverride(t *testing.T) {
	var seen string
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Header.Get("X-Custom-Payment"); v != "" {
			seen = v
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"x402Version":2,"accepts":[{"scheme":"exact","network":"eip155:84532","asset":"0x036CbD53842c5426634e7929541eC2318f3dCF7e","amount":"100","payTo":"` + testPayTo + `","maxTimeoutSeconds":60,"extra":{"name":"USDC","version":"2"}}]}`))
	}))
	signers, _ := newSigners(t)
	client := x402http.NewClient(signers, x402http.WithPaymentHeader("X-Custom-Payment"))

	result, err := client.Execute(context.Background(), get(t, srv.URL), nil, false)
	require.NoError(t, err)
	defer result.Response.Body.Close()

	assert.Equal(t, x402.StateSettled, result.State)
	assert.Nil(t, result.Settlement)

	payload, err := x402http.DecodePaymentHeader(seen)
	require.NoError(t, err)
	assert.Equal(t, x402.ProtocolVersion, payload.X402Version)
	assert.JSONEq(t, `{"scheme":"exact","network":"eip155:84532","asset":"0x036CbD53842c5426634e7929541eC2318f3dCF7e","amount":"100","payTo":"`+testPayTo+`","maxTimeoutSeconds":60,"extra":{"name":"USDC","version":"2"}}`, string(payload.Accepted))
}

func TestExecuteConcurrentCalls(t *testing.T) {
	srv := newPaywall(t, "0.01")
	signers, scheme := newSigners(t)
	client := x402http.NewClient(signers)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		req := get(t, srv.URL+"/paid/x")
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := client.Execute(context.Background(), req, nil, false)
			if err != nil {
				errs <- err
				return
			}
			result.Response.Body.Close()
			if result.State != x402.StateSettled {
				errs <- errors.New(result.State.String())
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, int32(n), scheme.calls.Load())
	assert.Equal(t, int32(2*n), srv.requests.Load())
}
