package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	x402 "github.com/x402-foundation/x402fetch"
	"github.com/x402-foundation/x402fetch/logger"
)

// maxPaymentRequiredBody bounds how much of a 402 body is read.
const maxPaymentRequiredBody = 1 << 20

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client runs paid fetches. It is safe for concurrent use; all per-request
// state lives in a Call.
type Client struct {
	x402          *x402.X402Client
	doer          Doer
	log           logger.Logger
	sink          x402.TransitionSink
	paymentHeader string
	now           func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithHTTPClient sets the client used for both the probe and the paid retry.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.doer = client
		}
	}
}

// WithDoer sets the request sender directly.
func WithDoer(doer Doer) ClientOption {
	return func(c *Client) {
		c.doer = doer
	}
}

// WithLogger sets the logger
func WithLogger(log logger.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithTransitionSink sets the sink that receives every FetchState transition.
func WithTransitionSink(sink x402.TransitionSink) ClientOption {
	return func(c *Client) {
		c.sink = sink
	}
}

// WithPaymentHeader forces the proof header name regardless of protocol
// version. An empty name restores the version default.
func WithPaymentHeader(name string) ClientOption {
	return func(c *Client) {
		c.paymentHeader = name
	}
}

// NewClient creates a paid-fetch client around a signer registry
func NewClient(x402Client *x402.X402Client, opts ...ClientOption) *Client {
	c := &Client{
		x402: x402Client,
		doer: http.DefaultClient,
		log:  logger.NoopLogger{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Signers returns the registry the client signs with.
func (c *Client) Signers() *x402.X402Client {
	return c.x402
}

// PriceConfirmation is returned instead of signing when the quoted price
// exceeds the caller's ceiling.
type PriceConfirmation struct {
	// OldCeiling is the ceiling in force when the call was suspended.
	OldCeiling *big.Int
	// NewAmount is the highest amount across the accepted requirements.
	NewAmount       *big.Int
	PaymentRequired *x402.PaymentRequired
}

// Result is the outcome of Call.Execute.
type Result struct {
	// Response is the final response. For a suspended call it is the 402
	// with its body restored.
	Response *http.Response
	// Settlement is nil when the server sent no settlement header.
	Settlement      *x402.SettleResponse
	State           x402.FetchState
	PaymentRequired *x402.PaymentRequired
	Selected        *x402.PaymentRequirements
	Confirmation    *PriceConfirmation
}

// NeedsConfirmation reports whether the call is suspended on a price change.
func (r *Result) NeedsConfirmation() bool {
	return r != nil && r.Confirmation != nil
}

// Call is one logical paid fetch. It owns the buffered request body, the
// cached 402 and the guard that allows a single paid retry. Execute calls are
// serialized.
type Call struct {
	client  *Client
	id      string
	req     *http.Request
	body    []byte
	started time.Time

	mu        sync.Mutex
	state     x402.FetchState
	ceiling   *big.Int
	attempted bool

	// set while suspended on a price confirmation
	required  *x402.PaymentRequired
	maxAmount *big.Int

	// confirmed covers the suspended quote up to approved, never more.
	confirmed bool
	approved  *big.Int
}

// NewCall buffers req's body so the request can be sent twice. The call keeps
// its own copy of req; req itself is never modified.
func (c *Client) NewCall(req *http.Request) (*Call, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}

	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		if req.GetBody != nil {
			var rc io.ReadCloser
			if rc, err = req.GetBody(); err == nil {
				body, err = io.ReadAll(rc)
				rc.Close()
			}
		} else {
			// The caller's body is consumed here; the call sends clones.
			body, err = io.ReadAll(req.Body)
			req.Body.Close()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
	}

	original := req.Clone(req.Context())
	original.Body = nil
	original.GetBody = nil

	return &Call{
		client:  c,
		id:      uuid.NewString(),
		req:     original,
		body:    body,
		started: c.now(),
		state:   x402.StateInitialRequest,
	}, nil
}

// Execute runs the call with an optional price ceiling. A nil ceiling keeps
// the one remembered from a previous Execute, or means no ceiling at all.
func (c *Client) Execute(ctx context.Context, req *http.Request, ceiling *big.Int, confirmed bool) (*Result, error) {
	call, err := c.NewCall(req)
	if err != nil {
		return nil, x402.NewProtocolError(x402.ErrKindNetwork, x402.StateInitialRequest, "", err)
	}
	return call.Execute(ctx, ceiling, confirmed)
}

// Do runs req with no ceiling and returns the final response.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	result, err := c.Execute(ctx, req, nil, false)
	if err != nil {
		return nil, err
	}
	return result.Response, nil
}

// ID returns the call id reported on every transition.
func (call *Call) ID() string {
	return call.id
}

// State returns the last state the call reached.
func (call *Call) State() x402.FetchState {
	call.mu.Lock()
	defer call.mu.Unlock()
	return call.state
}

// Execute drives the call through the payment protocol. It makes at most two
// network requests: the unpaid probe and one paid retry. When the quoted
// price exceeds the ceiling and the call is not confirmed, it returns a
// Result carrying a PriceConfirmation and a nil error; calling Execute again
// with confirmed set, or with a ceiling at least the new amount, resumes from
// the cached 402 without re-probing. confirmed only approves the quote the
// call is suspended on: on a call that is not suspended it has no effect and
// the ceiling still applies.
func (call *Call) Execute(ctx context.Context, ceiling *big.Int, confirmed bool) (*Result, error) {
	call.mu.Lock()
	defer call.mu.Unlock()

	if ceiling != nil {
		call.ceiling = new(big.Int).Set(ceiling)
	}
	if confirmed && call.required != nil {
		call.confirmed = true
		call.approved = new(big.Int).Set(call.maxAmount)
	}

	if call.attempted || HasPaymentHeader(call.req.Header) {
		err := x402.NewProtocolError(
			x402.ErrKindPaymentAlreadyAttempted,
			x402.StatePaymentAlreadyAttempted,
			"payment already attempted for this request",
			nil,
		)
		call.transition(x402.StatePaymentAlreadyAttempted, "", "", err, true)
		return nil, err
	}

	var probe *http.Response
	if call.required == nil {
		resp, err := call.send(ctx, call.newRequest(ctx), x402.StateInitialRequest)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusPaymentRequired {
			call.transition(x402.StateInitialRequest, "", "", nil, true)
			return &Result{Response: resp, State: x402.StateInitialRequest}, nil
		}

		required, err := call.readPaymentRequired(resp)
		if err != nil {
			return nil, call.fail(err)
		}
		maxAmount, err := x402.MaxAmount(required.Accepts)
		if err != nil {
			return nil, call.fail(x402.NewProtocolError(x402.ErrKindValidation, x402.StatePriceChecked, "", err))
		}
		call.required = required
		call.maxAmount = maxAmount
		probe = resp
		call.transition(x402.StatePriceChecked, "", maxAmount.String(), nil, false)
	}

	required := call.required
	if call.exceedsCeiling() {
		call.client.log.Info("x402 price exceeds ceiling", map[string]any{
			"call_id": call.id,
			"ceiling": call.ceiling.String(),
			"amount":  call.maxAmount.String(),
		})
		return &Result{
			Response:        probe,
			State:           x402.StatePriceChecked,
			PaymentRequired: required,
			Confirmation: &PriceConfirmation{
				OldCeiling:      new(big.Int).Set(call.ceiling),
				NewAmount:       new(big.Int).Set(call.maxAmount),
				PaymentRequired: required,
			},
		}, nil
	}

	// From here on the call terminates; the cached 402 is no longer needed.
	call.forget()

	selected, err := call.client.x402.SelectPaymentRequirements(required.Accepts)
	if err != nil {
		return nil, call.fail(x402.NewProtocolError(x402.ErrKindNoSupportedScheme, x402.StatePaymentRequired, "", err))
	}
	call.transition(x402.StatePaymentRequired, selected.Network, selected.Amount, nil, false)

	payload, err := call.client.x402.CreatePaymentPayload(ctx, required, selected)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, call.fail(call.classifySigningError(ctx, err, selected))
	}
	call.transition(x402.StatePaymentCreated, selected.Network, selected.Amount, nil, false)

	headerValue, err := EncodePaymentHeader(payload)
	if err != nil {
		return nil, call.fail(x402.NewProtocolError(x402.ErrKindSigning, x402.StatePaymentCreated, "", err))
	}
	headerName := call.client.paymentHeader
	if headerName == "" {
		headerName = PaymentHeaderName(payload.X402Version)
	}

	paid := call.newRequest(ctx)
	paid.Header.Set(headerName, headerValue)

	call.attempted = true
	resp, err := call.send(ctx, paid, x402.StatePaymentCreated)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Response:        resp,
		PaymentRequired: required,
		Selected:        &selected,
	}

	settlement, err := GetPaymentSettleResponse(resp.Header)
	if err != nil {
		call.client.log.Warn("x402 settlement header unreadable", map[string]any{
			"call_id": call.id,
			"error":   err,
		})
	}
	result.Settlement = settlement

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.State = x402.StateSettled
	} else {
		result.State = x402.StatePaymentFailed
	}
	call.transition(result.State, selected.Network, selected.Amount, nil, true)

	return result, nil
}

// newRequest clones the original request with a fresh body reader.
func (call *Call) newRequest(ctx context.Context) *http.Request {
	req := call.req.Clone(ctx)
	if call.body != nil {
		body := call.body
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		req.ContentLength = int64(len(body))
	}
	return req
}

func (call *Call) send(ctx context.Context, req *http.Request, state x402.FetchState) (*http.Response, error) {
	resp, err := call.client.doer.Do(req)
	if err != nil {
		return nil, call.fail(classifyTransportError(ctx, state, err))
	}
	return resp, nil
}

// readPaymentRequired parses the 402 document, preferring the
// PAYMENT-REQUIRED header over the body. The body is restored on resp.
func (call *Call) readPaymentRequired(resp *http.Response) (*x402.PaymentRequired, error) {
	var body []byte
	if resp.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxPaymentRequiredBody))
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return nil, x402.NewProtocolError(x402.ErrKindNetwork, x402.StateInitialRequest, "failed to read 402 response body", err)
		}
	}

	document := body
	if header := resp.Header.Get(HeaderPaymentRequired); header != "" {
		decoded, err := DecodePaymentRequiredHeader(header)
		if err != nil {
			return nil, x402.NewProtocolError(x402.ErrKindValidation, x402.StatePriceChecked, "invalid "+HeaderPaymentRequired+" header", err)
		}
		document = decoded
	}

	required, err := x402.ParsePaymentRequired(document, 0)
	if err != nil {
		return nil, x402.NewProtocolError(x402.ErrKindValidation, x402.StatePriceChecked, "invalid payment requirements", err)
	}
	return required, nil
}

func (call *Call) classifySigningError(ctx context.Context, err error, selected x402.PaymentRequirements) *x402.ProtocolError {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return x402.NewProtocolError(x402.ErrKindCancelled, x402.StatePaymentRequired, "cancelled while signing", err)
	}

	var payErr *x402.PaymentError
	if errors.As(err, &payErr) && payErr.Code == x402.ErrCodeUnsupportedScheme {
		return x402.NewProtocolError(x402.ErrKindNoSupportedScheme, x402.StatePaymentRequired, "", err)
	}

	return x402.NewProtocolError(
		x402.ErrKindSigning,
		x402.StatePaymentFailed,
		fmt.Sprintf("failed to sign %s payment on %s", selected.Scheme, selected.Network),
		err,
	)
}

func classifyTransportError(ctx context.Context, state x402.FetchState, err error) *x402.ProtocolError {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return x402.NewProtocolError(x402.ErrKindCancelled, state, "", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return x402.NewProtocolError(x402.ErrKindCancelled, state, "request timed out", err)
	}
	return x402.NewProtocolError(x402.ErrKindNetwork, state, "", err)
}

// fail records a terminal transition for err and returns it. A failed
// signature ends in PaymentFailed, everything else in Error.
func (call *Call) fail(err error) error {
	to := x402.StateError
	var protoErr *x402.ProtocolError
	if errors.As(err, &protoErr) && protoErr.Kind == x402.ErrKindSigning {
		to = x402.StatePaymentFailed
	}
	call.forget()
	call.transition(to, "", "", err, true)
	return err
}

// exceedsCeiling reports whether the cached quote needs confirmation.
func (call *Call) exceedsCeiling() bool {
	if call.ceiling == nil || call.maxAmount.Cmp(call.ceiling) <= 0 {
		return false
	}
	return !call.confirmed || call.maxAmount.Cmp(call.approved) > 0
}

// forget drops the cached 402 and any confirmation given for it, so a later
// Execute on this call starts unconfirmed.
func (call *Call) forget() {
	call.required = nil
	call.maxAmount = nil
	call.confirmed = false
	call.approved = nil
}

func (call *Call) transition(to x402.FetchState, network x402.Network, amount string, err error, final bool) {
	from := call.state
	call.state = to

	sink := call.client.sink
	if sink == nil {
		return
	}
	now := call.client.now()
	sink.OnTransition(x402.StateTransition{
		CallID:  call.id,
		URL:     call.req.URL.String(),
		From:    from,
		To:      to,
		Network: network,
		Amount:  amount,
		Err:     err,
		At:      now,
		Elapsed: now.Sub(call.started),
		Final:   final,
	})
}
