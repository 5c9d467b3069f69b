// Package paywall is a gin middleware that answers 402 Payment Required for
// protected routes. It speaks either protocol version and is used for local
// development and as the server side of client tests.
package paywall

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	x402 "github.com/x402-foundation/x402fetch"
	x402http "github.com/x402-foundation/x402fetch/http"
	"github.com/x402-foundation/x402fetch/logger"
	"github.com/x402-foundation/x402fetch/types"
)

// exposedHeaders lets browser clients read the x402 headers cross-origin.
var exposedHeaders = strings.Join([]string{
	x402http.HeaderPaymentRequired,
	x402http.HeaderPaymentResponse,
	x402http.HeaderXPaymentResponse,
}, ", ")

// Options is the configuration of the Middleware.
type Options struct {
	Version           int
	Offers            []Offer
	Description       string
	MimeType          string
	Resource          string
	ResourceRootURL   string
	CustomPaywallHTML string
	// HeaderOnly sends the v2 402 document in the PAYMENT-REQUIRED header
	// only, with an empty JSON body.
	HeaderOnly bool
	Settler    Settler
	// SettlementTTL is how long a settled proof is answered from cache
	SettlementTTL time.Duration
	Logger        logger.Logger
}

// Option configures the Middleware.
type Option func(*Options)

// WithVersion selects the protocol version, 1 or 2.
func WithVersion(version int) Option {
	return func(o *Options) {
		o.Version = version
	}
}

// WithOffer adds an accepted way to pay. Offers are listed in order.
func WithOffer(offer Offer) Option {
	return func(o *Options) {
		o.Offers = append(o.Offers, offer)
	}
}

// WithDescription sets the resource description.
func WithDescription(description string) Option {
	return func(o *Options) {
		o.Description = description
	}
}

// WithMimeType sets the resource mime type.
func WithMimeType(mimeType string) Option {
	return func(o *Options) {
		o.MimeType = mimeType
	}
}

// WithResource sets the resource URL explicitly.
func WithResource(resource string) Option {
	return func(o *Options) {
		o.Resource = resource
	}
}

// WithResourceRootURL prefixes the request path to build the resource URL.
func WithResourceRootURL(rootURL string) Option {
	return func(o *Options) {
		o.ResourceRootURL = rootURL
	}
}

// WithCustomPaywallHTML sets the page shown to browsers.
func WithCustomPaywallHTML(html string) Option {
	return func(o *Options) {
		o.CustomPaywallHTML = html
	}
}

// WithHeaderOnly moves the v2 402 document out of the body.
func WithHeaderOnly() Option {
	return func(o *Options) {
		o.HeaderOnly = true
	}
}

// WithSettler sets the settlement backend. The default is DevSettler.
// Settlements are made idempotent per proof.
func WithSettler(settler Settler) Option {
	return func(o *Options) {
		o.Settler = settler
	}
}

// WithSettlementTTL sets how long a replayed proof gets its original
// settlement back.
func WithSettlementTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.SettlementTTL = ttl
	}
}

// WithLogger sets the logger
func WithLogger(log logger.Logger) Option {
	return func(o *Options) {
		o.Logger = log
	}
}

// Middleware protects the routes it is attached to. Requests without a valid
// proof get a 402 listing the configured offers; a proof matching one of them
// is settled, the handler runs, and its response carries the settlement
// header.
func Middleware(opts ...Option) gin.HandlerFunc {
	options := &Options{
		Version: x402.ProtocolVersion,
		Settler: DevSettler,
		Logger:  logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(options)
	}
	settle := Idempotent(options.Settler, options.SettlementTTL)

	return func(c *gin.Context) {
		c.Header("Access-Control-Expose-Headers", exposedHeaders)

		resource := options.Resource
		if resource == "" {
			resource = options.ResourceRootURL + c.Request.URL.Path
		}

		doc, err := buildDocument(options, resource)
		if err != nil {
			options.Logger.Error("paywall misconfigured", map[string]any{"error": err})
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       err.Error(),
				"x402Version": options.Version,
			})
			return
		}

		headerName := x402http.PaymentHeaderName(options.Version)
		header := c.GetHeader(headerName)
		if header == "" {
			if isWebBrowser(c) {
				html := options.CustomPaywallHTML
				if html == "" {
					html = defaultPaywallHTML
				}
				c.Abort()
				c.Data(http.StatusPaymentRequired, "text/html; charset=utf-8", []byte(html))
				return
			}
			paymentRequired(c, options, doc, headerName+" header is required")
			return
		}

		payload, err := x402http.DecodePaymentHeader(header)
		if err != nil {
			paymentRequired(c, options, doc, err.Error())
			return
		}

		offer, ok := doc.match(payload)
		if !ok {
			paymentRequired(c, options, doc, "payment does not match any accepted requirements")
			return
		}

		settlement, err := settle(c.Request.Context(), payload, offer)
		if err != nil {
			options.Logger.Warn("paywall settlement failed", map[string]any{"error": err, "network": string(offer.Network)})
			paymentRequired(c, options, doc, err.Error())
			return
		}
		settlementHeader, err := x402http.EncodePaymentResponseHeader(settlement)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !settlement.Success {
			c.Header(settlementHeaderName(options.Version), settlementHeader)
			paymentRequired(c, options, doc, settlement.ErrorReason)
			return
		}

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
			statusCode:     http.StatusOK,
		}
		c.Writer = writer

		c.Next()

		c.Writer = writer.ResponseWriter
		if c.IsAborted() {
			return
		}

		options.Logger.Info("paywall payment settled", map[string]any{
			"network":     string(offer.Network),
			"amount":      offer.Amount,
			"transaction": settlement.Transaction,
		})
		c.Header(settlementHeaderName(options.Version), settlementHeader)
		c.Writer.WriteHeader(writer.statusCode)
		c.Writer.Write(writer.body.Bytes())
	}
}

func settlementHeaderName(version int) string {
	if version == x402.ProtocolVersionV1 {
		return x402http.HeaderXPaymentResponse
	}
	return x402http.HeaderPaymentResponse
}

func isWebBrowser(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/html") &&
		strings.Contains(c.GetHeader("User-Agent"), "Mozilla")
}

// document is the 402 response for one request, with the wire form of every
// offer kept for matching the echoed requirement.
type document struct {
	version int
	offers  []Offer
	wire    [][]byte
	v1      []types.PaymentRequirementsV1
	v2      []types.PaymentRequirementsV2
	info    *types.ResourceInfoV2
}

func buildDocument(options *Options, resource string) (*document, error) {
	if len(options.Offers) == 0 {
		return nil, fmt.Errorf("no offers configured")
	}

	doc := &document{version: options.Version, offers: options.Offers}
	for _, offer := range options.Offers {
		var wire interface{}
		switch options.Version {
		case x402.ProtocolVersionV1:
			req, err := offer.v1(options, resource)
			if err != nil {
				return nil, err
			}
			doc.v1 = append(doc.v1, req)
			wire = req
		case x402.ProtocolVersion:
			req := offer.v2()
			doc.v2 = append(doc.v2, req)
			wire = req
		default:
			return nil, fmt.Errorf("unsupported x402 version: %d", options.Version)
		}

		data, err := canonicalJSON(wire)
		if err != nil {
			return nil, err
		}
		doc.wire = append(doc.wire, data)
	}

	doc.info = &types.ResourceInfoV2{
		URL:         resource,
		Description: options.Description,
		MimeType:    options.MimeType,
	}
	return doc, nil
}

func (d *document) body(reason string) interface{} {
	if d.version == x402.ProtocolVersionV1 {
		return types.PaymentRequiredV1{
			X402Version: x402.ProtocolVersionV1,
			Error:       reason,
			Accepts:     d.v1,
		}
	}
	return types.PaymentRequiredV2{
		X402Version: x402.ProtocolVersion,
		Error:       reason,
		Resource:    d.info,
		Accepts:     d.v2,
	}
}

// match finds the offer a proof pays for. V1 proofs name scheme and network;
// v2 proofs must echo an offered requirement exactly.
func (d *document) match(payload x402.PaymentPayload) (Offer, bool) {
	if payload.X402Version != d.version {
		return Offer{}, false
	}

	if d.version == x402.ProtocolVersionV1 {
		for i, req := range d.v1 {
			if req.Scheme == payload.Scheme && req.Network == payload.Network {
				return d.offers[i], true
			}
		}
		return Offer{}, false
	}

	var accepted interface{}
	if err := json.Unmarshal(payload.Accepted, &accepted); err != nil {
		return Offer{}, false
	}
	echoed, err := canonicalJSON(accepted)
	if err != nil {
		return Offer{}, false
	}
	for i, wire := range d.wire {
		if bytes.Equal(wire, echoed) {
			return d.offers[i], true
		}
	}
	return Offer{}, false
}

func paymentRequired(c *gin.Context, options *Options, doc *document, reason string) {
	body := doc.body(reason)
	if options.Version != x402.ProtocolVersionV1 {
		data, err := json.Marshal(body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header(x402http.HeaderPaymentRequired, x402http.EncodePaymentRequiredHeader(data))
		if options.HeaderOnly {
			body = gin.H{}
		}
	}
	c.AbortWithStatusJSON(http.StatusPaymentRequired, body)
}

// canonicalJSON round-trips v through a generic value so that key order and
// number formatting do not affect comparison.
func canonicalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// responseWriter holds the handler's response until settlement is known
type responseWriter struct {
	gin.ResponseWriter
	body       *bytes.Buffer
	statusCode int
	written    bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.WriteString(s)
}

const defaultPaywallHTML = "<html><body>Payment Required</body></html>"
