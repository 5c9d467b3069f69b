package mcp

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	x402 "github.com/x402-foundation/x402fetch"
	x402http "github.com/x402-foundation/x402fetch/http"
	"github.com/x402-foundation/x402fetch/logger"
)

// ServerName is the implementation name announced to MCP clients.
const ServerName = "x402fetch"

// ToolServer serves the x402 fetch tools over a paying HTTP client.
type ToolServer struct {
	client  *x402http.Client
	log     logger.Logger
	ceiling *big.Int
	version string
}

// ServerOption configures a ToolServer.
type ServerOption func(*ToolServer)

// WithLogger sets the logger
func WithLogger(log logger.Logger) ServerOption {
	return func(s *ToolServer) {
		if log != nil {
			s.log = log
		}
	}
}

// WithDefaultCeiling sets the ceiling used when a tool call names none.
// A nil ceiling lets such calls pay any price.
func WithDefaultCeiling(ceiling *big.Int) ServerOption {
	return func(s *ToolServer) {
		if ceiling != nil {
			s.ceiling = new(big.Int).Set(ceiling)
		}
	}
}

// WithVersion sets the implementation version announced to clients.
func WithVersion(version string) ServerOption {
	return func(s *ToolServer) {
		s.version = version
	}
}

// NewToolServer creates the tool handlers without registering them.
func NewToolServer(client *x402http.Client, opts ...ServerOption) *ToolServer {
	s := &ToolServer{
		client:  client,
		log:     logger.NoopLogger{},
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServer returns an MCP server with the x402 tools registered.
func NewServer(client *x402http.Client, opts ...ServerOption) *mcpsdk.Server {
	tools := NewToolServer(client, opts...)
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: ServerName, Version: tools.version}, nil)
	tools.Register(server)
	return server
}

// Register adds the tools to an existing MCP server.
func (s *ToolServer) Register(server *mcpsdk.Server) {
	server.AddTool(&mcpsdk.Tool{
		Name:        ToolFetchPaidResource,
		Description: "Fetch a URL, paying with x402 when the server answers 402 Payment Required. Prices above max_amount are returned for confirmation instead of paid; to approve one, call again with max_amount set to its newAmount.",
		InputSchema: fetchInputSchema,
	}, s.Fetch)

	server.AddTool(&mcpsdk.Tool{
		Name:        ToolCheckPrice,
		Description: "Report the price of an x402 resource without paying for it.",
		InputSchema: priceInputSchema,
	}, s.CheckPrice)
}

// Fetch handles fetch_paid_resource. Failures are reported in the result,
// never as a JSON-RPC error.
func (s *ToolServer) Fetch(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	var args FetchArgs
	if err := unmarshalArguments(req, &args); err != nil {
		return errorResult(err), nil
	}

	if args.Confirmed && args.MaxAmount == "" {
		return errorResult(errors.New("confirmed requires max_amount set to the approved newAmount")), nil
	}
	ceiling, err := s.ceilingFor(args.MaxAmount)
	if err != nil {
		return errorResult(err), nil
	}
	httpReq, err := newRequest(ctx, args.Method, args.URL, args.Headers, args.Body)
	if err != nil {
		return errorResult(err), nil
	}

	// Every tool call is a fresh Call, so the approval travels as the ceiling.
	// A price that rose since the quote is returned for confirmation again.
	result, err := s.client.Execute(ctx, httpReq, ceiling, false)
	if err != nil {
		s.log.Warn("mcp fetch failed", map[string]any{"url": args.URL, "error": err})
		return errorResult(err), nil
	}

	outcome := FetchOutcome{
		State:      result.State.String(),
		Settlement: result.Settlement,
	}

	if result.NeedsConfirmation() {
		if result.Response != nil {
			result.Response.Body.Close()
		}
		outcome.Status = http.StatusPaymentRequired
		confirmation := result.Confirmation
		outcome.Confirmation = &ConfirmationOutcome{
			OldCeiling: confirmation.OldCeiling.String(),
			NewAmount:  confirmation.NewAmount.String(),
			Accepts:    confirmation.PaymentRequired.Accepts,
		}
		s.log.Info("mcp fetch awaiting confirmation", map[string]any{
			"url":         args.URL,
			"ceiling":     outcome.Confirmation.OldCeiling,
			"amount":      outcome.Confirmation.NewAmount,
			"call_state":  outcome.State,
			"http_status": outcome.Status,
		})
		return structuredResult(outcome, false), nil
	}

	outcome.Status = result.Response.StatusCode
	body, err := x402http.Decode(result.Response)
	if err != nil {
		return errorResult(err), nil
	}
	outcome.ContentType = body.MIMEType
	switch body.Kind {
	case x402http.BodyJSON:
		outcome.JSON = body.JSON
	case x402http.BodyText:
		outcome.Text = body.Text
	default:
		outcome.Data = body.Data
	}

	toolResult := structuredResult(outcome, outcome.Status >= 400)
	if result.Settlement != nil {
		toolResult.Meta = mcpsdk.Meta{PaymentResponseMetaKey: result.Settlement}
	}
	return toolResult, nil
}

// CheckPrice handles check_price.
func (s *ToolServer) CheckPrice(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	var args PriceArgs
	if err := unmarshalArguments(req, &args); err != nil {
		return errorResult(err), nil
	}
	httpReq, err := newRequest(ctx, args.Method, args.URL, args.Headers, "")
	if err != nil {
		return errorResult(err), nil
	}

	outcome := PriceOutcome{URL: args.URL}
	if amount, ok := s.client.CheckPrice(ctx, httpReq); ok {
		outcome.Paid = true
		outcome.Amount = amount.String()
	}
	return structuredResult(outcome, false), nil
}

func (s *ToolServer) ceilingFor(maxAmount string) (*big.Int, error) {
	if maxAmount == "" {
		return s.ceiling, nil
	}
	ceiling, err := x402.ParseAmount(maxAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid max_amount: %w", err)
	}
	return ceiling, nil
}
