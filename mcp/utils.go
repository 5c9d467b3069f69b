package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	x402 "github.com/x402-foundation/x402fetch"
)

// unmarshalArguments decodes the raw tool arguments into v. Missing
// arguments leave v untouched.
func unmarshalArguments(req *mcpsdk.CallToolRequest, v interface{}) error {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("failed to unmarshal arguments: %w", err)
	}
	return nil
}

// newRequest builds the outgoing HTTP request of a tool call.
func newRequest(ctx context.Context, method, url string, headers map[string]string, body string) (*http.Request, error) {
	if url == "" {
		return nil, errors.New("url is required")
	}
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, reader)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	return req, nil
}

// structuredResult returns v as structured content with a text rendering for
// clients that only read content.
func structuredResult(v interface{}, isError bool) *mcpsdk.CallToolResult {
	text, err := json.Marshal(v)
	if err != nil {
		return errorResult(err)
	}
	return &mcpsdk.CallToolResult{
		Content:           []mcpsdk.Content{&mcpsdk.TextContent{Text: string(text)}},
		StructuredContent: v,
		IsError:           isError,
	}
}

// errorResult reports err inside the tool result. Protocol errors keep their
// kind and the state they failed at.
func errorResult(err error) *mcpsdk.CallToolResult {
	outcome := ErrorOutcome{Error: err.Error()}
	var protoErr *x402.ProtocolError
	if errors.As(err, &protoErr) {
		outcome.Kind = string(protoErr.Kind)
		outcome.State = protoErr.State.String()
		outcome.Retryable = protoErr.Retryable()
	}

	text, _ := json.Marshal(outcome)
	return &mcpsdk.CallToolResult{
		Content:           []mcpsdk.Content{&mcpsdk.TextContent{Text: string(text)}},
		StructuredContent: outcome,
		IsError:           true,
	}
}
