package mcp

import (
	"encoding/json"

	x402 "github.com/x402-foundation/x402fetch"
)

// Tool names and protocol constants.
const (
	ToolFetchPaidResource = "fetch_paid_resource"
	ToolCheckPrice        = "check_price"

	// PaymentResponseMetaKey is the result _meta key holding the settlement
	PaymentResponseMetaKey = "x402/payment-response"
)

// FetchArgs are the arguments of fetch_paid_resource.
type FetchArgs struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	// MaxAmount is the ceiling in the asset's smallest unit. Empty means the
	// server default.
	MaxAmount string `json:"max_amount,omitempty"`
	// Confirmed approves a price quoted in an earlier confirmation. It needs
	// MaxAmount set to that quote's newAmount and never pays above it.
	Confirmed bool `json:"confirmed,omitempty"`
}

// PriceArgs are the arguments of check_price.
type PriceArgs struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// FetchOutcome is the structured content of a fetch_paid_resource result.
type FetchOutcome struct {
	Status      int    `json:"status"`
	State       string `json:"state"`
	ContentType string `json:"contentType,omitempty"`
	// Exactly one of JSON, Text and Data is set, by content type. Data is
	// base64 on the wire.
	JSON         interface{}          `json:"json,omitempty"`
	Text         string               `json:"text,omitempty"`
	Data         []byte               `json:"data,omitempty"`
	Settlement   *x402.SettleResponse `json:"settlement,omitempty"`
	Confirmation *ConfirmationOutcome `json:"confirmation,omitempty"`
}

// ConfirmationOutcome describes a fetch suspended on its price.
type ConfirmationOutcome struct {
	OldCeiling string                     `json:"oldCeiling"`
	NewAmount  string                     `json:"newAmount"`
	Accepts    []x402.PaymentRequirements `json:"accepts"`
}

// PriceOutcome is the structured content of a check_price result.
type PriceOutcome struct {
	URL    string `json:"url"`
	Paid   bool   `json:"paid"`
	Amount string `json:"amount,omitempty"`
}

// ErrorOutcome is the structured content of a failed tool call.
type ErrorOutcome struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	State     string `json:"state,omitempty"`
	Retryable bool   `json:"retryable"`
}

var fetchInputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"url": {"type": "string", "description": "Resource URL"},
		"method": {"type": "string", "description": "HTTP method, GET by default"},
		"headers": {"type": "object", "additionalProperties": {"type": "string"}},
		"body": {"type": "string", "description": "Request body"},
		"max_amount": {"type": "string", "description": "Most the call may pay, in the asset's smallest unit"},
		"confirmed": {"type": "boolean", "description": "Approve a quoted price; requires max_amount set to the quote's newAmount"}
	},
	"required": ["url"]
}`)

var priceInputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"url": {"type": "string", "description": "Resource URL"},
		"method": {"type": "string", "description": "HTTP method, GET by default"},
		"headers": {"type": "object", "additionalProperties": {"type": "string"}}
	},
	"required": ["url"]
}`)
