package http

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	x402 "github.com/x402-foundation/x402fetch"
)

// Header names of the x402 wire contract
const (
	HeaderPaymentSignature = "PAYMENT-SIGNATURE"  // v2 proof
	HeaderXPayment         = "X-PAYMENT"          // v1 proof
	HeaderPaymentRequired  = "PAYMENT-REQUIRED"   // v2 402 document
	HeaderPaymentResponse  = "PAYMENT-RESPONSE"   // v2 settlement
	HeaderXPaymentResponse = "X-PAYMENT-RESPONSE" // v1 settlement
)

// PaymentHeaderName returns the proof header for a protocol version.
func PaymentHeaderName(version int) string {
	if version == x402.ProtocolVersionV1 {
		return HeaderXPayment
	}
	return HeaderPaymentSignature
}

// HasPaymentHeader reports whether h already carries a payment proof.
func HasPaymentHeader(h http.Header) bool {
	return len(h.Values(HeaderPaymentSignature)) > 0 || len(h.Values(HeaderXPayment)) > 0
}

// EncodePaymentHeader encodes a payment envelope as base64 JSON
func EncodePaymentHeader(payload x402.PaymentPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentHeader decodes a base64 payment header
func DecodePaymentHeader(header string) (x402.PaymentPayload, error) {
	data, err := decodeBase64(header)
	if err != nil {
		return x402.PaymentPayload{}, err
	}

	var payload x402.PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return x402.PaymentPayload{}, fmt.Errorf("invalid payment payload JSON: %w", err)
	}
	if payload.X402Version < x402.ProtocolVersionV1 {
		return x402.PaymentPayload{}, fmt.Errorf("invalid x402Version: %d", payload.X402Version)
	}
	if len(payload.Payload) == 0 {
		return x402.PaymentPayload{}, fmt.Errorf("missing required field: payload")
	}

	return payload, nil
}

// EncodePaymentRequiredHeader base64 encodes a raw 402 document for the
// PAYMENT-REQUIRED header.
func EncodePaymentRequiredHeader(document []byte) string {
	return base64.StdEncoding.EncodeToString(document)
}

// DecodePaymentRequiredHeader returns the raw JSON document carried in a
// PAYMENT-REQUIRED header. Parse it with x402.ParsePaymentRequired.
func DecodePaymentRequiredHeader(header string) ([]byte, error) {
	data, err := decodeBase64(header)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid payment required JSON")
	}
	return data, nil
}

// EncodePaymentResponseHeader encodes a settlement response as base64
func EncodePaymentResponseHeader(response x402.SettleResponse) (string, error) {
	data, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settle response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentResponseHeader decodes a base64 settlement header
func DecodePaymentResponseHeader(header string) (*x402.SettleResponse, error) {
	data, err := decodeBase64(header)
	if err != nil {
		return nil, err
	}

	var response x402.SettleResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("invalid settle response JSON: %w", err)
	}

	return &response, nil
}

// GetPaymentSettleResponse extracts the settlement from response headers,
// preferring the v2 header. It returns nil, nil when neither is present.
func GetPaymentSettleResponse(h http.Header) (*x402.SettleResponse, error) {
	if header := h.Get(HeaderPaymentResponse); header != "" {
		return DecodePaymentResponseHeader(header)
	}
	if header := h.Get(HeaderXPaymentResponse); header != "" {
		return DecodePaymentResponseHeader(header)
	}
	return nil, nil
}

// Servers disagree on padding, so both forms are accepted.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("header is empty")
	}
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	data, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	return data, nil
}
