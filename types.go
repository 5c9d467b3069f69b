package x402

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// ProtocolVersion is the current x402 protocol version
	ProtocolVersion = 2
	// ProtocolVersionV1 is the legacy protocol version
	ProtocolVersionV1 = 1
)

// Network represents a normalized blockchain network identifier.
// EVM networks use the CAIP-2 form "eip155:<chainId>"; Solana networks use
// the cluster tags "solana" and "solana-devnet".
type Network string

const (
	NetworkSolana       Network = "solana"
	NetworkSolanaDevnet Network = "solana-devnet"
)

// Parse splits the network into namespace and reference components
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.Split(string(n), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid network format: %s", n)
	}
	return parts[0], parts[1], nil
}

// IsEVM reports whether the network is an EIP-155 chain
func (n Network) IsEVM() bool {
	return strings.HasPrefix(string(n), "eip155:")
}

// IsSolana reports whether the network is a Solana cluster tag
func (n Network) IsSolana() bool {
	return n == NetworkSolana || n == NetworkSolanaDevnet
}

// Match checks if this network matches a pattern (supports wildcards)
// e.g., "eip155:1" matches "eip155:*" and "eip155:*" matches "eip155:1"
func (n Network) Match(pattern Network) bool {
	if n == pattern {
		return true
	}

	nStr := string(n)
	patternStr := string(pattern)

	if strings.HasSuffix(patternStr, ":*") {
		prefix := strings.TrimSuffix(patternStr, "*")
		return strings.HasPrefix(nStr, prefix)
	}

	if strings.HasSuffix(nStr, ":*") {
		prefix := strings.TrimSuffix(nStr, "*")
		return strings.HasPrefix(patternStr, prefix)
	}

	return false
}

// PaymentRequirements is one accepted way to pay for a resource, normalized
// from either wire version.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Extra             map[string]interface{} `json:"extra,omitempty"`

	// OutputSchema is the v1 per-entry output schema sidecar, if any.
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`

	// WireNetwork is the network string exactly as the server sent it.
	WireNetwork string `json:"-"`
	// Raw is the requirement object exactly as the server sent it.
	Raw json.RawMessage `json:"-"`
}

// ResourceInfo describes the resource being accessed
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentRequired is a normalized 402 document
type PaymentRequired struct {
	X402Version int                    `json:"x402Version"`
	Error       string                 `json:"error,omitempty"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Accepts     []PaymentRequirements  `json:"accepts"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// ProofKind tags the shape of a payment proof payload
type ProofKind string

const (
	// ProofKindEIP3009Signature is a detached EIP-712 signature over a
	// TransferWithAuthorization message.
	ProofKindEIP3009Signature ProofKind = "eip3009-signature"
	// ProofKindSvmTransaction is a partially signed, serialized Solana transaction.
	ProofKindSvmTransaction ProofKind = "svm-transaction"
)

// PaymentProof is the scheme-specific artifact a SchemeNetworkClient produces
// for exactly one PaymentRequirements.
type PaymentProof struct {
	Scheme  string                 `json:"scheme"`
	Network Network                `json:"network"`
	Kind    ProofKind              `json:"kind"`
	Payload map[string]interface{} `json:"payload"`
}

// PaymentPayload is the envelope sent in the payment header.
// V1 carries scheme and network at the top level, V2 echoes the accepted requirement.
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
	Accepted    json.RawMessage        `json:"accepted,omitempty"` // V2
	Scheme      string                 `json:"scheme,omitempty"`   // V1
	Network     string                 `json:"network,omitempty"`  // V1
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// SettleResponse is the settlement confirmation returned by the server's facilitator
type SettleResponse struct {
	Success     bool    `json:"success"`
	ErrorReason string  `json:"errorReason,omitempty"`
	Payer       string  `json:"payer,omitempty"`
	Transaction string  `json:"transaction"`
	Network     Network `json:"network,omitempty"`
}
