package x402

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/x402-foundation/x402fetch/types"
)

// X402Client manages payment mechanisms and creates payment payloads
// This is used by applications that need to make payments (have wallets/signers)
type X402Client struct {
	mu sync.RWMutex

	// network pattern -> scheme -> client implementation
	schemes map[Network]map[string]SchemeNetworkClient

	// Function to select payment requirements when multiple options exist
	requirementsSelector PaymentRequirementsSelector
}

// PaymentRequirementsSelector chooses which payment option to use among the
// ones a registered mechanism supports. supported is never empty.
type PaymentRequirementsSelector func(supported []PaymentRequirements) PaymentRequirements

// ClientOption configures the client
type ClientOption func(*X402Client)

// WithPaymentSelector sets a custom payment requirements selector
func WithPaymentSelector(selector PaymentRequirementsSelector) ClientOption {
	return func(c *X402Client) {
		c.requirementsSelector = selector
	}
}

// WithScheme registers a payment mechanism at creation time
func WithScheme(network Network, client SchemeNetworkClient) ClientOption {
	return func(c *X402Client) {
		c.Register(network, client)
	}
}

// Newx402Client creates a new x402 client
func Newx402Client(opts ...ClientOption) *X402Client {
	c := &X402Client{
		schemes:              make(map[Network]map[string]SchemeNetworkClient),
		requirementsSelector: defaultPaymentSelector,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// defaultPaymentSelector chooses the first available payment option
func defaultPaymentSelector(supported []PaymentRequirements) PaymentRequirements {
	return supported[0]
}

// Register registers a payment mechanism for a network or network pattern
// such as "eip155:*".
func (c *X402Client) Register(network Network, client SchemeNetworkClient) *X402Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schemes[network] == nil {
		c.schemes[network] = make(map[string]SchemeNetworkClient)
	}
	c.schemes[network][client.Scheme()] = client

	return c
}

// Supports reports whether a registered mechanism can pay req.
func (c *X402Client) Supports(req PaymentRequirements) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := findByNetworkAndScheme(c.schemes, req.Scheme, req.Network)
	return ok
}

// SelectPaymentRequirements chooses which payment requirements to use
// This filters requirements to only those the client can fulfill
func (c *X402Client) SelectPaymentRequirements(requirements []PaymentRequirements) (PaymentRequirements, error) {
	var supported []PaymentRequirements
	for _, req := range requirements {
		if c.Supports(req) {
			supported = append(supported, req)
		}
	}

	if len(supported) == 0 {
		offered := make([]string, 0, len(requirements))
		for _, req := range requirements {
			offered = append(offered, req.Scheme+"@"+string(req.Network))
		}
		return PaymentRequirements{}, NewPaymentError(
			ErrCodeUnsupportedScheme,
			"no supported payment schemes available",
			map[string]interface{}{"offered": offered},
		)
	}

	c.mu.RLock()
	selector := c.requirementsSelector
	c.mu.RUnlock()

	return selector(supported), nil
}

// CanPay checks if the client can pay with any of the given requirements
func (c *X402Client) CanPay(requirements []PaymentRequirements) bool {
	_, err := c.SelectPaymentRequirements(requirements)
	return err == nil
}

// CreatePaymentProof asks the mechanism registered for requirements to sign.
// Mechanism failures are returned as *SigningError.
func (c *X402Client) CreatePaymentProof(ctx context.Context, requirements PaymentRequirements) (PaymentProof, error) {
	if err := ValidatePaymentRequirements(requirements); err != nil {
		return PaymentProof{}, NewPaymentError(ErrCodeInvalidRequirements, err.Error(), nil)
	}

	c.mu.RLock()
	client, ok := findByNetworkAndScheme(c.schemes, requirements.Scheme, requirements.Network)
	c.mu.RUnlock()
	if !ok {
		return PaymentProof{}, NewPaymentError(
			ErrCodeUnsupportedScheme,
			fmt.Sprintf("no client registered for scheme %s on network %s", requirements.Scheme, requirements.Network),
			nil,
		)
	}

	proof, err := client.CreatePaymentPayload(ctx, requirements)
	if err != nil {
		return PaymentProof{}, NewSigningError(requirements.Network, err)
	}
	if err := ValidatePaymentProof(proof); err != nil {
		return PaymentProof{}, NewSigningError(requirements.Network, fmt.Errorf("invalid payment proof created: %w", err))
	}

	return proof, nil
}

// CreatePaymentPayload signs the selected requirement and wraps the proof in
// the envelope of the 402 document's protocol version.
func (c *X402Client) CreatePaymentPayload(ctx context.Context, required *PaymentRequired, selected PaymentRequirements) (PaymentPayload, error) {
	proof, err := c.CreatePaymentProof(ctx, selected)
	if err != nil {
		return PaymentPayload{}, err
	}
	return BuildPaymentPayload(required, selected, proof)
}

// BuildPaymentPayload wraps a proof in the version specific envelope.
// V1 echoes scheme and network at the top level exactly as the server spelled
// them. V2 echoes the accepted requirement verbatim plus resource and extensions.
func BuildPaymentPayload(required *PaymentRequired, selected PaymentRequirements, proof PaymentProof) (PaymentPayload, error) {
	if required.X402Version == ProtocolVersionV1 {
		network := selected.WireNetwork
		if network == "" {
			name, ok := types.V1NetworkName(string(selected.Network))
			if !ok {
				return PaymentPayload{}, NewPaymentError(ErrCodeUnsupportedNetwork, "no v1 name for network "+string(selected.Network), nil)
			}
			network = name
		}
		return PaymentPayload{
			X402Version: ProtocolVersionV1,
			Scheme:      selected.Scheme,
			Network:     network,
			Payload:     proof.Payload,
		}, nil
	}

	accepted := selected.Raw
	if len(accepted) == 0 {
		encoded, err := json.Marshal(selected)
		if err != nil {
			return PaymentPayload{}, fmt.Errorf("failed to encode accepted requirements: %w", err)
		}
		accepted = encoded
	}

	return PaymentPayload{
		X402Version: ProtocolVersion,
		Payload:     proof.Payload,
		Accepted:    accepted,
		Resource:    required.Resource,
		Extensions:  required.Extensions,
	}, nil
}

// RegisteredScheme is one network pattern / scheme pair known to the client
type RegisteredScheme struct {
	Network Network
	Scheme  string
}

// GetRegisteredSchemes returns the registered schemes sorted by network, for debugging
func (c *X402Client) GetRegisteredSchemes() []RegisteredScheme {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []RegisteredScheme
	for network, schemes := range c.schemes {
		for scheme := range schemes {
			result = append(result, RegisteredScheme{Network: network, Scheme: scheme})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Network != result[j].Network {
			return result[i].Network < result[j].Network
		}
		return result[i].Scheme < result[j].Scheme
	})
	return result
}
