package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	x402 "github.com/x402-foundation/x402fetch"
)

// ExactEvmScheme implements x402.SchemeNetworkClient for EVM exact payments.
// It signs an EIP-3009 TransferWithAuthorization over the requirement's
// asset; the facilitator submits it on chain.
type ExactEvmScheme struct {
	signer ClientEvmSigner
	now    func() time.Time
}

// NewExactEvmScheme creates a new ExactEvmScheme
func NewExactEvmScheme(signer ClientEvmSigner) *ExactEvmScheme {
	return &ExactEvmScheme{
		signer: signer,
		now:    time.Now,
	}
}

// Scheme returns the scheme identifier
func (c *ExactEvmScheme) Scheme() string {
	return SchemeExact
}

// CreatePaymentPayload signs an EIP-3009 authorization for requirements
func (c *ExactEvmScheme) CreatePaymentPayload(
	ctx context.Context,
	requirements x402.PaymentRequirements,
) (x402.PaymentProof, error) {
	if c.signer == nil {
		return x402.PaymentProof{}, x402.ErrSignerUnavailable
	}

	chainID, err := GetChainID(requirements.Network)
	if err != nil {
		return x402.PaymentProof{}, err
	}

	value, err := x402.ParseAmount(requirements.Amount)
	if err != nil {
		return x402.PaymentProof{}, err
	}

	tokenName, tokenVersion, err := c.resolveDomain(ctx, requirements)
	if err != nil {
		return x402.PaymentProof{}, err
	}

	nonce, err := CreateNonce()
	if err != nil {
		return x402.PaymentProof{}, err
	}

	timeout := time.Duration(requirements.MaxTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = DefaultValidityPeriod * time.Second
	}
	validAfter, validBefore := CreateValidityWindow(c.now(), timeout)

	authorization := ExactEIP3009Authorization{
		From:        c.signer.Address(),
		To:          requirements.PayTo,
		Value:       value.String(),
		ValidAfter:  validAfter.String(),
		ValidBefore: validBefore.String(),
		Nonce:       nonce,
	}

	signature, err := c.signAuthorization(ctx, authorization, chainID, requirements.Asset, tokenName, tokenVersion)
	if err != nil {
		return x402.PaymentProof{}, fmt.Errorf("failed to sign authorization: %w", err)
	}

	evmPayload := &ExactEIP3009Payload{
		Signature:     BytesToHex(signature),
		Authorization: authorization,
	}

	return x402.PaymentProof{
		Scheme:  SchemeExact,
		Network: requirements.Network,
		Kind:    x402.ProofKindEIP3009Signature,
		Payload: evmPayload.ToMap(),
	}, nil
}

// resolveDomain finds the token's EIP-712 name and version: requirements
// extra first, then the built-in asset table, then the token contract.
func (c *ExactEvmScheme) resolveDomain(ctx context.Context, requirements x402.PaymentRequirements) (string, string, error) {
	var name, version string
	if requirements.Extra != nil {
		name, _ = requirements.Extra["name"].(string)
		version, _ = requirements.Extra["version"].(string)
	}

	if name == "" || version == "" {
		if info, ok := GetAssetInfo(requirements.Network, requirements.Asset); ok {
			if name == "" {
				name = info.Name
			}
			if version == "" {
				version = info.Version
			}
		}
	}

	if name != "" && version != "" {
		return name, version, nil
	}

	reader, ok := c.signer.(ContractReader)
	if !ok {
		return "", "", fmt.Errorf("token %s on %s has no EIP-712 domain in requirements and signer cannot read contracts", requirements.Asset, requirements.Network)
	}

	if name == "" {
		result, err := reader.ReadContract(ctx, requirements.Asset, TokenMetadataABI, FunctionName)
		if err != nil {
			return "", "", fmt.Errorf("failed to read token name: %w", err)
		}
		name, ok = result.(string)
		if !ok {
			return "", "", fmt.Errorf("unexpected token name type %T", result)
		}
	}
	if version == "" {
		result, err := reader.ReadContract(ctx, requirements.Asset, TokenMetadataABI, FunctionVersion)
		if err != nil {
			return "", "", fmt.Errorf("failed to read token version: %w", err)
		}
		version, ok = result.(string)
		if !ok {
			return "", "", fmt.Errorf("unexpected token version type %T", result)
		}
	}

	return name, version, nil
}

// signAuthorization signs the EIP-3009 authorization using EIP-712
func (c *ExactEvmScheme) signAuthorization(
	ctx context.Context,
	authorization ExactEIP3009Authorization,
	chainID *big.Int,
	verifyingContract string,
	tokenName string,
	tokenVersion string,
) ([]byte, error) {
	domain := TypedDataDomain{
		Name:              tokenName,
		Version:           tokenVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}

	message, err := EIP3009Message(authorization)
	if err != nil {
		return nil, err
	}

	return c.signer.SignTypedData(ctx, domain, GetEIP3009Types(), PrimaryTypeTransferWithAuthorization, message)
}

// RegisterClient registers the exact EVM scheme on client for every EVM
// network, or only for the given normalized networks.
func RegisterClient(client *x402.X402Client, signer ClientEvmSigner, networks ...x402.Network) *x402.X402Client {
	scheme := NewExactEvmScheme(signer)
	if len(networks) == 0 {
		return client.Register("eip155:*", scheme)
	}
	for _, network := range networks {
		if IsValidNetwork(network) {
			client.Register(network, scheme)
		}
	}
	return client
}
