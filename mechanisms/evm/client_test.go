package evm_test

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-foundation/x402fetch"
	"github.com/x402-foundation/x402fetch/mechanisms/evm"
	evmsigner "github.com/x402-foundation/x402fetch/signers/evm"
)

const (
	testPrivateKey  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress     = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	baseSepoliaUSDC = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
)

func newSigner(t *testing.T) *evmsigner.ClientSigner {
	t.Helper()
	signer, err := evmsigner.NewClientSignerFromPrivateKey(testPrivateKey)
	require.NoError(t, err)
	return signer
}

func baseSepoliaRequirements() x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            evm.SchemeExact,
		Network:           "eip155:84532",
		Asset:             baseSepoliaUSDC,
		Amount:            "10000",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		MaxTimeoutSeconds: 120,
		Extra:             map[string]interface{}{"name": "USDC", "version": "2"},
	}
}

func TestExactEvmSchemeSignatureRecoversPayer(t *testing.T) {
	scheme := evm.NewExactEvmScheme(newSigner(t))
	req := baseSepoliaRequirements()

	proof, err := scheme.CreatePaymentPayload(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "exact", proof.Scheme)
	assert.Equal(t, x402.Network("eip155:84532"), proof.Network)
	assert.Equal(t, x402.ProofKindEIP3009Signature, proof.Kind)

	payload, err := evm.PayloadFromMap(proof.Payload)
	require.NoError(t, err)
	assert.Equal(t, testAddress, payload.Authorization.From)
	assert.Equal(t, req.PayTo, payload.Authorization.To)
	assert.Equal(t, "10000", payload.Authorization.Value)

	digest, err := evm.HashEIP3009Authorization(payload.Authorization, big.NewInt(84532), baseSepoliaUSDC, "USDC", "2")
	require.NoError(t, err)

	sig, err := evm.HexToBytes(payload.Signature)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64])
	sig[64] -= 27

	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, testAddress, crypto.PubkeyToAddress(*pub).Hex())
}

func TestExactEvmSchemeValidityWindow(t *testing.T) {
	scheme := evm.NewExactEvmScheme(newSigner(t))
	before := time.Now().Unix()

	proof, err := scheme.CreatePaymentPayload(context.Background(), baseSepoliaRequirements())
	require.NoError(t, err)

	payload, err := evm.PayloadFromMap(proof.Payload)
	require.NoError(t, err)

	validAfter, err := strconv.ParseInt(payload.Authorization.ValidAfter, 10, 64)
	require.NoError(t, err)
	validBefore, err := strconv.ParseInt(payload.Authorization.ValidBefore, 10, 64)
	require.NoError(t, err)

	assert.LessOrEqual(t, validAfter, before)
	assert.GreaterOrEqual(t, validBefore, before+120)
	assert.Less(t, validBefore, before+120+60)
}

func TestExactEvmSchemeNoncesAreUnique(t *testing.T) {
	scheme := evm.NewExactEvmScheme(newSigner(t))

	first, err := scheme.CreatePaymentPayload(context.Background(), baseSepoliaRequirements())
	require.NoError(t, err)
	second, err := scheme.CreatePaymentPayload(context.Background(), baseSepoliaRequirements())
	require.NoError(t, err)

	a, _ := evm.PayloadFromMap(first.Payload)
	b, _ := evm.PayloadFromMap(second.Payload)
	assert.NotEqual(t, a.Authorization.Nonce, b.Authorization.Nonce)
}

func TestExactEvmSchemeDomainFromAssetTable(t *testing.T) {
	scheme := evm.NewExactEvmScheme(newSigner(t))
	req := baseSepoliaRequirements()
	req.Extra = nil

	_, err := scheme.CreatePaymentPayload(context.Background(), req)
	require.NoError(t, err)
}

type readingSigner struct {
	evm.ClientEvmSigner
	reads []string
}

func (r *readingSigner) ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error) {
	r.reads = append(r.reads, functionName)
	switch functionName {
	case evm.FunctionName:
		return "Bridged USDC", nil
	case evm.FunctionVersion:
		return "1", nil
	}
	return nil, errors.New("unexpected call")
}

func TestExactEvmSchemeDomainFromContract(t *testing.T) {
	signer := &readingSigner{ClientEvmSigner: newSigner(t)}
	scheme := evm.NewExactEvmScheme(signer)

	req := baseSepoliaRequirements()
	req.Asset = "0x1111111111111111111111111111111111111111"
	req.Extra = map[string]interface{}{"version": "1"}

	_, err := scheme.CreatePaymentPayload(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{evm.FunctionName}, signer.reads)
}

func TestExactEvmSchemeMissingDomain(t *testing.T) {
	scheme := evm.NewExactEvmScheme(newSigner(t))

	req := baseSepoliaRequirements()
	req.Asset = "0x1111111111111111111111111111111111111111"
	req.Extra = nil

	_, err := scheme.CreatePaymentPayload(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, x402.SigningFailed, x402.NewSigningError(req.Network, err).Reason)
}

func TestExactEvmSchemeUnsupportedNetwork(t *testing.T) {
	scheme := evm.NewExactEvmScheme(newSigner(t))

	req := baseSepoliaRequirements()
	req.Network = x402.NetworkSolana

	_, err := scheme.CreatePaymentPayload(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, x402.SigningUnsupportedNetwork, x402.NewSigningError(req.Network, err).Reason)
}

func TestExactEvmSchemeNoSigner(t *testing.T) {
	scheme := evm.NewExactEvmScheme(nil)

	_, err := scheme.CreatePaymentPayload(context.Background(), baseSepoliaRequirements())
	assert.ErrorIs(t, err, x402.ErrSignerUnavailable)
}

func TestRegisterClient(t *testing.T) {
	client := evm.RegisterClient(x402.Newx402Client(), newSigner(t))
	assert.True(t, client.Supports(baseSepoliaRequirements()))

	client = evm.RegisterClient(x402.Newx402Client(), newSigner(t), "eip155:8453")
	assert.False(t, client.Supports(baseSepoliaRequirements()))
}
