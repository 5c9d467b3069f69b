// Package svm implements the exact payment scheme for Solana: an SPL token
// TransferChecked transaction, partially signed by the client and completed
// by the facilitator's fee payer.
package svm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	x402 "github.com/x402-foundation/x402fetch"
)

// ExactSvmScheme implements x402.SchemeNetworkClient for Solana exact payments
type ExactSvmScheme struct {
	signer ClientSvmSigner
	config ClientConfig

	mu   sync.Mutex
	rpcs map[string]RPC
}

// NewExactSvmScheme creates a new ExactSvmScheme. config is optional.
func NewExactSvmScheme(signer ClientSvmSigner, config ...*ClientConfig) *ExactSvmScheme {
	c := &ExactSvmScheme{
		signer: signer,
		rpcs:   make(map[string]RPC),
	}
	if len(config) > 0 && config[0] != nil {
		c.config = *config[0]
	}
	if c.config.ComputeUnitPrice == 0 {
		c.config.ComputeUnitPrice = DefaultComputeUnitPrice
	}
	return c
}

// Scheme returns the scheme identifier
func (c *ExactSvmScheme) Scheme() string {
	return SchemeExact
}

func (c *ExactSvmScheme) rpcFor(network x402.Network) (RPC, error) {
	if c.config.RPC != nil {
		return c.config.RPC, nil
	}

	url := c.config.RPCURL
	if url == "" {
		var err error
		if url, err = DefaultRPCURL(network); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	client, ok := c.rpcs[url]
	if !ok {
		client = rpc.New(url)
		c.rpcs[url] = client
	}
	return client, nil
}

// CreatePaymentPayload builds and partially signs the transfer transaction
func (c *ExactSvmScheme) CreatePaymentPayload(
	ctx context.Context,
	requirements x402.PaymentRequirements,
) (x402.PaymentProof, error) {
	if c.signer == nil {
		return x402.PaymentProof{}, x402.ErrSignerUnavailable
	}
	if !IsValidNetwork(requirements.Network) {
		return x402.PaymentProof{}, x402.NewPaymentError(
			x402.ErrCodeUnsupportedNetwork,
			fmt.Sprintf("unsupported network: %s", requirements.Network),
			nil,
		)
	}

	rpcClient, err := c.rpcFor(requirements.Network)
	if err != nil {
		return x402.PaymentProof{}, err
	}

	mintPubkey, err := solana.PublicKeyFromBase58(requirements.Asset)
	if err != nil {
		return x402.PaymentProof{}, fmt.Errorf("invalid asset address: %w", err)
	}
	payToPubkey, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return x402.PaymentProof{}, fmt.Errorf("invalid payTo address: %w", err)
	}

	feePayerAddr, _ := requirements.Extra["feePayer"].(string)
	if feePayerAddr == "" {
		return x402.PaymentProof{}, fmt.Errorf("%s: feePayer is required in paymentRequirements.extra", ErrFeePayerMissing)
	}
	feePayer, err := solana.PublicKeyFromBase58(feePayerAddr)
	if err != nil {
		return x402.PaymentProof{}, fmt.Errorf("invalid feePayer address: %w", err)
	}

	amount, err := strconv.ParseUint(requirements.Amount, 10, 64)
	if err != nil {
		return x402.PaymentProof{}, fmt.Errorf("invalid amount: %w", err)
	}

	// The mint's owner tells Token from Token-2022
	mintAccount, err := rpcClient.GetAccountInfo(ctx, mintPubkey)
	if err != nil {
		return x402.PaymentProof{}, fmt.Errorf("failed to get mint account: %w", err)
	}
	if mintAccount == nil || mintAccount.Value == nil {
		return x402.PaymentProof{}, fmt.Errorf("mint account %s not found", mintPubkey)
	}
	tokenProgramID := mintAccount.Value.Owner
	if !tokenProgramID.Equals(solana.TokenProgramID) && !tokenProgramID.Equals(solana.Token2022ProgramID) {
		return x402.PaymentProof{}, fmt.Errorf("%s: asset was not created by a known token program", ErrUnknownTokenProgram)
	}

	var mintData token.Mint
	if err := bin.NewBinDecoder(mintAccount.Value.Data.GetBinary()).Decode(&mintData); err != nil {
		return x402.PaymentProof{}, fmt.Errorf("failed to decode mint data: %w", err)
	}

	owner := c.signer.Address()
	sourceATA, err := FindAssociatedTokenAddress(owner, mintPubkey, tokenProgramID)
	if err != nil {
		return x402.PaymentProof{}, fmt.Errorf("failed to derive source ATA: %w", err)
	}
	destinationATA, err := FindAssociatedTokenAddress(payToPubkey, mintPubkey, tokenProgramID)
	if err != nil {
		return x402.PaymentProof{}, fmt.Errorf("failed to derive destination ATA: %w", err)
	}

	if err := c.requireAccount(ctx, rpcClient, sourceATA); err != nil {
		return x402.PaymentProof{}, fmt.Errorf("%s: source ATA does not exist for client %s: %w", ErrATANotFound, owner, err)
	}
	if err := c.requireAccount(ctx, rpcClient, destinationATA); err != nil {
		return x402.PaymentProof{}, fmt.Errorf("%s: destination ATA does not exist for recipient %s: %w", ErrATANotFound, payToPubkey, err)
	}

	latestBlockhash, err := rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return x402.PaymentProof{}, fmt.Errorf("%s: %w", ErrBlockhashUnavailable, err)
	}
	if latestBlockhash == nil || latestBlockhash.Value == nil {
		return x402.PaymentProof{}, errors.New(ErrBlockhashUnavailable)
	}

	tx, err := c.buildTransaction(transferParams{
		amount:         amount,
		decimals:       mintData.Decimals,
		source:         sourceATA,
		mint:           mintPubkey,
		destination:    destinationATA,
		owner:          owner,
		feePayer:       feePayer,
		tokenProgramID: tokenProgramID,
		blockhash:      latestBlockhash.Value.Blockhash,
	})
	if err != nil {
		return x402.PaymentProof{}, err
	}

	if err := c.signer.SignTransaction(ctx, tx); err != nil {
		return x402.PaymentProof{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	base64Tx, err := EncodeTransaction(tx)
	if err != nil {
		return x402.PaymentProof{}, fmt.Errorf("failed to encode transaction: %w", err)
	}

	svmPayload := &ExactSvmPayload{Transaction: base64Tx}

	return x402.PaymentProof{
		Scheme:  SchemeExact,
		Network: requirements.Network,
		Kind:    x402.ProofKindSvmTransaction,
		Payload: svmPayload.ToMap(),
	}, nil
}

func (c *ExactSvmScheme) requireAccount(ctx context.Context, rpcClient RPC, account solana.PublicKey) error {
	info, err := rpcClient.GetAccountInfo(ctx, account)
	if err != nil {
		return err
	}
	if info == nil || info.Value == nil {
		return rpc.ErrNotFound
	}
	return nil
}

type transferParams struct {
	amount         uint64
	decimals       uint8
	source         solana.PublicKey
	mint           solana.PublicKey
	destination    solana.PublicKey
	owner          solana.PublicKey
	feePayer       solana.PublicKey
	tokenProgramID solana.PublicKey
	blockhash      solana.Hash
}

// buildTransaction assembles ComputeLimit + ComputePrice + TransferChecked
func (c *ExactSvmScheme) buildTransaction(p transferParams) (*solana.Transaction, error) {
	cuLimit, err := computebudget.NewSetComputeUnitLimitInstructionBuilder().
		SetUnits(DefaultComputeUnitLimit).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build compute limit instruction: %w", err)
	}

	cuPrice, err := computebudget.NewSetComputeUnitPriceInstructionBuilder().
		SetMicroLamports(c.config.ComputeUnitPrice).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build compute price instruction: %w", err)
	}

	transfer, err := token.NewTransferCheckedInstructionBuilder().
		SetAmount(p.amount).
		SetDecimals(p.decimals).
		SetSourceAccount(p.source).
		SetMintAccount(p.mint).
		SetDestinationAccount(p.destination).
		SetOwnerAccount(p.owner).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer instruction: %w", err)
	}

	// TransferChecked has the same layout under Token-2022; only the program differs
	var transferIx solana.Instruction = transfer
	if !p.tokenProgramID.Equals(solana.TokenProgramID) {
		data, err := transfer.Data()
		if err != nil {
			return nil, fmt.Errorf("failed to encode transfer instruction: %w", err)
		}
		transferIx = solana.NewInstruction(p.tokenProgramID, transfer.Accounts(), data)
	}

	tx, err := solana.NewTransactionBuilder().
		AddInstruction(cuLimit).
		AddInstruction(cuPrice).
		AddInstruction(transferIx).
		SetRecentBlockHash(p.blockhash).
		SetFeePayer(p.feePayer).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

// RegisterClient registers the exact Solana scheme on client for mainnet and
// devnet, or only for the given normalized networks.
func RegisterClient(client *x402.X402Client, signer ClientSvmSigner, config *ClientConfig, networks ...x402.Network) *x402.X402Client {
	scheme := NewExactSvmScheme(signer, config)
	if len(networks) == 0 {
		networks = []x402.Network{x402.NetworkSolana, x402.NetworkSolanaDevnet}
	}
	for _, network := range networks {
		if IsValidNetwork(network) {
			client.Register(network, scheme)
		}
	}
	return client
}
