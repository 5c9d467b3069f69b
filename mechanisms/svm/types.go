package svm

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ClientSvmSigner defines the interface for client-side Solana signing operations
type ClientSvmSigner interface {
	// Address returns the wallet that owns the source token account
	Address() solana.PublicKey

	// SignTransaction adds the wallet's signature to tx, leaving other
	// signature slots (the fee payer's) untouched.
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// RPC is the subset of *rpc.Client the exact scheme reads chain state with.
type RPC interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
}

// ClientConfig holds optional RPC configuration for the exact scheme
type ClientConfig struct {
	// RPCURL overrides the cluster default endpoint for every network
	RPCURL string
	// RPC, when set, is used instead of dialing RPCURL
	RPC RPC
	// ComputeUnitPrice overrides DefaultComputeUnitPrice
	ComputeUnitPrice uint64
}

// ExactSvmPayload is the exact payment payload for Solana networks
type ExactSvmPayload struct {
	Transaction string `json:"transaction"` // base64 partially signed transaction
}

// ToMap converts an ExactSvmPayload to a map for JSON marshaling
func (p *ExactSvmPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"transaction": p.Transaction,
	}
}

// PayloadFromMap creates an ExactSvmPayload from a map
func PayloadFromMap(data map[string]interface{}) (*ExactSvmPayload, error) {
	tx, ok := data["transaction"].(string)
	if !ok || tx == "" {
		return nil, fmt.Errorf("missing or invalid transaction field")
	}
	return &ExactSvmPayload{Transaction: tx}, nil
}
