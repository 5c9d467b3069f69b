package svm

import (
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"

	x402 "github.com/x402-foundation/x402fetch"
)

// IsValidNetwork reports whether network is a Solana cluster this package signs for
func IsValidNetwork(network x402.Network) bool {
	return network.IsSolana()
}

// DefaultRPCURL returns the public endpoint of a normalized Solana network
func DefaultRPCURL(network x402.Network) (string, error) {
	switch network {
	case x402.NetworkSolana:
		return MainnetRPCURL, nil
	case x402.NetworkSolanaDevnet:
		return DevnetRPCURL, nil
	}
	return "", x402.NewPaymentError(x402.ErrCodeUnsupportedNetwork, fmt.Sprintf("unsupported network: %s", network), nil)
}

// FindAssociatedTokenAddress derives the associated token account of wallet
// for mint under the given token program (Token or Token-2022).
func FindAssociatedTokenAddress(wallet, mint, tokenProgramID solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindProgramAddress(
		[][]byte{wallet[:], tokenProgramID[:], mint[:]},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	return address, err
}

// EncodeTransaction serializes tx and encodes it as base64
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTransaction parses a base64 encoded transaction
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 transaction: %w", err)
	}
	return solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
}
