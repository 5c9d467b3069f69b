package evm

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	x402 "github.com/x402-foundation/x402fetch"
)

// CreateNonce returns a random 32-byte EIP-3009 nonce as 0x-prefixed hex
func CreateNonce() (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return BytesToHex(nonce), nil
}

// CreateValidityWindow returns the validAfter/validBefore pair for an
// authorization created at now that must stay valid for duration.
func CreateValidityWindow(now time.Time, duration time.Duration) (validAfter, validBefore *big.Int) {
	validAfter = big.NewInt(now.Unix() - ValidAfterSkew)
	validBefore = big.NewInt(now.Add(duration).Unix())
	return validAfter, validBefore
}

// HexToBytes decodes a hex string with or without 0x prefix
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

// BytesToHex encodes bytes as 0x-prefixed hex
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// GetChainID extracts the chain ID of a normalized "eip155:<id>" network
func GetChainID(network x402.Network) (*big.Int, error) {
	namespace, reference, err := network.Parse()
	if err != nil || namespace != "eip155" {
		return nil, x402.NewPaymentError(x402.ErrCodeUnsupportedNetwork, fmt.Sprintf("not an EVM network: %s", network), nil)
	}
	chainID, ok := new(big.Int).SetString(reference, 10)
	if !ok || chainID.Sign() <= 0 {
		return nil, x402.NewPaymentError(x402.ErrCodeUnsupportedNetwork, fmt.Sprintf("invalid chain id: %s", reference), nil)
	}
	return chainID, nil
}

// IsValidNetwork reports whether the network is an EVM chain this package can sign for
func IsValidNetwork(network x402.Network) bool {
	_, err := GetChainID(network)
	return err == nil
}

// GetAssetInfo returns the known metadata of asset on network, if the asset is
// the network's default asset.
func GetAssetInfo(network x402.Network, asset string) (AssetInfo, bool) {
	config, ok := NetworkConfigs[string(network)]
	if !ok {
		return AssetInfo{}, false
	}
	if !common.IsHexAddress(asset) || common.HexToAddress(asset) != common.HexToAddress(config.DefaultAsset.Address) {
		return AssetInfo{}, false
	}
	return config.DefaultAsset, true
}
