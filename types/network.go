package types

import (
	"fmt"
	"strings"
)

// Solana genesis hash prefixes used by CAIP-2 "solana:<ref>" identifiers.
const (
	SolanaMainnetGenesis = "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	SolanaDevnetGenesis  = "EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
)

// V1NetworkChainIDs maps v1 legacy EVM network names to their chain IDs.
var V1NetworkChainIDs = map[string]int64{
	"ethereum":           1,
	"sepolia":            11155111,
	"abstract":           2741,
	"abstract-testnet":   11124,
	"base-sepolia":       84532,
	"base":               8453,
	"avalanche-fuji":     43113,
	"avalanche":          43114,
	"iotex":              4689,
	"sei":                1329,
	"sei-testnet":        1328,
	"polygon":            137,
	"polygon-amoy":       80002,
	"peaq":               3338,
	"story":              1514,
	"educhain":           41923,
	"skale-base-sepolia": 324705682,
	"megaeth":            4326,
	"monad":              143,
}

var v1SolanaNetworks = map[string]string{
	"solana":        "solana",
	"solana-devnet": "solana-devnet",
}

var solanaGenesisNetworks = map[string]string{
	SolanaMainnetGenesis: "solana",
	SolanaDevnetGenesis:  "solana-devnet",
}

// NormalizeNetwork maps a wire network string to its normalized form:
// "eip155:<chainId>" for EVM chains and "solana" / "solana-devnet" for Solana.
func NormalizeNetwork(version int, wire string) (string, error) {
	switch version {
	case 1:
		if chainID, ok := V1NetworkChainIDs[wire]; ok {
			return fmt.Sprintf("eip155:%d", chainID), nil
		}
		if tag, ok := v1SolanaNetworks[wire]; ok {
			return tag, nil
		}
		return "", fmt.Errorf("unknown v1 network: %s", wire)
	case 2:
		if strings.HasPrefix(wire, "eip155:") {
			return wire, nil
		}
		if tag, ok := v1SolanaNetworks[wire]; ok {
			return tag, nil
		}
		if ref, ok := strings.CutPrefix(wire, "solana:"); ok {
			if tag, ok := solanaGenesisNetworks[ref]; ok {
				return tag, nil
			}
		}
		return "", fmt.Errorf("unknown v2 network: %s", wire)
	default:
		return "", fmt.Errorf("unsupported x402 version: %d", version)
	}
}

// V1NetworkName returns the legacy v1 name for a normalized network, used
// when a v1 payload must echo a network the server did not spell itself.
func V1NetworkName(normalized string) (string, bool) {
	if tag, ok := v1SolanaNetworks[normalized]; ok {
		return tag, true
	}
	for name, chainID := range V1NetworkChainIDs {
		if fmt.Sprintf("eip155:%d", chainID) == normalized {
			return name, true
		}
	}
	return "", false
}

// CAIP2Network returns the v2 wire spelling of a normalized network. Solana
// clusters are written with their genesis reference; EVM networks are
// already in CAIP-2 form.
func CAIP2Network(normalized string) string {
	for genesis, tag := range solanaGenesisNetworks {
		if tag == normalized {
			return "solana:" + genesis
		}
	}
	return normalized
}
