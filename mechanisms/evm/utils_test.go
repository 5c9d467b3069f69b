package evm

import (
	"math/big"
	"testing"
	"time"

	x402 "github.com/x402-foundation/x402fetch"
)

func TestGetChainID(t *testing.T) {
	tests := []struct {
		network string
		want    int64
		wantErr bool
	}{
		{"eip155:8453", 8453, false},
		{"eip155:1", 1, false},
		{"eip155:abc", 0, true},
		{"eip155:0", 0, true},
		{"solana", 0, true},
		{"base", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			got, err := GetChainID(x402.Network(tt.network))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error for %s", tt.network)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.Cmp(big.NewInt(tt.want)) != 0 {
				t.Fatalf("Expected %d, got %s", tt.want, got)
			}
		})
	}
}

func TestHexRoundTrip(t *testing.T) {
	nonce, err := CreateNonce()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(nonce) != 66 {
		t.Fatalf("Expected 0x + 64 hex chars, got %d", len(nonce))
	}
	b, err := HexToBytes(nonce)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if BytesToHex(b) != nonce {
		t.Fatal("Hex round trip changed the nonce")
	}
}

func TestCreateValidityWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	after, before := CreateValidityWindow(now, time.Minute)
	if after.Int64() != 1_700_000_000-ValidAfterSkew {
		t.Fatalf("Unexpected validAfter %s", after)
	}
	if before.Int64() != 1_700_000_060 {
		t.Fatalf("Unexpected validBefore %s", before)
	}
}

func TestGetAssetInfo(t *testing.T) {
	info, ok := GetAssetInfo("eip155:8453", "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913")
	if !ok || info.Name != "USD Coin" {
		t.Fatalf("Expected Base USDC metadata, got %+v", info)
	}
	if _, ok := GetAssetInfo("eip155:8453", "0x0000000000000000000000000000000000000001"); ok {
		t.Fatal("Expected unknown asset to miss")
	}
	if _, ok := GetAssetInfo("eip155:1", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"); ok {
		t.Fatal("Expected unknown network to miss")
	}
}
