package x402

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a non-negative integer amount in the asset's smallest unit.
func ParseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %q", s)
	}
	return amount, nil
}

// MaxAmount returns the largest amount across all requirements. This is the
// value compared against a caller's ceiling, regardless of which requirement
// is eventually selected.
func MaxAmount(requirements []PaymentRequirements) (*big.Int, error) {
	var maxAmount *big.Int
	for _, req := range requirements {
		amount, err := ParseAmount(req.Amount)
		if err != nil {
			return nil, err
		}
		if maxAmount == nil || amount.Cmp(maxAmount) > 0 {
			maxAmount = amount
		}
	}
	if maxAmount == nil {
		return nil, fmt.Errorf("no payment requirements")
	}
	return maxAmount, nil
}

// ParseUnits converts a human decimal amount ("0.05") into smallest units for
// an asset with the given number of decimals. Plain integers pass through
// when decimals is 0.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: negative", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders a smallest-unit amount as a decimal string.
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "unlimited"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}
