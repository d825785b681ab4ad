// Package fixedpoint is the single conversion boundary between raw
// on-chain integers and the floating scalars the ledger engine reasons
// with (spec.md §3). Every raw quantity that crosses this boundary does
// so through one of the functions here, so the boundary stays testable
// as one pinned-down property rather than scattered division sites
// (spec.md §9).
package fixedpoint

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"
)

// CollateralDecimals and TokenDecimals are the fixed decimal places of
// the stablecoin collateral and the ERC-1155 outcome tokens respectively.
const (
	CollateralDecimals = 6
	TokenDecimals      = 18
)

var (
	collateralUnit = new(big.Float).SetInt(pow10(CollateralDecimals))
	tokenUnit      = new(big.Float).SetInt(pow10(TokenDecimals))
)

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// CollateralScalar converts a raw 6-decimal collateral amount to its
// float64 scalar (usd = raw / 10^6). Accepts nil as zero.
func CollateralScalar(raw *big.Int) float64 {
	if raw == nil {
		return 0
	}
	f := new(big.Float).SetInt(raw)
	f.Quo(f, collateralUnit)
	v, _ := f.Float64()
	return v
}

// TokenScalar converts a raw 18-decimal outcome-token amount to its
// float64 scalar (qty = raw / 10^18). Accepts nil as zero.
func TokenScalar(raw *big.Int) float64 {
	if raw == nil {
		return 0
	}
	f := new(big.Float).SetInt(raw)
	f.Quo(f, tokenUnit)
	v, _ := f.Float64()
	return v
}

// U256 parses a *big.Int into the 256-bit integer abstraction used for
// raw-quantity arithmetic (spec.md §9), clamping negative inputs to zero
// since no raw chain quantity is ever negative.
func U256(v *big.Int) *uint256.Int {
	if v == nil || v.Sign() < 0 {
		return uint256.NewInt(0)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		// A 256-bit overflow here means the upstream row is corrupt beyond
		// what this conversion boundary can repair; saturate rather than
		// silently wrap, matching the "best-effort fields" guidance of
		// spec.md §7 for numerical anomalies.
		return new(uint256.Int).SetAllOne()
	}
	return out
}

// SumRaw adds a set of raw 256-bit quantities in integer space, treating
// nil entries as zero, and hands back the total still as a *big.Int so
// callers convert to a scalar exactly once (spec.md §3).
func SumRaw(raws ...*big.Int) *big.Int {
	sum := new(uint256.Int)
	for _, r := range raws {
		sum.Add(sum, U256(r))
	}
	return sum.ToBig()
}

// SubRaw computes a-b in 256-bit integer space, clamping to zero instead
// of wrapping if b exceeds a, so the result of a raw subtraction is
// itself raw and only crosses into float at the caller's single
// conversion step (spec.md §3, §9).
func SubRaw(a, b *big.Int) *big.Int {
	ua, ub := U256(a), U256(b)
	if ub.Gt(ua) {
		return new(big.Int)
	}
	return new(uint256.Int).Sub(ua, ub).ToBig()
}

// SafeDiv returns numerator/denominator, or 0 if denominator is zero or
// either operand is non-finite — the numerical-anomaly handling of
// spec.md §7 ("set unit cost / unit price to 0").
func SafeDiv(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	v := numerator / denominator
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
