package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollateralScalar(t *testing.T) {
	assert.Equal(t, 50.0, CollateralScalar(big.NewInt(50_000_000)))
	assert.Equal(t, 0.0, CollateralScalar(nil))
	assert.InDelta(t, 0.000001, CollateralScalar(big.NewInt(1)), 1e-12)
}

func TestTokenScalar(t *testing.T) {
	raw, _ := new(big.Int).SetString("100000000000000000000", 10) // 100 * 10^18
	assert.Equal(t, 100.0, TokenScalar(raw))
	assert.Equal(t, 0.0, TokenScalar(nil))
}

func TestSafeDiv(t *testing.T) {
	assert.Equal(t, 0.0, SafeDiv(5, 0))
	assert.Equal(t, 2.5, SafeDiv(5, 2))
}

func TestU256ClampsNegative(t *testing.T) {
	v := U256(big.NewInt(-1))
	assert.True(t, v.IsZero())
}

func TestU256RoundTrip(t *testing.T) {
	in := big.NewInt(123456789)
	v := U256(in)
	assert.Equal(t, in.String(), v.ToBig().String())
}

func TestSumRawAddsInRawSpaceAndTreatsNilAsZero(t *testing.T) {
	sum := SumRaw(big.NewInt(50_000_000), nil, big.NewInt(25_000_000))
	assert.Equal(t, "75000000", sum.String())
}

func TestSubRawClampsToZeroInsteadOfWrapping(t *testing.T) {
	diff := SubRaw(big.NewInt(50_000_000), big.NewInt(10_000_000))
	assert.Equal(t, "40000000", diff.String())

	clamped := SubRaw(big.NewInt(10), big.NewInt(50))
	assert.Equal(t, "0", clamped.String())
}
