package inventory

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func tokenA() *big.Int { return big.NewInt(101) }

func TestAddThenTotalQuantity(t *testing.T) {
	inv := New()
	inv.Add(tokenA(), 100, 0.5, 1000)
	assert.Equal(t, 100.0, inv.TotalQuantity(tokenA()))
	assert.Equal(t, 0.5, inv.WeightedAvgUnitCost(tokenA()))
}

func TestConsumeFIFOOrder(t *testing.T) {
	inv := New()
	inv.Add(tokenA(), 100, 0.5, 1000)
	inv.Add(tokenA(), 50, 0.8, 2000)

	costBasis, consumptions := inv.Consume(tokenA(), 40)

	assert.Equal(t, 20.0, costBasis) // 40 * 0.5
	if assert.Len(t, consumptions, 1) {
		assert.Equal(t, 40.0, consumptions[0].Quantity)
		assert.Equal(t, 0.5, consumptions[0].UnitCost)
		assert.Equal(t, int64(1000), consumptions[0].OpenedAt)
	}
	assert.Equal(t, 110.0, inv.TotalQuantity(tokenA()))
}

func TestConsumeSpansMultipleLots(t *testing.T) {
	inv := New()
	inv.Add(tokenA(), 100, 0.5, 1000)
	inv.Add(tokenA(), 50, 0.8, 2000)

	costBasis, consumptions := inv.Consume(tokenA(), 120)

	assert.Equal(t, 100*0.5+20*0.8, costBasis)
	if assert.Len(t, consumptions, 2) {
		assert.Equal(t, 100.0, consumptions[0].Quantity)
		assert.Equal(t, 20.0, consumptions[1].Quantity)
	}
	assert.InDelta(t, 30.0, inv.TotalQuantity(tokenA()), 1e-9)
}

func TestConsumeEmptyBucketAcceptsShortfall(t *testing.T) {
	inv := New()
	costBasis, consumptions := inv.Consume(tokenA(), 10)
	assert.Equal(t, 0.0, costBasis)
	assert.Nil(t, consumptions)
}

func TestConsumeDropsResidualBelowEpsilon(t *testing.T) {
	inv := New()
	inv.Add(tokenA(), 10, 1.0, 1000)
	inv.Consume(tokenA(), 10-1e-9)
	assert.Equal(t, 0.0, inv.TotalQuantity(tokenA()))
}

func TestOpenPositionsSkipsEmptyBuckets(t *testing.T) {
	inv := New()
	inv.Add(tokenA(), 10, 1.0, 1000)
	inv.Consume(tokenA(), 10)
	assert.Empty(t, inv.OpenPositions())
}

func TestOpenCostAndOpenValue(t *testing.T) {
	inv := New()
	inv.Add(tokenA(), 10, 0.5, 1000)
	inv.Add(tokenA(), 5, 0.9, 5000)

	assert.InDelta(t, 10*0.5+5*0.9, inv.OpenCost(TimeRange{}), 1e-9)

	prices := map[string]float64{tokenA().String(): 0.6}
	assert.InDelta(t, 15*0.6, inv.OpenValue(prices, TimeRange{}), 1e-9)
}

func TestOpenCostRespectsTimeRangeFilter(t *testing.T) {
	inv := New()
	inv.Add(tokenA(), 10, 0.5, 1000)
	inv.Add(tokenA(), 5, 0.9, 5000)

	filtered := inv.OpenCost(TimeRange{From: 4000})
	assert.InDelta(t, 5*0.9, filtered, 1e-9)
}
