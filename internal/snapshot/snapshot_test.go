package snapshot

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neomarket/ledgerengine/internal/catalog"
	"github.com/neomarket/ledgerengine/internal/engine"
	"github.com/neomarket/ledgerengine/internal/model"
)

var wallet = common.HexToAddress("0x01")

func tradeAt(ts int64) model.ChainEvent {
	return model.ChainEvent{
		Key:  model.OrderKey{Timestamp: ts, TypeTag: model.EventTradeBuy},
		Kind: model.EventTradeBuy,
		Trade: &model.TradeEvent{
			TokenID: big.NewInt(1), TokenRaw: big.NewInt(1_000_000_000_000_000_000),
			USDCRaw: big.NewInt(1_000_000), Timestamp: ts,
		},
	}
}

// S6: interval = 3600, events at t = 100, 4000, 7300.
func TestDriveEmitsSnapshotsAtCadenceBoundaries(t *testing.T) {
	events := []model.ChainEvent{tradeAt(100), tradeAt(4000), tradeAt(7300)}
	eng := engine.New(wallet, catalog.New(0), engine.Config{}, nil, nil)

	snaps := Drive(events, eng, Params{IntervalSeconds: 3600, EndTs: 7300}, wallet)

	require.Len(t, snaps, 3)
	assert.Equal(t, int64(3600), snaps[0].At)
	assert.Equal(t, int64(7200), snaps[1].At)
	assert.Equal(t, int64(7300), snaps[2].At)
}

func TestDriveNoFinalFlushWhenEndTsNotBeyondLast(t *testing.T) {
	events := []model.ChainEvent{tradeAt(100), tradeAt(4000)}
	eng := engine.New(wallet, catalog.New(0), engine.Config{}, nil, nil)

	snaps := Drive(events, eng, Params{IntervalSeconds: 3600, EndTs: 3600}, wallet)

	require.Len(t, snaps, 1)
	assert.Equal(t, int64(3600), snaps[0].At)
}

func TestDriveUsesStartTsForInitialBoundary(t *testing.T) {
	events := []model.ChainEvent{tradeAt(100), tradeAt(5000)}
	eng := engine.New(wallet, catalog.New(0), engine.Config{}, nil, nil)

	snaps := Drive(events, eng, Params{IntervalSeconds: 1000, StartTs: 2500}, wallet)

	// Boundaries 3000, 4000 and 5000 are all <= the t=5000 event.
	require.Len(t, snaps, 3)
	assert.Equal(t, int64(3000), snaps[0].At)
}

func TestDriveSnapshotReflectsRunningTotals(t *testing.T) {
	events := []model.ChainEvent{tradeAt(100), tradeAt(4000)}
	eng := engine.New(wallet, catalog.New(0), engine.Config{}, nil, nil)

	snaps := Drive(events, eng, Params{IntervalSeconds: 3600, EndTs: 4000}, wallet)

	require.Len(t, snaps, 2)
	// At t=3600, only the first trade_buy has been processed.
	assert.InDelta(t, 0.0, snaps[0].RealizedCum, 1e-9)
	assert.InDelta(t, -1.0, snaps[0].CashflowCum, 1e-9)
	assert.InDelta(t, 1.0, snaps[0].OpenCost, 1e-9)
}
