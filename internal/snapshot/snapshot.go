// Package snapshot implements the Snapshotter: it interleaves
// valuation snapshots at a fixed wall-clock cadence into the same
// replay the Ledger Engine drives (spec.md §4.6).
package snapshot

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/neomarket/ledgerengine/internal/engine"
	"github.com/neomarket/ledgerengine/internal/inventory"
	"github.com/neomarket/ledgerengine/internal/model"
)

// Params configures one replay's snapshot cadence.
type Params struct {
	IntervalSeconds int64
	StartTs         int64 // 0 => derive from the first event's timestamp
	EndTs           int64 // 0 => no final flush beyond the last in-loop snapshot
}

// Drive replays events through eng, emitting a Snapshot every time the
// cadence boundary is crossed, and returns the ordered snapshot
// sequence. eng must be empty (freshly constructed) when Drive is
// called; Drive is the sole driver of its event processing.
func Drive(events []model.ChainEvent, eng *engine.Engine, params Params, wallet common.Address) []model.Snapshot {
	if len(events) == 0 {
		return nil
	}
	if params.IntervalSeconds <= 0 {
		panic("snapshot: IntervalSeconds must be positive")
	}

	nextTs := initialBoundary(params, events[0].Key.Timestamp)
	var snaps []model.Snapshot

	for i := range events {
		ev := events[i]
		for nextTs <= ev.Key.Timestamp {
			snaps = append(snaps, emit(eng, wallet, nextTs))
			nextTs += params.IntervalSeconds
		}
		eng.HandleEvent(ev)
	}

	if params.EndTs > 0 {
		var lastEmitted int64
		if len(snaps) > 0 {
			lastEmitted = snaps[len(snaps)-1].At
		}
		if params.EndTs > lastEmitted {
			snaps = append(snaps, emit(eng, wallet, params.EndTs))
		}
	}
	return snaps
}

// initialBoundary is the first cadence boundary a replay emits at:
// the first interval boundary at or after StartTs, or, absent a
// StartTs, the aligned floor of the first event's timestamp plus one
// interval (spec.md §4.6).
func initialBoundary(params Params, firstEventTs int64) int64 {
	if params.StartTs != 0 {
		return ceilToBoundary(params.StartTs, params.IntervalSeconds)
	}
	floor := (firstEventTs / params.IntervalSeconds) * params.IntervalSeconds
	return floor + params.IntervalSeconds
}

func ceilToBoundary(ts, interval int64) int64 {
	if ts%interval == 0 {
		return ts
	}
	return (ts/interval + 1) * interval
}

// emit builds one Snapshot from the engine's then-current state: the
// inventory's last-traded-price map is the valuation oracle (spec.md
// §4.6), and realized_cum/cashflow_cum come from the engine's running
// totals rather than re-summing the ledger on every call.
func emit(eng *engine.Engine, wallet common.Address, at int64) model.Snapshot {
	openCost := eng.Inventory().OpenCost(inventory.TimeRange{})
	openValue := eng.Inventory().OpenValue(eng.LastTradedPrices(), inventory.TimeRange{})

	return model.Snapshot{
		Wallet:         wallet,
		At:             at,
		RealizedCum:    eng.RealizedCumulative(),
		Unrealized:     openValue - openCost,
		OpenCost:       openCost,
		OpenValue:      openValue,
		CashflowCum:    eng.CashflowCumulative(),
		OpenTokenCount: len(eng.Inventory().OpenPositions()),
	}
}
