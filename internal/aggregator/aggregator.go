// Package aggregator implements the PnL Aggregator: it post-filters a
// replay's realized sub-events by period and mode to answer period PnL
// queries, optionally folding in unrealized PnL on open lots (spec.md
// §4.7). It is read-only over the immutable sub-event sequence and the
// final inventory state a replay produced.
package aggregator

import (
	"github.com/neomarket/ledgerengine/internal/inventory"
	"github.com/neomarket/ledgerengine/internal/model"
)

// Mode selects which sub-events and which unrealized component a query
// includes (spec.md §4.7).
type Mode string

const (
	ModeRealizedPeriodOnly   Mode = "realized_period_only"
	ModeRealizedWithHistory  Mode = "realized_with_history"
	ModePeriodPlusUnrealized Mode = "period_plus_unrealized"
	ModeTotal                Mode = "total"
)

// Period is the inclusive query window [Start, End].
type Period struct {
	Start int64
	End   int64
}

func (p Period) contains(ts int64) bool {
	return ts >= p.Start && ts <= p.End
}

// Result is the aggregator's answer to one period PnL query.
type Result struct {
	ByKind     map[model.SubEventKind]float64
	Realized   float64
	OpenCost   float64
	OpenValue  float64
	Unrealized float64
	Total      float64
}

// Aggregate filters subEvents by mode and period, and where the mode
// calls for it, folds in unrealized PnL computed from inv's final
// state valued at prices (keyed by token_id.String(), matching
// internal/inventory's bucket keys).
func Aggregate(subEvents []model.RealizedSubEvent, inv *inventory.Inventory, prices map[string]float64, mode Mode, period Period) Result {
	byKind := make(map[model.SubEventKind]float64)
	var realized float64

	for _, se := range subEvents {
		if !includeSubEvent(se, mode, period) {
			continue
		}
		byKind[se.Kind] += se.RealizedPnL
		realized += se.RealizedPnL
	}

	result := Result{ByKind: byKind, Realized: realized}

	switch mode {
	case ModePeriodPlusUnrealized:
		result.OpenCost, result.OpenValue = openCostValue(inv, prices, inventory.TimeRange{From: period.Start, To: period.End})
		result.Unrealized = result.OpenValue - result.OpenCost
	case ModeTotal:
		result.OpenCost, result.OpenValue = openCostValue(inv, prices, inventory.TimeRange{})
		result.Unrealized = result.OpenValue - result.OpenCost
	}

	result.Total = result.Realized + result.Unrealized
	return result
}

func includeSubEvent(se model.RealizedSubEvent, mode Mode, period Period) bool {
	switch mode {
	case ModeRealizedPeriodOnly, ModePeriodPlusUnrealized:
		if !period.contains(se.At) {
			return false
		}
		return se.OpenedAt == nil || period.contains(*se.OpenedAt)
	case ModeRealizedWithHistory, ModeTotal:
		return period.contains(se.At)
	default:
		return false
	}
}

func openCostValue(inv *inventory.Inventory, prices map[string]float64, filter inventory.TimeRange) (cost, value float64) {
	return inv.OpenCost(filter), inv.OpenValue(prices, filter)
}
