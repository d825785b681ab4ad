// Package inventory implements the Position Inventory: a per-wallet,
// per-token FIFO lot book with add/consume/query operations (spec.md
// §4.1). An Inventory is constructed empty for one wallet replay,
// mutated in event order, and discarded at the end — it owns no shared
// state across wallets and needs no locking.
package inventory

import (
	"math/big"

	"github.com/neomarket/ledgerengine/internal/model"
)

// residualEpsilon is the quantity below which a partially consumed lot
// is dropped rather than kept as a near-zero residual (spec.md §4.1).
const residualEpsilon = 1e-7

// bucket is the FIFO sequence of lots for one outcome-token identifier.
// Lots are consumed from the head (index 0); new lots are appended at
// the tail. No merging of adjacent lots: FIFO identity is preserved
// even when two lots share an unit_cost.
type bucket struct {
	tokenID *big.Int
	lots    []model.Lot
}

// Inventory is the FIFO lot book for a single wallet, keyed by
// outcome-token identifier.
type Inventory struct {
	buckets map[string]*bucket
}

// New returns an empty Inventory.
func New() *Inventory {
	return &Inventory{buckets: make(map[string]*bucket)}
}

func tokenKey(tokenID *big.Int) string {
	if tokenID == nil {
		return ""
	}
	return tokenID.String()
}

func (inv *Inventory) bucketFor(tokenID *big.Int, create bool) *bucket {
	key := tokenKey(tokenID)
	b, ok := inv.buckets[key]
	if !ok {
		if !create {
			return nil
		}
		b = &bucket{tokenID: tokenID}
		inv.buckets[key] = b
	}
	return b
}

// Add appends a new lot to the token's bucket. No merging of adjacent
// lots (spec.md §4.1).
func (inv *Inventory) Add(tokenID *big.Int, qty, unitCost float64, openedAt int64) {
	if qty <= 0 {
		return
	}
	b := inv.bucketFor(tokenID, true)
	b.lots = append(b.lots, model.Lot{Quantity: qty, UnitCost: unitCost, OpenedAt: openedAt})
}

// Consume pops up to qty units from the head of the token's bucket,
// returning the total cost basis removed and one Consumption record per
// lot touched. A lot is dropped once its residual quantity drops below
// residualEpsilon. If the bucket holds less than qty (including an
// empty or absent bucket), the shortfall is accepted with zero cost
// basis — spec.md §4.1 and §7 require consume to never leave a negative
// lot, and callers that need the shortfall size compare the returned
// quantity sum against qty themselves.
func (inv *Inventory) Consume(tokenID *big.Int, qty float64) (costBasis float64, consumptions []model.Consumption) {
	if qty <= 0 {
		return 0, nil
	}
	b := inv.bucketFor(tokenID, false)
	if b == nil {
		return 0, nil
	}

	remaining := qty
	head := 0
	for head < len(b.lots) && remaining > residualEpsilon {
		lot := &b.lots[head]
		take := lot.Quantity
		if take > remaining {
			take = remaining
		}
		cost := take * lot.UnitCost
		costBasis += cost
		consumptions = append(consumptions, model.Consumption{
			Quantity: take,
			UnitCost: lot.UnitCost,
			OpenedAt: lot.OpenedAt,
		})
		lot.Quantity -= take
		remaining -= take
		if lot.Quantity < residualEpsilon {
			head++
		}
	}
	b.lots = b.lots[head:]
	return costBasis, consumptions
}

// TotalQuantity returns the sum of quantities across all lots in a
// token's bucket, zero if the token has never been touched.
func (inv *Inventory) TotalQuantity(tokenID *big.Int) float64 {
	b := inv.bucketFor(tokenID, false)
	if b == nil {
		return 0
	}
	var total float64
	for _, lot := range b.lots {
		total += lot.Quantity
	}
	return total
}

// WeightedAvgUnitCost returns the quantity-weighted mean unit cost
// across a token's open lots, zero if the bucket is empty.
func (inv *Inventory) WeightedAvgUnitCost(tokenID *big.Int) float64 {
	b := inv.bucketFor(tokenID, false)
	if b == nil {
		return 0
	}
	var totalQty, totalCost float64
	for _, lot := range b.lots {
		totalQty += lot.Quantity
		totalCost += lot.Quantity * lot.UnitCost
	}
	if totalQty == 0 {
		return 0
	}
	return totalCost / totalQty
}

// Position is a snapshot view of one non-empty token bucket.
type Position struct {
	TokenID  *big.Int
	Quantity float64
	Lots     []model.Lot
}

// OpenPositions yields every non-empty bucket. Order is not significant
// to callers — the snapshotter only counts the positions.
func (inv *Inventory) OpenPositions() []Position {
	var out []Position
	for _, b := range inv.buckets {
		if len(b.lots) == 0 {
			continue
		}
		var qty float64
		for _, lot := range b.lots {
			qty += lot.Quantity
		}
		if qty <= 0 {
			continue
		}
		lots := make([]model.Lot, len(b.lots))
		copy(lots, b.lots)
		out = append(out, Position{TokenID: b.tokenID, Quantity: qty, Lots: lots})
	}
	return out
}

// TimeRange restricts open_cost/open_value to lots whose OpenedAt falls
// within [From, To]. A zero TimeRange (both fields 0) means unbounded.
type TimeRange struct {
	From int64
	To   int64
}

func (r TimeRange) includes(openedAt int64) bool {
	if r.From == 0 && r.To == 0 {
		return true
	}
	if r.From != 0 && openedAt < r.From {
		return false
	}
	if r.To != 0 && openedAt > r.To {
		return false
	}
	return true
}

// OpenCost sums unit_cost*quantity over all open lots, optionally
// restricted to lots opened within filter.
func (inv *Inventory) OpenCost(filter TimeRange) float64 {
	var total float64
	for _, b := range inv.buckets {
		for _, lot := range b.lots {
			if !filter.includes(lot.OpenedAt) {
				continue
			}
			total += lot.Quantity * lot.UnitCost
		}
	}
	return total
}

// OpenValue sums quantity valued at the given per-token price, optionally
// restricted to lots opened within filter. Tokens absent from prices
// value at zero.
func (inv *Inventory) OpenValue(prices map[string]float64, filter TimeRange) float64 {
	var total float64
	for key, b := range inv.buckets {
		price := prices[key]
		for _, lot := range b.lots {
			if !filter.includes(lot.OpenedAt) {
				continue
			}
			total += lot.Quantity * price
		}
	}
	return total
}
