// Package model defines the shared vocabulary of the ledger engine: the
// chain-event records the loader produces, the ledger entries and realized
// sub-events the engine emits, and the snapshot rows the snapshotter emits.
// It has no dependency on any other internal package, matching the
// teacher's flat top-level types.go.
package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokensPerCollateralUnit is the fixed integer ratio between 18-decimal
// outcome-token units and 6-decimal collateral units (10^18 / 10^6).
const TokensPerCollateralUnit = 1_000_000_000_000

// EventType tags every ledger entry and every unified-stream record with
// the handler that produced or will consume it.
type EventType string

const (
	EventTradeBuy            EventType = "trade_buy"
	EventTradeSell           EventType = "trade_sell"
	EventSplit               EventType = "split"
	EventMerge               EventType = "merge"
	EventRedemption          EventType = "redemption"
	EventAdapterSplit        EventType = "adapter_split"
	EventAdapterMerge        EventType = "adapter_merge"
	EventAdapterRedemption   EventType = "adapter_redemption"
	EventAdapterConversion   EventType = "adapter_conversion"
	EventMint                EventType = "mint"
	EventBurn                EventType = "burn"
	EventTransferIn          EventType = "transfer_in"
	EventTransferOut         EventType = "transfer_out"
	EventFeeRefund           EventType = "fee_refund"
	EventFeeWithdrawal       EventType = "fee_withdrawal"
	EventResolutionLoss EventType = "resolution_loss"
	// EventResolution tags the synthetic stream record the unified event
	// stream injects per resolved condition; it is never a ledger entry's
	// own event_type (the engine picks resolution_loss or nothing per
	// outcome index when it handles one).
	EventResolution EventType = "resolution"
)

// MaxLogIndex places the synthetic resolution record strictly after every
// real in-block event when sorting the unified stream (spec.md §4.4).
const MaxLogIndex = ^uint64(0)

// Condition is a market definition prepared by an oracle. Immutable once
// Resolved is true; payouts are absent until then.
type Condition struct {
	ConditionID        common.Hash
	Oracle             common.Address
	OutcomeSlotCount   int
	ParentCollectionID common.Hash
	CollateralToken    common.Address
	PayoutNumerators   []*big.Int // len == OutcomeSlotCount once resolved
	PayoutDenominator  *big.Int
	Resolved           bool
	ResolvedAt         int64
	ResolvedBlock      uint64

	// OutcomeTokens is the cached, derived tuple of outcome-token
	// identifiers, one per outcome index (pkg/tokenid).
	OutcomeTokens []*big.Int
}

// PayoutRatio returns the resolution payout ratio for one outcome index.
// Zero if unresolved or the denominator is zero (spec.md §4.2).
func (c *Condition) PayoutRatio(outcomeIndex int) float64 {
	if !c.Resolved || outcomeIndex < 0 || outcomeIndex >= len(c.PayoutNumerators) {
		return 0
	}
	if c.PayoutDenominator == nil || c.PayoutDenominator.Sign() == 0 {
		return 0
	}
	num := new(big.Float).SetInt(c.PayoutNumerators[outcomeIndex])
	den := new(big.Float).SetInt(c.PayoutDenominator)
	ratio, _ := new(big.Float).Quo(num, den).Float64()
	return ratio
}

// Lot is a quantity-at-cost-at-time record, the FIFO unit of inventory
// (spec.md §3). UnitCost and OpenedAt never change; Quantity is reduced
// in place when the inventory consumes part of the lot.
type Lot struct {
	Quantity  float64
	UnitCost  float64
	OpenedAt  int64
}

// LedgerEntry is an append-only row carrying one accounting decision.
type LedgerEntry struct {
	StableID      string
	Wallet        common.Address
	EventType     EventType
	TxHash        common.Hash
	LogIndex      uint64
	BlockNumber   uint64
	Timestamp     int64
	TokenID       *big.Int // nil if the entry is not token-scoped
	ConditionID   *common.Hash
	Quantity      float64
	CashDelta     float64
	UnitPrice     float64
	CostBasis     float64
	RealizedPnL   float64
	EntryTimestamp int64 // quantity-weighted mean opened_at of consumed lots, or Timestamp
	Metadata      map[string]string
}

// SubEventKind classifies a RealizedSubEvent for period/mode filtering by
// the PnL Aggregator (spec.md §4.7).
type SubEventKind string

const (
	SubEventSell           SubEventKind = "sell"
	SubEventRedemption     SubEventKind = "redemption"
	SubEventMerge          SubEventKind = "merge"
	SubEventResolutionLoss SubEventKind = "resolution_loss"
	SubEventFee            SubEventKind = "fee"
)

// RealizedSubEvent records one lot-level realization. Consumed only by the
// PnL Aggregator, never written to the ledger table directly.
type RealizedSubEvent struct {
	Kind        SubEventKind
	At          int64
	OpenedAt    *int64 // nil when the realization has no single originating lot (e.g. fee)
	TokenID     *big.Int
	Proceeds    float64
	CostBasis   float64
	RealizedPnL float64
}

// Snapshot is a point-in-time valuation of a wallet's ledger state.
type Snapshot struct {
	Wallet         common.Address
	At             int64
	RealizedCum    float64
	Unrealized     float64
	OpenCost       float64
	OpenValue      float64
	CashflowCum    float64
	OpenTokenCount int
}

// Consumption records one lot touched by an Inventory.Consume call, used
// to emit proportional realized sub-events per handler (spec.md §4.1).
type Consumption struct {
	Quantity  float64
	UnitCost  float64
	OpenedAt  int64
}
