package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OrderKey is the total ordering key for the unified event stream
// (spec.md §4.4): (timestamp_sec, block_number, log_index, type_tag)
// ascending, with the synthetic resolution event sorting after every
// real event in its block via MaxLogIndex.
type OrderKey struct {
	Timestamp   int64
	BlockNumber uint64
	LogIndex    uint64
	TypeTag     EventType
}

// Less implements the total order spec.md §4.4 specifies.
func (k OrderKey) Less(o OrderKey) bool {
	if k.Timestamp != o.Timestamp {
		return k.Timestamp < o.Timestamp
	}
	if k.BlockNumber != o.BlockNumber {
		return k.BlockNumber < o.BlockNumber
	}
	if k.LogIndex != o.LogIndex {
		return k.LogIndex < o.LogIndex
	}
	return k.TypeTag < o.TypeTag
}

// ChainEvent is the one polymorphic sum type the unified stream merges
// over. Exactly one of the typed fields below is non-nil, selected by
// Kind. This is the typed replacement for the source's loose per-row
// record decoding (spec.md §9).
type ChainEvent struct {
	Key  OrderKey
	Kind EventType

	Trade      *TradeEvent
	Split      *SplitEvent
	Merge      *MergeEvent
	Redemption *RedemptionEvent
	Adapter    *AdapterEvent
	Transfer   *TransferEvent
	Fee        *FeeEvent
	Resolution *ResolutionEvent
}

// TradeEvent is one maker/taker leg of an OrderFilled fill involving the
// replayed wallet, already resolved to buy or sell from that wallet's
// perspective.
type TradeEvent struct {
	TxHash      common.Hash
	LogIndex    uint64
	BlockNumber uint64
	Timestamp   int64

	Maker    common.Address
	Taker    common.Address
	TokenID  *big.Int
	TokenRaw *big.Int // raw outcome-token amount, 18 decimals
	USDCRaw  *big.Int // raw collateral amount, 6 decimals
	FeeRaw   *big.Int
	IsBuy    bool // true if the wallet is on the buy side of this fill
}

// SplitEvent: collateral → outcome-token basket for one partition.
type SplitEvent struct {
	TxHash             common.Hash
	LogIndex           uint64
	BlockNumber        uint64
	Timestamp          int64

	Stakeholder        common.Address
	Collateral         common.Address
	ParentCollectionID common.Hash
	ConditionID        common.Hash
	Partition          []uint64 // index sets, one per minted basket member
	AmountRaw          *big.Int

	// MintedByToken is non-nil when same-transaction ERC-1155 mints to the
	// wallet were observed; keyed by outcome-token id string. Nil triggers
	// the partition-decomposition fallback (spec.md §4.5).
	MintedByToken map[string]*big.Int
}

// MergeEvent: outcome-token basket → collateral.
type MergeEvent struct {
	TxHash             common.Hash
	LogIndex           uint64
	BlockNumber        uint64
	Timestamp          int64

	Stakeholder        common.Address
	Collateral         common.Address
	ParentCollectionID common.Hash
	ConditionID        common.Hash
	Partition          []uint64
	AmountRaw          *big.Int

	BurnedByToken map[string]*big.Int // same-tx burns from the wallet, else fallback
}

// RedemptionEvent: burning held outcome tokens of a resolved condition.
type RedemptionEvent struct {
	TxHash      common.Hash
	LogIndex    uint64
	BlockNumber uint64
	Timestamp   int64

	Redeemer    common.Address
	ConditionID common.Hash
	IndexSets   []uint64
	PayoutRaw   *big.Int

	// BurnedByToken: same-tx burns from the wallet (preferred), or nil to
	// trigger the index-set fallback. The adapter variant's explicit
	// per-outcome amounts travel in AdapterEvent.AmountsRaw instead.
	BurnedByToken map[string]*big.Int
}

// AdapterVariant distinguishes the four adapter_{split,merge,redemption,
// conversion} families sharing one wire shape.
type AdapterVariant string

const (
	AdapterVariantSplit      AdapterVariant = "split"
	AdapterVariantMerge      AdapterVariant = "merge"
	AdapterVariantRedemption AdapterVariant = "redemption"
	AdapterVariantConversion AdapterVariant = "conversion"
)

// AdapterEvent covers all four negative-risk adapter event families.
type AdapterEvent struct {
	TxHash      common.Hash
	LogIndex    uint64
	BlockNumber uint64
	Timestamp   int64

	Variant     AdapterVariant
	Stakeholder common.Address
	ConditionID common.Hash // split/merge/redemption
	MarketID    common.Hash // conversion
	IndexSet    uint64
	AmountRaw   *big.Int
	AmountsRaw  []*big.Int // per-outcome amounts, redemption adapter variant

	BurnedByToken map[string]*big.Int
	MintedByToken map[string]*big.Int
}

// TransferEvent is an ERC-1155 single transfer. The loader returns every
// row touching the wallet; the unified stream drops exchange-internal,
// bookkeeping-reconstructed and self-transfer legs before dispatch
// (spec.md §4.4).
type TransferEvent struct {
	TxHash      common.Hash
	LogIndex    uint64
	BlockNumber uint64
	Timestamp   int64

	Operator common.Address
	From     common.Address
	To       common.Address
	TokenID  *big.Int
	ValueRaw *big.Int
}

// FeeEvent covers both fee_refund and fee_withdrawal families.
type FeeEvent struct {
	TxHash      common.Hash
	LogIndex    uint64
	BlockNumber uint64
	Timestamp   int64

	Module     string
	To         common.Address
	AmountRaw  *big.Int
	Withdrawal bool // true => fee_withdrawal, false => fee_refund
}

// ResolutionEvent is synthesized by the unified stream for every condition
// the catalog reports resolved (spec.md §4.4), never read from a raw table.
type ResolutionEvent struct {
	ConditionID   common.Hash
	ResolvedAt    int64
	ResolvedBlock uint64
}
