// Package stream implements the Unified Event Stream: it fuses the
// Event Loader's typed per-family rows into one sequence ordered by
// (timestamp, block, log_index, type_tag), injects synthetic
// resolution events, and applies the transfer-dedup rules (spec.md
// §4.4). The fuse is an explicit k-way merge over already-sorted
// per-family streams rather than a global sort, per spec.md §9's
// cross-family-iteration design note.
package stream

import (
	"container/heap"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neomarket/ledgerengine/internal/model"
)

// Input is everything the Event Loader produces for one wallet replay.
type Input struct {
	Wallet             common.Address
	ExchangeAddresses  []common.Address
	Trades             []model.TradeEvent
	Splits             []model.SplitEvent
	Merges             []model.MergeEvent
	Redemptions        []model.RedemptionEvent
	Adapters           []model.AdapterEvent
	Transfers          []model.TransferEvent
	Fees               []model.FeeEvent
	ResolvedConditions []*model.Condition
}

// Build fuses in into one ordered sequence of ChainEvents, dropping
// transfers that are the token-leg of a bookkeeping event, transfers
// internal to an exchange operator, and wallet self-transfers (spec.md
// §4.4).
func Build(in Input) []model.ChainEvent {
	bookkeepingTx := bookkeepingTxHashes(in)
	exchangeSet := addressSet(in.ExchangeAddresses)

	families := [][]model.ChainEvent{
		tradeEvents(in.Trades),
		splitEvents(in.Splits),
		mergeEvents(in.Merges),
		redemptionEvents(in.Redemptions),
		adapterEvents(in.Adapters),
		transferEvents(filterTransfers(in.Transfers, in.Wallet, bookkeepingTx, exchangeSet), in.Wallet),
		feeEvents(in.Fees),
		resolutionEvents(in.ResolvedConditions),
	}

	for _, fam := range families {
		sortFamily(fam)
	}
	return kWayMerge(families)
}

func sortFamily(fam []model.ChainEvent) {
	sort.SliceStable(fam, func(i, j int) bool { return fam[i].Key.Less(fam[j].Key) })
}

func bookkeepingTxHashes(in Input) map[common.Hash]bool {
	set := make(map[common.Hash]bool)
	for _, s := range in.Splits {
		set[s.TxHash] = true
	}
	for _, m := range in.Merges {
		set[m.TxHash] = true
	}
	for _, r := range in.Redemptions {
		set[r.TxHash] = true
	}
	for _, a := range in.Adapters {
		set[a.TxHash] = true
	}
	return set
}

func addressSet(addrs []common.Address) map[common.Address]bool {
	set := make(map[common.Address]bool, len(addrs))
	for _, a := range addrs {
		set[a] = true
	}
	return set
}

// filterTransfers applies spec.md §4.4's three drop rules.
func filterTransfers(transfers []model.TransferEvent, wallet common.Address, bookkeepingTx map[common.Hash]bool, exchangeSet map[common.Address]bool) []model.TransferEvent {
	out := make([]model.TransferEvent, 0, len(transfers))
	for _, tr := range transfers {
		if bookkeepingTx[tr.TxHash] {
			continue
		}
		if exchangeSet[tr.Operator] {
			continue
		}
		if tr.From == wallet && tr.To == wallet {
			continue
		}
		out = append(out, tr)
	}
	return out
}

func tradeEvents(trades []model.TradeEvent) []model.ChainEvent {
	out := make([]model.ChainEvent, len(trades))
	for i := range trades {
		tr := trades[i]
		typeTag := model.EventTradeSell
		if tr.IsBuy {
			typeTag = model.EventTradeBuy
		}
		out[i] = model.ChainEvent{
			Key:   model.OrderKey{Timestamp: tr.Timestamp, BlockNumber: tr.BlockNumber, LogIndex: tr.LogIndex, TypeTag: typeTag},
			Kind:  typeTag,
			Trade: &trades[i],
		}
	}
	return out
}

func splitEvents(splits []model.SplitEvent) []model.ChainEvent {
	out := make([]model.ChainEvent, len(splits))
	for i := range splits {
		s := splits[i]
		out[i] = model.ChainEvent{
			Key:   model.OrderKey{Timestamp: s.Timestamp, BlockNumber: s.BlockNumber, LogIndex: s.LogIndex, TypeTag: model.EventSplit},
			Kind:  model.EventSplit,
			Split: &splits[i],
		}
	}
	return out
}

func mergeEvents(merges []model.MergeEvent) []model.ChainEvent {
	out := make([]model.ChainEvent, len(merges))
	for i := range merges {
		m := merges[i]
		out[i] = model.ChainEvent{
			Key:   model.OrderKey{Timestamp: m.Timestamp, BlockNumber: m.BlockNumber, LogIndex: m.LogIndex, TypeTag: model.EventMerge},
			Kind:  model.EventMerge,
			Merge: &merges[i],
		}
	}
	return out
}

func redemptionEvents(redemptions []model.RedemptionEvent) []model.ChainEvent {
	out := make([]model.ChainEvent, len(redemptions))
	for i := range redemptions {
		r := redemptions[i]
		out[i] = model.ChainEvent{
			Key:        model.OrderKey{Timestamp: r.Timestamp, BlockNumber: r.BlockNumber, LogIndex: r.LogIndex, TypeTag: model.EventRedemption},
			Kind:       model.EventRedemption,
			Redemption: &redemptions[i],
		}
	}
	return out
}

func adapterTypeTag(variant model.AdapterVariant) model.EventType {
	switch variant {
	case model.AdapterVariantSplit:
		return model.EventAdapterSplit
	case model.AdapterVariantMerge:
		return model.EventAdapterMerge
	case model.AdapterVariantRedemption:
		return model.EventAdapterRedemption
	default:
		return model.EventAdapterConversion
	}
}

func adapterEvents(adapters []model.AdapterEvent) []model.ChainEvent {
	out := make([]model.ChainEvent, len(adapters))
	for i := range adapters {
		a := adapters[i]
		typeTag := adapterTypeTag(a.Variant)
		out[i] = model.ChainEvent{
			Key:     model.OrderKey{Timestamp: a.Timestamp, BlockNumber: a.BlockNumber, LogIndex: a.LogIndex, TypeTag: typeTag},
			Kind:    typeTag,
			Adapter: &adapters[i],
		}
	}
	return out
}

func transferEvents(transfers []model.TransferEvent, wallet common.Address) []model.ChainEvent {
	out := make([]model.ChainEvent, len(transfers))
	for i := range transfers {
		tr := transfers[i]
		typeTag := model.EventTransferOut
		if tr.To == wallet {
			typeTag = model.EventTransferIn
		}
		out[i] = model.ChainEvent{
			Key:      model.OrderKey{Timestamp: tr.Timestamp, BlockNumber: tr.BlockNumber, LogIndex: tr.LogIndex, TypeTag: typeTag},
			Kind:     typeTag,
			Transfer: &transfers[i],
		}
	}
	return out
}

func feeEvents(fees []model.FeeEvent) []model.ChainEvent {
	out := make([]model.ChainEvent, len(fees))
	for i := range fees {
		f := fees[i]
		typeTag := model.EventFeeRefund
		if f.Withdrawal {
			typeTag = model.EventFeeWithdrawal
		}
		out[i] = model.ChainEvent{
			Key:  model.OrderKey{Timestamp: f.Timestamp, BlockNumber: f.BlockNumber, LogIndex: f.LogIndex, TypeTag: typeTag},
			Kind: typeTag,
			Fee:  &fees[i],
		}
	}
	return out
}

func resolutionEvents(conditions []*model.Condition) []model.ChainEvent {
	out := make([]model.ChainEvent, len(conditions))
	for i, cond := range conditions {
		out[i] = model.ChainEvent{
			Key: model.OrderKey{
				Timestamp:   cond.ResolvedAt,
				BlockNumber: cond.ResolvedBlock,
				LogIndex:    model.MaxLogIndex,
				TypeTag:     model.EventResolution,
			},
			Kind: model.EventResolution,
			Resolution: &model.ResolutionEvent{
				ConditionID:   cond.ConditionID,
				ResolvedAt:    cond.ResolvedAt,
				ResolvedBlock: cond.ResolvedBlock,
			},
		}
	}
	return out
}

// mergeItem is one heap entry: the next unconsumed event of one family
// plus that family's remaining slice.
type mergeItem struct {
	events []model.ChainEvent
}

type mergeHeap []mergeItem

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return h[i].events[0].Key.Less(h[j].events[0].Key) }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(mergeItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// kWayMerge merges already-sorted family slices into one ordered
// sequence, consuming one event at a time from the head of whichever
// family currently holds the smallest key. The heap holds one entry per
// family (a constant); the family slices and the merged output are
// still held in memory in full.
func kWayMerge(families [][]model.ChainEvent) []model.ChainEvent {
	h := make(mergeHeap, 0, len(families))
	total := 0
	for _, fam := range families {
		if len(fam) == 0 {
			continue
		}
		h = append(h, mergeItem{events: fam})
		total += len(fam)
	}
	heap.Init(&h)

	out := make([]model.ChainEvent, 0, total)
	for h.Len() > 0 {
		top := h[0]
		out = append(out, top.events[0])
		rest := top.events[1:]
		if len(rest) == 0 {
			heap.Pop(&h)
		} else {
			h[0].events = rest
			heap.Fix(&h, 0)
		}
	}
	return out
}
