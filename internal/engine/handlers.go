package engine

import (
	"math/big"
	"math/bits"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/neomarket/ledgerengine/internal/model"
	"github.com/neomarket/ledgerengine/pkg/fixedpoint"
	"github.com/neomarket/ledgerengine/pkg/tokenid"
)

// tokenQty is an (outcome token, scalar quantity) pair, the unit the
// split/merge/redemption/conversion handlers share for their minted or
// burned baskets.
type tokenQty struct {
	TokenID  *big.Int
	Quantity float64
}

// sortedAmounts converts a same-transaction mint/burn map (keyed by
// token_id.String()) into a deterministically ordered slice, so that
// replay determinism (spec.md §8 property 6) does not depend on Go's
// randomized map iteration order.
func sortedAmounts(m map[string]*big.Int) []tokenQty {
	out := make([]tokenQty, 0, len(m))
	for k, v := range m {
		id, ok := new(big.Int).SetString(k, 10)
		if !ok {
			continue
		}
		out = append(out, tokenQty{TokenID: id, Quantity: fixedpoint.TokenScalar(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID.Cmp(out[j].TokenID) < 0 })
	return out
}

// outcomeIndexFromIndexSet maps a partition member to its outcome
// index via low-bit decomposition (spec.md §4.5), valid only for a
// single-bit index set.
func outcomeIndexFromIndexSet(indexSet uint64) (int, bool) {
	if indexSet == 0 || indexSet&(indexSet-1) != 0 {
		return 0, false
	}
	return bits.TrailingZeros64(indexSet), true
}

// ---- trade_buy / trade_sell --------------------------------------------

func (e *Engine) handleTradeBuy(tr *model.TradeEvent) {
	if tr == nil {
		return
	}
	qty := fixedpoint.TokenScalar(tr.TokenRaw)
	usd := fixedpoint.CollateralScalar(tr.USDCRaw)
	unitPrice := fixedpoint.SafeDiv(usd, qty)

	e.inv.Add(tr.TokenID, qty, unitPrice, tr.Timestamp)
	e.lastTradedPrice[tokenKey(tr.TokenID)] = unitPrice

	e.emit(model.LedgerEntry{
		EventType:      model.EventTradeBuy,
		TxHash:         tr.TxHash,
		LogIndex:       tr.LogIndex,
		BlockNumber:    tr.BlockNumber,
		Timestamp:      tr.Timestamp,
		TokenID:        tr.TokenID,
		Quantity:       qty,
		CashDelta:      -usd,
		CostBasis:      usd,
		UnitPrice:      unitPrice,
		RealizedPnL:    0,
		EntryTimestamp: tr.Timestamp,
	})
}

func (e *Engine) handleTradeSell(tr *model.TradeEvent) {
	if tr == nil {
		return
	}
	qty := fixedpoint.TokenScalar(tr.TokenRaw)
	proceeds := fixedpoint.CollateralScalar(fixedpoint.SubRaw(tr.USDCRaw, tr.FeeRaw))
	unitPrice := fixedpoint.SafeDiv(proceeds, qty)

	costBasis, consumptions := e.inv.Consume(tr.TokenID, qty)
	if len(consumptions) == 0 {
		e.logAnomaly("empty_bucket_consume", zap.String("token_id", tokenKey(tr.TokenID)))
	}
	e.lastTradedPrice[tokenKey(tr.TokenID)] = unitPrice

	for _, c := range consumptions {
		share := fixedpoint.SafeDiv(c.Quantity, qty)
		openedAt := c.OpenedAt
		p := proceeds * share
		e.emitSubEvent(model.RealizedSubEvent{
			Kind:        model.SubEventSell,
			At:          tr.Timestamp,
			OpenedAt:    &openedAt,
			TokenID:     tr.TokenID,
			Proceeds:    p,
			CostBasis:   c.Quantity * c.UnitCost,
			RealizedPnL: p - c.Quantity*c.UnitCost,
		})
	}

	e.emit(model.LedgerEntry{
		EventType:      model.EventTradeSell,
		TxHash:         tr.TxHash,
		LogIndex:       tr.LogIndex,
		BlockNumber:    tr.BlockNumber,
		Timestamp:      tr.Timestamp,
		TokenID:        tr.TokenID,
		Quantity:       qty,
		CashDelta:      proceeds,
		CostBasis:      costBasis,
		UnitPrice:      unitPrice,
		RealizedPnL:    proceeds - costBasis,
		EntryTimestamp: meanOpenedAt(consumptions, tr.Timestamp),
	})
}

// ---- split / merge / redemption, shared by the adapter variants --------

func (e *Engine) doSplit(txHash common.Hash, logIndex, blockNumber uint64, timestamp int64, conditionID common.Hash, partition []uint64, amountRaw *big.Int, mintedByToken map[string]*big.Int, eventType model.EventType) {
	cost := fixedpoint.CollateralScalar(amountRaw)

	var pairs []tokenQty
	var totalMinted float64
	if len(mintedByToken) > 0 {
		pairs = sortedAmounts(mintedByToken)
		raws := make([]*big.Int, 0, len(mintedByToken))
		for _, v := range mintedByToken {
			raws = append(raws, v)
		}
		totalMinted = fixedpoint.TokenScalar(fixedpoint.SumRaw(raws...))
	} else if cond, ok := e.cat.Condition(conditionID); ok {
		var minted int64
		for _, indexSet := range partition {
			idx, single := outcomeIndexFromIndexSet(indexSet)
			if !single || idx >= len(cond.OutcomeTokens) {
				e.logAnomaly("non_single_bit_index_set", zap.Uint64("index_set", indexSet))
				continue
			}
			pairs = append(pairs, tokenQty{TokenID: cond.OutcomeTokens[idx], Quantity: cost})
			minted++
		}
		totalMinted = fixedpoint.CollateralScalar(new(big.Int).Mul(amountRaw, big.NewInt(minted)))
	} else {
		e.logAnomaly("missing_condition", zap.String("condition_id", conditionID.Hex()))
	}

	unitCost := fixedpoint.SafeDiv(cost, totalMinted)
	for _, p := range pairs {
		e.inv.Add(p.TokenID, p.Quantity, unitCost, timestamp)
	}

	e.emit(model.LedgerEntry{
		EventType:      eventType,
		TxHash:         txHash,
		LogIndex:       logIndex,
		BlockNumber:    blockNumber,
		Timestamp:      timestamp,
		ConditionID:    &conditionID,
		Quantity:       totalMinted,
		CashDelta:      -cost,
		CostBasis:      cost,
		UnitPrice:      unitCost,
		RealizedPnL:    0,
		EntryTimestamp: timestamp,
	})
}

func (e *Engine) handleSplit(s *model.SplitEvent) {
	if s == nil {
		return
	}
	e.doSplit(s.TxHash, s.LogIndex, s.BlockNumber, s.Timestamp, s.ConditionID, s.Partition, s.AmountRaw, s.MintedByToken, model.EventSplit)
}

func (e *Engine) handleAdapterSplit(a *model.AdapterEvent) {
	if a == nil {
		return
	}
	e.doSplit(a.TxHash, a.LogIndex, a.BlockNumber, a.Timestamp, a.ConditionID, []uint64{a.IndexSet}, a.AmountRaw, a.MintedByToken, model.EventAdapterSplit)
}

func (e *Engine) doMerge(txHash common.Hash, logIndex, blockNumber uint64, timestamp int64, conditionID common.Hash, amountRaw *big.Int, burnedByToken map[string]*big.Int, eventType model.EventType) {
	proceeds := fixedpoint.CollateralScalar(amountRaw)

	var pairs []tokenQty
	var totalBurned float64
	if len(burnedByToken) > 0 {
		pairs = sortedAmounts(burnedByToken)
		raws := make([]*big.Int, 0, len(burnedByToken))
		for _, v := range burnedByToken {
			raws = append(raws, v)
		}
		totalBurned = fixedpoint.TokenScalar(fixedpoint.SumRaw(raws...))
	} else if cond, ok := e.cat.Condition(conditionID); ok {
		// Fallback over all outcome tokens of the condition (spec.md §4.5),
		// not just the partition named by this event.
		for _, tok := range cond.OutcomeTokens {
			qty := e.inv.TotalQuantity(tok)
			if qty <= 0 {
				continue
			}
			pairs = append(pairs, tokenQty{TokenID: tok, Quantity: qty})
			totalBurned += qty
		}
	} else {
		e.logAnomaly("missing_condition", zap.String("condition_id", conditionID.Hex()))
	}

	unitProceeds := fixedpoint.SafeDiv(proceeds, totalBurned)

	var totalCostBasis float64
	for _, p := range pairs {
		_, consumptions := e.inv.Consume(p.TokenID, p.Quantity)
		for _, c := range consumptions {
			openedAt := c.OpenedAt
			proceedsI := c.Quantity * unitProceeds
			costBasisI := c.Quantity * c.UnitCost
			totalCostBasis += costBasisI
			e.emitSubEvent(model.RealizedSubEvent{
				Kind:        model.SubEventMerge,
				At:          timestamp,
				OpenedAt:    &openedAt,
				TokenID:     p.TokenID,
				Proceeds:    proceedsI,
				CostBasis:   costBasisI,
				RealizedPnL: proceedsI - costBasisI,
			})
		}
	}

	e.emit(model.LedgerEntry{
		EventType:      eventType,
		TxHash:         txHash,
		LogIndex:       logIndex,
		BlockNumber:    blockNumber,
		Timestamp:      timestamp,
		ConditionID:    &conditionID,
		Quantity:       totalBurned,
		CashDelta:      proceeds,
		CostBasis:      totalCostBasis,
		UnitPrice:      unitProceeds,
		RealizedPnL:    proceeds - totalCostBasis,
		EntryTimestamp: timestamp,
	})
}

func (e *Engine) handleMerge(m *model.MergeEvent) {
	if m == nil {
		return
	}
	e.doMerge(m.TxHash, m.LogIndex, m.BlockNumber, m.Timestamp, m.ConditionID, m.AmountRaw, m.BurnedByToken, model.EventMerge)
}

func (e *Engine) handleAdapterMerge(a *model.AdapterEvent) {
	if a == nil {
		return
	}
	e.doMerge(a.TxHash, a.LogIndex, a.BlockNumber, a.Timestamp, a.ConditionID, a.AmountRaw, a.BurnedByToken, model.EventAdapterMerge)
}

func (e *Engine) doRedemption(txHash common.Hash, logIndex, blockNumber uint64, timestamp int64, conditionID common.Hash, indexSets []uint64, payoutRaw *big.Int, burnedByToken map[string]*big.Int, explicitAmounts []*big.Int, eventType model.EventType) {
	payout := fixedpoint.CollateralScalar(payoutRaw)
	cond, condOK := e.cat.Condition(conditionID)

	var pairs []tokenQty
	switch {
	case len(burnedByToken) > 0:
		pairs = sortedAmounts(burnedByToken)
	case explicitAmounts != nil && condOK:
		for i, raw := range explicitAmounts {
			if i >= len(cond.OutcomeTokens) {
				break
			}
			pairs = append(pairs, tokenQty{TokenID: cond.OutcomeTokens[i], Quantity: fixedpoint.TokenScalar(raw)})
		}
	case condOK:
		for _, indexSet := range indexSets {
			idx, single := outcomeIndexFromIndexSet(indexSet)
			if !single || idx >= len(cond.OutcomeTokens) {
				e.logAnomaly("non_single_bit_index_set", zap.Uint64("index_set", indexSet))
				continue
			}
			tok := cond.OutcomeTokens[idx]
			qty := e.inv.TotalQuantity(tok)
			if qty <= 0 {
				continue
			}
			pairs = append(pairs, tokenQty{TokenID: tok, Quantity: qty})
		}
	default:
		e.logAnomaly("missing_condition", zap.String("condition_id", conditionID.Hex()))
	}

	ratios := make(map[string]float64)
	if condOK {
		for i, tok := range cond.OutcomeTokens {
			ratios[tokenKey(tok)] = cond.PayoutRatio(i)
		}
	}

	var expected, totalQty float64
	for _, p := range pairs {
		expected += p.Quantity * ratios[tokenKey(p.TokenID)]
		totalQty += p.Quantity
	}
	if expected == 0 && totalQty == 0 {
		e.logAnomaly("zero_denominator_resolution", zap.String("condition_id", conditionID.Hex()))
	}

	unitProceedsFor := func(p tokenQty) float64 {
		if expected > 0 {
			scale := fixedpoint.SafeDiv(payout, expected)
			return ratios[tokenKey(p.TokenID)] * scale
		}
		return fixedpoint.SafeDiv(payout, totalQty)
	}

	var totalCostBasis float64
	for _, p := range pairs {
		unitProceeds := unitProceedsFor(p)
		_, consumptions := e.inv.Consume(p.TokenID, p.Quantity)
		for _, c := range consumptions {
			openedAt := c.OpenedAt
			proceedsI := c.Quantity * unitProceeds
			costBasisI := c.Quantity * c.UnitCost
			totalCostBasis += costBasisI
			e.emitSubEvent(model.RealizedSubEvent{
				Kind:        model.SubEventRedemption,
				At:          timestamp,
				OpenedAt:    &openedAt,
				TokenID:     p.TokenID,
				Proceeds:    proceedsI,
				CostBasis:   costBasisI,
				RealizedPnL: proceedsI - costBasisI,
			})
		}
	}

	e.emit(model.LedgerEntry{
		EventType:      eventType,
		TxHash:         txHash,
		LogIndex:       logIndex,
		BlockNumber:    blockNumber,
		Timestamp:      timestamp,
		ConditionID:    &conditionID,
		Quantity:       totalQty,
		CashDelta:      payout,
		CostBasis:      totalCostBasis,
		RealizedPnL:    payout - totalCostBasis,
		EntryTimestamp: timestamp,
	})
}

func (e *Engine) handleRedemption(r *model.RedemptionEvent) {
	if r == nil {
		return
	}
	e.doRedemption(r.TxHash, r.LogIndex, r.BlockNumber, r.Timestamp, r.ConditionID, r.IndexSets, r.PayoutRaw, r.BurnedByToken, nil, model.EventRedemption)
}

func (e *Engine) handleAdapterRedemption(a *model.AdapterEvent) {
	if a == nil {
		return
	}
	e.doRedemption(a.TxHash, a.LogIndex, a.BlockNumber, a.Timestamp, a.ConditionID, []uint64{a.IndexSet}, a.AmountRaw, a.BurnedByToken, a.AmountsRaw, model.EventAdapterRedemption)
}

// ---- adapter_conversion -------------------------------------------------

func (e *Engine) handleAdapterConversion(a *model.AdapterEvent) {
	if a == nil {
		return
	}

	var burns, mints []tokenQty
	var burnedQtyRaw, mintedQtyRaw float64
	haveRaw := len(a.BurnedByToken) > 0 || len(a.MintedByToken) > 0
	if haveRaw {
		burns = sortedAmounts(a.BurnedByToken)
		mints = sortedAmounts(a.MintedByToken)
		burnedRaws := make([]*big.Int, 0, len(a.BurnedByToken))
		for _, v := range a.BurnedByToken {
			burnedRaws = append(burnedRaws, v)
		}
		mintedRaws := make([]*big.Int, 0, len(a.MintedByToken))
		for _, v := range a.MintedByToken {
			mintedRaws = append(mintedRaws, v)
		}
		burnedQtyRaw = fixedpoint.TokenScalar(fixedpoint.SumRaw(burnedRaws...))
		mintedQtyRaw = fixedpoint.TokenScalar(fixedpoint.SumRaw(mintedRaws...))
	} else {
		questionCount, ok := e.cat.QuestionCount(a.MarketID)
		if !ok {
			e.logAnomaly("stale_neg_risk_question_count", zap.String("market_id", a.MarketID.Hex()))
		}
		amt := fixedpoint.TokenScalar(a.AmountRaw)
		for i := 0; i < questionCount; i++ {
			yes, no := tokenid.NegRiskOutcomeTokens(e.negRiskAdapter, a.MarketID, uint8(i), e.wrappedCollateral)
			if a.IndexSet&(1<<uint(i)) != 0 {
				burns = append(burns, tokenQty{TokenID: no, Quantity: amt})
			} else {
				mints = append(mints, tokenQty{TokenID: yes, Quantity: amt})
			}
		}
	}

	var burnedQty, mintedQty, totalCostBasis float64
	for _, p := range burns {
		burnedQty += p.Quantity
		costBasis, _ := e.inv.Consume(p.TokenID, p.Quantity)
		totalCostBasis += costBasis
	}
	for _, p := range mints {
		mintedQty += p.Quantity
	}
	if haveRaw {
		burnedQty, mintedQty = burnedQtyRaw, mintedQtyRaw
	}

	if mintedQty > 0 {
		unitCost := fixedpoint.SafeDiv(totalCostBasis, mintedQty)
		for _, p := range mints {
			cost := unitCost
			if totalCostBasis == 0 {
				cost = e.lastTradedPrice[tokenKey(p.TokenID)]
			}
			e.inv.Add(p.TokenID, p.Quantity, cost, a.Timestamp)
		}
	}

	e.emit(model.LedgerEntry{
		EventType:      model.EventAdapterConversion,
		TxHash:         a.TxHash,
		LogIndex:       a.LogIndex,
		BlockNumber:    a.BlockNumber,
		Timestamp:      a.Timestamp,
		Quantity:       mintedQty,
		CashDelta:      0,
		CostBasis:      totalCostBasis,
		RealizedPnL:    0,
		EntryTimestamp: a.Timestamp,
		Metadata:       map[string]string{"market_id": a.MarketID.Hex(), "burned_quantity": strconv.FormatFloat(burnedQty, 'f', -1, 64)},
	})
}

// ---- transfer_in / transfer_out -----------------------------------------

func (e *Engine) handleTransferOut(tr *model.TransferEvent) {
	if tr == nil {
		return
	}
	qty := fixedpoint.TokenScalar(tr.ValueRaw)
	costBasis, consumptions := e.inv.Consume(tr.TokenID, qty)
	if len(consumptions) == 0 {
		e.logAnomaly("empty_bucket_consume", zap.String("token_id", tokenKey(tr.TokenID)))
	}
	unitPrice := fixedpoint.SafeDiv(costBasis, qty)

	e.emit(model.LedgerEntry{
		EventType:      model.EventTransferOut,
		TxHash:         tr.TxHash,
		LogIndex:       tr.LogIndex,
		BlockNumber:    tr.BlockNumber,
		Timestamp:      tr.Timestamp,
		TokenID:        tr.TokenID,
		Quantity:       qty,
		CashDelta:      0,
		CostBasis:      costBasis,
		UnitPrice:      unitPrice,
		RealizedPnL:    0,
		EntryTimestamp: tr.Timestamp,
	})
}

// handleTransferIn adds a lot at the wallet's current weighted-average
// unit cost for the token if it already holds any, else at the last
// known traded price, else zero. Deliberately conservative — spec.md §9
// flags this as an acknowledged approximation, not a bug to be fixed.
func (e *Engine) handleTransferIn(tr *model.TransferEvent) {
	if tr == nil {
		return
	}
	qty := fixedpoint.TokenScalar(tr.ValueRaw)

	var unitCost float64
	if e.inv.TotalQuantity(tr.TokenID) > 0 {
		unitCost = e.inv.WeightedAvgUnitCost(tr.TokenID)
	} else {
		unitCost = e.lastTradedPrice[tokenKey(tr.TokenID)]
	}
	e.inv.Add(tr.TokenID, qty, unitCost, tr.Timestamp)

	e.emit(model.LedgerEntry{
		EventType:      model.EventTransferIn,
		TxHash:         tr.TxHash,
		LogIndex:       tr.LogIndex,
		BlockNumber:    tr.BlockNumber,
		Timestamp:      tr.Timestamp,
		TokenID:        tr.TokenID,
		Quantity:       qty,
		CashDelta:      0,
		CostBasis:      qty * unitCost,
		UnitPrice:      unitCost,
		RealizedPnL:    0,
		EntryTimestamp: tr.Timestamp,
	})
}

// ---- fee_refund / fee_withdrawal ----------------------------------------

func (e *Engine) handleFee(f *model.FeeEvent, eventType model.EventType) {
	if f == nil {
		return
	}
	amount := fixedpoint.CollateralScalar(f.AmountRaw)

	e.emitSubEvent(model.RealizedSubEvent{
		Kind:        model.SubEventFee,
		At:          f.Timestamp,
		Proceeds:    amount,
		CostBasis:   0,
		RealizedPnL: amount,
	})

	e.emit(model.LedgerEntry{
		EventType:      eventType,
		TxHash:         f.TxHash,
		LogIndex:       f.LogIndex,
		BlockNumber:    f.BlockNumber,
		Timestamp:      f.Timestamp,
		CashDelta:      amount,
		CostBasis:      0,
		RealizedPnL:    amount,
		EntryTimestamp: f.Timestamp,
		Metadata:       map[string]string{"module": f.Module},
	})
}

// ---- resolution ----------------------------------------------------------

// handleResolution liquidates every losing outcome bucket of a resolved
// condition, leaving winning buckets untouched until the wallet submits
// its own redemption (spec.md §4.5).
func (e *Engine) handleResolution(res *model.ResolutionEvent) {
	if res == nil {
		return
	}
	cond, ok := e.cat.Condition(res.ConditionID)
	if !ok {
		e.logAnomaly("missing_condition", zap.String("condition_id", res.ConditionID.Hex()))
		return
	}

	for idx, tok := range cond.OutcomeTokens {
		if cond.PayoutRatio(idx) != 0 {
			continue
		}
		qty := e.inv.TotalQuantity(tok)
		if qty <= 0 {
			continue
		}
		costBasis, consumptions := e.inv.Consume(tok, qty)
		for _, c := range consumptions {
			openedAt := c.OpenedAt
			lost := c.Quantity * c.UnitCost
			e.emitSubEvent(model.RealizedSubEvent{
				Kind:        model.SubEventResolutionLoss,
				At:          res.ResolvedAt,
				OpenedAt:    &openedAt,
				TokenID:     tok,
				Proceeds:    0,
				CostBasis:   lost,
				RealizedPnL: -lost,
			})
		}

		conditionID := res.ConditionID
		e.emit(model.LedgerEntry{
			EventType:      model.EventResolutionLoss,
			TxHash:         common.Hash{},
			LogIndex:       model.MaxLogIndex,
			BlockNumber:    res.ResolvedBlock,
			Timestamp:      res.ResolvedAt,
			TokenID:        tok,
			ConditionID:    &conditionID,
			Quantity:       qty,
			CashDelta:      0,
			CostBasis:      costBasis,
			RealizedPnL:    -costBasis,
			EntryTimestamp: res.ResolvedAt,
		})
	}
}
