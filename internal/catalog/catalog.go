// Package catalog implements the Condition Catalog: an in-memory,
// time-bounded view of market definitions (spec.md §4.2) plus the
// negative-risk market-to-question-count table the adapter_conversion
// handler's reconstruction fallback depends on (spec.md §4.5, §9).
package catalog

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/neomarket/ledgerengine/internal/model"
	"github.com/neomarket/ledgerengine/pkg/tokenid"
)

// Catalog is the per-replay, read-mostly view of conditions and
// negative-risk market question counts. Built once from the loader's
// output before the unified stream begins.
type Catalog struct {
	endTimestamp   int64 // 0 = unbounded; replay's end-time bound (spec.md §4.2)
	conditions     map[common.Hash]*model.Condition
	questionCounts map[common.Hash]int // market_id -> question_count (neg_risk_markets)
}

// New returns an empty Catalog bounded by endTimestamp. A zero
// endTimestamp means unbounded (no conditions are masked as
// unresolved).
func New(endTimestamp int64) *Catalog {
	return &Catalog{
		endTimestamp:   endTimestamp,
		conditions:     make(map[common.Hash]*model.Condition),
		questionCounts: make(map[common.Hash]int),
	}
}

// LoadCondition registers one condition, deriving its outcome-token
// tuple (pkg/tokenid) and applying the replay's time-bound view: a
// condition resolved strictly after endTimestamp is presented as
// unresolved (spec.md §4.2).
func (c *Catalog) LoadCondition(cond model.Condition) {
	cond.OutcomeTokens = tokenid.DeriveAll(
		cond.ParentCollectionID,
		cond.ConditionID,
		cond.OutcomeSlotCount,
		cond.CollateralToken,
	)
	if c.endTimestamp != 0 && cond.Resolved && cond.ResolvedAt > c.endTimestamp {
		cond.Resolved = false
		cond.ResolvedAt = 0
		cond.ResolvedBlock = 0
		cond.PayoutNumerators = nil
		cond.PayoutDenominator = nil
	}
	stored := cond
	c.conditions[cond.ConditionID] = &stored
}

// LoadQuestionCount registers one row of the static neg_risk_markets
// table (spec.md §7): marketID's question count as of the snapshot the
// loader read it from.
func (c *Catalog) LoadQuestionCount(marketID common.Hash, questionCount int) {
	c.questionCounts[marketID] = questionCount
}

// Condition returns the condition for id, and whether it was found.
func (c *Catalog) Condition(id common.Hash) (*model.Condition, bool) {
	cond, ok := c.conditions[id]
	return cond, ok
}

// QuestionCount returns the negative-risk question count for a market,
// and whether the market is known. A stale or absent entry causes the
// adapter_conversion handler to fall back to empty burns/mints per
// spec.md §7 — this catalog does not second-guess staleness.
func (c *Catalog) QuestionCount(marketID common.Hash) (int, bool) {
	n, ok := c.questionCounts[marketID]
	return n, ok
}

// ResolvedConditions returns every condition this time-bounded view
// reports as resolved, for the unified stream to inject synthetic
// resolution events for (spec.md §4.4).
func (c *Catalog) ResolvedConditions() []*model.Condition {
	var out []*model.Condition
	for _, cond := range c.conditions {
		if cond.Resolved {
			out = append(out, cond)
		}
	}
	return out
}

// PayoutRatios returns the payout ratio vector for every outcome index
// of a resolved condition, or nil if the condition is unresolved or
// unknown (spec.md §4.2).
func (c *Catalog) PayoutRatios(id common.Hash) []float64 {
	cond, ok := c.conditions[id]
	if !ok || !cond.Resolved {
		return nil
	}
	ratios := make([]float64, cond.OutcomeSlotCount)
	for i := range ratios {
		ratios[i] = cond.PayoutRatio(i)
	}
	return ratios
}
