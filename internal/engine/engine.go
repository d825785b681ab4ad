// Package engine implements the Ledger Engine: the state machine that
// interprets each unified-stream event, mutates the Position Inventory,
// and emits ledger entries and realized-PnL sub-events (spec.md §4.5).
// An Engine is constructed per wallet replay and discarded afterward;
// it holds no state shared across wallets.
package engine

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/neomarket/ledgerengine/internal/catalog"
	"github.com/neomarket/ledgerengine/internal/inventory"
	"github.com/neomarket/ledgerengine/internal/metrics"
	"github.com/neomarket/ledgerengine/internal/model"
)

// Engine is the per-wallet replay state machine.
type Engine struct {
	wallet common.Address
	inv    *inventory.Inventory
	cat    *catalog.Catalog

	// lastTradedPrice is the last observed trade_buy/trade_sell unit
	// price per token, the fallback valuation used by adapter_conversion/
	// transfer_in when no better signal exists, and the Snapshotter's
	// valuation oracle.
	lastTradedPrice map[string]float64

	// negRiskAdapter and wrappedCollateral parameterize the negative-
	// risk adapter_conversion reconstruction fallback (spec.md §4.5,
	// §4.8); both are static per-deployment addresses, not per-event
	// fields, so they are configured once at construction.
	negRiskAdapter    common.Address
	wrappedCollateral common.Address

	ledger    []model.LedgerEntry
	subEvents []model.RealizedSubEvent

	// realizedCum and cashflowCum track the running totals of every
	// ledger entry emitted so far, updated incrementally in emit so the
	// Snapshotter can read them in constant time instead of re-summing
	// the ledger on every snapshot (spec.md §5).
	realizedCum float64
	cashflowCum float64

	logger  *zap.Logger
	metrics metrics.Recorder
}

// Config holds the static, per-deployment parameters an Engine needs
// beyond the event stream itself.
type Config struct {
	NegRiskAdapterAddress    common.Address
	WrappedCollateralAddress common.Address
}

// New constructs an empty Engine for one wallet replay.
func New(wallet common.Address, cat *catalog.Catalog, cfg Config, logger *zap.Logger, rec metrics.Recorder) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Engine{
		wallet:            wallet,
		inv:               inventory.New(),
		cat:               cat,
		lastTradedPrice:   make(map[string]float64),
		negRiskAdapter:    cfg.NegRiskAdapterAddress,
		wrappedCollateral: cfg.WrappedCollateralAddress,
		logger:            logger,
		metrics:           rec,
	}
}

// Inventory exposes the underlying Position Inventory, read by the
// Snapshotter between events during replay.
func (e *Engine) Inventory() *inventory.Inventory { return e.inv }

// LastTradedPrices returns the then-current last-traded-price map, used
// by the Snapshotter as its valuation oracle (spec.md §4.6). The
// returned map is owned by the engine; callers must not mutate it.
func (e *Engine) LastTradedPrices() map[string]float64 { return e.lastTradedPrice }

// Ledger returns every ledger entry emitted so far, in emission order.
func (e *Engine) Ledger() []model.LedgerEntry { return e.ledger }

// SubEvents returns every realized sub-event emitted so far, in
// emission order.
func (e *Engine) SubEvents() []model.RealizedSubEvent { return e.subEvents }

// RealizedCumulative returns the running sum of every ledger entry's
// realized_pnl emitted so far.
func (e *Engine) RealizedCumulative() float64 { return e.realizedCum }

// CashflowCumulative returns the running sum of every ledger entry's
// cash_delta emitted so far.
func (e *Engine) CashflowCumulative() float64 { return e.cashflowCum }

// Process replays events in order, dispatching each to its fixed
// handler (spec.md §4.5). Events must already be in unified-stream
// order (internal/stream.Build's output).
func (e *Engine) Process(events []model.ChainEvent) {
	for i := range events {
		e.dispatch(&events[i])
	}
}

// HandleEvent dispatches a single event. Exported so the Snapshotter can
// interleave snapshot emission between individual events of a replay
// (spec.md §4.6) without duplicating the dispatch table.
func (e *Engine) HandleEvent(ev model.ChainEvent) {
	e.dispatch(&ev)
}

func (e *Engine) dispatch(ev *model.ChainEvent) {
	switch ev.Kind {
	case model.EventTradeBuy:
		e.handleTradeBuy(ev.Trade)
	case model.EventTradeSell:
		e.handleTradeSell(ev.Trade)
	case model.EventSplit:
		e.handleSplit(ev.Split)
	case model.EventMerge:
		e.handleMerge(ev.Merge)
	case model.EventRedemption:
		e.handleRedemption(ev.Redemption)
	case model.EventAdapterSplit:
		e.handleAdapterSplit(ev.Adapter)
	case model.EventAdapterMerge:
		e.handleAdapterMerge(ev.Adapter)
	case model.EventAdapterRedemption:
		e.handleAdapterRedemption(ev.Adapter)
	case model.EventAdapterConversion:
		e.handleAdapterConversion(ev.Adapter)
	case model.EventTransferIn:
		e.handleTransferIn(ev.Transfer)
	case model.EventTransferOut:
		e.handleTransferOut(ev.Transfer)
	case model.EventFeeRefund:
		e.handleFee(ev.Fee, model.EventFeeRefund)
	case model.EventFeeWithdrawal:
		e.handleFee(ev.Fee, model.EventFeeWithdrawal)
	case model.EventResolution:
		e.handleResolution(ev.Resolution)
	default:
		e.logger.Warn("engine: unhandled event kind", zap.String("kind", string(ev.Kind)))
	}
}

// emit appends a ledger entry, stamping its deterministic stable_id.
func (e *Engine) emit(entry model.LedgerEntry) model.LedgerEntry {
	entry.Wallet = e.wallet
	entry.StableID = stableID(entry.TxHash, entry.LogIndex, entry.EventType, entry.TokenID)
	e.ledger = append(e.ledger, entry)
	e.realizedCum += entry.RealizedPnL
	e.cashflowCum += entry.CashDelta
	return entry
}

func (e *Engine) emitSubEvent(sub model.RealizedSubEvent) {
	e.subEvents = append(e.subEvents, sub)
}

// logAnomaly records a source-inconsistency or numerical anomaly
// (spec.md §7): logged at warn level, counted, replay continues.
func (e *Engine) logAnomaly(kind string, fields ...zap.Field) {
	e.metrics.IncAnomaly(kind)
	e.logger.Warn("engine: anomaly", append([]zap.Field{zap.String("kind", kind)}, fields...)...)
}

// stableID derives a deterministic ledger-entry identifier from
// (tx_hash, log_index, event_type, token_id), so that two replays over
// the same input produce byte-identical rows (spec.md §8 property 6) —
// a random identifier (e.g. a UUID) would break that guarantee.
func stableID(txHash common.Hash, logIndex uint64, eventType model.EventType, tokenID *big.Int) string {
	buf := make([]byte, 0, common.HashLength+8+len(eventType)+common.HashLength)
	buf = append(buf, txHash.Bytes()...)
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], logIndex)
	buf = append(buf, idx[:]...)
	buf = append(buf, []byte(eventType)...)
	if tokenID != nil {
		buf = append(buf, common.LeftPadBytes(tokenID.Bytes(), 32)...)
	}
	return crypto.Keccak256Hash(buf).Hex()
}

func tokenKey(tokenID *big.Int) string {
	if tokenID == nil {
		return ""
	}
	return tokenID.String()
}

// meanOpenedAt returns the quantity-weighted mean opened_at across a
// set of lot consumptions, the entry_timestamp spec.md §4.5 assigns to
// a trade_sell (falls back to fallbackTs when consumptions is empty).
func meanOpenedAt(consumptions []model.Consumption, fallbackTs int64) int64 {
	if len(consumptions) == 0 {
		return fallbackTs
	}
	var totalQty, weighted float64
	for _, c := range consumptions {
		totalQty += c.Quantity
		weighted += c.Quantity * float64(c.OpenedAt)
	}
	if totalQty == 0 {
		return fallbackTs
	}
	return int64(weighted / totalQty)
}
