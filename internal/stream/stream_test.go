package stream

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/neomarket/ledgerengine/internal/model"
)

var wallet = common.HexToAddress("0x01")
var exchange = common.HexToAddress("0x0E")

func TestBuildOrdersAcrossFamiliesByKey(t *testing.T) {
	in := Input{
		Wallet: wallet,
		Trades: []model.TradeEvent{
			{TxHash: common.HexToHash("0xa"), LogIndex: 1, BlockNumber: 10, Timestamp: 200, IsBuy: true, TokenID: big.NewInt(1)},
		},
		Splits: []model.SplitEvent{
			{TxHash: common.HexToHash("0xb"), LogIndex: 0, BlockNumber: 5, Timestamp: 100},
		},
	}

	out := Build(in)
	if assert.Len(t, out, 2) {
		assert.Equal(t, model.EventSplit, out[0].Kind)
		assert.Equal(t, model.EventTradeBuy, out[1].Kind)
	}
}

func TestResolutionSortsAfterInBlockEvents(t *testing.T) {
	in := Input{
		Wallet: wallet,
		Trades: []model.TradeEvent{
			{TxHash: common.HexToHash("0xa"), LogIndex: 3, BlockNumber: 50, Timestamp: 1000, IsBuy: true},
		},
		ResolvedConditions: []*model.Condition{
			{ConditionID: common.HexToHash("0xc"), ResolvedAt: 1000, ResolvedBlock: 50},
		},
	}

	out := Build(in)
	if assert.Len(t, out, 2) {
		assert.Equal(t, model.EventTradeBuy, out[0].Kind)
		assert.Equal(t, model.EventResolution, out[1].Kind)
	}
}

func TestTransferDroppedWhenTxHashIsBookkeeping(t *testing.T) {
	txHash := common.HexToHash("0xd")
	in := Input{
		Wallet: wallet,
		Splits: []model.SplitEvent{
			{TxHash: txHash, LogIndex: 0, BlockNumber: 1, Timestamp: 10},
		},
		Transfers: []model.TransferEvent{
			{TxHash: txHash, LogIndex: 1, BlockNumber: 1, Timestamp: 10, From: common.HexToAddress("0x99"), To: wallet},
		},
	}

	out := Build(in)
	for _, ev := range out {
		assert.NotEqual(t, model.EventTransferIn, ev.Kind)
	}
}

func TestTransferDroppedWhenExchangeInternal(t *testing.T) {
	in := Input{
		Wallet:            wallet,
		ExchangeAddresses: []common.Address{exchange},
		Transfers: []model.TransferEvent{
			{TxHash: common.HexToHash("0xe"), LogIndex: 0, BlockNumber: 1, Timestamp: 10, Operator: exchange, From: common.HexToAddress("0x99"), To: wallet},
		},
	}
	out := Build(in)
	assert.Empty(t, out)
}

func TestTransferDroppedWhenSelfTransfer(t *testing.T) {
	in := Input{
		Wallet: wallet,
		Transfers: []model.TransferEvent{
			{TxHash: common.HexToHash("0xf"), LogIndex: 0, BlockNumber: 1, Timestamp: 10, From: wallet, To: wallet},
		},
	}
	out := Build(in)
	assert.Empty(t, out)
}

func TestTransferDirectionClassification(t *testing.T) {
	in := Input{
		Wallet: wallet,
		Transfers: []model.TransferEvent{
			{TxHash: common.HexToHash("0x10"), LogIndex: 0, BlockNumber: 1, Timestamp: 10, From: common.HexToAddress("0x99"), To: wallet},
			{TxHash: common.HexToHash("0x11"), LogIndex: 1, BlockNumber: 1, Timestamp: 10, From: wallet, To: common.HexToAddress("0x99")},
		},
	}
	out := Build(in)
	if assert.Len(t, out, 2) {
		assert.Equal(t, model.EventTransferIn, out[0].Kind)
		assert.Equal(t, model.EventTransferOut, out[1].Kind)
	}
}
