package loader

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neomarket/ledgerengine/internal/model"
)

var wallet = common.HexToAddress("0x000000000000000000000000000000000000aa")

func TestLoadTradesClassifiesBuySideByWalletRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"tx_hash", "log_index", "block_no", "block_ts", "maker", "taker",
		"token_id", "token_amount", "usdc_amount", "fee", "is_maker_buy", "is_taker_buy"}
	mock.ExpectQuery("FROM trades").WillReturnRows(sqlmock.NewRows(cols).
		AddRow("0x01", 1, 100, 1000, wallet.Hex(), "0x02", "7", "100000000000000000000", "50000000", "0", true, false).
		AddRow("0x02", 2, 101, 1001, "0x03", wallet.Hex(), "7", "1000000000000000000", "500000", "0", false, true))

	l := New(db)
	trades, err := l.loadTrades(context.Background(), wallet, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].IsBuy, "wallet is maker on a maker-buy row")
	assert.True(t, trades[1].IsBuy, "wallet is taker on a taker-buy row")
	assert.Equal(t, 0, trades[0].USDCRaw.Cmp(mustBigInt("50000000")))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSplitsParsesPartitionArray(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"tx_hash", "log_index", "block_no", "block_ts", "stakeholder", "collateral",
		"parent_collection_id", "condition_id", "partition", "amount"}
	mock.ExpectQuery("FROM splits").WillReturnRows(sqlmock.NewRows(cols).
		AddRow("0x01", 1, 100, 1000, wallet.Hex(), "0x00", "0x00", "0xcc", []uint64{1, 2}, "10000000"))

	l := New(db)
	splits, err := l.loadSplits(context.Background(), wallet, 0)
	require.NoError(t, err)
	require.Len(t, splits, 1)
	assert.Equal(t, []uint64{1, 2}, splits[0].Partition)
	assert.Equal(t, "10000000", splits[0].AmountRaw.String())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadConditionsMasksNonResolvedPayouts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"condition_id", "oracle", "outcome_slot_count", "payout_numerators",
		"payout_denominator", "resolved_at", "resolved_block", "is_resolved"}
	mock.ExpectQuery("FROM conditions").WillReturnRows(sqlmock.NewRows(cols).
		AddRow("0xcc", "0x00", 2, []string{}, "0", int64(0), uint64(0), false).
		AddRow("0xdd", "0x00", 2, []string{"1", "0"}, "1", int64(500), uint64(42), true))

	l := New(db)
	conds, err := l.loadConditions(context.Background())
	require.NoError(t, err)
	require.Len(t, conds, 2)

	assert.False(t, conds[0].Resolved)
	assert.Nil(t, conds[0].PayoutNumerators)

	assert.True(t, conds[1].Resolved)
	require.Len(t, conds[1].PayoutNumerators, 2)
	assert.Equal(t, "1", conds[1].PayoutNumerators[0].String())
	assert.Equal(t, "0", conds[1].PayoutNumerators[1].String())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadQuestionCountsKeysByMarketID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM neg_risk_markets").
		WillReturnRows(sqlmock.NewRows([]string{"market_id", "question_count"}).
			AddRow("0xee", 15))

	l := New(db)
	counts, err := l.loadQuestionCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15, counts[common.HexToHash("0xee")])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTopNWalletsOrdersByRank(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM wallet_rankings").WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"wallet"}).
			AddRow(wallet.Hex()).
			AddRow("0x000000000000000000000000000000000000bb"))

	l := New(db)
	wallets, err := l.TopNWallets(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, wallet, wallets[0])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMustBigIntFallsBackToZeroOnMalformedInput(t *testing.T) {
	assert.Equal(t, "0", mustBigInt("not-a-number").String())
	assert.Equal(t, "42", mustBigInt("42").String())
}

func TestBookkeepingLegsByTxGroupsMintsAndBurnsByToken(t *testing.T) {
	txHash := common.HexToHash("0x01")
	other := common.HexToAddress("0x000000000000000000000000000000000000cd")
	transfers := []model.TransferEvent{
		{TxHash: txHash, From: common.Address{}, To: wallet, TokenID: mustBigInt("7"), ValueRaw: mustBigInt("5000000000000000000")},
		{TxHash: txHash, From: common.Address{}, To: wallet, TokenID: mustBigInt("7"), ValueRaw: mustBigInt("1000000000000000000")},
		{TxHash: txHash, From: wallet, To: common.Address{}, TokenID: mustBigInt("8"), ValueRaw: mustBigInt("3000000000000000000")},
		{TxHash: common.HexToHash("0x02"), From: other, To: wallet, TokenID: mustBigInt("9"), ValueRaw: mustBigInt("1")},
	}

	legs := bookkeepingLegsByTx(transfers, wallet)
	require.Contains(t, legs, txHash)
	require.Equal(t, "6000000000000000000", legs[txHash].minted["7"].String())
	require.Equal(t, "3000000000000000000", legs[txHash].burned["8"].String())

	other2Leg, ok := legs[common.HexToHash("0x02")]
	require.True(t, ok)
	assert.Empty(t, other2Leg.minted)
	assert.Empty(t, other2Leg.burned)
}

func TestApplySplitAndMergeLegsPopulateByTokenMaps(t *testing.T) {
	txHash := common.HexToHash("0x01")
	transfers := []model.TransferEvent{
		{TxHash: txHash, From: common.Address{}, To: wallet, TokenID: mustBigInt("7"), ValueRaw: mustBigInt("10000000000000000000")},
	}
	legs := bookkeepingLegsByTx(transfers, wallet)

	splits := []model.SplitEvent{{TxHash: txHash}, {TxHash: common.HexToHash("0xff")}}
	applySplitLegs(splits, legs)
	require.NotNil(t, splits[0].MintedByToken)
	assert.Equal(t, "10000000000000000000", splits[0].MintedByToken["7"].String())
	assert.Nil(t, splits[1].MintedByToken)

	burnTxHash := common.HexToHash("0x02")
	burnTransfers := []model.TransferEvent{
		{TxHash: burnTxHash, From: wallet, To: common.Address{}, TokenID: mustBigInt("7"), ValueRaw: mustBigInt("4000000000000000000")},
	}
	burnLegs := bookkeepingLegsByTx(burnTransfers, wallet)
	merges := []model.MergeEvent{{TxHash: burnTxHash}}
	applyMergeLegs(merges, burnLegs)
	require.NotNil(t, merges[0].BurnedByToken)
	assert.Equal(t, "4000000000000000000", merges[0].BurnedByToken["7"].String())

	redemptions := []model.RedemptionEvent{{TxHash: burnTxHash}}
	applyRedemptionLegs(redemptions, burnLegs)
	require.NotNil(t, redemptions[0].BurnedByToken)

	adapters := []model.AdapterEvent{{TxHash: burnTxHash}}
	applyAdapterLegs(adapters, burnLegs)
	assert.Nil(t, adapters[0].MintedByToken)
	require.NotNil(t, adapters[0].BurnedByToken)
}
