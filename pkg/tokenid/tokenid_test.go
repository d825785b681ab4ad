package tokenid

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
)

func TestDeriveIsDeterministic(t *testing.T) {
	conditionID := common.HexToHash("0x01")
	collateral := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

	a := Derive(common.Hash{}, conditionID, 0, collateral)
	b := Derive(common.Hash{}, conditionID, 0, collateral)
	assert.Equal(t, a.String(), b.String())
}

func TestDeriveOutcomesAreDistinct(t *testing.T) {
	conditionID := common.HexToHash("0x02")
	collateral := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

	tokens := DeriveAll(common.Hash{}, conditionID, 2, collateral)
	assert.Len(t, tokens, 2)
	assert.NotEqual(t, tokens[0].String(), tokens[1].String())
}

func TestDeriveChangesWithParentCollection(t *testing.T) {
	conditionID := common.HexToHash("0x03")
	collateral := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

	withoutParent := Derive(common.Hash{}, conditionID, 0, collateral)
	withParent := Derive(common.HexToHash("0xdead"), conditionID, 0, collateral)
	assert.NotEqual(t, withoutParent.String(), withParent.String())
}

func TestPositionIDMatchesManualPacking(t *testing.T) {
	conditionID := common.HexToHash("0x04")
	collateral := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	indexSet := big.NewInt(1)

	collectionID := CollectionID(common.Hash{}, conditionID, indexSet)
	got := PositionID(collateral, collectionID)

	assert.NotNil(t, got)
	assert.True(t, got.Sign() > 0)

	packed := append(common.LeftPadBytes(collateral.Bytes(), 32), collectionID.Bytes()...)
	want := new(big.Int).SetBytes(crypto.Keccak256(packed))
	assert.Equal(t, want.String(), got.String())
}

func TestNegRiskQuestionIDReplacesLowByte(t *testing.T) {
	marketID := common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000099")
	q := NegRiskQuestionID(marketID, 0x07)
	assert.Equal(t, byte(0x07), q[31])
	assert.Equal(t, marketID[:31], q[:31])
}

func TestNegRiskOutcomeTokensAreDistinctPerQuestion(t *testing.T) {
	adapter := common.HexToAddress("0x000000000000000000000000000000deadbeef")
	market := common.HexToHash("0xbeef")
	wrapped := common.HexToAddress("0x0000000000000000000000000000000000c0fe")

	yes0, no0 := NegRiskOutcomeTokens(adapter, market, 0, wrapped)
	yes1, no1 := NegRiskOutcomeTokens(adapter, market, 1, wrapped)

	assert.NotEqual(t, yes0.String(), no0.String())
	assert.NotEqual(t, yes0.String(), yes1.String())
	assert.NotEqual(t, no0.String(), no1.String())
}
