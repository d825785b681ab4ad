// Package tokenid derives conditional-token identifiers the same way the
// on-chain ConditionalTokens contract does: two successive packed-keccak
// hashes over (parent collection, condition, index set) and then
// (collateral, collection). Bit-exactness with the contract is the only
// requirement (spec.md §4.8) — this is the bridge from off-chain event
// content to inventory buckets whenever the ERC-1155 transfer legs are
// absent from an event.
package tokenid

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// CollectionID computes keccak256(parentCollectionId || conditionId ||
// indexSet), the first of the two packed hashes the contract performs
// per outcome index. indexSet is always a single-bit value (1 <<
// outcomeIndex) for a non-combinatorial position.
func CollectionID(parentCollectionID, conditionID common.Hash, indexSet *big.Int) common.Hash {
	packed := make([]byte, 0, 32+32+32)
	packed = append(packed, parentCollectionID.Bytes()...)
	packed = append(packed, conditionID.Bytes()...)
	packed = append(packed, common.LeftPadBytes(indexSet.Bytes(), 32)...)
	return crypto.Keccak256Hash(packed)
}

// PositionID computes the outcome-token identifier: the big-endian uint256
// of keccak256(collateralToken || collectionId), the contract's second
// packed hash.
func PositionID(collateralToken common.Address, collectionID common.Hash) *big.Int {
	packed := make([]byte, 0, 32+32)
	packed = append(packed, common.LeftPadBytes(collateralToken.Bytes(), 32)...)
	packed = append(packed, collectionID.Bytes()...)
	digest := crypto.Keccak256(packed)
	return new(big.Int).SetBytes(digest)
}

// Derive returns the outcome-token identifier for one outcome index of a
// condition (spec.md §4.8 step 1-2).
func Derive(parentCollectionID, conditionID common.Hash, outcomeIndex int, collateralToken common.Address) *big.Int {
	indexSet := new(big.Int).Lsh(big.NewInt(1), uint(outcomeIndex))
	collectionID := CollectionID(parentCollectionID, conditionID, indexSet)
	return PositionID(collateralToken, collectionID)
}

// DeriveAll returns the ordered tuple of outcome-token identifiers for a
// condition with the given outcome slot count, one per outcome index.
func DeriveAll(parentCollectionID, conditionID common.Hash, outcomeSlotCount int, collateralToken common.Address) []*big.Int {
	tokens := make([]*big.Int, outcomeSlotCount)
	for i := 0; i < outcomeSlotCount; i++ {
		tokens[i] = Derive(parentCollectionID, conditionID, i, collateralToken)
	}
	return tokens
}

// NegRiskQuestionID replaces the low byte of a negative-risk market
// identifier with the per-question index, matching the adapter's question
// derivation (spec.md §4.8).
func NegRiskQuestionID(marketID common.Hash, questionIndex uint8) common.Hash {
	questionID := marketID
	questionID[31] = questionIndex
	return questionID
}

// NegRiskConditionID computes the per-question condition id the negative-
// risk adapter prepares: keccak256(adapterAddress || questionId || 2).
func NegRiskConditionID(adapterAddress common.Address, questionID common.Hash) common.Hash {
	packed := make([]byte, 0, 32+32+32)
	packed = append(packed, common.LeftPadBytes(adapterAddress.Bytes(), 32)...)
	packed = append(packed, questionID.Bytes()...)
	packed = append(packed, common.LeftPadBytes(big.NewInt(2).Bytes(), 32)...)
	return crypto.Keccak256Hash(packed)
}

// NegRiskOutcomeTokens derives the YES/NO outcome-token pair for one
// question of a negative-risk market: parent collection is zero, and the
// collateral is the wrapped-collateral token (spec.md §4.8, GLOSSARY).
func NegRiskOutcomeTokens(adapterAddress common.Address, marketID common.Hash, questionIndex uint8, wrappedCollateral common.Address) (yes, no *big.Int) {
	questionID := NegRiskQuestionID(marketID, questionIndex)
	conditionID := NegRiskConditionID(adapterAddress, questionID)
	tokens := DeriveAll(common.Hash{}, conditionID, 2, wrappedCollateral)
	return tokens[0], tokens[1]
}
