package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEconomics() *Economics {
	return NewEconomics(zap.NewNop())
}

func TestConsensusBonusRamp(t *testing.T) {
	e := testEconomics()

	// No bonus below 75 even though eligibility starts at 70.
	assert.Equal(t, 0.0, e.ConsensusBonus(70))
	assert.Equal(t, 0.0, e.ConsensusBonus(74.99))
	assert.Equal(t, 0.0, e.ConsensusBonus(75))

	// Linear ramp between 75 and 95.
	assert.InDelta(t, MaxConsensusBonus/2, e.ConsensusBonus(85), 1e-9)

	// Clamped at the maximum from 95 up.
	assert.Equal(t, MaxConsensusBonus, e.ConsensusBonus(95))
	assert.Equal(t, MaxConsensusBonus, e.ConsensusBonus(96))
	assert.Equal(t, MaxConsensusBonus, e.ConsensusBonus(100))
}

func TestValidationRewardClamps(t *testing.T) {
	e := testEconomics()

	// Consensus factor floors at 0.6, authenticity at 0.7.
	assert.InDelta(t, BaseValidationReward*0.6*0.7, e.ValidationReward(10, 0.1), 1e-9)
	// Both cap at 1.0.
	assert.InDelta(t, BaseValidationReward, e.ValidationReward(100, 1.0), 1e-9)
	assert.InDelta(t, BaseValidationReward*0.8*0.9, e.ValidationReward(80, 0.9), 1e-9)
}

func TestRewardsBreakdown(t *testing.T) {
	e := testEconomics()
	br := e.Rewards(96, 1.5, 88, 0.95)

	assert.InDelta(t, BaseBlockReward+1.5+MaxConsensusBonus, br.Mining, 1e-9)
	assert.InDelta(t, e.ValidationReward(88, 0.95), br.Validation, 1e-9)
	assert.InDelta(t, br.Mining+br.Validation, br.Total, 1e-9)
}

func TestDebitDepletesPoolMonotonically(t *testing.T) {
	e := testEconomics()
	require.True(t, e.Debit(100))

	snap := e.Snapshot()
	assert.Equal(t, StakingPoolAllocation-100, snap.Pools[0].Remaining)
	assert.Equal(t, 100.0, snap.TotalSupply)
	assert.Equal(t, 100.0, snap.CirculatingSupply)
}

func TestDebitSkipsWhenPoolInsufficient(t *testing.T) {
	e := testEconomics()
	e.drain()

	assert.False(t, e.Debit(1))
	snap := e.Snapshot()
	assert.Equal(t, 0.0, snap.Pools[0].Remaining)
	assert.Equal(t, 0.0, snap.TotalSupply)
}

func TestRefundRestoresPoolAndSupply(t *testing.T) {
	e := testEconomics()
	require.True(t, e.Debit(250))
	e.Refund(250)

	snap := e.Snapshot()
	assert.Equal(t, StakingPoolAllocation, snap.Pools[0].Remaining)
	assert.Equal(t, 0.0, snap.TotalSupply)
	assert.Equal(t, 0.0, snap.CirculatingSupply)
}

func TestRewardTransactionsDeterministic(t *testing.T) {
	e := testEconomics()
	br := e.Rewards(90, 0, 85, 0.9)

	first := e.RewardTransactions("V1", 5, br, 1234)
	second := e.RewardTransactions("V1", 5, br, 1234)
	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, TxMiningReward, first[0].Type)
	assert.Equal(t, TxValidationReward, first[1].Type)
	assert.NotEmpty(t, first[0].ProofHash)
	assert.NotEqual(t, first[0].ID, first[1].ID)
}

func TestStakingAPYCapped(t *testing.T) {
	e := testEconomics()

	assert.InDelta(t, BaseStakingAPY, e.StakingAPY(0, 0), 1e-9)
	assert.Equal(t, MaxStakingAPY, e.StakingAPY(100, 1.0))

	mid := e.StakingAPY(50, 0.5)
	assert.Greater(t, mid, BaseStakingAPY)
	assert.LessOrEqual(t, mid, MaxStakingAPY)
}

func TestFee(t *testing.T) {
	e := testEconomics()
	assert.InDelta(t, 0.1, e.Fee(100), 1e-9)
}
