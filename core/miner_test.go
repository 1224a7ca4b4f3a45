package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProduceBlockSkipsWithoutEligibleValidators(t *testing.T) {
	e := newTestEngine(t, nil)

	b, err := e.miner.ProduceBlock()
	require.NoError(t, err)
	assert.Nil(t, b)

	// An ineligible validator does not help.
	e.registry.Register("weak", stressedSnapshot())
	b, err = e.miner.ProduceBlock()
	require.NoError(t, err)
	assert.Nil(t, b)
	assert.Equal(t, uint64(0), e.chain.Height())
}

func TestProduceBlockSynthesizesHeartbeat(t *testing.T) {
	e := newTestEngine(t, nil)
	e.registry.Register("V1", calmSnapshot())

	b, err := e.miner.ProduceBlock()
	require.NoError(t, err)
	require.NotNil(t, b)

	assert.Equal(t, uint64(1), b.Height)
	assert.Equal(t, "V1", b.ValidatorID)
	assert.True(t, strings.HasPrefix(b.Hash, "0"), "sealed hash must satisfy difficulty")
	assert.Equal(t, b.ComputeHash(), b.Hash)
	assert.NotEmpty(t, b.StateRoot)
	assert.NotEmpty(t, b.Signature)

	// Empty pool: one heartbeat plus the two reward records.
	require.Len(t, b.Transactions, 3)
	assert.Equal(t, TxHeartbeat, b.Transactions[0].Type)
	assert.Equal(t, "V1", b.Transactions[0].To)
	assert.Equal(t, 0.0, b.Transactions[0].Amount)
	assert.Equal(t, TxMiningReward, b.Transactions[1].Type)
	assert.Equal(t, TxValidationReward, b.Transactions[2].Type)
}

func TestRotationCoversEligibleValidatorsInOrder(t *testing.T) {
	e := newTestEngine(t, nil)
	e.registry.Register("alpha", calmSnapshot())
	e.registry.Register("beta", calmSnapshot())

	var producers []string
	for range 4 {
		b, err := e.miner.ProduceBlock()
		require.NoError(t, err)
		require.NotNil(t, b)
		producers = append(producers, b.ValidatorID)
	}
	assert.Equal(t, []string{"alpha", "beta", "alpha", "beta"}, producers)

	v, _ := e.registry.Get("alpha")
	assert.Equal(t, uint64(2), v.BlocksProduced)
}

func TestProofOfWorkExhaustionAbandonsTick(t *testing.T) {
	e := newTestEngine(t, func(cfg *Config) {
		cfg.Difficulty = 64 // unreachable
		cfg.MaxNonceAttempts = 10
	})
	e.registry.Register("V1", calmSnapshot())

	_, err := e.chain.SubmitTransaction("V1", "V2", 100)
	require.NoError(t, err)

	b, err := e.miner.ProduceBlock()
	require.NoError(t, err, "an exhausted search is not an error")
	assert.Nil(t, b)
	assert.Equal(t, uint64(0), e.chain.Height())

	// The drained transfer went back to the pool for the next tick.
	assert.Equal(t, 1, e.chain.PendingCount())
}

func TestProduceBlockIncludesPendingTransfers(t *testing.T) {
	e := newTestEngine(t, nil)
	e.registry.Register("V1", calmSnapshot())

	tx, err := e.chain.SubmitTransaction("V1", "friend", 250)
	require.NoError(t, err)

	b, err := e.miner.ProduceBlock()
	require.NoError(t, err)
	require.NotNil(t, b)

	require.Len(t, b.Transactions, 3) // transfer + two rewards, no heartbeat
	assert.Equal(t, tx.ID, b.Transactions[0].ID)
	assert.Equal(t, uint64(1), b.Transactions[0].BlockHeight)
	assert.Equal(t, 0, e.chain.PendingCount())

	// Fees feed the mining reward.
	assert.InDelta(t, BaseBlockReward+tx.Fee+e.econ.ConsensusBonus(e.registry.ConsensusScore()),
		b.Transactions[1].Amount, 1e-9)
}

func TestMinerStartRequiresInitializedChain(t *testing.T) {
	cfg := DefaultConfig()
	m := NewMiner(cfg, nil, nil, nil, zap.NewNop())
	assert.ErrorIs(t, m.Start(), ErrNotInitialized)
}
