package core

import (
	"sync"

	"go.uber.org/zap"
)

// Token-economics constants. Pools are fixed at genesis and never
// replenished.
const (
	MaxSupply = 1_000_000_000.0

	StakingPoolAllocation   = 400_000_000.0
	WellnessPoolAllocation  = 250_000_000.0
	EcosystemPoolAllocation = 200_000_000.0
	TeamPoolAllocation      = 150_000_000.0

	BaseBlockReward      = 50.0
	BaseValidationReward = 10.0
	MaxConsensusBonus    = 20.0
	MinValidatorStake    = 1_000.0 // informational

	TransferFeeRate = 0.001

	BaseStakingAPY            = 0.08
	MaxWellnessMultiplier     = 1.5
	MaxAuthenticityMultiplier = 2.0
	MaxStakingAPY             = 0.20

	// Consensus bonus ramps linearly between these scores. The floor is
	// deliberately above the 70.0 eligibility threshold: an eligible
	// validator at 72 earns the base reward but no bonus.
	bonusFloorScore = 75.0
	bonusCeilScore  = 95.0
)

const (
	PoolStaking   = "staking"
	PoolWellness  = "wellness"
	PoolEcosystem = "ecosystem"
	PoolTeam      = "team"
)

// RewardBreakdown itemizes the payout for one block.
type RewardBreakdown struct {
	Mining     float64 `json:"mining"` // base + fees + bonus
	Fees       float64 `json:"fees"`
	Bonus      float64 `json:"bonus"`
	Validation float64 `json:"validation"`
	Total      float64 `json:"total"`
}

// EconomicsSnapshot is the read-only view exposed to the query surface.
type EconomicsSnapshot struct {
	MaxSupply         float64     `json:"maxSupply"`
	TotalSupply       float64     `json:"totalSupply"`
	CirculatingSupply float64     `json:"circulatingSupply"`
	Pools             []TokenPool `json:"pools"`
}

// Economics computes block rewards from fixed pools and tracks supply.
// Pool debits and the matching wallet credits are applied as one unit
// under the chain write lock.
type Economics struct {
	mu          sync.Mutex
	pools       map[string]*TokenPool
	totalSupply float64
	circulating float64
	log         *zap.Logger
}

// NewEconomics creates the engine with the genesis pool allocations.
func NewEconomics(log *zap.Logger) *Economics {
	pool := func(name string, alloc float64) *TokenPool {
		return &TokenPool{Name: name, Allocated: alloc, Remaining: alloc}
	}
	return &Economics{
		pools: map[string]*TokenPool{
			PoolStaking:   pool(PoolStaking, StakingPoolAllocation),
			PoolWellness:  pool(PoolWellness, WellnessPoolAllocation),
			PoolEcosystem: pool(PoolEcosystem, EcosystemPoolAllocation),
			PoolTeam:      pool(PoolTeam, TeamPoolAllocation),
		},
		log: log,
	}
}

// Fee returns the fee charged on a user transfer.
func (e *Economics) Fee(amount float64) float64 {
	return amount * TransferFeeRate
}

// ConsensusBonus scales linearly from 0 to the maximum bonus as the
// validator's score rises from 75 to 95, clamped at the maximum beyond.
// Scores below 75 earn no bonus even though they may be eligible.
func (e *Economics) ConsensusBonus(score float64) float64 {
	if score < bonusFloorScore {
		return 0
	}
	if score >= bonusCeilScore {
		return MaxConsensusBonus
	}
	return MaxConsensusBonus * (score - bonusFloorScore) / (bonusCeilScore - bonusFloorScore)
}

// ValidationReward scales the base validation reward by the network
// consensus score and the validator's authenticity.
func (e *Economics) ValidationReward(consensusScore, authenticity float64) float64 {
	return BaseValidationReward *
		clampRange(consensusScore/100, 0.6, 1.0) *
		clampRange(authenticity, 0.7, 1.0)
}

// Rewards computes the full payout for a block produced by a validator
// with the given score.
func (e *Economics) Rewards(score, fees, consensusScore, authenticity float64) RewardBreakdown {
	bonus := e.ConsensusBonus(score)
	mining := BaseBlockReward + fees + bonus
	validation := e.ValidationReward(consensusScore, authenticity)
	return RewardBreakdown{
		Mining:     mining,
		Fees:       fees,
		Bonus:      bonus,
		Validation: validation,
		Total:      mining + validation,
	}
}

// CanAfford reports whether the staking pool can still cover a payout.
func (e *Economics) CanAfford(total float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools[PoolStaking].Remaining >= total
}

// Debit takes a payout from the staking pool and credits the supply
// counters. An insufficient pool is a normal terminal condition, not a
// fault: the payout is skipped and logged.
func (e *Economics) Debit(total float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	staking := e.pools[PoolStaking]
	if staking.Remaining < total {
		e.log.Info("staking pool exhausted, reward skipped",
			zap.Float64("remaining", staking.Remaining),
			zap.Float64("requested", total))
		return false
	}
	staking.Remaining -= total
	e.totalSupply += total
	e.circulating += total
	return true
}

// Refund returns a payout taken for a block that was subsequently
// rejected, restoring the pool and the supply counters.
func (e *Economics) Refund(total float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pools[PoolStaking].Remaining += total
	e.totalSupply -= total
	e.circulating -= total
}

// RewardTransactions synthesizes the mining and validation reward records
// for a block. Their ids derive deterministically from content so the same
// block always yields the same audit trail.
func (e *Economics) RewardTransactions(validatorID string, height uint64, br RewardBreakdown, ts int64) []Transaction {
	build := func(kind TxType, amount float64) Transaction {
		tx := Transaction{
			Type:        kind,
			From:        NetworkAddress,
			To:          validatorID,
			Amount:      amount,
			Timestamp:   ts,
			BlockHeight: height,
		}
		tx.ProofHash = tx.Hash()
		tx.ID = tx.ProofHash[:16]
		return tx
	}
	return []Transaction{
		build(TxMiningReward, br.Mining),
		build(TxValidationReward, br.Validation),
	}
}

// StakingAPY returns the effective APY for a validator, scaled by its
// wellness (emotional) score and authenticity, capped overall.
func (e *Economics) StakingAPY(wellnessScore, authenticity float64) float64 {
	wellness := 1 + (MaxWellnessMultiplier-1)*clamp01(wellnessScore/100)
	auth := 1 + (MaxAuthenticityMultiplier-1)*clamp01(authenticity)
	apy := BaseStakingAPY * wellness * auth
	if apy > MaxStakingAPY {
		apy = MaxStakingAPY
	}
	return apy
}

// Snapshot returns the current supply and pool figures.
func (e *Economics) Snapshot() EconomicsSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	pools := make([]TokenPool, 0, len(e.pools))
	for _, name := range []string{PoolStaking, PoolWellness, PoolEcosystem, PoolTeam} {
		pools = append(pools, *e.pools[name])
	}
	return EconomicsSnapshot{
		MaxSupply:         MaxSupply,
		TotalSupply:       e.totalSupply,
		CirculatingSupply: e.circulating,
		Pools:             pools,
	}
}

// drain empties the staking pool; used by tests to exercise depletion.
func (e *Economics) drain() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pools[PoolStaking].Remaining = 0
}
