package core

import (
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Miner is the block producer. A cron tick drives production; at most one
// attempt is ever in flight, and a tick that fires during a running
// attempt is skipped, not queued.
type Miner struct {
	cfg      Config
	chain    *Chain
	registry *Registry
	econ     *Economics
	log      *zap.Logger

	cron     *cron.Cron
	entry    cron.EntryID
	enabled  atomic.Bool
	inFlight atomic.Bool
}

// NewMiner wires the producer to the chain, registry, and economics
// engine.
func NewMiner(cfg Config, chain *Chain, registry *Registry, econ *Economics, log *zap.Logger) *Miner {
	return &Miner{
		cfg:      cfg,
		chain:    chain,
		registry: registry,
		econ:     econ,
		log:      log,
		cron:     cron.New(),
	}
}

// Start begins periodic block production. It fails fast when the chain has
// not been initialized yet; the caller may retry.
func (m *Miner) Start() error {
	if m.chain == nil || !m.chain.Ready() {
		return ErrNotInitialized
	}
	if m.enabled.Swap(true) {
		return nil // already mining
	}
	if m.entry == 0 {
		spec := fmt.Sprintf("@every %s", m.cfg.BlockInterval)
		entry, err := m.cron.AddFunc(spec, m.tick)
		if err != nil {
			m.enabled.Store(false)
			return fmt.Errorf("failed to schedule producer: %v", err)
		}
		m.entry = entry
		m.cron.Start()
	}
	m.log.Info("mining started", zap.Duration("interval", m.cfg.BlockInterval))
	return nil
}

// Stop pauses block production. The schedule stays registered so mining
// can be resumed.
func (m *Miner) Stop() {
	if m.enabled.Swap(false) {
		m.log.Info("mining stopped")
	}
}

// Mining reports whether production is currently enabled.
func (m *Miner) Mining() bool {
	return m.enabled.Load()
}

// Shutdown stops the underlying scheduler.
func (m *Miner) Shutdown() {
	m.cron.Stop()
}

func (m *Miner) tick() {
	if !m.enabled.Load() {
		return
	}
	if !m.inFlight.CompareAndSwap(false, true) {
		m.log.Debug("production attempt already in flight, skipping tick")
		return
	}
	defer m.inFlight.Store(false)

	if _, err := m.ProduceBlock(); err != nil {
		m.log.Error("block production failed", zap.Error(err))
	}
}

// ProduceBlock runs one full production attempt: validator rotation,
// transaction batching, reward computation, bounded proof-of-work, and
// connection to the ledger. A nil block with nil error means the tick was
// skipped for an expected reason (no eligible validator, exhausted search).
func (m *Miner) ProduceBlock() (*Block, error) {
	if !m.chain.Ready() {
		return nil, ErrNotInitialized
	}
	m.chain.FlushRetries()

	eligible := m.registry.Eligible()
	if len(eligible) == 0 {
		m.log.Info("no eligible validators, skipping tick")
		return nil, nil
	}

	// Deterministic round-robin: every eligible validator gets covered
	// over time instead of favoring the most recently active one.
	v := eligible[int(m.chain.Height())%len(eligible)]

	txs := m.chain.DrainPending(m.cfg.MaxBlockTxs)
	if len(txs) == 0 {
		txs = []Transaction{m.heartbeat()}
	}
	var fees float64
	for i := range txs {
		fees += txs[i].Fee
	}

	consensusScore := m.registry.ConsensusScore()
	breakdown := m.econ.Rewards(v.Score, fees, consensusScore, v.Snapshot.Authenticity)
	funded := m.econ.CanAfford(breakdown.Total)
	if funded {
		height := m.chain.Height() + 1
		txs = append(txs, m.econ.RewardTransactions(v.ID, height, breakdown, time.Now().Unix())...)
	} else {
		m.log.Info("staking pool cannot cover reward, block proceeds unrewarded",
			zap.String("validator", v.ID),
			zap.Float64("total", breakdown.Total))
	}

	block := m.chain.BuildCandidate(v, txs, consensusScore)
	if !seal(block, m.cfg.Difficulty, m.cfg.MaxNonceAttempts) {
		m.chain.Requeue(txs)
		m.log.Warn("proof-of-work exhausted, abandoning tick",
			zap.Uint64("height", block.Height),
			zap.Uint64("attempts", m.cfg.MaxNonceAttempts))
		return nil, nil
	}
	block.Sign(v.ID)

	res, err := m.chain.Connect(block, ModeMining)
	if err != nil {
		m.chain.Requeue(txs)
		return nil, fmt.Errorf("failed to connect mined block: %w", err)
	}
	m.registry.RecordBlock(v.ID)
	m.log.Info("block produced",
		zap.Uint64("height", block.Height),
		zap.String("hash", block.Hash),
		zap.String("validator", v.ID),
		zap.String("score", block.EmotionalScore),
		zap.Int("txs", len(block.Transactions)),
		zap.Int("skipped", len(res.Errors)))
	return block, nil
}

// heartbeat synthesizes a zero-value transaction to a random validator so
// every block carries at least one transaction.
func (m *Miner) heartbeat() Transaction {
	target := NetworkAddress
	if all := m.registry.List(); len(all) > 0 {
		target = all[rand.Intn(len(all))].ID
	}
	return Transaction{
		ID:        uuid.NewString(),
		Type:      TxHeartbeat,
		From:      NetworkAddress,
		To:        target,
		Timestamp: time.Now().Unix(),
	}
}

// seal runs the bounded proof-of-work search: the nonce is incremented
// from zero until the block hash carries the required number of leading
// zero hex characters or the attempt budget runs out.
func seal(b *Block, difficulty int, maxAttempts uint64) bool {
	prefix := strings.Repeat("0", difficulty)
	for nonce := uint64(0); nonce < maxAttempts; nonce++ {
		b.Nonce = nonce
		hash := b.ComputeHash()
		if strings.HasPrefix(hash, prefix) {
			b.Hash = hash
			return true
		}
	}
	return false
}
