package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Discrepancy is a single integrity-verification finding.
type Discrepancy struct {
	Height uint64 `json:"height"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ChainStats is the aggregate view exposed to the query surface.
type ChainStats struct {
	Height            uint64  `json:"height"`
	Blocks            int     `json:"blocks"`
	Difficulty        int     `json:"difficulty"`
	BaseBlockReward   float64 `json:"baseBlockReward"`
	AvgConsensusScore float64 `json:"avgConsensusScore"`
	AvgAuthenticity   float64 `json:"avgAuthenticity"`
	PendingTxs        int     `json:"pendingTxs"`
}

// Chain is the immutable blockchain service: it owns the pending pool,
// connects blocks to the ledger, persists them, and answers replay-derived
// balance queries. The producer and the consensus bridge both connect
// blocks through it, serialized by its write lock.
type Chain struct {
	mu      sync.Mutex
	cfg     Config
	blocks  []*Block
	pending []Transaction
	retry   []*Block
	store   Store
	ledger  *Ledger
	econ    *Economics
	bus     *Bus
	log     *zap.Logger
}

// NewChain loads the persisted chain, or creates and persists the genesis
// block when the store is empty. Loaded blocks are replayed through the
// ledger so account state always matches chain history.
func NewChain(cfg Config, store Store, ledger *Ledger, econ *Economics, bus *Bus, log *zap.Logger) (*Chain, error) {
	c := &Chain{
		cfg:    cfg,
		store:  store,
		ledger: ledger,
		econ:   econ,
		bus:    bus,
		log:    log,
	}

	loaded, err := store.Blocks()
	if err != nil {
		return nil, fmt.Errorf("failed to load chain: %v", err)
	}
	if len(loaded) == 0 {
		genesis := c.genesisBlock()
		if err := store.PutBlock(genesis); err != nil {
			return nil, fmt.Errorf("failed to persist genesis block: %v", err)
		}
		c.blocks = []*Block{genesis}
		log.Info("genesis block created", zap.String("hash", genesis.Hash))
		return c, nil
	}

	ledger.Reset()
	for _, b := range loaded[1:] {
		if _, err := ledger.Apply(b, ModeVerify); err != nil {
			return nil, fmt.Errorf("failed to replay block %d: %v", b.Height, err)
		}
		if total := rewardTotal(b.Transactions); total > 0 {
			econ.Debit(total)
		}
	}
	c.blocks = loaded
	log.Info("chain loaded from storage", zap.Int("blocks", len(loaded)))
	return c, nil
}

// genesisBlock builds the deterministic height-0 block from the genesis
// allocation. Its state root commits to the allocation table.
func (c *Chain) genesisBlock() *Block {
	b := &Block{
		Height:         0,
		Timestamp:      0,
		PrevHash:       "0",
		Difficulty:     c.cfg.Difficulty,
		ValidatorID:    "genesis",
		EmotionalScore: "0.00",
		TxRoot:         ZeroRoot,
		StateRoot:      StateRootOf(genesisAccounts(c.cfg.GenesisAlloc)),
	}
	b.Hash = b.ComputeHash()
	b.Sign(b.ValidatorID)
	return b
}

// Ready reports whether the chain has its genesis block.
func (c *Chain) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.blocks) > 0
}

// Height returns the height of the latest block.
func (c *Chain) Height() uint64 {
	return c.Latest().Height
}

// Latest returns the most recently connected block.
func (c *Chain) Latest() *Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks[len(c.blocks)-1]
}

// Blocks returns the full chain. Connected blocks are immutable, so the
// returned slice shares them safely.
func (c *Chain) Blocks() []*Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// PendingCount returns the size of the pending-transaction pool.
func (c *Chain) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// SubmitTransaction validates a transfer against the replay-derived sender
// balance and enqueues it for the next block.
func (c *Chain) SubmitTransaction(from, to string, amount float64) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	fee := c.econ.Fee(amount)
	if c.BalanceOf(from) < amount+fee {
		return Transaction{}, fmt.Errorf("%w: %s cannot cover %.8f", ErrInsufficientBalance, from, amount+fee)
	}
	tx := Transaction{
		ID:        uuid.NewString(),
		Type:      TxTransfer,
		From:      from,
		To:        to,
		Amount:    amount,
		Fee:       fee,
		Timestamp: time.Now().Unix(),
	}
	c.mu.Lock()
	c.pending = append(c.pending, tx)
	c.mu.Unlock()
	return tx, nil
}

// DrainPending removes and returns up to limit pending transactions.
func (c *Chain) DrainPending(limit int) []Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.pending)
	if n > limit {
		n = limit
	}
	out := make([]Transaction, n)
	copy(out, c.pending[:n])
	c.pending = c.pending[n:]
	return out
}

// Requeue returns user transfers to the front of the pending pool after an
// abandoned production attempt. Synthesized transactions are dropped.
func (c *Chain) Requeue(txs []Transaction) {
	var transfers []Transaction
	for _, tx := range txs {
		if tx.Type == TxTransfer {
			transfers = append(transfers, tx)
		}
	}
	if len(transfers) == 0 {
		return
	}
	c.mu.Lock()
	c.pending = append(transfers, c.pending...)
	c.mu.Unlock()
}

// BuildCandidate assembles an unsealed block on top of the current chain
// head.
func (c *Chain) BuildCandidate(v Validator, txs []Transaction, consensusScore float64) *Block {
	prev := c.Latest()
	height := prev.Height + 1
	for i := range txs {
		txs[i].BlockHeight = height
	}
	return &Block{
		Height:         height,
		Timestamp:      time.Now().Unix(),
		PrevHash:       prev.Hash,
		Difficulty:     c.cfg.Difficulty,
		ValidatorID:    v.ID,
		EmotionalScore: decimal.NewFromFloat(v.Score).StringFixed(2),
		ConsensusScore: consensusScore,
		Authenticity:   v.Snapshot.Authenticity,
		Transactions:   txs,
		TxRoot:         TransactionRoot(txs),
	}
}

// Connect validates a block against the ledger, persists it, and advances
// the chain. In mining mode the state root is computed here; in verify
// mode (replay, bridge) every declared root must check out or the block is
// rejected with the full failure list.
func (c *Chain) Connect(b *Block, mode ApplyMode) (TransitionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.blocks[len(c.blocks)-1]
	if mode == ModeVerify {
		if err := c.checkLinkage(b, prev); err != nil {
			return TransitionResult{}, err
		}
	}

	// The pool debit comes first, under the chain lock: a reward the pool
	// cannot cover rejects the block before any wallet credit lands, so
	// the whole reward is recorded or none of it is.
	total := rewardTotal(b.Transactions)
	if total > 0 && !c.econ.Debit(total) {
		err := fmt.Errorf("%w: staking pool cannot cover reward at height %d", ErrInvalidBlock, b.Height)
		c.bus.Publish(Event{
			Type:      EventChainError,
			Height:    b.Height,
			Hash:      b.Hash,
			Message:   err.Error(),
			Timestamp: time.Now().Unix(),
		})
		return TransitionResult{}, err
	}

	res, err := c.ledger.Apply(b, mode)
	if err != nil {
		if total > 0 {
			c.econ.Refund(total)
		}
		c.bus.Publish(Event{
			Type:      EventChainError,
			Height:    b.Height,
			Hash:      b.Hash,
			Message:   err.Error(),
			Timestamp: time.Now().Unix(),
		})
		return res, err
	}
	if mode == ModeMining {
		b.StateRoot = res.StateRoot
	}

	c.blocks = append(c.blocks, b)
	c.persist(b)

	evt := EventBlockProduced
	if mode == ModeVerify {
		evt = EventBlockConnected
	}
	c.bus.Publish(Event{
		Type:        evt,
		Height:      b.Height,
		Hash:        b.Hash,
		ValidatorID: b.ValidatorID,
		Timestamp:   time.Now().Unix(),
	})
	return res, nil
}

// checkLinkage verifies height, previous-hash, transaction root, and hash
// consistency of an externally supplied block.
func (c *Chain) checkLinkage(b *Block, prev *Block) error {
	if b.Height != prev.Height+1 {
		return fmt.Errorf("%w: height %d does not follow %d", ErrInvalidBlock, b.Height, prev.Height)
	}
	if b.PrevHash != prev.Hash {
		return fmt.Errorf("%w: previous hash mismatch at height %d", ErrInvalidBlock, b.Height)
	}
	if root := TransactionRoot(b.Transactions); root != b.TxRoot {
		return fmt.Errorf("%w: transaction root mismatch at height %d", ErrInvalidBlock, b.Height)
	}
	if b.Hash != b.ComputeHash() {
		return fmt.Errorf("%w: hash mismatch at height %d", ErrInvalidBlock, b.Height)
	}
	return nil
}

// persist writes a block and its transactions to the store. A write
// failure does not roll the in-memory chain back; the block is queued and
// retried at the start of the next producer tick.
func (c *Chain) persist(b *Block) {
	if err := c.writeBlock(b); err != nil {
		c.log.Error("failed to persist block, queued for retry",
			zap.Uint64("height", b.Height),
			zap.Error(err))
		c.retry = append(c.retry, b)
	}
}

func (c *Chain) writeBlock(b *Block) error {
	if err := c.store.PutBlock(b); err != nil {
		return err
	}
	for i := range b.Transactions {
		if err := c.store.PutTransaction(recordFor(&b.Transactions[i], b)); err != nil {
			return err
		}
	}
	return nil
}

// FlushRetries re-attempts persistence of blocks whose earlier write
// failed.
func (c *Chain) FlushRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.retry) == 0 {
		return
	}
	var remaining []*Block
	for _, b := range c.retry {
		if err := c.writeBlock(b); err != nil {
			remaining = append(remaining, b)
			continue
		}
		c.log.Info("persisted block on retry", zap.Uint64("height", b.Height))
	}
	c.retry = remaining
}

// replayAccounts derives the full account table from genesis plus every
// connected block, using the same transaction semantics as the ledger.
func (c *Chain) replayAccounts() map[string]AccountState {
	blocks := c.Blocks()
	accounts := genesisAccounts(c.cfg.GenesisAlloc)
	for _, b := range blocks {
		applyTransactions(accounts, b.Transactions)
	}
	return accounts
}

// BalanceOf computes an address balance by chain replay. The ledger cache
// is never the source of truth for this call.
func (c *Chain) BalanceOf(addr string) float64 {
	return c.replayAccounts()[addr].Balance
}

// AllBalances computes every address balance by chain replay.
func (c *Chain) AllBalances() map[string]float64 {
	accounts := c.replayAccounts()
	out := make(map[string]float64, len(accounts))
	for addr, a := range accounts {
		out[addr] = a.Balance
	}
	return out
}

// VerifyIntegrity walks the persisted chain in height order, checking
// previous-hash linkage and recomputing each block's transaction root from
// its stored transactions. All discrepancies are collected rather than
// stopping at the first.
func (c *Chain) VerifyIntegrity() []Discrepancy {
	stored, err := c.store.Blocks()
	if err != nil {
		return []Discrepancy{{Field: "storage", Reason: fmt.Sprintf("failed to read chain: %v", err)}}
	}

	var out []Discrepancy
	for i, b := range stored {
		expectedPrev := "0"
		if i > 0 {
			expectedPrev = stored[i-1].Hash
		}
		if b.PrevHash != expectedPrev {
			out = append(out, Discrepancy{
				Height: b.Height,
				Field:  "prevHash",
				Reason: fmt.Sprintf("declared %s, prior block hash %s", b.PrevHash, expectedPrev),
			})
		}
		if root := TransactionRoot(b.Transactions); root != b.TxRoot {
			out = append(out, Discrepancy{
				Height: b.Height,
				Field:  "txRoot",
				Reason: fmt.Sprintf("declared %s, recomputed %s", b.TxRoot, root),
			})
		}
	}
	return out
}

// Stats aggregates chain-wide figures for the query surface.
func (c *Chain) Stats() ChainStats {
	blocks := c.Blocks()
	stats := ChainStats{
		Height:          blocks[len(blocks)-1].Height,
		Blocks:          len(blocks),
		Difficulty:      c.cfg.Difficulty,
		BaseBlockReward: BaseBlockReward,
		PendingTxs:      c.PendingCount(),
	}
	if len(blocks) > 1 {
		scores := make([]float64, 0, len(blocks)-1)
		auths := make([]float64, 0, len(blocks)-1)
		for _, b := range blocks[1:] {
			scores = append(scores, b.ConsensusScore)
			auths = append(auths, b.Authenticity)
		}
		stats.AvgConsensusScore = round2(stat.Mean(scores, nil))
		stats.AvgAuthenticity = round2(stat.Mean(auths, nil))
	}
	return stats
}

// rewardTotal sums the reward transactions carried by a block.
func rewardTotal(txs []Transaction) float64 {
	var total float64
	for i := range txs {
		if txs[i].Type == TxMiningReward || txs[i].Type == TxValidationReward {
			total += txs[i].Amount
		}
	}
	return total
}
