package core

import (
	"fmt"

	"go.uber.org/zap"
)

// Bridge accepts blocks already finalized by an external multi-node
// agreement transport and applies them to the ledger without re-mining.
// It shares the chain's write lock with the local producer, so bridged and
// locally mined blocks are never applied concurrently.
type Bridge struct {
	chain *Chain
	log   *zap.Logger
}

// NewBridge creates the consensus bridge over the given chain.
func NewBridge(chain *Chain, log *zap.Logger) *Bridge {
	return &Bridge{chain: chain, log: log}
}

// AddConsensusBlock routes an externally finalized block into state
// application and persistence, skipping proof-of-work entirely. Linkage,
// transaction root, and state root must all verify or the block is
// rejected with the full list of failures.
func (br *Bridge) AddConsensusBlock(b *Block) (TransitionResult, error) {
	if b == nil {
		return TransitionResult{}, fmt.Errorf("%w: nil block", ErrInvalidBlock)
	}
	res, err := br.chain.Connect(b, ModeVerify)
	if err != nil {
		br.log.Warn("consensus block rejected",
			zap.Uint64("height", b.Height),
			zap.String("hash", b.Hash),
			zap.Error(err))
		return res, err
	}
	br.log.Info("consensus block connected",
		zap.Uint64("height", b.Height),
		zap.String("hash", b.Hash),
		zap.String("validator", b.ValidatorID))
	return res, nil
}
