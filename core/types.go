package core

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// TxType tags the origin of a transaction.
type TxType string

const (
	TxTransfer         TxType = "transfer"
	TxMiningReward     TxType = "mining_reward"
	TxValidationReward TxType = "validation_reward"
	TxHeartbeat        TxType = "heartbeat"
)

// NetworkAddress is the sender of synthesized transactions (heartbeats, rewards).
const NetworkAddress = "network"

// Transaction represents a single value movement on the chain. Reward and
// heartbeat transactions are synthesized by the engine; transfers are
// user-submitted.
type Transaction struct {
	ID          string  `json:"id"`
	Type        TxType  `json:"type"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	Amount      float64 `json:"amount"`
	Fee         float64 `json:"fee"`
	Timestamp   int64   `json:"timestamp"`
	BlockHeight uint64  `json:"blockHeight"`
	ProofHash   string  `json:"proofHash,omitempty"`
	Signature   string  `json:"signature,omitempty"`
}

// Hash calculates the content hash of the transaction.
func (tx *Transaction) Hash() string {
	data, _ := json.Marshal(struct {
		ID        string
		Type      TxType
		From      string
		To        string
		Amount    float64
		Fee       float64
		Timestamp int64
	}{
		ID:        tx.ID,
		Type:      tx.Type,
		From:      tx.From,
		To:        tx.To,
		Amount:    tx.Amount,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
	})
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// Block represents a block in the emotional chain. Once connected it is
// never mutated.
type Block struct {
	Height         uint64        `json:"height"`
	Timestamp      int64         `json:"timestamp"`
	PrevHash       string        `json:"prevHash"`
	Hash           string        `json:"hash"`
	Nonce          uint64        `json:"nonce"`
	Difficulty     int           `json:"difficulty"`
	ValidatorID    string        `json:"validatorId"`
	EmotionalScore string        `json:"emotionalScore"`
	ConsensusScore float64       `json:"consensusScore"`
	Authenticity   float64       `json:"authenticity"`
	Transactions   []Transaction `json:"transactions"`
	TxRoot         string        `json:"txRoot"`
	StateRoot      string        `json:"stateRoot"`
	Signature      string        `json:"signature"`
}

// ComputeHash calculates the hash of the block header. The transaction list
// is folded in through the merkle root; the state root is excluded because
// it is only known after the state transition has been applied.
func (b *Block) ComputeHash() string {
	data, _ := json.Marshal(struct {
		Height         uint64
		Timestamp      int64
		PrevHash       string
		TxRoot         string
		Nonce          uint64
		Difficulty     int
		ValidatorID    string
		EmotionalScore string
		ConsensusScore float64
		Authenticity   float64
	}{
		Height:         b.Height,
		Timestamp:      b.Timestamp,
		PrevHash:       b.PrevHash,
		TxRoot:         b.TxRoot,
		Nonce:          b.Nonce,
		Difficulty:     b.Difficulty,
		ValidatorID:    b.ValidatorID,
		EmotionalScore: b.EmotionalScore,
		ConsensusScore: b.ConsensusScore,
		Authenticity:   b.Authenticity,
	})
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// Sign attaches the signature placeholder for the producing validator.
func (b *Block) Sign(validatorID string) {
	b.Signature = "signed:" + validatorID + ":" + b.Hash
}

// AccountState holds the ledger view of a single address. It is always
// re-derivable by replaying the genesis allocation plus every connected
// block in height order.
type AccountState struct {
	Address      string  `json:"address"`
	Balance      float64 `json:"balance"`
	Nonce        uint64  `json:"nonce"`
	LastActivity int64   `json:"lastActivity"`
}

// TokenPool is a fixed-allocation reserve. Remaining never exceeds
// Allocated and is never replenished beyond refunds for rejected blocks.
type TokenPool struct {
	Name      string  `json:"name"`
	Allocated float64 `json:"allocated"`
	Remaining float64 `json:"remaining"`
}
