package core

import (
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// TransactionRecord is the persisted shape of a transaction, as handed to
// the storage collaborator.
type TransactionRecord struct {
	Hash            string  `json:"hash"`
	BlockHash       string  `json:"blockHash"`
	BlockNumber     uint64  `json:"blockNumber"`
	FromAddress     string  `json:"fromAddress"`
	ToAddress       string  `json:"toAddress"`
	Amount          float64 `json:"amount"`
	Fee             float64 `json:"fee"`
	Timestamp       int64   `json:"timestamp"`
	Signature       string  `json:"signature,omitempty"`
	TransactionData string  `json:"transactionData"`
	Status          string  `json:"status"`
}

// Store is the persistence contract. Blocks carry their transaction list
// inline so the full chain can be replayed from storage alone.
type Store interface {
	PutBlock(b *Block) error
	PutTransaction(rec TransactionRecord) error
	Blocks() ([]*Block, error)
	Transactions(limit int) ([]TransactionRecord, error)
	Close() error
}

const (
	blockKeyPrefix = "block:"
	txKeyPrefix    = "tx:"
)

// LevelStore persists blocks and transactions in LevelDB. Block keys embed
// the zero-padded height so prefix iteration returns them in height order.
type LevelStore struct {
	db *leveldb.DB
}

// OpenLevelStore opens (or creates) the database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	return &LevelStore{db: db}, nil
}

// PutBlock stores a block, including its inline transaction list.
func (s *LevelStore) PutBlock(b *Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal block: %v", err)
	}
	key := fmt.Sprintf("%s%016d", blockKeyPrefix, b.Height)
	if err := s.db.Put([]byte(key), data, nil); err != nil {
		return fmt.Errorf("failed to store block: %v", err)
	}
	return nil
}

// PutTransaction stores a transaction record keyed by its hash.
func (s *LevelStore) PutTransaction(rec TransactionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %v", err)
	}
	key := fmt.Sprintf("%s%016d:%s", txKeyPrefix, rec.BlockNumber, rec.Hash)
	if err := s.db.Put([]byte(key), data, nil); err != nil {
		return fmt.Errorf("failed to store transaction: %v", err)
	}
	return nil
}

// Blocks returns every persisted block in height order.
func (s *LevelStore) Blocks() ([]*Block, error) {
	var blocks []*Block
	iter := s.db.NewIterator(util.BytesPrefix([]byte(blockKeyPrefix)), nil)
	defer iter.Release()

	for iter.Next() {
		var b Block
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			return nil, fmt.Errorf("failed to unmarshal block %s: %v", iter.Key(), err)
		}
		blocks = append(blocks, &b)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %v", err)
	}
	return blocks, nil
}

// Transactions returns up to limit persisted transaction records in block
// order.
func (s *LevelStore) Transactions(limit int) ([]TransactionRecord, error) {
	var recs []TransactionRecord
	iter := s.db.NewIterator(util.BytesPrefix([]byte(txKeyPrefix)), nil)
	defer iter.Release()

	for iter.Next() {
		if limit > 0 && len(recs) >= limit {
			break
		}
		var rec TransactionRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %v", err)
	}
	return recs, nil
}

// Close releases the underlying database.
func (s *LevelStore) Close() error {
	return s.db.Close()
}

// recordFor builds the persisted shape of an in-block transaction.
func recordFor(tx *Transaction, b *Block) TransactionRecord {
	data, _ := json.Marshal(tx)
	return TransactionRecord{
		Hash:            tx.Hash(),
		BlockHash:       b.Hash,
		BlockNumber:     b.Height,
		FromAddress:     tx.From,
		ToAddress:       tx.To,
		Amount:          tx.Amount,
		Fee:             tx.Fee,
		Timestamp:       tx.Timestamp,
		Signature:       tx.Signature,
		TransactionData: string(data),
		Status:          "confirmed",
	}
}
