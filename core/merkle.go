package core

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ZeroRoot is the transaction root of an empty transaction list.
var ZeroRoot = strings.Repeat("0", 64)

// TransactionRoot builds a binary merkle root over the per-transaction
// hashes. Odd node counts duplicate the last node at each level.
func TransactionRoot(txs []Transaction) string {
	if len(txs) == 0 {
		return ZeroRoot
	}
	level := make([]string, len(txs))
	for i := range txs {
		level[i] = txs[i].Hash()
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			pair := sha256.Sum256([]byte(level[i] + level[i+1]))
			next = append(next, fmt.Sprintf("%x", pair))
		}
		level = next
	}
	return level[0]
}

// StateRootOf hashes the full account table with addresses in sorted order,
// so the same state always yields the same root.
func StateRootOf(accounts map[string]AccountState) string {
	addrs := make([]string, 0, len(accounts))
	for addr := range accounts {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	var sb strings.Builder
	for _, addr := range addrs {
		a := accounts[addr]
		sb.WriteString(addr)
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatFloat(a.Balance, 'f', 8, 64))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(a.Nonce, 10))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatInt(a.LastActivity, 10))
		sb.WriteByte('|')
	}
	hash := sha256.Sum256([]byte(sb.String()))
	return fmt.Sprintf("%x", hash)
}
