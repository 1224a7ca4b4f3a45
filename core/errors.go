package core

import "errors"

var (
	// ErrNotInitialized is returned when mining is requested before the
	// chain has loaded or created its genesis block.
	ErrNotInitialized = errors.New("blockchain not initialized")

	// ErrInsufficientBalance rejects a transfer whose sender cannot cover
	// amount plus fee.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrValidatorNotFound is returned for operations on an unregistered
	// validator id.
	ErrValidatorNotFound = errors.New("validator not found")

	// ErrInvalidBlock rejects a block whose linkage, roots, or hash do not
	// verify against the current chain.
	ErrInvalidBlock = errors.New("invalid block")

	// ErrInvalidTransition rejects a block whose state transition failed
	// validation; the ledger is left untouched.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidAmount rejects transfers with a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")
)
