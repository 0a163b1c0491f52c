package ledger

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// EvmLog is an audit-log entry emitted by a contract. Logs are
// append-only once finalised.
type EvmLog struct {
	Address ethcommon.Address
	Topics  []ethcommon.Hash
	Data    []byte
	Removed bool
}

type IAccount interface {
	GetAddress() ethcommon.Address

	GetState(key []byte) (bool, []byte)

	SetState(key []byte, value []byte)

	GetBalance() *big.Int

	SetBalance(balance *big.Int)

	AddBalance(amount *big.Int)

	SubBalance(amount *big.Int)

	GetNonce() uint64

	SetNonce(nonce uint64)

	Code() []byte

	CodeHash() []byte

	SetCodeAndHash(code []byte)
}

type StateLedger interface {
	// GetOrCreateAccount creates the account if it does not exist.
	GetOrCreateAccount(addr ethcommon.Address) IAccount

	// GetAccount returns nil if the account does not exist.
	GetAccount(addr ethcommon.Address) IAccount

	GetBalance(addr ethcommon.Address) *big.Int

	SetBalance(addr ethcommon.Address, balance *big.Int)

	AddBalance(addr ethcommon.Address, amount *big.Int)

	SubBalance(addr ethcommon.Address, amount *big.Int)

	AddLog(log *EvmLog)

	GetLogs() []*EvmLog

	// Snapshot returns a revision id usable with RevertToSnapshot.
	Snapshot() int

	// RevertToSnapshot undoes all state changes made since the given
	// revision, including any logs added to the ledger.
	RevertToSnapshot(revid int)

	// Finalise seals all changes since the last finalise; earlier
	// revisions become unusable.
	Finalise()

	// Clear drops all state. Test helper.
	Clear()
}
