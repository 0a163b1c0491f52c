package ledger

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

type journalEntry interface {
	revert(l *MemStateLedger)
}

type createAccountChange struct {
	addr ethcommon.Address
}

func (c createAccountChange) revert(l *MemStateLedger) {
	delete(l.accounts, c.addr)
}

type stateChange struct {
	addr      ethcommon.Address
	key       string
	prevExist bool
	prev      []byte
}

func (c stateChange) revert(l *MemStateLedger) {
	account := l.accounts[c.addr]
	if account == nil {
		return
	}
	if c.prevExist {
		account.states[c.key] = c.prev
	} else {
		delete(account.states, c.key)
	}
}

type balanceChange struct {
	addr ethcommon.Address
	prev *big.Int
}

func (c balanceChange) revert(l *MemStateLedger) {
	if account := l.accounts[c.addr]; account != nil {
		account.balance = c.prev
	}
}

type nonceChange struct {
	addr ethcommon.Address
	prev uint64
}

func (c nonceChange) revert(l *MemStateLedger) {
	if account := l.accounts[c.addr]; account != nil {
		account.nonce = c.prev
	}
}

type codeChange struct {
	addr     ethcommon.Address
	prevCode []byte
	prevHash []byte
}

func (c codeChange) revert(l *MemStateLedger) {
	if account := l.accounts[c.addr]; account != nil {
		account.code = c.prevCode
		account.codeHash = c.prevHash
	}
}

type addLogChange struct{}

func (c addLogChange) revert(l *MemStateLedger) {
	l.logs = l.logs[:len(l.logs)-1]
}
