package ledger

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/stablegas/stablegas/pkg/loggers"
)

var _ StateLedger = (*MemStateLedger)(nil)

// MemStateLedger is a journaled in-memory state ledger. Every mutation
// appends an undo entry; Snapshot returns the current journal height and
// RevertToSnapshot replays the journal backwards to that height.
type MemStateLedger struct {
	logger   logrus.FieldLogger
	accounts map[ethcommon.Address]*memAccount
	logs     []*EvmLog

	journal   []journalEntry
	finalised int
}

func NewMemory() *MemStateLedger {
	return &MemStateLedger{
		logger:   loggers.Logger(loggers.Ledger),
		accounts: make(map[ethcommon.Address]*memAccount),
	}
}

func (l *MemStateLedger) GetOrCreateAccount(addr ethcommon.Address) IAccount {
	if account, ok := l.accounts[addr]; ok {
		return account
	}
	account := newMemAccount(l, addr)
	l.accounts[addr] = account
	l.append(createAccountChange{addr: addr})
	return account
}

func (l *MemStateLedger) GetAccount(addr ethcommon.Address) IAccount {
	account, ok := l.accounts[addr]
	if !ok {
		return nil
	}
	return account
}

func (l *MemStateLedger) GetBalance(addr ethcommon.Address) *big.Int {
	account, ok := l.accounts[addr]
	if !ok {
		return big.NewInt(0)
	}
	return account.GetBalance()
}

func (l *MemStateLedger) SetBalance(addr ethcommon.Address, balance *big.Int) {
	l.GetOrCreateAccount(addr).SetBalance(balance)
}

func (l *MemStateLedger) AddBalance(addr ethcommon.Address, amount *big.Int) {
	l.GetOrCreateAccount(addr).AddBalance(amount)
}

func (l *MemStateLedger) SubBalance(addr ethcommon.Address, amount *big.Int) {
	l.GetOrCreateAccount(addr).SubBalance(amount)
}

func (l *MemStateLedger) AddLog(log *EvmLog) {
	l.append(addLogChange{})
	l.logs = append(l.logs, log)
}

func (l *MemStateLedger) GetLogs() []*EvmLog {
	return l.logs
}

func (l *MemStateLedger) Snapshot() int {
	return len(l.journal)
}

func (l *MemStateLedger) RevertToSnapshot(revid int) {
	if revid < l.finalised || revid > len(l.journal) {
		l.logger.Panicf("revision id %v cannot be reverted (finalised %v, journal height %v)", revid, l.finalised, len(l.journal))
	}
	for i := len(l.journal) - 1; i >= revid; i-- {
		l.journal[i].revert(l)
	}
	l.journal = l.journal[:revid]
	snapshotRevertCounter.Inc()
}

func (l *MemStateLedger) Finalise() {
	l.finalised = len(l.journal)
}

func (l *MemStateLedger) Clear() {
	l.accounts = make(map[ethcommon.Address]*memAccount)
	l.logs = nil
	l.journal = nil
	l.finalised = 0
}

func (l *MemStateLedger) append(entry journalEntry) {
	l.journal = append(l.journal, entry)
}

type memAccount struct {
	ledger *MemStateLedger
	addr   ethcommon.Address

	balance  *big.Int
	nonce    uint64
	code     []byte
	codeHash []byte
	states   map[string][]byte
}

var _ IAccount = (*memAccount)(nil)

func newMemAccount(ledger *MemStateLedger, addr ethcommon.Address) *memAccount {
	return &memAccount{
		ledger:  ledger,
		addr:    addr,
		balance: big.NewInt(0),
		states:  make(map[string][]byte),
	}
}

func (a *memAccount) GetAddress() ethcommon.Address {
	return a.addr
}

func (a *memAccount) GetState(key []byte) (bool, []byte) {
	stateReadCounter.Inc()
	value, ok := a.states[string(key)]
	if !ok {
		return false, nil
	}
	return true, value
}

func (a *memAccount) SetState(key []byte, value []byte) {
	stateWriteCounter.Inc()
	k := string(key)
	prev, prevExist := a.states[k]
	a.ledger.append(stateChange{addr: a.addr, key: k, prevExist: prevExist, prev: prev})
	a.states[k] = value
}

func (a *memAccount) GetBalance() *big.Int {
	return new(big.Int).Set(a.balance)
}

func (a *memAccount) SetBalance(balance *big.Int) {
	a.ledger.append(balanceChange{addr: a.addr, prev: a.balance})
	a.balance = new(big.Int).Set(balance)
}

func (a *memAccount) AddBalance(amount *big.Int) {
	a.ledger.append(balanceChange{addr: a.addr, prev: a.balance})
	a.balance = new(big.Int).Add(a.balance, amount)
}

func (a *memAccount) SubBalance(amount *big.Int) {
	a.ledger.append(balanceChange{addr: a.addr, prev: a.balance})
	a.balance = new(big.Int).Sub(a.balance, amount)
}

func (a *memAccount) GetNonce() uint64 {
	return a.nonce
}

func (a *memAccount) SetNonce(nonce uint64) {
	a.ledger.append(nonceChange{addr: a.addr, prev: a.nonce})
	a.nonce = nonce
}

func (a *memAccount) Code() []byte {
	return a.code
}

func (a *memAccount) CodeHash() []byte {
	return a.codeHash
}

func (a *memAccount) SetCodeAndHash(code []byte) {
	a.ledger.append(codeChange{addr: a.addr, prevCode: a.code, prevHash: a.codeHash})
	a.code = code
	a.codeHash = crypto.Keccak256(code)
}
