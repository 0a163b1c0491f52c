package common

import (
	"math/big"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/stablegas/stablegas/internal/ledger"
	"github.com/stablegas/stablegas/pkg/repo"
)

type TestNVM struct {
	t           testing.TB
	Rep         *repo.Repo
	StateLedger ledger.StateLedger
	CallEngine  *StubCallEngine
}

func NewTestNVM(t testing.TB) *TestNVM {
	rep := repo.MockRepo(t)
	lg := ledger.NewMemory()
	return &TestNVM{
		t:           t,
		Rep:         rep,
		StateLedger: lg,
		CallEngine:  NewStubCallEngine(lg),
	}
}

func (nvm *TestNVM) GenesisInit(contracts ...SystemContract) {
	for _, contract := range contracts {
		contract.SetContext(nvm.NewVMContext(ethcommon.Address{}))
		err := contract.GenesisInit(nvm.Rep.GenesisConfig)
		assert.Nil(nvm.t, err)
	}
	nvm.StateLedger.Finalise()
}

func (nvm *TestNVM) NewVMContext(from ethcommon.Address) *VMContext {
	logs := make([]ledger.EvmLog, 0)
	return &VMContext{
		StateLedger: nvm.StateLedger,
		BlockNumber: 1,
		Timestamp:   uint64(time.Now().Unix()),
		From:        from,
		CurrentLogs: &logs,
		CallEngine:  nvm.CallEngine,
	}
}

// RunSingleTX executes one state-mutating operation: state changes are
// rolled back if the executor fails, but collected logs are always
// flushed, so events emitted before the failure stay observable.
func (nvm *TestNVM) RunSingleTX(contract SystemContract, from ethcommon.Address, executor func() error) {
	snapshot := nvm.StateLedger.Snapshot()
	ctx := nvm.NewVMContext(from)
	contract.SetContext(ctx)
	err := executor()
	if err != nil {
		nvm.StateLedger.RevertToSnapshot(snapshot)
	}
	for i := range *ctx.CurrentLogs {
		nvm.StateLedger.AddLog(&(*ctx.CurrentLogs)[i])
	}
	nvm.StateLedger.Finalise()
}

// Call executes a view operation; all state changes are reverted.
func (nvm *TestNVM) Call(contract SystemContract, from ethcommon.Address, executor func()) {
	snapshot := nvm.StateLedger.Snapshot()
	contract.SetContext(nvm.NewVMContext(from))
	executor()
	nvm.StateLedger.RevertToSnapshot(snapshot)
}

type StubCall struct {
	From  ethcommon.Address
	To    ethcommon.Address
	Value *big.Int
	Data  []byte
}

// StubCallEngine stands in for the execution substrate in tests:
// registered handlers simulate callee behavior, unregistered targets
// accept plain value transfers.
type StubCallEngine struct {
	stateLedger ledger.StateLedger
	handlers    map[ethcommon.Address]func(from ethcommon.Address, value *big.Int, data []byte) ([]byte, error)

	Calls []StubCall
}

var _ CallEngine = (*StubCallEngine)(nil)

func NewStubCallEngine(stateLedger ledger.StateLedger) *StubCallEngine {
	return &StubCallEngine{
		stateLedger: stateLedger,
		handlers:    make(map[ethcommon.Address]func(from ethcommon.Address, value *big.Int, data []byte) ([]byte, error)),
	}
}

func (e *StubCallEngine) Register(addr ethcommon.Address, handler func(from ethcommon.Address, value *big.Int, data []byte) ([]byte, error)) {
	e.handlers[addr] = handler
}

func (e *StubCallEngine) Call(from, to ethcommon.Address, value *big.Int, data []byte) ([]byte, error) {
	e.Calls = append(e.Calls, StubCall{From: from, To: to, Value: value, Data: data})

	if value != nil && value.Sign() > 0 {
		if e.stateLedger.GetBalance(from).Cmp(value) < 0 {
			return nil, errors.New("insufficient balance for transfer")
		}
		e.stateLedger.SubBalance(from, value)
		e.stateLedger.AddBalance(to, value)
	}

	handler, ok := e.handlers[to]
	if !ok {
		return nil, nil
	}
	return handler(from, value, data)
}

func (e *StubCallEngine) StaticCall(from, to ethcommon.Address, data []byte) ([]byte, error) {
	handler, ok := e.handlers[to]
	if !ok {
		return nil, nil
	}
	return handler(from, big.NewInt(0), data)
}
