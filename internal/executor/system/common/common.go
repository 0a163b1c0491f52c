package common

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/stablegas/stablegas/internal/ledger"
	"github.com/stablegas/stablegas/pkg/loggers"
	"github.com/stablegas/stablegas/pkg/packer"
	"github.com/stablegas/stablegas/pkg/repo"
)

const (
	// ZeroAddress is a special address, no one has control
	ZeroAddress = "0x0000000000000000000000000000000000000000"

	// system contract address range 0x1000-0xffff, start from 1000, avoid conflicts with precompiled contracts
	// SystemContractStartAddr is the start address of system contract
	SystemContractStartAddr = "0x0000000000000000000000000000000000001000"

	// TokenManagerContractAddr is the settlement-token manager contract
	TokenManagerContractAddr = "0x0000000000000000000000000000000000001001"

	// FeeSponsorContractAddr fronts native cost and recoups it in the settlement token
	FeeSponsorContractAddr = "0x0000000000000000000000000000000000001002"

	// AccountFactoryContractAddr derives and deploys delegated-execution accounts
	AccountFactoryContractAddr = "0x0000000000000000000000000000000000001003"

	// SystemContractEndAddr is the end address of system contract
	SystemContractEndAddr = "0x000000000000000000000000000000000000ffff"

	// EmptyContractBinCode is the code marker stamped on deployed
	// delegated-execution accounts, so address occupancy is observable.
	EmptyContractBinCode = "fe"
)

var (
	ErrMethodNotFound = errors.New("method not found")
)

// CallEngine is the seam to the external execution substrate. Contracts
// perform sub-calls through it; the substrate itself is an external
// collaborator.
type CallEngine interface {
	// Call executes a state-mutating sub-call, transferring value from
	// the caller first. The returned error carries the callee's failure
	// payload untouched.
	Call(from, to ethcommon.Address, value *big.Int, data []byte) ([]byte, error)

	// StaticCall executes a read-only sub-call.
	StaticCall(from, to ethcommon.Address, data []byte) ([]byte, error)
}

type VMContext struct {
	StateLedger ledger.StateLedger
	BlockNumber uint64
	Timestamp   uint64

	// From is the immediate caller identity, checked against stored
	// identities before any mutation.
	From ethcommon.Address

	// CurrentLogs collects emitted events for the enclosing transaction.
	// The executor flushes them into the ledger, so an event emitted
	// before a failure stays observable.
	CurrentLogs *[]ledger.EvmLog

	CallEngine CallEngine
}

// SystemContract must be implemented by all system contracts
type SystemContract interface {
	SetContext(*VMContext)

	GenesisInit(genesis *repo.GenesisConfig) error
}

type SystemContractBase struct {
	Ctx          *VMContext
	Logger       logrus.FieldLogger
	EthAddress   ethcommon.Address
	StateAccount ledger.IAccount
}

func (b *SystemContractBase) SetContext(ctx *VMContext) {
	b.Ctx = ctx
	b.StateAccount = ctx.StateLedger.GetOrCreateAccount(b.EthAddress)
}

// EmitEvent packs the event struct and appends it to the current
// transaction's log collection.
func (b *SystemContractBase) EmitEvent(eventStruct any, event abi.Event) {
	topics, data, err := packer.PackEvent(eventStruct, event)
	if err != nil {
		b.Logger.Errorf("emit event %s failed: %v", event.Name, err)
		return
	}
	*b.Ctx.CurrentLogs = append(*b.Ctx.CurrentLogs, ledger.EvmLog{
		Address: b.EthAddress,
		Topics:  topics,
		Data:    data,
		Removed: false,
	})
}

// CrossCallSystemContractContext returns a context for calling another
// system contract with this contract as the caller identity.
func (b *SystemContractBase) CrossCallSystemContractContext() *VMContext {
	return &VMContext{
		StateLedger: b.Ctx.StateLedger,
		BlockNumber: b.Ctx.BlockNumber,
		Timestamp:   b.Ctx.Timestamp,
		From:        b.EthAddress,
		CurrentLogs: b.Ctx.CurrentLogs,
		CallEngine:  b.Ctx.CallEngine,
	}
}

// CrossCallExternalContract performs a sub-call to an arbitrary contract
// through the call engine.
func (b *SystemContractBase) CrossCallExternalContract(to ethcommon.Address, value *big.Int, data []byte) ([]byte, error) {
	if b.Ctx.CallEngine == nil {
		return nil, errors.New("no call engine bound to context")
	}
	return b.Ctx.CallEngine.Call(b.EthAddress, to, value, data)
}

type SystemContractBuildConfig[T SystemContract] struct {
	Name string

	// Address is the fixed contract address; leave empty for contracts
	// living at caller-determined addresses (built with BuildWithAddress).
	Address string

	Constructor func(systemContractBase SystemContractBase) T
}

func (c *SystemContractBuildConfig[T]) Build(ctx *VMContext) T {
	return c.BuildWithAddress(ctx, ethcommon.HexToAddress(c.Address))
}

func (c *SystemContractBuildConfig[T]) BuildWithAddress(ctx *VMContext, addr ethcommon.Address) T {
	contract := c.Constructor(SystemContractBase{
		Logger:     loggers.Logger(loggers.SystemContract).WithField("contract", c.Name),
		EthAddress: addr,
	})
	contract.SetContext(ctx)
	return contract
}

var (
	AddressType      = mustNewType("address")
	AddressSliceType = mustNewType("address[]")
	BigIntType       = mustNewType("uint256")
	BigIntSliceType  = mustNewType("uint256[]")
	UInt64Type       = mustNewType("uint64")
	UInt8Type        = mustNewType("uint8")
	BytesType        = mustNewType("bytes")
	BytesSliceType   = mustNewType("bytes[]")
	Bytes32Type      = mustNewType("bytes32")
	BoolType         = mustNewType("bool")
	StringType       = mustNewType("string")
)

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// NewRevertError builds a solidity-style typed revert error.
func NewRevertError(name string, args abi.Arguments, values []any) error {
	abiErr := abi.NewError(name, args)
	packed, err := abiErr.Inputs.Pack(values...)
	if err != nil {
		return errors.Wrapf(err, "revert error %s pack args error", name)
	}

	selector := ethcommon.CopyBytes(abiErr.ID.Bytes()[:4])
	return &packer.RevertError{
		Err:  vm.ErrExecutionReverted,
		Data: append(selector, packed...),
		Str:  fmt.Sprintf("%s, args: %v", abiErr.String(), values),
	}
}

var revertStringSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

// NewRevertStringError builds an Error(string) revert carrying the reason.
func NewRevertStringError(reason string) error {
	packed, err := abi.Arguments{{Name: "reason", Type: StringType}}.Pack(reason)
	if err != nil {
		return errors.Wrap(err, "revert string pack error")
	}
	return &packer.RevertError{
		Err:  vm.ErrExecutionReverted,
		Data: append(ethcommon.CopyBytes(revertStringSelector), packed...),
		Str:  reason,
	}
}

// Recovery is used with defer to turn a contract panic into a log line
// instead of taking down the executor.
func Recovery(logger logrus.FieldLogger) {
	if err := recover(); err != nil {
		logger.Errorf("recovered from panic: %v", err)
	}
}
