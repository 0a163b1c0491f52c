package saccount

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/stablegas/stablegas/internal/executor/system/common"
	"github.com/stablegas/stablegas/internal/executor/system/token"
	"github.com/stablegas/stablegas/pkg/packer"
	"github.com/stablegas/stablegas/pkg/repo"
)

const (
	ownerKey           = "owner"
	settlementTokenKey = "settlement_token"
	sponsorPayeeKey    = "sponsor_payee"
	exchangeRateKey    = "exchange_rate"

	// EstimateFee reference values. The estimate is advisory, not the
	// true upcoming cost.
	estimateFeeGasUnits = 100000
	estimateFeeGasPrice = 5000000000 // 5 gwei
)

var (
	accountInitializedEvent = abi.NewEvent("AccountInitialized", "AccountInitialized", false, abi.Arguments{
		{Name: "owner", Type: common.AddressType, Indexed: true},
	})

	ownershipTransferredEvent = abi.NewEvent("OwnershipTransferred", "OwnershipTransferred", false, abi.Arguments{
		{Name: "previousOwner", Type: common.AddressType, Indexed: true},
		{Name: "newOwner", Type: common.AddressType, Indexed: true},
	})

	executionPerformedEvent = abi.NewEvent("ExecutionPerformed", "ExecutionPerformed", false, abi.Arguments{
		{Name: "target", Type: common.AddressType, Indexed: true},
		{Name: "value", Type: common.BigIntType},
		{Name: "payload", Type: common.BytesType},
		{Name: "success", Type: common.BoolType},
	})

	feeTransferPerformedEvent = abi.NewEvent("FeeTransferPerformed", "FeeTransferPerformed", false, abi.Arguments{
		{Name: "recipient", Type: common.AddressType, Indexed: true},
		{Name: "amount", Type: common.BigIntType},
		{Name: "feeAmount", Type: common.BigIntType},
	})

	exchangeRateUpdatedEvent = abi.NewEvent("ExchangeRateUpdated", "ExchangeRateUpdated", false, abi.Arguments{
		{Name: "oldRate", Type: common.BigIntType},
		{Name: "newRate", Type: common.BigIntType},
	})

	sponsorPayeeUpdatedEvent = abi.NewEvent("SponsorPayeeUpdated", "SponsorPayeeUpdated", false, abi.Arguments{
		{Name: "oldPayee", Type: common.AddressType},
		{Name: "newPayee", Type: common.AddressType},
	})
)

type EventAccountInitialized struct {
	Owner ethcommon.Address
}

type EventOwnershipTransferred struct {
	PreviousOwner ethcommon.Address
	NewOwner      ethcommon.Address
}

type EventExecutionPerformed struct {
	Target  ethcommon.Address
	Value   *big.Int
	Payload []byte
	Success bool
}

type EventFeeTransferPerformed struct {
	Recipient ethcommon.Address
	Amount    *big.Int
	FeeAmount *big.Int
}

type EventExchangeRateUpdated struct {
	OldRate *big.Int
	NewRate *big.Int
}

type EventSponsorPayeeUpdated struct {
	OldPayee ethcommon.Address
	NewPayee ethcommon.Address
}

// ExecutionResult is one item outcome of ExecuteBatch. ReturnData holds
// the sub-call's return payload on success, or its failure payload.
type ExecutionResult struct {
	Success    bool
	ReturnData []byte
}

var SmartAccountBuildConfig = &common.SystemContractBuildConfig[*SmartAccount]{
	Name: "saccount_account",
	Constructor: func(systemContractBase common.SystemContractBase) *SmartAccount {
		return &SmartAccount{
			SystemContractBase: systemContractBase,
			ReentrancyGuard:    common.NewReentrancyGuard(),
		}
	},
}

// SmartAccount is a per-user delegated-execution account. It holds an
// owner identity, a replay-protection counter (the account nonce) and
// the fee configuration used by its own fee-transfer path.
type SmartAccount struct {
	common.SystemContractBase
	*common.ReentrancyGuard

	owner           *common.VMSlot[ethcommon.Address]
	settlementToken *common.VMSlot[ethcommon.Address]
	sponsorPayee    *common.VMSlot[ethcommon.Address]
	exchangeRate    *common.VMSlot[*big.Int]
}

func (sa *SmartAccount) GenesisInit(genesis *repo.GenesisConfig) error {
	return nil
}

func (sa *SmartAccount) SetContext(ctx *common.VMContext) {
	sa.SystemContractBase.SetContext(ctx)

	sa.owner = common.NewVMSlot[ethcommon.Address](sa.StateAccount, ownerKey)
	sa.settlementToken = common.NewVMSlot[ethcommon.Address](sa.StateAccount, settlementTokenKey)
	sa.sponsorPayee = common.NewVMSlot[ethcommon.Address](sa.StateAccount, sponsorPayeeKey)
	sa.exchangeRate = common.NewVMSlot[*big.Int](sa.StateAccount, exchangeRateKey)
}

// Initialize must be called after SetContext.
// Initialize can be called any number of times, but only initializes once:
// a second call is a silent no-op.
func (sa *SmartAccount) Initialize(owner ethcommon.Address) error {
	if err := sa.checkFactoryOrRelay(); err != nil {
		return err
	}
	if owner == (ethcommon.Address{}) {
		return errors.New("initialize with null owner")
	}

	if sa.owner.Has() {
		return nil
	}
	if err := sa.owner.Put(owner); err != nil {
		return err
	}

	// fee defaults come from the factory's persisted configuration
	factory := AccountFactoryBuildConfig.Build(sa.CrossCallSystemContractContext())
	tokenAddr, payee, rate, err := factory.GetAccountDefaults()
	if err != nil {
		return errors.Wrap(err, "initialize smart account: load fee defaults")
	}
	if err := sa.settlementToken.Put(tokenAddr); err != nil {
		return err
	}
	if err := sa.sponsorPayee.Put(payee); err != nil {
		return err
	}
	if err := sa.exchangeRate.Put(rate); err != nil {
		return err
	}

	sa.StateAccount.SetCodeAndHash(ethcommon.Hex2Bytes(common.EmptyContractBinCode))
	sa.EmitEvent(&EventAccountInitialized{Owner: owner}, accountInitializedEvent)
	return nil
}

func (sa *SmartAccount) IsInitialized() bool {
	return sa.owner.Has()
}

func (sa *SmartAccount) GetOwner() (ethcommon.Address, error) {
	_, owner, err := sa.owner.Get()
	return owner, err
}

// GetReplayCounter returns the number of settled operations.
func (sa *SmartAccount) GetReplayCounter() uint64 {
	return sa.StateAccount.GetNonce()
}

func (sa *SmartAccount) GetFeeConfig() (settlementToken, sponsorPayee ethcommon.Address, exchangeRate *big.Int, err error) {
	settlementToken, err = sa.settlementToken.MustGet()
	if err != nil {
		return
	}
	sponsorPayee, err = sa.sponsorPayee.MustGet()
	if err != nil {
		return
	}
	exchangeRate, err = sa.exchangeRate.MustGet()
	return
}

// Execute performs exactly one sub-call on behalf of the owner. On
// sub-call failure the whole operation fails with the sub-call's failure
// payload and none of its state changes survive; the execution-record
// event is emitted either way.
func (sa *SmartAccount) Execute(target ethcommon.Address, value *big.Int, callData []byte) ([]byte, error) {
	if err := sa.checkOwnerOrRelay(); err != nil {
		return nil, err
	}
	if target == (ethcommon.Address{}) {
		return nil, errors.New("execute target is the null address")
	}
	if err := sa.Enter(); err != nil {
		return nil, err
	}
	defer sa.Exit()

	if value == nil {
		value = big.NewInt(0)
	}
	sa.bumpReplayCounter()

	snapshot := sa.Ctx.StateLedger.Snapshot()
	ret, err := sa.CrossCallExternalContract(target, value, callData)
	if err != nil {
		sa.Ctx.StateLedger.RevertToSnapshot(snapshot)
		sa.EmitEvent(&EventExecutionPerformed{
			Target:  target,
			Value:   value,
			Payload: callData,
			Success: false,
		}, executionPerformedEvent)
		return nil, err
	}

	sa.EmitEvent(&EventExecutionPerformed{
		Target:  target,
		Value:   value,
		Payload: callData,
		Success: true,
	}, executionPerformedEvent)
	return ret, nil
}

// ExecuteBatch runs each sub-call in order. Batch-level validation (length
// mismatch, empty batch, a null target anywhere) fails the whole batch
// before any item runs; after that, each item succeeds or fails on its
// own and a failing item never aborts its siblings.
func (sa *SmartAccount) ExecuteBatch(targets []ethcommon.Address, values []*big.Int, callDatas [][]byte) ([]ExecutionResult, error) {
	if err := sa.checkOwnerOrRelay(); err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, errors.New("executeBatch with empty batch")
	}
	if len(targets) != len(values) || len(targets) != len(callDatas) {
		return nil, errors.New("targets, values and callDatas length mismatch")
	}
	for _, target := range targets {
		if target == (ethcommon.Address{}) {
			return nil, errors.New("executeBatch target is the null address")
		}
	}
	if err := sa.Enter(); err != nil {
		return nil, err
	}
	defer sa.Exit()

	sa.bumpReplayCounter()

	results := make([]ExecutionResult, 0, len(targets))
	for i, target := range targets {
		value := values[i]
		if value == nil {
			value = big.NewInt(0)
		}

		snapshot := sa.Ctx.StateLedger.Snapshot()
		ret, err := sa.CrossCallExternalContract(target, value, callDatas[i])
		if err != nil {
			sa.Ctx.StateLedger.RevertToSnapshot(snapshot)
			results = append(results, ExecutionResult{Success: false, ReturnData: failurePayload(err)})
		} else {
			results = append(results, ExecutionResult{Success: true, ReturnData: ret})
		}
		sa.EmitEvent(&EventExecutionPerformed{
			Target:  target,
			Value:   value,
			Payload: callDatas[i],
			Success: err == nil,
		}, executionPerformedEvent)
	}

	return results, nil
}

// ExecuteFeeTransfer is the account's own fee-settlement path, used when
// the owner executes directly without the sponsor. Both transfer legs
// succeed or the whole operation fails.
func (sa *SmartAccount) ExecuteFeeTransfer(recipient ethcommon.Address, amount, feeAmount *big.Int) error {
	if err := sa.checkOwner(); err != nil {
		return err
	}
	if recipient == (ethcommon.Address{}) {
		return errors.New("fee transfer recipient is the null address")
	}
	if amount == nil || amount.Sign() == 0 {
		return errors.New("fee transfer amount is zero")
	}
	if feeAmount == nil {
		feeAmount = big.NewInt(0)
	}

	tokenAddr, err := sa.settlementToken.MustGet()
	if err != nil {
		return err
	}
	stableToken := token.StableTokenBuildConfig.BuildWithAddress(sa.CrossCallSystemContractContext(), tokenAddr)

	total := new(big.Int).Add(amount, feeAmount)
	balance := stableToken.BalanceOf(sa.EthAddress)
	if balance.Cmp(total) < 0 {
		return common.NewRevertStringError("fee transfer: insufficient settlement-token balance")
	}

	owner, err := sa.owner.MustGet()
	if err != nil {
		return err
	}
	payee, err := sa.sponsorPayee.GetWithDefault(ethcommon.Address{})
	if err != nil {
		return err
	}

	sa.bumpReplayCounter()

	snapshot := sa.Ctx.StateLedger.Snapshot()
	if err := stableToken.Transfer(recipient, amount); err != nil {
		sa.Ctx.StateLedger.RevertToSnapshot(snapshot)
		return err
	}
	// fee leg skipped when the payee is the owner, avoiding a
	// self-transfer no-op
	if feeAmount.Sign() > 0 && payee != (ethcommon.Address{}) && payee != owner {
		if err := stableToken.Transfer(payee, feeAmount); err != nil {
			sa.Ctx.StateLedger.RevertToSnapshot(snapshot)
			return err
		}
	}

	sa.EmitEvent(&EventFeeTransferPerformed{
		Recipient: recipient,
		Amount:    amount,
		FeeAmount: feeAmount,
	}, feeTransferPerformedEvent)
	return nil
}

// EstimateFee converts a fixed reference cost at the account's exchange
// rate. An estimate, not a guarantee.
func (sa *SmartAccount) EstimateFee() (*big.Int, error) {
	rate, err := sa.exchangeRate.MustGet()
	if err != nil {
		return nil, err
	}
	referenceCost := new(big.Int).Mul(big.NewInt(estimateFeeGasUnits), big.NewInt(estimateFeeGasPrice))
	return ConvertCost(referenceCost, rate), nil
}

func (sa *SmartAccount) UpdateExchangeRate(newRate *big.Int) error {
	if err := sa.checkOwner(); err != nil {
		return err
	}
	if newRate == nil || newRate.Sign() <= 0 {
		return errors.New("exchange rate must be positive")
	}

	oldRate, err := sa.exchangeRate.MustGet()
	if err != nil {
		return err
	}
	if err := sa.exchangeRate.Put(newRate); err != nil {
		return err
	}
	sa.EmitEvent(&EventExchangeRateUpdated{OldRate: oldRate, NewRate: newRate}, exchangeRateUpdatedEvent)
	return nil
}

func (sa *SmartAccount) UpdateSponsorPayee(newPayee ethcommon.Address) error {
	if err := sa.checkOwner(); err != nil {
		return err
	}
	if newPayee == (ethcommon.Address{}) {
		return errors.New("sponsor payee is the null address")
	}

	oldPayee, err := sa.sponsorPayee.GetWithDefault(ethcommon.Address{})
	if err != nil {
		return err
	}
	if err := sa.sponsorPayee.Put(newPayee); err != nil {
		return err
	}
	sa.EmitEvent(&EventSponsorPayeeUpdated{OldPayee: oldPayee, NewPayee: newPayee}, sponsorPayeeUpdatedEvent)
	return nil
}

func (sa *SmartAccount) TransferOwnership(newOwner ethcommon.Address) error {
	if err := sa.checkOwner(); err != nil {
		return err
	}
	if newOwner == (ethcommon.Address{}) {
		return errors.New("new owner is the null address")
	}

	oldOwner, err := sa.owner.MustGet()
	if err != nil {
		return err
	}
	if newOwner == oldOwner {
		return errors.New("new owner is the current owner")
	}
	if err := sa.owner.Put(newOwner); err != nil {
		return err
	}
	sa.EmitEvent(&EventOwnershipTransferred{PreviousOwner: oldOwner, NewOwner: newOwner}, ownershipTransferredEvent)
	return nil
}

// failurePayload extracts the encoded revert payload from a sub-call
// failure, keeping it verbatim when the callee produced one.
func failurePayload(err error) []byte {
	var revertErr *packer.RevertError
	if errors.As(err, &revertErr) && len(revertErr.Data) > 0 {
		return revertErr.Data
	}
	return []byte(err.Error())
}

func (sa *SmartAccount) bumpReplayCounter() {
	sa.StateAccount.SetNonce(sa.StateAccount.GetNonce() + 1)
}

func (sa *SmartAccount) checkOwner() error {
	owner, err := sa.owner.MustGet()
	if err != nil {
		return err
	}
	if sa.Ctx.From != owner {
		return errors.New("caller is not account owner")
	}
	return nil
}

func (sa *SmartAccount) checkOwnerOrRelay() error {
	owner, err := sa.owner.MustGet()
	if err != nil {
		return err
	}
	if sa.Ctx.From == owner {
		return nil
	}

	sponsor := FeeSponsorBuildConfig.Build(sa.CrossCallSystemContractContext())
	relay, err := sponsor.GetRelayEndpoint()
	if err != nil {
		return err
	}
	if sa.Ctx.From == relay {
		return nil
	}
	return errors.New("caller is not account owner or relay endpoint")
}

func (sa *SmartAccount) checkFactoryOrRelay() error {
	if sa.Ctx.From == ethcommon.HexToAddress(common.AccountFactoryContractAddr) {
		return nil
	}

	sponsor := FeeSponsorBuildConfig.Build(sa.CrossCallSystemContractContext())
	relay, err := sponsor.GetRelayEndpoint()
	if err != nil {
		return err
	}
	if sa.Ctx.From == relay {
		return nil
	}
	return errors.New("only account factory or relay endpoint can call smart account init")
}
