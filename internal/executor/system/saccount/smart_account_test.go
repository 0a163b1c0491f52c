package saccount

import (
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/stablegas/stablegas/internal/executor/system/common"
	"github.com/stablegas/stablegas/internal/executor/system/token"
	"github.com/stablegas/stablegas/pkg/packer"
)

func smartAccountTestEnv(t *testing.T) (*common.TestNVM, *token.StableToken, *SmartAccount, ethcommon.Address, ethcommon.Address) {
	testNVM := common.NewTestNVM(t)
	stableToken := token.StableTokenBuildConfig.Build(testNVM.NewVMContext(ethcommon.Address{}))
	sponsor := FeeSponsorBuildConfig.Build(testNVM.NewVMContext(ethcommon.Address{}))
	factory := AccountFactoryBuildConfig.Build(testNVM.NewVMContext(ethcommon.Address{}))
	testNVM.GenesisInit(stableToken, sponsor, factory)

	owner := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Accounts[0])
	var accountAddr ethcommon.Address
	testNVM.RunSingleTX(factory, owner, func() error {
		var err error
		accountAddr, err = factory.CreateAccount(owner, big.NewInt(0))
		return err
	})

	account := SmartAccountBuildConfig.BuildWithAddress(testNVM.NewVMContext(owner), accountAddr)
	return testNVM, stableToken, account, accountAddr, owner
}

func TestSmartAccountInitialize(t *testing.T) {
	testNVM, _, account, _, owner := smartAccountTestEnv(t)
	relay := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.RelayEndpoint)

	assert.True(t, account.IsInitialized())
	gotOwner, err := account.GetOwner()
	assert.Nil(t, err)
	assert.Equal(t, owner, gotOwner)

	// repeated initialization is a silent no-op and keeps the first owner
	other := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Accounts[1])
	testNVM.RunSingleTX(account, relay, func() error {
		return account.Initialize(other)
	})
	gotOwner, err = account.GetOwner()
	assert.Nil(t, err)
	assert.Equal(t, owner, gotOwner)

	// arbitrary callers cannot initialize
	fresh := SmartAccountBuildConfig.BuildWithAddress(
		testNVM.NewVMContext(other),
		ethcommon.HexToAddress("0x5000000000000000000000000000000000000005"),
	)
	testNVM.RunSingleTX(fresh, other, func() error {
		err := fresh.Initialize(other)
		assert.ErrorContains(t, err, "only account factory or relay")
		return err
	})

	testNVM.RunSingleTX(fresh, relay, func() error {
		err := fresh.Initialize(ethcommon.Address{})
		assert.ErrorContains(t, err, "null owner")
		return err
	})

	// the relay may initialize a pre-derived account directly
	testNVM.RunSingleTX(fresh, relay, func() error {
		return fresh.Initialize(other)
	})
	assert.True(t, fresh.IsInitialized())
}

func TestSmartAccountExecute(t *testing.T) {
	testNVM, _, account, accountAddr, owner := smartAccountTestEnv(t)
	target := ethcommon.HexToAddress("0x6000000000000000000000000000000000000006")
	testNVM.CallEngine.Register(target, func(from ethcommon.Address, value *big.Int, data []byte) ([]byte, error) {
		assert.Equal(t, accountAddr, from)
		return []byte("pong"), nil
	})

	counterBefore := account.GetReplayCounter()
	testNVM.RunSingleTX(account, owner, func() error {
		ret, err := account.Execute(target, nil, []byte("ping"))
		assert.Nil(t, err)
		assert.Equal(t, []byte("pong"), ret)
		return err
	})
	assert.Equal(t, counterBefore+1, account.GetReplayCounter())

	other := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Accounts[1])
	testNVM.RunSingleTX(account, other, func() error {
		_, err := account.Execute(target, nil, nil)
		assert.ErrorContains(t, err, "not account owner or relay")
		return err
	})

	testNVM.RunSingleTX(account, owner, func() error {
		_, err := account.Execute(ethcommon.Address{}, nil, nil)
		assert.ErrorContains(t, err, "null address")
		return err
	})

	// the relay may execute on the owner's behalf
	relay := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.RelayEndpoint)
	testNVM.RunSingleTX(account, relay, func() error {
		_, err := account.Execute(target, nil, nil)
		return err
	})
	assert.Equal(t, counterBefore+2, account.GetReplayCounter())
}

func TestSmartAccountExecuteValueTransfer(t *testing.T) {
	testNVM, _, account, accountAddr, owner := smartAccountTestEnv(t)
	recipient := ethcommon.HexToAddress("0x7000000000000000000000000000000000000007")

	testNVM.StateLedger.AddBalance(accountAddr, big.NewInt(1000))
	testNVM.StateLedger.Finalise()

	testNVM.RunSingleTX(account, owner, func() error {
		_, err := account.Execute(recipient, big.NewInt(300), nil)
		return err
	})

	assert.Equal(t, int64(300), testNVM.StateLedger.GetBalance(recipient).Int64())
	assert.Equal(t, int64(700), testNVM.StateLedger.GetBalance(accountAddr).Int64())
}

func TestSmartAccountExecuteFailure(t *testing.T) {
	testNVM, _, account, accountAddr, owner := smartAccountTestEnv(t)
	target := ethcommon.HexToAddress("0x6000000000000000000000000000000000000006")
	sideEffect := ethcommon.HexToAddress("0x8000000000000000000000000000000000000008")
	testNVM.CallEngine.Register(target, func(from ethcommon.Address, value *big.Int, data []byte) ([]byte, error) {
		testNVM.StateLedger.AddBalance(sideEffect, big.NewInt(5))
		return nil, errors.New("callee reverted")
	})

	counterBefore := account.GetReplayCounter()
	testNVM.RunSingleTX(account, owner, func() error {
		_, err := account.Execute(target, nil, []byte("ping"))
		assert.ErrorContains(t, err, "callee reverted")
		// the sub-call's state changes are already unwound
		assert.Equal(t, int64(0), testNVM.StateLedger.GetBalance(sideEffect).Int64())
		return nil
	})

	// the replay counter moved despite the failure
	assert.Equal(t, counterBefore+1, account.GetReplayCounter())

	// and the failure left an execution record
	found := false
	for _, log := range testNVM.StateLedger.GetLogs() {
		if log.Address == accountAddr && len(log.Topics) > 1 && log.Topics[0] == executionPerformedEvent.ID {
			found = true
		}
	}
	assert.True(t, found, "expected an ExecutionPerformed log")
}

func TestSmartAccountExecuteReentrancyRejected(t *testing.T) {
	testNVM, _, account, _, owner := smartAccountTestEnv(t)
	target := ethcommon.HexToAddress("0x6000000000000000000000000000000000000006")

	var reentered bool
	var innerErr error
	testNVM.CallEngine.Register(target, func(from ethcommon.Address, value *big.Int, data []byte) ([]byte, error) {
		reentered = account.IsEntered()
		_, innerErr = account.Execute(target, nil, nil)
		return nil, innerErr
	})

	testNVM.RunSingleTX(account, owner, func() error {
		_, err := account.Execute(target, nil, nil)
		assert.Error(t, err)
		return nil
	})
	assert.True(t, reentered)
	assert.Error(t, innerErr)
}

func TestSmartAccountExecuteBatch(t *testing.T) {
	testNVM, _, account, _, owner := smartAccountTestEnv(t)
	good := ethcommon.HexToAddress("0x6000000000000000000000000000000000000006")
	bad := ethcommon.HexToAddress("0x9000000000000000000000000000000000000009")
	testNVM.CallEngine.Register(good, func(from ethcommon.Address, value *big.Int, data []byte) ([]byte, error) {
		return []byte("ok"), nil
	})
	testNVM.CallEngine.Register(bad, func(from ethcommon.Address, value *big.Int, data []byte) ([]byte, error) {
		return nil, errors.New("boom")
	})

	testNVM.RunSingleTX(account, owner, func() error {
		_, err := account.ExecuteBatch(nil, nil, nil)
		assert.ErrorContains(t, err, "empty batch")
		return err
	})
	testNVM.RunSingleTX(account, owner, func() error {
		_, err := account.ExecuteBatch([]ethcommon.Address{good}, []*big.Int{}, [][]byte{nil})
		assert.ErrorContains(t, err, "length mismatch")
		return err
	})
	testNVM.RunSingleTX(account, owner, func() error {
		_, err := account.ExecuteBatch(
			[]ethcommon.Address{good, {}},
			[]*big.Int{nil, nil},
			[][]byte{nil, nil},
		)
		assert.ErrorContains(t, err, "null address")
		return err
	})

	// one failing item does not abort its siblings
	counterBefore := account.GetReplayCounter()
	testNVM.RunSingleTX(account, owner, func() error {
		results, err := account.ExecuteBatch(
			[]ethcommon.Address{good, bad, good},
			[]*big.Int{nil, nil, nil},
			[][]byte{nil, nil, nil},
		)
		assert.Nil(t, err)
		assert.Len(t, results, 3)
		assert.True(t, results[0].Success)
		assert.Equal(t, []byte("ok"), results[0].ReturnData)
		assert.False(t, results[1].Success)
		assert.Contains(t, string(results[1].ReturnData), "boom")
		assert.True(t, results[2].Success)
		return nil
	})

	// one batch, one counter tick
	assert.Equal(t, counterBefore+1, account.GetReplayCounter())
}

func TestSmartAccountExecuteBatchKeepsRevertPayload(t *testing.T) {
	testNVM, _, account, _, owner := smartAccountTestEnv(t)
	good := ethcommon.HexToAddress("0x6000000000000000000000000000000000000006")
	reverting := ethcommon.HexToAddress("0xb00000000000000000000000000000000000000b")

	revertErr := common.NewRevertStringError("denied")
	testNVM.CallEngine.Register(good, func(from ethcommon.Address, value *big.Int, data []byte) ([]byte, error) {
		return []byte("ok"), nil
	})
	testNVM.CallEngine.Register(reverting, func(from ethcommon.Address, value *big.Int, data []byte) ([]byte, error) {
		return nil, revertErr
	})

	testNVM.RunSingleTX(account, owner, func() error {
		results, err := account.ExecuteBatch(
			[]ethcommon.Address{good, reverting},
			[]*big.Int{nil, nil},
			[][]byte{nil, nil},
		)
		assert.Nil(t, err)
		assert.True(t, results[0].Success)
		assert.False(t, results[1].Success)
		// the callee's encoded revert payload passes through untouched
		assert.Equal(t, revertErr.(*packer.RevertError).Data, results[1].ReturnData)
		return nil
	})
}

func TestSmartAccountExecuteFeeTransfer(t *testing.T) {
	testNVM, stableToken, account, accountAddr, owner := smartAccountTestEnv(t)
	payee := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Sponsor.SponsorPayee)
	recipient := ethcommon.HexToAddress("0x7000000000000000000000000000000000000007")

	testNVM.RunSingleTX(stableToken, owner, func() error {
		return stableToken.Transfer(accountAddr, big.NewInt(10000000))
	})

	relay := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.RelayEndpoint)
	testNVM.RunSingleTX(account, relay, func() error {
		err := account.ExecuteFeeTransfer(recipient, big.NewInt(1), big.NewInt(1))
		assert.ErrorContains(t, err, "not account owner")
		return err
	})
	testNVM.RunSingleTX(account, owner, func() error {
		err := account.ExecuteFeeTransfer(ethcommon.Address{}, big.NewInt(1), nil)
		assert.ErrorContains(t, err, "null address")
		return err
	})
	testNVM.RunSingleTX(account, owner, func() error {
		err := account.ExecuteFeeTransfer(recipient, big.NewInt(0), nil)
		assert.ErrorContains(t, err, "amount is zero")
		return err
	})
	testNVM.RunSingleTX(account, owner, func() error {
		err := account.ExecuteFeeTransfer(recipient, big.NewInt(999999999999), nil)
		assert.ErrorContains(t, err, "insufficient settlement-token balance")
		return err
	})

	counterBefore := account.GetReplayCounter()
	testNVM.RunSingleTX(account, owner, func() error {
		return account.ExecuteFeeTransfer(recipient, big.NewInt(1000000), big.NewInt(50000))
	})
	assert.Equal(t, counterBefore+1, account.GetReplayCounter())

	testNVM.Call(account, owner, func() {
		assert.Equal(t, int64(1000000), stableToken.BalanceOf(recipient).Int64())
		assert.Equal(t, int64(50000), stableToken.BalanceOf(payee).Int64())
		assert.Equal(t, int64(8950000), stableToken.BalanceOf(accountAddr).Int64())
	})

	// a payee equal to the owner never receives the fee leg
	testNVM.RunSingleTX(account, owner, func() error {
		return account.UpdateSponsorPayee(owner)
	})
	ownerBalanceBefore := stableToken.BalanceOf(owner)
	testNVM.RunSingleTX(account, owner, func() error {
		return account.ExecuteFeeTransfer(recipient, big.NewInt(1000000), big.NewInt(50000))
	})
	testNVM.Call(account, owner, func() {
		assert.Equal(t, int64(2000000), stableToken.BalanceOf(recipient).Int64())
		assert.Equal(t, ownerBalanceBefore.String(), stableToken.BalanceOf(owner).String())
		// the fee stays with the account
		assert.Equal(t, int64(7950000), stableToken.BalanceOf(accountAddr).Int64())
	})
}

func TestSmartAccountFeeTransferDrainsExactBalance(t *testing.T) {
	testNVM, stableToken, account, accountAddr, owner := smartAccountTestEnv(t)
	payee := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Sponsor.SponsorPayee)
	recipient := ethcommon.HexToAddress("0x7000000000000000000000000000000000000007")

	// 101 token units in, 100 out plus a 1-unit fee, account empties
	testNVM.RunSingleTX(stableToken, owner, func() error {
		return stableToken.Transfer(accountAddr, big.NewInt(101000000))
	})
	testNVM.RunSingleTX(account, owner, func() error {
		return account.ExecuteFeeTransfer(recipient, big.NewInt(100000000), big.NewInt(1000000))
	})
	testNVM.Call(account, owner, func() {
		assert.Equal(t, int64(0), stableToken.BalanceOf(accountAddr).Int64())
		assert.Equal(t, int64(100000000), stableToken.BalanceOf(recipient).Int64())
		assert.Equal(t, int64(1000000), stableToken.BalanceOf(payee).Int64())
	})
}

func TestSmartAccountEstimateFee(t *testing.T) {
	testNVM, _, account, _, owner := smartAccountTestEnv(t)

	testNVM.Call(account, owner, func() {
		fee, err := account.EstimateFee()
		assert.Nil(t, err)
		// 100k units at 5 gwei, rate 2000, no markup
		assert.Equal(t, int64(1000000), fee.Int64())
	})

	testNVM.RunSingleTX(account, owner, func() error {
		return account.UpdateExchangeRate(new(big.Int).Mul(big.NewInt(1000), exp10(18)))
	})
	testNVM.Call(account, owner, func() {
		fee, err := account.EstimateFee()
		assert.Nil(t, err)
		assert.Equal(t, int64(500000), fee.Int64())
	})
}

func TestSmartAccountUpdateOps(t *testing.T) {
	testNVM, _, account, _, owner := smartAccountTestEnv(t)
	other := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Accounts[1])

	testNVM.RunSingleTX(account, other, func() error {
		err := account.UpdateExchangeRate(big.NewInt(1))
		assert.ErrorContains(t, err, "not account owner")
		return err
	})
	testNVM.RunSingleTX(account, owner, func() error {
		err := account.UpdateExchangeRate(big.NewInt(-1))
		assert.ErrorContains(t, err, "must be positive")
		return err
	})

	testNVM.RunSingleTX(account, owner, func() error {
		err := account.UpdateSponsorPayee(ethcommon.Address{})
		assert.ErrorContains(t, err, "null address")
		return err
	})
	newPayee := ethcommon.HexToAddress("0xa00000000000000000000000000000000000000a")
	testNVM.RunSingleTX(account, owner, func() error {
		return account.UpdateSponsorPayee(newPayee)
	})
	testNVM.Call(account, owner, func() {
		_, payee, _, err := account.GetFeeConfig()
		assert.Nil(t, err)
		assert.Equal(t, newPayee, payee)
	})
}

func TestSmartAccountTransferOwnership(t *testing.T) {
	testNVM, _, account, _, owner := smartAccountTestEnv(t)
	other := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Accounts[1])

	testNVM.RunSingleTX(account, other, func() error {
		err := account.TransferOwnership(other)
		assert.ErrorContains(t, err, "not account owner")
		return err
	})
	testNVM.RunSingleTX(account, owner, func() error {
		err := account.TransferOwnership(owner)
		assert.ErrorContains(t, err, "current owner")
		return err
	})
	testNVM.RunSingleTX(account, owner, func() error {
		err := account.TransferOwnership(ethcommon.Address{})
		assert.ErrorContains(t, err, "null address")
		return err
	})

	testNVM.RunSingleTX(account, owner, func() error {
		return account.TransferOwnership(other)
	})

	// the old owner is locked out, the new owner is in control
	testNVM.RunSingleTX(account, owner, func() error {
		err := account.UpdateSponsorPayee(other)
		assert.ErrorContains(t, err, "not account owner")
		return err
	})
	testNVM.RunSingleTX(account, other, func() error {
		return account.UpdateSponsorPayee(other)
	})
}
