package saccount

import (
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/stablegas/stablegas/internal/executor/system/common"
	"github.com/stablegas/stablegas/internal/executor/system/token"
)

func factoryTestEnv(t *testing.T) (*common.TestNVM, *token.StableToken, *FeeSponsor, *AccountFactory) {
	testNVM := common.NewTestNVM(t)
	stableToken := token.StableTokenBuildConfig.Build(testNVM.NewVMContext(ethcommon.Address{}))
	sponsor := FeeSponsorBuildConfig.Build(testNVM.NewVMContext(ethcommon.Address{}))
	factory := AccountFactoryBuildConfig.Build(testNVM.NewVMContext(ethcommon.Address{}))
	testNVM.GenesisInit(stableToken, sponsor, factory)
	return testNVM, stableToken, sponsor, factory
}

func TestDeriveAddress(t *testing.T) {
	testNVM, _, _, factory := factoryTestEnv(t)
	owner := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Accounts[0])

	testNVM.Call(factory, owner, func() {
		addr1, err := factory.DeriveAddress(owner, big.NewInt(0))
		assert.Nil(t, err)
		addr2, err := factory.DeriveAddress(owner, big.NewInt(0))
		assert.Nil(t, err)
		assert.Equal(t, addr1, addr2)

		addr3, err := factory.DeriveAddress(owner, big.NewInt(1))
		assert.Nil(t, err)
		assert.NotEqual(t, addr1, addr3)

		other := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Accounts[1])
		addr4, err := factory.DeriveAddress(other, big.NewInt(0))
		assert.Nil(t, err)
		assert.NotEqual(t, addr1, addr4)

		// nil salt reads as zero
		addr5, err := factory.DeriveAddress(owner, nil)
		assert.Nil(t, err)
		assert.Equal(t, addr1, addr5)

		_, err = factory.DeriveAddress(ethcommon.Address{}, big.NewInt(0))
		assert.ErrorContains(t, err, "null address")
	})
}

func TestCreateAccount(t *testing.T) {
	testNVM, _, _, factory := factoryTestEnv(t)
	owner := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Accounts[0])
	caller := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Accounts[1])

	var derived, created ethcommon.Address
	testNVM.Call(factory, caller, func() {
		var err error
		derived, err = factory.DeriveAddress(owner, big.NewInt(7))
		assert.Nil(t, err)
	})

	// creation is permissionless
	testNVM.RunSingleTX(factory, caller, func() error {
		var err error
		created, err = factory.CreateAccount(owner, big.NewInt(7))
		return err
	})
	assert.Equal(t, derived, created)

	testNVM.Call(factory, caller, func() {
		valid, err := factory.IsValidAccount(created)
		assert.Nil(t, err)
		assert.True(t, valid)

		accounts, err := factory.GetAccounts(owner)
		assert.Nil(t, err)
		assert.Equal(t, []ethcommon.Address{created}, accounts)
	})

	// the account came out initialized with the factory defaults
	account := SmartAccountBuildConfig.BuildWithAddress(testNVM.NewVMContext(owner), created)
	assert.True(t, account.IsInitialized())
	gotOwner, err := account.GetOwner()
	assert.Nil(t, err)
	assert.Equal(t, owner, gotOwner)

	settlementToken, payee, rate, err := account.GetFeeConfig()
	assert.Nil(t, err)
	assert.Equal(t, ethcommon.HexToAddress(common.TokenManagerContractAddr), settlementToken)
	assert.Equal(t, ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Sponsor.SponsorPayee), payee)
	assert.Equal(t, "2000000000000000000000", rate.String())

	// same (owner, salt) cannot be created twice
	testNVM.RunSingleTX(factory, caller, func() error {
		_, err := factory.CreateAccount(owner, big.NewInt(7))
		assert.ErrorContains(t, err, "already exists")
		return err
	})

	testNVM.RunSingleTX(factory, caller, func() error {
		_, err := factory.CreateAccount(ethcommon.Address{}, big.NewInt(0))
		assert.ErrorContains(t, err, "null address")
		return err
	})
}

func TestCreateIfNeeded(t *testing.T) {
	testNVM, _, _, factory := factoryTestEnv(t)
	owner := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Accounts[0])

	var first, second ethcommon.Address
	testNVM.RunSingleTX(factory, owner, func() error {
		var err error
		first, err = factory.CreateIfNeeded(owner, big.NewInt(3))
		return err
	})
	testNVM.RunSingleTX(factory, owner, func() error {
		var err error
		second, err = factory.CreateIfNeeded(owner, big.NewInt(3))
		return err
	})
	assert.Equal(t, first, second)

	// the registry holds one entry, not two
	testNVM.Call(factory, owner, func() {
		accounts, err := factory.GetAccounts(owner)
		assert.Nil(t, err)
		assert.Len(t, accounts, 1)
	})
}

func TestCreateBatch(t *testing.T) {
	testNVM, _, _, factory := factoryTestEnv(t)
	owner1 := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Accounts[0])
	owner2 := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Accounts[1])

	testNVM.RunSingleTX(factory, owner1, func() error {
		_, err := factory.CreateBatch(nil, nil)
		assert.ErrorContains(t, err, "empty batch")
		return err
	})
	testNVM.RunSingleTX(factory, owner1, func() error {
		_, err := factory.CreateBatch([]ethcommon.Address{owner1}, []*big.Int{big.NewInt(0), big.NewInt(1)})
		assert.ErrorContains(t, err, "length mismatch")
		return err
	})

	var accounts []ethcommon.Address
	testNVM.RunSingleTX(factory, owner1, func() error {
		var err error
		accounts, err = factory.CreateBatch(
			[]ethcommon.Address{owner1, owner2},
			[]*big.Int{big.NewInt(0), big.NewInt(0)},
		)
		return err
	})
	assert.Len(t, accounts, 2)
	testNVM.Call(factory, owner1, func() {
		for _, addr := range accounts {
			valid, err := factory.IsValidAccount(addr)
			assert.Nil(t, err)
			assert.True(t, valid)
		}
	})

	// duplicate pair fails the second item, which must unwind the first
	testNVM.RunSingleTX(factory, owner1, func() error {
		_, err := factory.CreateBatch(
			[]ethcommon.Address{owner1, owner2},
			[]*big.Int{big.NewInt(9), big.NewInt(0)},
		)
		assert.ErrorContains(t, err, "already exists")
		assert.ErrorContains(t, err, "batch item 1")

		wouldBe, deriveErr := factory.DeriveAddress(owner1, big.NewInt(9))
		assert.Nil(t, deriveErr)
		valid, validErr := factory.IsValidAccount(wouldBe)
		assert.Nil(t, validErr)
		assert.False(t, valid)
		return nil
	})
}

func TestUpdateTemplate(t *testing.T) {
	testNVM, _, _, factory := factoryTestEnv(t)
	admin := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Admin)
	owner := ethcommon.HexToAddress(testNVM.Rep.GenesisConfig.Accounts[0])

	goodTemplate := ethcommon.HexToAddress("0x3000000000000000000000000000000000000003")
	badTemplate := ethcommon.HexToAddress("0x4000000000000000000000000000000000000004")
	testNVM.CallEngine.Register(goodTemplate, func(from ethcommon.Address, value *big.Int, data []byte) ([]byte, error) {
		ret := make([]byte, 32)
		ret[31] = 1
		return ret, nil
	})
	testNVM.CallEngine.Register(badTemplate, func(from ethcommon.Address, value *big.Int, data []byte) ([]byte, error) {
		return make([]byte, 32), nil
	})

	testNVM.RunSingleTX(factory, owner, func() error {
		err := factory.UpdateTemplate(goodTemplate)
		assert.ErrorContains(t, err, "not account factory owner")
		return err
	})

	testNVM.RunSingleTX(factory, admin, func() error {
		err := factory.UpdateTemplate(badTemplate)
		assert.ErrorContains(t, err, "does not support delegation")
		return err
	})

	var before ethcommon.Address
	testNVM.Call(factory, admin, func() {
		var err error
		before, err = factory.DeriveAddress(owner, big.NewInt(0))
		assert.Nil(t, err)
	})

	testNVM.RunSingleTX(factory, admin, func() error {
		return factory.UpdateTemplate(goodTemplate)
	})

	testNVM.Call(factory, admin, func() {
		template, err := factory.GetTemplate()
		assert.Nil(t, err)
		assert.Equal(t, goodTemplate, template)

		// new template, new derived addresses
		after, err := factory.DeriveAddress(owner, big.NewInt(0))
		assert.Nil(t, err)
		assert.NotEqual(t, before, after)
	})
}
