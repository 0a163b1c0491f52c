package saccount

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/stablegas/stablegas/internal/executor/system/common"
	"github.com/stablegas/stablegas/pkg/repo"
)

const (
	factoryOwnerKey         = "owner"
	factoryTemplateKey      = "template"
	factoryDefaultTokenKey  = "default_settlement_token"
	factoryDefaultPayeeKey  = "default_sponsor_payee"
	factoryDefaultRateKey   = "default_exchange_rate"
	factoryOwnerAccountsKey = "owner_accounts"
	factoryAccountExistsKey = "account_exists"
)

var (
	accountCreatedEvent = abi.NewEvent("AccountCreated", "AccountCreated", false, abi.Arguments{
		{Name: "account", Type: common.AddressType, Indexed: true},
		{Name: "owner", Type: common.AddressType, Indexed: true},
		{Name: "salt", Type: common.BigIntType},
	})

	templateUpdatedEvent = abi.NewEvent("TemplateUpdated", "TemplateUpdated", false, abi.Arguments{
		{Name: "oldTemplate", Type: common.AddressType},
		{Name: "newTemplate", Type: common.AddressType},
	})

	// supportsDelegation() probe selector for template candidates
	supportsDelegationSig = crypto.Keccak256([]byte("supportsDelegation()"))[:4]
)

type EventAccountCreated struct {
	Account ethcommon.Address
	Owner   ethcommon.Address
	Salt    *big.Int
}

type EventTemplateUpdated struct {
	OldTemplate ethcommon.Address
	NewTemplate ethcommon.Address
}

var AccountFactoryBuildConfig = &common.SystemContractBuildConfig[*AccountFactory]{
	Name:    "saccount_account_factory",
	Address: common.AccountFactoryContractAddr,
	Constructor: func(systemContractBase common.SystemContractBase) *AccountFactory {
		return &AccountFactory{
			SystemContractBase: systemContractBase,
		}
	},
}

// AccountFactory deploys delegated-execution accounts at deterministic
// addresses and keeps an append-only registry of what it created.
type AccountFactory struct {
	common.SystemContractBase

	owner                  *common.VMSlot[ethcommon.Address]
	template               *common.VMSlot[ethcommon.Address]
	defaultSettlementToken *common.VMSlot[ethcommon.Address]
	defaultSponsorPayee    *common.VMSlot[ethcommon.Address]
	defaultExchangeRate    *common.VMSlot[*big.Int]
	ownerAccounts          *common.VMMap[ethcommon.Address, []ethcommon.Address]
	accountExists          *common.VMMap[ethcommon.Address, bool]
}

func (f *AccountFactory) SetContext(ctx *common.VMContext) {
	f.SystemContractBase.SetContext(ctx)

	f.owner = common.NewVMSlot[ethcommon.Address](f.StateAccount, factoryOwnerKey)
	f.template = common.NewVMSlot[ethcommon.Address](f.StateAccount, factoryTemplateKey)
	f.defaultSettlementToken = common.NewVMSlot[ethcommon.Address](f.StateAccount, factoryDefaultTokenKey)
	f.defaultSponsorPayee = common.NewVMSlot[ethcommon.Address](f.StateAccount, factoryDefaultPayeeKey)
	f.defaultExchangeRate = common.NewVMSlot[*big.Int](f.StateAccount, factoryDefaultRateKey)
	f.ownerAccounts = common.NewVMMap[ethcommon.Address, []ethcommon.Address](f.StateAccount, factoryOwnerAccountsKey, func(k ethcommon.Address) string {
		return k.String()
	})
	f.accountExists = common.NewVMMap[ethcommon.Address, bool](f.StateAccount, factoryAccountExistsKey, func(k ethcommon.Address) string {
		return k.String()
	})
}

func (f *AccountFactory) GenesisInit(genesis *repo.GenesisConfig) error {
	if !ethcommon.IsHexAddress(genesis.Admin) {
		return errors.New("invalid genesis admin address")
	}
	if err := f.owner.Put(ethcommon.HexToAddress(genesis.Admin)); err != nil {
		return err
	}
	// the factory itself stands in as the template until governance
	// installs a real one
	if err := f.template.Put(f.EthAddress); err != nil {
		return err
	}

	if err := f.defaultSettlementToken.Put(ethcommon.HexToAddress(common.TokenManagerContractAddr)); err != nil {
		return err
	}
	if !ethcommon.IsHexAddress(genesis.Sponsor.SponsorPayee) {
		return errors.New("invalid genesis sponsor payee address")
	}
	if err := f.defaultSponsorPayee.Put(ethcommon.HexToAddress(genesis.Sponsor.SponsorPayee)); err != nil {
		return err
	}
	rate, ok := new(big.Int).SetString(genesis.Sponsor.ExchangeRate, 10)
	if !ok || rate.Sign() <= 0 {
		return errors.Errorf("invalid genesis exchange rate: %s", genesis.Sponsor.ExchangeRate)
	}
	return f.defaultExchangeRate.Put(rate)
}

// DeriveAddress computes the address an account for (owner, salt) will
// occupy. Pure function of owner, salt and the current template.
func (f *AccountFactory) DeriveAddress(owner ethcommon.Address, salt *big.Int) (ethcommon.Address, error) {
	if owner == (ethcommon.Address{}) {
		return ethcommon.Address{}, errors.New("account factory: owner is the null address")
	}
	if salt == nil {
		salt = big.NewInt(0)
	}
	template, err := f.template.MustGet()
	if err != nil {
		return ethcommon.Address{}, err
	}

	saltHash := crypto.Keccak256Hash(append(owner.Bytes(), ethcommon.LeftPadBytes(salt.Bytes(), 32)...))
	return crypto.CreateAddress2(f.EthAddress, saltHash, template.Bytes()), nil
}

// CreateAccount deploys and initializes a new account for (owner, salt).
// Fails if an account already occupies the derived address.
func (f *AccountFactory) CreateAccount(owner ethcommon.Address, salt *big.Int) (ethcommon.Address, error) {
	accountAddr, err := f.DeriveAddress(owner, salt)
	if err != nil {
		return ethcommon.Address{}, err
	}

	exist, created, err := f.accountExists.Get(accountAddr)
	if err != nil {
		return ethcommon.Address{}, err
	}
	if exist && created {
		return ethcommon.Address{}, common.NewRevertStringError("account factory: account already exists")
	}

	if err := f.initializeAccount(accountAddr, owner, salt); err != nil {
		return ethcommon.Address{}, err
	}
	return accountAddr, nil
}

// CreateIfNeeded returns the existing account for (owner, salt), or
// creates one. Never fails on a pre-existing account.
func (f *AccountFactory) CreateIfNeeded(owner ethcommon.Address, salt *big.Int) (ethcommon.Address, error) {
	accountAddr, err := f.DeriveAddress(owner, salt)
	if err != nil {
		return ethcommon.Address{}, err
	}

	exist, created, err := f.accountExists.Get(accountAddr)
	if err != nil {
		return ethcommon.Address{}, err
	}
	if exist && created {
		return accountAddr, nil
	}

	if err := f.initializeAccount(accountAddr, owner, salt); err != nil {
		return ethcommon.Address{}, err
	}
	return accountAddr, nil
}

// CreateBatch creates one account per (owner, salt) pair, all or
// nothing: any single failure reverts every account in the batch.
func (f *AccountFactory) CreateBatch(owners []ethcommon.Address, salts []*big.Int) ([]ethcommon.Address, error) {
	if len(owners) == 0 {
		return nil, errors.New("account factory: empty batch")
	}
	if len(owners) != len(salts) {
		return nil, errors.New("account factory: owners and salts length mismatch")
	}

	snapshot := f.Ctx.StateLedger.Snapshot()
	accounts := make([]ethcommon.Address, 0, len(owners))
	for i, owner := range owners {
		accountAddr, err := f.CreateAccount(owner, salts[i])
		if err != nil {
			f.Ctx.StateLedger.RevertToSnapshot(snapshot)
			return nil, errors.Wrapf(err, "account factory: batch item %d", i)
		}
		accounts = append(accounts, accountAddr)
	}
	return accounts, nil
}

// UpdateTemplate installs a new account template after probing that the
// candidate answers the delegation-support query.
func (f *AccountFactory) UpdateTemplate(newTemplate ethcommon.Address) error {
	if err := f.checkOwner(); err != nil {
		return err
	}
	if newTemplate == (ethcommon.Address{}) {
		return errors.New("account factory: template is the null address")
	}

	ret, err := f.Ctx.CallEngine.StaticCall(f.EthAddress, newTemplate, supportsDelegationSig)
	if err != nil {
		return errors.Wrap(err, "account factory: template probe failed")
	}
	if len(ret) != 32 || ret[31] != 1 {
		return common.NewRevertStringError("account factory: template does not support delegation")
	}

	oldTemplate, err := f.template.MustGet()
	if err != nil {
		return err
	}
	if err := f.template.Put(newTemplate); err != nil {
		return err
	}
	f.EmitEvent(&EventTemplateUpdated{OldTemplate: oldTemplate, NewTemplate: newTemplate}, templateUpdatedEvent)
	return nil
}

func (f *AccountFactory) GetAccounts(owner ethcommon.Address) ([]ethcommon.Address, error) {
	exist, accounts, err := f.ownerAccounts.Get(owner)
	if err != nil {
		return nil, err
	}
	if !exist {
		return []ethcommon.Address{}, nil
	}
	return accounts, nil
}

func (f *AccountFactory) IsValidAccount(account ethcommon.Address) (bool, error) {
	exist, created, err := f.accountExists.Get(account)
	if err != nil {
		return false, err
	}
	return exist && created, nil
}

func (f *AccountFactory) GetTemplate() (ethcommon.Address, error) {
	return f.template.MustGet()
}

// GetAccountDefaults returns the fee configuration seeded into newly
// initialized accounts.
func (f *AccountFactory) GetAccountDefaults() (settlementToken, sponsorPayee ethcommon.Address, exchangeRate *big.Int, err error) {
	settlementToken, err = f.defaultSettlementToken.MustGet()
	if err != nil {
		return ethcommon.Address{}, ethcommon.Address{}, nil, err
	}
	sponsorPayee, err = f.defaultSponsorPayee.MustGet()
	if err != nil {
		return ethcommon.Address{}, ethcommon.Address{}, nil, err
	}
	exchangeRate, err = f.defaultExchangeRate.MustGet()
	if err != nil {
		return ethcommon.Address{}, ethcommon.Address{}, nil, err
	}
	return settlementToken, sponsorPayee, exchangeRate, nil
}

func (f *AccountFactory) initializeAccount(accountAddr, owner ethcommon.Address, salt *big.Int) error {
	account := SmartAccountBuildConfig.BuildWithAddress(f.CrossCallSystemContractContext(), accountAddr)
	if err := account.Initialize(owner); err != nil {
		return err
	}

	accounts, err := f.ownerAccounts.GetWithDefault(owner, []ethcommon.Address{})
	if err != nil {
		return err
	}
	if err := f.ownerAccounts.Put(owner, append(accounts, accountAddr)); err != nil {
		return err
	}
	if err := f.accountExists.Put(accountAddr, true); err != nil {
		return err
	}

	if salt == nil {
		salt = big.NewInt(0)
	}
	f.EmitEvent(&EventAccountCreated{Account: accountAddr, Owner: owner, Salt: salt}, accountCreatedEvent)
	return nil
}

func (f *AccountFactory) checkOwner() error {
	owner, err := f.owner.MustGet()
	if err != nil {
		return err
	}
	if f.Ctx.From != owner {
		return errors.New("caller is not account factory owner")
	}
	return nil
}
