package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/stablegas/stablegas/internal/executor/system/common"
	"github.com/stablegas/stablegas/pkg/repo"
)

const (
	nameKey        = "name"
	symbolKey      = "symbol"
	decimalsKey    = "decimals"
	totalSupplyKey = "total_supply"
	adminKey       = "admin"
	balancesKey    = "balances"
	allowancesKey  = "allowances"
)

var (
	ErrValue                 = errors.New("invalid token amount")
	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient token allowance")
	ErrNotAdmin              = errors.New("caller is not token admin")
)

var (
	transferEvent = abi.NewEvent("Transfer", "Transfer", false, abi.Arguments{
		{Name: "from", Type: common.AddressType, Indexed: true},
		{Name: "to", Type: common.AddressType, Indexed: true},
		{Name: "value", Type: common.BigIntType},
	})

	approvalEvent = abi.NewEvent("Approval", "Approval", false, abi.Arguments{
		{Name: "owner", Type: common.AddressType, Indexed: true},
		{Name: "spender", Type: common.AddressType, Indexed: true},
		{Name: "value", Type: common.BigIntType},
	})
)

type EventTransfer struct {
	From  ethcommon.Address
	To    ethcommon.Address
	Value *big.Int
}

type EventApproval struct {
	Owner   ethcommon.Address
	Spender ethcommon.Address
	Value   *big.Int
}

var StableTokenBuildConfig = &common.SystemContractBuildConfig[*StableToken]{
	Name:    "token_stable_token",
	Address: common.TokenManagerContractAddr,
	Constructor: func(systemContractBase common.SystemContractBase) *StableToken {
		return &StableToken{
			SystemContractBase: systemContractBase,
		}
	},
}

type allowancePair struct {
	Owner   ethcommon.Address
	Spender ethcommon.Address
}

// StableToken is the 6-decimal settlement token. Balances and allowances
// live in the contract's own storage, not in native account balances.
type StableToken struct {
	common.SystemContractBase

	admin       *common.VMSlot[ethcommon.Address]
	totalSupply *common.VMSlot[*big.Int]
	balances    *common.VMMap[ethcommon.Address, *big.Int]
	allowances  *common.VMMap[allowancePair, *big.Int]
}

func (st *StableToken) SetContext(ctx *common.VMContext) {
	st.SystemContractBase.SetContext(ctx)

	st.admin = common.NewVMSlot[ethcommon.Address](st.StateAccount, adminKey)
	st.totalSupply = common.NewVMSlot[*big.Int](st.StateAccount, totalSupplyKey)
	st.balances = common.NewVMMap[ethcommon.Address, *big.Int](st.StateAccount, balancesKey, func(key ethcommon.Address) string {
		return key.String()
	})
	st.allowances = common.NewVMMap[allowancePair, *big.Int](st.StateAccount, allowancesKey, func(key allowancePair) string {
		return key.Owner.String() + "_" + key.Spender.String()
	})
}

func (st *StableToken) GenesisInit(genesis *repo.GenesisConfig) error {
	st.StateAccount.SetState([]byte(nameKey), []byte(genesis.Token.Name))
	st.StateAccount.SetState([]byte(symbolKey), []byte(genesis.Token.Symbol))
	st.StateAccount.SetState([]byte(decimalsKey), []byte{genesis.Token.Decimals})

	if !ethcommon.IsHexAddress(genesis.Admin) {
		return errors.New("invalid genesis admin address")
	}
	admin := ethcommon.HexToAddress(genesis.Admin)
	if err := st.admin.Put(admin); err != nil {
		return err
	}

	totalSupply, ok := new(big.Int).SetString(genesis.Token.TotalSupply, 10)
	if !ok {
		return errors.Errorf("invalid genesis token total supply: %s", genesis.Token.TotalSupply)
	}
	if err := st.mint(admin, totalSupply); err != nil {
		return err
	}

	balance, ok := new(big.Int).SetString(genesis.Balance, 10)
	if !ok {
		return errors.Errorf("invalid genesis balance: %s", genesis.Balance)
	}
	var transferErr error
	lo.ForEach(genesis.Accounts, func(account string, _ int) {
		if transferErr != nil {
			return
		}
		transferErr = st.transfer(admin, ethcommon.HexToAddress(account), balance)
	})
	return transferErr
}

func (st *StableToken) Name() string {
	ok, name := st.StateAccount.GetState([]byte(nameKey))
	if !ok {
		return ""
	}
	return string(name)
}

func (st *StableToken) Symbol() string {
	ok, symbol := st.StateAccount.GetState([]byte(symbolKey))
	if !ok {
		return ""
	}
	return string(symbol)
}

func (st *StableToken) Decimals() uint8 {
	ok, decimals := st.StateAccount.GetState([]byte(decimalsKey))
	if !ok {
		return 0
	}
	return decimals[0]
}

func (st *StableToken) TotalSupply() *big.Int {
	totalSupply, err := st.totalSupply.GetWithDefault(big.NewInt(0))
	if err != nil {
		return big.NewInt(0)
	}
	return totalSupply
}

func (st *StableToken) BalanceOf(account ethcommon.Address) *big.Int {
	exist, balance, err := st.balances.Get(account)
	if err != nil || !exist {
		return big.NewInt(0)
	}
	return balance
}

func (st *StableToken) Allowance(owner, spender ethcommon.Address) *big.Int {
	exist, allowance, err := st.allowances.Get(allowancePair{Owner: owner, Spender: spender})
	if err != nil || !exist {
		return big.NewInt(0)
	}
	return allowance
}

func (st *StableToken) Transfer(recipient ethcommon.Address, value *big.Int) error {
	if err := checkValue(value); err != nil {
		return err
	}
	if err := st.transfer(st.Ctx.From, recipient, value); err != nil {
		return err
	}
	st.EmitEvent(&EventTransfer{From: st.Ctx.From, To: recipient, Value: value}, transferEvent)
	return nil
}

func (st *StableToken) Approve(spender ethcommon.Address, value *big.Int) error {
	if err := checkValue(value); err != nil {
		return err
	}
	if err := st.approve(st.Ctx.From, spender, value); err != nil {
		return err
	}
	st.EmitEvent(&EventApproval{Owner: st.Ctx.From, Spender: spender, Value: value}, approvalEvent)
	return nil
}

func (st *StableToken) TransferFrom(sender, recipient ethcommon.Address, value *big.Int) error {
	if err := checkValue(value); err != nil {
		return err
	}

	allowance := st.Allowance(sender, st.Ctx.From)
	if allowance.Cmp(value) < 0 {
		return ErrInsufficientAllowance
	}

	if err := st.transfer(sender, recipient, value); err != nil {
		return err
	}
	if err := st.approve(sender, st.Ctx.From, new(big.Int).Sub(allowance, value)); err != nil {
		return err
	}
	st.EmitEvent(&EventTransfer{From: sender, To: recipient, Value: value}, transferEvent)
	return nil
}

// Mint creates new supply, admin only.
func (st *StableToken) Mint(recipient ethcommon.Address, value *big.Int) error {
	admin, err := st.admin.MustGet()
	if err != nil {
		return err
	}
	if st.Ctx.From != admin {
		return ErrNotAdmin
	}
	if err := checkValue(value); err != nil {
		return err
	}
	if err := st.mint(recipient, value); err != nil {
		return err
	}
	st.EmitEvent(&EventTransfer{From: ethcommon.Address{}, To: recipient, Value: value}, transferEvent)
	return nil
}

func (st *StableToken) transfer(sender, recipient ethcommon.Address, value *big.Int) error {
	senderBalance := st.BalanceOf(sender)
	if senderBalance.Cmp(value) < 0 {
		return ErrInsufficientBalance
	}

	if err := st.balances.Put(sender, new(big.Int).Sub(senderBalance, value)); err != nil {
		return err
	}
	recipientBalance := st.BalanceOf(recipient)
	return st.balances.Put(recipient, new(big.Int).Add(recipientBalance, value))
}

func (st *StableToken) approve(owner, spender ethcommon.Address, value *big.Int) error {
	return st.allowances.Put(allowancePair{Owner: owner, Spender: spender}, value)
}

func (st *StableToken) mint(recipient ethcommon.Address, value *big.Int) error {
	totalSupply := st.TotalSupply()
	if err := st.totalSupply.Put(new(big.Int).Add(totalSupply, value)); err != nil {
		return err
	}
	balance := st.BalanceOf(recipient)
	return st.balances.Put(recipient, new(big.Int).Add(balance, value))
}

func checkValue(value *big.Int) error {
	if value == nil || value.Sign() < 0 {
		return ErrValue
	}
	return nil
}
