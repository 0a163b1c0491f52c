package saccount

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/stablegas/stablegas/internal/executor/system/common"
	"github.com/stablegas/stablegas/internal/executor/system/token"
	"github.com/stablegas/stablegas/pkg/repo"
)

const (
	sponsorOwnerKey          = "owner"
	sponsorRelayEndpointKey  = "relay_endpoint"
	sponsorTokenKey          = "settlement_token"
	sponsorExchangeRateKey   = "exchange_rate"
	sponsorMarkupKey         = "markup_basis_points"
	sponsorMinimumBalanceKey = "minimum_balance"
	sponsorHeldBalanceKey    = "held_balance"
)

var (
	// context is the opaque hand-off between Validate and Settle
	contextArg = abi.Arguments{
		{Name: "sender", Type: common.AddressType},
		{Name: "requiredAmount", Type: common.BigIntType},
		{Name: "maxCost", Type: common.BigIntType},
	}

	feeChargedEvent = abi.NewEvent("FeeCharged", "FeeCharged", false, abi.Arguments{
		{Name: "sender", Type: common.AddressType, Indexed: true},
		{Name: "amount", Type: common.BigIntType},
	})

	sponsorRateUpdatedEvent = abi.NewEvent("SponsorExchangeRateUpdated", "SponsorExchangeRateUpdated", false, abi.Arguments{
		{Name: "oldRate", Type: common.BigIntType},
		{Name: "newRate", Type: common.BigIntType},
	})
)

type EventFeeCharged struct {
	Sender ethcommon.Address
	Amount *big.Int
}

type EventSponsorExchangeRateUpdated struct {
	OldRate *big.Int
	NewRate *big.Int
}

var FeeSponsorBuildConfig = &common.SystemContractBuildConfig[*FeeSponsor]{
	Name:    "saccount_fee_sponsor",
	Address: common.FeeSponsorContractAddr,
	Constructor: func(systemContractBase common.SystemContractBase) *FeeSponsor {
		return &FeeSponsor{
			SystemContractBase: systemContractBase,
		}
	},
}

// FeeSponsor fronts native-currency cost for relayed operations and is
// reimbursed in the settlement token through a two-phase
// validate/settle exchange.
type FeeSponsor struct {
	common.SystemContractBase

	owner           *common.VMSlot[ethcommon.Address]
	relayEndpoint   *common.VMSlot[ethcommon.Address]
	settlementToken *common.VMSlot[ethcommon.Address]
	exchangeRate    *common.VMSlot[*big.Int]
	markup          *common.VMSlot[uint64]
	minimumBalance  *common.VMSlot[*big.Int]
	heldBalance     *common.VMSlot[*big.Int]
}

func (fs *FeeSponsor) SetContext(ctx *common.VMContext) {
	fs.SystemContractBase.SetContext(ctx)

	fs.owner = common.NewVMSlot[ethcommon.Address](fs.StateAccount, sponsorOwnerKey)
	fs.relayEndpoint = common.NewVMSlot[ethcommon.Address](fs.StateAccount, sponsorRelayEndpointKey)
	fs.settlementToken = common.NewVMSlot[ethcommon.Address](fs.StateAccount, sponsorTokenKey)
	fs.exchangeRate = common.NewVMSlot[*big.Int](fs.StateAccount, sponsorExchangeRateKey)
	fs.markup = common.NewVMSlot[uint64](fs.StateAccount, sponsorMarkupKey)
	fs.minimumBalance = common.NewVMSlot[*big.Int](fs.StateAccount, sponsorMinimumBalanceKey)
	fs.heldBalance = common.NewVMSlot[*big.Int](fs.StateAccount, sponsorHeldBalanceKey)
}

func (fs *FeeSponsor) GenesisInit(genesis *repo.GenesisConfig) error {
	if !ethcommon.IsHexAddress(genesis.Admin) {
		return errors.New("invalid genesis admin address")
	}
	if !ethcommon.IsHexAddress(genesis.RelayEndpoint) {
		return errors.New("invalid genesis relay endpoint address")
	}
	if err := fs.owner.Put(ethcommon.HexToAddress(genesis.Admin)); err != nil {
		return err
	}
	if err := fs.relayEndpoint.Put(ethcommon.HexToAddress(genesis.RelayEndpoint)); err != nil {
		return err
	}
	if err := fs.settlementToken.Put(ethcommon.HexToAddress(common.TokenManagerContractAddr)); err != nil {
		return err
	}

	rate, ok := new(big.Int).SetString(genesis.Sponsor.ExchangeRate, 10)
	if !ok || rate.Sign() <= 0 {
		return errors.Errorf("invalid genesis exchange rate: %s", genesis.Sponsor.ExchangeRate)
	}
	if err := fs.exchangeRate.Put(rate); err != nil {
		return err
	}

	if genesis.Sponsor.MarkupBasisPoints > MaxMarkupBasisPoints {
		return errors.Errorf("genesis markup %d exceeds %d basis points", genesis.Sponsor.MarkupBasisPoints, MaxMarkupBasisPoints)
	}
	if err := fs.markup.Put(genesis.Sponsor.MarkupBasisPoints); err != nil {
		return err
	}

	minimumBalance, ok := new(big.Int).SetString(genesis.Sponsor.MinimumBalance, 10)
	if !ok {
		return errors.Errorf("invalid genesis minimum balance: %s", genesis.Sponsor.MinimumBalance)
	}
	if err := fs.minimumBalance.Put(minimumBalance); err != nil {
		return err
	}
	return fs.heldBalance.Put(big.NewInt(0))
}

// Validate checks that sender can cover the worst-case fee for maxCost
// and returns the opaque context Settle consumes later. No funds move.
func (fs *FeeSponsor) Validate(sender ethcommon.Address, maxCost *big.Int) ([]byte, error) {
	if err := fs.checkRelay(); err != nil {
		return nil, err
	}
	if maxCost == nil || maxCost.Sign() < 0 {
		return nil, errors.New("fee sponsor: invalid max cost")
	}

	requiredAmount, err := fs.CalculateAmount(maxCost)
	if err != nil {
		return nil, err
	}
	minimumBalance, err := fs.minimumBalance.MustGet()
	if err != nil {
		return nil, err
	}

	stableToken, err := fs.buildToken()
	if err != nil {
		return nil, err
	}
	balance := stableToken.BalanceOf(sender)
	if balance.Cmp(requiredAmount) < 0 {
		return nil, common.NewRevertStringError("fee sponsor: sender balance below required amount")
	}
	if balance.Cmp(minimumBalance) < 0 {
		return nil, common.NewRevertStringError("fee sponsor: sender balance below sponsor minimum")
	}
	allowance := stableToken.Allowance(sender, fs.EthAddress)
	if allowance.Cmp(requiredAmount) < 0 {
		return nil, common.NewRevertStringError("fee sponsor: sender allowance below required amount")
	}

	fs.Logger.Infof("fee sponsor validated sender %s, maxCost %s, requiredAmount %s", sender, maxCost, requiredAmount)
	return encodeContext(sender, requiredAmount, maxCost)
}

// Settle charges the sender for the settled operation. A reverted
// operation is never charged; otherwise the charge is capped by the
// amount computed at validation time. Failure of the pull is fatal.
func (fs *FeeSponsor) Settle(context []byte, actualCost *big.Int, operationReverted bool) error {
	if err := fs.checkRelay(); err != nil {
		return err
	}

	sender, requiredAmount, _, err := decodeContext(context)
	if err != nil {
		return errors.Wrap(err, "fee sponsor: decode context")
	}

	if operationReverted {
		// sponsor absorbs its own pre-funded cost
		fs.Logger.Infof("fee sponsor settle skipped, operation reverted, sender %s", sender)
		return nil
	}
	if actualCost == nil || actualCost.Sign() < 0 {
		return errors.New("fee sponsor: invalid actual cost")
	}

	actualAmount, err := fs.CalculateAmount(actualCost)
	if err != nil {
		return err
	}
	// never charge more than was validated
	if actualAmount.Cmp(requiredAmount) > 0 {
		actualAmount = requiredAmount
	}
	if actualAmount.Sign() == 0 {
		fs.Logger.Infof("fee sponsor settle charged nothing, sender %s", sender)
		return nil
	}

	stableToken, err := fs.buildToken()
	if err != nil {
		return err
	}
	if err := stableToken.TransferFrom(sender, fs.EthAddress, actualAmount); err != nil {
		return errors.Wrap(err, "fee sponsor: settlement pull failed")
	}

	heldBalance, err := fs.heldBalance.GetWithDefault(big.NewInt(0))
	if err != nil {
		return err
	}
	if err := fs.heldBalance.Put(new(big.Int).Add(heldBalance, actualAmount)); err != nil {
		return err
	}

	fs.EmitEvent(&EventFeeCharged{Sender: sender, Amount: actualAmount}, feeChargedEvent)
	return nil
}

// CalculateAmount converts a native cost to settlement-token units with
// the sponsor's rate and markup applied. Public so callers can pre-check
// before submitting.
func (fs *FeeSponsor) CalculateAmount(cost *big.Int) (*big.Int, error) {
	if cost == nil || cost.Sign() < 0 {
		return nil, errors.New("fee sponsor: invalid cost")
	}
	rate, err := fs.exchangeRate.MustGet()
	if err != nil {
		return nil, err
	}
	markup, err := fs.markup.MustGet()
	if err != nil {
		return nil, err
	}
	return ConvertCostWithMarkup(cost, rate, markup), nil
}

func (fs *FeeSponsor) SetExchangeRate(newRate *big.Int) error {
	if err := fs.checkOwner(); err != nil {
		return err
	}
	if newRate == nil || newRate.Sign() <= 0 {
		return errors.New("exchange rate must be positive")
	}

	oldRate, err := fs.exchangeRate.MustGet()
	if err != nil {
		return err
	}
	if err := fs.exchangeRate.Put(newRate); err != nil {
		return err
	}
	fs.EmitEvent(&EventSponsorExchangeRateUpdated{OldRate: oldRate, NewRate: newRate}, sponsorRateUpdatedEvent)
	return nil
}

func (fs *FeeSponsor) SetMarkup(markupBasisPoints uint64) error {
	if err := fs.checkOwner(); err != nil {
		return err
	}
	if markupBasisPoints > MaxMarkupBasisPoints {
		return errors.Errorf("markup %d exceeds %d basis points", markupBasisPoints, MaxMarkupBasisPoints)
	}
	return fs.markup.Put(markupBasisPoints)
}

func (fs *FeeSponsor) SetMinimumBalance(minimumBalance *big.Int) error {
	if err := fs.checkOwner(); err != nil {
		return err
	}
	if minimumBalance == nil || minimumBalance.Sign() < 0 {
		return errors.New("minimum balance must not be negative")
	}
	return fs.minimumBalance.Put(minimumBalance)
}

// Withdraw moves collected fees out of the sponsor's held balance.
func (fs *FeeSponsor) Withdraw(recipient ethcommon.Address, amount *big.Int) error {
	if err := fs.checkOwner(); err != nil {
		return err
	}
	if recipient == (ethcommon.Address{}) {
		return errors.New("withdraw recipient is the null address")
	}
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("withdraw amount must be positive")
	}

	heldBalance, err := fs.heldBalance.GetWithDefault(big.NewInt(0))
	if err != nil {
		return err
	}
	if heldBalance.Cmp(amount) < 0 {
		return common.NewRevertStringError("fee sponsor: withdraw exceeds held balance")
	}

	stableToken, err := fs.buildToken()
	if err != nil {
		return err
	}
	if err := stableToken.Transfer(recipient, amount); err != nil {
		return err
	}
	return fs.heldBalance.Put(new(big.Int).Sub(heldBalance, amount))
}

func (fs *FeeSponsor) GetRelayEndpoint() (ethcommon.Address, error) {
	return fs.relayEndpoint.MustGet()
}

func (fs *FeeSponsor) GetMarkup() (uint64, error) {
	return fs.markup.MustGet()
}

func (fs *FeeSponsor) GetExchangeRate() (*big.Int, error) {
	return fs.exchangeRate.MustGet()
}

func (fs *FeeSponsor) GetMinimumBalance() (*big.Int, error) {
	return fs.minimumBalance.MustGet()
}

func (fs *FeeSponsor) GetHeldBalance() (*big.Int, error) {
	return fs.heldBalance.GetWithDefault(big.NewInt(0))
}

func (fs *FeeSponsor) buildToken() (*token.StableToken, error) {
	tokenAddr, err := fs.settlementToken.MustGet()
	if err != nil {
		return nil, err
	}
	return token.StableTokenBuildConfig.BuildWithAddress(fs.CrossCallSystemContractContext(), tokenAddr), nil
}

func (fs *FeeSponsor) checkOwner() error {
	owner, err := fs.owner.MustGet()
	if err != nil {
		return err
	}
	if fs.Ctx.From != owner {
		return errors.New("caller is not fee sponsor owner")
	}
	return nil
}

func (fs *FeeSponsor) checkRelay() error {
	relay, err := fs.relayEndpoint.MustGet()
	if err != nil {
		return err
	}
	if fs.Ctx.From != relay {
		return errors.New("caller is not the trusted relay endpoint")
	}
	return nil
}

func encodeContext(sender ethcommon.Address, requiredAmount, maxCost *big.Int) ([]byte, error) {
	return contextArg.Pack(sender, requiredAmount, maxCost)
}

func decodeContext(context []byte) (sender ethcommon.Address, requiredAmount, maxCost *big.Int, err error) {
	args, err := contextArg.Unpack(context)
	if err != nil {
		return ethcommon.Address{}, nil, nil, err
	}

	return args[0].(ethcommon.Address), args[1].(*big.Int), args[2].(*big.Int), nil
}
