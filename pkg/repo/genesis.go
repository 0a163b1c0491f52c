package repo

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

type GenesisConfig struct {
	ChainID uint64 `mapstructure:"chainid" toml:"chainid"`

	// Admin controls the fee sponsor and the account factory.
	Admin string `mapstructure:"admin" toml:"admin"`

	// RelayEndpoint is the trusted entity allowed to drive the
	// validate -> execute -> settle flow.
	RelayEndpoint string `mapstructure:"relay_endpoint" toml:"relay_endpoint"`

	// Accounts funded with Balance settlement-token units at genesis.
	Accounts []string `mapstructure:"accounts" toml:"accounts"`
	Balance  string   `mapstructure:"balance" toml:"balance"`

	Token   TokenConfig   `mapstructure:"token" toml:"token"`
	Sponsor SponsorConfig `mapstructure:"sponsor" toml:"sponsor"`
}

type TokenConfig struct {
	Name        string `mapstructure:"name" toml:"name"`
	Symbol      string `mapstructure:"symbol" toml:"symbol"`
	Decimals    uint8  `mapstructure:"decimals" toml:"decimals"`
	TotalSupply string `mapstructure:"total_supply" toml:"total_supply"`
}

type SponsorConfig struct {
	// ExchangeRate is settlement-token units per native-cost unit, scaled by 10^18.
	ExchangeRate      string `mapstructure:"exchange_rate" toml:"exchange_rate"`
	MarkupBasisPoints uint64 `mapstructure:"markup_basis_points" toml:"markup_basis_points"`
	MinimumBalance    string `mapstructure:"minimum_balance" toml:"minimum_balance"`
	SponsorPayee      string `mapstructure:"sponsor_payee" toml:"sponsor_payee"`
}

func (g *GenesisConfig) Validate() error {
	if !ethcommon.IsHexAddress(g.Admin) {
		return errors.Errorf("invalid genesis admin address: %s", g.Admin)
	}
	if !ethcommon.IsHexAddress(g.RelayEndpoint) {
		return errors.Errorf("invalid genesis relay endpoint address: %s", g.RelayEndpoint)
	}
	if !ethcommon.IsHexAddress(g.Sponsor.SponsorPayee) {
		return errors.Errorf("invalid genesis sponsor payee address: %s", g.Sponsor.SponsorPayee)
	}
	for _, account := range g.Accounts {
		if !ethcommon.IsHexAddress(account) {
			return errors.Errorf("invalid genesis account address: %s", account)
		}
	}
	if _, ok := new(big.Int).SetString(g.Balance, 10); !ok {
		return errors.Errorf("invalid genesis balance: %s", g.Balance)
	}
	if _, ok := new(big.Int).SetString(g.Token.TotalSupply, 10); !ok {
		return errors.Errorf("invalid genesis token total supply: %s", g.Token.TotalSupply)
	}
	rate, ok := new(big.Int).SetString(g.Sponsor.ExchangeRate, 10)
	if !ok || rate.Sign() <= 0 {
		return errors.Errorf("invalid genesis exchange rate: %s", g.Sponsor.ExchangeRate)
	}
	if _, ok := new(big.Int).SetString(g.Sponsor.MinimumBalance, 10); !ok {
		return errors.Errorf("invalid genesis minimum balance: %s", g.Sponsor.MinimumBalance)
	}
	return nil
}

func defaultGenesisConfig() *GenesisConfig {
	return &GenesisConfig{
		ChainID:       1356,
		Admin:         "0xc7F999b83Af6DF9e67d0a37Ee7e900bF38b3D013",
		RelayEndpoint: "0x79a1215469FaB6f9c63c1816b45183AD3624bE34",
		Accounts: []string{
			"0x97c8B516D19edBf575D72a172Af7F418BE498C37",
			"0xc0Ff2e0b3189132D815b8eb325bE17285AC898f8",
		},
		Balance: "1000000000000", // 1,000,000 token units at 6 decimals
		Token: TokenConfig{
			Name:        "Stable USD",
			Symbol:      "SUSD",
			Decimals:    6,
			TotalSupply: "1000000000000000", // 1,000,000,000 token units
		},
		Sponsor: SponsorConfig{
			ExchangeRate:      "2000000000000000000000", // 2000 * 10^18
			MarkupBasisPoints: 1000,
			MinimumBalance:    "1000000", // 1 token unit
			SponsorPayee:      "0x79a1215469FaB6f9c63c1816b45183AD3624bE34",
		},
	}
}
