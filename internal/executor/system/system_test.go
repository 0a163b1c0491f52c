package system

import (
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/stablegas/stablegas/internal/executor/system/common"
	"github.com/stablegas/stablegas/internal/executor/system/saccount"
	"github.com/stablegas/stablegas/internal/executor/system/token"
	"github.com/stablegas/stablegas/internal/ledger"
	"github.com/stablegas/stablegas/pkg/repo"
)

func TestGenesisInit(t *testing.T) {
	rep := repo.MockRepo(t)
	stateLedger := ledger.NewMemory()

	err := GenesisInit(rep.GenesisConfig, stateLedger)
	assert.Nil(t, err)

	logs := make([]ledger.EvmLog, 0)
	ctx := &common.VMContext{
		StateLedger: stateLedger,
		BlockNumber: 1,
		From:        ethcommon.Address{},
		CurrentLogs: &logs,
	}

	stableToken := token.StableTokenBuildConfig.Build(ctx)
	assert.Equal(t, "Stable USD", stableToken.Name())
	assert.Equal(t, rep.GenesisConfig.Balance, stableToken.BalanceOf(ethcommon.HexToAddress(rep.GenesisConfig.Accounts[0])).String())

	sponsor := saccount.FeeSponsorBuildConfig.Build(ctx)
	relay, err := sponsor.GetRelayEndpoint()
	assert.Nil(t, err)
	assert.Equal(t, ethcommon.HexToAddress(rep.GenesisConfig.RelayEndpoint), relay)

	factory := saccount.AccountFactoryBuildConfig.Build(ctx)
	template, err := factory.GetTemplate()
	assert.Nil(t, err)
	assert.Equal(t, ethcommon.HexToAddress(common.AccountFactoryContractAddr), template)
}

func TestIsSystemContractAddr(t *testing.T) {
	assert.True(t, IsSystemContractAddr(ethcommon.HexToAddress(common.TokenManagerContractAddr)))
	assert.True(t, IsSystemContractAddr(ethcommon.HexToAddress(common.FeeSponsorContractAddr)))
	assert.True(t, IsSystemContractAddr(ethcommon.HexToAddress(common.AccountFactoryContractAddr)))
	assert.False(t, IsSystemContractAddr(ethcommon.Address{}))
	assert.False(t, IsSystemContractAddr(ethcommon.HexToAddress("0xc7F999b83Af6DF9e67d0a37Ee7e900bF38b3D013")))
}
