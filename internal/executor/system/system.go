package system

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/stablegas/stablegas/internal/executor/system/common"
	"github.com/stablegas/stablegas/internal/executor/system/saccount"
	"github.com/stablegas/stablegas/internal/executor/system/token"
	"github.com/stablegas/stablegas/internal/ledger"
	"github.com/stablegas/stablegas/pkg/repo"
)

// BuildContracts constructs every fixed-address system contract against
// the given context.
func BuildContracts(ctx *common.VMContext) []common.SystemContract {
	return []common.SystemContract{
		token.StableTokenBuildConfig.Build(ctx),
		saccount.FeeSponsorBuildConfig.Build(ctx),
		saccount.AccountFactoryBuildConfig.Build(ctx),
	}
}

// GenesisInit seeds every system contract's state from the genesis
// configuration. Runs once, before any block executes.
func GenesisInit(genesis *repo.GenesisConfig, stateLedger ledger.StateLedger) error {
	logs := make([]ledger.EvmLog, 0)
	ctx := &common.VMContext{
		StateLedger: stateLedger,
		BlockNumber: 0,
		Timestamp:   0,
		From:        ethcommon.Address{},
		CurrentLogs: &logs,
	}
	for _, contract := range BuildContracts(ctx) {
		if err := contract.GenesisInit(genesis); err != nil {
			return err
		}
	}
	for i := range logs {
		stateLedger.AddLog(&logs[i])
	}
	stateLedger.Finalise()
	return nil
}

var (
	systemContractStartAddr = new(big.Int).SetBytes(ethcommon.HexToAddress(common.SystemContractStartAddr).Bytes())
	systemContractEndAddr   = new(big.Int).SetBytes(ethcommon.HexToAddress(common.SystemContractEndAddr).Bytes())
)

// IsSystemContractAddr reports whether addr lies in the reserved
// system contract address range.
func IsSystemContractAddr(addr ethcommon.Address) bool {
	addrNum := new(big.Int).SetBytes(addr.Bytes())
	return addrNum.Cmp(systemContractStartAddr) >= 0 && addrNum.Cmp(systemContractEndAddr) <= 0
}
