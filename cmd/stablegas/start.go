package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/stablegas/stablegas/internal/executor/system"
	"github.com/stablegas/stablegas/internal/executor/system/common"
	"github.com/stablegas/stablegas/internal/ledger"
	"github.com/stablegas/stablegas/pkg/loggers"
	"github.com/stablegas/stablegas/pkg/repo"
)

var startCMD = &cli.Command{
	Name:   "start",
	Usage:  "Start a long-running daemon process",
	Action: start,
}

func start(ctx *cli.Context) error {
	p, err := getRootPath(ctx)
	if err != nil {
		return err
	}
	r, err := repo.Load(p)
	if err != nil {
		return err
	}
	if err := loggers.Initialize(r, true); err != nil {
		return err
	}
	logger := loggers.Logger(loggers.App)

	stateLedger := ledger.NewMemory()
	if err := system.GenesisInit(r.GenesisConfig, stateLedger); err != nil {
		return err
	}
	logger.Infof("genesis seeded: chain %d, token %s, sponsor %s, factory %s",
		r.GenesisConfig.ChainID,
		ethcommon.HexToAddress(common.TokenManagerContractAddr),
		ethcommon.HexToAddress(common.FeeSponsorContractAddr),
		ethcommon.HexToAddress(common.AccountFactoryContractAddr))

	if r.Config.Monitor.Enable {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", r.Config.Monitor.Port)
			logger.Infof("monitor listening on %s", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Errorf("monitor server stopped: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("received signal %s, exiting", sig)
	return nil
}
