package main

import (
	"fmt"
	"math/big"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/stablegas/stablegas/internal/executor/system/saccount"
)

var feeArgs = struct {
	Cost   string
	Rate   string
	Markup uint64
}{}

var feeCMD = &cli.Command{
	Name:  "fee",
	Usage: "The fee conversion commands",
	Subcommands: []*cli.Command{
		{
			Name:   "calculate",
			Usage:  "Convert a native cost to settlement-token units",
			Action: feeCalculate,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:        "cost",
					Usage:       "native cost in wei",
					Destination: &feeArgs.Cost,
					Required:    true,
				},
				&cli.StringFlag{
					Name:        "rate",
					Usage:       "exchange rate scaled by 10^18",
					Destination: &feeArgs.Rate,
					Required:    true,
				},
				&cli.Uint64Flag{
					Name:        "markup",
					Usage:       "markup in basis points",
					Destination: &feeArgs.Markup,
					Required:    false,
				},
			},
		},
	},
}

func feeCalculate(ctx *cli.Context) error {
	cost, ok := new(big.Int).SetString(feeArgs.Cost, 10)
	if !ok || cost.Sign() < 0 {
		return errors.Errorf("invalid cost: %s", feeArgs.Cost)
	}
	rate, ok := new(big.Int).SetString(feeArgs.Rate, 10)
	if !ok || rate.Sign() <= 0 {
		return errors.Errorf("invalid rate: %s", feeArgs.Rate)
	}
	if feeArgs.Markup > saccount.MaxMarkupBasisPoints {
		return errors.Errorf("markup %d exceeds %d basis points", feeArgs.Markup, saccount.MaxMarkupBasisPoints)
	}

	fmt.Println(saccount.ConvertCostWithMarkup(cost, rate, feeArgs.Markup))
	return nil
}
