package main

import (
	"github.com/urfave/cli/v3"
)

// version is set via ldflags at build time.
// e.g. -ldflags "-X main.version=1.2.3"
var version = "dev"

// newApp creates the CLI application with all flags and commands.
func newApp() *cli.Command {
	return &cli.Command{
		Name:        "analyst",
		Usage:       "AI stock analysis with live market-data tools",
		Version:     version,
		UsageText:   "analyst command [command options] [arguments...]",
		Description: "Analyst asks a tool-calling model for an investment report on a stock and keeps a local trade ledger",
		Commands: []*cli.Command{
			{
				Name:      "analyze",
				Usage:     "Produce an investment analysis for a ticker",
				ArgsUsage: "<ticker>",
				Flags: []cli.Flag{
					&cli.FloatFlag{
						Name:    "budget",
						Aliases: []string{"b"},
						Usage:   "Capital available for this trade",
						Value:   1000,
					},
					&cli.BoolFlag{
						Name:  "skip-limit",
						Usage: "Do not count this run against the daily analysis limit",
					},
				},
				Action: cmdAnalyze,
			},
			{
				Name:      "trade",
				Usage:     "Record a buy or sell in the ledger",
				ArgsUsage: "<buy|sell> <ticker> <quantity> <price>",
				Action:    cmdTrade,
			},
			{
				Name:   "portfolio",
				Usage:  "Show open positions",
				Action: cmdPortfolio,
			},
			{
				Name:   "tools",
				Usage:  "List the tools offered to the model",
				Action: cmdTools,
			},
		},
	}
}
