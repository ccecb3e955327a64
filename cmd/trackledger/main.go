package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "trackledger"
	version = "v1.2.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Tamper-evident trading ledger service",
		Version: version,
		Long: `trackledger records every state change of a live trading robot in an
append-only, hash-chained event log, so a third party can cryptographically
verify that a published track record was never edited after the fact.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "trackledger.yaml", "path to configuration file")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAppendCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newLadderCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}
