package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/trackledger/trackledger/internal/config"
	"github.com/trackledger/trackledger/internal/ledger"
	"github.com/trackledger/trackledger/internal/persistence/postgres"
)

func newVerifyCmd() *cobra.Command {
	var (
		chainID string
		from    int64
		to      int64
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay a chain range and report the first divergence",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			verifier := ledger.NewVerifier(store, ledger.NewSigner([]byte(cfg.HMACKey)))
			result, err := verifier.Verify(cmd.Context(), chainID, from, to)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&chainID, "chain", "", "chain identifier")
	cmd.Flags().Int64Var(&from, "from", 1, "first sequence to verify")
	cmd.Flags().Int64Var(&to, "to", 0, "last sequence to verify (0 = tail)")
	cmd.MarkFlagRequired("chain")
	return cmd
}

func openStore() (*config.Config, *postgres.Store, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := sqlx.Connect("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	store := postgres.NewStore(db, cfg.Database.QueryTimeout.Std())
	return cfg, store, func() { db.Close() }, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
