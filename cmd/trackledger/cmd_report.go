package main

import (
	"github.com/spf13/cobra"

	"github.com/trackledger/trackledger/internal/ledger"
	"github.com/trackledger/trackledger/internal/report"
)

func newReportCmd() *cobra.Command {
	var (
		chainID string
		from    int64
		to      int64
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build the public verification export for a chain range",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			signer := ledger.NewSigner([]byte(cfg.HMACKey))
			verifier := ledger.NewVerifier(store, signer)
			builder := report.NewBuilder(store, verifier, signer, store)

			rep, err := builder.Build(cmd.Context(), chainID, from, to)
			if err != nil {
				return err
			}
			return printJSON(rep)
		},
	}
	cmd.Flags().StringVar(&chainID, "chain", "", "chain identifier")
	cmd.Flags().Int64Var(&from, "from", 1, "first sequence to include")
	cmd.Flags().Int64Var(&to, "to", 0, "last sequence to include (0 = tail)")
	cmd.MarkFlagRequired("chain")
	return cmd
}
