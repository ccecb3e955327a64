package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trackledger/trackledger/internal/config"
	"github.com/trackledger/trackledger/internal/ladder"
)

func newLadderCmd() *cobra.Command {
	var factsFile string

	cmd := &cobra.Command{
		Use:   "ladder",
		Short: "Classify verified facts into a proof ladder level",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(factsFile)
			if err != nil {
				return fmt.Errorf("read %s: %w", factsFile, err)
			}
			var facts ladder.Facts
			if err := yaml.Unmarshal(data, &facts); err != nil {
				return fmt.Errorf("unmarshal %s: %w", factsFile, err)
			}

			level := ladder.Classify(facts, cfg.Ladder)
			return printJSON(map[string]interface{}{
				"level": int(level),
				"name":  level.String(),
			})
		},
	}
	cmd.Flags().StringVar(&factsFile, "facts", "", "YAML file with verified facts")
	cmd.MarkFlagRequired("facts")
	return cmd
}
