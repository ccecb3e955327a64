package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/trackledger/trackledger/internal/ledger"
)

// appendFile mirrors the HTTP ingestion body so operators can replay a
// producer export from disk.
type appendFile struct {
	Timestamp int64 `json:"timestamp"`
	Events    []struct {
		Type    ledger.EventType `json:"type"`
		Payload json.RawMessage  `json:"payload"`
	} `json:"events"`
}

func newAppendCmd() *cobra.Command {
	var (
		chainID string
		file    string
	)

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append events to a chain from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			var req appendFile
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("unmarshal %s: %w", file, err)
			}
			if req.Timestamp == 0 {
				req.Timestamp = time.Now().Unix()
			}
			payloads := make([]ledger.Payload, 0, len(req.Events))
			for _, e := range req.Events {
				p, err := ledger.DecodePayload(e.Type, e.Payload)
				if err != nil {
					return err
				}
				payloads = append(payloads, p)
			}

			signer := ledger.NewSigner([]byte(cfg.HMACKey))
			policy := ledger.CheckpointPolicy{
				Interval: cfg.Checkpoint.Interval,
				OnTypes:  map[ledger.EventType]bool{},
			}
			if cfg.Checkpoint.OnVerificationPassed {
				policy.OnTypes[ledger.EventVerificationPassed] = true
			}
			appender := ledger.NewAppender(store, policy, signer)

			results, err := appender.AppendWithRetry(cmd.Context(), chainID, req.Timestamp, payloads...)
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}
	cmd.Flags().StringVar(&chainID, "chain", "", "chain identifier")
	cmd.Flags().StringVar(&file, "file", "", "JSON file with events to append")
	cmd.MarkFlagRequired("chain")
	cmd.MarkFlagRequired("file")
	return cmd
}
