// Package report builds the public verification export for a chain range.
// Everything in it is safe to publish: hashes are truncated and no payload
// amounts beyond what the chain itself attests are included.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trackledger/trackledger/internal/corroboration"
	"github.com/trackledger/trackledger/internal/ledger"
)

// EventSummary is the per-event line of a verification report.
type EventSummary struct {
	Sequence   int64  `json:"sequence"`
	Timestamp  int64  `json:"timestamp"`
	Type       string `json:"event_type"`
	HashPrefix string `json:"hash_prefix"`
}

// CheckpointSummary reports a checkpoint position and whether its signature
// held up.
type CheckpointSummary struct {
	Sequence       int64 `json:"sequence"`
	SignatureValid bool  `json:"signature_valid"`
}

// VerificationReport is the display-ready export for one chain range.
type VerificationReport struct {
	ReportID      string                `json:"report_id"`
	ChainID       string                `json:"chain_id"`
	GeneratedAt   time.Time             `json:"generated_at"`
	FromSequence  int64                 `json:"from_sequence"`
	ToSequence    int64                 `json:"to_sequence"`
	ChainLength   int64                 `json:"chain_length"`
	Valid         bool                  `json:"valid"`
	BreakAt       int64                 `json:"break_at_sequence,omitempty"`
	Events        []EventSummary        `json:"events"`
	Checkpoints   []CheckpointSummary   `json:"checkpoints"`
	Corroboration *corroboration.Report `json:"corroboration,omitempty"`
}

// Builder assembles reports from the store, verifier, and matcher.
type Builder struct {
	store    ledger.Store
	verifier *ledger.Verifier
	signer   *ledger.Signer
	evidence corroboration.EvidenceStore
}

func NewBuilder(store ledger.Store, verifier *ledger.Verifier, signer *ledger.Signer, evidence corroboration.EvidenceStore) *Builder {
	return &Builder{store: store, verifier: verifier, signer: signer, evidence: evidence}
}

// Build verifies [from, to] and assembles the public export. Integrity
// violations are reported exactly as found; the report never reconciles.
func (b *Builder) Build(ctx context.Context, chainID string, from, to int64) (*VerificationReport, error) {
	result, err := b.verifier.Verify(ctx, chainID, from, to)
	if err != nil {
		return nil, err
	}

	events, err := b.store.ReadRange(ctx, chainID, result.From, result.To)
	if err != nil {
		return nil, fmt.Errorf("read range for report: %w", err)
	}

	rep := &VerificationReport{
		ReportID:     uuid.New().String(),
		ChainID:      chainID,
		GeneratedAt:  time.Now().UTC(),
		FromSequence: result.From,
		ToSequence:   result.To,
		ChainLength:  result.ChainLength,
		Valid:        result.Valid,
		BreakAt:      result.BreakAt,
		Events:       make([]EventSummary, 0, len(events)),
		Checkpoints:  []CheckpointSummary{},
	}
	for i := range events {
		e := &events[i]
		rep.Events = append(rep.Events, EventSummary{
			Sequence:   e.Sequence,
			Timestamp:  e.Timestamp,
			Type:       string(e.Type),
			HashPrefix: ledger.TruncateHash(e.Hash),
		})
	}

	checkpoints, err := b.store.ReadCheckpoints(ctx, chainID, result.From, result.To)
	if err != nil {
		return nil, fmt.Errorf("read checkpoints for report: %w", err)
	}
	for i := range checkpoints {
		cp := &checkpoints[i]
		rep.Checkpoints = append(rep.Checkpoints, CheckpointSummary{
			Sequence:       cp.Sequence,
			SignatureValid: b.signer.Verify(cp),
		})
	}

	if b.evidence != nil {
		evidence, err := b.evidence.ListEvidence(ctx, chainID)
		if err != nil {
			return nil, fmt.Errorf("list evidence for report: %w", err)
		}
		if len(evidence) > 0 {
			matched := corroboration.Match(corroboration.TradesFromEvents(events), evidence, corroboration.DefaultTolerances())
			rep.Corroboration = &matched
		}
	}

	return rep, nil
}
