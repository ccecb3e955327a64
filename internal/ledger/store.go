package ledger

import (
	"context"
	"errors"
)

var (
	// ErrConflict signals a lost race on the chain tail. The append is safe
	// to retry with the same logical payloads.
	ErrConflict = errors.New("ledger: append conflict")

	// ErrChainNotFound signals a read against a chain with no events.
	ErrChainNotFound = errors.New("ledger: chain not found")

	// ErrValidation signals a malformed payload. Nothing was written.
	ErrValidation = errors.New("ledger: invalid payload")
)

// Tail is the current end of a chain. An empty chain has Sequence 0 and
// Hash GenesisHash.
type Tail struct {
	Sequence int64
	Hash     string
}

// AppendSet is one atomic unit of chain writes: the new events, the derived
// state they produce, and any checkpoints the policy triggered. ExpectedTail
// is the sequence the appender observed; the store must refuse the whole set
// with ErrConflict if the chain has moved past it.
type AppendSet struct {
	ChainID      string
	ExpectedTail int64
	Events       []Event
	State        DerivedState
	Checkpoints  []Checkpoint
}

// Store is the narrow persistence contract the ledger needs. Implementations
// must make AppendAtomic all-or-nothing and must serialize concurrent appends
// to the same chain; appends to different chains proceed independently.
type Store interface {
	ReadTail(ctx context.Context, chainID string) (Tail, error)
	ReadState(ctx context.Context, chainID string) (DerivedState, error)
	AppendAtomic(ctx context.Context, set AppendSet) error
	ReadRange(ctx context.Context, chainID string, from, to int64) ([]Event, error)
	ReadCheckpoints(ctx context.Context, chainID string, from, to int64) ([]Checkpoint, error)
	NearestCheckpoint(ctx context.Context, chainID string, maxSequence int64) (*Checkpoint, error)
}
