package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// AppendResult reports the position and hash assigned to one appended event,
// and whether a checkpoint was written at that position.
type AppendResult struct {
	Sequence   int64  `json:"sequence"`
	Hash       string `json:"event_hash"`
	Checkpoint bool   `json:"checkpoint,omitempty"`
}

// Appender assigns sequence numbers and hash links and persists events
// atomically together with derived state and checkpoints.
type Appender struct {
	store      Store
	policy     CheckpointPolicy
	signer     *Signer
	maxRetries int
	now        func() time.Time
}

func NewAppender(store Store, policy CheckpointPolicy, signer *Signer) *Appender {
	return &Appender{
		store:      store,
		policy:     policy,
		signer:     signer,
		maxRetries: 5,
		now:        time.Now,
	}
}

// WithMaxRetries overrides the conflict retry budget of AppendWithRetry.
func (a *Appender) WithMaxRetries(n int) *Appender {
	a.maxRetries = n
	return a
}

// Append writes one logical unit of events to a chain. All payloads share
// the caller-supplied event timestamp, the tail is read once, and the whole
// unit commits or fails together; a multi-event unit can never partially
// commit. On ErrConflict the caller retries with the same payloads.
func (a *Appender) Append(ctx context.Context, chainID string, ts int64, payloads ...Payload) ([]AppendResult, error) {
	if chainID == "" {
		return nil, fmt.Errorf("%w: chain id is required", ErrValidation)
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("%w: at least one payload is required", ErrValidation)
	}
	if ts <= 0 {
		return nil, fmt.Errorf("%w: timestamp must be positive", ErrValidation)
	}
	// Fail closed: no payload is written unless every payload is valid.
	for _, p := range payloads {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	tail, err := a.store.ReadTail(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("read tail for %s: %w", chainID, err)
	}

	state := NewState(chainID)
	if tail.Sequence > 0 {
		state, err = a.store.ReadState(ctx, chainID)
		if err != nil {
			return nil, fmt.Errorf("read state for %s: %w", chainID, err)
		}
		if state.LastSequence != tail.Sequence || state.LastEventHash != tail.Hash {
			return nil, fmt.Errorf("derived state out of step with chain tail for %s: state at %d, tail at %d",
				chainID, state.LastSequence, tail.Sequence)
		}
	}

	set := AppendSet{
		ChainID:      chainID,
		ExpectedTail: tail.Sequence,
		Events:       make([]Event, 0, len(payloads)),
	}
	results := make([]AppendResult, 0, len(payloads))

	prevHash := tail.Hash
	sequence := tail.Sequence
	createdAt := a.now().UTC()
	for _, p := range payloads {
		sequence++
		e := Event{
			ChainID:   chainID,
			Sequence:  sequence,
			Type:      p.Type(),
			Payload:   p,
			Timestamp: ts,
			PrevHash:  prevHash,
			CreatedAt: createdAt,
		}
		e.Hash = HashEvent(&e)
		prevHash = e.Hash

		state = Reduce(state, &e)
		checkpointed := a.policy.Should(e.Type, e.Sequence)
		if checkpointed {
			cp := Checkpoint{
				ChainID:   chainID,
				Sequence:  e.Sequence,
				State:     state,
				CreatedAt: createdAt,
			}
			cp.HMAC = a.signer.Sign(&cp)
			set.Checkpoints = append(set.Checkpoints, cp)
		}

		set.Events = append(set.Events, e)
		results = append(results, AppendResult{Sequence: e.Sequence, Hash: e.Hash, Checkpoint: checkpointed})
	}
	set.State = state

	if err := a.store.AppendAtomic(ctx, set); err != nil {
		return nil, err
	}

	log.Debug().
		Str("chain_id", chainID).
		Int64("tail", sequence).
		Int("events", len(set.Events)).
		Int("checkpoints", len(set.Checkpoints)).
		Msg("chain append committed")

	return results, nil
}

// AppendWithRetry retries Append on ErrConflict with jittered backoff. The
// retry resubmits the same logical payloads; sequence numbers and hash links
// are recomputed against the fresh tail, which is the required behavior.
func (a *Appender) AppendWithRetry(ctx context.Context, chainID string, ts int64, payloads ...Payload) ([]AppendResult, error) {
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 10 * time.Millisecond
			backoff += time.Duration(rand.Int63n(int64(5 * time.Millisecond)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			log.Warn().
				Str("chain_id", chainID).
				Int("attempt", attempt).
				Msg("retrying append after tail conflict")
		}

		results, err := a.Append(ctx, chainID, ts, payloads...)
		if err == nil {
			return results, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("append to %s exhausted %d retries: %w", chainID, a.maxRetries, lastErr)
}
