// Package memstore is an in-memory Store used by tests and the CLI's
// offline modes. It enforces the same tail-conflict discipline as the
// postgres store, just with a mutex instead of a serializable transaction.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/trackledger/trackledger/internal/corroboration"
	"github.com/trackledger/trackledger/internal/ledger"
)

type Store struct {
	mu          sync.Mutex
	events      map[string][]ledger.Event
	states      map[string]ledger.DerivedState
	checkpoints map[string][]ledger.Checkpoint
	evidence    map[string][]corroboration.Evidence
	nextEvID    int64
}

var (
	_ ledger.Store                = (*Store)(nil)
	_ corroboration.EvidenceStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		events:      make(map[string][]ledger.Event),
		states:      make(map[string]ledger.DerivedState),
		checkpoints: make(map[string][]ledger.Checkpoint),
		evidence:    make(map[string][]corroboration.Evidence),
	}
}

func (s *Store) ReadTail(_ context.Context, chainID string) (ledger.Tail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events[chainID]
	if len(events) == 0 {
		return ledger.Tail{Sequence: 0, Hash: ledger.GenesisHash}, nil
	}
	last := events[len(events)-1]
	return ledger.Tail{Sequence: last.Sequence, Hash: last.Hash}, nil
}

func (s *Store) ReadState(_ context.Context, chainID string) (ledger.DerivedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[chainID]
	if !ok {
		return ledger.DerivedState{}, fmt.Errorf("%w: %s", ledger.ErrChainNotFound, chainID)
	}
	return state, nil
}

func (s *Store) AppendAtomic(_ context.Context, set ledger.AppendSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int64(len(s.events[set.ChainID])) != set.ExpectedTail {
		return ledger.ErrConflict
	}
	s.events[set.ChainID] = append(s.events[set.ChainID], set.Events...)
	s.states[set.ChainID] = set.State
	s.checkpoints[set.ChainID] = append(s.checkpoints[set.ChainID], set.Checkpoints...)
	return nil
}

func (s *Store) ReadRange(_ context.Context, chainID string, from, to int64) ([]ledger.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Event
	for _, e := range s.events[chainID] {
		if e.Sequence >= from && e.Sequence <= to {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ReadCheckpoints(_ context.Context, chainID string, from, to int64) ([]ledger.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Checkpoint
	for _, cp := range s.checkpoints[chainID] {
		if cp.Sequence >= from && cp.Sequence <= to {
			out = append(out, cp)
		}
	}
	return out, nil
}

func (s *Store) NearestCheckpoint(_ context.Context, chainID string, maxSequence int64) (*ledger.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *ledger.Checkpoint
	for i := range s.checkpoints[chainID] {
		cp := s.checkpoints[chainID][i]
		if cp.Sequence <= maxSequence && (best == nil || cp.Sequence > best.Sequence) {
			best = &cp
		}
	}
	if best == nil {
		return nil, nil
	}
	out := *best
	return &out, nil
}

func (s *Store) InsertEvidence(_ context.Context, ev corroboration.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEvID++
	ev.ID = s.nextEvID
	s.evidence[ev.ChainID] = append(s.evidence[ev.ChainID], ev)
	return nil
}

func (s *Store) ListEvidence(_ context.Context, chainID string) ([]corroboration.Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]corroboration.Evidence, len(s.evidence[chainID]))
	copy(out, s.evidence[chainID])
	return out, nil
}

// Tamper mutates a stored event in place, bypassing the append path. It
// exists so tests can simulate after-the-fact storage manipulation; nothing
// in the serving path calls it.
func (s *Store) Tamper(chainID string, sequence int64, fn func(*ledger.Event)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events[chainID]
	for i := range events {
		if events[i].Sequence == sequence {
			fn(&events[i])
			return true
		}
	}
	return false
}
