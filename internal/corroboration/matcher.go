// Package corroboration reconciles ledger trade events against externally
// supplied broker confirmations. Evidence is weakly trusted: its value comes
// only from agreeing with the chain, and an unmatched record is a data point,
// not an error.
package corroboration

import (
	"context"
	"math"
	"time"

	"github.com/trackledger/trackledger/internal/ledger"
)

// Evidence is one broker-side execution claim linked to a ledger ticket.
type Evidence struct {
	ID             int64     `json:"id" db:"id"`
	ChainID        string    `json:"chain_id" db:"chain_id"`
	LinkedTicket   int64     `json:"linked_ticket" db:"linked_ticket"`
	Action         string    `json:"action" db:"action"`
	ExecutionPrice float64   `json:"execution_price" db:"execution_price"`
	ExecutionTime  int64     `json:"execution_time" db:"execution_time"`
	Source         string    `json:"source,omitempty" db:"source"`
	ReceivedAt     time.Time `json:"received_at" db:"received_at"`
}

// EvidenceStore persists evidence records. They arrive asynchronously and
// are never mutated after insert.
type EvidenceStore interface {
	InsertEvidence(ctx context.Context, ev Evidence) error
	ListEvidence(ctx context.Context, chainID string) ([]Evidence, error)
}

// Trade is the ledger-side view a piece of evidence can match against.
type Trade struct {
	Sequence  int64   `json:"sequence"`
	Ticket    int64   `json:"ticket"`
	Action    string  `json:"action"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// Tolerances bound how far a matched confirmation may drift from the ledger
// before price or time agreement is withheld.
type Tolerances struct {
	Price       float64
	TimeSeconds int64
}

func DefaultTolerances() Tolerances {
	return Tolerances{Price: 0.0001, TimeSeconds: 60}
}

// Report summarizes one reconciliation pass.
type Report struct {
	Total        int     `json:"total_evidence"`
	Matched      int     `json:"matched"`
	PriceMatched int     `json:"price_matched"`
	TimeMatched  int     `json:"time_matched"`
	Unmatched    []int64 `json:"unmatched_tickets"`
	MatchRate    float64 `json:"match_rate"`
}

// Match reconciles evidence against ledger trades. A record matches when its
// linked ticket and action equal a trade's; among matches, price agreement
// requires |Δprice| < tol.Price and time agreement |Δt| < tol.TimeSeconds.
func Match(trades []Trade, evidence []Evidence, tol Tolerances) Report {
	type key struct {
		ticket int64
		action string
	}
	index := make(map[key]Trade, len(trades))
	for _, t := range trades {
		index[key{t.Ticket, t.Action}] = t
	}

	report := Report{Total: len(evidence), Unmatched: []int64{}}
	for _, ev := range evidence {
		t, ok := index[key{ev.LinkedTicket, ev.Action}]
		if !ok {
			report.Unmatched = append(report.Unmatched, ev.LinkedTicket)
			continue
		}
		report.Matched++
		if math.Abs(t.Price-ev.ExecutionPrice) < tol.Price {
			report.PriceMatched++
		}
		if dt := t.Timestamp - ev.ExecutionTime; dt > -tol.TimeSeconds && dt < tol.TimeSeconds {
			report.TimeMatched++
		}
	}
	if report.Total > 0 {
		report.MatchRate = float64(report.Matched) / float64(report.Total)
	}
	return report
}

// TradesFromEvents projects trade open/close events into matchable trades.
// Other event types are skipped.
func TradesFromEvents(events []ledger.Event) []Trade {
	trades := make([]Trade, 0, len(events))
	for i := range events {
		e := &events[i]
		switch p := e.Payload.(type) {
		case ledger.TradeOpen:
			trades = append(trades, Trade{
				Sequence:  e.Sequence,
				Ticket:    p.Ticket,
				Action:    "open",
				Price:     p.OpenPrice,
				Timestamp: e.Timestamp,
			})
		case ledger.TradeClose:
			trades = append(trades, Trade{
				Sequence:  e.Sequence,
				Ticket:    p.Ticket,
				Action:    "close",
				Price:     p.ClosePrice,
				Timestamp: e.Timestamp,
			})
		}
	}
	return trades
}
