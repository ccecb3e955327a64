package ledger

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies the kind of fact an event records.
type EventType string

const (
	EventTradeOpen                EventType = "TRADE_OPEN"
	EventTradeClose               EventType = "TRADE_CLOSE"
	EventSnapshot                 EventType = "SNAPSHOT"
	EventBrokerEvidence           EventType = "BROKER_EVIDENCE"
	EventVerificationRunCompleted EventType = "VERIFICATION_RUN_COMPLETED"
	EventVerificationPassed       EventType = "VERIFICATION_PASSED"
)

// Event is one immutable, hash-linked fact in a chain. Events are created
// only by the Appender and never updated or deleted afterwards.
type Event struct {
	ChainID   string    `json:"chain_id" db:"chain_id"`
	Sequence  int64     `json:"sequence" db:"sequence"`
	Type      EventType `json:"event_type" db:"event_type"`
	Payload   Payload   `json:"payload"`
	Timestamp int64     `json:"timestamp" db:"ts"`
	PrevHash  string    `json:"prev_hash" db:"prev_hash"`
	Hash      string    `json:"event_hash" db:"event_hash"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Payload is the tagged union of per-event-type fact sets. Each variant
// carries exactly its required fields, and each field declares its canonical
// precision at compile time via the field constructors in canonical.go.
type Payload interface {
	Type() EventType
	Validate() error
	fields() []field
}

// TradeOpen records a position being opened by the robot.
type TradeOpen struct {
	Ticket    int64   `json:"ticket"`
	Symbol    string  `json:"symbol"`
	Direction string  `json:"direction"`
	Lots      float64 `json:"lots"`
	OpenPrice float64 `json:"open_price"`
}

func (p TradeOpen) Type() EventType { return EventTradeOpen }

func (p TradeOpen) Validate() error {
	if p.Ticket <= 0 {
		return fmt.Errorf("%w: trade_open requires a positive ticket", ErrValidation)
	}
	if p.Symbol == "" {
		return fmt.Errorf("%w: trade_open requires a symbol", ErrValidation)
	}
	if p.Direction != "buy" && p.Direction != "sell" {
		return fmt.Errorf("%w: direction must be buy or sell, got %q", ErrValidation, p.Direction)
	}
	if p.Lots <= 0 {
		return fmt.Errorf("%w: lots must be positive", ErrValidation)
	}
	if p.OpenPrice <= 0 {
		return fmt.Errorf("%w: open_price must be positive", ErrValidation)
	}
	return nil
}

func (p TradeOpen) fields() []field {
	return []field{
		integer("ticket", p.Ticket),
		text("symbol", p.Symbol),
		text("direction", p.Direction),
		money("lots", p.Lots),
		price("open_price", p.OpenPrice),
	}
}

// TradeClose records a position being closed, with realized profit.
type TradeClose struct {
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	Lots       float64 `json:"lots"`
	OpenPrice  float64 `json:"open_price"`
	ClosePrice float64 `json:"close_price"`
	Profit     float64 `json:"profit"`
}

func (p TradeClose) Type() EventType { return EventTradeClose }

func (p TradeClose) Validate() error {
	if p.Ticket <= 0 {
		return fmt.Errorf("%w: trade_close requires a positive ticket", ErrValidation)
	}
	if p.Symbol == "" {
		return fmt.Errorf("%w: trade_close requires a symbol", ErrValidation)
	}
	if p.Direction != "buy" && p.Direction != "sell" {
		return fmt.Errorf("%w: direction must be buy or sell, got %q", ErrValidation, p.Direction)
	}
	if p.Lots <= 0 {
		return fmt.Errorf("%w: lots must be positive", ErrValidation)
	}
	if p.OpenPrice <= 0 || p.ClosePrice <= 0 {
		return fmt.Errorf("%w: prices must be positive", ErrValidation)
	}
	return nil
}

func (p TradeClose) fields() []field {
	return []field{
		integer("ticket", p.Ticket),
		text("symbol", p.Symbol),
		text("direction", p.Direction),
		money("lots", p.Lots),
		price("open_price", p.OpenPrice),
		price("close_price", p.ClosePrice),
		money("profit", p.Profit),
	}
}

// Snapshot records the account balance and equity as reported by the robot.
type Snapshot struct {
	Balance float64 `json:"balance"`
	Equity  float64 `json:"equity"`
}

func (p Snapshot) Type() EventType { return EventSnapshot }

func (p Snapshot) Validate() error {
	if p.Balance < 0 || p.Equity < 0 {
		return fmt.Errorf("%w: balance and equity must be non-negative", ErrValidation)
	}
	return nil
}

func (p Snapshot) fields() []field {
	return []field{
		money("balance", p.Balance),
		money("equity", p.Equity),
	}
}

// BrokerEvidenceNote anchors an externally supplied broker confirmation into
// the chain. The confirmation itself is weakly trusted; recording it here
// makes the claim tamper-evident alongside the trades it corroborates.
type BrokerEvidenceNote struct {
	LinkedTicket   int64   `json:"linked_ticket"`
	Action         string  `json:"action"`
	ExecutionPrice float64 `json:"execution_price"`
	ExecutionTime  int64   `json:"execution_time"`
	Source         string  `json:"source,omitempty"`
}

func (p BrokerEvidenceNote) Type() EventType { return EventBrokerEvidence }

func (p BrokerEvidenceNote) Validate() error {
	if p.LinkedTicket <= 0 {
		return fmt.Errorf("%w: broker_evidence requires a positive linked_ticket", ErrValidation)
	}
	if p.Action != "open" && p.Action != "close" {
		return fmt.Errorf("%w: action must be open or close, got %q", ErrValidation, p.Action)
	}
	if p.ExecutionPrice <= 0 {
		return fmt.Errorf("%w: execution_price must be positive", ErrValidation)
	}
	if p.ExecutionTime <= 0 {
		return fmt.Errorf("%w: execution_time must be positive", ErrValidation)
	}
	return nil
}

func (p BrokerEvidenceNote) fields() []field {
	return []field{
		integer("linked_ticket", p.LinkedTicket),
		text("action", p.Action),
		price("execution_price", p.ExecutionPrice),
		integer("execution_time", p.ExecutionTime),
		optText("source", p.Source),
	}
}

// VerificationRunCompleted records that a full verification replay finished.
type VerificationRunCompleted struct {
	RunID          string `json:"run_id"`
	EventsVerified int64  `json:"events_verified"`
}

func (p VerificationRunCompleted) Type() EventType { return EventVerificationRunCompleted }

func (p VerificationRunCompleted) Validate() error {
	if p.RunID == "" {
		return fmt.Errorf("%w: verification_run_completed requires a run_id", ErrValidation)
	}
	if p.EventsVerified < 0 {
		return fmt.Errorf("%w: events_verified must be non-negative", ErrValidation)
	}
	return nil
}

func (p VerificationRunCompleted) fields() []field {
	return []field{
		text("run_id", p.RunID),
		integer("events_verified", p.EventsVerified),
	}
}

// VerificationPassed records that a verification run found the chain intact.
type VerificationPassed struct {
	RunID string `json:"run_id"`
}

func (p VerificationPassed) Type() EventType { return EventVerificationPassed }

func (p VerificationPassed) Validate() error {
	if p.RunID == "" {
		return fmt.Errorf("%w: verification_passed requires a run_id", ErrValidation)
	}
	return nil
}

func (p VerificationPassed) fields() []field {
	return []field{text("run_id", p.RunID)}
}

// DecodePayload unmarshals a stored payload into its concrete variant.
func DecodePayload(t EventType, raw []byte) (Payload, error) {
	var p Payload
	switch t {
	case EventTradeOpen:
		p = &TradeOpen{}
	case EventTradeClose:
		p = &TradeClose{}
	case EventSnapshot:
		p = &Snapshot{}
	case EventBrokerEvidence:
		p = &BrokerEvidenceNote{}
	case EventVerificationRunCompleted:
		p = &VerificationRunCompleted{}
	case EventVerificationPassed:
		p = &VerificationPassed{}
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrValidation, t)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return deref(p), nil
}

// EncodePayload marshals a payload for storage.
func EncodePayload(p Payload) ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.Type(), err)
	}
	return b, nil
}

// deref flattens the pointer used for unmarshaling back to the value form the
// rest of the package works with.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *TradeOpen:
		return *v
	case *TradeClose:
		return *v
	case *Snapshot:
		return *v
	case *BrokerEvidenceNote:
		return *v
	case *VerificationRunCompleted:
		return *v
	case *VerificationPassed:
		return *v
	default:
		return p
	}
}
