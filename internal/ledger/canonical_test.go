package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_KnownVectors(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name: "trade_open_sequence_1",
			event: Event{
				ChainID:  "demo",
				Sequence: 1,
				Type:     EventTradeOpen,
				Payload: TradeOpen{
					Ticket:    1001,
					Symbol:    "EURUSD",
					Direction: "buy",
					Lots:      0.1,
					OpenPrice: 1.1,
				},
				Timestamp: 1700000000,
				PrevHash:  GenesisHash,
			},
			want: `{"chain_id":"demo","event_type":"TRADE_OPEN","payload":{"direction":"buy","lots":0.10,"open_price":1.10000000,"symbol":"EURUSD","ticket":1001},"prev_hash":"` + GenesisHash + `","sequence":1,"timestamp":1700000000}`,
		},
		{
			name: "snapshot",
			event: Event{
				ChainID:   "demo",
				Sequence:  3,
				Type:      EventSnapshot,
				Payload:   Snapshot{Balance: 10050.25, Equity: 10050.25},
				Timestamp: 1700007200,
				PrevHash:  "78c7231ebbf9bb54106dc0b99bb3488a5a99bbaac3433c15fdfac2b914fc1f6c",
			},
			want: `{"chain_id":"demo","event_type":"SNAPSHOT","payload":{"balance":10050.25,"equity":10050.25},"prev_hash":"78c7231ebbf9bb54106dc0b99bb3488a5a99bbaac3433c15fdfac2b914fc1f6c","sequence":3,"timestamp":1700007200}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(Canonicalize(&tt.event))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalize_Deterministic(t *testing.T) {
	e := Event{
		ChainID:  "chain-a",
		Sequence: 7,
		Type:     EventTradeClose,
		Payload: TradeClose{
			Ticket:     42,
			Symbol:     "GBPJPY",
			Direction:  "sell",
			Lots:       1.5,
			OpenPrice:  187.123,
			ClosePrice: 186.901,
			Profit:     -33.33,
		},
		Timestamp: 1690000000,
		PrevHash:  GenesisHash,
	}

	first := Canonicalize(&e)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Canonicalize(&e), "canonical bytes drifted on call %d", i)
	}
}

func TestCanonicalize_PrecisionTable(t *testing.T) {
	// Price-like fields carry 8 decimals, monetary/lot fields 2, counts and
	// timestamps none. The per-field table is part of the producer contract.
	tests := []struct {
		name    string
		payload Payload
		want    string
	}{
		{
			name: "trade_open",
			payload: TradeOpen{
				Ticket: 1, Symbol: "X", Direction: "buy", Lots: 2, OpenPrice: 3,
			},
			want: `{"direction":"buy","lots":2.00,"open_price":3.00000000,"symbol":"X","ticket":1}`,
		},
		{
			name: "trade_close",
			payload: TradeClose{
				Ticket: 1, Symbol: "X", Direction: "sell", Lots: 0.01,
				OpenPrice: 1.23456789, ClosePrice: 9.87654321, Profit: 10,
			},
			want: `{"close_price":9.87654321,"direction":"sell","lots":0.01,"open_price":1.23456789,"profit":10.00,"symbol":"X","ticket":1}`,
		},
		{
			name:    "snapshot",
			payload: Snapshot{Balance: 100, Equity: 99.5},
			want:    `{"balance":100.00,"equity":99.50}`,
		},
		{
			name: "broker_evidence_with_source",
			payload: BrokerEvidenceNote{
				LinkedTicket: 55, Action: "close", ExecutionPrice: 1.1,
				ExecutionTime: 1700000000, Source: "mt4-bridge",
			},
			want: `{"action":"close","execution_price":1.10000000,"execution_time":1700000000,"linked_ticket":55,"source":"mt4-bridge"}`,
		},
		{
			name: "broker_evidence_source_omitted",
			payload: BrokerEvidenceNote{
				LinkedTicket: 55, Action: "open", ExecutionPrice: 2,
				ExecutionTime: 1700000001,
			},
			want: `{"action":"open","execution_price":2.00000000,"execution_time":1700000001,"linked_ticket":55}`,
		},
		{
			name:    "verification_run_completed",
			payload: VerificationRunCompleted{RunID: "run-1", EventsVerified: 250},
			want:    `{"events_verified":250,"run_id":"run-1"}`,
		},
		{
			name:    "verification_passed",
			payload: VerificationPassed{RunID: "run-1"},
			want:    `{"run_id":"run-1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, canonicalObject(tt.payload.fields()))
		})
	}
}

func TestFixed_RoundsHalfAwayFromZero(t *testing.T) {
	tests := []struct {
		v      float64
		places int32
		want   string
	}{
		{0.005, 2, "0.01"},   // banker's rounding would give 0.00
		{-0.005, 2, "-0.01"}, // and -0.00 here
		{0.015, 2, "0.02"},
		{0.025, 2, "0.03"}, // banker's would give 0.02
		{2.345, 2, "2.35"},
		{1.123456785, 8, "1.12345679"},
		{50.25, 2, "50.25"},
		{0, 8, "0.00000000"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, fixed(tt.v, tt.places), "fixed(%v, %d)", tt.v, tt.places)
	}
}

func TestWriteJSONString_Escaping(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`plain`, `"plain"`},
		{`with "quotes"`, `"with \"quotes\""`},
		{"tab\there", `"tab\there"`},
		{"line\nbreak", `"line\nbreak"`},
		{`back\slash`, `"back\\slash"`},
		{"ctrl\x01char", `"ctrl\u0001char"`},
		{"unicode €", `"unicode €"`},
	}

	for _, tt := range tests {
		got := canonicalObject([]field{text("k", tt.in)})
		assert.Equal(t, `{"k":`+tt.want+`}`, got, "escaping %q", tt.in)
	}
}

func TestCanonicalObject_SortsKeys(t *testing.T) {
	got := canonicalObject([]field{
		text("zulu", "z"),
		integer("alpha", 1),
		money("mike", 2),
	})
	assert.Equal(t, `{"alpha":1,"mike":2.00,"zulu":"z"}`, got)
}
