package corroboration

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trackledger/trackledger/internal/ledger"
)

func trade(ticket int64, action string, price float64, ts int64) Trade {
	return Trade{Ticket: ticket, Action: action, Price: price, Timestamp: ts}
}

func evidence(ticket int64, action string, price float64, ts int64) Evidence {
	return Evidence{ChainID: "c", LinkedTicket: ticket, Action: action, ExecutionPrice: price, ExecutionTime: ts}
}

func TestMatch_FullAgreement(t *testing.T) {
	trades := []Trade{
		trade(1001, "open", 1.1, 1700000000),
		trade(1001, "close", 1.1005, 1700003600),
	}
	records := []Evidence{
		evidence(1001, "open", 1.1, 1700000010),
		evidence(1001, "close", 1.1005, 1700003590),
	}

	report := Match(trades, records, DefaultTolerances())
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, 2, report.PriceMatched)
	assert.Equal(t, 2, report.TimeMatched)
	assert.Empty(t, report.Unmatched)
	assert.InDelta(t, 1.0, report.MatchRate, 1e-9)
}

func TestMatch_PriceDriftBeyondTolerance(t *testing.T) {
	// 1.10000 vs 1.10020 is 0.00020, past the 0.0001 default: the record
	// still matches the trade, only price agreement is withheld.
	trades := []Trade{trade(1001, "open", 1.10000, 1700000000)}
	records := []Evidence{evidence(1001, "open", 1.10020, 1700000000)}

	report := Match(trades, records, DefaultTolerances())
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 0, report.PriceMatched)
	assert.Equal(t, 1, report.TimeMatched)
}

func TestMatch_TimeDriftBeyondTolerance(t *testing.T) {
	trades := []Trade{trade(1001, "close", 1.2, 1700000000)}
	records := []Evidence{evidence(1001, "close", 1.2, 1700000061)}

	report := Match(trades, records, DefaultTolerances())
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 1, report.PriceMatched)
	assert.Equal(t, 0, report.TimeMatched)
}

func TestMatch_TimeToleranceBoundIsStrict(t *testing.T) {
	// Exactly 60 seconds of drift is outside the default window.
	trades := []Trade{trade(1, "open", 1.0, 1000)}
	records := []Evidence{evidence(1, "open", 1.0, 1060)}

	report := Match(trades, records, DefaultTolerances())
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 0, report.TimeMatched)
}

func TestMatch_UnmatchedTicketAndAction(t *testing.T) {
	trades := []Trade{trade(1001, "open", 1.1, 1700000000)}
	records := []Evidence{
		evidence(9999, "open", 1.1, 1700000000),  // unknown ticket
		evidence(1001, "close", 1.1, 1700000000), // ticket known, action not
	}

	report := Match(trades, records, DefaultTolerances())
	assert.Equal(t, 0, report.Matched)
	assert.Equal(t, []int64{9999, 1001}, report.Unmatched)
	assert.Zero(t, report.MatchRate)
}

func TestMatch_NoEvidence(t *testing.T) {
	report := Match([]Trade{trade(1, "open", 1, 1)}, nil, DefaultTolerances())
	assert.Zero(t, report.Total)
	assert.Zero(t, report.MatchRate)
	assert.Empty(t, report.Unmatched)
}

func TestTradesFromEvents(t *testing.T) {
	events := []ledger.Event{
		{
			Sequence: 1, Type: ledger.EventTradeOpen, Timestamp: 1700000000,
			Payload: ledger.TradeOpen{Ticket: 1001, Symbol: "EURUSD", Direction: "buy", Lots: 0.1, OpenPrice: 1.1},
		},
		{
			Sequence: 2, Type: ledger.EventSnapshot, Timestamp: 1700000100,
			Payload: ledger.Snapshot{Balance: 10000, Equity: 10000},
		},
		{
			Sequence: 3, Type: ledger.EventTradeClose, Timestamp: 1700003600,
			Payload: ledger.TradeClose{Ticket: 1001, Symbol: "EURUSD", Direction: "buy", Lots: 0.1, OpenPrice: 1.1, ClosePrice: 1.1005, Profit: 50.25},
		},
	}

	trades := TradesFromEvents(events)
	assert.Equal(t, []Trade{
		{Sequence: 1, Ticket: 1001, Action: "open", Price: 1.1, Timestamp: 1700000000},
		{Sequence: 3, Ticket: 1001, Action: "close", Price: 1.1005, Timestamp: 1700003600},
	}, trades)
}
