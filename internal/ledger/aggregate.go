package ledger

// DerivedState is the running aggregate for one chain. It is mutated exactly
// once per appended event, in the same transaction as the append, so its
// tail fields always equal the tail of the event log.
type DerivedState struct {
	ChainID            string  `json:"chain_id" db:"chain_id"`
	TotalTrades        int64   `json:"total_trades" db:"total_trades"`
	WonTrades          int64   `json:"won_trades" db:"won_trades"`
	LostTrades         int64   `json:"lost_trades" db:"lost_trades"`
	TotalProfit        float64 `json:"total_profit" db:"total_profit"`
	Balance            float64 `json:"balance" db:"balance"`
	Equity             float64 `json:"equity" db:"equity"`
	PeakProfit         float64 `json:"peak_profit" db:"peak_profit"`
	MaxDrawdown        float64 `json:"max_drawdown" db:"max_drawdown"`
	MaxDrawdownPct     float64 `json:"max_drawdown_pct" db:"max_drawdown_pct"`
	DrawdownStartedAt  int64   `json:"drawdown_started_at" db:"drawdown_started_at"`
	MaxDrawdownSeconds int64   `json:"max_drawdown_seconds" db:"max_drawdown_seconds"`
	LastSequence       int64   `json:"last_sequence" db:"last_sequence"`
	LastEventHash      string  `json:"last_event_hash" db:"last_event_hash"`
}

// NewState returns the aggregate for a chain with no events yet.
func NewState(chainID string) DerivedState {
	return DerivedState{ChainID: chainID, LastEventHash: GenesisHash}
}

// Reduce folds one event into the aggregate. Pure: the input state is not
// modified. Every event advances the tail fields; only TRADE_CLOSE and
// SNAPSHOT touch the numeric ones.
func Reduce(s DerivedState, e *Event) DerivedState {
	switch p := e.Payload.(type) {
	case TradeClose:
		s.TotalTrades++
		switch {
		case p.Profit > 0:
			s.WonTrades++
		case p.Profit < 0:
			s.LostTrades++
		}
		s.TotalProfit += p.Profit
		s.Balance += p.Profit
		s.Equity = s.Balance

		// Drawdown over the running profit curve:
		// peak = max(peak, profit); dd = max(dd, peak - profit).
		if s.TotalProfit >= s.PeakProfit {
			s.PeakProfit = s.TotalProfit
			s.DrawdownStartedAt = 0
		} else {
			if s.DrawdownStartedAt == 0 {
				s.DrawdownStartedAt = e.Timestamp
			}
			if dd := s.PeakProfit - s.TotalProfit; dd > s.MaxDrawdown {
				s.MaxDrawdown = dd
				if s.PeakProfit > 0 {
					s.MaxDrawdownPct = dd / s.PeakProfit * 100
				}
			}
			if dur := e.Timestamp - s.DrawdownStartedAt; dur > s.MaxDrawdownSeconds {
				s.MaxDrawdownSeconds = dur
			}
		}
	case Snapshot:
		s.Balance = p.Balance
		s.Equity = p.Equity
	}

	s.LastSequence = e.Sequence
	s.LastEventHash = e.Hash
	return s
}
