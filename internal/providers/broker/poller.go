package broker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/trackledger/trackledger/internal/corroboration"
	"github.com/trackledger/trackledger/internal/ledger"
)

// AccountBinding ties a broker account to the chain its confirmations
// corroborate.
type AccountBinding struct {
	ChainID   string
	AccountID string
}

// Poller periodically pulls confirmations and records each one twice: as an
// evidence row for the matcher, and as a BROKER_EVIDENCE chain event so the
// claim itself becomes tamper-evident.
type Poller struct {
	client   *Client
	store    corroboration.EvidenceStore
	appender *ledger.Appender
	interval time.Duration
	accounts []AccountBinding

	mu       sync.Mutex
	lastSeen map[string]int64
}

func NewPoller(client *Client, store corroboration.EvidenceStore, appender *ledger.Appender, interval time.Duration, accounts []AccountBinding) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		client:   client,
		store:    store,
		appender: appender,
		interval: interval,
		accounts: accounts,
		lastSeen: make(map[string]int64),
	}
}

// Run polls until the context is canceled. Individual account failures are
// logged and skipped; the next tick retries them.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

func (p *Poller) pollAll(ctx context.Context) {
	for _, binding := range p.accounts {
		if err := p.pollAccount(ctx, binding); err != nil {
			log.Warn().Err(err).
				Str("chain_id", binding.ChainID).
				Str("account_id", binding.AccountID).
				Msg("broker evidence poll failed")
		}
	}
}

func (p *Poller) pollAccount(ctx context.Context, binding AccountBinding) error {
	p.mu.Lock()
	since := p.lastSeen[binding.AccountID]
	p.mu.Unlock()

	evidence, err := p.client.FetchConfirmations(ctx, binding.AccountID, since)
	if err != nil {
		return err
	}

	for _, ev := range evidence {
		ev.ChainID = binding.ChainID
		if err := p.store.InsertEvidence(ctx, ev); err != nil {
			return err
		}
		note := ledger.BrokerEvidenceNote{
			LinkedTicket:   ev.LinkedTicket,
			Action:         ev.Action,
			ExecutionPrice: ev.ExecutionPrice,
			ExecutionTime:  ev.ExecutionTime,
			Source:         ev.Source,
		}
		if _, err := p.appender.AppendWithRetry(ctx, binding.ChainID, ev.ExecutionTime, note); err != nil {
			return err
		}
		// The upstream query is inclusive of since, so the watermark must move
		// past the newest confirmation or the boundary record would be
		// re-appended to the chain on every tick.
		if ev.ExecutionTime >= since {
			since = ev.ExecutionTime + 1
		}
	}

	p.mu.Lock()
	p.lastSeen[binding.AccountID] = since
	p.mu.Unlock()

	if len(evidence) > 0 {
		log.Info().
			Str("chain_id", binding.ChainID).
			Int("confirmations", len(evidence)).
			Msg("broker evidence recorded")
	}
	return nil
}
