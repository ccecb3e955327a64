// Package broker pulls trade confirmations from an external broker endpoint.
// The broker is weakly trusted and occasionally flaky, so the client sits
// behind a circuit breaker and a rate limiter.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/trackledger/trackledger/internal/corroboration"
)

type ClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit rate.Limit
	Burst     int
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 2
	}
	if cfg.Burst == 0 {
		cfg.Burst = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "broker-evidence",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.Burst),
	}
}

type confirmationDTO struct {
	Ticket         int64   `json:"ticket"`
	Action         string  `json:"action"`
	ExecutionPrice float64 `json:"execution_price"`
	ExecutionTime  int64   `json:"execution_time"`
	Source         string  `json:"source"`
}

// FetchConfirmations pulls confirmations for an account executed at or after
// the given unix timestamp.
func (c *Client) FetchConfirmations(ctx context.Context, accountID string, since int64) ([]corroboration.Evidence, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		u := fmt.Sprintf("%s/accounts/%s/confirmations?since=%d",
			c.baseURL, url.PathEscape(accountID), since)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch confirmations: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("broker returned status %d", resp.StatusCode)
		}
		var dtos []confirmationDTO
		if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
			return nil, fmt.Errorf("decode confirmations: %w", err)
		}
		return dtos, nil
	})
	if err != nil {
		return nil, err
	}

	dtos := out.([]confirmationDTO)
	evidence := make([]corroboration.Evidence, 0, len(dtos))
	now := time.Now().UTC()
	for _, d := range dtos {
		evidence = append(evidence, corroboration.Evidence{
			LinkedTicket:   d.Ticket,
			Action:         d.Action,
			ExecutionPrice: d.ExecutionPrice,
			ExecutionTime:  d.ExecutionTime,
			Source:         d.Source,
			ReceivedAt:     now,
		})
	}
	return evidence, nil
}
