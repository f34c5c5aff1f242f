package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/sony/gobreaker"
	"github.com/studio233/batchd/config"
)

// Remote talks to a hosted billing service over HTTP.
// Transport failures and 5xx responses count against a circuit breaker;
// business rejections (402, 409) do not.
type Remote struct {
	base   string
	apiKey string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

type mutationRequest struct {
	UserID         string `json:"user_id"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type balanceQuery struct {
	UserID string `url:"user_id"`
}

type balanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// NewRemote returns a client for cfg.Endpoint
func NewRemote(cfg *config.BillingRemote) (*Remote, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, errors.New("billing remote endpoint is not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	minRequests, ratio := cfg.MinRequests, cfg.FailureRatio
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "billing",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
	})
	return &Remote{
		base:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
		cb:     cb,
	}, nil
}

func (r *Remote) Debit(ctx context.Context, userID string, amount int64, key string) error {
	return r.mutate(ctx, "/debits", userID, amount, key)
}

func (r *Remote) Refund(ctx context.Context, userID string, amount int64, key string) error {
	return r.mutate(ctx, "/refunds", userID, amount, key)
}

func (r *Remote) Grant(ctx context.Context, userID string, amount int64, key string) error {
	return r.mutate(ctx, "/grants", userID, amount, key)
}

func (r *Remote) Balance(ctx context.Context, userID string) (int64, error) {
	qs, err := query.Values(balanceQuery{UserID: userID})
	if err != nil {
		return 0, err
	}
	status, body, err := r.do(ctx, http.MethodGet, "/balance?"+qs.Encode(), nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("billing balance: unexpected status %d", status)
	}
	var out balanceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("billing balance: %w", err)
	}
	return out.Balance, nil
}

func (r *Remote) mutate(ctx context.Context, path, userID string, amount int64, key string) error {
	if err := validate(userID, amount, key); err != nil {
		return err
	}
	payload, err := json.Marshal(mutationRequest{UserID: userID, Amount: amount, IdempotencyKey: key})
	if err != nil {
		return err
	}
	status, _, err := r.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusConflict:
		// 409 reports an already applied idempotency key
		return nil
	case http.StatusPaymentRequired:
		return ErrInsufficientQuota
	default:
		return fmt.Errorf("billing %s: unexpected status %d", path, status)
	}
}

type result struct {
	status int
	body   []byte
}

func (r *Remote) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	out, err := r.cb.Execute(func() (any, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, r.base+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if r.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+r.apiKey)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("billing %s: status %d", path, resp.StatusCode)
		}
		return &result{status: resp.StatusCode, body: data}, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return 0, nil, err
	}
	res := out.(*result)
	return res.status, res.body, nil
}
