package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studio233/batchd/config"
)

func remoteConfig(url string) *config.BillingRemote {
	return &config.BillingRemote{
		Endpoint:     url,
		APIKey:       "secret",
		Timeout:      time.Second,
		MaxRequests:  1,
		Interval:     time.Minute,
		OpenTimeout:  time.Minute,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

func TestRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/balance":
			_ = json.NewEncoder(w).Encode(balanceResponse{UserID: r.URL.Query().Get("user_id"), Balance: 9})
		case "/debits":
			var req mutationRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			switch {
			case req.Amount > 9:
				w.WriteHeader(http.StatusPaymentRequired)
			case req.IdempotencyKey == "batch:dup":
				w.WriteHeader(http.StatusConflict)
			default:
				w.WriteHeader(http.StatusCreated)
			}
		case "/refunds", "/grants":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	r, err := NewRemote(remoteConfig(srv.URL + "/"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if b, err := r.Balance(ctx, "u 1"); err != nil || b != 9 {
		t.Errorf("balance = %d, %v", b, err)
	}
	if err := r.Debit(ctx, "u1", 2, "batch:1"); err != nil {
		t.Errorf("debit: %v", err)
	}
	if err := r.Debit(ctx, "u1", 2, "batch:dup"); err != nil {
		t.Errorf("duplicate debit should succeed: %v", err)
	}
	if err := r.Debit(ctx, "u1", 20, "batch:2"); !errors.Is(err, ErrInsufficientQuota) {
		t.Errorf("expected ErrInsufficientQuota, got %v", err)
	}
	if err := r.Refund(ctx, "u1", 2, "job:1"); err != nil {
		t.Errorf("refund: %v", err)
	}
	if err := r.Grant(ctx, "u1", 2, "grant:1"); err != nil {
		t.Errorf("grant: %v", err)
	}
}

func TestRemoteBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r, err := NewRemote(remoteConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := r.Debit(ctx, "u1", 1, "k"); err == nil {
			t.Fatal("expected upstream error")
		}
	}
	err = r.Debit(ctx, "u1", 1, "k")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable once open, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("open breaker still called upstream: %d calls", calls.Load())
	}
}

func TestRemoteBusinessErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()

	r, _ := NewRemote(remoteConfig(srv.URL))
	for i := 0; i < 5; i++ {
		if err := r.Debit(context.Background(), "u1", 1, "k"); !errors.Is(err, ErrInsufficientQuota) {
			t.Fatalf("call %d: expected ErrInsufficientQuota, got %v", i, err)
		}
	}
}
