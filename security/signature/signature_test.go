package signature

import (
	"errors"
	"testing"
	"time"
)

func TestSignVerify(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"job_id":"j1","type":"completed"}`)
	h := Sign("whsec", body, now)

	if err := Verify("whsec", h, body, 5*time.Minute, now.Add(time.Minute)); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	tests := []struct {
		name   string
		secret string
		header string
		body   []byte
		now    time.Time
		want   error
	}{
		{"missing", "whsec", "", body, now, ErrMissing},
		{"malformed", "whsec", "garbage", body, now, ErrMalformed},
		{"no v1", "whsec", "t=1700000000", body, now, ErrMalformed},
		{"expired", "whsec", h, body, now.Add(10 * time.Minute), ErrExpired},
		{"future", "whsec", h, body, now.Add(-10 * time.Minute), ErrExpired},
		{"tampered body", "whsec", h, []byte(`{}`), now, ErrMismatch},
		{"wrong secret", "other", h, body, now, ErrMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.secret, tt.header, tt.body, 5*time.Minute, tt.now)
			if !errors.Is(err, tt.want) {
				t.Errorf("Verify() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerifyRotatedSecrets(t *testing.T) {
	now := time.Now()
	body := []byte("x")
	old := Sign("old", body, now)
	cur := Sign("new", body, now)
	// t=..,v1=<old>,v1=<new>
	header := old + cur[len("t=1700000000"):]
	if err := Verify("new", header, body, time.Minute, now); err != nil {
		t.Errorf("Verify with rotated secrets: %v", err)
	}
}
