// Package signature signs and verifies worker webhook payloads.
//
// The header value has the form
//
//	t=<unix seconds>,v1=<hex hmac-sha256(secret, "<t>.<body>")>
//
// and may carry several v1 entries while secrets rotate.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header is the HTTP header carrying the signature.
const Header = "X-Batchd-Signature"

var (
	ErrMissing   = errors.New("signature: missing header")
	ErrMalformed = errors.New("signature: malformed header")
	ErrExpired   = errors.New("signature: timestamp outside tolerance")
	ErrMismatch  = errors.New("signature: no matching signature")
)

// Sign returns the header value for body at time ts.
func Sign(secret string, body []byte, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", t, compute(secret, t, body))
}

func compute(secret, t string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(t))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks header against body. tolerance bounds the clock skew
// between signer and verifier; zero disables the check.
func Verify(secret, header string, body []byte, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return ErrMissing
	}

	var (
		t    string
		sigs []string
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrMalformed
		}
		switch k {
		case "t":
			t = val
		case "v1":
			sigs = append(sigs, val)
		}
	}
	if t == "" || len(sigs) == 0 {
		return ErrMalformed
	}

	sec, err := strconv.ParseInt(t, 10, 64)
	if err != nil {
		return ErrMalformed
	}
	if tolerance > 0 {
		skew := now.Sub(time.Unix(sec, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > tolerance {
			return ErrExpired
		}
	}

	want := []byte(compute(secret, t, body))
	for _, s := range sigs {
		if hmac.Equal([]byte(s), want) {
			return nil
		}
	}
	return ErrMismatch
}
