// Package gateway runs image operations on a hosted model provider.
//
// A prediction is created, then polled until it reaches a terminal state.
// The provider response is read with gjson so only the fields used here
// need to be stable.
package gateway

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

	"github.com/sony/gobreaker"
	"github.com/studio233/batchd/config"
	"github.com/studio233/batchd/logging/logger"
	"github.com/tidwall/gjson"
)

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrPredictionFailed = errors.New("prediction failed")
	ErrNoOutput         = errors.New("prediction returned no output")
	ErrUnavailable      = errors.New("model gateway unavailable")
)

// Runner executes an operation on a source image and returns the output URL
type Runner interface {
	Run(ctx context.Context, operation, sourceURL string, params map[string]any) (string, error)
}

// Client is a Runner for a Replicate compatible prediction API
type Client struct {
	endpoint     string
	token        string
	models       map[string]string
	pollInterval time.Duration
	timeout      time.Duration
	http         *http.Client
	cb           *gobreaker.CircuitBreaker
}

// New returns a client for cfg
func New(cfg *config.Gateway) *Client {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &Client{
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		token:        cfg.Token,
		models:       cfg.Models,
		pollInterval: poll,
		timeout:      cfg.Timeout,
		http:         &http.Client{Timeout: 30 * time.Second},
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "gateway",
			MaxRequests: 10,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
		}),
	}
}

// Supports reports whether operation has a model configured
func (c *Client) Supports(operation string) bool {
	_, ok := c.models[operation]
	return ok
}

func (c *Client) Run(ctx context.Context, operation, sourceURL string, params map[string]any) (string, error) {
	model, ok := c.models[operation]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownOperation, operation)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	input := make(map[string]any, len(params)+1)
	for k, v := range params {
		input[k] = v
	}
	input["image"] = sourceURL

	path, payload := "/predictions", map[string]any{"input": input}
	if _, version, found := strings.Cut(model, ":"); found {
		payload["version"] = version
	} else {
		path = "/models/" + model + "/predictions"
	}

	body, err := c.call(ctx, http.MethodPost, path, payload)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "id").String()
	logger.Debug(ctx, "prediction created", "operation", operation, "prediction", id)

	for {
		switch gjson.GetBytes(body, "status").String() {
		case "succeeded":
			return outputURL(body)
		case "failed", "canceled":
			reason := gjson.GetBytes(body, "error").String()
			if reason == "" {
				reason = gjson.GetBytes(body, "status").String()
			}
			return "", fmt.Errorf("%w: %s", ErrPredictionFailed, reason)
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("prediction %s: %w", id, ctx.Err())
		case <-time.After(c.pollInterval):
		}
		if body, err = c.call(ctx, http.MethodGet, "/predictions/"+id, nil); err != nil {
			return "", err
		}
	}
}

// outputURL accepts a string output or the first element of an array output
func outputURL(body []byte) (string, error) {
	out := gjson.GetBytes(body, "output")
	switch {
	case out.Type == gjson.String && out.String() != "":
		return out.String(), nil
	case out.IsArray():
		if first := out.Get("0"); first.Type == gjson.String && first.String() != "" {
			return first.String(), nil
		}
	case out.IsObject():
		for _, key := range []string{"image", "url", "output"} {
			if v := out.Get(key); v.Type == gjson.String && v.String() != "" {
				return v.String(), nil
			}
		}
	}
	return "", ErrNoOutput
}

func (c *Client) call(ctx context.Context, method, path string, payload any) ([]byte, error) {
	out, err := c.cb.Execute(func() (any, error) {
		var reader io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}
			reader = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 300 {
			detail := gjson.GetBytes(data, "detail").String()
			return nil, fmt.Errorf("gateway %s %s: status %d %s", method, path, resp.StatusCode, detail)
		}
		return data, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}
