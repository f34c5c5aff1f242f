package paging

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ErrInvalidCursor returned when a cursor cannot be decoded
var ErrInvalidCursor = errors.New("invalid cursor")

// Params holds the unified pagination parameters
type Params struct {
	Cursor string `json:"cursor" form:"cursor"`
	Limit  int    `json:"limit" form:"limit"`
}

// Result is one page of a newest-first listing
type Result[T any] struct {
	Items       []T    `json:"items"`
	Total       int    `json:"total,omitempty"`
	NextCursor  string `json:"next,omitempty"`
	HasNextPage bool   `json:"has_next"`
}

// Cursor marks the last item of a page. Items are ordered by At, newest
// first, and by ID descending among items sharing a timestamp.
type Cursor struct {
	At time.Time
	ID string
}

// IsZero reports whether c is the start of the listing
func (c Cursor) IsZero() bool { return c.At.IsZero() }

// Admits reports whether an item stamped at with id belongs after c
func (c Cursor) Admits(at time.Time, id string) bool {
	if c.IsZero() {
		return true
	}
	if at.Equal(c.At) {
		return id < c.ID
	}
	return at.Before(c.At)
}

// NormalizeParams clamps Limit to 1..MaxLimit, defaulting to DefaultLimit
func NormalizeParams(params Params) Params {
	switch {
	case params.Limit <= 0:
		params.Limit = DefaultLimit
	case params.Limit > MaxLimit:
		params.Limit = MaxLimit
	}
	return params
}

// EncodeCursor wraps c in an opaque string
func EncodeCursor(c Cursor) string {
	raw := strconv.AppendInt(nil, c.At.UnixNano(), 10)
	if c.ID != "" {
		raw = append(append(raw, ':'), c.ID...)
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor unwraps a cursor. The empty cursor decodes to the zero
// Cursor, meaning "start from the newest item".
func DecodeCursor(cursor string) (Cursor, error) {
	if cursor == "" {
		return Cursor{}, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	stamp, id, _ := strings.Cut(string(b), ":")
	n, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil || n <= 0 {
		return Cursor{}, fmt.Errorf("%w: %q", ErrInvalidCursor, b)
	}
	return Cursor{At: time.Unix(0, n), ID: id}, nil
}

// FetchFunc returns up to limit items that after admits (all items when
// after is zero), newest first, together with the total count.
type FetchFunc[T any] func(ctx context.Context, after Cursor, limit int) (items []T, total int, err error)

// Paginate decodes the cursor, fetches one item more than the page size to
// detect a following page, and derives the next cursor from the last item
// returned.
func Paginate[T any](ctx context.Context, params Params, fetch FetchFunc[T], at func(T) Cursor) (*Result[T], error) {
	params = NormalizeParams(params)
	after, err := DecodeCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	items, total, err := fetch(ctx, after, params.Limit+1)
	if err != nil {
		return nil, err
	}

	res := &Result[T]{Items: items, Total: total}
	if len(items) > params.Limit {
		res.Items = items[:params.Limit]
		res.HasNextPage = true
		res.NextCursor = EncodeCursor(at(res.Items[params.Limit-1]))
	}
	if res.Items == nil {
		res.Items = []T{}
	}
	return res, nil
}
