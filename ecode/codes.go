package ecode

import (
	"net/http"
	"sync"
)

// Common codes
const (
	OK = 0

	NoLogin       = -101
	TokenInvalid  = -102
	TokenExpired  = -103
	SignCheckErr  = -104
	AccessDenied  = -403
	RequestErr    = -400
	ParamErr      = -401
	NotFound      = -404
	Conflict      = -409
	TooManyReqs   = -429
	ServerErr     = -500
	Unavailable   = -503
	Deadline      = -504
	QuotaExceeded = -1001
	BatchTooLarge = -1002
	BatchClosed   = -1003
)

var (
	mu    sync.RWMutex
	texts = map[int]string{
		OK:            "ok",
		NoLogin:       "Account not logged in",
		TokenInvalid:  "Invalid token",
		TokenExpired:  "Token expired",
		SignCheckErr:  "Signature verification failed",
		AccessDenied:  "Access denied",
		RequestErr:    "Invalid request",
		ParamErr:      "Invalid parameters",
		NotFound:      "Resource not found",
		Conflict:      "Resource conflict",
		TooManyReqs:   "Too many requests",
		ServerErr:     "Internal server error",
		Unavailable:   "Service unavailable",
		Deadline:      "Deadline exceeded",
		QuotaExceeded: "Usage quota exceeded",
		BatchTooLarge: "Batch exceeds the maximum number of jobs",
		BatchClosed:   "Batch has no cancelable jobs",
	}
	statuses = map[int]int{
		OK:            http.StatusOK,
		NoLogin:       http.StatusUnauthorized,
		TokenInvalid:  http.StatusUnauthorized,
		TokenExpired:  http.StatusUnauthorized,
		SignCheckErr:  http.StatusUnauthorized,
		AccessDenied:  http.StatusForbidden,
		RequestErr:    http.StatusBadRequest,
		ParamErr:      http.StatusBadRequest,
		NotFound:      http.StatusNotFound,
		Conflict:      http.StatusConflict,
		TooManyReqs:   http.StatusTooManyRequests,
		ServerErr:     http.StatusInternalServerError,
		Unavailable:   http.StatusServiceUnavailable,
		Deadline:      http.StatusGatewayTimeout,
		QuotaExceeded: http.StatusPaymentRequired,
		BatchTooLarge: http.StatusRequestEntityTooLarge,
		BatchClosed:   http.StatusConflict,
	}
)

// Text returns the message registered for code
func Text(code int) string {
	mu.RLock()
	defer mu.RUnlock()
	if t, ok := texts[code]; ok {
		return t
	}
	return texts[ServerErr]
}

// ToHTTPStatus maps a business code to its HTTP status
func ToHTTPStatus(code int) int {
	mu.RLock()
	defer mu.RUnlock()
	if s, ok := statuses[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Register adds or replaces a custom code
func Register(code int, text string, status int) {
	mu.Lock()
	defer mu.Unlock()
	texts[code] = text
	statuses[code] = status
}
