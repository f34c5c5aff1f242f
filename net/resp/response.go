package resp

import (
	"encoding/json"
	"net/http"

	"github.com/studio233/batchd/ecode"
)

// Exception represents the response structure.
type Exception struct {
	Status  int    `json:"status,omitempty"`  // HTTP status
	Code    int    `json:"code,omitempty"`    // Business code
	Message string `json:"message,omitempty"` // Message
	Errors  any    `json:"errors,omitempty"`  // Validation errors
	Data    any    `json:"data,omitempty"`    // Response data
}

// Error implements error so an Exception can travel through error returns.
func (e *Exception) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ecode.Text(e.Code)
}

// Success handles success responses.
func Success(w http.ResponseWriter, data ...any) {
	WithStatusCode(w, http.StatusOK, data...)
}

// WithStatusCode handles success responses with custom status code.
func WithStatusCode(w http.ResponseWriter, statusCode int, data ...any) {
	var responseData any
	message := "ok"

	if len(data) > 0 {
		responseData = data[0]
		if strData, ok := responseData.(string); ok {
			message = strData
			responseData = nil
		}
	}

	if statusCode < 200 || statusCode >= 400 {
		Fail(w, &Exception{Status: statusCode, Message: message})
		return
	}

	if responseData == nil {
		writeJSON(w, statusCode, map[string]any{"message": message})
		return
	}
	writeJSON(w, statusCode, responseData)
}

// Fail handles failure responses.
func Fail(w http.ResponseWriter, r *Exception) {
	if r == nil {
		r = &Exception{Code: ecode.ServerErr}
	}
	status, result := buildFailureResponse(r)
	writeJSON(w, status, result)
}

// buildFailureResponse builds the failure response.
func buildFailureResponse(r *Exception) (int, *Exception) {
	code := ecode.RequestErr
	if r.Code != 0 {
		code = r.Code
	}

	status := ecode.ToHTTPStatus(code)
	if r.Status != 0 {
		status = r.Status
	}

	message := ecode.Text(code)
	if r.Message != "" {
		message = r.Message
	}

	return status, &Exception{
		Code:    code,
		Message: message,
		Errors:  r.Errors,
	}
}

// writeJSON writes res as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, res any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		http.Error(w, "Failed to encode JSON response", http.StatusInternalServerError)
	}
}
