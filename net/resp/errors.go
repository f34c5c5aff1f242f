package resp

import "github.com/studio233/batchd/ecode"

// newException builds an Exception for code with an optional message and details.
func newException(code int, message string, details ...any) *Exception {
	e := &Exception{Code: code, Message: message}
	if len(details) > 0 {
		e.Errors = details[0]
	}
	return e
}

// BadRequest 400
func BadRequest(message string, details ...any) *Exception {
	return newException(ecode.RequestErr, message, details...)
}

// UnAuthorized 401
func UnAuthorized(message string, details ...any) *Exception {
	return newException(ecode.NoLogin, message, details...)
}

// Forbidden 403
func Forbidden(message string, details ...any) *Exception {
	return newException(ecode.AccessDenied, message, details...)
}

// NotFound 404
func NotFound(message string, details ...any) *Exception {
	return newException(ecode.NotFound, message, details...)
}

// Conflict 409
func Conflict(message string, details ...any) *Exception {
	return newException(ecode.Conflict, message, details...)
}

// TooManyRequests 429
func TooManyRequests(message string, details ...any) *Exception {
	return newException(ecode.TooManyReqs, message, details...)
}

// InternalServer 500
func InternalServer(message string, details ...any) *Exception {
	return newException(ecode.ServerErr, message, details...)
}

// Code builds an exception for an arbitrary business code using its default message.
func Code(code int, details ...any) *Exception {
	return newException(code, "", details...)
}
