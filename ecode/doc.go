// Package ecode defines the business error codes returned by the batch API
// and the message helpers used to build validation errors.
//
// Codes follow the numbering scheme:
//   - 0: success
//   - -100 to -199: authentication and signature errors
//   - -400 to -499: request and resource errors
//   - -500+: server errors
//   - -1000 and below: batch and quota errors
//
// Each code maps to a message and an HTTP status:
//
//	ecode.Text(ecode.QuotaExceeded)         // "Usage quota exceeded"
//	ecode.ToHTTPStatus(ecode.QuotaExceeded) // 402
//
// The net/resp package uses these mappings when building failure envelopes.
package ecode
