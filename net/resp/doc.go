// Package resp provides the JSON response helpers shared by every HTTP
// handler in the service.
//
// Successful responses write the payload as-is:
//
//	resp.Success(w, summary)
//	resp.WithStatusCode(w, http.StatusAccepted, batch)
//	resp.Success(w, "canceled") // {"message": "canceled"}
//
// Failures are described by an Exception whose business code (see ecode)
// decides the HTTP status unless Status is set explicitly:
//
//	resp.Fail(w, resp.NotFound("batch not found"))
//	resp.Fail(w, resp.BadRequest("invalid items", fieldErrors))
//	resp.Fail(w, resp.Code(ecode.QuotaExceeded))
//
// Failure bodies have the shape:
//
//	{
//	  "code": -1001,
//	  "message": "Usage quota exceeded",
//	  "errors": {...}
//	}
package resp
