package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndHandler(t *testing.T) {
	BatchSubmitted(map[string]int{"upscale": 3})
	JobTransition("upscale", "completed", true, 2*time.Second)
	EventReceived("webhook", OutcomeDuplicate)
	QuotaOp("debit", errors.New("x"))
	Dispatch(nil)

	if got := testutil.ToFloat64(jobsSubmitted.WithLabelValues("upscale")); got < 3 {
		t.Errorf("jobs submitted = %v", got)
	}
	if got := testutil.ToFloat64(quotaOps.WithLabelValues("debit", "error")); got < 1 {
		t.Errorf("quota errors = %v", got)
	}

	done := HTTPStart()
	done("GET", "/v1/batches/:id", 200)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"batchd_batch_submitted_total",
		"batchd_events_received_total",
		`route="/v1/batches/:id"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestRegisterPool(t *testing.T) {
	stats := func() map[string]int64 { return map[string]int64{"active_workers": 2} }
	if err := RegisterPool("test", stats); err != nil {
		t.Fatalf("RegisterPool: %v", err)
	}
	if err := RegisterPool("test", stats); err == nil {
		t.Error("registering the same pool twice should fail")
	}
}
