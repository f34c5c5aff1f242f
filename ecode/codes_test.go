package ecode

import (
	"net/http"
	"testing"
)

func TestText(t *testing.T) {
	if got := Text(QuotaExceeded); got != "Usage quota exceeded" {
		t.Errorf("unexpected text %q", got)
	}
	if got := Text(-99999); got != Text(ServerErr) {
		t.Errorf("unknown code should fall back to server error text, got %q", got)
	}
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[int]int{
		NoLogin:       http.StatusUnauthorized,
		NotFound:      http.StatusNotFound,
		QuotaExceeded: http.StatusPaymentRequired,
		-99999:        http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := ToHTTPStatus(code); got != want {
			t.Errorf("code %d: expected %d, got %d", code, want, got)
		}
	}
}

func TestRegister(t *testing.T) {
	Register(-2001, "custom", http.StatusTeapot)
	if Text(-2001) != "custom" || ToHTTPStatus(-2001) != http.StatusTeapot {
		t.Errorf("custom code not registered")
	}
}

func TestMessageHelpers(t *testing.T) {
	if FieldIsRequired("items") != "items required" {
		t.Errorf("unexpected required message %q", FieldIsRequired("items"))
	}
	if NotExist("batch") != "batch does not exist" {
		t.Errorf("unexpected not exist message %q", NotExist("batch"))
	}
	if FieldIsInvalid() != "invalid" {
		t.Errorf("unexpected invalid message %q", FieldIsInvalid())
	}
}
