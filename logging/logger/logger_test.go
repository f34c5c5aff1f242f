package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/studio233/batchd/ctxutil"
	"github.com/studio233/batchd/logging/logger/config"
)

func newTestLogger(buf *bytes.Buffer) *Logger {
	l := &Logger{Logger: logrus.New(), desensitizer: NewDesensitizer(nil)}
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(buf)
	l.SetLevel(logrus.DebugLevel)
	return l
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestKeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)
	l.SetVersion("1.2.3")

	ctx := ctxutil.SetTraceID(context.Background(), "trace-1")
	l.Info(ctx, "batch submitted", "batch_id", "b1", "jobs", 3, "error", errors.New("boom"))

	entry := decode(t, &buf)
	if entry["msg"] != "batch submitted" {
		t.Errorf("unexpected msg %v", entry["msg"])
	}
	if entry["batch_id"] != "b1" || entry["jobs"] != float64(3) {
		t.Errorf("missing kv fields: %v", entry)
	}
	if entry["error"] != "boom" {
		t.Errorf("expected error rendered as string, got %v", entry["error"])
	}
	if entry["trace_id"] != "trace-1" || entry["version"] != "1.2.3" {
		t.Errorf("missing context fields: %v", entry)
	}
}

func TestOddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)
	l.Warn(context.Background(), "odd", "dangling")

	entry := decode(t, &buf)
	if entry[badKey] != "dangling" {
		t.Errorf("expected dangling value under %s, got %v", badKey, entry)
	}
}

func TestSensitiveFieldsMasked(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)
	l.Info(context.Background(), "auth", "token", "abc", "webhook_secret", "s3cr3t", "user_id", "u1")

	entry := decode(t, &buf)
	if entry["token"] != "******" || entry["webhook_secret"] != "******" {
		t.Errorf("sensitive fields not masked: %v", entry)
	}
	if entry["user_id"] != "u1" {
		t.Errorf("non-sensitive field changed: %v", entry)
	}
}

func TestDesensitizationDisabled(t *testing.T) {
	d := NewDesensitizer(&config.Desensitization{Enabled: false, SensitiveFields: []string{"token"}})
	out := d.DesensitizeFields(logrus.Fields{"token": "abc"})
	if out["token"] != "abc" {
		t.Errorf("expected value untouched when disabled")
	}
}
