package app

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerWithMergesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf).With(map[string]interface{}{"code": "ABC234", "shared": "base"})
	log.Info("classroom config refreshed", map[string]interface{}{"shared": "call", "attempt": 1})

	var evt LogEvent
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if evt.Level != "info" || evt.Message != "classroom config refreshed" {
		t.Fatalf("unexpected event: %#v", evt)
	}
	if evt.Fields["code"] != "ABC234" {
		t.Fatalf("base field missing: %#v", evt.Fields)
	}
	if evt.Fields["shared"] != "call" {
		t.Fatalf("per-call field must win over the base: %#v", evt.Fields)
	}
	if _, ok := evt.Fields["attempt"]; !ok {
		t.Fatalf("per-call field missing: %#v", evt.Fields)
	}
}

func TestLoggerWithDoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&buf)
	_ = parent.With(map[string]interface{}{"code": "ABC234"})
	parent.Error("store write failed", nil)

	if strings.Contains(buf.String(), "ABC234") {
		t.Fatalf("parent logger picked up derived fields: %s", buf.String())
	}
}
