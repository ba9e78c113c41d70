package telemetry

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestInfoWritesJSONLineWithFields(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Info("gateway.attempt", map[string]any{"provider": "openai", "succeeded": true})

	line := strings.TrimSpace(buf.String())
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("decode log json: %v (%s)", err, line)
	}
	for _, key := range []string{"ts", "level", "msg", "provider", "succeeded"} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("missing log field %s in %s", key, line)
		}
	}
	if payload["level"] != "info" || payload["msg"] != "gateway.attempt" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Error("knowledge.persist_failed", nil)

	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error level, got %s", buf.String())
	}
}
