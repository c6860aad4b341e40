package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestLoggerLevelAndServiceField(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "api", "warn", false)

	log.Info().Msg("dropped")
	log.Warn().Msg("kept")

	var line map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if line["service"] != "api" || line["message"] != "kept" || line["level"] != "warn" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestUnknownLevelMeansInfo(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "api", "chatty", false)
	log.Debug().Msg("dropped")
	log.Info().Msg("kept")
	if bytes.Count(buf.Bytes(), []byte("\n")) != 1 {
		t.Fatalf("expected exactly one line, got %q", buf.String())
	}
}
