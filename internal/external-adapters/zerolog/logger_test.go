package zerolog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ochairo/spyglass/internal/domain/interfaces"
)

// TestLoggerOutput tests that levels, messages, and fields reach the writer
func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)

	log.Debug("probing candidate", interfaces.F("path", "/usr/lib/libcoreclr.so"))
	log.Info("runtime detected", interfaces.F("base", 0x7f0000000000))
	log.Warn("discarding download")
	log.Error("resolution failed", interfaces.F("error", "no candidates"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("wrote %d lines, want 4", len(lines))
	}

	wantLevels := []string{"debug", "info", "warn", "error"}
	wantMessages := []string{"probing candidate", "runtime detected", "discarding download", "resolution failed"}
	for i, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("line %d is not JSON: %v", i, err)
		}
		if entry["level"] != wantLevels[i] {
			t.Errorf("line %d level = %v, want %s", i, entry["level"], wantLevels[i])
		}
		if entry["message"] != wantMessages[i] {
			t.Errorf("line %d message = %v, want %s", i, entry["message"], wantMessages[i])
		}
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first["path"] != "/usr/lib/libcoreclr.so" {
		t.Errorf("field path = %v, want the logged value", first["path"])
	}
	if _, ok := first["time"]; !ok {
		t.Error("timestamp field missing")
	}
}
