package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud", Format: "json"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestLogSanitizeWithFieldsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")
	log, err := New(Config{
		Level:      "info",
		Outputs:    []string{"file"},
		OutputFile: path,
		Format:     "json",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log.WithFields(map[string]interface{}{"component": "gateway"}).
		LogSanitize("BTCUSDT", "1", 200, 3)
	_ = log.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log line is not valid json: %v\n%s", err, data)
	}
	if entry["msg"] != "sanitize_event" {
		t.Fatalf("unexpected message: %v", entry["msg"])
	}
	if entry["component"] != "gateway" {
		t.Fatalf("WithFields context missing: %v", entry)
	}
	if entry["symbol"] != "BTCUSDT" || entry["corrected"] != float64(3) {
		t.Fatalf("sanitize fields missing: %v", entry)
	}
}
