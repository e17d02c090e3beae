package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestNewWithOutputLevels(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		want  log.Level
	}{
		{level: "warn", want: log.WarnLevel},
		{level: "nonsense", want: log.InfoLevel},
		{level: "", want: log.InfoLevel},
		{level: "error", debug: true, want: log.DebugLevel},
	}
	for _, tt := range tests {
		logger := NewWithOutput(&bytes.Buffer{}, tt.level, "text", tt.debug)
		if logger.GetLevel() != tt.want {
			t.Errorf("level %q debug=%v: expected %s, got %s", tt.level, tt.debug, tt.want, logger.GetLevel())
		}
	}
}

func TestNewWithOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput(&buf, "info", "json", false)
	logger.WithField("board", "b1").Info("board.loaded")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if entry["board"] != "b1" || entry["msg"] != "board.loaded" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}
