package logging

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter("info", FormatJSON, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	log.Debug("hidden")
	log.Info("retrieve: chunk complete", zap.String("variable", "geopotential"))
	log.Sync()

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug message logged at info level")
	}
	if !strings.Contains(out, `"variable":"geopotential"`) {
		t.Errorf("expected JSON field in %q", out)
	}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter("debug", FormatConsole, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	log.Debug("visible")
	log.Sync()
	if !strings.Contains(buf.String(), "DEBUG") {
		t.Errorf("expected capital level in %q", buf.String())
	}
}

func TestNewInvalid(t *testing.T) {
	if _, err := New("loud", FormatConsole); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	l := zap.NewExample()
	if OrNop(l) != l {
		t.Error("OrNop must return the given logger")
	}
}
