package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLevel(t *testing.T) {
	l := New("debug")
	if l.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %s", l.GetLevel())
	}

	l = New("invalid")
	if l.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", l.GetLevel())
	}

	l = New("")
	if l.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback for empty level, got %s", l.GetLevel())
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	l := Component(NewWithWriter(&buf, "info"), "engine")
	l.Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"component":"engine"`) {
		t.Fatalf("component field missing: %s", out)
	}
	if !strings.Contains(out, `"time"`) {
		t.Fatalf("timestamp missing: %s", out)
	}
}
