package monitor

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"reasoner/pkg/llm"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" DEBUG ", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCustomHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCustomHandler(&buf, slog.LevelInfo))

	ctx := context.WithValue(context.Background(), llm.DebugDirContextKey, "abc123")
	logger.With("agent", "Reasoner").InfoContext(ctx, "reply generated", "chars", 4)
	logger.Debug("hidden")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record should be filtered, got %q", out)
	}
	for _, want := range []string{"[INFO]", "[abc123]", "reply generated", `agent="Reasoner"`, "chars=4"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestCustomHandler_Group(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCustomHandler(&buf, slog.LevelDebug))
	logger.WithGroup("llm").Debug("call", "model", "m1")

	if !strings.Contains(buf.String(), `llm.model="m1"`) {
		t.Fatalf("expected grouped key, got %q", buf.String())
	}
}

func TestCustomHandler_DynamicLevel(t *testing.T) {
	var buf bytes.Buffer
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelWarn)
	logger := slog.New(NewCustomHandler(&buf, lv))

	logger.Info("first")
	lv.Set(slog.LevelInfo)
	logger.Info("second")

	out := buf.String()
	if strings.Contains(out, "first") || !strings.Contains(out, "second") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCLIMonitor_OnMessage(t *testing.T) {
	var buf bytes.Buffer
	m := NewWriterMonitor(&buf)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	m.OnMessage(MonitorMessage{Timestamp: ts, MessageType: MessageTypeUser, ChannelID: "web", Username: "alice", Content: "hi"})
	m.OnMessage(MonitorMessage{Timestamp: ts, MessageType: MessageTypeAssistant, Content: "4"})
	m.OnMessage(MonitorMessage{Timestamp: ts, MessageType: MessageTypeAgent, Username: "Reasoner", Content: "x=5"})

	out := buf.String()
	for _, want := range []string{"[web/alice] hi", "[AI] 4", "[bus/Reasoner] x=5", "2024-01-02 03:04:05"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}
