package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/akshat5015/farmers/internal/session"
)

func TestTranscript_Append(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTranscript(&buf)

	at := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	tr.Append(session.Message{Sender: session.SenderUser, Text: "is this blight?", SentAt: at})
	tr.Append(session.Message{Sender: session.SenderAssistant, Text: "Likely early blight.", SentAt: at})

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out)
	}
	if !strings.Contains(lines[0], "You") || !strings.Contains(lines[0], "is this blight?") {
		t.Fatalf("bad user line: %q", lines[0])
	}
	if !strings.Contains(lines[0], "09:26") || !strings.Contains(lines[0], "✓") {
		t.Fatalf("user line missing meta: %q", lines[0])
	}
	if !strings.Contains(lines[1], "Assistant") || strings.Contains(lines[1], "✓") {
		t.Fatalf("bad assistant line: %q", lines[1])
	}
}

func TestTranscript_ComposingAndDelivered(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTranscript(&buf)

	tr.Composing(true)
	tr.Composing(false)
	tr.Delivered()

	out := buf.String()
	if strings.Count(out, "typing") != 1 {
		t.Fatalf("expected one typing indicator, got %q", out)
	}
	if !strings.Contains(out, "✓✓") {
		t.Fatalf("expected delivery ticks, got %q", out)
	}
}
