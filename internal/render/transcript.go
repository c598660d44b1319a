package render

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/akshat5015/farmers/internal/session"
)

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	metaStyle      = lipgloss.NewStyle().Faint(true)
)

// Transcript renders session messages to a terminal, one line per message:
// sender label, text, HH:MM timestamp, and a tick for sent user messages.
type Transcript struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTranscript(w io.Writer) *Transcript { return &Transcript{w: w} }

func (t *Transcript) Append(m session.Message) {
	label := assistantStyle.Render("Assistant")
	tick := ""
	if m.Sender == session.SenderUser {
		label = userStyle.Render("You")
		tick = " ✓"
	}
	meta := metaStyle.Render(m.SentAt.Format("15:04") + tick)

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "%s  %s  %s\n", label, m.Text, meta)
}

// Composing prints or clears the typing indicator line.
func (t *Transcript) Composing(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if on {
		fmt.Fprintln(t.w, metaStyle.Render("assistant is typing..."))
	}
}

// Delivered marks the latest user message as read. With a line-oriented
// surface there is nothing to repaint, so it prints a second tick.
func (t *Transcript) Delivered() {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, metaStyle.Render("✓✓ delivered"))
}
