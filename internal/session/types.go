package session

import (
	"context"
	"time"
)

// State is the screen/phase of a conversation session. Chatting is terminal
// until Reset discards the session and starts over at AwaitingUpload.
type State int

const (
	StateAwaitingUpload State = iota
	StateAnalyzing
	StateVoiceLocked
	StateChatting
)

func (s State) String() string {
	switch s {
	case StateAwaitingUpload:
		return "awaiting-upload"
	case StateAnalyzing:
		return "analyzing"
	case StateVoiceLocked:
		return "voice-locked"
	case StateChatting:
		return "chatting"
	}
	return "unknown"
}

// Mode selects how assistant replies are delivered.
type Mode int

const (
	ModeText Mode = iota
	ModeVoice
)

func (m Mode) String() string {
	if m == ModeVoice {
		return "voice"
	}
	return "text"
}

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one transcript entry. Immutable once created except Delivered,
// which flips true on a user message only after its paired assistant reply
// has been appended.
type Message struct {
	ID        string
	Sender    Sender
	Text      string
	SentAt    time.Time
	Delivered bool
}

// Assist is the remote analysis/chat boundary.
type Assist interface {
	AnalyzeImage(ctx context.Context, imageDataURI, language string) (string, error)
	Ask(ctx context.Context, question string) (string, error)
}

// CaptureHandlers receive speech-to-text lifecycle and transcript events for
// one capture session. OnResult fires with interim text repeatedly and with
// the final text exactly once, after which the session ends.
type CaptureHandlers struct {
	OnResult func(text string, final bool)
	OnStart  func()
	OnEnd    func()
	OnError  func(err error)
}

// Capture is the speech-to-text capability. Available may report false on
// hosts without a recognition engine; the controller then disables the
// affordance rather than failing.
type Capture interface {
	Available() bool
	Configure(locale string)
	Start(h CaptureHandlers) error
	Stop() error
}

// Playback is the text-to-speech capability. Speak replaces any utterance in
// progress; Ready reports whether the voice catalog has loaded. Prime issues
// the silent utterance that binds playback to a user gesture.
type Playback interface {
	Ready() bool
	Prime()
	Speak(text, locale string)
	Cancel()
}

// TranscriptSink receives appended messages, fire-and-forget.
type TranscriptSink interface {
	Append(m Message)
}

// Hooks notify the consumer surface of session changes beyond transcript
// appends. All fields are optional.
type Hooks struct {
	StateChanged     func(s State)
	Composing        func(on bool)
	InputChanged     func(text string)
	Listening        func(on bool)
	MessageDelivered func(id string)
}

// LocaleFor maps the session language choice to a speech locale tag.
func LocaleFor(language string) string {
	if language == "hi" {
		return "hi-IN"
	}
	return "en-US"
}

type nopSink struct{}

func (nopSink) Append(Message) {}

// nopCapture stands in when the host has no recognition engine.
type nopCapture struct{}

func (nopCapture) Available() bool                { return false }
func (nopCapture) Configure(string)               {}
func (nopCapture) Start(h CaptureHandlers) error  { return nil }
func (nopCapture) Stop() error                    { return nil }

// nopPlayback stands in when the host has no synthesis engine.
type nopPlayback struct{}

func (nopPlayback) Ready() bool               { return false }
func (nopPlayback) Prime()                    {}
func (nopPlayback) Speak(text, locale string) {}
func (nopPlayback) Cancel()                   {}
