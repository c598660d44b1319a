package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// chatErrorText is appended as an assistant message when a chat turn fails.
const chatErrorText = "Sorry, an error occurred. Please try again."

var (
	ErrNoImage        = errors.New("session: no image selected")
	ErrBusy           = errors.New("session: a request is already in flight")
	ErrNotChatting    = errors.New("session: not in a chat")
	ErrNotVoiceLocked = errors.New("session: no pending voice unlock")
	ErrSessionActive  = errors.New("session: already started")
)

// Controller owns the conversation session: screen state, mode, the voice
// unlock gate, and the single-flight guard on the remote service. External
// adapters never mutate session state directly; their completions re-enter
// the controller and are applied only if the session epoch still matches,
// so results addressed to a discarded session are dropped.
type Controller struct {
	assist   Assist
	capture  Capture
	playback Playback
	sink     TranscriptSink
	hooks    Hooks
	now      func() time.Time

	mu          sync.Mutex
	state       State
	mode        Mode
	language    string
	locale      string
	epoch       int
	pending     bool
	capturing   bool
	heldInitial string
	input       string
	messages    []Message
}

// New constructs a Controller in AwaitingUpload. A nil capture or playback
// degrades to text-only behavior; a nil sink discards transcript appends.
func New(assist Assist, capture Capture, playback Playback, sink TranscriptSink) *Controller {
	if capture == nil {
		capture = nopCapture{}
	}
	if playback == nil {
		playback = nopPlayback{}
	}
	if sink == nil {
		sink = nopSink{}
	}
	return &Controller{
		assist:   assist,
		capture:  capture,
		playback: playback,
		sink:     sink,
		now:      time.Now,
		state:    StateAwaitingUpload,
		locale:   LocaleFor(""),
	}
}

// SetHooks registers consumer-surface callbacks. Call before use.
func (c *Controller) SetHooks(h Hooks) { c.hooks = h }

// SubmitImage validates and submits the uploaded image, blocking until the
// initial analysis resolves. On success the session moves to VoiceLocked
// (voice mode) or Chatting (text mode); on failure it reverts to
// AwaitingUpload and the error is returned for the surface to show.
func (c *Controller) SubmitImage(ctx context.Context, imageDataURI, language string, mode Mode) error {
	c.mu.Lock()
	if c.state != StateAwaitingUpload {
		c.mu.Unlock()
		return ErrSessionActive
	}
	if strings.TrimSpace(imageDataURI) == "" {
		c.mu.Unlock()
		return ErrNoImage
	}
	epoch := c.epoch
	c.state = StateAnalyzing
	c.mode = mode
	c.language = language
	c.locale = LocaleFor(language)
	c.pending = true
	if mode == ModeVoice && c.capture.Available() {
		c.capture.Configure(c.locale)
	}
	c.mu.Unlock()
	c.stateChanged(StateAnalyzing)

	text, err := c.assist.AnalyzeImage(ctx, imageDataURI, language)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	c.pending = false
	if err != nil {
		c.state = StateAwaitingUpload
		c.mu.Unlock()
		c.stateChanged(StateAwaitingUpload)
		return fmt.Errorf("analyze image: %w", err)
	}
	if c.mode == ModeVoice {
		// Hold the initial message until the unlock gesture; playing audio
		// before a user gesture violates host autoplay policy.
		c.heldInitial = text
		c.state = StateVoiceLocked
		c.mu.Unlock()
		c.stateChanged(StateVoiceLocked)
		return nil
	}
	c.state = StateChatting
	msg := c.appendLocked(SenderAssistant, text)
	c.mu.Unlock()
	c.stateChanged(StateChatting)
	c.sink.Append(msg)
	return nil
}

// Unlock performs the one-time voice unlock gesture: it primes the playback
// engine with a silent utterance, then renders and speaks the held initial
// assistant message exactly once.
func (c *Controller) Unlock() error {
	c.mu.Lock()
	if c.state != StateVoiceLocked {
		c.mu.Unlock()
		return ErrNotVoiceLocked
	}
	text := c.heldInitial
	c.heldInitial = ""
	c.state = StateChatting
	msg := c.appendLocked(SenderAssistant, text)
	locale := c.locale
	c.mu.Unlock()

	c.playback.Prime()
	c.stateChanged(StateChatting)
	c.sink.Append(msg)
	c.speak(text, locale)
	return nil
}

// Send runs one chat turn: the user message is appended optimistically, the
// composing indicator is shown, and the question goes to the remote service.
// Only one turn may be outstanding; a second attempt returns ErrBusy. On
// failure a fixed assistant error message is appended and the user message
// keeps Delivered == false.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	c.mu.Lock()
	if c.state != StateChatting {
		c.mu.Unlock()
		return ErrNotChatting
	}
	if c.pending {
		c.mu.Unlock()
		return ErrBusy
	}
	epoch := c.epoch
	c.pending = true
	c.input = ""
	user := c.appendLocked(SenderUser, text)
	mode, locale := c.mode, c.locale
	c.mu.Unlock()

	c.sink.Append(user)
	c.inputChanged("")
	c.composing(true)

	reply, err := c.assist.Ask(ctx, text)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	c.pending = false
	if err != nil {
		msg := c.appendLocked(SenderAssistant, chatErrorText)
		c.mu.Unlock()
		c.composing(false)
		c.sink.Append(msg)
		if mode == ModeVoice {
			c.speak(chatErrorText, locale)
		}
		return fmt.Errorf("ask: %w", err)
	}
	msg := c.appendLocked(SenderAssistant, reply)
	for i := range c.messages {
		if c.messages[i].ID == user.ID {
			c.messages[i].Delivered = true
			break
		}
	}
	c.mu.Unlock()

	c.composing(false)
	c.sink.Append(msg)
	if mode == ModeVoice {
		c.speak(reply, locale)
	}
	if c.hooks.MessageDelivered != nil {
		c.hooks.MessageDelivered(user.ID)
	}
	return nil
}

// ToggleCapture starts a capture session, or requests a stop if one is
// active. Start failures are logged, never surfaced: the affordance simply
// does nothing on hosts without recognition.
func (c *Controller) ToggleCapture() {
	if !c.capture.Available() {
		log.Println("capture: recognition not available on this host")
		return
	}
	c.mu.Lock()
	if c.state != StateChatting {
		c.mu.Unlock()
		return
	}
	if c.capturing {
		c.mu.Unlock()
		if err := c.capture.Stop(); err != nil {
			log.Printf("capture stop failed: %v", err)
		}
		return
	}
	c.capturing = true
	epoch := c.epoch
	c.mu.Unlock()

	err := c.capture.Start(CaptureHandlers{
		OnStart: func() { c.listening(true) },
		OnEnd: func() {
			c.mu.Lock()
			if c.epoch == epoch {
				c.capturing = false
			}
			c.mu.Unlock()
			c.listening(false)
		},
		OnError: func(err error) { log.Printf("capture error: %v", err) },
		OnResult: func(text string, final bool) {
			c.handleCaptureResult(epoch, text, final)
		},
	})
	if err != nil {
		c.mu.Lock()
		c.capturing = false
		c.mu.Unlock()
		log.Printf("capture start failed: %v", err)
	}
}

// handleCaptureResult mirrors interim transcripts into the input field and
// auto-submits the final one, which is equivalent to the user pressing send.
func (c *Controller) handleCaptureResult(epoch int, text string, final bool) {
	c.mu.Lock()
	if c.epoch != epoch || c.state != StateChatting {
		c.mu.Unlock()
		return
	}
	c.input = text
	c.mu.Unlock()
	c.inputChanged(text)
	if final {
		// Submit off the capture event goroutine so the engine is free to
		// finish its own teardown while the turn runs.
		go func() {
			if err := c.Send(context.Background(), text); err != nil {
				log.Printf("voice send failed: %v", err)
			}
		}()
	}
}

// Reset discards the session: transcript, held message, capture, any speaking
// utterance, and any in-flight remote call (its completion is dropped by the
// epoch check).
func (c *Controller) Reset() {
	c.mu.Lock()
	c.epoch++
	c.state = StateAwaitingUpload
	c.mode = ModeText
	c.language = ""
	c.locale = LocaleFor("")
	c.pending = false
	c.heldInitial = ""
	c.input = ""
	c.messages = nil
	wasCapturing := c.capturing
	c.capturing = false
	c.mu.Unlock()

	if wasCapturing {
		if err := c.capture.Stop(); err != nil {
			log.Printf("capture stop failed: %v", err)
		}
	}
	c.playback.Cancel()
	c.composing(false)
	c.inputChanged("")
	c.stateChanged(StateAwaitingUpload)
}

// State returns the current session phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns the session's delivery mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Input returns the current compose-field content (mirrors interim capture).
func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Capturing reports whether a capture session is active.
func (c *Controller) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Messages returns a copy of the transcript.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// appendLocked creates a message and appends it to the transcript. Caller
// holds c.mu; delivery to the sink happens after unlock.
func (c *Controller) appendLocked(sender Sender, text string) Message {
	m := Message{
		ID:     uuid.NewString(),
		Sender: sender,
		Text:   text,
		SentAt: c.now(),
	}
	c.messages = append(c.messages, m)
	return m
}

// speak plays assistant text if the voice catalog has loaded; otherwise it
// logs and drops the request rather than queueing it.
func (c *Controller) speak(text, locale string) {
	if !c.playback.Ready() {
		log.Println("playback: voices not loaded, skipping speak")
		return
	}
	c.playback.Speak(text, locale)
}

func (c *Controller) stateChanged(s State) {
	if c.hooks.StateChanged != nil {
		c.hooks.StateChanged(s)
	}
}

func (c *Controller) composing(on bool) {
	if c.hooks.Composing != nil {
		c.hooks.Composing(on)
	}
}

func (c *Controller) inputChanged(text string) {
	if c.hooks.InputChanged != nil {
		c.hooks.InputChanged(text)
	}
}

func (c *Controller) listening(on bool) {
	if c.hooks.Listening != nil {
		c.hooks.Listening(on)
	}
}
