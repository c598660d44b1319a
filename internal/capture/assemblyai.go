package capture

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akshat5015/farmers/internal/session"
)

const defaultStreamURL = "wss://streaming.assemblyai.com/v3/ws"

// Engine is a speech-to-text capture adapter over the AssemblyAI streaming
// API. One capture session runs at a time: interim turn updates stream to the
// handlers, and the end-of-turn transcript is delivered as the single final
// result, after which the session shuts itself down (one utterance per
// session, matching the send-on-final protocol).
type Engine struct {
	apiKey    string
	streamURL string

	mu     sync.Mutex
	locale string
	active *captureSession
}

type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	EndOfTurn  bool   `json:"end_of_turn"`
}

type terminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewEngine(apiKey string) *Engine {
	return &Engine{apiKey: apiKey, streamURL: defaultStreamURL, locale: "en-US"}
}

// Available reports whether the host can capture speech at all.
func (e *Engine) Available() bool { return e.apiKey != "" }

// Configure sets the locale tag used by subsequent capture sessions.
func (e *Engine) Configure(locale string) {
	e.mu.Lock()
	e.locale = locale
	e.mu.Unlock()
}

// Start opens a streaming session and begins delivering events to h. Starting
// while a session is active is an error; callers toggle via Stop instead.
func (e *Engine) Start(h session.CaptureHandlers) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		return fmt.Errorf("capture already active")
	}
	if e.apiKey == "" {
		return fmt.Errorf("capture api key is empty")
	}

	params := url.Values{}
	params.Set("sample_rate", "16000")
	params.Set("encoding", "pcm_s16le")
	params.Set("format_turns", "true")
	if lang := shortLang(e.locale); lang != "" {
		params.Set("language_code", lang)
	}
	wsURL := e.streamURL + "?" + params.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	headers := map[string][]string{"Authorization": {e.apiKey}}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("capture connect failed with status: %d", resp.StatusCode)
		}
		return fmt.Errorf("connect capture stream: %w", err)
	}

	s := &captureSession{
		conn:     conn,
		handlers: h,
		audio:    make(chan []byte, 1000),
		stopCh:   make(chan struct{}),
		onClosed: func() { e.clear() },
	}
	e.active = s

	go s.readLoop()
	go s.sendLoop()

	if h.OnStart != nil {
		h.OnStart()
	}
	log.Printf("capture session started (locale=%s)", e.locale)
	return nil
}

// Stop requests the active session to finalize. Any accumulated transcript is
// flushed as the final result before the session ends.
func (e *Engine) Stop() error {
	e.mu.Lock()
	s := e.active
	e.mu.Unlock()
	if s == nil {
		return nil
	}
	s.shutdown(true)
	return nil
}

// Feed queues mic PCM (16kHz mono s16le) for the active session. Audio
// arriving with no session running is dropped.
func (e *Engine) Feed(pcm []byte) {
	e.mu.Lock()
	s := e.active
	e.mu.Unlock()
	if s == nil {
		return
	}
	select {
	case s.audio <- pcm:
	default:
		log.Println("capture audio buffer full, dropping packet")
	}
}

func (e *Engine) clear() {
	e.mu.Lock()
	e.active = nil
	e.mu.Unlock()
}

// captureSession is one live websocket capture.
type captureSession struct {
	conn     *websocket.Conn
	handlers session.CaptureHandlers
	audio    chan []byte
	stopCh   chan struct{}
	stopOnce sync.Once
	onClosed func()

	accMu     sync.Mutex
	latest    string
	finalSent bool
}

func (s *captureSession) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("recovered from panic in capture read loop: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
			default:
				if s.handlers.OnError != nil {
					s.handlers.OnError(err)
				}
				s.shutdown(false)
			}
			return
		}
		s.handleMessage(message)
	}
}

func (s *captureSession) sendLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case pcm, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				log.Printf("capture audio send failed: %v", err)
				return
			}
		}
	}
}

func (s *captureSession) handleMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		log.Printf("capture: bad message: %v", err)
		return
	}
	switch base.Type {
	case "Begin":
		var msg beginMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		log.Printf("capture stream began: id=%s expires=%s", msg.ID, time.Unix(msg.ExpiresAt, 0).Format(time.RFC3339))
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		if msg.Transcript == "" {
			return
		}
		s.accMu.Lock()
		s.latest = msg.Transcript
		s.accMu.Unlock()
		if msg.EndOfTurn {
			s.emitFinal(msg.Transcript)
			s.shutdown(false)
			return
		}
		if s.handlers.OnResult != nil {
			s.handlers.OnResult(msg.Transcript, false)
		}
	case "Termination":
		var msg terminationMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		log.Printf("capture stream terminated: audio=%.2fs session=%.2fs", msg.AudioDurationSeconds, msg.SessionDurationSeconds)
		s.shutdown(false)
	case "Error":
		var msg errorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		if s.handlers.OnError != nil {
			s.handlers.OnError(fmt.Errorf("capture stream: %s", msg.Error))
		}
	default:
		log.Printf("capture: unknown message type %q", base.Type)
	}
}

// emitFinal delivers the final transcript at most once per session.
func (s *captureSession) emitFinal(text string) {
	text = strings.TrimSpace(text)
	s.accMu.Lock()
	already := s.finalSent
	if !already && text != "" {
		s.finalSent = true
	}
	s.accMu.Unlock()
	if already || text == "" {
		return
	}
	if s.handlers.OnResult != nil {
		s.handlers.OnResult(text, true)
	}
}

// shutdown tears the session down. With flush set, the latest transcript is
// promoted to the final result so a user-requested stop still submits what
// was heard.
func (s *captureSession) shutdown(flush bool) {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.conn != nil {
			terminate := map[string]string{"type": "Terminate"}
			_ = s.conn.WriteJSON(terminate)
			_ = s.conn.Close()
		}
		if flush {
			s.accMu.Lock()
			latest := s.latest
			s.accMu.Unlock()
			s.emitFinal(latest)
		}
		if s.onClosed != nil {
			s.onClosed()
		}
		if s.handlers.OnEnd != nil {
			s.handlers.OnEnd()
		}
		log.Println("capture session closed")
	})
}

// shortLang extracts the language part of a locale tag ("hi-IN" -> "hi").
func shortLang(locale string) string {
	if i := strings.IndexByte(locale, '-'); i > 0 {
		return locale[:i]
	}
	return locale
}
