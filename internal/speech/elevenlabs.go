package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

const defaultAPIBase = "https://api.elevenlabs.io"

// Engine is a text-to-speech playback adapter over the ElevenLabs HTTP
// streaming surface. At most one utterance is speaking at a time: a new Speak
// cancels whatever is in progress (replace, not queue). Speak is a logged
// no-op until the voice catalog has loaded.
type Engine struct {
	apiKey         string
	defaultVoiceID string
	apiBase        string
	httpClient     *http.Client
	sink           Sink

	mu      sync.Mutex
	ready   bool
	voices  []Voice
	cancel  context.CancelFunc
}

// Voice is one catalog entry. Labels carry provider metadata; the "language"
// label is what locale matching keys on.
type Voice struct {
	ID     string            `json:"voice_id"`
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels"`
}

type voicesResponse struct {
	Voices []Voice `json:"voices"`
}

func NewEngine(apiKey, defaultVoiceID string, sink Sink) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{
		apiKey:         apiKey,
		defaultVoiceID: defaultVoiceID,
		apiBase:        defaultAPIBase,
		httpClient:     &http.Client{Timeout: 0},
		sink:           sink,
	}
}

// RefreshVoices loads the voice catalog and flips readiness. Hosts call it at
// startup and again whenever the provider signals a catalog change.
func (e *Engine) RefreshVoices(ctx context.Context) error {
	if e.apiKey == "" {
		return fmt.Errorf("playback api key is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.apiBase+"/v1/voices", nil)
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.apiKey)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("load voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("load voices: status=%d body=%s", resp.StatusCode, string(b))
	}
	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return fmt.Errorf("load voices: decode: %w", err)
	}

	e.mu.Lock()
	e.voices = vr.Voices
	e.ready = len(vr.Voices) > 0
	e.mu.Unlock()
	log.Printf("playback: %d voices loaded", len(vr.Voices))
	return nil
}

// Ready reports whether the voice catalog has loaded.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// Prime issues a silent utterance so later playback is bound to the user
// gesture that triggered it. No network round trip: a short run of zero PCM.
func (e *Engine) Prime() {
	silence := make([]byte, 9600) // 100ms of 48kHz s16le mono
	e.sink.WritePCM(silence)
	e.sink.FlushTail()
}

// Speak synthesizes text in the voice matching locale, cancelling any
// utterance already in progress first.
func (e *Engine) Speak(text, locale string) {
	e.mu.Lock()
	if !e.ready {
		e.mu.Unlock()
		log.Println("playback: voices not loaded, cannot speak")
		return
	}
	if e.cancel != nil {
		e.cancel()
		e.sink.Reset()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	voiceID := e.pickVoiceLocked(locale)
	e.mu.Unlock()

	go func() {
		defer cancel()
		if err := e.stream(ctx, voiceID, text, locale); err != nil && ctx.Err() == nil {
			log.Printf("playback stream error: %v", err)
		}
	}()
}

// Cancel stops the current utterance, if any, and drops queued audio.
func (e *Engine) Cancel() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.sink.Reset()
}

// pickVoiceLocked prefers a catalog voice whose language label matches the
// locale; otherwise the configured default, otherwise the first catalog
// voice. The locale tag still travels with the request for pronunciation.
func (e *Engine) pickVoiceLocked(locale string) string {
	lang := locale
	if i := strings.IndexByte(locale, '-'); i > 0 {
		lang = locale[:i]
	}
	for _, v := range e.voices {
		if v.Labels["language"] == lang {
			return v.ID
		}
	}
	log.Printf("playback: no voice for locale %q, using default", locale)
	if e.defaultVoiceID != "" {
		return e.defaultVoiceID
	}
	if len(e.voices) > 0 {
		return e.voices[0].ID
	}
	return ""
}

func (e *Engine) stream(ctx context.Context, voiceID, text, locale string) error {
	if voiceID == "" {
		return fmt.Errorf("no voice available")
	}
	lang := locale
	if i := strings.IndexByte(locale, '-'); i > 0 {
		lang = locale[:i]
	}
	body := map[string]any{
		"model_id":      "eleven_flash_v2_5",
		"text":          text,
		"language_code": lang,
		"voice_settings": map[string]any{
			"stability":        0.4,
			"similarity_boost": 0.7,
			"speed":            0.95,
		},
	}
	buf, _ := json.Marshal(body)
	u := e.apiBase + "/v1/text-to-speech/" + voiceID + "/stream?output_format=pcm_48000"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("playback http: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("playback http status=%d body=%s", resp.StatusCode, string(b))
	}

	chunk := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 && ctx.Err() == nil {
			out := make([]byte, n)
			copy(out, chunk[:n])
			e.sink.WritePCM(out)
		}
		if rerr != nil {
			if rerr == io.EOF {
				if ctx.Err() == nil {
					e.sink.FlushTail()
				}
				return nil
			}
			return fmt.Errorf("playback read: %w", rerr)
		}
	}
}
