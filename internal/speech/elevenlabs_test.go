package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type memSink struct {
	mu     sync.Mutex
	events []string
}

func (s *memSink) WritePCM(pcm []byte) {
	s.mu.Lock()
	s.events = append(s.events, "write:"+string(pcm))
	s.mu.Unlock()
}

func (s *memSink) FlushTail() {
	s.mu.Lock()
	s.events = append(s.events, "flush")
	s.mu.Unlock()
}

func (s *memSink) Reset() {
	s.mu.Lock()
	s.events = append(s.events, "reset")
	s.mu.Unlock()
}

func (s *memSink) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}

func (s *memSink) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range s.list() {
			if e == want {
				return
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q; got %v", want, s.list())
}

const voicesJSON = `{"voices":[
	{"voice_id":"v-en","name":"Meadow","labels":{"language":"en"}},
	{"voice_id":"v-hi","name":"Kisan","labels":{"language":"hi"}}
]}`

func newTestEngine(t *testing.T, sink Sink, handler http.HandlerFunc) (*Engine, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	e := NewEngine("key", "v-default", sink)
	e.apiBase = srv.URL
	return e, srv
}

func TestRefreshVoices_SetsReady(t *testing.T) {
	sink := &memSink{}
	e, _ := newTestEngine(t, sink, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		_, _ = w.Write([]byte(voicesJSON))
	})

	if e.Ready() {
		t.Fatalf("engine must start not-ready")
	}
	if err := e.RefreshVoices(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !e.Ready() {
		t.Fatalf("expected ready after catalog load")
	}
}

func TestSpeak_NoopBeforeCatalogLoads(t *testing.T) {
	sink := &memSink{}
	hit := false
	e, _ := newTestEngine(t, sink, func(w http.ResponseWriter, r *http.Request) { hit = true })

	e.Speak("hello", "en-US")
	time.Sleep(20 * time.Millisecond)
	if hit {
		t.Fatalf("speak before catalog load must not reach the network")
	}
	if len(sink.list()) != 0 {
		t.Fatalf("no audio expected: %v", sink.list())
	}
}

func TestSpeak_PicksVoiceByLocale(t *testing.T) {
	sink := &memSink{}
	var mu sync.Mutex
	var paths []string
	e, _ := newTestEngine(t, sink, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/voices" {
			_, _ = w.Write([]byte(voicesJSON))
			return
		}
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte("pcm-bytes"))
	})
	if err := e.RefreshVoices(context.Background()); err != nil {
		t.Fatal(err)
	}

	e.Speak("namaste", "hi-IN")
	sink.waitFor(t, "write:pcm-bytes")
	sink.waitFor(t, "flush")

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || !strings.HasPrefix(paths[0], "/v1/text-to-speech/v-hi/") {
		t.Fatalf("expected hi voice, got %v", paths)
	}
}

func TestPickVoice_FallsBackToDefault(t *testing.T) {
	e := NewEngine("key", "v-default", NopSink{})
	e.voices = []Voice{{ID: "v-en", Labels: map[string]string{"language": "en"}}}
	if got := e.pickVoiceLocked("ta-IN"); got != "v-default" {
		t.Fatalf("expected configured default, got %q", got)
	}
	e.defaultVoiceID = ""
	if got := e.pickVoiceLocked("ta-IN"); got != "v-en" {
		t.Fatalf("expected first catalog voice, got %q", got)
	}
}

func TestSpeak_ReplacesUtteranceInProgress(t *testing.T) {
	sink := &memSink{}
	release := make(chan struct{})
	e, _ := newTestEngine(t, sink, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/voices" {
			_, _ = w.Write([]byte(voicesJSON))
			return
		}
		if strings.Contains(r.URL.Path, "v-en") {
			// first utterance: emit one chunk then stall until cancelled
			w.(http.Flusher).Flush()
			_, _ = w.Write([]byte("first-chunk"))
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
			case <-release:
			}
			return
		}
		_, _ = w.Write([]byte("second-chunk"))
	})
	defer close(release)
	if err := e.RefreshVoices(context.Background()); err != nil {
		t.Fatal(err)
	}

	e.Speak("long first utterance", "en-US")
	sink.waitFor(t, "write:first-chunk")

	e.Speak("replacement", "hi-IN")
	sink.waitFor(t, "write:second-chunk")

	var resetIdx, secondIdx int
	for i, ev := range sink.list() {
		if ev == "reset" && resetIdx == 0 {
			resetIdx = i
		}
		if ev == "write:second-chunk" {
			secondIdx = i
		}
	}
	if resetIdx == 0 {
		t.Fatalf("replacing speak must reset the sink: %v", sink.list())
	}
	if secondIdx < resetIdx {
		t.Fatalf("second utterance audio arrived before the first was cancelled: %v", sink.list())
	}
}

func TestCancel_StopsStreaming(t *testing.T) {
	sink := &memSink{}
	e, _ := newTestEngine(t, sink, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/voices" {
			_, _ = w.Write([]byte(voicesJSON))
			return
		}
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("chunk"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	if err := e.RefreshVoices(context.Background()); err != nil {
		t.Fatal(err)
	}

	e.Speak("hello", "en-US")
	sink.waitFor(t, "write:chunk")
	e.Cancel()
	sink.waitFor(t, "reset")

	// idempotent
	e.Cancel()
}

func TestPrime_WritesSilenceLocally(t *testing.T) {
	sink := &memSink{}
	hit := false
	e, _ := newTestEngine(t, sink, func(w http.ResponseWriter, r *http.Request) { hit = true })

	e.Prime()
	events := sink.list()
	if len(events) != 2 || !strings.HasPrefix(events[0], "write:") || events[1] != "flush" {
		t.Fatalf("expected one silent write + flush, got %v", events)
	}
	if hit {
		t.Fatalf("prime must not hit the network")
	}
}
