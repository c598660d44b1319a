package speech

import (
	"io"
	"log"
	"sync"
)

// Sink consumes synthesized PCM bytes and performs delivery (e.g. piping to a
// local audio player). Implementations should tolerate Reset at any moment.
type Sink interface {
	WritePCM(pcm []byte)
	FlushTail()
	// Reset drops anything queued immediately (used when an utterance is replaced).
	Reset()
}

// NopSink discards audio. Used when no output device is wired.
type NopSink struct{}

func (NopSink) WritePCM([]byte) {}
func (NopSink) FlushTail()      {}
func (NopSink) Reset()          {}

// WriterSink writes PCM to an io.Writer, typically a pipe into an external
// player process. Reset only marks a boundary; a raw byte stream has no
// queued frames to drop.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink { return &WriterSink{w: w} }

func (s *WriterSink) WritePCM(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(pcm); err != nil {
		log.Printf("audio sink write failed: %v", err)
	}
}

func (s *WriterSink) FlushTail() {}
func (s *WriterSink) Reset()     {}
