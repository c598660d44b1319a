package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/akshat5015/farmers/internal/assist"
	"github.com/akshat5015/farmers/internal/capture"
	"github.com/akshat5015/farmers/internal/config"
	"github.com/akshat5015/farmers/internal/render"
	"github.com/akshat5015/farmers/internal/session"
	"github.com/akshat5015/farmers/internal/speech"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()
	if cfg.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		})
	}

	client := assist.NewClient(cfg.AssistBaseURL)
	capt := capture.NewEngine(cfg.AssemblyAIKey)
	play := speech.NewEngine(cfg.ElevenLabsKey, cfg.DefaultVoiceID, audioSink())
	transcript := render.NewTranscript(os.Stdout)

	ctrl := session.New(client, capt, play, transcript)
	ctrl.SetHooks(session.Hooks{
		StateChanged: func(s session.State) {
			if s == session.StateVoiceLocked {
				fmt.Println("voice mode ready - type /unlock to hear the assessment")
			}
		},
		Composing: transcript.Composing,
		InputChanged: func(text string) {
			if text != "" {
				fmt.Printf("\r> %s", text)
			}
		},
		Listening: func(on bool) {
			if on {
				fmt.Println("(listening... /mic to stop)")
			}
		},
		MessageDelivered: func(string) { transcript.Delivered() },
	})

	if cfg.ElevenLabsKey != "" {
		go func() {
			if err := play.RefreshVoices(context.Background()); err != nil {
				log.Printf("voice catalog load failed: %v", err)
			}
		}()
	}
	if capt.Available() {
		go pumpMic(capt)
	}

	fmt.Println("farmers - crop assistant")
	fmt.Println("commands: /upload <image> [en|hi] [text|voice], /unlock, /mic, /new, /quit")

	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		switch {
		case line == "/quit":
			ctrl.Reset()
			return
		case line == "/new":
			ctrl.Reset()
			fmt.Println("session discarded - upload a new image to begin")
		case line == "/unlock":
			if err := ctrl.Unlock(); err != nil {
				fmt.Println(err)
			}
		case line == "/mic":
			ctrl.ToggleCapture()
		case strings.HasPrefix(line, "/upload"):
			handleUpload(ctrl, line)
		case strings.HasPrefix(line, "/"):
			fmt.Printf("unknown command %q\n", line)
		default:
			if err := ctrl.Send(context.Background(), line); err != nil {
				if errors.Is(err, session.ErrNotChatting) {
					fmt.Println("upload an image first: /upload <image> [en|hi] [text|voice]")
				} else {
					fmt.Println(err)
				}
			}
		}
	}
}

func handleUpload(ctrl *session.Controller, line string) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		fmt.Println("usage: /upload <image> [en|hi] [text|voice]")
		return
	}
	language := "en"
	mode := session.ModeText
	for _, f := range fields[2:] {
		switch f {
		case "en", "hi":
			language = f
		case "voice":
			mode = session.ModeVoice
		case "text":
			mode = session.ModeText
		default:
			fmt.Printf("ignoring unknown option %q\n", f)
		}
	}

	uri, err := assist.ImageDataURI(fields[1])
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("analyzing image...")
	if err := ctrl.SubmitImage(context.Background(), uri, language, mode); err != nil {
		fmt.Printf("analysis failed: %v\n", err)
	}
}

// audioSink pipes synthesized PCM into a local player when one is installed,
// otherwise audio is discarded.
func audioSink() speech.Sink {
	path, err := exec.LookPath("aplay")
	if err != nil {
		log.Println("aplay not found - playback audio will be discarded")
		return speech.NopSink{}
	}
	cmd := exec.Command(path, "-q", "-f", "S16_LE", "-r", "48000", "-c", "1")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("audio player pipe failed: %v", err)
		return speech.NopSink{}
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		log.Printf("audio player start failed: %v", err)
		return speech.NopSink{}
	}
	return speech.NewWriterSink(stdin)
}

// pumpMic streams mic PCM (16kHz s16le mono) into the capture engine; chunks
// arriving while no capture session is active are dropped by the engine.
func pumpMic(capt *capture.Engine) {
	path, err := exec.LookPath("arecord")
	if err != nil {
		log.Println("arecord not found - voice input disabled")
		return
	}
	cmd := exec.Command(path, "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "raw")
	out, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("mic pipe failed: %v", err)
		return
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		log.Printf("mic start failed: %v", err)
		return
	}
	buf := make([]byte, 3200) // 100ms at 16kHz
	for {
		n, err := out.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			capt.Feed(chunk)
		}
		if err != nil {
			log.Printf("mic read ended: %v", err)
			return
		}
	}
}
