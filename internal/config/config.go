package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AssistBaseURL  string
	AssemblyAIKey  string
	ElevenLabsKey  string
	DefaultVoiceID string
	Language       string
	LogFile        string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded")
	}

	base := os.Getenv("ASSIST_BASE_URL")
	if base == "" {
		base = "http://localhost:5001"
	}

	assemblyAIKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if assemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - voice capture will be disabled")
	}

	elevenKey := os.Getenv("ELEVENLABS_API_KEY")
	if elevenKey == "" {
		log.Println("Warning: ELEVENLABS_API_KEY not set - speech playback will be disabled")
	}

	voiceID := os.Getenv("ELEVENLABS_VOICE_ID")
	if voiceID == "" {
		log.Println("Warning: ELEVENLABS_VOICE_ID not set - falling back to first catalog voice")
	}

	lang := os.Getenv("ASSIST_LANGUAGE")
	if lang == "" {
		lang = "en"
	}

	log.Printf("config: ASSIST_BASE_URL=%s language=%s", base, lang)
	return Config{
		AssistBaseURL:  base,
		AssemblyAIKey:  assemblyAIKey,
		ElevenLabsKey:  elevenKey,
		DefaultVoiceID: voiceID,
		Language:       lang,
		LogFile:        os.Getenv("LOG_FILE"),
	}
}
