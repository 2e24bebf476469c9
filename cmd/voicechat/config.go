package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/koscakluka/ema-realtime/core/realtime"
)

const (
	captureMiniaudio = "miniaudio"
	capturePortaudio = "portaudio"
)

type config struct {
	BackendURL  string
	ProfileID   string
	Goals       []string
	Voice       string
	RealtimeURL string
	Capture     string
	Debug       bool
	LogFile     string
	PrintSchema bool
}

// loadConfig reads .env, then the environment, then flags; later sources win.
func loadConfig(args []string) (config, error) {
	_ = godotenv.Load()

	cfg := config{
		BackendURL:  envOr("VOICECHAT_BACKEND_URL", "http://localhost:8000"),
		ProfileID:   os.Getenv("VOICECHAT_PROFILE_ID"),
		Voice:       envOr("VOICECHAT_VOICE", "ara"),
		RealtimeURL: envOr("VOICECHAT_REALTIME_URL", realtime.DefaultURL),
		Capture:     envOr("VOICECHAT_CAPTURE", captureMiniaudio),
		LogFile:     os.Getenv("VOICECHAT_LOG_FILE"),
	}
	if debug, err := strconv.ParseBool(os.Getenv("VOICECHAT_DEBUG")); err == nil {
		cfg.Debug = debug
	}

	var goals string
	flags := flag.NewFlagSet("voicechat", flag.ContinueOnError)
	flags.StringVar(&cfg.BackendURL, "backend", cfg.BackendURL, "backend base URL serving /session and /api/session/init")
	flags.StringVar(&cfg.ProfileID, "profile", cfg.ProfileID, "profile to initialize the session with")
	flags.StringVar(&goals, "goals", "", "comma separated session goals, used with -profile")
	flags.StringVar(&cfg.Voice, "voice", cfg.Voice, "voice used when the profile does not pick one")
	flags.StringVar(&cfg.RealtimeURL, "realtime-url", cfg.RealtimeURL, "realtime websocket endpoint")
	flags.StringVar(&cfg.Capture, "capture", cfg.Capture, "capture backend: miniaudio or portaudio")
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, "start with the debug log visible")
	flags.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "write diagnostic logs to this file")
	flags.BoolVar(&cfg.PrintSchema, "print-schema", false, "print the JSON schema of every outbound message and exit")
	if err := flags.Parse(args); err != nil {
		return config{}, err
	}

	for _, goal := range strings.Split(goals, ",") {
		if goal = strings.TrimSpace(goal); goal != "" {
			cfg.Goals = append(cfg.Goals, goal)
		}
	}
	switch cfg.Capture {
	case captureMiniaudio, capturePortaudio:
	default:
		return config{}, fmt.Errorf("unknown capture backend %q", cfg.Capture)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
