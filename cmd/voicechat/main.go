// Command voicechat is a terminal client for a realtime voice assistant.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"

	voicechat "github.com/koscakluka/ema-realtime/core"
	"github.com/koscakluka/ema-realtime/core/realtime"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "voicechat:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if cfg.PrintSchema {
		return printSchemas(os.Stdout)
	}

	// The terminal belongs to the UI; diagnostics go to a file or nowhere.
	log.SetOutput(io.Discard)
	if cfg.LogFile != "" {
		logFile, err := tea.LogToFile(cfg.LogFile, "voicechat")
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer logFile.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bootstrap, err := resolveBootstrap(ctx, cfg)
	if err != nil {
		return err
	}

	devices, err := newDevices(cfg.Capture)
	if err != nil {
		return err
	}
	defer devices.Close()

	session := voicechat.New(
		voicechat.WithRealtimeURL(cfg.RealtimeURL),
		voicechat.WithAudioOutput(devices.openOutput),
		voicechat.WithMicrophone(devices.openMicrophone),
		voicechat.WithDebugEnabled(cfg.Debug),
		voicechat.WithStateCallback(func(state voicechat.State) {
			log.Printf("session state: %s", state)
		}),
	)
	defer session.Close()
	session.SetBootstrap(bootstrap)

	program := tea.NewProgram(newModel(ctx, session), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	return nil
}

// resolveBootstrap initializes a profile session when a profile is given and
// otherwise falls back to the configured voice with default instructions.
func resolveBootstrap(ctx context.Context, cfg config) (voicechat.Bootstrap, error) {
	bootstrap := voicechat.Bootstrap{
		BackendBaseURL: cfg.BackendURL,
		VoiceID:        cfg.Voice,
	}
	if cfg.ProfileID == "" {
		return bootstrap, nil
	}

	session, err := realtime.NewBootstrapClient(cfg.BackendURL).InitSession(ctx, cfg.ProfileID, cfg.Goals)
	if err != nil {
		return voicechat.Bootstrap{}, fmt.Errorf("failed to initialize profile %q: %w", cfg.ProfileID, err)
	}
	log.Printf("initialized session %s for profile %s", session.SessionID, cfg.ProfileID)

	bootstrap.Instructions = session.SystemInstructions
	if session.VoicePreset != "" {
		bootstrap.VoiceID = session.VoicePreset
	}
	return bootstrap, nil
}

func printSchemas(w io.Writer) error {
	schemas := make(map[string]any)
	for _, messageType := range realtime.OutboundTypes() {
		schema, err := realtime.Schema(messageType)
		if err != nil {
			return err
		}
		schemas[messageType] = schema
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(schemas)
}
