// Command speechctl runs a live transcript session in the terminal. Speech
// comes from the configured recognition provider and Send goes to the relay
// endpoint.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"speech-relay-service/internal/app"
	"speech-relay-service/internal/clipboard"
	"speech-relay-service/internal/config"
	"speech-relay-service/internal/observability/logging"
	"speech-relay-service/internal/relay"
	"speech-relay-service/internal/service/session"
)

func main() {
	cfg := config.Load()

	endpoint := flag.String("endpoint", cfg.Relay.ClientEndpoint, "Relay endpoint URL")
	provider := flag.String("stt", cfg.STT.Provider, "Recognition provider: mock, google, none")
	language := flag.String("language", cfg.STT.LanguageCode, "Initial recognition language")
	logFile := flag.String("log", "", "Write logs to this file")
	flag.Parse()

	var out io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	logging.Init(logging.Config{Level: cfg.Observability.LogLevel, Format: "json", Output: out})

	sttCfg := cfg.STT
	sttCfg.Provider = *provider
	factory, err := app.RecognitionFactory(sttCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recognition: %v\n", err)
		os.Exit(1)
	}

	ctrl := session.NewController(session.Options{
		Factory:  factory,
		Sender:   relay.NewClient(*endpoint, cfg.Relay.ClientTimeout),
		Provider: *provider,
		Language: *language,
	})

	p := tea.NewProgram(newModel(ctrl, clipboard.System{}, ctrl.Available()), tea.WithAltScreen())
	ctrl.Subscribe(func(s session.Snapshot) {
		p.Send(snapshotMsg(s))
	})

	_, runErr := p.Run()
	_ = ctrl.Stop()
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "speechctl: %v\n", runErr)
		os.Exit(1)
	}
}
