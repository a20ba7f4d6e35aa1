// Command relayclient sends one prompt to the relay endpoint and prints the
// display string a session would show.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"speech-relay-service/internal/config"
	"speech-relay-service/internal/observability/logging"
	"speech-relay-service/internal/relay"
)

func main() {
	cfg := config.Load()

	endpoint := flag.String("endpoint", cfg.Relay.ClientEndpoint, "Relay endpoint URL")
	timeout := flag.Duration("timeout", cfg.Relay.ClientTimeout, "Request timeout")
	raw := flag.Bool("raw", false, "Print typed errors instead of display strings and exit non-zero on failure")
	flag.Parse()

	logging.Init(logging.Config{Level: "warn", Format: "console", Output: os.Stderr})

	prompt := strings.Join(flag.Args(), " ")
	if prompt == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read prompt from stdin")
		}
		prompt = string(data)
	}

	client := relay.NewClient(*endpoint, *timeout)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if !*raw {
		fmt.Println(client.Send(ctx, prompt))
		return
	}

	answer, err := client.Do(ctx, prompt)
	if err != nil {
		var se *relay.StatusError
		if errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "status %d: %s\n", se.Code, se.Message)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
	fmt.Println(answer)
}
