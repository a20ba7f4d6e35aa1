// Transcript Viewer - Real-time transcription display
// Consumes transcript events from Kafka and/or NATS and pushes them to
// browsers over WebSocket.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"speech-relay-service/internal/events"
	"speech-relay-service/internal/observability/logging"
)

func consumeKafka(ctx context.Context, hub *Hub, brokers, topic string) {
	// Partition reader without consumer group
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   strings.Split(brokers, ","),
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-1*time.Hour)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to seek, reading from current offset")
	}

	log.Info().Str("topic", topic).Msg("Consuming from Kafka partition 0 (last hour)")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read error")
			time.Sleep(time.Second)
			continue
		}
		dispatch(hub, msg.Value)
	}
}

func subscribeNATS(url string, hub *Hub, subjects ...string) (*nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("transcript-viewer"))
	if err != nil {
		return nil, err
	}
	for _, subject := range subjects {
		if _, err := nc.Subscribe(subject, func(m *nats.Msg) {
			dispatch(hub, m.Data)
		}); err != nil {
			nc.Close()
			return nil, err
		}
		log.Info().Str("subject", subject).Msg("Subscribed to NATS")
	}
	return nc, nil
}

func dispatch(hub *Hub, data []byte) {
	event, err := decodeEvent(data)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping event")
		return
	}
	log.Debug().
		Str("eventType", event.EventType).
		Str("sessionId", event.SessionID).
		Str("text", truncate(event.Text, 40)).
		Msg("Received event")
	hub.broadcast <- event
}

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "", "Kafka brokers (comma-separated); empty disables Kafka")
	topicInterim := flag.String("topic-interim", events.DefaultTopicInterim, "Interim transcript topic")
	topicFinal := flag.String("topic-final", events.DefaultTopicFinal, "Final transcript topic")
	natsURL := flag.String("nats", "", "NATS URL; empty disables NATS")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console", Output: os.Stderr})

	hub := newHub()
	go hub.run()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *brokers != "" {
		go consumeKafka(ctx, hub, *brokers, *topicInterim)
		go consumeKafka(ctx, hub, *brokers, *topicFinal)
	}
	if *natsURL != "" {
		nc, err := subscribeNATS(*natsURL, hub, events.DefaultSubjectInterim, events.DefaultSubjectFinal)
		if err != nil {
			log.Fatal().Err(err).Str("url", *natsURL).Msg("Failed to connect to NATS")
		}
		defer nc.Drain()
	}
	if *brokers == "" && *natsURL == "" {
		log.Warn().Msg("No event source configured, pass -brokers and/or -nats")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", indexHandler)
	mux.HandleFunc("/ws", wsHandler(hub))

	server := &http.Server{Addr: ":" + *port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", "http://localhost:"+*port).Msg("Transcript Viewer starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
