// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is built once at startup and passed to every component.
type Config struct {
	Service       ServiceConfig
	Relay         RelayConfig
	STT           STTConfig
	Kafka         KafkaConfig
	NATS          NATSConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Principal   string
	HTTPPort    string
	MetricsAddr string
	Env         string
}

// RelayConfig holds the relay endpoint and relay client settings.
type RelayConfig struct {
	APIKey   string // GEMINI_API_KEY; empty means every relay request fails with 500
	Provider string // gemini, mock, exec
	Model    string
	BaseURL  string
	Command  string // exec provider command line
	Timeout  time.Duration

	ClientEndpoint string
	ClientTimeout  time.Duration
}

// STTConfig selects and tunes the recognition source.
type STTConfig struct {
	Provider        string // mock, google, none
	LanguageCode    string
	SampleRateHz    int
	InterimResults  bool
	AudioEncoding   string
	ScriptPath      string // mock provider script (YAML); built-in script when empty
	CredentialsFile string
}

// KafkaConfig holds transcript event publishing settings.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicInterim string
	TopicFinal   string
	Principal    string
}

// NATSConfig holds NATS publishing settings. An empty URL disables NATS.
type NATSConfig struct {
	URL            string
	SubjectInterim string
	SubjectFinal   string
}

// ObservabilityConfig holds logging and tracing settings.
type ObservabilityConfig struct {
	LogLevel     string
	LogFormat    string
	OTLPEndpoint string
	OTLPInsecure bool
}

// Load reads the environment. Unparseable values fall back to defaults.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-speech-relay")
	env := envOrDefault("ENV", "prod")

	logFormat := "json"
	if env == "dev" {
		logFormat = "console"
	}

	return &Config{
		Service: ServiceConfig{
			Principal:   principal,
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
			Env:         env,
		},
		Relay: RelayConfig{
			APIKey:         os.Getenv("GEMINI_API_KEY"),
			Provider:       envOrDefault("RELAY_PROVIDER", "gemini"),
			Model:          envOrDefault("RELAY_MODEL", "gemini-3-flash"),
			BaseURL:        os.Getenv("RELAY_BASE_URL"),
			Command:        os.Getenv("RELAY_COMMAND"),
			Timeout:        envOrDefaultDuration("RELAY_TIMEOUT", 30*time.Second),
			ClientEndpoint: envOrDefault("RELAY_ENDPOINT", "http://localhost:8080/api/function"),
			ClientTimeout:  envOrDefaultDuration("RELAY_CLIENT_TIMEOUT", 60*time.Second),
		},
		STT: STTConfig{
			Provider:        envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:    envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:    envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			InterimResults:  envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:   envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			ScriptPath:      os.Getenv("STT_SCRIPT_PATH"),
			CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", nil),
			TopicInterim: envOrDefault("KAFKA_TOPIC_INTERIM", "speech.transcript.interim"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "speech.transcript.final"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		NATS: NATSConfig{
			URL:            os.Getenv("NATS_URL"),
			SubjectInterim: envOrDefault("NATS_SUBJECT_INTERIM", "speech.transcript.interim"),
			SubjectFinal:   envOrDefault("NATS_SUBJECT_FINAL", "speech.transcript.final"),
		},
		Observability: ObservabilityConfig{
			LogLevel:     envOrDefault("LOG_LEVEL", "info"),
			LogFormat:    envOrDefault("LOG_FORMAT", logFormat),
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			OTLPInsecure: envOrDefaultBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
