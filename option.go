package rtagent

import (
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/pion/webrtc/v4"

	"github.com/codewandler/rtagent-go/events"
)

const (
	ApiKeyEnvVarNameShort = "OPENAI_KEY"
	ApiKeyEnvVarNameLong  = "OPENAI_API_KEY"
)

// APIKeyFromEnv returns the first credential found in the conventional
// environment variables, or "".
func APIKeyFromEnv() string {
	for _, name := range []string{ApiKeyEnvVarNameShort, ApiKeyEnvVarNameLong} {
		if k := os.Getenv(name); k != "" {
			return k
		}
	}
	return ""
}

type transportConfig struct {
	logger     *slog.Logger
	httpClient *http.Client
	localTrack webrtc.TrackLocal
}

type TransportOption func(*transportConfig)

func newTransportConfig(opts ...TransportOption) *transportConfig {
	cfg := &transportConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func WithLogger(logger *slog.Logger) TransportOption {
	return func(c *transportConfig) {
		c.logger = logger
	}
}

func WithDefaultLogger() TransportOption {
	return WithLogger(slog.Default())
}

// WithHTTPClient overrides the client used for the SDP exchange of the
// peer-channel binding.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(c *transportConfig) {
		c.httpClient = client
	}
}

// WithLocalAudioTrack attaches an outgoing audio track to the peer-channel
// binding. Supplying one enables Mute control at the RTP sender.
func WithLocalAudioTrack(track webrtc.TrackLocal) TransportOption {
	return func(c *transportConfig) {
		c.localTrack = track
	}
}

type sessionConfig struct {
	transport          Transport
	logger             *slog.Logger
	debounceChars      int
	keepAudioInHistory bool
	tracing            *events.TracingConfig
	settings           *SessionSettings
}

type SessionOption func(*sessionConfig)

func newSessionConfig(opts ...SessionOption) *sessionConfig {
	cfg := &sessionConfig{
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		debounceChars: defaultGuardrailDebounceChars,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.transport == nil {
		cfg.transport = NewWebsocketTransport(WithLogger(cfg.logger))
	}
	return cfg
}

// WithTransport selects the transport binding; the default is a websocket
// transport.
func WithTransport(transport Transport) SessionOption {
	return func(c *sessionConfig) {
		c.transport = transport
	}
}

func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(c *sessionConfig) {
		c.logger = logger
	}
}

// WithGuardrailDebounce sets the character-count interval at which output
// guardrails re-run against a growing transcript. A negative value disables
// debounced runs; guardrails then run only once against the final output.
func WithGuardrailDebounce(chars int) SessionOption {
	return func(c *sessionConfig) {
		c.debounceChars = chars
	}
}

// WithKeepAudioInHistory retains raw audio payloads on reconciled history
// items instead of stripping them to bound memory.
func WithKeepAudioInHistory() SessionOption {
	return func(c *sessionConfig) {
		c.keepAudioInHistory = true
	}
}

// WithTracing sets the session tracing directive; it is subject to the
// transport's stickiness rule.
func WithTracing(tracing *events.TracingConfig) SessionOption {
	return func(c *sessionConfig) {
		c.tracing = tracing
	}
}

// WithInitialSettings overrides parts of the session config pushed on
// connect, on top of what the active agent contributes.
func WithInitialSettings(settings SessionSettings) SessionOption {
	return func(c *sessionConfig) {
		c.settings = &settings
	}
}
