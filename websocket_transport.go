package rtagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/codewandler/rtagent-go/internal/websocket"
)

const defaultRealtimeURL = "wss://api.openai.com/v1/realtime"

// WebsocketTransport is the persistent duplex socket binding. It decodes
// inbound audio deltas and delivers them to the caller as AudioFrame
// events; input muting is the caller's responsibility (Muted reports nil).
type WebsocketTransport struct {
	core   *transportCore
	logger *slog.Logger

	mu sync.Mutex
	ws *websocket.Client
}

var _ Transport = (*WebsocketTransport)(nil)

func NewWebsocketTransport(opts ...TransportOption) *WebsocketTransport {
	cfg := newTransportConfig(opts...)
	t := &WebsocketTransport{
		core:   newTransportCore(cfg.logger, true),
		logger: cfg.logger,
	}
	t.core.sendFn = t.writeEvent
	return t
}

func (t *WebsocketTransport) Connect(ctx context.Context, opts ConnectOptions) error {
	switch t.core.status() {
	case StateConnected:
		return nil
	case StateConnecting:
		t.logger.Warn("connect called while already connecting")
		return nil
	}
	t.core.setState(StateConnecting)

	unwind := func(err error) error {
		t.mu.Lock()
		ws := t.ws
		t.ws = nil
		t.mu.Unlock()
		if ws != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = ws.Close(closeCtx)
		}
		t.core.resetConnectionState()
		t.core.setState(StateDisconnected)
		return err
	}

	apiKey, err := opts.resolveKey(ctx)
	if err != nil {
		return unwind(fmt.Errorf("resolve credential: %w", err))
	}
	if apiKey == "" {
		return unwind(fmt.Errorf("missing api key"))
	}

	baseURL := opts.URL
	if baseURL == "" {
		baseURL = defaultRealtimeURL
	}

	headers := http.Header{}
	headers.Add("Authorization", fmt.Sprintf("Bearer %s", apiKey))
	headers.Add("OpenAI-Beta", "realtime=v1")

	ws, err := websocket.Connect(ctx, websocket.ClientConfig{
		Logger:  t.logger,
		URL:     connectURL(baseURL, opts.Model),
		Headers: headers,
		OnText: func(data []byte) error {
			t.core.handleRawMessage(data)
			return nil
		},
		OnClose: func(err error) {
			if err != nil {
				t.core.emit(TransportErrorEvent{Err: err})
			}
			t.core.resetConnectionState()
			t.core.setState(StateDisconnected)
		},
	})
	if err != nil {
		return unwind(err)
	}

	t.mu.Lock()
	t.ws = ws
	t.mu.Unlock()

	initial := SessionSettings{Model: opts.Model}
	if opts.InitialConfig != nil {
		initial = *opts.InitialConfig
		if initial.Model == "" {
			initial.Model = opts.Model
		}
	}
	if err := t.core.updateSessionConfig(initial); err != nil {
		return unwind(err)
	}

	t.core.setState(StateConnected)
	return nil
}

func (t *WebsocketTransport) writeEvent(event any) error {
	t.mu.Lock()
	ws := t.ws
	t.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ws.WriteText(data)
	return nil
}

func (t *WebsocketTransport) SendEvent(event any) error {
	return t.core.send(event)
}

func (t *WebsocketTransport) SendMessage(text string, extra map[string]any) error {
	return t.core.sendMessage(text, extra)
}

func (t *WebsocketTransport) SendAudio(audio []byte, commit bool) error {
	return t.core.sendAudio(audio, commit)
}

func (t *WebsocketTransport) UpdateSessionConfig(settings SessionSettings) error {
	return t.core.updateSessionConfig(settings)
}

// Mute is unsupported: this binding does not own the input device, so the
// caller must stop feeding audio instead.
func (t *WebsocketTransport) Mute(bool) error {
	return fmt.Errorf("websocket transport cannot control input muting")
}

func (t *WebsocketTransport) Muted() *bool { return nil }

func (t *WebsocketTransport) Interrupt() error {
	return t.core.interruptTurn()
}

func (t *WebsocketTransport) ResetHistory(oldHistory, newHistory []RealtimeItem) {
	t.core.resetHistory(oldHistory, newHistory)
}

func (t *WebsocketTransport) Close() error {
	if t.core.status() == StateDisconnected {
		t.core.closeEvents()
		return nil
	}
	t.core.setState(StateDisconnecting)
	t.mu.Lock()
	ws := t.ws
	t.ws = nil
	t.mu.Unlock()
	if ws != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = ws.Close(ctx)
	}
	t.core.resetConnectionState()
	t.core.setState(StateDisconnected)
	t.core.closeEvents()
	return nil
}

func (t *WebsocketTransport) Status() ConnectionState {
	return t.core.status()
}

func (t *WebsocketTransport) Events() <-chan TransportEvent {
	return t.core.events()
}
