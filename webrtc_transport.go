package rtagent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

const defaultCallsURL = "https://api.openai.com/v1/realtime/calls"

// iceGatherTimeout bounds ICE candidate gathering before the SDP offer is
// posted; vanilla ICE needs all candidates up front so signaling is a
// single round trip.
const iceGatherTimeout = 15 * time.Second

// dataChannelOpenTimeout bounds the wait for the control channel after the
// answer is applied.
const dataChannelOpenTimeout = 30 * time.Second

// WebRTCTransport is the peer-to-peer data-channel binding. Control
// messages travel over one data channel; audio is handled natively by the
// media stack, so no AudioFrame events are emitted. When a local audio
// track is supplied, Mute toggles it at the RTP sender.
type WebRTCTransport struct {
	core   *transportCore
	logger *slog.Logger

	httpClient *http.Client
	localTrack webrtc.TrackLocal

	mu     sync.Mutex
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	sender *webrtc.RTPSender
	muted  bool
}

var _ Transport = (*WebRTCTransport)(nil)

func NewWebRTCTransport(opts ...TransportOption) *WebRTCTransport {
	cfg := newTransportConfig(opts...)
	t := &WebRTCTransport{
		core:       newTransportCore(cfg.logger, false),
		logger:     cfg.logger,
		httpClient: cfg.httpClient,
		localTrack: cfg.localTrack,
	}
	if t.httpClient == nil {
		t.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	t.core.sendFn = t.writeEvent
	return t
}

func (t *WebRTCTransport) Connect(ctx context.Context, opts ConnectOptions) error {
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
		pc := t.pc
		t.pc = nil
		t.dc = nil
		t.sender = nil
		t.mu.Unlock()
		if pc != nil {
			_ = pc.Close()
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

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return unwind(fmt.Errorf("create peer connection: %w", err))
	}
	t.mu.Lock()
	t.pc = pc
	t.mu.Unlock()

	if t.localTrack != nil {
		sender, err := pc.AddTrack(t.localTrack)
		if err != nil {
			return unwind(fmt.Errorf("add audio track: %w", err))
		}
		t.mu.Lock()
		t.sender = sender
		t.mu.Unlock()
	} else {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return unwind(fmt.Errorf("add audio transceiver: %w", err))
		}
	}

	dc, err := pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		return unwind(fmt.Errorf("create data channel: %w", err))
	}
	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.core.handleRawMessage(msg.Data)
	})
	t.mu.Lock()
	t.dc = dc
	t.mu.Unlock()

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			if t.core.status() == StateConnected {
				t.core.emit(TransportErrorEvent{Err: fmt.Errorf("peer connection %s", state)})
				t.core.resetConnectionState()
				t.core.setState(StateDisconnected)
			}
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return unwind(fmt.Errorf("create offer: %w", err))
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return unwind(fmt.Errorf("set local description: %w", err))
	}
	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		return unwind(fmt.Errorf("timed out gathering ICE candidates"))
	case <-ctx.Done():
		return unwind(ctx.Err())
	}

	initial := SessionSettings{Model: opts.Model}
	if opts.InitialConfig != nil {
		initial = *opts.InitialConfig
		if initial.Model == "" {
			initial.Model = opts.Model
		}
	}
	wireConfig := t.core.mergedSessionConfig(initial)

	answerSDP, err := t.exchangeSDP(ctx, opts, apiKey, pc.LocalDescription().SDP, wireConfig)
	if err != nil {
		return unwind(err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}); err != nil {
		return unwind(fmt.Errorf("set remote description: %w", err))
	}

	select {
	case <-opened:
	case <-time.After(dataChannelOpenTimeout):
		return unwind(fmt.Errorf("timed out waiting for data channel"))
	case <-ctx.Done():
		return unwind(ctx.Err())
	}

	t.core.setState(StateConnected)
	return nil
}

// exchangeSDP posts the offer and session config as multipart form data and
// returns the answer SDP from the response body.
func (t *WebRTCTransport) exchangeSDP(ctx context.Context, opts ConnectOptions, apiKey, offerSDP string, sessionConfig any) (string, error) {
	baseURL := opts.URL
	if baseURL == "" {
		baseURL = defaultCallsURL
	}

	var body strings.Builder
	form := multipart.NewWriter(&body)
	if err := form.WriteField("sdp", offerSDP); err != nil {
		return "", err
	}
	configJSON, err := json.Marshal(sessionConfig)
	if err != nil {
		return "", err
	}
	if err := form.WriteField("session", string(configJSON)); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		connectURL(baseURL, opts.Model), strings.NewReader(body.String()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sdp exchange: %w", err)
	}
	defer resp.Body.Close()

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read sdp answer: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sdp exchange failed: %s: %s", resp.Status, strings.TrimSpace(string(answer)))
	}
	return string(answer), nil
}

func (t *WebRTCTransport) writeEvent(event any) error {
	t.mu.Lock()
	dc := t.dc
	t.mu.Unlock()
	if dc == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return dc.SendText(string(data))
}

func (t *WebRTCTransport) SendEvent(event any) error {
	return t.core.send(event)
}

func (t *WebRTCTransport) SendMessage(text string, extra map[string]any) error {
	return t.core.sendMessage(text, extra)
}

// SendAudio appends to the server-side input buffer over the data channel.
// Most callers attach a local track instead and let the media stack carry
// audio natively.
func (t *WebRTCTransport) SendAudio(audio []byte, commit bool) error {
	return t.core.sendAudio(audio, commit)
}

func (t *WebRTCTransport) UpdateSessionConfig(settings SessionSettings) error {
	return t.core.updateSessionConfig(settings)
}

// Mute detaches the outgoing audio track from the RTP sender; unmuting
// reattaches it. Without a local track there is nothing to control.
func (t *WebRTCTransport) Mute(muted bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sender == nil {
		return fmt.Errorf("no local audio track attached")
	}
	if muted == t.muted {
		return nil
	}
	var err error
	if muted {
		err = t.sender.ReplaceTrack(nil)
	} else {
		err = t.sender.ReplaceTrack(t.localTrack)
	}
	if err != nil {
		return err
	}
	t.muted = muted
	return nil
}

func (t *WebRTCTransport) Muted() *bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.localTrack == nil {
		return nil
	}
	muted := t.muted
	return &muted
}

func (t *WebRTCTransport) Interrupt() error {
	return t.core.interruptTurn()
}

func (t *WebRTCTransport) ResetHistory(oldHistory, newHistory []RealtimeItem) {
	t.core.resetHistory(oldHistory, newHistory)
}

func (t *WebRTCTransport) Close() error {
	if t.core.status() == StateDisconnected {
		t.core.closeEvents()
		return nil
	}
	t.core.setState(StateDisconnecting)
	t.mu.Lock()
	pc := t.pc
	t.pc = nil
	t.dc = nil
	t.sender = nil
	t.mu.Unlock()
	if pc != nil {
		_ = pc.Close()
	}
	t.core.resetConnectionState()
	t.core.setState(StateDisconnected)
	t.core.closeEvents()
	return nil
}

func (t *WebRTCTransport) Status() ConnectionState {
	return t.core.status()
}

func (t *WebRTCTransport) Events() <-chan TransportEvent {
	return t.core.events()
}
