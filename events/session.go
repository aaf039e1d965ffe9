package events

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type AudioFormat string

const (
	AudioFormatPCM16    AudioFormat = "pcm16"
	AudioFormatG711ULaw AudioFormat = "g711_ulaw"
	AudioFormatG711ALaw AudioFormat = "g711_alaw"
)

// SessionConfig is the flat snake_case session object pushed on connect and
// on every session.update.
type SessionConfig struct {
	Model                   string                   `json:"model,omitempty"`
	Instructions            string                   `json:"instructions,omitempty"`
	Modalities              []string                 `json:"modalities,omitempty"`
	Voice                   string                   `json:"voice,omitempty"`
	Speed                   float64                  `json:"speed,omitempty"`
	InputAudioFormat        AudioFormat              `json:"input_audio_format,omitempty"`
	OutputAudioFormat       AudioFormat              `json:"output_audio_format,omitempty"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection           map[string]any           `json:"turn_detection,omitempty"`
	ToolChoice              string                   `json:"tool_choice,omitempty"`
	Tools                   []ToolDefinition         `json:"tools,omitempty"`
	Tracing                 *TracingConfig           `json:"tracing,omitempty"`
}

type InputAudioTranscription struct {
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

// ToolDefinition is the wire form of a tool the model may call. Function
// tools and hosted MCP server descriptors share one shape, discriminated by
// Type ("function" vs "mcp").
type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict,omitempty"`

	ServerLabel     string   `json:"server_label,omitempty"`
	ServerURL       string   `json:"server_url,omitempty"`
	AllowedTools    []string `json:"allowed_tools,omitempty"`
	RequireApproval any      `json:"require_approval,omitempty"`
}

// TracingConfig is the tracing directive of a session. On the wire it is
// either the string "auto" or a structured object; a nil *TracingConfig
// means tracing is off.
type TracingConfig struct {
	Auto         bool           `json:"-"`
	WorkflowName string         `json:"workflow_name,omitempty"`
	GroupID      string         `json:"group_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func TracingAuto() *TracingConfig {
	return &TracingConfig{Auto: true}
}

func (t TracingConfig) MarshalJSON() ([]byte, error) {
	if t.Auto {
		return []byte(`"auto"`), nil
	}
	type alias TracingConfig
	return json.Marshal(alias(t))
}

func (t *TracingConfig) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte(`"auto"`)) {
		*t = TracingConfig{Auto: true}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return fmt.Errorf("unsupported tracing directive: %s", data)
	}
	type alias TracingConfig
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*t = TracingConfig(a)
	return nil
}

// Equal reports whether two tracing directives name the same trace identity.
func (t *TracingConfig) Equal(other *TracingConfig) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.Auto != other.Auto {
		return false
	}
	a, _ := json.Marshal(t)
	b, _ := json.Marshal(other)
	return bytes.Equal(a, b)
}
