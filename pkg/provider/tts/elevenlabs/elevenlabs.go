// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coder/websocket"

	"github.com/karunya-health/vaani/pkg/provider/tts"
)

const (
	defaultEndpointFmt = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s"
	defaultModel       = "eleven_flash_v2_5"
	defaultOutputFmt   = "pcm_16000"
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "pcm_16000", "pcm_24000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithEndpointFormat overrides the WebSocket endpoint template. Used in tests.
func WithEndpointFormat(format string) Option {
	return func(p *Provider) {
		p.endpointFmt = format
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	voice        string
	model        string
	outputFormat string
	endpointFmt  string
}

// New creates a new ElevenLabs Provider. apiKey and voice must be non-empty;
// voice is the default voice ID, overridable per call via tts.Options.
func New(apiKey, voice string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if voice == "" {
		return nil, errors.New("elevenlabs: voice must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		voice:        voice,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		endpointFmt:  defaultEndpointFmt,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// boiMessage is the initial "begin of input" handshake payload.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// textMessage carries one text fragment; an empty Text flushes the stream.
type textMessage struct {
	Text string `json:"text"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// Synthesize opens a WebSocket to ElevenLabs, sends the text, and collects
// the streamed PCM chunks into one buffer. Pitch in opts is ignored: the
// ElevenLabs API has no pitch control.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.Options) ([]byte, error) {
	if text == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	voice := opts.Voice
	if voice == "" {
		voice = p.voice
	}

	wsURL := fmt.Sprintf(p.endpointFmt, voice, p.model)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	boi := boiMessage{
		Text:          " ", // ElevenLabs requires a non-empty first text value
		VoiceSettings: buildVoiceSettings(opts),
		XiAPIKey:      p.apiKey,
		OutputFormat:  p.outputFormat,
	}
	if err := writeJSON(ctx, conn, boi); err != nil {
		return nil, fmt.Errorf("elevenlabs: send handshake: %w", err)
	}
	if err := writeJSON(ctx, conn, textMessage{Text: text + " "}); err != nil {
		return nil, fmt.Errorf("elevenlabs: send text: %w", err)
	}
	// Empty text flushes and makes the server finish the stream.
	if err := writeJSON(ctx, conn, textMessage{}); err != nil {
		return nil, fmt.Errorf("elevenlabs: flush: %w", err)
	}

	var buf bytes.Buffer
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if buf.Len() > 0 {
				// The server closes the socket after the final chunk.
				return buf.Bytes(), nil
			}
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			buf.Write(pcm)
		}
		if resp.IsFinal {
			return buf.Bytes(), nil
		}
	}
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "elevenlabs" }

// buildVoiceSettings maps our options onto the ElevenLabs settings object.
// The API accepts speed in [0.7, 1.2]; out-of-range values are clamped.
func buildVoiceSettings(opts tts.Options) *voiceSettings {
	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	if opts.Speed != 0 {
		speed := opts.Speed
		if speed < 0.7 {
			speed = 0.7
		}
		if speed > 1.2 {
			speed = 1.2
		}
		vs.Speed = speed
	}
	return vs
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}
