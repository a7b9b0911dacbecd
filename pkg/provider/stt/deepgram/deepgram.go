// Package deepgram provides a Deepgram-backed STT provider using the
// Deepgram prerecorded audio API. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/karunya-health/vaani/pkg/provider/stt"
)

const (
	defaultEndpoint  = "https://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "hi").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the default sample rate in Hz for raw PCM payloads.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpoint overrides the API endpoint. Used in tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by the Deepgram prerecorded API.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// deepgramResponse is the JSON structure returned by the prerecorded API.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
				Words      []struct {
					Word  string  `json:"word"`
					Start float64 `json:"start"`
					End   float64 `json:"end"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if len(req.Audio) == 0 {
		return stt.Result{}, errors.New("deepgram: empty audio payload")
	}

	reqURL, err := p.buildURL(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(req.Audio))
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+p.apiKey)
	mime := req.MIMEType
	if mime == "" {
		mime = "audio/wav"
	}
	httpReq.Header.Set("Content-Type", mime)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return stt.Result{}, fmt.Errorf("deepgram: unexpected status %d: %s", resp.StatusCode, body)
	}

	var dr deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: decode response: %w", err)
	}
	return parseResult(dr), nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "deepgram" }

// buildURL constructs the prerecorded endpoint URL for the given request.
func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	if req.MIMEType == "audio/raw" {
		sr := req.SampleRate
		if sr == 0 {
			sr = p.sampleRate
		}
		q.Set("encoding", "linear16")
		q.Set("sample_rate", strconv.Itoa(sr))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseResult extracts the first alternative of the first channel.
func parseResult(dr deepgramResponse) stt.Result {
	if len(dr.Results.Channels) == 0 || len(dr.Results.Channels[0].Alternatives) == 0 {
		return stt.Result{}
	}
	alt := dr.Results.Channels[0].Alternatives[0]
	res := stt.Result{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
	}
	if n := len(alt.Words); n > 0 {
		res.Duration = time.Duration(alt.Words[n-1].End * float64(time.Second))
	}
	return res
}
