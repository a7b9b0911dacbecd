package httpapi

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/karunya-health/vaani/internal/audit"
	"github.com/karunya-health/vaani/internal/session"
	"github.com/karunya-health/vaani/internal/workflow"
	"github.com/karunya-health/vaani/pkg/provider/stt"
	"github.com/karunya-health/vaani/pkg/provider/tts"
)

// ttsSampleRate is the PCM output contract shared by all TTS providers:
// 16 kHz mono, 16-bit samples.
const ttsSampleRate = 16000

type startCallRequest struct {
	CallerID string `json:"caller_id"`
	Channel  string `json:"channel"`
	Language string `json:"language,omitempty"`
}

type startCallResponse struct {
	SessionID     string `json:"session_id"`
	ResponseText  string `json:"response_text"`
	AudioBase64   string `json:"audio_base64,omitempty"`
	RequiresInput bool   `json:"requires_input"`
}

// handleStartCall opens a session and returns the greeting, with audio when
// a TTS provider is wired.
func (s *Server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CallerID == "" {
		respondError(w, http.StatusBadRequest, "caller_id is required")
		return
	}
	channel := session.Channel(req.Channel)
	if channel == "" {
		channel = session.ChannelPhone
	}

	id := s.store.Create(req.CallerID, channel)
	s.audit.SessionStart(r.Context(), id, req.CallerID, string(channel))
	s.metrics.ActiveSessions.Add(r.Context(), 1)

	greeting := workflow.Greeting(s.hospital, s.now())
	resp := startCallResponse{
		SessionID:     id,
		ResponseText:  greeting,
		AudioBase64:   s.synthesizeReply(r.Context(), id, greeting),
		RequiresInput: true,
	}
	respondJSON(w, http.StatusOK, resp)
}

type transcribeRequest struct {
	SessionID   string `json:"session_id"`
	AudioBase64 string `json:"audio_base64"`
	SampleRate  int    `json:"sample_rate,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
}

type transcribeResponse struct {
	SessionID    string   `json:"session_id"`
	Transcript   string   `json:"transcript"`
	Confidence   float64  `json:"confidence"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// handleTranscribe converts one base64 audio payload into text.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if req.AudioBase64 == "" {
		respondError(w, http.StatusBadRequest, "audio_base64 is required")
		return
	}
	if _, err := s.store.Snapshot(req.SessionID); err != nil {
		respondSessionError(w, err)
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "audio_base64 is not valid base64")
		return
	}
	// Text-only deployments have no STT provider; callers get a marked
	// placeholder instead of an error so integration keeps working.
	if s.stt == nil {
		respondJSON(w, http.StatusOK, transcribeResponse{
			SessionID:  req.SessionID,
			Transcript: "[transcription unavailable: no speech-to-text provider configured]",
			Confidence: 0,
		})
		return
	}

	start := time.Now()
	result, err := s.stt.Transcribe(r.Context(), stt.Request{
		Audio:      audio,
		MIMEType:   encodingToMIME(req.Encoding),
		SampleRate: req.SampleRate,
	})
	s.metrics.STTDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), s.stt.Name(), "stt")
		slog.Error("transcription failed", "session_id", req.SessionID, "provider", s.stt.Name(), "error", err)
		respondError(w, http.StatusInternalServerError, "transcription failed")
		return
	}
	s.metrics.RecordProviderRequest(r.Context(), s.stt.Name(), "stt", "ok")

	respondJSON(w, http.StatusOK, transcribeResponse{
		SessionID:  req.SessionID,
		Transcript: result.Text,
		Confidence: result.Confidence,
	})
}

// encodingToMIME maps the wire-level encoding field onto the provider
// contract. Raw PCM needs the sample rate passed through; everything else
// is a self-describing container.
func encodingToMIME(encoding string) string {
	switch encoding {
	case "", "wav":
		return "audio/wav"
	case "linear16", "pcm":
		return "audio/raw"
	default:
		return "audio/" + encoding
	}
}

type synthesizeRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
	Pitch float64 `json:"pitch,omitempty"`
}

type synthesizeResponse struct {
	AudioBase64     string  `json:"audio_base64"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// handleSynthesize renders text to speech and returns the full utterance.
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	opts := tts.Options{Voice: req.Voice, Speed: req.Speed, Pitch: req.Pitch}
	if err := opts.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.tts == nil {
		respondError(w, http.StatusInternalServerError, "speech synthesis is not configured")
		return
	}

	start := time.Now()
	audio, err := s.tts.Synthesize(r.Context(), req.Text, opts)
	s.metrics.TTSDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), s.tts.Name(), "tts")
		slog.Error("synthesis failed", "provider", s.tts.Name(), "error", err)
		respondError(w, http.StatusInternalServerError, "synthesis failed")
		return
	}
	s.metrics.RecordProviderRequest(r.Context(), s.tts.Name(), "tts", "ok")

	respondJSON(w, http.StatusOK, synthesizeResponse{
		AudioBase64:     base64.StdEncoding.EncodeToString(audio),
		DurationSeconds: pcmDuration(audio),
	})
}

// pcmDuration derives playback length from the 16 kHz 16-bit mono contract.
func pcmDuration(audio []byte) float64 {
	return float64(len(audio)) / (2 * ttsSampleRate)
}

// synthesizeReply renders response audio for the conversational endpoints.
// Synthesis failures are swallowed: the caller still gets the text reply.
func (s *Server) synthesizeReply(ctx context.Context, sessionID, text string) string {
	if s.tts == nil || text == "" {
		return ""
	}
	start := time.Now()
	audio, err := s.tts.Synthesize(ctx, text, tts.Options{})
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, s.tts.Name(), "tts")
		s.audit.Record(ctx, sessionID, audit.EventAPICall, map[string]string{
			"provider": s.tts.Name(),
			"kind":     "tts",
			"error":    err.Error(),
		})
		slog.Warn("reply synthesis failed, returning text only",
			"session_id", sessionID, "provider", s.tts.Name(), "error", err)
		return ""
	}
	s.metrics.RecordProviderRequest(ctx, s.tts.Name(), "tts", "ok")
	return base64.StdEncoding.EncodeToString(audio)
}
