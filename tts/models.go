package tts

import (
	"context"
	"encoding/base64"
)

// VoiceOption describes one selectable companion voice.
type VoiceOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Language    string `json:"language"`
	Gender      string `json:"gender"`
	AgeGroup    string `json:"age_group"`
	Description string `json:"description,omitempty"`
}

// SpeechRequest carries one synthesis call.
type SpeechRequest struct {
	Text    string
	VoiceID string
	Speed   float64
	Pitch   float64
	Format  string
}

// SpeechResult is the synthesized audio plus metadata. Audio stays binary so
// callers can upload it; the preview endpoint base64-encodes on the way out.
type SpeechResult struct {
	VoiceID  string `json:"voice_id"`
	Provider string `json:"provider"`
	MimeType string `json:"mime_type"`
	Audio    []byte `json:"-"`
}

func (r *SpeechResult) AudioBase64() string {
	if r == nil || len(r.Audio) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(r.Audio)
}

// Synthesizer is what the chat module depends on.
type Synthesizer interface {
	Enabled() bool
	DefaultVoiceID() string
	Voices() []VoiceOption
	Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error)
}
