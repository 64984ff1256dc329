package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrDisabled = errors.New("tts: service disabled")

const defaultVoiceID = "ngaram"

// Client wraps the speech synthesis provider. Companion replies and voice
// previews go through the HTTP driver; the websocket driver serves live
// streaming sessions.
type Client struct {
	clova        *clovaDriver
	stream       *streamDriver
	voices       []VoiceOption
	voiceIndex   map[string]VoiceOption
	defaultVoice string
}

// NewClientFromEnv builds the client. Missing credentials leave the service
// disabled rather than failing startup, so text chat keeps working without a
// speech provider.
func NewClientFromEnv() (*Client, error) {
	httpClient := &http.Client{Timeout: 45 * time.Second}

	client := &Client{
		clova:        newClovaDriverFromEnv(httpClient),
		stream:       newStreamDriverFromEnv(),
		voices:       defaultVoiceCatalog(),
		defaultVoice: strings.TrimSpace(os.Getenv("TTS_DEFAULT_VOICE")),
	}

	client.voiceIndex = make(map[string]VoiceOption, len(client.voices))
	for _, voice := range client.voices {
		client.voiceIndex[strings.ToLower(voice.ID)] = voice
	}

	if client.defaultVoice == "" {
		client.defaultVoice = defaultVoiceID
	}
	if _, ok := client.voiceIndex[strings.ToLower(client.defaultVoice)]; !ok {
		return nil, fmt.Errorf("tts: default voice %q is not in the catalog", client.defaultVoice)
	}

	return client, nil
}

func (c *Client) Enabled() bool {
	return c != nil && c.clova.Enabled()
}

func (c *Client) StreamingEnabled() bool {
	return c != nil && c.stream.Enabled()
}

func (c *Client) DefaultVoiceID() string {
	if c == nil {
		return ""
	}
	return c.defaultVoice
}

func (c *Client) Voices() []VoiceOption {
	if c == nil {
		return nil
	}
	out := make([]VoiceOption, len(c.voices))
	copy(out, c.voices)
	return out
}

// Synthesize renders the text with the requested voice, falling back to the
// default voice when none is given.
func (c *Client) Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	voiceID := strings.TrimSpace(req.VoiceID)
	if voiceID == "" {
		voiceID = c.defaultVoice
	}
	if _, ok := c.voiceIndex[strings.ToLower(voiceID)]; !ok {
		return nil, fmt.Errorf("tts: unknown voice %q", voiceID)
	}
	req.VoiceID = voiceID

	return c.clova.Synthesize(ctx, req)
}

// Stream opens a duplex synthesis session.
func (c *Client) Stream(ctx context.Context, voiceID string) (*StreamSession, error) {
	if c == nil || !c.stream.Enabled() {
		return nil, ErrDisabled
	}
	trimmed := strings.TrimSpace(voiceID)
	if trimmed == "" {
		trimmed = c.defaultVoice
	}
	if _, ok := c.voiceIndex[strings.ToLower(trimmed)]; !ok {
		return nil, fmt.Errorf("tts: unknown voice %q", trimmed)
	}
	return c.stream.Open(ctx, trimmed)
}

// clovaDriver talks to the Clova-style premium voice endpoint: URL-encoded
// form in, raw audio bytes out.
type clovaDriver struct {
	httpClient   *http.Client
	endpoint     string
	clientID     string
	clientSecret string
	format       string
}

func newClovaDriverFromEnv(httpClient *http.Client) *clovaDriver {
	endpoint := strings.TrimSpace(os.Getenv("TTS_API_URL"))
	if endpoint == "" {
		endpoint = "https://naveropenapi.apigw.ntruss.com/tts-premium/v1/tts"
	}

	format := strings.TrimSpace(os.Getenv("TTS_RESPONSE_FORMAT"))
	if format == "" {
		format = "mp3"
	}

	return &clovaDriver{
		httpClient:   httpClient,
		endpoint:     endpoint,
		clientID:     strings.TrimSpace(os.Getenv("TTS_CLIENT_ID")),
		clientSecret: strings.TrimSpace(os.Getenv("TTS_CLIENT_SECRET")),
		format:       format,
	}
}

func (d *clovaDriver) Enabled() bool {
	return d != nil && d.clientID != "" && d.clientSecret != ""
}

func (d *clovaDriver) Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New("tts: text cannot be empty")
	}

	format := strings.TrimSpace(req.Format)
	if format == "" {
		format = d.format
	}

	form := url.Values{}
	form.Set("speaker", req.VoiceID)
	form.Set("text", text)
	form.Set("format", format)
	if req.Speed > 0 {
		form.Set("speed", formatSpeedParam(req.Speed))
	}
	if req.Pitch > 0 {
		form.Set("pitch", formatPitchParam(req.Pitch))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("tts: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("X-NCP-APIGW-API-KEY-ID", d.clientID)
	httpReq.Header.Set("X-NCP-APIGW-API-KEY", d.clientSecret)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts: execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("tts: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("tts: provider returned empty audio")
	}

	return &SpeechResult{
		VoiceID:  req.VoiceID,
		Provider: "clova",
		MimeType: formatToMime(format),
		Audio:    audio,
	}, nil
}

// The provider expects speed/pitch as integer offsets in [-5, 5] where 0 is
// neutral; callers pass multipliers around 1.0.
func formatSpeedParam(speed float64) string {
	return strconv.Itoa(clampOffset((1.0 - speed) * 10))
}

func formatPitchParam(pitch float64) string {
	return strconv.Itoa(clampOffset((1.0 - pitch) * 10))
}

func clampOffset(v float64) int {
	n := int(v)
	if n < -5 {
		return -5
	}
	if n > 5 {
		return 5
	}
	return n
}

func formatToMime(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "wav":
		return "audio/wav"
	case "pcm":
		return "audio/l16"
	default:
		return "audio/mpeg"
	}
}
