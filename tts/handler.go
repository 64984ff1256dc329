package tts

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Module struct {
	client *Client
}

func RegisterRoutes(router *gin.Engine) (*Module, error) {
	client, err := NewClientFromEnv()
	if err != nil {
		return nil, err
	}

	module := &Module{client: client}

	group := router.Group("/tts")
	group.GET("/voices", module.handleVoices)
	group.POST("/preview", module.handlePreview)
	group.GET("/stream", module.handleStream)

	return module, nil
}

func (m *Module) Enabled() bool {
	return m != nil && m.client.Enabled()
}

func (m *Module) DefaultVoiceID() string {
	if m == nil {
		return ""
	}
	return m.client.DefaultVoiceID()
}

func (m *Module) Voices() []VoiceOption {
	if m == nil {
		return nil
	}
	return m.client.Voices()
}

func (m *Module) Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error) {
	if m == nil {
		return nil, ErrDisabled
	}
	return m.client.Synthesize(ctx, req)
}

func (m *Module) handleVoices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"enabled":       m.Enabled(),
		"streaming":     m.client.StreamingEnabled(),
		"default_voice": m.DefaultVoiceID(),
		"voices":        m.Voices(),
	})
}

type previewRequest struct {
	Text    string   `json:"text" binding:"required"`
	VoiceID string   `json:"voice_id"`
	Speed   *float64 `json:"speed"`
	Pitch   *float64 `json:"pitch"`
	Format  string   `json:"format"`
}

func (m *Module) handlePreview(c *gin.Context) {
	if !m.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "text-to-speech is disabled"})
		return
	}

	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	speed := 1.0
	if req.Speed != nil && *req.Speed > 0 {
		speed = clampFloat(*req.Speed, 0.5, 1.6)
	}

	pitch := 1.0
	if req.Pitch != nil && *req.Pitch > 0 {
		pitch = clampFloat(*req.Pitch, 0.7, 1.4)
	}

	result, err := m.client.Synthesize(c.Request.Context(), SpeechRequest{
		Text:    req.Text,
		VoiceID: strings.TrimSpace(req.VoiceID),
		Speed:   speed,
		Pitch:   pitch,
		Format:  strings.TrimSpace(req.Format),
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrDisabled) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"speech": gin.H{
		"voice_id":     result.VoiceID,
		"provider":     result.Provider,
		"mime_type":    result.MimeType,
		"audio_base64": result.AudioBase64(),
	}})
}

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type streamTextFrame struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// handleStream relays a browser websocket to the provider's duplex session:
// the client sends text frames, audio comes back as binary frames.
func (m *Module) handleStream(c *gin.Context) {
	if !m.client.StreamingEnabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "speech streaming is disabled"})
		return
	}

	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	session, err := m.client.Stream(c.Request.Context(), c.Query("voice_id"))
	if err != nil {
		_ = conn.WriteJSON(gin.H{"error": err.Error()})
		return
	}
	defer session.Close()

	// Forward provider audio to the client.
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		for chunk := range session.Audio() {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				return
			}
		}
		if err := session.Err(); err != nil {
			_ = conn.WriteJSON(gin.H{"error": err.Error()})
			return
		}
		_ = conn.WriteJSON(gin.H{"done": true})
	}()

	for {
		var frame streamTextFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("tts: stream client read: %v", err)
			}
			break
		}
		if frame.Text != "" {
			if err := session.AppendText(frame.Text); err != nil {
				break
			}
		}
		if frame.Done {
			_ = session.Finalize()
			break
		}
	}

	<-relayDone
}

func clampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
