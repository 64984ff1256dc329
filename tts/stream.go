package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// streamDriver keeps a duplex websocket session with the streaming speech
// provider: JSON control frames out, binary audio frames back.
type streamDriver struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
}

func newStreamDriverFromEnv() *streamDriver {
	timeout := 30 * time.Second
	if raw := strings.TrimSpace(os.Getenv("TTS_STREAM_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := time.ParseDuration(raw + "s"); err == nil && parsed > 0 {
			timeout = parsed
		}
	}
	return &streamDriver{
		endpoint: strings.TrimSpace(os.Getenv("TTS_STREAM_ENDPOINT")),
		apiKey:   strings.TrimSpace(os.Getenv("TTS_STREAM_API_KEY")),
		timeout:  timeout,
	}
}

func (d *streamDriver) Enabled() bool {
	return d != nil && d.endpoint != "" && d.apiKey != ""
}

type streamControlFrame struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id"`
	Voice     string `json:"voice,omitempty"`
	Text      string `json:"text,omitempty"`
}

type streamEventFrame struct {
	SessionID string `json:"session_id"`
	Event     string `json:"event"`
	Message   string `json:"message,omitempty"`
}

// Open dials the provider and starts a synthesis session for one voice.
func (d *streamDriver) Open(ctx context.Context, voiceID string) (*StreamSession, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.apiKey)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 8 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, d.endpoint, header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			if len(body) > 0 {
				return nil, fmt.Errorf("tts: stream connect failed: %v (%s)", err, strings.TrimSpace(string(body)))
			}
		}
		return nil, fmt.Errorf("tts: stream connect failed: %w", err)
	}

	sessionID := uuid.NewString()
	if err := conn.WriteJSON(streamControlFrame{Action: "start", SessionID: sessionID, Voice: voiceID}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tts: stream start failed: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	session := &StreamSession{
		driver:    d,
		conn:      conn,
		sessionID: sessionID,
		voiceID:   voiceID,
		audioCh:   make(chan []byte, 8),
		done:      make(chan struct{}),
		ctx:       streamCtx,
		cancel:    cancel,
	}

	go session.listen()

	return session, nil
}

// StreamSession manages one duplex synthesis connection.
type StreamSession struct {
	driver    *streamDriver
	conn      *websocket.Conn
	sessionID string
	voiceID   string
	audioCh   chan []byte
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	errMu     sync.Mutex
	err       error
	sendMu    sync.Mutex
	finalized bool
	closeOnce sync.Once
}

func (s *StreamSession) VoiceID() string {
	return s.voiceID
}

// Audio provides the synthesized chunks. The channel closes when the session
// finishes or fails; check Err afterwards.
func (s *StreamSession) Audio() <-chan []byte {
	return s.audioCh
}

// AppendText queues more text for synthesis.
func (s *StreamSession) AppendText(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.finalized {
		return errors.New("tts: stream session already finalized")
	}
	frame := streamControlFrame{Action: "append", SessionID: s.sessionID, Text: text}
	if err := s.conn.WriteJSON(frame); err != nil {
		wrapped := fmt.Errorf("tts: stream append failed: %w", err)
		s.setErr(wrapped)
		return wrapped
	}
	return nil
}

// Finalize signals the end of text input. Audio keeps flowing until the
// provider reports the session finished.
func (s *StreamSession) Finalize() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.finalized {
		return nil
	}
	if err := s.conn.WriteJSON(streamControlFrame{Action: "finish", SessionID: s.sessionID}); err != nil {
		wrapped := fmt.Errorf("tts: stream finish failed: %w", err)
		s.setErr(wrapped)
		return wrapped
	}
	s.finalized = true
	return nil
}

func (s *StreamSession) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *StreamSession) Close() error {
	s.cancel()
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
	return nil
}

func (s *StreamSession) listen() {
	defer func() {
		s.closeOnce.Do(func() {
			_ = s.conn.Close()
		})
		close(s.audioCh)
		close(s.done)
		s.cancel()
	}()

	for {
		if s.driver.timeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.driver.timeout))
		}

		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				s.setErr(s.ctx.Err())
			} else if ce, ok := err.(*websocket.CloseError); ok {
				if ce.Code != websocket.CloseNormalClosure && ce.Code != websocket.CloseGoingAway {
					s.setErr(fmt.Errorf("tts: stream read failed: %w", err))
				}
			} else if !errors.Is(err, io.EOF) {
				s.setErr(fmt.Errorf("tts: stream read failed: %w", err))
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(data) == 0 {
				continue
			}
			chunk := make([]byte, len(data))
			copy(chunk, data)
			select {
			case s.audioCh <- chunk:
			case <-s.ctx.Done():
				return
			}
		case websocket.TextMessage:
			var event streamEventFrame
			if err := json.Unmarshal(data, &event); err != nil {
				log.Printf("tts: stream parse event failed: %v", err)
				continue
			}
			if event.SessionID != "" && !strings.EqualFold(event.SessionID, s.sessionID) {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(event.Event)) {
			case "failed":
				message := strings.TrimSpace(event.Message)
				if message == "" {
					message = "unknown error"
				}
				s.setErr(fmt.Errorf("tts: stream session failed: %s", message))
				return
			case "finished":
				return
			}
		}
	}
}

func (s *StreamSession) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}
