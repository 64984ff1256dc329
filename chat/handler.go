package chat

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"greedot_back/authorization"
	"greedot_back/characters"
	filestore "greedot_back/storage"
	"greedot_back/tts"
)

// Module serves companion conversations and their talk logs.
type Module struct {
	db     *gorm.DB
	client *ChatClient
	store  *characters.Store
	files  *filestore.FileStorage
	speech tts.Synthesizer
}

// RegisterRoutes wires the chat endpoints. files and speech may be nil; the
// companion then answers in text only.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, store *characters.Store, files *filestore.FileStorage, speech tts.Synthesizer) (*Module, error) {
	if router == nil {
		return nil, errors.New("chat: router is nil")
	}
	if store == nil {
		return nil, errors.New("chat: character store is required")
	}

	db, err := openDatabaseFromEnv()
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Log{}); err != nil {
		return nil, fmt.Errorf("chat: migrate tables: %w", err)
	}

	client, err := NewChatClientFromEnv()
	if err != nil {
		return nil, err
	}

	module := &Module{db: db, client: client, store: store, files: files, speech: speech}

	group := router.Group("/chat")
	group.Use(guard.RequireAuthenticated())
	group.POST("", module.handleChat)
	group.POST("/test", module.handleChatTest)
	group.GET("/logs", module.handleListLogs)
	group.GET("/logs/:id", module.handleGetLog)
	group.DELETE("/logs/:id", module.handleDeleteLog)

	return module, nil
}

type chatRequest struct {
	CharacterID uint64 `json:"character_id" binding:"required"`
	Message     string `json:"message" binding:"required"`
}

func (m *Module) handleChat(c *gin.Context) {
	memberID := authorization.CurrentMemberID(c)
	if memberID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "character_id and message are required"})
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message cannot be empty"})
		return
	}

	character, err := m.store.FindOwned(c.Request.Context(), req.CharacterID, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load character"})
		}
		return
	}

	persona, err := personaFromCharacter(character)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userLog := &Log{
		CharacterID: character.ID,
		LogType:     LogTypeUser,
		Content:     message,
	}
	if err := m.db.WithContext(c.Request.Context()).Create(userLog).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record message"})
		return
	}

	result, err := m.client.Chat(c.Request.Context(), []ChatMessage{
		{Role: "system", Content: personaPrompt(persona)},
		{Role: "user", Content: message},
	})
	if err != nil {
		log.Printf("chat: completion for character %d: %v", character.ID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "companion is unavailable right now"})
		return
	}

	companionLog := &Log{
		CharacterID: character.ID,
		LogType:     LogTypeCompanion,
		Content:     result.Content,
	}
	if voiceURL := m.synthesizeReply(c, character, result.Content); voiceURL != "" {
		companionLog.VoiceURL = &voiceURL
	}

	if err := m.db.WithContext(c.Request.Context()).Create(companionLog).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record reply"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_talk": userLog,
		"gree_talk": companionLog,
	})
}

// synthesizeReply voices the companion's reply and uploads the clip. Speech
// problems never fail the chat; the reply just goes out without audio.
func (m *Module) synthesizeReply(c *gin.Context, character *characters.Character, text string) string {
	if m.speech == nil || !m.speech.Enabled() || m.files == nil {
		return ""
	}

	voiceID := ""
	if character.VoiceType != nil {
		voiceID = strings.TrimSpace(*character.VoiceType)
	}
	if voiceID == "" {
		voiceID = m.speech.DefaultVoiceID()
	}

	result, err := m.speech.Synthesize(c.Request.Context(), tts.SpeechRequest{Text: text, VoiceID: voiceID})
	if err != nil {
		log.Printf("chat: synthesize reply for character %d: %v", character.ID, err)
		return ""
	}

	url, err := m.files.UploadBytes(c.Request.Context(), result.Audio, result.MimeType, ".mp3",
		"characters", fmt.Sprint(character.ID), "voice")
	if err != nil {
		log.Printf("chat: upload voice clip for character %d: %v", character.ID, err)
		return ""
	}
	return url
}

type chatTestRequest struct {
	Name    string `json:"name" binding:"required"`
	Age     int    `json:"age" binding:"required"`
	Gender  string `json:"gender" binding:"required"`
	MBTI    string `json:"mbti" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// handleChatTest answers with an ad hoc persona and stores nothing. Useful
// while tuning prompts.
func (m *Module) handleChatTest(c *gin.Context) {
	var req chatTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	persona := Persona{
		Name:   strings.TrimSpace(req.Name),
		Gender: strings.TrimSpace(req.Gender),
		Age:    req.Age,
		MBTI:   strings.ToUpper(strings.TrimSpace(req.MBTI)),
	}

	result, err := m.client.Chat(c.Request.Context(), []ChatMessage{
		{Role: "system", Content: personaPrompt(persona)},
		{Role: "user", Content: strings.TrimSpace(req.Message)},
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "companion is unavailable right now"})
		return
	}

	response := gin.H{"response": result.Content}
	if result.Usage != nil {
		response["usage"] = result.Usage
	}
	c.JSON(http.StatusOK, response)
}

func (m *Module) handleListLogs(c *gin.Context) {
	memberID := authorization.CurrentMemberID(c)
	characterID, err := strconv.ParseUint(strings.TrimSpace(c.Query("character_id")), 10, 64)
	if err != nil || characterID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "character_id query parameter is required"})
		return
	}

	if _, err := m.store.FindOwned(c.Request.Context(), characterID, memberID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load character"})
		}
		return
	}

	var logs []Log
	if err := m.db.WithContext(c.Request.Context()).
		Where("character_id = ?", characterID).
		Order("id asc").
		Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (m *Module) handleGetLog(c *gin.Context) {
	record, ok := m.ownedLog(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": record})
}

func (m *Module) handleDeleteLog(c *gin.Context) {
	record, ok := m.ownedLog(c)
	if !ok {
		return
	}

	if err := m.db.WithContext(c.Request.Context()).Delete(&Log{}, record.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete log"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ownedLog loads a log entry and checks the character behind it belongs to
// the caller.
func (m *Module) ownedLog(c *gin.Context) (*Log, bool) {
	memberID := authorization.CurrentMemberID(c)
	if memberID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return nil, false
	}

	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log id"})
		return nil, false
	}

	var record Log
	if err := m.db.WithContext(c.Request.Context()).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "log not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load log"})
		}
		return nil, false
	}

	if _, err := m.store.FindOwned(c.Request.Context(), record.CharacterID, memberID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "log not found"})
		return nil, false
	}

	return &record, true
}

// personaFromCharacter requires a completed profile before the companion can
// speak in character.
func personaFromCharacter(character *characters.Character) (Persona, error) {
	if character.Name == nil || character.PromptGender == nil || character.PromptAge == nil || character.PromptMBTI == nil {
		return Persona{}, errors.New("character persona is incomplete; set name, gender, age and mbti first")
	}
	return Persona{
		Name:   *character.Name,
		Gender: *character.PromptGender,
		Age:    *character.PromptAge,
		MBTI:   strings.ToUpper(strings.TrimSpace(*character.PromptMBTI)),
	}, nil
}
