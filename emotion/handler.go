package emotion

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"greedot_back/authorization"
	"greedot_back/characters"
	"greedot_back/chat"
)

// Module builds and serves emotion reports for characters.
type Module struct {
	db       *gorm.DB
	analyzer *AnalyzerClient
	store    *characters.Store
}

func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, store *characters.Store) (*Module, error) {
	if router == nil {
		return nil, errors.New("emotion: router is nil")
	}
	if store == nil {
		return nil, errors.New("emotion: character store is required")
	}

	db, err := openDatabaseFromEnv()
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&EmotionReport{}, &EmotionDetail{}); err != nil {
		return nil, fmt.Errorf("emotion: migrate tables: %w", err)
	}

	analyzer, err := NewAnalyzerClientFromEnv()
	if err != nil {
		return nil, err
	}

	module := &Module{db: db, analyzer: analyzer, store: store}

	group := router.Group("/emotion-reports")
	group.Use(guard.RequireAuthenticated())
	group.POST("/generate", module.handleGenerate)
	group.GET("", module.handleList)
	group.GET("/:id", module.handleGet)
	group.DELETE("/:id", module.handleDelete)

	return module, nil
}

type generateRequest struct {
	CharacterID uint64 `json:"character_id" binding:"required"`
}

// handleGenerate collects the child's side of the conversation, sends it to
// the classifier and stores the grouped result as a new report.
func (m *Module) handleGenerate(c *gin.Context) {
	memberID := authorization.CurrentMemberID(c)
	if memberID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "character_id is required"})
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

	var logs []chat.Log
	if err := m.db.WithContext(c.Request.Context()).
		Where("character_id = ? AND log_type = ?", character.ID, chat.LogTypeUser).
		Order("id asc").
		Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load talk logs"})
		return
	}

	sentences := make([]string, 0, len(logs))
	for _, entry := range logs {
		if trimmed := strings.TrimSpace(entry.Content); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	if len(sentences) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "character has no talk logs to analyze"})
		return
	}

	analysis, err := m.analyzer.Analyze(c.Request.Context(), sentences)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "emotion analysis is unavailable right now"})
		return
	}

	report := &EmotionReport{CharacterID: character.ID}

	err = m.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(report).Error; err != nil {
			return err
		}

		// Stable ordering keeps reports comparable across runs.
		categories := make([]string, 0, len(analysis.Emotions))
		for category := range analysis.Emotions {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		for _, category := range categories {
			encoded, err := json.Marshal(analysis.Emotions[category])
			if err != nil {
				return fmt.Errorf("emotion: encode sentences: %w", err)
			}
			detail := EmotionDetail{
				ReportID:    report.ID,
				EmotionType: category,
				Sentences:   datatypes.JSON(encoded),
			}
			if url, ok := analysis.WordcloudURLs[category]; ok && strings.TrimSpace(url) != "" {
				trimmed := strings.TrimSpace(url)
				detail.WordcloudURL = &trimmed
			}
			if err := tx.Create(&detail).Error; err != nil {
				return err
			}
			report.Details = append(report.Details, detail)
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store emotion report"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"report": report})
}

func (m *Module) handleList(c *gin.Context) {
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

	var reports []EmotionReport
	if err := m.db.WithContext(c.Request.Context()).
		Preload("Details").
		Where("character_id = ?", characterID).
		Order("id desc").
		Find(&reports).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list emotion reports"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (m *Module) handleGet(c *gin.Context) {
	report, ok := m.ownedReport(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (m *Module) handleDelete(c *gin.Context) {
	report, ok := m.ownedReport(c)
	if !ok {
		return
	}

	err := m.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("report_id = ?", report.ID).Delete(&EmotionDetail{}).Error; err != nil {
			return err
		}
		return tx.Delete(&EmotionReport{}, report.ID).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete emotion report"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (m *Module) ownedReport(c *gin.Context) (*EmotionReport, bool) {
	memberID := authorization.CurrentMemberID(c)
	if memberID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return nil, false
	}

	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return nil, false
	}

	var report EmotionReport
	if err := m.db.WithContext(c.Request.Context()).Preload("Details").First(&report, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "emotion report not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load emotion report"})
		}
		return nil, false
	}

	if _, err := m.store.FindOwned(c.Request.Context(), report.CharacterID, memberID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "emotion report not found"})
		return nil, false
	}

	return &report, true
}
