package pipeline

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"greedot_back/authorization"
	"greedot_back/cache"
	"greedot_back/characters"
)

// Module wires the asset generation endpoints.
type Module struct {
	orchestrator *Orchestrator
	store        *characters.Store
}

// RegisterRoutes mounts the pipeline endpoints under the character routes.
// The orchestrator is fully constructed by the caller so every configuration
// problem surfaces at startup.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, store *characters.Store, orchestrator *Orchestrator) (*Module, error) {
	if router == nil {
		return nil, errors.New("pipeline: router is nil")
	}
	if store == nil || orchestrator == nil {
		return nil, errors.New("pipeline: store and orchestrator are required")
	}

	module := &Module{orchestrator: orchestrator, store: store}

	group := router.Group("/characters")
	group.Use(guard.RequireAuthenticated())
	group.POST("/:id/stylize", module.handleStylize)
	group.POST("/:id/generate", module.handleGenerate)

	return module, nil
}

type stylizeRequest struct {
	StylePreset int `json:"style_preset" binding:"required"`
}

func (m *Module) handleStylize(c *gin.Context) {
	character, ok := m.ownedCharacter(c)
	if !ok {
		return
	}

	var req stylizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "style_preset is required"})
		return
	}

	urls, err := m.orchestrator.Stylize(c.Request.Context(), character, req.StylePreset)
	if err != nil {
		m.renderPipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"character_id": character.ID,
		"image_urls":   urls,
	})
}

type generateRequest struct {
	StylizedURL string `json:"stylized_url" binding:"required"`
}

func (m *Module) handleGenerate(c *gin.Context) {
	character, ok := m.ownedCharacter(c)
	if !ok {
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stylized_url is required"})
		return
	}

	report, err := m.orchestrator.Generate(c.Request.Context(), character, req.StylizedURL)
	if err != nil {
		m.renderPipelineError(c, err)
		return
	}

	// Failed presets are reported per entry; the run as a whole still
	// succeeded.
	c.JSON(http.StatusOK, gin.H{
		"character_id": character.ID,
		"part_urls":    report.PartURLs,
		"config_url":   report.ConfigURL,
		"animations":   report.Animations,
	})
}

func (m *Module) renderPipelineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrMissingRawImage), errors.Is(err, ErrUnknownStylePreset):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrAssetNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, cache.ErrLockHeld):
		c.JSON(http.StatusConflict, gin.H{"error": "a generation run is already in progress for this character"})
	case errors.Is(err, ErrDownload), errors.Is(err, ErrUpstreamProtocol), errors.Is(err, ErrUpstreamGeneration):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, ErrPollTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generation failed"})
	}
}

func (m *Module) ownedCharacter(c *gin.Context) (*characters.Character, bool) {
	memberID := authorization.CurrentMemberID(c)
	if memberID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return nil, false
	}

	raw := strings.TrimSpace(c.Param("id"))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid character id"})
		return nil, false
	}

	character, err := m.store.FindOwned(c.Request.Context(), id, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load character"})
		}
		return nil, false
	}
	return character, true
}
