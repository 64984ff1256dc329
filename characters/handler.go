package characters

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"greedot_back/authorization"
	filestore "greedot_back/storage"
)

// Module exposes CRUD endpoints for characters and their asset catalog.
type Module struct {
	db    *gorm.DB
	store *Store
	files *filestore.FileStorage
}

// RegisterRoutes mounts the character endpoints under /characters.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, files *filestore.FileStorage) (*Module, error) {
	db, err := openDatabaseFromEnv()
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Character{}, &CharacterAsset{}); err != nil {
		return nil, fmt.Errorf("characters: migrate tables: %w", err)
	}

	module := &Module{db: db, store: NewStore(db), files: files}

	group := router.Group("/characters")
	if guard != nil {
		group.Use(guard.RequireAuthenticated())
	} else {
		group.Use(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization middleware missing"})
		})
	}

	group.POST("/upload-raw-img", module.handleUploadRawImage)
	group.GET("", module.handleList)
	group.GET("/:id", module.handleGet)
	group.PUT("/:id", module.handleUpdate)
	group.PUT("/:id/favorite", module.handleFavorite)
	group.PUT("/:id/disable", module.handleDisable)
	group.GET("/:id/assets", module.handleListAssets)

	return module, nil
}

// Store returns the shared data access layer for sibling modules.
func (m *Module) Store() *Store {
	if m == nil {
		return nil
	}
	return m.store
}

// DB exposes the underlying handle for modules that share the schema.
func (m *Module) DB() *gorm.DB {
	if m == nil {
		return nil
	}
	return m.db
}

func (m *Module) handleUploadRawImage(c *gin.Context) {
	if m.files == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file storage not configured"})
		return
	}

	memberID := authorization.CurrentMemberID(c)
	if memberID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "drawing file is required"})
		return
	}

	ctx := c.Request.Context()
	fileURL, err := m.files.UploadDrawing(ctx, file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	character := Character{
		MemberID:    memberID,
		RawImageURL: fileURL,
		Status:      StatusActive,
	}
	if err := m.store.Create(ctx, &character); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create character"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"file_url":     fileURL,
		"character_id": character.ID,
		"message":      "file uploaded successfully",
	})
}

func (m *Module) handleList(c *gin.Context) {
	memberID := authorization.CurrentMemberID(c)
	if memberID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	list, err := m.store.ListByMember(c.Request.Context(), memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list characters"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"characters": list})
}

func (m *Module) handleGet(c *gin.Context) {
	character, ok := m.ownedCharacter(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"character": character})
}

type updateRequest struct {
	Name         *string `json:"name"`
	PromptGender *string `json:"prompt_gender"`
	PromptAge    *int    `json:"prompt_age"`
	PromptMBTI   *string `json:"prompt_mbti"`
	IsFavorite   *bool   `json:"is_favorite"`
	RigPackID    *uint64 `json:"rig_pack_id"`
}

func (m *Module) handleUpdate(c *gin.Context) {
	memberID := authorization.CurrentMemberID(c)
	id, err := parseCharacterID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	updated, err := m.store.Update(c.Request.Context(), id, memberID, UpdateParams{
		Name:         req.Name,
		PromptGender: req.PromptGender,
		PromptAge:    req.PromptAge,
		PromptMBTI:   req.PromptMBTI,
		IsFavorite:   req.IsFavorite,
		RigPackID:    req.RigPackID,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update character"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"character": updated})
}

func (m *Module) handleFavorite(c *gin.Context) {
	memberID := authorization.CurrentMemberID(c)
	id, err := parseCharacterID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		IsFavorite bool `json:"is_favorite"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	updated, err := m.store.Update(c.Request.Context(), id, memberID, UpdateParams{IsFavorite: &req.IsFavorite})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update favorite"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"character": updated})
}

func (m *Module) handleDisable(c *gin.Context) {
	memberID := authorization.CurrentMemberID(c)
	id, err := parseCharacterID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := m.store.SetStatus(c.Request.Context(), id, memberID, StatusDisabled); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to disable character"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "disabled"})
}

func (m *Module) handleListAssets(c *gin.Context) {
	character, ok := m.ownedCharacter(c)
	if !ok {
		return
	}

	kind := strings.ToUpper(strings.TrimSpace(c.Query("kind")))
	assets, err := m.store.ListAssets(c.Request.Context(), character.ID, kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list assets"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"assets": assets})
}

func (m *Module) ownedCharacter(c *gin.Context) (*Character, bool) {
	memberID := authorization.CurrentMemberID(c)
	if memberID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return nil, false
	}

	id, err := parseCharacterID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
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

func parseCharacterID(param string) (uint64, error) {
	trimmed := strings.TrimSpace(param)
	if trimmed == "" {
		return 0, errors.New("missing character id")
	}
	id, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, errors.New("invalid character id")
	}
	return id, nil
}
