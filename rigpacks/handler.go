package rigpacks

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"greedot_back/authorization"
	"greedot_back/characters"
)

type Module struct {
	db         *gorm.DB
	storage    *packStorage
	characters *characters.Store
}

type createPackForm struct {
	Name        string `form:"name" binding:"required"`
	Description string `form:"description"`
}

type packDTO struct {
	ID          uint64  `json:"id"`
	Key         string  `json:"key"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	EntryURL    string  `json:"entry_url"`
	PreviewURL  *string `json:"preview_url,omitempty"`
	CreatedAt   int64   `json:"created_at"`
	UpdatedAt   int64   `json:"updated_at"`
}

// RegisterRoutes mounts the rig pack catalog. Listing and file serving are
// public so the client can load motion templates; uploads and deletion stay
// behind the admin role.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, characterStore *characters.Store) (*Module, error) {
	db, err := openDatabaseFromEnv()
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&RigPack{}); err != nil {
		return nil, fmt.Errorf("rigpacks: migrate tables: %w", err)
	}

	storage, err := newPackStorageFromEnv()
	if err != nil {
		return nil, err
	}

	module := &Module{db: db, storage: storage, characters: characterStore}

	group := router.Group("/rig-packs")
	group.GET("", module.handleList)
	group.GET("/:id", module.handleGet)
	group.GET("/:id/files/*filepath", module.handleServeFile)

	admin := group.Group("")
	if guard != nil {
		admin.Use(guard.RequireAuthenticated(), guard.RequireRole(authorization.RoleAdmin))
	} else {
		admin.Use(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization middleware missing"})
		})
	}
	admin.POST("", module.handleCreate)
	admin.DELETE("/:id", module.handleDelete)

	return module, nil
}

func (m *Module) handleList(c *gin.Context) {
	var packs []RigPack
	if err := m.db.Order("created_at desc").Find(&packs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rig packs"})
		return
	}

	result := make([]packDTO, 0, len(packs))
	for _, pack := range packs {
		result = append(result, toDTO(&pack))
	}

	c.JSON(http.StatusOK, gin.H{"packs": result})
}

func (m *Module) handleGet(c *gin.Context) {
	pack, err := m.fetchByParam(c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rig pack not found"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"pack": toDTO(pack)})
}

func (m *Module) handleCreate(c *gin.Context) {
	var form createPackForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form payload"})
		return
	}

	name := strings.TrimSpace(form.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	archive, err := c.FormFile("archive")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "archive file is required"})
		return
	}

	folder, entryFile, previewFile, err := m.storage.SaveArchive(archive)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, err := m.generateKey(name)
	if err != nil {
		m.storage.Remove(folder)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate pack key"})
		return
	}

	pack := RigPack{
		Key:       key,
		Name:      name,
		Folder:    folder,
		EntryFile: entryFile,
	}
	if description := strings.TrimSpace(form.Description); description != "" {
		pack.Description = &description
	}
	if previewFile != nil {
		pack.PreviewFile = previewFile
	}

	if err := m.db.Create(&pack).Error; err != nil {
		m.storage.Remove(folder)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create rig pack"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"pack": toDTO(&pack)})
}

func (m *Module) handleDelete(c *gin.Context) {
	pack, err := m.fetchByParam(c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rig pack not found"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	if m.characters != nil {
		count, err := m.characters.CountByRigPack(c.Request.Context(), pack.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check character references"})
			return
		}
		if count > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "rig pack is in use by existing characters"})
			return
		}
	}

	if err := m.db.Delete(&RigPack{}, pack.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete rig pack"})
		return
	}

	if err := m.storage.Remove(pack.Folder); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rig pack deleted but failed to remove files"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (m *Module) handleServeFile(c *gin.Context) {
	pack, err := m.fetchByParam(c.Param("id"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	rel := normalizeRelPath(c.Param("filepath"))
	if rel == "" {
		c.Status(http.StatusNotFound)
		return
	}

	base := filepath.Join(m.storage.BaseDir(), pack.Folder)
	target := filepath.Join(base, filepath.FromSlash(rel))
	if !strings.HasPrefix(target, base+string(os.PathSeparator)) && target != base {
		c.Status(http.StatusForbidden)
		return
	}

	if _, err := os.Stat(target); err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	c.Header("Cache-Control", "public, max-age=86400")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")

	c.File(target)
}

func (m *Module) fetchByParam(param string) (*RigPack, error) {
	trimmed := strings.TrimSpace(param)
	if trimmed == "" {
		return nil, errors.New("missing id")
	}

	var pack RigPack
	if id, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
		if err := m.db.First(&pack, "id = ?", id).Error; err != nil {
			return nil, err
		}
		return &pack, nil
	}

	if err := m.db.First(&pack, "`key` = ?", trimmed).Error; err != nil {
		return nil, err
	}
	return &pack, nil
}

func toDTO(pack *RigPack) packDTO {
	dto := packDTO{
		ID:        pack.ID,
		Key:       pack.Key,
		Name:      pack.Name,
		EntryURL:  buildFileURL(pack.ID, pack.EntryFile),
		CreatedAt: pack.CreatedAt.Unix(),
		UpdatedAt: pack.UpdatedAt.Unix(),
	}
	if pack.Description != nil {
		dto.Description = pack.Description
	}
	if pack.PreviewFile != nil {
		if preview := buildFileURL(pack.ID, *pack.PreviewFile); preview != "" {
			dto.PreviewURL = &preview
		}
	}
	return dto
}

func (m *Module) generateKey(name string) (string, error) {
	base := slugify(name)
	if base == "" {
		base = fmt.Sprintf("pack-%s", uuidChunk())
	}
	key := base
	for i := 1; i < 50; i++ {
		var count int64
		if err := m.db.Model(&RigPack{}).Where("`key` = ?", key).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return key, nil
		}
		key = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%s", base, uuidChunk()), nil
}

func slugify(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	prevHyphen := true
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			prevHyphen = false
		default:
			if !prevHyphen {
				b.WriteRune('-')
				prevHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func uuidChunk() string {
	id := uuid.NewString()
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func buildFileURL(id uint64, relative string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(relative), "/")
	if trimmed == "" {
		return ""
	}
	parts := strings.Split(trimmed, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return fmt.Sprintf("/rig-packs/%d/files/%s", id, strings.Join(parts, "/"))
}
