package authorization

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	identityKey    = "member_id"
	roleKey        = "role"
	defaultTimeout = time.Hour
)

// Member roles.
const (
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleMember  = "MEMBER"
)

// Member lifecycle states.
const (
	StatusActivate = "ACTIVATE"
	StatusDisabled = "DISABLED"
)

// Subscription grades.
const (
	GradeFree    = "FREE"
	GradeBasic   = "BASIC"
	GradePremium = "PREMIUM"
)

var (
	ErrUsernameTaken   = errors.New("authorization: username already exists")
	ErrWeakPassword    = errors.New("authorization: password must be at least 6 characters")
	ErrInvalidNickname = errors.New("authorization: nickname cannot be empty")
)

// Member represents an application account that owns characters.
type Member struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	Nickname     string `gorm:"size:128;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Role         string `gorm:"size:16;not null;default:'MEMBER'"`
	Status       string `gorm:"size:16;not null;default:'ACTIVATE'"`
	Grade        string `gorm:"size:16;not null;default:'FREE'"`
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName keeps the original table naming.
func (Member) TableName() string {
	return "member"
}

// Module wires together the JWT middleware and backing services.
type Module struct {
	db            *gorm.DB
	memberStore   *MemberStore
	jwtMiddleware *jwt.GinJWTMiddleware
	captcha       *CaptchaStore
}

// RegisterRoutes bootstraps the authentication endpoints under /auth.
func RegisterRoutes(router *gin.Engine) (*Module, error) {
	dsn := strings.TrimSpace(os.Getenv("DATABASE_DSN"))
	if dsn == "" {
		return nil, errors.New("authorization: DATABASE_DSN environment variable is required")
	}

	driver := strings.TrimSpace(os.Getenv("DATABASE_DRIVER"))
	if driver == "" {
		driver = inferDriverFromDSN(dsn)
		if driver == "" {
			return nil, errors.New("authorization: DATABASE_DRIVER environment variable is required when DSN does not contain a scheme")
		}
	}

	db, err := openDatabase(driver, dsn)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Member{}); err != nil {
		return nil, fmt.Errorf("authorization: migrate models: %w", err)
	}

	memberStore := &MemberStore{db: db}
	captchaStore := NewCaptchaStore(3 * time.Minute)
	authService := &AuthService{members: memberStore}

	middleware, err := buildJWTMiddleware(authService)
	if err != nil {
		return nil, err
	}

	module := &Module{db: db, memberStore: memberStore, jwtMiddleware: middleware, captcha: captchaStore}

	authGroup := router.Group("/auth")
	authGroup.GET("/captcha", func(c *gin.Context) {
		challenge := captchaStore.Issue()
		c.JSON(http.StatusOK, gin.H{
			"captcha_id": challenge.ID,
			"image":      challenge.ImageBase64,
			"expires_at": challenge.ExpiresAt.UTC(),
		})
	})
	authGroup.POST("/register", func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
			return
		}

		if captchaStore != nil && !captchaStore.Verify(req.CaptchaID, req.CaptchaAnswer) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid captcha"})
			return
		}

		ctx := c.Request.Context()
		member, err := authService.Register(ctx, req.Username, req.Password, req.Nickname)
		if err != nil {
			switch {
			case errors.Is(err, jwt.ErrMissingLoginValues):
				c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			case errors.Is(err, ErrWeakPassword):
				c.JSON(http.StatusBadRequest, gin.H{"error": ErrWeakPassword.Error()})
			case errors.Is(err, ErrInvalidNickname):
				c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidNickname.Error()})
			case errors.Is(err, ErrUsernameTaken):
				c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register"})
			}
			return
		}

		c.JSON(http.StatusCreated, gin.H{"member": buildMemberPayload(member)})
	})

	authGroup.POST("/login", middleware.LoginHandler)
	authGroup.POST("/refresh", middleware.RefreshHandler)

	secured := authGroup.Group("")
	secured.Use(middleware.MiddlewareFunc())
	secured.GET("/profile", func(c *gin.Context) {
		member, ok := module.currentMember(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"member": buildMemberPayload(member)})
	})

	secured.PUT("/profile", func(c *gin.Context) {
		var req UpdateProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
			return
		}
		if req.Nickname == nil && req.Password == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
			return
		}

		claims := jwt.ExtractClaims(c)
		memberID := extractMemberID(claims)
		if memberID == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := c.Request.Context()
		updated, err := memberStore.UpdateProfile(ctx, memberID, UpdateProfileParams{
			Nickname: req.Nickname,
			Password: req.Password,
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidNickname):
				c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidNickname.Error()})
			case errors.Is(err, ErrWeakPassword):
				c.JSON(http.StatusBadRequest, gin.H{"error": ErrWeakPassword.Error()})
			case errors.Is(err, gorm.ErrRecordNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"member": buildMemberPayload(updated)})
	})

	secured.DELETE("/account", func(c *gin.Context) {
		claims := jwt.ExtractClaims(c)
		memberID := extractMemberID(claims)
		if memberID == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if err := memberStore.Disable(c.Request.Context(), memberID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to disable account"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "disabled"})
	})

	return module, nil
}

func (m *Module) Middleware() gin.HandlerFunc {
	if m == nil || m.jwtMiddleware == nil {
		return nil
	}
	return m.jwtMiddleware.MiddlewareFunc()
}

func (m *Module) currentMember(c *gin.Context) (*Member, bool) {
	claims := jwt.ExtractClaims(c)
	memberID := extractMemberID(claims)
	if memberID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return nil, false
	}

	member, err := m.memberStore.FindByID(c.Request.Context(), memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load member"})
		}
		return nil, false
	}
	return member, true
}

func openDatabase(driver, dsn string) (*gorm.DB, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pg":
		return gorm.Open(postgres.Open(dsn), &gorm.Config{NowFunc: func() time.Time { return time.Now().UTC() }})
	case "mysql":
		return gorm.Open(mysql.Open(dsn), &gorm.Config{NowFunc: func() time.Time { return time.Now().UTC() }})
	case "sqlite", "sqlite3":
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{NowFunc: func() time.Time { return time.Now().UTC() }})
	default:
		return nil, fmt.Errorf("authorization: unsupported database driver %q", driver)
	}
}

func inferDriverFromDSN(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(lower, "mysql://"):
		return "mysql"
	case strings.HasPrefix(lower, "sqlite://"), strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"):
		return "sqlite"
	default:
		return ""
	}
}

func buildJWTMiddleware(service *AuthService) (*jwt.GinJWTMiddleware, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return nil, errors.New("authorization: JWT_SECRET environment variable is required")
	}

	return jwt.New(&jwt.GinJWTMiddleware{
		Realm:       "greedot",
		Key:         []byte(secret),
		Timeout:     defaultTimeout,
		MaxRefresh:  24 * time.Hour,
		IdentityKey: identityKey,
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if member, ok := data.(*AuthenticatedMember); ok {
				return jwt.MapClaims{
					identityKey: member.ID,
					"username":  member.Username,
					roleKey:     member.Role,
				}
			}
			return jwt.MapClaims{}
		},
		IdentityHandler: func(c *gin.Context) interface{} {
			claims := jwt.ExtractClaims(c)
			username, _ := claims["username"].(string)
			role, _ := claims[roleKey].(string)
			return &AuthenticatedMember{ID: extractMemberID(claims), Username: username, Role: role}
		},
		Authenticator: func(c *gin.Context) (interface{}, error) {
			var req LoginRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				return nil, jwt.ErrMissingLoginValues
			}
			return service.Authenticate(c.Request.Context(), req.Username, req.Password)
		},
		Authorizator: func(data interface{}, c *gin.Context) bool {
			_, ok := data.(*AuthenticatedMember)
			return ok
		},
		Unauthorized: func(c *gin.Context, code int, message string) {
			c.JSON(code, gin.H{"error": message})
		},
		LoginResponse: func(c *gin.Context, code int, token string, expire time.Time) {
			response := gin.H{
				"token":  token,
				"expire": expire,
			}

			claims := jwt.ExtractClaims(c)
			memberID := extractMemberID(claims)
			if memberID != 0 {
				if member, err := service.members.FindByID(c.Request.Context(), memberID); err == nil {
					response["member"] = buildMemberPayload(member)
				}
			}

			c.JSON(code, response)
		},
		TokenLookup:   "header: Authorization, cookie: jwt, cookie: token",
		TokenHeadName: "Bearer",
		TimeFunc:      time.Now,
	})
}

// LoginRequest represents the expected payload for the login endpoint.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest captures the payload for member registration.
type RegisterRequest struct {
	Username      string `json:"username" binding:"required"`
	Nickname      string `json:"nickname" binding:"required"`
	Password      string `json:"password" binding:"required,min=6"`
	CaptchaID     string `json:"captcha_id" binding:"required"`
	CaptchaAnswer string `json:"captcha_answer" binding:"required"`
}

// UpdateProfileRequest captures profile update fields.
type UpdateProfileRequest struct {
	Nickname *string `json:"nickname"`
	Password *string `json:"password"`
}

// AuthenticatedMember is the minimal identity stored inside JWT claims.
type AuthenticatedMember struct {
	ID       uint
	Username string
	Role     string
}

// AuthService handles authentication concerns.
type AuthService struct {
	members *MemberStore
}

// Authenticate validates the given credentials and returns an authenticated
// member. Disabled accounts are rejected as if the credentials were wrong.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*AuthenticatedMember, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return nil, jwt.ErrMissingLoginValues
	}

	member, err := s.members.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, jwt.ErrFailedAuthentication
		}
		return nil, fmt.Errorf("authorization: authenticate member: %w", err)
	}

	if member.Status == StatusDisabled {
		return nil, jwt.ErrFailedAuthentication
	}

	if err := bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(password)); err != nil {
		return nil, jwt.ErrFailedAuthentication
	}

	_ = s.members.TouchLastLogin(ctx, member.ID)

	return &AuthenticatedMember{ID: member.ID, Username: member.Username, Role: member.Role}, nil
}

// Register creates a new member with the provided credentials.
func (s *AuthService) Register(ctx context.Context, username, password, nickname string) (*Member, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	nickname = strings.TrimSpace(nickname)

	if username == "" || password == "" {
		return nil, jwt.ErrMissingLoginValues
	}
	if len(password) < 6 {
		return nil, ErrWeakPassword
	}
	if nickname == "" {
		return nil, ErrInvalidNickname
	}

	if exists, err := s.members.UsernameExists(ctx, username); err != nil {
		return nil, fmt.Errorf("authorization: check username: %w", err)
	} else if exists {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("authorization: hash password: %w", err)
	}

	member := &Member{
		Username:     username,
		Nickname:     nickname,
		PasswordHash: string(hash),
		Role:         RoleMember,
		Status:       StatusActivate,
		Grade:        GradeFree,
	}
	if err := s.members.Create(ctx, member); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("authorization: create member: %w", err)
	}

	return member, nil
}

// MemberStore provides data access helpers backed by GORM.
type MemberStore struct {
	db *gorm.DB
}

// UpdateProfileParams holds the fields eligible for profile updates.
type UpdateProfileParams struct {
	Nickname *string
	Password *string
}

// FindByID loads a member by primary key.
func (s *MemberStore) FindByID(ctx context.Context, id uint) (*Member, error) {
	if s == nil {
		return nil, errors.New("authorization: member store not initialized")
	}
	var member Member
	result := s.db.WithContext(ctx).Where("id = ?", id).First(&member)
	if result.Error != nil {
		return nil, result.Error
	}
	return &member, nil
}

// FindByUsername loads a member by unique username.
func (s *MemberStore) FindByUsername(ctx context.Context, username string) (*Member, error) {
	var member Member
	result := s.db.WithContext(ctx).Where("username = ?", username).First(&member)
	if result.Error != nil {
		return nil, result.Error
	}
	return &member, nil
}

// UsernameExists reports whether a member already uses the given username.
func (s *MemberStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Member{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

// Create inserts a new member record.
func (s *MemberStore) Create(ctx context.Context, member *Member) error {
	return s.db.WithContext(ctx).Create(member).Error
}

// TouchLastLogin stamps the last successful login time.
func (s *MemberStore) TouchLastLogin(ctx context.Context, id uint) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&Member{}).Where("id = ?", id).
		Update("last_login_at", now).Error
}

// UpdateProfile persists profile related fields for the given member id.
func (s *MemberStore) UpdateProfile(ctx context.Context, memberID uint, params UpdateProfileParams) (*Member, error) {
	if s == nil {
		return nil, errors.New("authorization: member store not initialized")
	}

	updates := make(map[string]interface{})

	if params.Nickname != nil {
		nickname := strings.TrimSpace(*params.Nickname)
		if nickname == "" {
			return nil, ErrInvalidNickname
		}
		updates["nickname"] = nickname
	}

	if params.Password != nil {
		password := strings.TrimSpace(*params.Password)
		if len(password) < 6 {
			return nil, ErrWeakPassword
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("authorization: hash password: %w", err)
		}
		updates["password_hash"] = string(hash)
	}

	if len(updates) == 0 {
		return s.FindByID(ctx, memberID)
	}

	updates["updated_at"] = time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&Member{}).Where("id = ?", memberID).Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	return s.FindByID(ctx, memberID)
}

// Disable soft-disables the member account.
func (s *MemberStore) Disable(ctx context.Context, memberID uint) error {
	result := s.db.WithContext(ctx).Model(&Member{}).Where("id = ?", memberID).
		Updates(map[string]interface{}{"status": StatusDisabled, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func extractMemberID(claims jwt.MapClaims) uint {
	if claims == nil {
		return 0
	}
	idValue, ok := claims[identityKey]
	if !ok {
		return 0
	}

	switch v := idValue.(type) {
	case float64:
		return uint(v)
	case int64:
		return uint(v)
	case uint64:
		return uint(v)
	case int:
		return uint(v)
	case uint:
		return v
	}
	return 0
}

func buildMemberPayload(member *Member) gin.H {
	if member == nil {
		return gin.H{}
	}

	return gin.H{
		"id":            member.ID,
		"username":      member.Username,
		"nickname":      member.Nickname,
		"role":          member.Role,
		"status":        member.Status,
		"grade":         member.Grade,
		"last_login_at": member.LastLoginAt,
		"created_at":    member.CreatedAt,
		"updated_at":    member.UpdatedAt,
	}
}
