package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"jyurniq/common"
	"jyurniq/email"
	"jyurniq/models"
	"jyurniq/monitoring"
)

type AuthModule struct {
	db     *gorm.DB
	mailer email.Sender
	cfg    *common.Config
	log    zerolog.Logger
}

func NewAuthModule(db *gorm.DB, mailer email.Sender, cfg *common.Config) *AuthModule {
	common.RegisterValidators()
	return &AuthModule{
		db:     db,
		mailer: mailer,
		cfg:    cfg,
		log:    common.NewLogger("auth"),
	}
}

func (a *AuthModule) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/auth")
	{
		group.POST("/register", a.register)
		group.GET("/verify", a.verify)
		group.POST("/resend-verification", a.resendVerification)
		group.POST("/login", a.login)
		group.POST("/logout", a.logout)
		group.GET("/session", RequireAuth(), a.session)
	}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=80"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

func (a *AuthModule) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": common.ValidationMessage(err)})
		return
	}

	name := strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(name) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name must be at least 2 characters"})
		return
	}
	address := strings.ToLower(strings.TrimSpace(req.Email))

	var count int64
	if err := a.db.Model(&models.User{}).Where("email = ?", address).Count(&count).Error; err != nil {
		a.log.Error().Err(err).Msg("failed to check existing email")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return
	}

	passwordHash, err := HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}
	token, err := generateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	role := models.RoleViewer
	if a.cfg.IsAdminEmail(address) {
		role = models.RoleAdmin
	}

	user := models.User{
		Name:              name,
		Email:             address,
		PasswordHash:      passwordHash,
		Role:              role,
		VerificationToken: token,
		QuestionPrice:     decimal.NewFromInt(20),
		ConversationPrice: decimal.NewFromInt(100),
	}
	if err := a.db.Create(&user).Error; err != nil {
		// a concurrent sign-up can win the unique index after the check above
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
			return
		}
		a.log.Error().Err(err).Str("email", address).Msg("failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}
	monitoring.RecordRegistration()

	// registration succeeds even when the mail does not go out; the user can ask for a resend
	if a.mailer != nil && a.mailer.Configured() {
		if err := a.sendVerification(c.Request.Context(), &user, token); err != nil {
			a.log.Warn().Err(err).Uint("user_id", user.ID).Msg("verification email not sent")
		}
	} else {
		monitoring.RecordVerificationEmail("skipped")
		a.log.Warn().Uint("user_id", user.ID).Msg("email not configured, skipping verification email")
	}

	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "email": user.Email})
}

func (a *AuthModule) sendVerification(ctx context.Context, user *models.User, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := a.mailer.SendVerificationEmail(ctx, user.Email, user.Name, token); err != nil {
		monitoring.RecordVerificationEmail("failed")
		return err
	}
	monitoring.RecordVerificationEmail("sent")
	return nil
}

func (a *AuthModule) verify(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Verification token is required"})
		return
	}

	var user models.User
	if err := a.db.Where("verification_token = ?", token).First(&user).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired verification token"})
		return
	}

	err := a.db.Model(&user).Updates(map[string]interface{}{
		"email_verified":     true,
		"verification_token": "",
	}).Error
	if err != nil {
		a.log.Error().Err(err).Uint("user_id", user.ID).Msg("failed to verify email")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify email"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email verified"})
}

type resendRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (a *AuthModule) resendVerification(c *gin.Context) {
	var req resendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": common.ValidationMessage(err)})
		return
	}

	var user models.User
	if err := a.db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if user.EmailVerified {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already verified"})
		return
	}

	token, err := generateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	// the new token replaces the old one, so earlier links stop working
	if err := a.db.Model(&user).Update("verification_token", token).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	if a.mailer == nil || !a.mailer.Configured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Email service not configured"})
		return
	}
	if err := a.sendVerification(c.Request.Context(), &user, token); err != nil {
		a.log.Error().Err(err).Uint("user_id", user.ID).Msg("failed to resend verification email")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send verification email"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Verification email sent"})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (a *AuthModule) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": common.ValidationMessage(err)})
		return
	}

	var user models.User
	if err := a.db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}
	if !checkPasswordHash(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}
	if !user.EmailVerified {
		c.JSON(http.StatusForbidden, gin.H{"error": "Email not verified. Please check your inbox."})
		return
	}

	session := sessions.Default(c)
	session.Set(SessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		a.log.Error().Err(err).Msg("failed to save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign in"})
		return
	}

	user.Role = models.NormalizeRole(user.Role)
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (a *AuthModule) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	session.Save()

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *AuthModule) session(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": CurrentUser(c)})
}
