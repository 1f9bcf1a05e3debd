package users

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"jyurniq/auth"
	"jyurniq/common"
	"jyurniq/models"
)

type UsersModule struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewUsersModule(db *gorm.DB) *UsersModule {
	common.RegisterValidators()
	return &UsersModule{
		db:  db,
		log: common.NewLogger("users"),
	}
}

func (u *UsersModule) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/users")
	{
		group.GET("/profile", auth.RequireAuth(), u.getProfile)
		group.PATCH("/profile", auth.RequireAuth(), u.updateProfile)
		group.GET("/contact", auth.RequireAuth(), u.getContact)
		group.PATCH("/contact", auth.RequireAuth(), u.updateContact)
		group.GET("/:id", u.publicProfile)
	}
}

func (u *UsersModule) getProfile(c *gin.Context) {
	c.JSON(http.StatusOK, auth.CurrentUser(c))
}

type profileRequest struct {
	Name   *string `json:"name" binding:"omitempty,min=2,max=80"`
	Avatar *string `json:"avatar" binding:"omitempty,max=500"`
	Bio    *string `json:"bio" binding:"omitempty,max=2000"`
}

func (u *UsersModule) updateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": common.ValidationMessage(err)})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if utf8.RuneCountInString(name) < 2 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name must be at least 2 characters"})
			return
		}
		updates["name"] = name
	}
	if req.Avatar != nil {
		avatar := strings.TrimSpace(*req.Avatar)
		if avatar != "" && !isHTTPURL(avatar) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "avatar must be a valid URL"})
			return
		}
		updates["avatar"] = avatar
	}
	if req.Bio != nil {
		updates["bio"] = strings.TrimSpace(*req.Bio)
	}

	u.save(c, updates, func(user *models.User) interface{} { return user })
}

// contactSettings is the shape of GET/PATCH /api/users/contact.
type contactSettings struct {
	ContactEnabled    bool            `json:"contactEnabled"`
	QuestionPrice     decimal.Decimal `json:"questionPrice"`
	ConversationPrice decimal.Decimal `json:"conversationPrice"`
	Bio               string          `json:"bio"`
}

func contactOf(user *models.User) interface{} {
	return contactSettings{
		ContactEnabled:    user.ContactEnabled,
		QuestionPrice:     user.QuestionPrice,
		ConversationPrice: user.ConversationPrice,
		Bio:               user.Bio,
	}
}

func (u *UsersModule) getContact(c *gin.Context) {
	c.JSON(http.StatusOK, contactOf(auth.CurrentUser(c)))
}

type contactRequest struct {
	ContactEnabled    *bool            `json:"contactEnabled"`
	QuestionPrice     *decimal.Decimal `json:"questionPrice"`
	ConversationPrice *decimal.Decimal `json:"conversationPrice"`
	Bio               *string          `json:"bio" binding:"omitempty,max=2000"`
}

func (u *UsersModule) updateContact(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": common.ValidationMessage(err)})
		return
	}

	updates := map[string]interface{}{}
	if req.ContactEnabled != nil {
		updates["contact_enabled"] = *req.ContactEnabled
	}
	if req.QuestionPrice != nil {
		if req.QuestionPrice.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "questionPrice must be at least 0"})
			return
		}
		updates["question_price"] = req.QuestionPrice.Round(2)
	}
	if req.ConversationPrice != nil {
		if req.ConversationPrice.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversationPrice must be at least 0"})
			return
		}
		updates["conversation_price"] = req.ConversationPrice.Round(2)
	}
	if req.Bio != nil {
		updates["bio"] = strings.TrimSpace(*req.Bio)
	}

	u.save(c, updates, contactOf)
}

// save applies updates to the signed-in user and answers with present(reloaded user).
func (u *UsersModule) save(c *gin.Context, updates map[string]interface{}, present func(*models.User) interface{}) {
	user := auth.CurrentUser(c)
	if len(updates) > 0 {
		if err := u.db.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			u.log.Error().Err(err).Uint("user_id", user.ID).Msg("failed to update user")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
			return
		}
	}

	var fresh models.User
	if err := u.db.First(&fresh, user.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load profile"})
		return
	}
	fresh.Role = models.NormalizeRole(fresh.Role)
	c.JSON(http.StatusOK, present(&fresh))
}

type publicProfile struct {
	*models.PublicUser
	PublishedBlogs int64 `json:"publishedBlogs"`
}

func (u *UsersModule) publicProfile(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	var user models.User
	if err := u.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		u.log.Error().Err(err).Uint64("user_id", id).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load profile"})
		return
	}

	var published int64
	err = u.db.Model(&models.Blog{}).
		Where("author_id = ? AND privacy = ? AND approved = ?", user.ID, models.PrivacyPublic, true).
		Count(&published).Error
	if err != nil {
		u.log.Error().Err(err).Uint("user_id", user.ID).Msg("failed to count published blogs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load profile"})
		return
	}

	c.JSON(http.StatusOK, publicProfile{PublicUser: user.Public(), PublishedBlogs: published})
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
