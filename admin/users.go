package admin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jyurniq/auth"
	"jyurniq/blog"
	"jyurniq/cache"
	"jyurniq/common"
	"jyurniq/models"
)

type userSummary struct {
	models.User
	BlogCount int64 `json:"blogCount"`
}

func (a *AdminModule) listUsers(c *gin.Context) {
	var users []models.User
	if err := a.db.Order("created_at DESC, id DESC").Find(&users).Error; err != nil {
		a.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load users"})
		return
	}

	type row struct {
		AuthorID uint
		Count    int64
	}
	var rows []row
	err := a.db.Model(&models.Blog{}).Select("author_id, COUNT(*) AS count").Group("author_id").Scan(&rows).Error
	if err != nil {
		a.log.Error().Err(err).Msg("failed to count blogs per user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load users"})
		return
	}
	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.AuthorID] = r.Count
	}

	out := make([]userSummary, 0, len(users))
	for _, u := range users {
		u.Role = models.NormalizeRole(u.Role)
		out = append(out, userSummary{User: u, BlogCount: counts[u.ID]})
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

func (a *AdminModule) getUser(c *gin.Context) {
	id, ok := parseID(c, "user")
	if !ok {
		return
	}

	var user models.User
	if err := a.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		a.log.Error().Err(err).Uint("user_id", id).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}
	user.Role = models.NormalizeRole(user.Role)

	var blogs []models.Blog
	var comments, sent, received int64
	err := a.db.Where("author_id = ?", user.ID).Order("created_at DESC, id DESC").Find(&blogs).Error
	if err == nil {
		err = a.db.Model(&models.Comment{}).Where("author_id = ?", user.ID).Count(&comments).Error
	}
	if err == nil {
		err = a.db.Model(&models.Payment{}).Where("customer_id = ?", user.ID).Count(&sent).Error
	}
	if err == nil {
		err = a.db.Model(&models.Payment{}).Where("blogger_id = ?", user.ID).Count(&received).Error
	}
	if err != nil {
		a.log.Error().Err(err).Uint("user_id", user.ID).Msg("failed to load user activity")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":             user,
		"blogs":            present(blogs),
		"commentCount":     comments,
		"paymentsSent":     sent,
		"paymentsReceived": received,
	})
}

type roleRequest struct {
	Role string `json:"role" binding:"required,role"`
}

func (a *AdminModule) updateUserRole(c *gin.Context) {
	id, ok := parseID(c, "user")
	if !ok {
		return
	}

	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": common.ValidationMessage(err)})
		return
	}

	current := auth.CurrentUser(c)
	if current.ID == id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot change your own role"})
		return
	}

	var user models.User
	if err := a.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	role := models.NormalizeRole(req.Role)
	if err := a.db.Model(&user).Update("role", role).Error; err != nil {
		a.log.Error().Err(err).Uint("user_id", id).Msg("failed to update role")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
		return
	}
	a.log.Info().Uint("user_id", id).Uint("admin_id", current.ID).Str("role", role).Msg("role changed")

	user.Role = role
	c.JSON(http.StatusOK, user)
}

func (a *AdminModule) deleteUser(c *gin.Context) {
	id, ok := parseID(c, "user")
	if !ok {
		return
	}

	if auth.CurrentUser(c).ID == id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot delete your own account"})
		return
	}

	var user models.User
	if err := a.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var owned []models.Blog
	err := a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id", "slug").Where("author_id = ?", user.ID).Find(&owned).Error; err != nil {
			return err
		}
		ids := make([]uint, 0, len(owned))
		for _, b := range owned {
			ids = append(ids, b.ID)
		}
		if err := blog.DeleteBlogs(tx, ids...); err != nil {
			return err
		}
		if err := tx.Where("author_id = ?", user.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		a.log.Error().Err(err).Uint("user_id", id).Msg("failed to delete user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}

	for _, b := range owned {
		if err := cache.InvalidateBlog(c.Request.Context(), a.pages, b.Slug); err != nil {
			a.log.Warn().Err(err).Str("slug", b.Slug).Msg("failed to invalidate page cache")
		}
	}
	a.log.Info().Uint("user_id", id).Int("blogs", len(owned)).Msg("user deleted")

	c.JSON(http.StatusOK, gin.H{"success": true})
}
