package admin

import (
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"jyurniq/auth"
	"jyurniq/cache"
	"jyurniq/common"
	"jyurniq/models"
	"jyurniq/monitoring"
)

const maxNoteLen = 1000

func (a *AdminModule) pendingBlogs(c *gin.Context) {
	var blogs []models.Blog
	err := a.db.Preload("Author").
		Where("status = ?", models.StatusPending).
		Or("(status IS NULL OR status = '') AND approved = ? AND (rejection_note IS NULL OR rejection_note = '')", false).
		Order("created_at DESC, id DESC").
		Find(&blogs).Error
	if err != nil {
		a.log.Error().Err(err).Msg("failed to load pending blogs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load blogs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"blogs": present(blogs)})
}

var (
	statusFilters  = map[string]bool{"all": true, models.StatusApproved: true, models.StatusPending: true, models.StatusRejected: true}
	privacyFilters = map[string]bool{"all": true, models.PrivacyPublic: true, models.PrivacyPrivate: true}
)

func (a *AdminModule) allBlogs(c *gin.Context) {
	status := c.DefaultQuery("status", "all")
	privacy := c.DefaultQuery("privacy", "all")
	if !statusFilters[status] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of: all approved pending rejected"})
		return
	}
	if !privacyFilters[privacy] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "privacy must be one of: all public private"})
		return
	}

	query := a.db.Preload("Author").Order("created_at DESC, id DESC")
	if status != "all" {
		query = query.Where("status = ?", status)
	}
	if privacy != "all" {
		query = query.Where("privacy = ?", privacy)
	}

	var blogs []models.Blog
	if err := query.Find(&blogs).Error; err != nil {
		a.log.Error().Err(err).Msg("failed to load blogs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load blogs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"blogs": present(blogs)})
}

func (a *AdminModule) approveBlog(c *gin.Context) {
	a.moderate(c, models.StatusApproved, func(*models.Blog, *models.User) (map[string]interface{}, bool) {
		return map[string]interface{}{
			"approved":       true,
			"status":         models.StatusApproved,
			"rejection_note": "",
			"rejected_at":    nil,
			"rejected_by_id": nil,
		}, true
	})
}

type rejectRequest struct {
	Note string `json:"note" binding:"required,max=1000"`
}

func (a *AdminModule) rejectBlog(c *gin.Context) {
	a.moderate(c, models.StatusRejected, func(blog *models.Blog, moderator *models.User) (map[string]interface{}, bool) {
		var req rejectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": common.ValidationMessage(err)})
			return nil, false
		}
		note := strings.TrimSpace(req.Note)
		if note == "" || utf8.RuneCountInString(note) > maxNoteLen {
			c.JSON(http.StatusBadRequest, gin.H{"error": "note must be between 1 and 1000 characters"})
			return nil, false
		}
		return map[string]interface{}{
			"approved":       false,
			"status":         models.StatusRejected,
			"rejection_note": note,
			"rejected_at":    time.Now(),
			"rejected_by_id": moderator.ID,
		}, true
	})
}

// moderate loads the blog named in the path, applies the decision's updates and
// answers with the updated blog. decide may answer the request itself and return false.
func (a *AdminModule) moderate(c *gin.Context, decision string, decide func(*models.Blog, *models.User) (map[string]interface{}, bool)) {
	id, ok := parseID(c, "blog")
	if !ok {
		return
	}

	var blog models.Blog
	if err := a.db.First(&blog, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Blog not found"})
		return
	}

	moderator := auth.CurrentUser(c)
	updates, ok := decide(&blog, moderator)
	if !ok {
		return
	}

	if err := a.db.Model(&blog).Updates(updates).Error; err != nil {
		a.log.Error().Err(err).Uint("blog_id", blog.ID).Str("decision", decision).Msg("failed to moderate blog")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update blog"})
		return
	}
	monitoring.RecordModeration(decision)
	if err := cache.InvalidateBlog(c.Request.Context(), a.pages, blog.Slug); err != nil {
		a.log.Warn().Err(err).Str("slug", blog.Slug).Msg("failed to invalidate page cache")
	}

	a.log.Info().
		Uint("blog_id", blog.ID).
		Uint("moderator_id", moderator.ID).
		Str("decision", decision).
		Msg("blog moderated")

	var updated models.Blog
	if err := a.db.Preload("Author").First(&updated, blog.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load blog"})
		return
	}
	c.JSON(http.StatusOK, present([]models.Blog{updated})[0])
}

// clearBlogCache drops a blog's rendered pages without changing the blog.
func (a *AdminModule) clearBlogCache(c *gin.Context) {
	id, ok := parseID(c, "blog")
	if !ok {
		return
	}

	var blog models.Blog
	if err := a.db.Select("id", "slug").First(&blog, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Blog not found"})
		return
	}

	if err := cache.InvalidateBlog(c.Request.Context(), a.pages, blog.Slug); err != nil {
		a.log.Error().Err(err).Str("slug", blog.Slug).Msg("failed to clear page cache")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear cache"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "keys": cache.BlogKeys(blog.Slug)})
}
