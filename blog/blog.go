package blog

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"jyurniq/analytics"
	"jyurniq/auth"
	"jyurniq/cache"
	"jyurniq/common"
	"jyurniq/models"
	"jyurniq/monitoring"
)

const (
	defaultPageSize = 12
	maxPageSize     = 50
)

type BlogModule struct {
	db        *gorm.DB
	pages     cache.Store
	analytics *analytics.AnalyticsModule
	log       zerolog.Logger
}

func NewBlogModule(db *gorm.DB, pages cache.Store, analyticsModule *analytics.AnalyticsModule) *BlogModule {
	common.RegisterValidators()
	return &BlogModule{
		db:        db,
		pages:     pages,
		analytics: analyticsModule,
		log:       common.NewLogger("blog"),
	}
}

func (b *BlogModule) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/blogs")
	{
		group.GET("", b.list)
		group.POST("", auth.RequireRole(models.CanSubmitBlogs), b.create)
		group.GET("/my", auth.RequireAuth(), b.myBlogs)
		group.GET("/:id", b.get)
		group.PATCH("/:id", auth.RequireAuth(), b.update)
		group.DELETE("/:id", auth.RequireAuth(), b.delete)
		group.GET("/:id/comments", b.listComments)
		group.POST("/:id/comments", auth.RequireAuth(), b.createComment)
	}
}

// BlogResponse is a blog with its author's public profile.
type BlogResponse struct {
	models.Blog
	Author *models.PublicUser `json:"author,omitempty"`
}

func Present(blog *models.Blog) BlogResponse {
	if blog.Images == nil {
		blog.Images = datatypes.JSONSlice[string]{}
	}
	return BlogResponse{Blog: *blog, Author: blog.Author.Public()}
}

func presentAll(blogs []models.Blog) []BlogResponse {
	out := make([]BlogResponse, 0, len(blogs))
	for i := range blogs {
		out = append(out, Present(&blogs[i]))
	}
	return out
}

// PublishedScope restricts a query to blogs that belong in the public feed.
func PublishedScope(tx *gorm.DB) *gorm.DB {
	return tx.Where("privacy = ? AND approved = ?", models.PrivacyPublic, true)
}

func pagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

func (b *BlogModule) list(c *gin.Context) {
	scopes := []func(*gorm.DB) *gorm.DB{PublishedScope}

	if location := strings.TrimSpace(c.Query("location")); location != "" {
		scopes = append(scopes, func(tx *gorm.DB) *gorm.DB {
			return tx.Where("LOWER(location) = ?", strings.ToLower(location))
		})
	}
	if travelType := c.Query("travelType"); travelType != "" {
		scopes = append(scopes, func(tx *gorm.DB) *gorm.DB {
			return tx.Where("travel_type = ?", travelType)
		})
	}
	if author := c.Query("author"); author != "" {
		authorID, err := strconv.ParseUint(author, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid author id"})
			return
		}
		scopes = append(scopes, func(tx *gorm.DB) *gorm.DB {
			return tx.Where("author_id = ?", authorID)
		})
	}

	page, limit := pagination(c)

	var total int64
	if err := b.db.Model(&models.Blog{}).Scopes(scopes...).Count(&total).Error; err != nil {
		b.log.Error().Err(err).Msg("failed to count blogs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load blogs"})
		return
	}

	var blogs []models.Blog
	err := b.db.Scopes(scopes...).
		Preload("Author").
		Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&blogs).Error
	if err != nil {
		b.log.Error().Err(err).Msg("failed to list blogs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load blogs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"blogs":      presentAll(blogs),
		"page":       page,
		"limit":      limit,
		"total":      total,
		"totalPages": int(math.Ceil(float64(total) / float64(limit))),
	})
}

func (b *BlogModule) myBlogs(c *gin.Context) {
	user := auth.CurrentUser(c)

	var blogs []models.Blog
	if err := b.db.Where("author_id = ?", user.ID).Order("created_at DESC, id DESC").Find(&blogs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load blogs"})
		return
	}
	for i := range blogs {
		blogs[i].Author = user
	}

	c.JSON(http.StatusOK, gin.H{"blogs": presentAll(blogs)})
}

// loadBlog answers 400/404 itself and returns nil in that case.
func (b *BlogModule) loadBlog(c *gin.Context) *models.Blog {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid blog id"})
		return nil
	}

	var blog models.Blog
	if err := b.db.Preload("Author").First(&blog, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Blog not found"})
		return nil
	}
	return &blog
}

func (b *BlogModule) get(c *gin.Context) {
	blog := b.loadBlog(c)
	if blog == nil {
		return
	}

	if status, msg := visibility(blog, auth.CurrentUser(c)); status != 0 {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	if blog.Published() {
		b.analytics.TrackView(c, blog.ID)
	}

	c.JSON(http.StatusOK, Present(blog))
}

type createRequest struct {
	Title      string   `json:"title" binding:"required,min=3,max=200"`
	Content    string   `json:"content" binding:"required,min=20"`
	Location   string   `json:"location" binding:"max=120"`
	TravelType string   `json:"travelType" binding:"omitempty,traveltype"`
	Images     []string `json:"images" binding:"omitempty,max=20,dive,url"`
	Privacy    string   `json:"privacy" binding:"omitempty,oneof=public private"`
	Format     string   `json:"format" binding:"omitempty,oneof=html markdown"`
}

func (b *BlogModule) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": common.ValidationMessage(err)})
		return
	}

	user := auth.CurrentUser(c)

	slug, err := uniqueSlug(b.db, req.Title)
	if err != nil {
		b.log.Error().Err(err).Msg("failed to allocate slug")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create blog"})
		return
	}

	content := req.Content
	if req.Format == "markdown" {
		content = renderMarkdown(content)
	}
	privacy := req.Privacy
	if privacy == "" {
		privacy = models.PrivacyPublic
	}
	images := req.Images
	if images == nil {
		images = []string{}
	}

	// admins publish directly, everyone else waits for moderation
	approved := models.IsAdmin(user.Role)
	status := models.StatusPending
	if approved {
		status = models.StatusApproved
	}

	blog := models.Blog{
		Title:      strings.TrimSpace(req.Title),
		Slug:       slug,
		Content:    content,
		Location:   strings.TrimSpace(req.Location),
		TravelType: req.TravelType,
		Images:     images,
		Privacy:    privacy,
		AuthorID:   user.ID,
		Approved:   approved,
		Status:     status,
	}
	if err := b.db.Create(&blog).Error; err != nil {
		b.log.Error().Err(err).Uint("author_id", user.ID).Msg("failed to create blog")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create blog"})
		return
	}
	monitoring.RecordBlogCreated()
	if blog.Published() {
		b.invalidate(c, blog.Slug)
	}

	blog.Author = user
	c.JSON(http.StatusCreated, Present(&blog))
}

type updateRequest struct {
	Title      *string  `json:"title" binding:"omitempty,min=3,max=200"`
	Content    *string  `json:"content" binding:"omitempty,min=20"`
	Location   *string  `json:"location" binding:"omitempty,max=120"`
	TravelType *string  `json:"travelType" binding:"omitempty,traveltype"`
	Images     []string `json:"images" binding:"omitempty,max=20,dive,url"`
	Privacy    *string  `json:"privacy" binding:"omitempty,oneof=public private"`
	Format     string   `json:"format" binding:"omitempty,oneof=html markdown"`
}

func (b *BlogModule) update(c *gin.Context) {
	blog := b.loadBlog(c)
	if blog == nil {
		return
	}

	user := auth.CurrentUser(c)
	if !canEdit(blog, user) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only edit your own blogs"})
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": common.ValidationMessage(err)})
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		content := *req.Content
		if req.Format == "markdown" {
			content = renderMarkdown(content)
		}
		updates["content"] = content
	}
	if req.Location != nil {
		updates["location"] = strings.TrimSpace(*req.Location)
	}
	if req.TravelType != nil {
		updates["travel_type"] = *req.TravelType
	}
	if req.Images != nil {
		updates["images"] = datatypes.JSONSlice[string](req.Images)
	}
	if req.Privacy != nil {
		updates["privacy"] = *req.Privacy
	}

	// an author revising a rejected blog sends it back to the queue
	if len(updates) > 0 && blog.Status == models.StatusRejected && !models.CanModerateBlogs(user.Role) {
		updates["status"] = models.StatusPending
		updates["approved"] = false
	}

	if len(updates) > 0 {
		if err := b.db.Model(blog).Updates(updates).Error; err != nil {
			b.log.Error().Err(err).Uint("blog_id", blog.ID).Msg("failed to update blog")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update blog"})
			return
		}
		b.invalidate(c, blog.Slug)
	}

	var updated models.Blog
	if err := b.db.Preload("Author").First(&updated, blog.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load blog"})
		return
	}
	c.JSON(http.StatusOK, Present(&updated))
}

func (b *BlogModule) delete(c *gin.Context) {
	blog := b.loadBlog(c)
	if blog == nil {
		return
	}

	if !canEdit(blog, auth.CurrentUser(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own blogs"})
		return
	}

	err := b.db.Transaction(func(tx *gorm.DB) error {
		return DeleteBlogs(tx, blog.ID)
	})
	if err != nil {
		b.log.Error().Err(err).Uint("blog_id", blog.ID).Msg("failed to delete blog")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete blog"})
		return
	}
	b.invalidate(c, blog.Slug)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteBlogs removes blogs together with their comments and view records.
func DeleteBlogs(tx *gorm.DB, ids ...uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("blog_id IN ?", ids).Delete(&models.Comment{}).Error; err != nil {
		return err
	}
	if err := tx.Where("blog_id IN ?", ids).Delete(&models.BlogView{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Blog{}, ids).Error
}

func (b *BlogModule) invalidate(c *gin.Context, slug string) {
	if err := cache.InvalidateBlog(c.Request.Context(), b.pages, slug); err != nil {
		b.log.Warn().Err(err).Str("slug", slug).Msg("failed to invalidate page cache")
	}
}
