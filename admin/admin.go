package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"jyurniq/analytics"
	"jyurniq/auth"
	"jyurniq/cache"
	"jyurniq/common"
	"jyurniq/models"
)

type AdminModule struct {
	db        *gorm.DB
	pages     cache.Store
	analytics *analytics.AnalyticsModule
	log       zerolog.Logger
}

func NewAdminModule(db *gorm.DB, pages cache.Store, analyticsModule *analytics.AnalyticsModule) *AdminModule {
	common.RegisterValidators()
	return &AdminModule{
		db:        db,
		pages:     pages,
		analytics: analyticsModule,
		log:       common.NewLogger("admin"),
	}
}

func (a *AdminModule) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/admin")
	{
		group.GET("/blogs/pending", auth.RequireModerator(), a.pendingBlogs)
		group.GET("/blogs/all", auth.RequireAdmin(), a.allBlogs)
		group.PATCH("/blogs/:id/approve", auth.RequireModerator(), a.approveBlog)
		group.PATCH("/blogs/:id/reject", auth.RequireModerator(), a.rejectBlog)
		group.POST("/blogs/:id/clear-cache", auth.RequireModerator(), a.clearBlogCache)

		group.GET("/users", auth.RequireAdmin(), a.listUsers)
		group.GET("/users/:id", auth.RequireAdmin(), a.getUser)
		group.PATCH("/users/:id", auth.RequireAdmin(), a.updateUserRole)
		group.DELETE("/users/:id", auth.RequireAdmin(), a.deleteUser)

		group.GET("/analytics", auth.RequireAdmin(), a.analyticsSummary)
	}
}

// authorInfo is the author as moderators see it, email included.
type authorInfo struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type adminBlog struct {
	models.Blog
	Author *authorInfo `json:"author"`
}

func present(blogs []models.Blog) []adminBlog {
	out := make([]adminBlog, 0, len(blogs))
	for _, b := range blogs {
		if b.Images == nil {
			b.Images = datatypes.JSONSlice[string]{}
		}
		item := adminBlog{Blog: b}
		if b.Author != nil {
			item.Author = &authorInfo{ID: b.Author.ID, Name: b.Author.Name, Email: b.Author.Email}
		}
		out = append(out, item)
	}
	return out
}

func parseID(c *gin.Context, what string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + what + " id"})
		return 0, false
	}
	return uint(id), true
}

func (a *AdminModule) analyticsSummary(c *gin.Context) {
	summary, err := a.analytics.Summary(c.Request.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("failed to compute analytics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load analytics"})
		return
	}
	c.JSON(http.StatusOK, summary)
}
