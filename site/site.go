package site

import (
	"embed"
	"encoding/xml"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"jyurniq/analytics"
	"jyurniq/blog"
	"jyurniq/cache"
	"jyurniq/common"
	"jyurniq/models"
)

//go:embed views/*.html
var views embed.FS

const feedSize = 24

type SiteModule struct {
	db        *gorm.DB
	pages     cache.Store
	analytics *analytics.AnalyticsModule
	appURL    string
	log       zerolog.Logger
}

func NewSiteModule(db *gorm.DB, pages cache.Store, analyticsModule *analytics.AnalyticsModule, appURL string) *SiteModule {
	return &SiteModule{
		db:        db,
		pages:     pages,
		analytics: analyticsModule,
		appURL:    strings.TrimSuffix(appURL, "/"),
		log:       common.NewLogger("site"),
	}
}

// Templates parses the embedded page templates. The router must use them
// through SetHTMLTemplate before any site route is served.
func Templates(appURL string) *template.Template {
	appURL = strings.TrimSuffix(appURL, "/")
	return template.Must(template.New("").Funcs(template.FuncMap{
		"appURL": func() string { return appURL },
		"year":   func() int { return time.Now().Year() },
		"date":   func(t time.Time) string { return t.Format("2 Jan 2006") },
		// blog content is stored as HTML
		"safeHTML": func(s string) template.HTML { return template.HTML(s) },
		"firstImage": func(images []string) string {
			if len(images) == 0 {
				return ""
			}
			return images[0]
		},
	}).ParseFS(views, "views/*.html"))
}

func (s *SiteModule) RegisterRoutes(router *gin.Engine) {
	pages := cache.CacheMiddleware(s.pages)

	router.GET("/", pages, s.index)
	router.GET("/b/:slug", s.trackView, pages, s.blogPage)
	router.GET("/embed/:slug", pages, s.embed)
	router.GET("/sitemap.xml", s.sitemap)
}

func (s *SiteModule) published(slug string) (*models.Blog, error) {
	var b models.Blog
	err := s.db.Scopes(blog.PublishedScope).
		Preload("Author").
		Where("slug = ?", slug).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *SiteModule) index(c *gin.Context) {
	var blogs []models.Blog
	err := s.db.Scopes(blog.PublishedScope).
		Preload("Author").
		Order("created_at DESC").
		Limit(feedSize).
		Find(&blogs).Error
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load feed")
		c.HTML(http.StatusInternalServerError, "site_index.html", gin.H{
			"title": "Jyurniq",
			"error": "Could not load stories",
		})
		return
	}

	c.HTML(http.StatusOK, "site_index.html", gin.H{
		"title": "Jyurniq - Travel stories",
		"blogs": blogs,
	})
}

// trackView runs ahead of the page cache so cached hits still count.
func (s *SiteModule) trackView(c *gin.Context) {
	var ids []uint
	err := s.db.Model(&models.Blog{}).
		Scopes(blog.PublishedScope).
		Where("slug = ?", c.Param("slug")).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		s.log.Warn().Err(err).Str("slug", c.Param("slug")).Msg("failed to look up blog for view tracking")
	}
	if len(ids) == 1 {
		s.analytics.TrackView(c, ids[0])
	}
	c.Next()
}

func (s *SiteModule) blogPage(c *gin.Context) {
	b, err := s.published(c.Param("slug"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.HTML(http.StatusNotFound, "site_not_found.html", gin.H{"title": "Not found"})
		return
	}
	if err != nil {
		s.failed(c, err, "failed to load blog")
		return
	}

	comments, err := blog.LoadComments(s.db, b.ID)
	if err != nil {
		s.failed(c, err, "failed to load comments")
		return
	}

	c.HTML(http.StatusOK, "site_blog.html", gin.H{
		"title":        b.Title + " - Jyurniq",
		"blog":         b,
		"comments":     blog.BuildCommentTree(comments),
		"commentCount": len(comments),
	})
}

func (s *SiteModule) embed(c *gin.Context) {
	b, err := s.published(c.Param("slug"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.HTML(http.StatusNotFound, "site_embed.html", gin.H{})
		return
	}
	if err != nil {
		s.failed(c, err, "failed to load embed")
		return
	}
	c.HTML(http.StatusOK, "site_embed.html", gin.H{"blog": b})
}

func (s *SiteModule) failed(c *gin.Context, err error, msg string) {
	s.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(msg)
	c.HTML(http.StatusInternalServerError, "site_error.html", gin.H{"title": "Something went wrong"})
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

type urlset struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

func (s *SiteModule) sitemap(c *gin.Context) {
	set := urlset{
		Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs: []sitemapURL{
			{Loc: s.appURL + "/", ChangeFreq: "daily", Priority: "1.0"},
		},
	}

	var blogs []models.Blog
	err := s.db.Scopes(blog.PublishedScope).
		Select("slug", "updated_at").
		Order("updated_at DESC").
		Find(&blogs).Error
	if err != nil {
		s.log.Error().Err(err).Msg("failed to build sitemap")
		c.Status(http.StatusInternalServerError)
		return
	}

	for _, b := range blogs {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        s.appURL + "/b/" + b.Slug,
			LastMod:    b.UpdatedAt.Format(time.RFC3339),
			ChangeFreq: "monthly",
			Priority:   "0.6",
		})
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", append([]byte(xml.Header), out...))
}
