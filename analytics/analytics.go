package analytics

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"jyurniq/common"
	"jyurniq/models"
	"jyurniq/monitoring"
)

const (
	visitorCookie = "jyurniq_visitor_id"
	visitThrottle = 30 * time.Minute
	visitorMaxAge = 60 * 60 * 24 * 365 * 2
)

type AnalyticsModule struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewAnalyticsModule(db *gorm.DB) *AnalyticsModule {
	return &AnalyticsModule{db: db, log: common.NewLogger("analytics")}
}

// TrackView records a visit to a blog. Repeated visits by the same visitor
// within thirty minutes count once.
func (a *AnalyticsModule) TrackView(c *gin.Context, blogID uint) {
	if a == nil || a.db == nil {
		return
	}

	visitorID := a.visitorID(c)

	var recent int64
	a.db.Model(&models.BlogView{}).
		Where("visitor_id = ? AND blog_id = ? AND created_at > ?", visitorID, blogID, time.Now().Add(-visitThrottle)).
		Count(&recent)
	if recent > 0 {
		return
	}

	view := models.BlogView{
		BlogID:    blogID,
		VisitorID: visitorID,
		IP:        clientIP(c),
		Browser:   browserOf(c.Request.UserAgent()),
		Language:  languageOf(c.GetHeader("Accept-Language")),
	}
	if err := a.db.Create(&view).Error; err != nil {
		a.log.Warn().Err(err).Uint("blog_id", blogID).Msg("failed to record view")
		return
	}
	monitoring.RecordBlogView()
}

func (a *AnalyticsModule) visitorID(c *gin.Context) string {
	if id, err := c.Cookie(visitorCookie); err == nil && id != "" {
		return id
	}
	id := uuid.NewString()
	c.SetCookie(visitorCookie, id, visitorMaxAge, "/", "", false, true)
	return id
}

func clientIP(c *gin.Context) string {
	if ip := c.GetHeader("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}
	return c.ClientIP()
}

func browserOf(userAgent string) *string {
	if userAgent == "" {
		return nil
	}

	ua := strings.ToLower(userAgent)
	var browser string

	// order matters: Edge and Opera also claim to be Chrome
	switch {
	case strings.Contains(ua, "edg"):
		browser = "Edge"
	case strings.Contains(ua, "opr") || strings.Contains(ua, "opera"):
		browser = "Opera"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	default:
		browser = "Other"
	}
	return &browser
}

// languageOf keeps the most preferred tag of an Accept-Language header.
func languageOf(acceptLang string) *string {
	if acceptLang == "" {
		return nil
	}
	lang := strings.TrimSpace(strings.Split(strings.Split(acceptLang, ",")[0], ";")[0])
	if lang == "" {
		return nil
	}
	return &lang
}

func (a *AnalyticsModule) ViewCount(blogID uint) int64 {
	if a == nil || a.db == nil {
		return 0
	}
	var count int64
	a.db.Model(&models.BlogView{}).Where("blog_id = ?", blogID).Count(&count)
	return count
}
