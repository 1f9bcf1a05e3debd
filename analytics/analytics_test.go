package analytics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jyurniq/models"
	"jyurniq/testutil"
)

func trackRouter(a *AnalyticsModule) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/view/:id", func(c *gin.Context) {
		a.TrackView(c, 1)
		c.Status(http.StatusOK)
	})
	return router
}

func TestTrackView_Throttles(t *testing.T) {
	db := testutil.NewDB(t)
	a := NewAnalyticsModule(db)
	router := trackRouter(a)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/view/1", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 Firefox/120.0")
	router.ServeHTTP(w, req)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, visitorCookie, cookies[0].Name)

	// same visitor again: throttled
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/view/1", nil)
	req.AddCookie(cookies[0])
	router.ServeHTTP(w, req)

	assert.Equal(t, int64(1), a.ViewCount(1))

	// a fresh visitor counts
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/view/1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, int64(2), a.ViewCount(1))

	var view models.BlogView
	db.First(&view)
	require.NotNil(t, view.Browser)
	assert.Equal(t, "Firefox", *view.Browser)
}

func TestBrowserAndLanguage(t *testing.T) {
	assert.Nil(t, browserOf(""))
	assert.Equal(t, "Edge", *browserOf("Mozilla/5.0 Chrome/120 Safari/537 Edg/120"))
	assert.Equal(t, "Chrome", *browserOf("Mozilla/5.0 Chrome/120 Safari/537"))
	assert.Equal(t, "Safari", *browserOf("Mozilla/5.0 Version/17 Safari/605"))

	assert.Nil(t, languageOf(""))
	assert.Equal(t, "en-IN", *languageOf("en-IN,en;q=0.9,hi;q=0.8"))
}

func TestNilModuleIsSafe(t *testing.T) {
	var a *AnalyticsModule
	assert.Equal(t, int64(0), a.ViewCount(1))
}

func TestSummary(t *testing.T) {
	db := testutil.NewDB(t)
	a := NewAnalyticsModule(db)

	admin := testutil.CreateUser(t, db, "Admin", "admin@example.com", models.RoleAdmin)
	writer := testutil.CreateUser(t, db, "Writer", "writer@example.com", models.RoleViewer)
	db.Model(writer).Update("email_verified", false)

	b1 := testutil.CreateBlog(t, db, writer, "Goa beaches", models.PrivacyPublic, true)
	testutil.CreateBlog(t, db, writer, "Secret trip", models.PrivacyPrivate, false)
	testutil.CreateBlog(t, db, admin, "Kerala backwaters", models.PrivacyPublic, true)
	rejected := testutil.CreateBlog(t, db, writer, "Rejected trip", models.PrivacyPublic, false)
	db.Model(rejected).Update("status", models.StatusRejected)

	db.Create(&models.Comment{BlogID: b1.ID, AuthorID: admin.ID, Content: "Lovely"})

	db.Create(&models.Payment{CustomerID: admin.ID, BloggerID: writer.ID, Amount: decimal.NewFromInt(25), Currency: "INR", Status: models.PaymentSucceeded, Type: "question", Gateway: models.GatewayRazorpay})
	db.Create(&models.Payment{CustomerID: admin.ID, BloggerID: writer.ID, Amount: decimal.RequireFromString("100.50"), Currency: "INR", Status: models.PaymentSucceeded, Type: "conversation", Gateway: models.GatewayStripe})
	db.Create(&models.Payment{CustomerID: admin.ID, BloggerID: writer.ID, Amount: decimal.NewFromInt(999), Currency: "INR", Status: models.PaymentPending, Type: "question", Gateway: models.GatewayStripe})

	db.Create(&models.BlogView{BlogID: b1.ID, VisitorID: "v1", IP: "1.1.1.1", CreatedAt: time.Now()})
	db.Create(&models.BlogView{BlogID: b1.ID, VisitorID: "v2", IP: "1.1.1.2", CreatedAt: time.Now()})

	s, err := a.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), s.Users.Total)
	assert.Equal(t, int64(1), s.Users.Verified)
	assert.Equal(t, int64(1), s.Users.Admins)
	assert.Equal(t, int64(2), s.Users.Recent)

	assert.Equal(t, int64(4), s.Blogs.Total)
	assert.Equal(t, int64(2), s.Blogs.Approved)
	assert.Equal(t, int64(1), s.Blogs.Pending)
	assert.Equal(t, int64(1), s.Blogs.Rejected)
	assert.Equal(t, int64(3), s.Blogs.Public)
	assert.Equal(t, int64(1), s.Blogs.Private)

	assert.Equal(t, int64(1), s.Comments.Total)

	assert.Equal(t, int64(3), s.Payments.Total)
	assert.Equal(t, int64(2), s.Payments.Successful)
	assert.True(t, decimal.RequireFromString("125.5").Equal(s.Payments.TotalEarnings), s.Payments.TotalEarnings.String())

	require.NotEmpty(t, s.TopBloggers)
	assert.Equal(t, writer.ID, s.TopBloggers[0].ID)
	assert.Equal(t, int64(3), s.TopBloggers[0].BlogCount)

	require.Len(t, s.TopBlogs, 1)
	assert.Equal(t, b1.ID, s.TopBlogs[0].ID)
	assert.Equal(t, int64(2), s.TopBlogs[0].Views)
}

func TestSummary_Empty(t *testing.T) {
	db := testutil.NewDB(t)
	s, err := NewAnalyticsModule(db).Summary(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Payments.TotalEarnings.IsZero())
	assert.Empty(t, s.TopBloggers)
}
