// Package testutil holds fixtures shared by the feature packages' tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"jyurniq/auth"
	"jyurniq/database"
	"jyurniq/models"
)

const loginPath = "/__test/login/:id"

func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.RunMigrations(db))
	return db
}

// NewRouter returns a test router with sessions, the user loader and a
// login shortcut that signs in any user id.
func NewRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	store := cookie.NewStore([]byte("test-secret"))
	router.Use(sessions.Sessions("test-session", store))
	router.Use(auth.LoadUser(db))
	router.GET(loginPath, func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		session := sessions.Default(c)
		session.Set(auth.SessionUserKey, uint(id))
		session.Save()
		c.Status(http.StatusNoContent)
	})
	return router
}

func CreateUser(t *testing.T, db *gorm.DB, name, email, role string) *models.User {
	t.Helper()
	user := &models.User{
		Name:              name,
		Email:             email,
		PasswordHash:      "not-a-real-hash",
		Role:              role,
		EmailVerified:     true,
		QuestionPrice:     decimal.NewFromInt(20),
		ConversationPrice: decimal.NewFromInt(100),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func CreateBlog(t *testing.T, db *gorm.DB, author *models.User, title, privacy string, approved bool) *models.Blog {
	t.Helper()
	status := models.StatusPending
	if approved {
		status = models.StatusApproved
	}
	blog := &models.Blog{
		Title:    title,
		Slug:     slugFor(title),
		Content:  "A long enough story about " + title + ".",
		Privacy:  privacy,
		AuthorID: author.ID,
		Approved: approved,
		Status:   status,
		Images:   []string{},
	}
	require.NoError(t, db.Create(blog).Error)
	return blog
}

func slugFor(title string) string {
	var b []rune
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b = append(b, r)
		case r >= 'A' && r <= 'Z':
			b = append(b, r+('a'-'A'))
		default:
			b = append(b, '-')
		}
	}
	return string(b)
}

// Login signs the user in through the shortcut route and returns the session cookies.
func Login(t *testing.T, router *gin.Engine, user *models.User) []*http.Cookie {
	t.Helper()
	req, _ := http.NewRequest("GET", "/__test/login/"+strconv.FormatUint(uint64(user.ID), 10), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func DoJSON(router *gin.Engine, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func Decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
