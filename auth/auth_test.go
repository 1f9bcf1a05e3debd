package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"jyurniq/common"
	"jyurniq/database"
	"jyurniq/models"
)

func init() {
	passwordCost = bcrypt.MinCost
}

type fakeMailer struct {
	configured bool
	err        error
	tokens     []string
}

func (f *fakeMailer) Configured() bool { return f.configured }

func (f *fakeMailer) SendVerificationEmail(_ context.Context, _, _, token string) error {
	if f.err != nil {
		return f.err
	}
	f.tokens = append(f.tokens, token)
	return nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.RunMigrations(db))
	return db
}

func setupTestRouter(db *gorm.DB, mailer *fakeMailer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	store := cookie.NewStore([]byte("secret"))
	router.Use(sessions.Sessions("test-session", store))
	router.Use(LoadUser(db))

	cfg := &common.Config{AppURL: "http://localhost:8080", AdminEmails: []string{"boss@example.com"}}
	NewAuthModule(db, mailer, cfg).RegisterRoutes(router)
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
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

func register(t *testing.T, router *gin.Engine, name, email string) {
	w := doJSON(router, "POST", "/api/auth/register", gin.H{"name": name, "email": email, "password": "secret123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestRegister_Success(t *testing.T) {
	db := setupTestDB(t)
	mailer := &fakeMailer{configured: true}
	router := setupTestRouter(db, mailer)

	w := doJSON(router, "POST", "/api/auth/register", gin.H{"name": "Asha", "email": "Asha@Example.com", "password": "secret123"})
	assert.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		ID    uint   `json:"id"`
		Email string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "asha@example.com", body.Email)

	var user models.User
	require.NoError(t, db.First(&user, body.ID).Error)
	assert.Equal(t, models.RoleViewer, user.Role)
	assert.False(t, user.EmailVerified)
	assert.Len(t, user.VerificationToken, 64)
	assert.Equal(t, "20", user.QuestionPrice.String())
	assert.Equal(t, "100", user.ConversationPrice.String())
	assert.NotContains(t, w.Body.String(), "secret123")

	require.Len(t, mailer.tokens, 1)
	assert.Equal(t, user.VerificationToken, mailer.tokens[0])
}

func TestRegister_DuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, &fakeMailer{})

	register(t, router, "Asha", "asha@example.com")

	w := doJSON(router, "POST", "/api/auth/register", gin.H{"name": "Other", "email": "ASHA@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

// The email check passes, then another sign-up for the same address lands
// before the insert. The unique index decides and the loser gets 409.
func TestRegister_ConcurrentSignupConflict(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, &fakeMailer{})

	raced := false
	err := db.Callback().Create().Before("gorm:create").Register("test:concurrent_signup", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "users" {
			return
		}
		raced = true
		rival := models.User{
			Name:              "Rival",
			Email:             "asha@example.com",
			PasswordHash:      "x",
			Role:              models.RoleViewer,
			QuestionPrice:     decimal.NewFromInt(20),
			ConversationPrice: decimal.NewFromInt(100),
		}
		require.NoError(t, tx.Session(&gorm.Session{NewDB: true, SkipDefaultTransaction: true}).Create(&rival).Error)
	})
	require.NoError(t, err)

	w := doJSON(router, "POST", "/api/auth/register", gin.H{"name": "Asha", "email": "asha@example.com", "password": "secret123"})
	assert.True(t, raced)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	var count int64
	db.Model(&models.User{}).Where("email = ?", "asha@example.com").Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestRegister_Validation(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, &fakeMailer{})

	tests := []struct {
		name string
		body gin.H
	}{
		{"short password", gin.H{"name": "Asha", "email": "a@example.com", "password": "123"}},
		{"bad email", gin.H{"name": "Asha", "email": "nope", "password": "secret123"}},
		{"short name", gin.H{"name": "A", "email": "a@example.com", "password": "secret123"}},
		{"blank name", gin.H{"name": "   ", "email": "a@example.com", "password": "secret123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, "POST", "/api/auth/register", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestRegister_MailFailureDoesNotFail(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, &fakeMailer{configured: true, err: errors.New("smtp down")})

	register(t, router, "Asha", "asha@example.com")

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestRegister_ConfiguredAdminEmail(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, &fakeMailer{})

	register(t, router, "Boss", "boss@example.com")

	var user models.User
	db.Where("email = ?", "boss@example.com").First(&user)
	assert.Equal(t, models.RoleAdmin, user.Role)
}

func TestVerify(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, &fakeMailer{})
	register(t, router, "Asha", "asha@example.com")

	var user models.User
	db.Where("email = ?", "asha@example.com").First(&user)

	w := doJSON(router, "GET", "/api/auth/verify", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, "GET", "/api/auth/verify?token=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, "GET", "/api/auth/verify?token="+user.VerificationToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	db.First(&user, user.ID)
	assert.True(t, user.EmailVerified)
	assert.Empty(t, user.VerificationToken)
}

func TestResendVerification_InvalidatesPreviousToken(t *testing.T) {
	db := setupTestDB(t)
	mailer := &fakeMailer{configured: true}
	router := setupTestRouter(db, mailer)
	register(t, router, "Asha", "asha@example.com")

	for i := 0; i < 2; i++ {
		w := doJSON(router, "POST", "/api/auth/resend-verification", gin.H{"email": "asha@example.com"})
		require.Equal(t, http.StatusOK, w.Code)
	}
	require.Len(t, mailer.tokens, 3)
	first, second, latest := mailer.tokens[0], mailer.tokens[1], mailer.tokens[2]
	assert.NotEqual(t, first, latest)

	w := doJSON(router, "GET", "/api/auth/verify?token="+second, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, "GET", "/api/auth/verify?token="+latest, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, "POST", "/api/auth/resend-verification", gin.H{"email": "asha@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResendVerification_Errors(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, &fakeMailer{configured: false})
	register(t, router, "Asha", "asha@example.com")

	var before models.User
	db.Where("email = ?", "asha@example.com").First(&before)

	w := doJSON(router, "POST", "/api/auth/resend-verification", gin.H{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, "POST", "/api/auth/resend-verification", gin.H{"email": "asha@example.com"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var after models.User
	db.First(&after, before.ID)
	assert.NotEqual(t, before.VerificationToken, after.VerificationToken)
}

func TestLoginAndSession(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, &fakeMailer{})
	register(t, router, "Asha", "asha@example.com")

	creds := gin.H{"email": "asha@example.com", "password": "secret123"}

	w := doJSON(router, "POST", "/api/auth/login", creds)
	assert.Equal(t, http.StatusForbidden, w.Code)

	db.Model(&models.User{}).Where("email = ?", "asha@example.com").Update("email_verified", true)

	w = doJSON(router, "POST", "/api/auth/login", gin.H{"email": "asha@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, "POST", "/api/auth/login", creds)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	w = doJSON(router, "GET", "/api/auth/session", nil, cookies...)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "asha@example.com")

	w = doJSON(router, "GET", "/api/auth/session", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, "POST", "/api/auth/logout", nil, cookies...)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRole(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, &fakeMailer{})
	router.GET("/mod-only", RequireModerator(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	hash, _ := HashPassword("secret123")
	viewer := models.User{Name: "Vee", Email: "vee@example.com", PasswordHash: hash, Role: models.RoleUser, EmailVerified: true}
	editor := models.User{Name: "Ed", Email: "ed@example.com", PasswordHash: hash, Role: models.RoleEditor, EmailVerified: true}
	db.Create(&viewer)
	db.Create(&editor)

	w := doJSON(router, "GET", "/mod-only", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	login := func(email string) []*http.Cookie {
		w := doJSON(router, "POST", "/api/auth/login", gin.H{"email": email, "password": "secret123"})
		require.Equal(t, http.StatusOK, w.Code)
		return w.Result().Cookies()
	}

	w = doJSON(router, "GET", "/mod-only", nil, login("vee@example.com")...)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, "GET", "/mod-only", nil, login("ed@example.com")...)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
