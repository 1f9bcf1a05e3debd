package users

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"jyurniq/models"
	"jyurniq/testutil"
)

func setupTest(t *testing.T) (*gorm.DB, *gin.Engine) {
	db := testutil.NewDB(t)
	router := testutil.NewRouter(db)
	NewUsersModule(db).RegisterRoutes(router)
	return db, router
}

func TestProfile(t *testing.T) {
	db, router := setupTest(t)
	user := testutil.CreateUser(t, db, "Asha", "asha@example.com", models.RoleViewer)
	cookies := testutil.Login(t, router, user)

	w := testutil.DoJSON(router, "GET", "/api/users/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = testutil.DoJSON(router, "GET", "/api/users/profile", nil, cookies...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"asha@example.com"`)
	assert.NotContains(t, w.Body.String(), "passwordHash")

	w = testutil.DoJSON(router, "PATCH", "/api/users/profile", gin.H{
		"name":   "Asha Menon",
		"avatar": "https://img.example/asha.jpg",
		"bio":    "  Slow traveller  ",
		"email":  "hijack@example.com",
	}, cookies...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var saved models.User
	require.NoError(t, db.First(&saved, user.ID).Error)
	assert.Equal(t, "Asha Menon", saved.Name)
	assert.Equal(t, "https://img.example/asha.jpg", saved.Avatar)
	assert.Equal(t, "Slow traveller", saved.Bio)
	assert.Equal(t, "asha@example.com", saved.Email)
}

func TestProfile_Validation(t *testing.T) {
	db, router := setupTest(t)
	user := testutil.CreateUser(t, db, "Asha", "asha@example.com", models.RoleViewer)
	cookies := testutil.Login(t, router, user)

	tests := []struct {
		name string
		body gin.H
	}{
		{"short name", gin.H{"name": "A"}},
		{"blank name", gin.H{"name": "    "}},
		{"bad avatar", gin.H{"avatar": "ftp://example.com/a.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.DoJSON(router, "PATCH", "/api/users/profile", tt.body, cookies...)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestContactSettings(t *testing.T) {
	db, router := setupTest(t)
	user := testutil.CreateUser(t, db, "Asha", "asha@example.com", models.RoleViewer)
	cookies := testutil.Login(t, router, user)

	w := testutil.DoJSON(router, "GET", "/api/users/contact", nil, cookies...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"contactEnabled":false,"questionPrice":20,"conversationPrice":100,"bio":""}`, w.Body.String())

	w = testutil.DoJSON(router, "PATCH", "/api/users/contact", gin.H{
		"contactEnabled": true,
		"questionPrice":  35.5,
	}, cookies...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var saved models.User
	require.NoError(t, db.First(&saved, user.ID).Error)
	assert.True(t, saved.ContactEnabled)
	assert.True(t, decimal.RequireFromString("35.5").Equal(saved.QuestionPrice))
	assert.True(t, decimal.NewFromInt(100).Equal(saved.ConversationPrice))

	w = testutil.DoJSON(router, "PATCH", "/api/users/contact", gin.H{"conversationPrice": -1}, cookies...)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoJSON(router, "PATCH", "/api/users/contact", gin.H{"questionPrice": "lots"}, cookies...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublicProfile(t *testing.T) {
	db, router := setupTest(t)
	user := testutil.CreateUser(t, db, "Asha", "asha@example.com", models.RoleViewer)
	testutil.CreateBlog(t, db, user, "Visible", models.PrivacyPublic, true)
	testutil.CreateBlog(t, db, user, "Hidden", models.PrivacyPrivate, true)

	w := testutil.DoJSON(router, "GET", fmt.Sprintf("/api/users/%d", user.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	testutil.Decode(t, w, &body)
	assert.Equal(t, "Asha", body["name"])
	assert.Equal(t, float64(1), body["publishedBlogs"])
	assert.NotContains(t, body, "email")
	assert.NotContains(t, body, "earnings")

	assert.Equal(t, http.StatusNotFound, testutil.DoJSON(router, "GET", "/api/users/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, testutil.DoJSON(router, "GET", "/api/users/abc", nil).Code)
}

func TestPublicProfile_StorageFailure(t *testing.T) {
	db, router := setupTest(t)
	user := testutil.CreateUser(t, db, "Asha", "asha@example.com", models.RoleViewer)
	require.NoError(t, db.Migrator().DropTable(&models.Blog{}))

	w := testutil.DoJSON(router, "GET", fmt.Sprintf("/api/users/%d", user.ID), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	require.NoError(t, db.Migrator().DropTable(&models.User{}))
	w = testutil.DoJSON(router, "GET", fmt.Sprintf("/api/users/%d", user.ID), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
