package auth

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jyurniq/models"
)

const (
	SessionUserKey = "user_id"
	currentUserKey = "current_user"
)

// LoadUser resolves the session's user on every request so role changes
// apply immediately. Requests without a valid session continue anonymously.
func LoadUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if id, ok := session.Get(SessionUserKey).(uint); ok {
			var user models.User
			if err := db.First(&user, id).Error; err == nil {
				user.Role = models.NormalizeRole(user.Role)
				c.Set(currentUserKey, &user)
			} else {
				session.Delete(SessionUserKey)
				session.Save()
			}
		}
		c.Next()
	}
}

// CurrentUser returns the signed-in user or nil.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(currentUserKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

func RequireRole(allowed func(role string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if !allowed(user.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

func RequireModerator() gin.HandlerFunc { return RequireRole(models.CanModerateBlogs) }

func RequireAdmin() gin.HandlerFunc { return RequireRole(models.IsAdmin) }
