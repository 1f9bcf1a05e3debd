package blog

import (
	"net/http"

	"jyurniq/models"
)

// canEdit: authors manage their own blogs, moderators manage all of them.
func canEdit(blog *models.Blog, user *models.User) bool {
	if user == nil {
		return false
	}
	return user.ID == blog.AuthorID || models.CanModerateBlogs(user.Role)
}

// visibility returns 0 when user may read blog, otherwise the HTTP status to answer with.
func visibility(blog *models.Blog, user *models.User) (int, string) {
	if blog.Published() || canEdit(blog, user) {
		return 0, ""
	}
	if blog.Privacy == models.PrivacyPrivate {
		return http.StatusForbidden, "This blog is private"
	}
	return http.StatusNotFound, "Blog not found"
}
