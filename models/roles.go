package models

const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"

	// RoleUser is the pre-moderation name of RoleViewer; old rows still carry it.
	RoleUser = "user"
)

func NormalizeRole(role string) string {
	switch role {
	case RoleAdmin, RoleEditor:
		return role
	default:
		return RoleViewer
	}
}

func IsAdmin(role string) bool {
	return role == RoleAdmin
}

func CanModerateBlogs(role string) bool {
	return role == RoleAdmin || role == RoleEditor
}

func CanSubmitBlogs(role string) bool {
	switch role {
	case RoleViewer, RoleUser, RoleEditor, RoleAdmin:
		return true
	}
	return false
}

func ValidRole(role string) bool {
	return CanSubmitBlogs(role)
}
