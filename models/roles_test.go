package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRolePredicates(t *testing.T) {
	tests := []struct {
		role      string
		admin     bool
		moderate  bool
		submit    bool
		canonical string
	}{
		{RoleAdmin, true, true, true, RoleAdmin},
		{RoleEditor, false, true, true, RoleEditor},
		{RoleViewer, false, false, true, RoleViewer},
		{RoleUser, false, false, true, RoleViewer},
		{"", false, false, false, RoleViewer},
		{"root", false, false, false, RoleViewer},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			assert.Equal(t, tt.admin, IsAdmin(tt.role))
			assert.Equal(t, tt.moderate, CanModerateBlogs(tt.role))
			assert.Equal(t, tt.submit, CanSubmitBlogs(tt.role))
			assert.Equal(t, tt.canonical, NormalizeRole(tt.role))
		})
	}
}

func TestBlogPublished(t *testing.T) {
	assert.True(t, (&Blog{Privacy: PrivacyPublic, Approved: true}).Published())
	assert.False(t, (&Blog{Privacy: PrivacyPrivate, Approved: true}).Published())
	assert.False(t, (&Blog{Privacy: PrivacyPublic, Approved: false}).Published())
}

func TestPublicUserHidesEmail(t *testing.T) {
	u := &User{ID: 7, Name: "Asha", Email: "asha@example.com", QuestionPrice: decimal.NewFromInt(20)}

	out, err := json.Marshal(u.Public())
	assert.NoError(t, err)
	assert.NotContains(t, string(out), "asha@example.com")
	assert.Contains(t, string(out), `"questionPrice":20`)
}
