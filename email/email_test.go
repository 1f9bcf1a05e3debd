package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"jyurniq/common"
)

func TestConfigured(t *testing.T) {
	svc := NewEmailService(&common.Config{AppURL: "http://localhost:8080"})
	assert.False(t, svc.Configured())

	err := svc.SendVerificationEmail(context.Background(), "a@example.com", "A", "tok")
	assert.ErrorIs(t, err, ErrNotConfigured)

	svc = NewEmailService(&common.Config{SMTPHost: "smtp.example.com", SMTPPort: 587, SMTPUser: "u", SMTPPassword: "p"})
	assert.True(t, svc.Configured())
}

func TestVerificationLink(t *testing.T) {
	assert.Equal(t,
		"https://jyurniq.example/api/auth/verify?token=abc",
		VerificationLink("https://jyurniq.example", "abc"))
}

func TestVerificationBodyEscapesName(t *testing.T) {
	body := verificationBody("<b>Eve</b>", "http://x/verify")
	assert.Contains(t, body, "&lt;b&gt;Eve&lt;/b&gt;")
	assert.Contains(t, body, `href="http://x/verify"`)

	assert.Contains(t, verificationBody("", "l"), "traveller")
}
