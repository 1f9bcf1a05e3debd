package email

import (
	"context"
	"errors"
	"fmt"
	"html"

	"gopkg.in/gomail.v2"

	"jyurniq/common"
)

var ErrNotConfigured = errors.New("email not configured")

// Sender is what the auth flow needs from a mailer.
type Sender interface {
	Configured() bool
	SendVerificationEmail(ctx context.Context, to, name, token string) error
}

type EmailService struct {
	host     string
	port     int
	user     string
	password string
	from     string
	appURL   string
}

func NewEmailService(cfg *common.Config) *EmailService {
	return &EmailService{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		from:     cfg.SMTPFrom,
		appURL:   cfg.AppURL,
	}
}

func (e *EmailService) Configured() bool {
	return e.host != "" && e.user != "" && e.password != ""
}

func VerificationLink(appURL, token string) string {
	return fmt.Sprintf("%s/api/auth/verify?token=%s", appURL, token)
}

func (e *EmailService) SendVerificationEmail(ctx context.Context, to, name, token string) error {
	if !e.Configured() {
		return ErrNotConfigured
	}

	from := e.from
	if from == "" {
		from = e.user
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Verify your email - Jyurniq")
	m.SetBody("text/html", verificationBody(name, VerificationLink(e.appURL, token)))

	d := gomail.NewDialer(e.host, e.port, e.user, e.password)

	errc := make(chan error, 1)
	go func() { errc <- d.DialAndSend(m) }()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("error sending email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func verificationBody(name, link string) string {
	if name == "" {
		name = "traveller"
	}
	return fmt.Sprintf(`<p>Hi %s,</p>
<p>Thanks for joining Jyurniq. Confirm your email to start sharing your journeys:</p>
<p><a href="%s">Verify my email</a></p>
<p>If you did not sign up, you can ignore this message.</p>`, html.EscapeString(name), link)
}
