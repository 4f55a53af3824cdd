// Package email sends transactional mail over SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	// send is swappable in tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(config Config) *Service {
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   smtp.PlainAuth("", config.Username, config.Password, config.Host),
		send:   smtp.SendMail,
	}
}

// IsConfigured reports whether the service can actually send. Callers treat
// an unconfigured service as "log the token instead of mailing it".
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// SendHTML sends a multipart message with a plain-text fallback part.
func (s *Service) SendHTML(to []string, subject, htmlBody, textBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	const boundary = "commons-mail-boundary"
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", s.fromHeader())
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n\r\n", boundary, textBody)
	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n\r\n", boundary, htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.send(s.server, s.auth, s.config.From, to, msg.Bytes())
}

type linkMailData struct {
	AppName  string
	UserName string
	Intro    string
	Action   string
	URL      string
	Expiry   string
}

func (s *Service) SendVerification(to, userName, verifyURL string) error {
	return s.sendLinkMail(to, "Verify your Commons account", linkMailData{
		AppName:  "Commons",
		UserName: userName,
		Intro:    "Thanks for signing up. Confirm your email address to activate your account.",
		Action:   "Verify email address",
		URL:      verifyURL,
		Expiry:   "This link expires in 24 hours.",
	})
}

func (s *Service) SendPasswordReset(to, userName, resetURL string) error {
	return s.sendLinkMail(to, "Reset your Commons password", linkMailData{
		AppName:  "Commons",
		UserName: userName,
		Intro:    "We received a request to reset your password. Use the link below to choose a new one.",
		Action:   "Reset password",
		URL:      resetURL,
		Expiry:   "This link expires in 1 hour. If you didn't request a reset, ignore this mail.",
	})
}

func (s *Service) sendLinkMail(to, subject string, data linkMailData) error {
	var html bytes.Buffer
	if err := linkMailTemplate.Execute(&html, data); err != nil {
		return fmt.Errorf("render mail template: %w", err)
	}
	text := fmt.Sprintf("Hi %s,\r\n\r\n%s\r\n\r\n%s: %s\r\n\r\n%s\r\n",
		data.UserName, data.Intro, data.Action, data.URL, data.Expiry)
	return s.SendHTML([]string{to}, subject, html.String(), text)
}

var linkMailTemplate = template.Must(template.New("link-mail").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #222; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #2b6e4f; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #2b6e4f; color: #fff; text-decoration: none; border-radius: 4px; margin: 16px 0; }
        .link { word-break: break-all; color: #2b6e4f; }
        .footer { margin-top: 28px; padding-top: 16px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <p>Hi {{.UserName}},</p>
    <p>{{.Intro}}</p>
    <p><a href="{{.URL}}" class="button">{{.Action}}</a></p>
    <p>Or paste this link into your browser:</p>
    <p class="link">{{.URL}}</p>
    <div class="footer"><p>{{.Expiry}}</p></div>
</body>
</html>`))
