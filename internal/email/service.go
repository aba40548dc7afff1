package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/practiceperfect/api/internal/logging"
)

type Service struct {
	smtpHost     string
	smtpPort     string
	smtpUser     string
	smtpPassword string
	fromEmail    string
	appURL       string
}

func NewService(smtpHost, smtpPort, smtpUser, smtpPassword, appURL string) *Service {
	return &Service{
		smtpHost:     smtpHost,
		smtpPort:     smtpPort,
		smtpUser:     smtpUser,
		smtpPassword: smtpPassword,
		fromEmail:    smtpUser,
		appURL:       appURL,
	}
}

// SendLoginEmail sends the login email carrying both the magic link and the
// one-time code. This method is designed to be called in a goroutine.
func (s *Service) SendLoginEmail(ctx context.Context, toEmail, token, code string) error {
	logger := logging.GetLoggerFromContext(ctx)

	loginLink := fmt.Sprintf("%s/login/verify?token=%s", s.appURL, token)

	subject := "Your Practice Perfect login link"
	body, err := s.renderLoginEmailTemplate(loginLink, code)
	if err != nil {
		logger.Error("failed to render login email template", "error", err)
		return fmt.Errorf("render template: %w", err)
	}

	if err := s.sendEmail(toEmail, subject, body); err != nil {
		logger.Error("failed to send login email", "email", toEmail, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("login email sent", "email", toEmail)
	return nil
}

func (s *Service) sendEmail(to, subject, body string) error {
	auth := smtp.PlainAuth("", s.smtpUser, s.smtpPassword, s.smtpHost)

	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		s.fromEmail, to, subject, body,
	))

	addr := fmt.Sprintf("%s:%s", s.smtpHost, s.smtpPort)
	return smtp.SendMail(addr, auth, s.fromEmail, []string{to}, msg)
}

func (s *Service) renderLoginEmailTemplate(loginLink, code string) (string, error) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
        }
        .header {
            background-color: #4F46E5;
            color: white;
            padding: 20px;
            text-align: center;
            border-radius: 5px 5px 0 0;
        }
        .content {
            background-color: #f9f9f9;
            padding: 30px;
            border-radius: 0 0 5px 5px;
        }
        .button {
            display: inline-block;
            background-color: #4F46E5;
            color: white !important;
            padding: 12px 30px;
            text-decoration: none;
            border-radius: 5px;
            margin: 20px 0;
        }
        .code {
            font-size: 28px;
            font-weight: bold;
            letter-spacing: 6px;
            text-align: center;
            background-color: #eef;
            padding: 15px;
            border-radius: 5px;
            margin: 20px 0;
        }
        .footer {
            margin-top: 30px;
            font-size: 12px;
            color: #666;
            text-align: center;
        }
    </style>
</head>
<body>
    <div class="header">
        <h1>Practice Perfect</h1>
    </div>
    <div class="content">
        <h2>Log in to your account</h2>
        <p>Click the button below to log in. No password needed.</p>

        <a href="{{.LoginLink}}" class="button" style="color: white !important;">Log In</a>

        <p>Or enter this code in the app:</p>
        <div class="code">{{.Code}}</div>

        <p>Or copy and paste this link into your browser:</p>
        <p style="word-break: break-all; color: #4F46E5;">{{.LoginLink}}</p>

        <p style="margin-top: 30px;">If you didn't request this email, you can safely ignore it.</p>
    </div>
    <div class="footer">
        <p>This link and code will expire in 15 minutes.</p>
        <p>&copy; 2026 Practice Perfect. All rights reserved.</p>
    </div>
</body>
</html>
`

	t, err := template.New("login").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	data := struct {
		LoginLink string
		Code      string
	}{
		LoginLink: loginLink,
		Code:      code,
	}

	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}
