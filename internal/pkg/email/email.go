package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/phdwriter/essay_go_server/config"
)

type Service struct {
	cfg *config.EmailConfig
}

func NewService(cfg *config.EmailConfig) *Service {
	return &Service{cfg: cfg}
}

// SendVerificationCode sends the signup verification email.
func (s *Service) SendVerificationCode(to, code string) error {
	subject := "Verify your email - PhD Writer Pro"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2563eb;">Email verification</h2>
        <p>Hello,</p>
        <p>You are registering a PhD Writer Pro account. Your verification code is:</p>
        <div style="background-color: #f3f4f6; padding: 15px; text-align: center; font-size: 24px; font-weight: bold; letter-spacing: 5px; margin: 20px 0;">
            %s
        </div>
        <p>The code expires in 24 hours.</p>
        <p>If you did not request this, please ignore this email.</p>
    </div>
</body>
</html>
`, code)

	return s.sendHTML(to, subject, body)
}

// SendPaymentFailed notifies the user that a renewal invoice failed. Access
// is not suspended automatically; this is the operator-visible follow-up.
func (s *Service) SendPaymentFailed(to, tier string) error {
	subject := "Payment failed - PhD Writer Pro"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #dc2626;">Payment failed</h2>
        <p>Hello,</p>
        <p>The renewal payment for your <strong>%s</strong> subscription did not go through.</p>
        <p>Please update your payment method to keep uninterrupted access.</p>
    </div>
</body>
</html>
`, tier)

	return s.sendHTML(to, subject, body)
}

func (s *Service) sendHTML(to, subject, body string) error {
	if s.cfg.SMTPHost == "" {
		return fmt.Errorf("smtp not configured")
	}

	headers := []string{
		fmt.Sprintf("From: %s", s.cfg.From),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}
	msg := strings.Join(headers, "\r\n") + "\r\n\r\n" + body

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)

	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg))
}
