package pkg

import (
	"crypto/tls"
	"fmt"
	"html"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string // 发件人邮箱
	Password string // 授权码/密码
	From     string // 显示的发件人，可与 Username 相同
}

// Mailer 发送邮件；未启用时只记日志
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(to, subject, htmlBody string) error {
	if !m.cfg.Enabled {
		log.Info().Str("component", "mailer").Str("to", to).Str("subject", subject).Msg("smtp disabled, skip email")
		return nil
	}
	return SendEmail(m.cfg, to, subject, htmlBody)
}

func SendEmail(cfg SMTPConfig, to, subject, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	return d.DialAndSend(msg)
}

func EmailCodeHTML(subject, code string, ttl time.Duration) string {
	minM := int(ttl.Minutes())
	return fmt.Sprintf(`<p>Hello,</p><p>Your <b>%s</b> verification code is <b style="font-size:18px;">%s</b>.</p><p>It expires in %d minutes. Do not share it with anyone.</p>`,
		html.EscapeString(subject), html.EscapeString(code), minM)
}

// NotificationHTML 通知邮件正文，带退订链接
func NotificationHTML(baseURL, name, title, message, link, unsubscribeToken, notificationType string) string {
	body := fmt.Sprintf(`<p>Hi %s,</p><h3>%s</h3><p>%s</p>`,
		html.EscapeString(name), html.EscapeString(title), html.EscapeString(message))
	if link != "" {
		body += fmt.Sprintf(`<p><a href="%s">Open in Clubs Hub</a></p>`, html.EscapeString(baseURL+link))
	}
	if unsubscribeToken != "" {
		q := url.Values{}
		q.Set("token", unsubscribeToken)
		q.Set("type", notificationType)
		unsub := baseURL + "/api/notifications/unsubscribe?" + q.Encode()
		body += fmt.Sprintf(`<hr><p style="font-size:12px;color:#888;">Don't want these emails? <a href="%s">Unsubscribe</a></p>`, html.EscapeString(unsub))
	}
	return body
}
