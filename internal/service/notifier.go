package service

import (
	"context"
	"io"

	"skillset_backend/internal/config"
	"skillset_backend/pkg/logger"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Notifier 尽力投递；未配置收件人或传输时返回 false，从不 panic
type Notifier interface {
	Deliver(ctx context.Context, to, subject, body string, attachment *Attachment) bool
}

// MailNotifier SMTP 邮件通知
type MailNotifier struct {
	Config config.SMTPConfig
	send   func(m *gomail.Message) error
}

func NewMailNotifier(cfg config.SMTPConfig) *MailNotifier {
	n := &MailNotifier{Config: cfg}
	n.send = func(m *gomail.Message) error {
		return gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password).DialAndSend(m)
	}
	return n
}

func (n *MailNotifier) configured() bool {
	return n.Config.Host != "" && n.Config.From != ""
}

func (n *MailNotifier) Deliver(ctx context.Context, to, subject, body string, attachment *Attachment) bool {
	if to == "" || !n.configured() {
		return false
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.Config.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	if attachment != nil {
		data := attachment.Data
		m.Attach(attachment.Name,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {attachment.ContentType}}),
		)
	}

	done := make(chan error, 1)
	go func() { done <- n.send(m) }()

	select {
	case err := <-done:
		if err != nil {
			logger.Log.Warn("Mail delivery failed", zap.String("to", to), zap.Error(err))
			return false
		}
		return true
	case <-ctx.Done():
		logger.Log.Warn("Mail delivery timed out", zap.String("to", to), zap.Error(ctx.Err()))
		return false
	}
}
