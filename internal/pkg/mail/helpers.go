package mail

import (
	"github.com/BantawigP/TBI-marian-sub001/internal/config"
)

// BuildMailConfig maps the application config onto the mailer config so every
// caller builds it the same way.
func BuildMailConfig(cfg *config.AppConfig) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		Enable:    cfg.Mail.Enable,
		Host:      cfg.Mail.SMTP.Host,
		Port:      cfg.Mail.SMTP.Port,
		User:      cfg.Mail.SMTP.User,
		Pass:      cfg.Mail.SMTP.Pass,
		From:      cfg.Mail.From,
		ReplyTo:   cfg.Mail.ReplyTo,
		ResendKey: cfg.Mail.ResendKey,
	}
}
