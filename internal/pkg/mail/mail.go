package mail

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

// Config holds mail provider settings (matches AppConfig.Mail).
type Config struct {
	Enable    bool
	Host      string
	Port      int
	User      string
	Pass      string
	From      string
	ReplyTo   string
	ResendKey string
}

// ErrorKind classifies a failed send.
type ErrorKind string

const (
	// KindNotConfigured means the deployment has no usable mail provider.
	KindNotConfigured ErrorKind = "not_configured"
	// KindDomainUnverified means the provider rejected the sender identity.
	KindDomainUnverified ErrorKind = "domain_unverified"
	// KindProvider covers transient provider and network failures.
	KindProvider ErrorKind = "provider"
)

// SendError is the error type returned by every send path. Callers branch on
// Kind to tell a broken deployment apart from a transient provider hiccup.
type SendError struct {
	Kind ErrorKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("mail: %s: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Permanent reports whether retrying cannot succeed without a config change.
func (e *SendError) Permanent() bool { return e.Kind != KindProvider }

// AsSendError extracts a *SendError from an error chain.
func AsSendError(err error) (*SendError, bool) {
	var se *SendError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Message is a single email to send. Text is the plain-text alternative for
// clients that do not render HTML; it may be empty.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Sender sends emails via the Resend HTTP API or plain SMTP.
type Sender struct {
	cfg Config
}

func New(cfg Config) *Sender {
	return &Sender{cfg: cfg}
}

// Send dispatches an email. Uses Resend if a key is configured, otherwise SMTP.
func (s *Sender) Send(msg Message) error {
	if !s.cfg.Enable {
		return &SendError{Kind: KindNotConfigured, Err: errors.New("mail is disabled")}
	}
	if strings.TrimSpace(s.cfg.ResendKey) != "" {
		return s.sendResend(msg)
	}
	if strings.TrimSpace(s.cfg.Host) == "" {
		return &SendError{Kind: KindNotConfigured, Err: errors.New("no smtp host and no resend key")}
	}
	return s.sendSMTP(msg)
}

func (s *Sender) sendSMTP(msg Message) error {
	host := s.cfg.Host
	port := s.cfg.Port
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	from := s.cfg.From
	if from == "" {
		from = s.cfg.User
	}

	var body bytes.Buffer
	body.WriteString("MIME-Version: 1.0\r\n")
	body.WriteString(fmt.Sprintf("From: %s\r\n", from))
	body.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	body.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	if s.cfg.ReplyTo != "" {
		body.WriteString(fmt.Sprintf("Reply-To: %s\r\n", s.cfg.ReplyTo))
	}
	if msg.Text == "" {
		body.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		body.WriteString(msg.HTML)
	} else {
		const boundary = "b1.tbi.alternative"
		body.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary))
		body.WriteString("--" + boundary + "\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
		body.WriteString(msg.Text)
		body.WriteString("\r\n--" + boundary + "\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n")
		body.WriteString(msg.HTML)
		body.WriteString("\r\n--" + boundary + "--\r\n")
	}

	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, host)
	if err := smtp.SendMail(addr, auth, from, msg.To, body.Bytes()); err != nil {
		return &SendError{Kind: KindProvider, Err: err}
	}
	return nil
}

func (s *Sender) sendResend(msg Message) error {
	from := s.cfg.From
	if from == "" {
		from = s.cfg.User
	}

	fields := map[string]interface{}{
		"from":    from,
		"to":      msg.To,
		"subject": msg.Subject,
		"html":    msg.HTML,
	}
	if msg.Text != "" {
		fields["text"] = msg.Text
	}
	payload, _ := json.Marshal(fields)

	req, err := http.NewRequest("POST", "https://api.resend.com/emails", bytes.NewReader(payload))
	if err != nil {
		return &SendError{Kind: KindProvider, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.ResendKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return &SendError{Kind: KindProvider, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		err := fmt.Errorf("resend error %d: %s", resp.StatusCode, errResp.Message)
		// 401/403 mean the key or sender domain is bad; no retry will fix that.
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &SendError{Kind: KindDomainUnverified, Err: err}
		}
		return &SendError{Kind: KindProvider, Err: err}
	}
	return nil
}
