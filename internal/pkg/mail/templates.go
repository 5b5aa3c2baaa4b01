package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

const verifyTpl = `<!DOCTYPE html>
<html>
<body style="font-family:sans-serif;background:#f5f5f5;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">
  <h2 style="color:#333">{{.BrandName}}</h2>
  <p>Hi {{.FirstName}},</p>
  <p>We are updating our alumni records. Please confirm this is still the best email to reach you at:</p>
  <p style="margin-top:24px">
    <a href="{{.VerifyURL}}" style="background:#4f46e5;color:#fff;padding:8px 16px;text-decoration:none;border-radius:4px">Confirm my email</a>
  </p>
  <p style="color:#999;font-size:12px">This link expires in {{.TTLHours}} hours. If you did not expect this email, you can safely ignore it.</p>
</div>
</body>
</html>`

const rapportTpl = `<!DOCTYPE html>
<html>
<body style="font-family:sans-serif;background:#f5f5f5;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">
  <h2 style="color:#333">{{.BrandName}}</h2>
  <h3 style="color:#555">{{.Heading}}</h3>
  <p>Hi {{.FirstName}},</p>
  <p>{{.Lead}}</p>
  <p style="margin-top:24px">
    <a href="{{.VerifyURL}}" style="background:#4f46e5;color:#fff;padding:8px 16px;text-decoration:none;border-radius:4px">Yes, this is still my email</a>
  </p>
  <p style="color:#999;font-size:12px">This link expires in {{.TTLHours}} hours. If you did not expect this email, you can safely ignore it.</p>
</div>
</body>
</html>`

const accessInviteTpl = `<!DOCTYPE html>
<html>
<body style="font-family:sans-serif;background:#f5f5f5;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">
  <h2 style="color:#333">{{.BrandName}}</h2>
  <p>Hi {{.Name}},</p>
  <p>You have been granted <strong>{{.Role}}</strong> access to the {{.BrandName}} admin portal. Use the button below to sign in; no password is needed.</p>
  <p style="margin-top:24px">
    <a href="{{.ActionURL}}" style="background:#4f46e5;color:#fff;padding:8px 16px;text-decoration:none;border-radius:4px">Open the admin portal</a>
  </p>
  <p style="color:#999;font-size:12px">The sign-in link is single use. If it has expired, ask an administrator to send a new one.</p>
</div>
</body>
</html>`

const eventInviteTpl = `<!DOCTYPE html>
<html>
<body style="font-family:sans-serif;background:#f5f5f5;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">
  <h2 style="color:#333">{{.BrandName}}</h2>
  <p>Hi {{.FirstName}},</p>
  <p>You are invited to <strong>{{.EventTitle}}</strong>.</p>
  <table role="presentation" style="margin:16px 0;font-size:14px;color:#333">
    <tr><td style="padding-right:12px;color:#999">When</td><td>{{.StartsAt}}</td></tr>
    {{if .Location}}<tr><td style="padding-right:12px;color:#999">Where</td><td>{{.Location}}</td></tr>{{end}}
  </table>
  <p style="margin-top:24px">
    <a href="{{.GoingURL}}" style="background:#16a34a;color:#fff;padding:8px 16px;text-decoration:none;border-radius:4px;margin-right:8px">I'm going</a>
    <a href="{{.NotGoingURL}}" style="background:#9ca3af;color:#fff;padding:8px 16px;text-decoration:none;border-radius:4px">Can't make it</a>
  </p>
  <p style="color:#999;font-size:12px">You can change your answer any time before the event by using these links again.</p>
</div>
</body>
</html>`

// VerifyData is the data for the initial verification email.
type VerifyData struct {
	BrandName string
	FirstName string
	VerifyURL string
	TTLHours  int
}

// RapportData is the data for a re-verification campaign email. Heading and
// Lead are filled in by SendRapport based on the escalation interval.
type RapportData struct {
	BrandName string
	FirstName string
	VerifyURL string
	TTLHours  int
	Heading   string
	Lead      string
}

// AccessInviteData is the data for an admin-portal access email.
type AccessInviteData struct {
	BrandName string
	Name      string
	Role      string
	ActionURL string
}

// EventInviteData is the data for an event invitation email.
type EventInviteData struct {
	BrandName   string
	FirstName   string
	EventTitle  string
	StartsAt    string
	Location    string
	GoingURL    string
	NotGoingURL string
}

// rapportCopy is the interval-specific wording of a campaign email.
type rapportCopy struct {
	Subject string
	Heading string
	Lead    string
}

// rapportCopies maps escalation intervals (months since first contact) to
// their campaign copy. Subject, heading and lead all grow in urgency.
var rapportCopies = map[int]rapportCopy{
	1: {
		Subject: "Quick check-in: is this still your email?",
		Heading: "Still the best way to reach you?",
		Lead:    "A month ago we asked you to confirm your contact details and have not heard back. It only takes one click.",
	},
	3: {
		Subject: "We'd still love to stay in touch",
		Heading: "Three months without a word",
		Lead:    "It has been a few months since we first reached out. We would love to keep you in the loop about alumni events and opportunities.",
	},
	6: {
		Subject: "Your alumni record is going stale",
		Heading: "Six months and counting",
		Lead:    "We still have not been able to confirm your email. After a year of silence we stop contacting unconfirmed addresses, so please take a second to confirm.",
	},
	12: {
		Subject: "Last call before we mark this address inactive",
		Heading: "Our final attempt to reach you",
		Lead:    "This is our last attempt to reach you. If we do not hear back, we will mark this address as inactive and stop sending updates.",
	},
}

func renderTemplate(tpl string, data interface{}) (string, error) {
	t, err := template.New("").Funcs(template.FuncMap{
		"year": func() int {
			return time.Now().Year()
		},
	}).Parse(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SendVerification sends the initial email-verification request.
func (s *Sender) SendVerification(to string, data VerifyData) error {
	if strings.TrimSpace(data.FirstName) == "" {
		data.FirstName = "there"
	}
	html, err := renderTemplate(verifyTpl, data)
	if err != nil {
		return &SendError{Kind: KindProvider, Err: err}
	}
	return s.Send(Message{
		To:      []string{to},
		Subject: fmt.Sprintf("[%s] Please confirm your email", data.BrandName),
		HTML:    html,
		Text:    verifyText(data),
	})
}

// SendRapport sends a re-verification campaign email for the given
// escalation interval (1, 3, 6 or 12 months).
func (s *Sender) SendRapport(to string, intervalMonths int, data RapportData) error {
	if strings.TrimSpace(data.FirstName) == "" {
		data.FirstName = "there"
	}
	wording, ok := rapportCopies[intervalMonths]
	if !ok {
		return &SendError{Kind: KindProvider, Err: fmt.Errorf("no campaign for interval %d", intervalMonths)}
	}
	data.Heading = wording.Heading
	data.Lead = wording.Lead
	html, err := renderTemplate(rapportTpl, data)
	if err != nil {
		return &SendError{Kind: KindProvider, Err: err}
	}
	return s.Send(Message{
		To:      []string{to},
		Subject: fmt.Sprintf("[%s] %s", data.BrandName, wording.Subject),
		HTML:    html,
		Text:    rapportText(data),
	})
}

// SendAccessInvite sends the admin-portal sign-in email to a team member.
func (s *Sender) SendAccessInvite(to string, data AccessInviteData) error {
	if strings.TrimSpace(data.Name) == "" {
		data.Name = "there"
	}
	html, err := renderTemplate(accessInviteTpl, data)
	if err != nil {
		return &SendError{Kind: KindProvider, Err: err}
	}
	return s.Send(Message{
		To:      []string{to},
		Subject: fmt.Sprintf("[%s] Your admin portal access", data.BrandName),
		HTML:    html,
		Text:    accessInviteText(data),
	})
}

// SendEventInvite sends an event invitation with RSVP links.
func (s *Sender) SendEventInvite(to string, data EventInviteData) error {
	if strings.TrimSpace(data.FirstName) == "" {
		data.FirstName = "there"
	}
	html, err := renderTemplate(eventInviteTpl, data)
	if err != nil {
		return &SendError{Kind: KindProvider, Err: err}
	}
	return s.Send(Message{
		To:      []string{to},
		Subject: fmt.Sprintf("[%s] You're invited: %s", data.BrandName, data.EventTitle),
		HTML:    html,
		Text:    eventInviteText(data),
	})
}

func verifyText(d VerifyData) string {
	return fmt.Sprintf("Hi %s,\n\nWe are updating our alumni records. Please confirm this is still the best email to reach you at:\n\n%s\n\nThis link expires in %d hours. If you did not expect this email, you can safely ignore it.\n",
		d.FirstName, d.VerifyURL, d.TTLHours)
}

func rapportText(d RapportData) string {
	return fmt.Sprintf("Hi %s,\n\n%s\n\nConfirm your email here:\n\n%s\n\nThis link expires in %d hours. If you did not expect this email, you can safely ignore it.\n",
		d.FirstName, d.Lead, d.VerifyURL, d.TTLHours)
}

func accessInviteText(d AccessInviteData) string {
	return fmt.Sprintf("Hi %s,\n\nYou have been granted %s access to the %s admin portal. Sign in here; no password is needed:\n\n%s\n\nThe sign-in link is single use. If it has expired, ask an administrator to send a new one.\n",
		d.Name, d.Role, d.BrandName, d.ActionURL)
}

func eventInviteText(d EventInviteData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nYou are invited to %s.\n\nWhen: %s\n", d.FirstName, d.EventTitle, d.StartsAt)
	if d.Location != "" {
		fmt.Fprintf(&b, "Where: %s\n", d.Location)
	}
	fmt.Fprintf(&b, "\nI'm going: %s\nCan't make it: %s\n\nYou can change your answer any time before the event by using these links again.\n",
		d.GoingURL, d.NotGoingURL)
	return b.String()
}
