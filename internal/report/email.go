package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	gomail "gopkg.in/mail.v2"

	"github.com/sells-group/change-monitor/internal/config"
	"github.com/sells-group/change-monitor/internal/model"
)

// RenderedMessage is an email ready to send.
type RenderedMessage struct {
	Subject string
	Text    string
	HTML    string
}

// mailSender is satisfied by *gomail.Dialer.
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailPublisher sends a digest of each pass over SMTP.
type EmailPublisher struct {
	cfg    config.EmailConfig
	tmpl   *template.Template
	sender mailSender
	now    func() time.Time
}

// NewEmailPublisher creates an EmailPublisher from cfg.
func NewEmailPublisher(cfg config.EmailConfig) *EmailPublisher {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.Timeout = 10 * time.Second
	return &EmailPublisher{
		cfg:    cfg,
		tmpl:   parseDigestTemplate(),
		sender: dialer,
		now:    time.Now,
	}
}

func parseDigestTemplate() *template.Template {
	return template.Must(template.New("digest").Funcs(template.FuncMap{
		"lower": strings.ToLower,
		"join":  strings.Join,
	}).Parse(digestHTMLTemplate))
}

func (p *EmailPublisher) Name() string { return "email" }

// Publish renders and sends the digest. Quiet passes are skipped unless
// send_when_quiet is set.
func (p *EmailPublisher) Publish(ctx context.Context, runs []*model.Run) error {
	d := BuildDigest(runs, p.now())
	if d.Quiet() && !p.cfg.SendWhenQuiet {
		zap.L().Debug("report: quiet pass, digest email skipped")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "email: send digest")
	}

	msg, err := p.Render(d)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", p.cfg.From)
	m.SetHeader("To", p.cfg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	if err := p.sender.DialAndSend(m); err != nil {
		return eris.Wrapf(err, "email: send digest to %s", strings.Join(p.cfg.To, ", "))
	}
	zap.L().Info("report: digest email sent",
		zap.String("subject", msg.Subject),
		zap.Int("significant", len(d.Significant)),
	)
	return nil
}

// Render produces the HTML digest with a plain text alternative.
func (p *EmailPublisher) Render(d Digest) (*RenderedMessage, error) {
	var htmlBuf bytes.Buffer
	if err := p.tmpl.Execute(&htmlBuf, d); err != nil {
		return nil, eris.Wrap(err, "email: render html")
	}
	return &RenderedMessage{
		Subject: digestSubject(d),
		Text:    renderPlainText(d),
		HTML:    htmlBuf.String(),
	}, nil
}

func digestSubject(d Digest) string {
	date := d.Date.Format("2006-01-02")
	if n := len(d.Significant); n > 0 {
		return fmt.Sprintf("Change Monitor Digest %s: %d significant change%s", date, n, plural(n))
	}
	return "Change Monitor Digest " + date
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func renderPlainText(d Digest) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Change Monitor digest for %s\n", d.Date.Format("Mon, 02 Jan 2006"))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&sb, "Entities monitored: %d\nChanges detected: %d\nSignificant: %d\n\n",
		d.Entities, d.TotalChanges, len(d.Significant))

	if d.Quiet() {
		sb.WriteString("No changes detected.\n")
		return sb.String()
	}

	if len(d.Significant) > 0 {
		sb.WriteString("SIGNIFICANT CHANGES\n")
		sb.WriteString(strings.Repeat("-", 20) + "\n")
		for _, c := range d.Significant {
			fmt.Fprintf(&sb, "* %s: %s\n", c.EntityID, c.URL)
			fmt.Fprintf(&sb, "  %s, magnitude %.2f%%", c.ChangeType, c.Magnitude)
			if c.Score != nil {
				fmt.Fprintf(&sb, ", score %d/10 (%s)", c.Score.Score, c.Score.Method)
			}
			fmt.Fprintf(&sb, ", %s\n", c.Level)
			if len(c.Keywords) > 0 {
				fmt.Fprintf(&sb, "  Keywords: %s\n", strings.Join(c.Keywords, ", "))
			}
			if c.Score != nil && c.Score.Reasoning != "" {
				fmt.Fprintf(&sb, "  %s\n", c.Score.Reasoning)
			}
		}
		sb.WriteString("\n")
	}

	if len(d.WithChanges) > 0 {
		sb.WriteString("ENTITIES WITH CHANGES\n")
		sb.WriteString(strings.Repeat("-", 20) + "\n")
		for _, e := range d.WithChanges {
			fmt.Fprintf(&sb, "* %s: %d of %d pages changed\n", e.EntityID, e.Changed, e.URLs)
		}
		sb.WriteString("\n")
	}

	if len(d.Stable) > 0 {
		ids := make([]string, len(d.Stable))
		for i, e := range d.Stable {
			ids[i] = e.EntityID
		}
		fmt.Fprintf(&sb, "STABLE: %s\n\n", strings.Join(ids, ", "))
	}

	if len(d.WithErrors) > 0 {
		sb.WriteString("ERRORS\n")
		sb.WriteString(strings.Repeat("-", 20) + "\n")
		for _, e := range d.WithErrors {
			fmt.Fprintf(&sb, "* %s: %d of %d pages failed\n", e.EntityID, e.Errors, e.URLs)
		}
	}
	return sb.String()
}
