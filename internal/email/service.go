// Package email sends LifeBlocks notifications over SMTP.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
	logger log.FieldLogger
}

func NewService(config Config, logger log.FieldLogger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
		logger: logger,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart message with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "lifeblocks-alt"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.send(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// BoardShare describes a new collaborator on a board.
type BoardShare struct {
	To         string
	Recipient  string
	SharedBy   string
	BoardTitle string
	Role       string
	BoardURL   string
}

// BoardShared tells a user they were given access to a board. Without SMTP
// settings the notice is only logged.
func (s *Service) BoardShared(_ context.Context, share BoardShare) error {
	if !s.IsConfigured() {
		s.logger.WithFields(log.Fields{"to": share.To, "board_url": share.BoardURL}).Debug("email disabled, share notice skipped")
		return nil
	}
	if share.BoardTitle == "" {
		share.BoardTitle = "Untitled board"
	}
	if share.Recipient == "" {
		share.Recipient = share.To
	}

	subject := fmt.Sprintf("%s shared \"%s\" with you", share.SharedBy, share.BoardTitle)
	html, err := renderBoardShared(share)
	if err != nil {
		return fmt.Errorf("render share template: %w", err)
	}
	text := fmt.Sprintf("%s gave you %s access to %q on LifeBlocks.\r\nOpen it at %s", share.SharedBy, share.Role, share.BoardTitle, share.BoardURL)

	if err := s.SendHTMLEmail([]string{share.To}, subject, text, html); err != nil {
		return fmt.Errorf("send share notice: %w", err)
	}
	return nil
}

var boardSharedTmpl = template.Must(template.New("board-shared").Parse(boardSharedTemplate))

func renderBoardShared(share BoardShare) (string, error) {
	var buf bytes.Buffer
	if err := boardSharedTmpl.Execute(&buf, share); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const boardSharedTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.BoardTitle}} was shared with you</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #2f855a; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #2f855a; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #2f855a; }
    </style>
</head>
<body>
    <div class="header">
        <h1>LifeBlocks</h1>
    </div>

    <p>Hi {{.Recipient}},</p>

    <p>{{.SharedBy}} gave you <strong>{{.Role}}</strong> access to the board "{{.BoardTitle}}".</p>

    <p>
        <a href="{{.BoardURL}}" class="button">Open board</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.BoardURL}}</p>

    <div class="footer">
        <p>You can leave the board at any time from its sharing panel.</p>
    </div>
</body>
</html>`
