package email

import (
	"errors"
	"fmt"
	"net/smtp"
	"net/url"
	"strings"

	"github.com/intermernet/clubportal/internal/database"
)

// ErrDisabled is returned when no SMTP host is configured.
var ErrDisabled = errors.New("email: sending is disabled")

// SMTPServerConfig holds all the necessary configuration for connecting to an SMTP server.
type SMTPServerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string // The "From" email address
}

// EmailService sends the portal's mails.
type EmailService struct {
	config   SMTPServerConfig
	auth     smtp.Auth
	clubName string

	// sendMail is smtp.SendMail outside of tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailService creates a new service for sending emails. With an empty
// host every send returns ErrDisabled.
func NewEmailService(config SMTPServerConfig, clubName string) *EmailService {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &EmailService{
		config:   config,
		auth:     auth,
		clubName: clubName,
		sendMail: smtp.SendMail,
	}
}

// Enabled reports whether mails will actually be sent.
func (s *EmailService) Enabled() bool {
	return s != nil && s.config.Host != ""
}

// SendPortalInvite tells a roster member how to sign in to the portal.
func (s *EmailService) SendPortalInvite(m *database.Member, frontendURL string) error {
	if !m.Email.Valid || m.Email.String == "" {
		return fmt.Errorf("email: member %d has no address", m.ID)
	}
	link := fmt.Sprintf("%s/login?email=%s", frontendURL, url.QueryEscape(m.Email.String))

	subject := fmt.Sprintf("Dein Zugang zum Mitgliederbereich von %s", s.clubName)
	body := fmt.Sprintf(
		"Hallo %s,\n\ndu kannst dich ab sofort im Mitgliederbereich von %s anmelden:\n%s\n\nSportliche Grüße\n%s",
		m.FirstName, s.clubName, link, s.clubName,
	)
	return s.send(m.Email.String, subject, body)
}

// SendImportReport mails the outcome of a CSV import to whoever ran it.
func (s *EmailService) SendImportReport(to string, run database.ImportRun, notFound []string) error {
	subject := fmt.Sprintf("Import %s: %d Einträge", run.FileName, run.RecordsWritten)

	var b strings.Builder
	fmt.Fprintf(&b, "Import %s (%s) vom %s\n\n", run.ID, run.Kind, run.StartedAt.Format("02.01.2006 15:04"))
	if run.Kind == "attendance" {
		fmt.Fprintf(&b, "Datumsspalten: %d\n", run.DateColumns)
	}
	fmt.Fprintf(&b, "Geschriebene Einträge: %d\n", run.RecordsWritten)
	fmt.Fprintf(&b, "Fehler: %d\n", run.Errors)
	if run.MembersNotFound > 0 {
		fmt.Fprintf(&b, "Nicht gefundene Mitglieder: %d\n", run.MembersNotFound)
		for _, n := range notFound {
			fmt.Fprintf(&b, "  - %s\n", n)
		}
	}
	return s.send(to, subject, b.String())
}

func (s *EmailService) send(to, subject, body string) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	message := []byte(
		"To: " + to + "\r\n" +
			"From: " + s.config.Sender + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n" +
			"\r\n" +
			strings.ReplaceAll(body, "\n", "\r\n") + "\r\n")

	if err := s.sendMail(addr, s.auth, s.config.Sender, []string{to}, message); err != nil {
		return fmt.Errorf("smtp error: %w", err)
	}
	return nil
}
