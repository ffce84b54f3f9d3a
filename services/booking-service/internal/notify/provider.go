package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"
)

type Email struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Provider delivers one email. Implementations are selected once at startup.
type Provider interface {
	Name() string
	Send(ctx context.Context, e Email) error
}

// Sender identity shared by every provider.
type From struct {
	Email string
	Name  string
}

func (f From) withDefaults() From {
	if f.Email == "" {
		f.Email = "no-reply@wellbook.local"
	}
	if f.Name == "" {
		f.Name = "Wellbook"
	}
	return f
}

// LogProvider only logs. It is the default for local development.
type LogProvider struct {
	logger *slog.Logger
}

func NewLogProvider(logger *slog.Logger) *LogProvider {
	return &LogProvider{logger: logger}
}

func (p *LogProvider) Name() string { return "log" }

func (p *LogProvider) Send(_ context.Context, e Email) error {
	p.logger.Info("email (log provider)", "to", e.To, "subject", e.Subject, "body_bytes", len(e.Body))
	return nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     From
}

// SMTPProvider sends through an SMTP relay; Mailpit works unauthenticated.
type SMTPProvider struct {
	from From
	send func(m *gomail.Message) error
}

func NewSMTPProvider(cfg SMTPConfig) *SMTPProvider {
	if cfg.Port <= 0 {
		cfg.Port = 1025
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &SMTPProvider{from: cfg.From.withDefaults(), send: func(m *gomail.Message) error { return d.DialAndSend(m) }}
}

func (p *SMTPProvider) Name() string { return "smtp" }

func (p *SMTPProvider) Send(_ context.Context, e Email) error {
	if err := p.send(p.message(e)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (p *SMTPProvider) message(e Email) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", p.from.Email, p.from.Name)
	if e.ToName != "" {
		m.SetAddressHeader("To", e.To, e.ToName)
	} else {
		m.SetHeader("To", e.To)
	}
	m.SetHeader("Subject", e.Subject)
	m.SetBody("text/plain", e.Body)
	return m
}

type sendgridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type SendGridProvider struct {
	client sendgridClient
	from   From
}

func NewSendGridProvider(apiKey string, from From) (*SendGridProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("SENDGRID_API_KEY is required for the sendgrid provider")
	}
	return &SendGridProvider{client: sendgrid.NewSendClient(apiKey), from: from.withDefaults()}, nil
}

func (p *SendGridProvider) Name() string { return "sendgrid" }

func (p *SendGridProvider) Send(ctx context.Context, e Email) error {
	msg := mail.NewSingleEmail(mail.NewEmail(p.from.Name, p.from.Email), e.Subject, mail.NewEmail(e.ToName, e.To), e.Body, "")
	resp, err := p.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}

type sesClient interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESProvider struct {
	client sesClient
	from   From
}

func NewSESProvider(client *sesv2.Client, from From) *SESProvider {
	return &SESProvider{client: client, from: from.withDefaults()}
}

func (p *SESProvider) Name() string { return "ses" }

func (p *SESProvider) Send(ctx context.Context, e Email) error {
	_, err := p.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", p.from.Name, p.from.Email)),
		Destination:      &types.Destination{ToAddresses: []string{e.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(e.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(e.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}
