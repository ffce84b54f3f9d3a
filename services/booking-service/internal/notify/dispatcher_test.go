package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"

	"github.com/kshitijlohbare/wellbook/libs/runtime"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/model"
)

type stubProvider struct {
	err  error
	sent []Email
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Send(_ context.Context, e Email) error {
	s.sent = append(s.sent, e)
	return s.err
}

type memLog struct {
	records []model.NotificationRecord
	err     error
}

func (m *memLog) Insert(_ context.Context, rec model.NotificationRecord) error {
	m.records = append(m.records, rec)
	return m.err
}

func TestDispatcherLogsOneRecordPerAttempt(t *testing.T) {
	provider := &stubProvider{}
	log := &memLog{}
	d := NewDispatcher(provider, log, runtime.DiscardLogger(), nil)

	to := Recipient{Email: "a@b.com", Name: "Alice"}
	if err := d.Notify(context.Background(), KindConfirmation, "a1", to, Facts{PractitionerName: "Dr. X", Date: "2025-06-01", Time: "10:00 AM"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(provider.sent) != 1 || !strings.Contains(provider.sent[0].Body, "Hi Alice") {
		t.Fatalf("expected one personalised email, got %+v", provider.sent)
	}
	if len(log.records) != 1 || log.records[0].Status != model.NotificationSent || log.records[0].Type != "confirmation" {
		t.Fatalf("unexpected log records %+v", log.records)
	}

	provider.err = errors.New("relay refused")
	err := d.Notify(context.Background(), KindReminder, "a1", to, Facts{})
	if err == nil {
		t.Fatal("expected provider error to be returned")
	}
	if len(log.records) != 2 {
		t.Fatalf("expected a second record, got %d", len(log.records))
	}
	if got := log.records[1]; got.Status != model.NotificationError || got.ErrorMessage != "relay refused" || got.Provider != "stub" {
		t.Fatalf("unexpected error record %+v", got)
	}
}

func TestDispatcherLogFailureDoesNotChangeOutcome(t *testing.T) {
	d := NewDispatcher(&stubProvider{}, &memLog{err: errors.New("db down")}, runtime.DiscardLogger(), nil)
	if err := d.Notify(context.Background(), KindCancellation, "a1", Recipient{Email: "a@b.com"}, Facts{}); err != nil {
		t.Fatalf("expected success despite log failure, got %v", err)
	}
}

func TestSMTPProviderMessage(t *testing.T) {
	var got *gomail.Message
	p := NewSMTPProvider(SMTPConfig{Host: "localhost", From: From{Email: "care@wellbook.app"}})
	p.send = func(m *gomail.Message) error {
		got = m
		return nil
	}
	if err := p.Send(context.Background(), Email{To: "a@b.com", ToName: "Alice", Subject: "Hello", Body: "Body text"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	var buf bytes.Buffer
	if _, err := got.WriteTo(&buf); err != nil {
		t.Fatalf("write message: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{"Subject: Hello", "care@wellbook.app", "Alice", "Body text"} {
		if !strings.Contains(raw, want) {
			t.Fatalf("message missing %q:\n%s", want, raw)
		}
	}

	p.send = func(*gomail.Message) error { return errors.New("dial tcp: refused") }
	if err := p.Send(context.Background(), Email{To: "a@b.com"}); err == nil || !strings.Contains(err.Error(), "smtp send") {
		t.Fatalf("expected wrapped smtp error, got %v", err)
	}
}

type fakeSendGrid struct {
	status int
	got    *mail.SGMailV3
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.got = m
	return &rest.Response{StatusCode: f.status}, nil
}

func TestSendGridProvider(t *testing.T) {
	if _, err := NewSendGridProvider("", From{}); err == nil {
		t.Fatal("expected error without api key")
	}
	fake := &fakeSendGrid{status: 202}
	p := &SendGridProvider{client: fake, from: From{}.withDefaults()}
	if err := p.Send(context.Background(), Email{To: "a@b.com", Subject: "Hi", Body: "Body"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if fake.got == nil || fake.got.Subject != "Hi" || fake.got.From.Address != "no-reply@wellbook.local" {
		t.Fatalf("unexpected sendgrid message %+v", fake.got)
	}
	fake.status = 401
	if err := p.Send(context.Background(), Email{To: "a@b.com"}); err == nil {
		t.Fatal("expected error for 4xx status")
	}
}

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, f.err
}

func TestSESProvider(t *testing.T) {
	fake := &fakeSES{}
	p := &SESProvider{client: fake, from: From{Email: "care@wellbook.app", Name: "Wellbook Care"}}
	if err := p.Send(context.Background(), Email{To: "a@b.com", Subject: "Hi", Body: "Body"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if aws.ToString(fake.in.FromEmailAddress) != "Wellbook Care <care@wellbook.app>" {
		t.Fatalf("unexpected from %q", aws.ToString(fake.in.FromEmailAddress))
	}
	if aws.ToString(fake.in.Content.Simple.Body.Text.Data) != "Body" {
		t.Fatal("expected text body")
	}
}

func TestNewProviderSelection(t *testing.T) {
	logger := runtime.DiscardLogger()
	p, err := NewProvider(context.Background(), ProviderConfig{}, logger)
	if err != nil || p.Name() != "log" {
		t.Fatalf("expected log provider by default, got %v %v", p, err)
	}
	p, err = NewProvider(context.Background(), ProviderConfig{Kind: "SMTP", SMTP: SMTPConfig{Host: "mailpit"}}, logger)
	if err != nil || p.Name() != "smtp" {
		t.Fatalf("expected smtp provider, got %v %v", p, err)
	}
	if _, err := NewProvider(context.Background(), ProviderConfig{Kind: "sendgrid"}, logger); err == nil {
		t.Fatal("expected sendgrid without key to fail")
	}
	if _, err := NewProvider(context.Background(), ProviderConfig{Kind: "pigeon"}, logger); err == nil {
		t.Fatal("expected unknown provider to fail")
	}
}
