package events

import (
	"context"
	"fmt"
	"html"
	"log"
	"time"

	"github.com/resend/resend-go/v3"
)

// Mailer sends one HTML email and returns the provider message id.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) (string, error)
}

// ResendMailer delivers through Resend. With no API key it only logs.
type ResendMailer struct {
	client *resend.Client
	from   string
}

func NewResendMailer(apiKey, from string) *ResendMailer {
	m := &ResendMailer{from: from}
	if apiKey != "" {
		m.client = resend.NewClient(apiKey)
	}
	return m
}

func (m *ResendMailer) Send(_ context.Context, to, subject, htmlBody string) (string, error) {
	if m.client == nil {
		log.Printf("[Email] RESEND_API_KEY is missing. Mock email to=%s subject=%q", to, subject)
		return "mock", nil
	}
	sent, err := m.client.Emails.Send(&resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
	})
	if err != nil {
		return "", err
	}
	return sent.Id, nil
}

// UpgradeNotifier emails users who hit their monthly limit.
type UpgradeNotifier struct {
	mailer     Mailer
	pricingURL string
}

func NewUpgradeNotifier(mailer Mailer, frontendURL string) *UpgradeNotifier {
	return &UpgradeNotifier{mailer: mailer, pricingURL: frontendURL + "/pricing"}
}

const (
	mailQueue   = 64
	mailTimeout = 15 * time.Second
)

// Attach sends notices off the publisher's goroutine. cancel flushes pending notices.
func (n *UpgradeNotifier) Attach(bus *Bus) (cancel func()) {
	return bus.SubscribeAsync(n.handle, mailQueue, mailTimeout)
}

func (n *UpgradeNotifier) handle(ctx context.Context, e Event) {
	if e.Kind != KindUpgradeRequired || e.Email == "" {
		return
	}
	p, _ := e.Payload.(UpgradeRequiredPayload)
	subject := "Você atingiu o limite de análises do mês"
	body := fmt.Sprintf(
		`<p>Você usou %d de %d análises do plano %s neste mês.</p><p><a href="%s">Faça upgrade</a> para continuar analisando.</p>`,
		p.Count, p.Limit, html.EscapeString(p.PlanType), html.EscapeString(n.pricingURL),
	)
	id, err := n.mailer.Send(ctx, e.Email, subject, body)
	if err != nil {
		log.Printf("[Email] upgrade notice failed user=%s err=%v", e.UserID, err)
		return
	}
	log.Printf("[Email] upgrade notice sent user=%s id=%s", e.UserID, id)
}
