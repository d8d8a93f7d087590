package transport

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"platewatch/internal/components/telemetry"

	"github.com/jordan-wright/email"
)

const report_email_send = "email.send"

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	To           []string `json:"to"`
}

// Email sends every batch of messages as a single plain text mail.
type Email struct {
	config SmtpConfig
	tel    telemetry.API
}

func NewEmail(config SmtpConfig, tel telemetry.API) Email {
	return Email{config: config, tel: telemetry.NewScopedAPI("transport", tel)}
}

func (e Email) Send(ctx context.Context, msgs ...Message) error {
	_, span := tracer.Start(ctx, "email:send")
	defer span.End()

	var texts []string
	for _, m := range msgs {
		texts = append(texts, TextOf(m))
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("platewatch <%s>", e.config.EmailAddress)
	mail.To = e.config.To
	mail.Subject = "【車牌通知】"
	mail.Text = []byte(strings.Join(texts, "\n\n"))

	addr := fmt.Sprintf("%s:%d", e.config.Server, e.config.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", e.config.EmailAddress, e.config.Password, e.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		e.tel.ReportBroken(report_email_send, err)
		return err
	}
	return nil
}
