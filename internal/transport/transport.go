package transport

import (
	"context"
	"errors"
	"fmt"

	"platewatch/internal/components/telemetry"
)

const report_multi_send = "multi.send"

// Message is one messaging-api message object, e.g. {"type": "text", "text": "..."}.
type Message map[string]any

// Text creates a plain text message.
func Text(text string) Message {
	return Message{"type": "text", "text": text}
}

// TextOf returns the text payload of a message, or the empty string if the
// message has none.
func TextOf(m Message) string {
	text, _ := m["text"].(string)
	return text
}

// Transport delivers messages to every subscriber it knows about.
//
// note: fault injection point
type Transport interface {
	Send(ctx context.Context, msgs ...Message) error
}

// StatusError is returned when a messaging api answers with a non-2xx status.
type StatusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Endpoint, e.Status, e.Body)
}

// Multi sends to every transport, a failure of one does not stop the others.
type Multi []Transport

func (m Multi) Send(ctx context.Context, msgs ...Message) error {
	var errs []error
	for _, t := range m {
		err := t.Send(ctx, msgs...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log only reports the messages, it is used for dry runs.
type Log struct {
	tel telemetry.API
}

func NewLog(tel telemetry.API) Log {
	return Log{tel: telemetry.NewScopedAPI("transport", tel)}
}

func (l Log) Send(ctx context.Context, msgs ...Message) error {
	for _, m := range msgs {
		l.tel.ReportDebug("dry run message", TextOf(m))
	}
	return nil
}
