package transport

import (
	"context"
	"fmt"
	"time"

	"platewatch/internal/components/assert"
	"platewatch/internal/components/telemetry"
	"platewatch/pkg/restyutil"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const DefaultLineBaseURL = "https://api.line.me"

const (
	report_line_reply     = "line.reply"
	report_line_broadcast = "line.broadcast"
)

type LineOptions struct {
	// BaseURL defaults to DefaultLineBaseURL.
	BaseURL string
	// ChannelAccessToken is the long-lived token of the messaging channel.
	ChannelAccessToken string
	Timeout            time.Duration
	Output             restyutil.InstrumentOutput
}

// Line is a client for the LINE messaging api push endpoints.
type Line struct {
	http *resty.Client
	tel  telemetry.API
}

func NewLine(opts LineOptions, tel telemetry.API) *Line {
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.ChannelAccessToken)

	tel = telemetry.NewScopedAPI("transport", tel)

	if opts.BaseURL == "" {
		opts.BaseURL = DefaultLineBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetAuthToken(opts.ChannelAccessToken)
	client.SetHeader("content-type", "application/json")
	client.SetTimeout(opts.Timeout)

	// the broadcast endpoint is throttled server side as well, this just keeps
	// a misbehaving loop from burning through the monthly quota
	rateLimiter := rate.NewLimiter(1, 2)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(client, tel)
	restyutil.InstrumentClient(client, tracer, opts.Output)

	return &Line{http: client, tel: tel}
}

type lineReplyRequest struct {
	ReplyToken string    `json:"replyToken"`
	Messages   []Message `json:"messages"`
}

type lineBroadcastRequest struct {
	Messages []Message `json:"messages"`
}

// Reply answers a webhook event, replyToken comes from the event.
func (l *Line) Reply(ctx context.Context, replyToken string, msgs ...Message) error {
	ctx, span := tracer.Start(ctx, "line:reply")
	defer span.End()

	err := l.post(ctx, "/v2/bot/message/reply", lineReplyRequest{
		ReplyToken: replyToken,
		Messages:   msgs,
	})
	if err != nil {
		l.tel.ReportBroken(report_line_reply, err)
		return err
	}
	return nil
}

// Broadcast sends the messages to every follower of the channel.
func (l *Line) Broadcast(ctx context.Context, msgs ...Message) error {
	ctx, span := tracer.Start(ctx, "line:broadcast")
	defer span.End()

	err := l.post(ctx, "/v2/bot/message/broadcast", lineBroadcastRequest{
		Messages: msgs,
	})
	if err != nil {
		l.tel.ReportBroken(report_line_broadcast, err)
		return err
	}
	return nil
}

// Send is Broadcast.
func (l *Line) Send(ctx context.Context, msgs ...Message) error {
	return l.Broadcast(ctx, msgs...)
}

func (l *Line) post(ctx context.Context, endpoint string, body any) error {
	res, err := l.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("line %s: %w", endpoint, err)
	}
	if res.StatusCode() < 200 || res.StatusCode() >= 300 {
		return StatusError{
			Endpoint: endpoint,
			Status:   res.StatusCode(),
			Body:     res.String(),
		}
	}
	return nil
}
