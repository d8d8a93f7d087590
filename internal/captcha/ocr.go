package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"platewatch/internal/components/assert"
	"platewatch/internal/components/telemetry"
	"platewatch/pkg/restyutil"

	"github.com/go-resty/resty/v2"
)

const DefaultOCRURL = "http://127.0.0.1:2533/ocr"

const report_ocr_recognize = "ocr.recognize"

// OCR turns a challenge image into text.
//
// note: fault injection point
type OCR interface {
	Recognize(ctx context.Context, image []byte) (Result, error)
}

// OCRClient talks to an HTTP OCR service which accepts a multipart upload in
// the `file` field and answers with {ocr_text, min_confidence, skipped}.
type OCRClient struct {
	http *resty.Client
	url  string
	tel  telemetry.API
}

type OCRClientOptions struct {
	URL     string
	Timeout time.Duration
	// Output receives full request/response dumps, it may be nil.
	Output restyutil.InstrumentOutput
}

func NewOCRClient(opts OCRClientOptions, tel telemetry.API) OCRClient {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("captcha", tel)

	if opts.URL == "" {
		opts.URL = DefaultOCRURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	telemetry.InstrumentResty(client, tel)
	restyutil.InstrumentClient(client, nil, opts.Output)

	return OCRClient{http: client, url: opts.URL, tel: tel}
}

func (c OCRClient) Recognize(ctx context.Context, image []byte) (Result, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", "captcha.png", bytes.NewReader(image)).
		Post(c.url)
	if err != nil {
		return Result{}, fmt.Errorf("ocr request: %w", err)
	}
	if res.StatusCode() != 200 {
		return Result{}, fmt.Errorf("ocr request: unexpected status %d", res.StatusCode())
	}

	var out Result
	err = json.Unmarshal(res.Body(), &out)
	if err != nil {
		return Result{}, fmt.Errorf("ocr response malformed: %w", err)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return Result{}, fmt.Errorf("ocr response malformed: confidence %v is not in [0, 1]", out.Confidence)
	}
	c.tel.ReportDebug(report_ocr_recognize, out.Text, out.Confidence, out.Skipped)
	return out, nil
}
