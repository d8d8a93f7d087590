package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"platewatch/internal/browser"
	"platewatch/internal/components/chrono"
	"platewatch/pkg/htmlutil"
)

const (
	DefaultBidURL = "https://www.mvdis.gov.tw/m3-emv-plate/bid/queryBid#gsc.tab=0"

	bidInputSelector  = "#queryPlateNumber"
	bidSubmitSelector = ".tab_cont a.std_btn"
	bidRenderWait     = time.Second
	bidPause          = 500 * time.Millisecond
	bidTimeout        = 30 * time.Second
)

type BidStatus string

const (
	BidFound    BidStatus = "found"
	BidNotFound BidStatus = "not found"
	BidError    BidStatus = "error"
)

// BidResult is the auction record of one plate, Message holds the winning
// bid when Status is BidFound.
type BidResult struct {
	Plate   string    `json:"plate"`
	Status  BidStatus `json:"status"`
	Message string    `json:"message,omitempty"`
}

// QueryBid looks up the auction record of a plate on the bid query page.
// Every failure is folded into a BidError result.
func QueryBid(ctx context.Context, page browser.Page, clock chrono.API, plate string) BidResult {
	ctx, span := tracer.Start(ctx, "QueryBid")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, bidTimeout)
	defer cancel()

	doc, err := func() (string, error) {
		err := page.Navigate(ctx, DefaultBidURL)
		if err != nil {
			return "", err
		}
		err = page.Fill(ctx, bidInputSelector, plate)
		if err != nil {
			return "", err
		}
		err = page.Click(ctx, bidSubmitSelector)
		if err != nil {
			return "", err
		}
		// the table is filled in by script without any marker to wait for
		err = chrono.Sleep(ctx, clock, bidRenderWait)
		if err != nil {
			return "", err
		}
		return page.HTML(ctx)
	}()
	if err != nil {
		span.RecordError(err)
		return BidResult{Plate: plate, Status: BidError, Message: err.Error()}
	}

	status, message, err := ParseBidResult(doc)
	if err != nil {
		return BidResult{Plate: plate, Status: BidError, Message: err.Error()}
	}
	return BidResult{Plate: plate, Status: status, Message: message}
}

// QueryBids looks up each plate in turn with a short pause in between.
func QueryBids(ctx context.Context, page browser.Page, clock chrono.API, plates []string, onResult func(BidResult)) error {
	for i, plate := range plates {
		if i > 0 {
			err := chrono.Sleep(ctx, clock, bidPause)
			if err != nil {
				return err
			}
		}
		onResult(QueryBid(ctx, page, clock, plate))
	}
	return nil
}

// ParseBidResult classifies the first row of the bid result table.
func ParseBidResult(doc string) (BidStatus, string, error) {
	parsed, err := htmlutil.Parse(doc)
	if err != nil {
		return BidError, "", fmt.Errorf("parse bid page: %w", err)
	}

	row := parsed.Find("#to tbody tr").First()
	if row.Length() == 0 {
		return BidError, "", nil
	}
	text := htmlutil.CleanText(row)
	if row.HasClass("empty") || strings.Contains(text, "查無資料") {
		return BidNotFound, text, nil
	}

	amount := row.Find("td:nth-child(5)")
	if amount.Length() == 0 {
		return BidError, text, nil
	}
	return BidFound, "決標金額 " + htmlutil.CleanText(amount), nil
}
