package workflow

import (
	"context"
	"testing"
	"time"

	"platewatch/internal/components/chrono"

	"github.com/stretchr/testify/require"
)

func TestParseBidResult(t *testing.T) {
	table := []struct {
		name    string
		doc     string
		status  BidStatus
		message string
	}{
		{
			name:    "empty row",
			doc:     `<table id="to"><tbody><tr class="empty"><td colspan="6">查無資料</td></tr></tbody></table>`,
			status:  BidNotFound,
			message: "查無資料",
		},
		{
			name:    "no data text without class",
			doc:     `<table id="to"><tbody><tr><td>查無資料</td></tr></tbody></table>`,
			status:  BidNotFound,
			message: "查無資料",
		},
		{
			name: "winning bid",
			doc: `<table id="to"><tbody>
				<tr><td>1</td><td>CAT-2533</td><td>自用小客車</td><td>2025/06/01</td><td> 12,000 </td></tr>
				<tr><td>2</td><td>CAT-2533</td><td>自用小客車</td><td>2024/01/01</td><td>9,000</td></tr>
			</tbody></table>`,
			status:  BidFound,
			message: "決標金額 12,000",
		},
		{
			name:   "short row",
			doc:    `<table id="to"><tbody><tr><td>1</td></tr></tbody></table>`,
			status: BidError,
		},
		{
			name:   "no table",
			doc:    `<p>maintenance</p>`,
			status: BidError,
		},
	}

	for _, row := range table {
		t.Run(row.name, func(t *testing.T) {
			status, message, err := ParseBidResult(row.doc)
			require.NoError(t, err)
			require.Equal(t, row.status, status)
			if row.message != "" {
				require.Equal(t, row.message, message)
			}
		})
	}
}

func TestQueryBids(t *testing.T) {
	page := newFakePage()
	page.pages[DefaultBidURL] = `<table id="to"><tbody><tr class="empty"><td>查無資料</td></tr></tbody></table>`
	clock := chrono.NewJumpingClock(start)

	var results []BidResult
	err := QueryBids(context.Background(), page, clock, []string{"CAT-2533", "CAT-1036"}, func(r BidResult) {
		results = append(results, r)
	})
	require.NoError(t, err)
	require.Equal(t, []BidResult{
		{Plate: "CAT-2533", Status: BidNotFound, Message: "查無資料"},
		{Plate: "CAT-1036", Status: BidNotFound, Message: "查無資料"},
	}, results)
	require.Equal(t, "CAT-1036", page.fills[bidInputSelector])
	// 1s render wait per plate and one pause in between
	require.Equal(t, start.Add(2500*time.Millisecond), clock.Now())
}
