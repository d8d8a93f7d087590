package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	doc, err := Parse(`<div><a class="number">
		CAT-
		<b>2531</b>
	</a><span></span></div>`)
	require.NoError(t, err)

	require.Equal(t, "CAT- 2531", CleanText(doc.Find("a.number")))
	require.Equal(t, "", CleanText(doc.Find("span")))
	require.Equal(t, "", CleanText(doc.Find("table")))
}

func TestResolveHref(t *testing.T) {
	table := []struct {
		href     string
		expected string
	}{
		{
			href:     "/m3-emv-plate/webpickno/queryPickNo?method=pickNoList&page=12",
			expected: "https://www.mvdis.gov.tw/m3-emv-plate/webpickno/queryPickNo?method=pickNoList&page=12",
		},
		{
			href:     "https://example.com/last",
			expected: "https://example.com/last",
		},
		{
			href:     " queryPickNo?page=3 ",
			expected: "https://www.mvdis.gov.tw/m3-emv-plate/webpickno/queryPickNo?page=3",
		},
	}

	for _, row := range table {
		resolved, err := ResolveHref("https://www.mvdis.gov.tw/m3-emv-plate/webpickno/queryPickNo", row.href)
		require.NoError(t, err)
		require.Equal(t, row.expected, resolved)
	}
}
