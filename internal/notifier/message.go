package notifier

import (
	"fmt"
	"strings"
)

// Distance is where a value sits in the reference list relative to the
// target. Known is false when either plate is missing from the list.
type Distance struct {
	Rank  int
	Gap   int
	Known bool
}

// RenderMessage renders the notification text for a record, rank is shown
// one based.
func RenderMessage(record Record, distance Distance, target string) string {
	var b strings.Builder
	b.WriteString("【車牌通知】\n")
	if distance.Known {
		fmt.Fprintf(&b, "目前最新: %s (第 %d 個)\n", record.Value, distance.Rank+1)
	} else {
		fmt.Fprintf(&b, "目前最新: %s\n", record.Value)
	}
	fmt.Fprintf(&b, "時間: %s\n", record.Timestamp)
	fmt.Fprintf(&b, "目標: %s\n", target)
	if distance.Known {
		fmt.Fprintf(&b, "距離目標剩餘: %d 個", distance.Gap)
	} else {
		b.WriteString("距離目標: 無法計算")
	}
	return b.String()
}
