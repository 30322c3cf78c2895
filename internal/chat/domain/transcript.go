package domain

import (
	"fmt"
	"strings"
	"time"
)

// TruncationMarker ends a transcript cut at its budget.
const TruncationMarker = "\n[... gekürzt]\n"

// markerReserve is the room kept for TruncationMarker when a line is cut.
const markerReserve = 20

// Transcript renders one "[created_at] role: content" line per message. When the next
// line would exceed budget characters it is cut short and TruncationMarker appended.
func Transcript(msgs []*Message, budget int) string {
	var b strings.Builder
	total := 0
	for _, m := range msgs {
		seg := []rune(fmt.Sprintf("[%s] %s: %s\n", m.CreatedAt.UTC().Format(time.RFC3339), m.Role, m.Content))
		if total+len(seg) > budget {
			keep := budget - total - markerReserve
			if keep < 0 {
				keep = 0
			}
			b.WriteString(string(seg[:keep]))
			b.WriteString(TruncationMarker)
			break
		}
		b.WriteString(string(seg))
		total += len(seg)
	}
	return b.String()
}
