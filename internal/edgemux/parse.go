package edgemux

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/keyfob.report/internal/capture"
	"github.com/banshee-data/keyfob.report/internal/ev1527"
)

const (
	EventTypeEdge    = "edge"
	EventTypeStatus  = "status"
	EventTypeUnknown = "unknown"
)

// ClassifyPayload inspects an adapter line and returns a simple event type
// token. The classification is intentionally conservative: edge records are
// the firmware's `E,<R|F>,<ticks>` format and status responses are JSON
// object lines.
func ClassifyPayload(payload string) string {
	if strings.HasPrefix(payload, "E,") {
		return EventTypeEdge
	}
	if strings.HasPrefix(payload, "{") {
		return EventTypeStatus
	}
	return EventTypeUnknown
}

// ParseEdgeLine parses a firmware edge record such as `E,R,20000` or
// `E,F,640` into a capture record. The tick field is the capture counter
// value latched at the edge; a value at the counter maximum means the
// counter saturated waiting for the edge.
func ParseEdgeLine(line string) (capture.Record, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 3 || parts[0] != "E" {
		return capture.Record{}, fmt.Errorf("malformed edge record %q", line)
	}

	var polarity ev1527.Polarity
	switch parts[1] {
	case "R":
		polarity = ev1527.Rising
	case "F":
		polarity = ev1527.Falling
	default:
		return capture.Record{}, fmt.Errorf("unknown edge polarity %q in %q", parts[1], line)
	}

	ticks, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return capture.Record{}, fmt.Errorf("invalid tick count in %q: %w", line, err)
	}

	return capture.Record{
		Polarity: polarity,
		Ticks:    ev1527.Tick(ticks),
		Overflow: uint32(ticks) == ^uint32(0),
	}, nil
}

// FormatEdgeLine renders a capture record in the firmware's edge record
// format. Used by the mock adapter and the edge-log tooling.
func FormatEdgeLine(rec capture.Record) string {
	polarity := "R"
	if rec.Polarity == ev1527.Falling {
		polarity = "F"
	}
	return fmt.Sprintf("E,%s,%d", polarity, rec.Ticks)
}

// EdgeLines renders a record sequence as newline-terminated adapter output.
func EdgeLines(recs []capture.Record) string {
	var b strings.Builder
	for _, rec := range recs {
		b.WriteString(FormatEdgeLine(rec))
		b.WriteByte('\n')
	}
	return b.String()
}
