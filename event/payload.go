package event

import (
	"errors"
	"strconv"
	"strings"
)

// Payload is what the code extractor queues for dispatch: the raw decoded
// string, its structured form when the string parsed as JSON, and the
// timestamp of the frame it was extracted from.
type Payload struct {
	Raw       string
	Object    map[string]any
	Timestamp int64
}

// ErrMalformed marks payloads that do not match the four-field wire format.
var ErrMalformed = errors.New("event: malformed payload")

// Wire is the decoded four-field payload:
// simulated timestamp | global frame index | scan frame index | kind code.
type Wire struct {
	Timestamp      string
	GlobalFrameIdx string
	ScanFrameIdx   string
	KindCode       int
}

// ParseWire splits the raw payload. Anything other than exactly four
// fields, or a non-numeric kind code, is malformed and yields no event.
func ParseWire(raw string) (Wire, error) {
	fields := strings.Split(raw, "|")
	if len(fields) != 4 {
		return Wire{}, ErrMalformed
	}
	code, err := strconv.Atoi(fields[3])
	if err != nil {
		return Wire{}, ErrMalformed
	}
	return Wire{
		Timestamp:      fields[0],
		GlobalFrameIdx: fields[1],
		ScanFrameIdx:   fields[2],
		KindCode:       code,
	}, nil
}
