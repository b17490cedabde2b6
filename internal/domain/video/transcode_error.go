package video

import (
	"strconv"
	"strings"
)

// JobErrorEvent classifies a transcoder status detail of the form
// "<code> <message>". Codes in [4000, 5000) blame the input media; anything
// else, including a missing or unparseable detail, is an internal failure.
func JobErrorEvent(detail *string) Event {
	if detail == nil {
		return EventJobInternalError
	}
	code, _, _ := strings.Cut(strings.TrimSpace(*detail), " ")
	n, err := strconv.Atoi(code)
	if err != nil {
		return EventJobInternalError
	}
	if n >= 4000 && n < 5000 {
		return EventJobVideoError
	}
	return EventJobInternalError
}
