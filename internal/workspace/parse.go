package workspace

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// uuidPattern finds a canonical 8-4-4-4-12 UUID anywhere in a string.
var uuidPattern = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// DecodeHeader parses the start time out of a header id of the form
// "m<epoch-millis>". The join control id is kept verbatim as the header's
// correlation token.
func DecodeHeader(raw RawHeader) (Header, error) {
	digits := strings.TrimPrefix(strings.TrimSpace(raw.ID), "m")
	if len(digits) <= 3 {
		return Header{}, fmt.Errorf("meeting header id %q: too short", raw.ID)
	}
	// Millisecond suffix is dropped, not rounded.
	start, err := strconv.ParseInt(digits[:len(digits)-3], 10, 64)
	if err != nil || start < 0 {
		return Header{}, fmt.Errorf("meeting header id %q: not a timestamp", raw.ID)
	}
	return Header{
		ID:               raw.ID,
		StartTime:        start,
		CorrelationToken: raw.JoinControlID,
	}, nil
}

// ExtractCorrelationToken returns the first UUID found in the tracking
// attribute of the pre-join confirmation control, lowercased. An empty
// result is valid and means the call cannot be recognised later.
func ExtractCorrelationToken(trackData string) string {
	match := uuidPattern.FindString(trackData)
	if match == "" {
		return ""
	}
	id, err := uuid.Parse(match)
	if err != nil {
		return ""
	}
	return id.String()
}

// TokenMatches reports whether a header's token belongs to the call this
// client already joined.
func TokenMatches(headerToken, active string) bool {
	if active == "" {
		return false
	}
	return strings.Contains(strings.ToLower(headerToken), strings.ToLower(active))
}

// ParseRosterLabel sums the numbers that appear as standalone words in a
// roster section label, e.g. "Participants 3" or "In this meeting (3)".
func ParseRosterLabel(label string) int {
	total := 0
	for _, word := range strings.Fields(label) {
		word = strings.Trim(word, "()[],.:")
		if word == "" {
			continue
		}
		n, err := strconv.Atoi(word)
		if err != nil || n < 0 || word[0] == '+' || word[0] == '-' {
			continue
		}
		total += n
	}
	return total
}
