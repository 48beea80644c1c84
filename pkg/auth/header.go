package auth

import (
	"regexp"
	"strings"
)

// Scheme is the Authorization scheme for signed requests.
const Scheme = "Bittensor"

var headerPattern = regexp.MustCompile(
	`^Bittensor\s+ss58="([^"]+)",\s*sig="([0-9a-fA-F]+)"$`,
)

// Parsed holds the components of a signed Authorization header.
type Parsed struct {
	SS58         string
	SignatureHex string
}

// ParseHeader parses `Bittensor ss58="<address>",sig="<hex>"`.
func ParseHeader(value string) (Parsed, error) {
	match := headerPattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return Parsed{}, ErrInvalidHeader
	}
	return Parsed{
		SS58:         match[1],
		SignatureHex: strings.ToLower(match[2]),
	}, nil
}
