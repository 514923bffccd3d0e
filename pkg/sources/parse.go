package sources

import (
	"regexp"
	"strconv"
)

var priceToken = regexp.MustCompile(`\d+(?:\.\d+)?|\.\d+`)

// ParsePrice extracts the first numeric token from strings like "$0.55/hr".
// A string without digits yields *ParseError. Signs are not part of the
// token, and a zero price is returned as-is for the caller to drop.
func ParsePrice(s string) (float64, error) {
	tok := priceToken.FindString(s)
	if tok == "" {
		return 0, &ParseError{Input: s}
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, &ParseError{Input: s}
	}
	return v, nil
}
