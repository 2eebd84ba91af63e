// Package phone provides phone number utilities.
// It contains no business logic.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used for numbers written without a country prefix.
const DefaultRegion = "DE"

var ErrInvalidNumber = errors.New("invalid phone number")

// NormalizeE164 formats a phone number to E.164 or returns ErrInvalidNumber.
func NormalizeE164(input, region string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ErrInvalidNumber
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return "", ErrInvalidNumber
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", ErrInvalidNumber
	}
	return phonenumbers.Format(number, phonenumbers.E164), nil
}
