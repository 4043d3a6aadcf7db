package identity

import (
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone parses a phone number and returns it in E.164 form. The
// number must carry its country code; we have no region to infer one from.
func NormalizePhone(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "+") {
		return "", ErrInvalidInput.Clone().
			WithMetadata(map[string]any{"reason": "missing country code"})
	}

	parsed, err := phonenumbers.Parse(trimmed, "")
	if err != nil {
		return "", errors.Wrap(err, ErrInvalidInput.Category, ErrInvalidInput.Message).
			WithTextCode(ErrInvalidInput.TextCode)
	}

	if !phonenumbers.IsValidNumber(parsed) {
		return "", ErrInvalidInput.Clone().
			WithMetadata(map[string]any{"reason": "not a valid number"})
	}

	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
