package validation

import (
	"fmt"
	"strings"
	"unicode"

	"courier/internal/constants"
	"courier/internal/errors"
)

// NormalizeDestination reduces a recipient address to its canonical form.
// Phone-style addresses are stripped to digits only; opaque channel
// addresses (containing an @ suffix) are kept as-is.
func NormalizeDestination(destination string) (string, error) {
	trimmed := strings.TrimSpace(destination)
	if trimmed == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "destination cannot be empty")
	}

	// Opaque channel addresses pass through untouched.
	if strings.Contains(trimmed, "@") {
		return trimmed, nil
	}

	var digits strings.Builder
	for _, char := range trimmed {
		if unicode.IsDigit(char) {
			digits.WriteRune(char)
			continue
		}
		if char == '+' || char == ' ' || char == '-' || char == '(' || char == ')' {
			continue
		}
		return "", errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("destination contains invalid character %q", char))
	}

	normalized := digits.String()
	if len(normalized) < constants.MinDestinationLength {
		return "", errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("destination must be at least %d digits", constants.MinDestinationLength))
	}
	if len(normalized) > constants.MaxDestinationLength {
		return "", errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("destination too long (max %d digits)", constants.MaxDestinationLength))
	}

	return normalized, nil
}

// ValidateBody rejects bodies that cannot be stored or sent.
func ValidateBody(body string) error {
	if strings.ContainsRune(body, '\x00') {
		return errors.New(errors.ErrCodeInvalidInput, "body contains null bytes")
	}
	return nil
}
