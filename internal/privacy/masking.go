package privacy

import (
	"strings"

	"courier/internal/constants"
)

// MaskDestination masks a recipient address showing only the last 4 digits.
// Example: "1234567890" -> "******7890"
func MaskDestination(destination string) string {
	if destination == "" {
		return ""
	}

	keep := constants.DefaultPhoneMaskLength

	// Opaque channel addresses keep their domain suffix visible.
	if idx := strings.Index(destination, "@"); idx >= 0 {
		local := destination[:idx]
		domain := destination[idx:]
		if len(local) <= keep {
			return strings.Repeat("*", len(local)) + domain
		}
		return strings.Repeat("*", len(local)-keep) + local[len(local)-keep:] + domain
	}

	if len(destination) <= keep {
		return strings.Repeat("*", len(destination))
	}
	return strings.Repeat("*", len(destination)-keep) + destination[len(destination)-keep:]
}
