// Package requestid creates the ids that tag every log line of a capture
package requestid

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

const (
	maxLength    = 36 // same as a UUID
	prefixLength = 5
	maxLabel     = maxLength - prefixLength - 1
)

// New returns "<5 hex>-<label>" where label is reduced to [a-zA-Z0-9-]
// with spaces turned into hyphens. An empty label yields a UUID.
func New(label string) string {
	label = sanitize(label)
	if label == "" {
		return uuid.NewString()
	}
	if len(label) > maxLabel {
		label = strings.TrimRight(label[:maxLabel], "-")
	}
	return prefix() + "-" + label
}

func sanitize(label string) string {
	var sb strings.Builder
	lastHyphen := true // drops leading hyphens
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastHyphen = false
		case r == '-' || r == ' ':
			if !lastHyphen {
				sb.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(sb.String(), "-")
}

func prefix() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()[:prefixLength]
	}
	return hex.EncodeToString(buf)[:prefixLength]
}
