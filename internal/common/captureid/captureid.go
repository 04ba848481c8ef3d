package captureid

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxLength matches the length of a UUID string
	MaxLength = 36
	// PrefixLength is the random part prepended to caller-supplied labels
	PrefixLength = 5

	maxLabelLength = MaxLength - PrefixLength - 1
)

var (
	invalidChars = regexp.MustCompile(`[^a-zA-Z0-9-]+`)
	hyphenRuns   = regexp.MustCompile(`-+`)
)

// New returns a capture id. Without a label it is a random UUID.
// With a label the id is {5 random hex chars}-{sanitized label}, capped at MaxLength.
func New(label string) string {
	clean := sanitize(label)
	if clean == "" {
		return uuid.NewString()
	}
	if len(clean) > maxLabelLength {
		clean = strings.TrimSuffix(clean[:maxLabelLength], "-")
	}
	return randomPrefix() + "-" + clean
}

// Valid reports whether id could have been produced by New
func Valid(id string) bool {
	if id == "" || len(id) > MaxLength {
		return false
	}
	return !invalidChars.MatchString(id)
}

func sanitize(label string) string {
	s := strings.ReplaceAll(label, " ", "-")
	s = invalidChars.ReplaceAllString(s, "")
	s = hyphenRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func randomPrefix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()[:PrefixLength]
	}
	return hex.EncodeToString(buf)[:PrefixLength]
}
