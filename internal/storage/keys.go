package storage

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	harKeyPrefix    = "pageinfo:har:"
	latestKeyPrefix = "pageinfo:latest:"
)

// Hash fields of a stored capture
const (
	fieldCodec     = "codec"
	fieldData      = "data"
	fieldURL       = "url"
	fieldCreatedAt = "created_at"
)

func harKey(captureID string) string {
	return harKeyPrefix + captureID
}

func latestKey(pageURL string) string {
	return latestKeyPrefix + URLHash(pageURL)
}

// URLHash returns the hex xxhash of the trimmed URL
func URLHash(pageURL string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.TrimSpace(pageURL)))
}
