package capture

import (
	"fmt"
	"io"
	"slices"
	"strings"
)

// TotalSizeKB returns TotalSize in kilobytes (1 KB = 1024 bytes)
func (r *Report) TotalSizeKB() float64 {
	return float64(r.TotalSize) / 1024
}

// Format writes the human-readable network summary.
func (r *Report) Format(w io.Writer) error {
	var sb strings.Builder

	sb.WriteString("Network Analysis:\n")
	fmt.Fprintf(&sb, "  Total Requests: %d\n", r.TotalRequests)
	fmt.Fprintf(&sb, "  Load Time: %dms\n", r.LoadTimeMs)
	fmt.Fprintf(&sb, "  Total Size: %.2f KB\n", r.TotalSizeKB())

	if len(r.RequestsByType) > 0 {
		sb.WriteString("\nRequests by Type:\n")
		types := make([]string, 0, len(r.RequestsByType))
		for t := range r.RequestsByType {
			types = append(types, t)
		}
		slices.Sort(types)
		for _, t := range types {
			fmt.Fprintf(&sb, "  %s: %d\n", t, r.RequestsByType[t])
		}
	}

	if r.ThirdPartyRequests > 0 {
		fmt.Fprintf(&sb, "\nThird-party: %d requests across %d domains\n",
			r.ThirdPartyRequests, r.ThirdPartyDomains)
	}

	if len(r.FailedRequests) > 0 {
		sb.WriteString("\nFailed Requests:\n")
		for _, failure := range r.FailedRequests {
			fmt.Fprintf(&sb, "  %s\n", failure)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
