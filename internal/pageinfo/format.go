package pageinfo

import (
	"fmt"
	"io"
	"slices"
	"strings"
)

// Format writes the human-readable page summary. Attribute maps are printed sorted by key.
func (i *Info) Format(w io.Writer) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Title: %s\n", i.Title)
	if i.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", i.Description)
	}
	if i.CanonicalURL != "" {
		fmt.Fprintf(&sb, "Canonical: %s\n", i.CanonicalURL)
	}

	sb.WriteString("Meta tags:\n")
	for n, meta := range i.Meta {
		fmt.Fprintf(&sb, "Meta tag %d:\n", n+1)
		writeAttrs(&sb, meta)
	}

	sb.WriteString("\nHTML tag attributes:\n")
	writeAttrs(&sb, i.HTMLAttributes)

	fmt.Fprintf(&sb, "\nLinks: %d (internal %d, external %d)\n", i.LinksTotal, i.LinksInternal, i.LinksExternal)
	fmt.Fprintf(&sb, "Scripts: %d\n", i.Scripts)
	if len(i.StructuredData) > 0 {
		fmt.Fprintf(&sb, "Structured data: %s\n", strings.Join(i.StructuredData, ", "))
	}

	sb.WriteString("\nTrackers:\n")
	for _, tracker := range Trackers {
		ids := i.Trackers[tracker]
		if len(ids) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "  %s: %s\n", tracker, strings.Join(ids, ", "))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeAttrs(sb *strings.Builder, attrs map[string]string) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(sb, "  %s: %s\n", k, attrs[k])
	}
}
