// Package pageinfo extracts page metadata and analytics trackers from rendered markup.
package pageinfo

import (
	"errors"
	"net/url"
	"slices"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/net/html"
)

// Extraction limits
const (
	MaxTitleLength          = 500
	MaxDescriptionLength    = 1000
	MaxHeadingLength        = 500
	MaxHeadingsPerLevel     = 5
	MaxJSONLDSize           = 1024 * 1024
	MaxJSONLDRecursionDepth = 10
)

// ErrEmptyDocument is returned for content without any markup
var ErrEmptyDocument = errors.New("empty document")

// Info is the metadata extracted from one rendered page.
type Info struct {
	Title          string               `json:"title"`
	Description    string               `json:"description,omitempty"`
	CanonicalURL   string               `json:"canonical_url,omitempty"`
	Robots         string               `json:"robots,omitempty"`
	Lang           string               `json:"lang,omitempty"`
	HTMLAttributes map[string]string    `json:"html_attributes"`
	Meta           []map[string]string  `json:"meta"`
	H1s            []string             `json:"h1,omitempty"`
	LinksTotal     int                  `json:"links_total"`
	LinksInternal  int                  `json:"links_internal"`
	LinksExternal  int                  `json:"links_external"`
	Scripts        int                  `json:"scripts"`
	StructuredData []string             `json:"structured_data,omitempty"`
	Trackers       map[Tracker][]string `json:"trackers"`
}

// Extract parses content and collects its metadata. pageURL resolves relative links and
// may be empty.
func Extract(content, pageURL string) (*Info, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyDocument
	}

	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, err
	}

	head := findElement(root, "head")
	body := findElement(root, "body")

	info := &Info{
		HTMLAttributes: map[string]string{},
		Meta:           []map[string]string{},
		Trackers:       DetectTrackers(content),
	}

	if htmlNode := findElement(root, "html"); htmlNode != nil {
		info.HTMLAttributes = attrMap(htmlNode)
		info.Lang = strings.TrimSpace(getAttr(htmlNode, "lang"))
	}

	if title := findElement(head, "title"); title != nil {
		info.Title = truncateRunes(strings.TrimSpace(getTextContent(title)), MaxTitleLength)
	}

	for _, meta := range findAllElements(root, "meta") {
		info.Meta = append(info.Meta, attrMap(meta))

		value := strings.TrimSpace(getAttr(meta, "content"))
		switch strings.ToLower(getAttr(meta, "name")) {
		case "description":
			if info.Description == "" {
				info.Description = truncateRunes(value, MaxDescriptionLength)
			}
		case "robots":
			if info.Robots == "" {
				info.Robots = value
			}
		}
	}

	for _, link := range findAllElements(head, "link") {
		if strings.EqualFold(getAttr(link, "rel"), "canonical") {
			info.CanonicalURL = resolveURL(strings.TrimSpace(getAttr(link, "href")), pageURL)
			break
		}
	}

	for _, h1 := range findAllElements(body, "h1") {
		if len(info.H1s) >= MaxHeadingsPerLevel {
			break
		}
		if text := collapseWhitespace(getTextContent(h1)); text != "" {
			info.H1s = append(info.H1s, truncateRunes(text, MaxHeadingLength))
		}
	}

	countLinks(body, pageURL, info)
	info.Scripts = len(findAllElements(root, "script"))
	info.StructuredData = structuredDataTypes(root)

	return info, nil
}

// countLinks classifies body anchors as internal or external to pageURL.
func countLinks(body *html.Node, pageURL string, info *Info) {
	pageHost := ""
	if parsed, err := url.Parse(pageURL); err == nil {
		pageHost = strings.ToLower(parsed.Hostname())
	}

	for _, a := range findAllElements(body, "a") {
		href := getAttr(a, "href")
		if skipLink(href) {
			continue
		}
		info.LinksTotal++

		parsed, err := url.Parse(resolveURL(strings.TrimSpace(href), pageURL))
		if err != nil {
			info.LinksExternal++
			continue
		}
		host := strings.ToLower(parsed.Hostname())
		if host == "" || host == pageHost {
			info.LinksInternal++
		} else {
			info.LinksExternal++
		}
	}
}

// structuredDataTypes collects the sorted set of JSON-LD @type values.
func structuredDataTypes(root *html.Node) []string {
	typeSet := make(map[string]struct{})
	for _, script := range findAllElements(root, "script") {
		if !strings.EqualFold(strings.TrimSpace(getAttr(script, "type")), "application/ld+json") {
			continue
		}
		content := getTextContent(script)
		if len(content) > MaxJSONLDSize {
			continue
		}

		var doc any
		if err := json.Unmarshal([]byte(content), &doc); err != nil {
			continue
		}
		collectTypes(doc, typeSet, 0)
	}

	if len(typeSet) == 0 {
		return nil
	}
	types := make([]string, 0, len(typeSet))
	for t := range typeSet {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func collectTypes(v any, typeSet map[string]struct{}, depth int) {
	if depth > MaxJSONLDRecursionDepth {
		return
	}

	switch val := v.(type) {
	case map[string]any:
		switch t := val["@type"].(type) {
		case string:
			if t != "" {
				typeSet[t] = struct{}{}
			}
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok && s != "" {
					typeSet[s] = struct{}{}
				}
			}
		}
		for _, child := range val {
			collectTypes(child, typeSet, depth+1)
		}
	case []any:
		for _, item := range val {
			collectTypes(item, typeSet, depth+1)
		}
	}
}
