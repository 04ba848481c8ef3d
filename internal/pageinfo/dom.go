package pageinfo

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// findElement returns the first element named tag under node (case-insensitive), or nil.
func findElement(node *html.Node, tag string) *html.Node {
	if node == nil {
		return nil
	}
	tag = strings.ToLower(tag)

	var search func(*html.Node) *html.Node
	search = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && strings.ToLower(n.Data) == tag {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := search(c); found != nil {
				return found
			}
		}
		return nil
	}
	return search(node)
}

// findAllElements returns every element named tag under node, in document order.
func findAllElements(node *html.Node, tag string) []*html.Node {
	if node == nil {
		return nil
	}
	tag = strings.ToLower(tag)
	var results []*html.Node

	var search func(*html.Node)
	search = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.ToLower(n.Data) == tag {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			search(c)
		}
	}
	search(node)
	return results
}

func getAttr(node *html.Node, name string) string {
	if node == nil {
		return ""
	}
	name = strings.ToLower(name)
	for _, attr := range node.Attr {
		if strings.ToLower(attr.Key) == name {
			return attr.Val
		}
	}
	return ""
}

// attrMap copies every attribute of node. Later duplicates win.
func attrMap(node *html.Node) map[string]string {
	attrs := make(map[string]string, len(node.Attr))
	for _, attr := range node.Attr {
		key := attr.Key
		if attr.Namespace != "" {
			key = attr.Namespace + ":" + key
		}
		attrs[key] = attr.Val
	}
	return attrs
}

func getTextContent(node *html.Node) string {
	if node == nil {
		return ""
	}

	var sb strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(node)
	return sb.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes truncates s to maxLen runes.
func truncateRunes(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}

// resolveURL resolves ref against base. Unparsable input is returned unchanged.
func resolveURL(ref, base string) string {
	if ref == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// skipLink reports hrefs that never count as page links
func skipLink(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	return href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:")
}
