package pageinfo

import "regexp"

// Tracker identifies an analytics vendor
type Tracker string

const (
	TrackerGoogleAnalytics  Tracker = "google_analytics"
	TrackerGoogleTagManager Tracker = "google_tag_manager"
	TrackerFacebookPixel    Tracker = "facebook_pixel"
	TrackerMixpanel         Tracker = "mixpanel"
)

// Trackers lists every detected vendor, in report order
var Trackers = []Tracker{
	TrackerGoogleAnalytics,
	TrackerGoogleTagManager,
	TrackerFacebookPixel,
	TrackerMixpanel,
}

// String returns the display name of the tracker
func (t Tracker) String() string {
	switch t {
	case TrackerGoogleAnalytics:
		return "Google Analytics"
	case TrackerGoogleTagManager:
		return "Google Tag Manager"
	case TrackerFacebookPixel:
		return "Facebook Pixel"
	case TrackerMixpanel:
		return "Mixpanel"
	default:
		return string(t)
	}
}

type trackerPattern struct {
	tracker Tracker
	re      *regexp.Regexp
	group   int // capture group holding the id, 0 for the whole match
}

var trackerPatterns = []trackerPattern{
	{TrackerGoogleAnalytics, regexp.MustCompile(`UA-\d+-\d+|G-[A-Z0-9]+`), 0},
	{TrackerGoogleTagManager, regexp.MustCompile(`(?i)GTM-[A-Z0-9]+`), 0},
	{TrackerFacebookPixel, regexp.MustCompile(`(?i)fbq\('init', '(\d+)'\)`), 1},
	{TrackerMixpanel, regexp.MustCompile(`(?i)mixpanel\.init\('([a-z0-9]+)'\)`), 1},
}

// DetectTrackers scans raw markup for analytics ids. Every vendor is present in the
// result; ids are listed once per occurrence, in document order.
func DetectTrackers(content string) map[Tracker][]string {
	found := make(map[Tracker][]string, len(trackerPatterns))
	for _, p := range trackerPatterns {
		ids := []string{}
		for _, match := range p.re.FindAllStringSubmatch(content, -1) {
			ids = append(ids, match[p.group])
		}
		found[p.tracker] = ids
	}
	return found
}
