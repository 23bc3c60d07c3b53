package schemas

import (
	"fmt"
	"sort"
	"strings"
)

// -- Browser Version Schemas --

// Tag identifies a simulated browser version, e.g. "FF60" or "IE8". Family
// tags ("FF", "IE") stand for every version of that family.
type Tag string

const (
	// TagDefault is the fallback key of a browser-conditional expectation.
	TagDefault Tag = "DEFAULT"

	FF     Tag = "FF"
	FF60   Tag = "FF60"
	FF68   Tag = "FF68"
	IE     Tag = "IE"
	IE8    Tag = "IE8"
	IE11   Tag = "IE11"
	CHROME Tag = "CHROME"
	EDGE   Tag = "EDGE"
)

// String implements fmt.Stringer.
func (t Tag) String() string { return string(t) }

// Family strips the version digits from a tag: FF60 -> FF, IE8 -> IE.
// Tags without a version (CHROME, FF) are their own family.
func (t Tag) Family() Tag {
	s := strings.TrimRightFunc(string(t), func(r rune) bool { return r >= '0' && r <= '9' })
	return Tag(s)
}

// IsFamily reports whether the tag names a whole family rather than one version.
func (t Tag) IsFamily() bool { return t.Family() == t }

// ParseTag normalizes user input ("ff60", " IE8 ") into a Tag.
func ParseTag(s string) (Tag, error) {
	t := Tag(strings.ToUpper(strings.TrimSpace(s)))
	if t == "" {
		return "", fmt.Errorf("empty browser tag")
	}
	if t == TagDefault {
		return t, nil
	}
	if _, ok := LookupBrowser(t); !ok {
		return "", fmt.Errorf("unknown browser tag %q", s)
	}
	return t, nil
}

// Features is the set of quirk flags host objects consult when they need to
// behave differently per browser version.
type Features struct {
	// EventModelW3C exposes addEventListener, removeEventListener and dispatchEvent.
	EventModelW3C bool `json:"eventModelW3C" yaml:"eventModelW3C"`
	// EventModelAttach exposes attachEvent/detachEvent and window.event.
	EventModelAttach bool `json:"eventModelAttach" yaml:"eventModelAttach"`
	XMLHttpRequest   bool `json:"xmlHttpRequest" yaml:"xmlHttpRequest"`
	HistoryPushState bool `json:"historyPushState" yaml:"historyPushState"`
	URLConstructor   bool `json:"urlConstructor" yaml:"urlConstructor"`
	DOMParser        bool `json:"domParser" yaml:"domParser"`
	// CSSTextTrailingSemicolon ends a serialized declaration block with ';'.
	CSSTextTrailingSemicolon bool `json:"cssTextTrailingSemicolon" yaml:"cssTextTrailingSemicolon"`
	// CSSTextUppercase serializes property names in upper case (old IE).
	CSSTextUppercase bool `json:"cssTextUppercase" yaml:"cssTextUppercase"`
	// ColorAsRGB renders computed colors as rgb(r, g, b) instead of keywords.
	ColorAsRGB bool `json:"colorAsRGB" yaml:"colorAsRGB"`
	// ReadyStateOpenedTwice fires readystatechange(1) again when an async send starts.
	ReadyStateOpenedTwice bool `json:"readyStateOpenedTwice" yaml:"readyStateOpenedTwice"`
	GetComputedStyle      bool `json:"getComputedStyle" yaml:"getComputedStyle"`
	// CurrentStyle exposes element.currentStyle (IE).
	CurrentStyle bool `json:"currentStyle" yaml:"currentStyle"`
	TextContent  bool `json:"textContent" yaml:"textContent"`
	EventCtor    bool `json:"eventCtor" yaml:"eventCtor"`
}

// BrowserVersion describes one simulated browser: the identity strings the
// navigator object reports and the quirks the DOM exhibits.
type BrowserVersion struct {
	Tag          Tag      `json:"tag" yaml:"tag"`
	Family       Tag      `json:"family" yaml:"family"`
	Nickname     string   `json:"nickname" yaml:"nickname"`
	UserAgent    string   `json:"userAgent" yaml:"userAgent"`
	AppName      string   `json:"appName" yaml:"appName"`
	AppVersion   string   `json:"appVersion" yaml:"appVersion"`
	Platform     string   `json:"platform" yaml:"platform"`
	Language     string   `json:"language" yaml:"language"`
	DocumentMode int      `json:"documentMode,omitempty" yaml:"documentMode,omitempty"`
	Features     Features `json:"features" yaml:"features"`
}

// IsIE reports whether the version belongs to the Internet Explorer family.
func (b BrowserVersion) IsIE() bool { return b.Family == IE }

// Matches reports whether this version is selected by the given tag, either
// exactly or through its family.
func (b BrowserVersion) Matches(t Tag) bool {
	return t == b.Tag || t == b.Family
}

func (b BrowserVersion) String() string { return b.Nickname }

var modernFeatures = Features{
	EventModelW3C:            true,
	XMLHttpRequest:           true,
	HistoryPushState:         true,
	URLConstructor:           true,
	DOMParser:                true,
	CSSTextTrailingSemicolon: true,
	ColorAsRGB:               true,
	GetComputedStyle:         true,
	TextContent:              true,
	EventCtor:                true,
}

var knownBrowsers = map[Tag]BrowserVersion{
	CHROME: {
		Tag:        CHROME,
		Family:     CHROME,
		Nickname:   "Chrome",
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/76.0.3809.132 Safari/537.36",
		AppName:    "Netscape",
		AppVersion: "5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/76.0.3809.132 Safari/537.36",
		Platform:   "Win32",
		Language:   "en-US",
		Features:   modernFeatures,
	},
	EDGE: {
		Tag:        EDGE,
		Family:     EDGE,
		Nickname:   "Edge",
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/70.0.3538.102 Safari/537.36 Edge/18.17763",
		AppName:    "Netscape",
		AppVersion: "5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/70.0.3538.102 Safari/537.36 Edge/18.17763",
		Platform:   "Win32",
		Language:   "en-US",
		Features:   modernFeatures,
	},
	FF60: {
		Tag:        FF60,
		Family:     FF,
		Nickname:   "FF60",
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:60.0) Gecko/20100101 Firefox/60.0",
		AppName:    "Netscape",
		AppVersion: "5.0 (Windows)",
		Platform:   "Win32",
		Language:   "en-US",
		Features:   modernFeatures,
	},
	FF68: {
		Tag:        FF68,
		Family:     FF,
		Nickname:   "FF68",
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:68.0) Gecko/20100101 Firefox/68.0",
		AppName:    "Netscape",
		AppVersion: "5.0 (Windows)",
		Platform:   "Win32",
		Language:   "en-US",
		Features:   modernFeatures,
	},
	IE11: {
		Tag:          IE11,
		Family:       IE,
		Nickname:     "IE",
		UserAgent:    "Mozilla/5.0 (Windows NT 10.0; WOW64; Trident/7.0; rv:11.0) like Gecko",
		AppName:      "Netscape",
		AppVersion:   "5.0 (Windows NT 10.0; WOW64; Trident/7.0; rv:11.0) like Gecko",
		Platform:     "Win32",
		Language:     "en-US",
		DocumentMode: 11,
		Features: Features{
			EventModelW3C:            true,
			XMLHttpRequest:           true,
			HistoryPushState:         true,
			DOMParser:                true,
			CSSTextTrailingSemicolon: true,
			ColorAsRGB:               true,
			ReadyStateOpenedTwice:    true,
			GetComputedStyle:         true,
			CurrentStyle:             true,
			TextContent:              true,
		},
	},
	IE8: {
		Tag:          IE8,
		Family:       IE,
		Nickname:     "IE8",
		UserAgent:    "Mozilla/4.0 (compatible; MSIE 8.0; Windows NT 6.0; Trident/4.0)",
		AppName:      "Microsoft Internet Explorer",
		AppVersion:   "4.0 (compatible; MSIE 8.0; Windows NT 6.0; Trident/4.0)",
		Platform:     "Win32",
		Language:     "en-US",
		DocumentMode: 8,
		Features: Features{
			EventModelAttach:      true,
			XMLHttpRequest:        true,
			CSSTextUppercase:      true,
			ReadyStateOpenedTwice: true,
			CurrentStyle:          true,
		},
	},
}

// familyDefaults maps a family tag to the version it resolves to when used on
// its own, e.g. "--browser FF" runs the newest Firefox.
var familyDefaults = map[Tag]Tag{
	FF: FF68,
	IE: IE11,
}

// DefaultBrowser is the version used when nothing else is configured.
var DefaultBrowser = knownBrowsers[CHROME]

// LookupBrowser resolves a tag (exact or family) to a browser version.
func LookupBrowser(t Tag) (BrowserVersion, bool) {
	if alias, ok := familyDefaults[t]; ok {
		t = alias
	}
	b, ok := knownBrowsers[t]
	return b, ok
}

// KnownBrowsers lists every concrete browser version, ordered by tag.
func KnownBrowsers() []BrowserVersion {
	out := make([]BrowserVersion, 0, len(knownBrowsers))
	for _, b := range knownBrowsers {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// KnownTags lists every tag LookupBrowser accepts, families included.
func KnownTags() []Tag {
	tags := make([]Tag, 0, len(knownBrowsers)+len(familyDefaults))
	for t := range knownBrowsers {
		tags = append(tags, t)
	}
	for t := range familyDefaults {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
