package chrome

import "github.com/elidickinson/shot-power-scraper/pkg/pattern"

// Block reasons reported for aborted requests
const (
	ReasonAd     = "ad"
	ReasonPopup  = "popup"
	ReasonCustom = "custom"
)

// adPatterns match advertising and tracking hosts
var adPatterns = []string{
	"*2mdn.net*",
	"*adnxs.com*",
	"*adsafeprotected.com*",
	"*adservice.google.*",
	"*adsrvr.org*",
	"*amazon-adsystem.com*",
	"*criteo.com*",
	"*criteo.net*",
	"*doubleclick.net*",
	"*googleadservices.com*",
	"*googlesyndication.com*",
	"*googletagservices.com*",
	"*moatads.com*",
	"*outbrain.com*",
	"*pubmatic.com*",
	"*rubiconproject.com*",
	"*scorecardresearch.com*",
	"*taboola.com*",
	"*google-analytics.com*",
	"*googletagmanager.com*",
	"*hotjar.com*",
	"*clarity.ms*",
	"*/ads/*",
	"*/adserver/*",
	"~*^https?://[^/]*\\.ads\\.",
}

// popupPatterns match cookie banners, newsletter overlays and chat widgets
var popupPatterns = []string{
	"*cookielaw.org*",
	"*onetrust.com*",
	"*cookiebot.com*",
	"*consensu.org*",
	"*quantcast.mgr.consensu.org*",
	"*trustarcapi.com*",
	"*consent.trustarc.com*",
	"*privacy-mgmt.com*",
	"*usercentrics.eu*",
	"*didomi.io*",
	"*termly.io*",
	"*iubenda.com*",
	"*popmaker*",
	"*optinmonster.com*",
	"*sumo.com*",
	"*privy.com*",
	"*klaviyo.com/media/js/onsite*",
	"*intercom.io*",
	"*intercomcdn.com*",
	"*drift.com*",
	"*tawk.to*",
	"*zopim.com*",
}

type rule struct {
	compiled *pattern.Pattern
	reason   string
}

// Blocklist decides which tab requests are aborted before they are sent
type Blocklist struct {
	rules []rule
}

// NewBlocklist compiles the ad and popup sets that are enabled plus any
// custom patterns. Invalid custom patterns are ignored; see package
// pattern for the syntax.
func NewBlocklist(ads, popups bool, custom []string) *Blocklist {
	bl := &Blocklist{}
	if ads {
		bl.add(adPatterns, ReasonAd)
	}
	if popups {
		bl.add(popupPatterns, ReasonPopup)
	}
	bl.add(custom, ReasonCustom)
	return bl
}

func (bl *Blocklist) add(patterns []string, reason string) {
	for _, pat := range patterns {
		compiled, err := pattern.Compile(pat)
		if err != nil {
			continue
		}
		bl.rules = append(bl.rules, rule{compiled: compiled, reason: reason})
	}
}

// Empty reports whether no rule is active; interception can be skipped
func (bl *Blocklist) Empty() bool {
	return bl == nil || len(bl.rules) == 0
}

// Match returns the reason requestURL is blocked
func (bl *Blocklist) Match(requestURL string) (string, bool) {
	if bl.Empty() {
		return "", false
	}
	for _, r := range bl.rules {
		if r.compiled.Match(requestURL) {
			return r.reason, true
		}
	}
	return "", false
}

// Len returns the number of compiled rules
func (bl *Blocklist) Len() int {
	if bl == nil {
		return 0
	}
	return len(bl.rules)
}
