package classify

import "strings"

// UACategory is the family a raw user-agent string falls into.
type UACategory string

const (
	UAHeadlessChrome UACategory = "Headless Chrome (Bot)"
	UAPhantomJS      UACategory = "PhantomJS (Bot)"
	UASelenium       UACategory = "Selenium (Automation)"
	UAKnownBot       UACategory = "Known Bot"
	UACLITool        UACategory = "CLI Tool"
	UAPython         UACategory = "Python Script"
	UAChrome         UACategory = "Chrome Browser"
	UAFirefox        UACategory = "Firefox Browser"
	UASafari         UACategory = "Safari Browser"
	UAEdge           UACategory = "Edge Browser"
	UAMissing        UACategory = "Missing UA"
	UAOther          UACategory = "Other"
)

// UARule maps a user-agent to a category when Match returns true.
type UARule struct {
	Category UACategory
	Match    func(ua string) bool
}

func containsAny(subs ...string) func(string) bool {
	return func(ua string) bool {
		for _, s := range subs {
			if strings.Contains(ua, s) {
				return true
			}
		}
		return false
	}
}

// uaRules is evaluated top to bottom and the first match wins. The order is
// part of the contract: a HeadlessChrome agent that also says "bot" is
// headless Chrome, and Safari only counts when Chrome is absent.
var uaRules = []UARule{
	{UAHeadlessChrome, containsAny("HeadlessChrome")},
	{UAPhantomJS, containsAny("Phantom")},
	{UASelenium, containsAny("Selenium")},
	{UAKnownBot, containsAny("bot", "Bot")},
	{UACLITool, containsAny("curl", "wget")},
	{UAPython, containsAny("Python")},
	{UAChrome, containsAny("Chrome")},
	{UAFirefox, containsAny("Firefox")},
	{UASafari, func(ua string) bool {
		return strings.Contains(ua, "Safari") && !strings.Contains(ua, "Chrome")
	}},
	{UAEdge, containsAny("Edge")},
	{UAMissing, func(ua string) bool { return ua == "" }},
}

// ClassifyUA returns the category of the first rule the user-agent matches,
// or UAOther.
func ClassifyUA(ua string) UACategory {
	for _, r := range uaRules {
		if r.Match(ua) {
			return r.Category
		}
	}
	return UAOther
}

// UARules returns a copy of the rule list in precedence order.
func UARules() []UARule {
	out := make([]UARule, len(uaRules))
	copy(out, uaRules)
	return out
}

// IsAutomation reports whether the category denotes scripted traffic.
func (c UACategory) IsAutomation() bool {
	switch c {
	case UAHeadlessChrome, UAPhantomJS, UASelenium, UAKnownBot, UACLITool, UAPython:
		return true
	}
	return false
}
