package aggregate

import (
	"cmp"

	"github.com/radiusdt/ivt-audit/internal/classify"
	"github.com/radiusdt/ivt-audit/internal/models"
)

// Default caps used by the reports.
const (
	DefaultASNLimit         = 30
	DefaultTimezoneLimit    = 20
	DefaultThreatTypeLimit  = 8
	DefaultTopASNChartLimit = 10
)

// Overall is the single-row health summary of the whole dataset.
type Overall struct {
	Total      int64   `json:"total_events"`
	Invalid    int64   `json:"invalid_events"`
	Valid      int64   `json:"valid_events"`
	InvalidPct float64 `json:"invalid_pct"`
}

// ThreatStat counts invalid events per threat group and type. PctOfInvalid
// is measured against every invalid event in the dataset, not against the
// row itself.
type ThreatStat struct {
	Group        string  `json:"threat_group"`
	Type         string  `json:"threat_type"`
	Events       int64   `json:"events"`
	PctOfInvalid float64 `json:"pct_of_invalid"`
}

// TimezonePair is the key of the timezone mismatch view.
type TimezonePair struct {
	IPTimezone     string `json:"ip_timezone"`
	DeviceTimezone string `json:"device_timezone"`
}

type threatPair struct {
	group, typ string
}

func compareThreatPair(a, b threatPair) int {
	if c := cmp.Compare(a.group, b.group); c != 0 {
		return c
	}
	return cmp.Compare(a.typ, b.typ)
}

func compareTimezonePair(a, b TimezonePair) int {
	if c := cmp.Compare(a.IPTimezone, b.IPTimezone); c != 0 {
		return c
	}
	return cmp.Compare(a.DeviceTimezone, b.DeviceTimezone)
}

func hasASN(ev models.Event) bool { return ev.ASN != "" }

// ComputeOverall counts every event once.
func ComputeOverall(events []models.Event) Overall {
	var o Overall
	for _, ev := range events {
		o.Total++
		if classify.IsInvalid(ev) {
			o.Invalid++
		}
	}
	o.Valid = o.Total - o.Invalid
	o.InvalidPct = Percent(o.Invalid, o.Total)
	return o
}

// FunnelExposure breaks events down by visited URL path.
func FunnelExposure(events []models.Event, limit int) []GroupStat[string] {
	return Aggregate(events, func(ev models.Event) (string, bool) {
		return ev.URL, true
	}, cmp.Compare[string], WithLimit(limit))
}

// PaidTraffic breaks events down by attributed traffic source.
func PaidTraffic(events []models.Event) []GroupStat[classify.Source] {
	return Aggregate(events, func(ev models.Event) (classify.Source, bool) {
		return classify.InferSource(ev), true
	}, cmp.Compare[classify.Source])
}

// ThreatTaxonomy counts invalid events per (threat group, threat type).
func ThreatTaxonomy(events []models.Event, limit int) []ThreatStat {
	totalInvalid := ComputeOverall(events).Invalid

	groups := Aggregate(events, func(ev models.Event) (threatPair, bool) {
		return threatPair{group: ev.ThreatGroup, typ: ev.ThreatType}, true
	}, compareThreatPair, WithFilter(classify.IsInvalid), OrderByTotal(), WithLimit(limit))

	result := make([]ThreatStat, 0, len(groups))
	for _, g := range groups {
		result = append(result, ThreatStat{
			Group:        g.Key.group,
			Type:         g.Key.typ,
			Events:       g.Total,
			PctOfInvalid: Percent(g.Total, totalInvalid),
		})
	}
	return result
}

// ThreatTypes counts invalid events per threat type.
func ThreatTypes(events []models.Event, limit int) []GroupStat[string] {
	return Aggregate(events, func(ev models.Event) (string, bool) {
		return ev.ThreatType, true
	}, cmp.Compare[string], WithFilter(classify.IsInvalid), OrderByTotal(), WithLimit(limit))
}

// TimezoneMismatch lists events whose IP-derived timezone differs from the
// timezone the device reported. Events missing either label are skipped.
func TimezoneMismatch(events []models.Event, limit int) []GroupStat[TimezonePair] {
	return Aggregate(events, func(ev models.Event) (TimezonePair, bool) {
		return TimezonePair{IPTimezone: ev.IPTimezone, DeviceTimezone: ev.DeviceTimezone}, true
	}, compareTimezonePair, WithFilter(func(ev models.Event) bool {
		return ev.IPTimezone != "" && ev.DeviceTimezone != "" && ev.IPTimezone != ev.DeviceTimezone
	}), OrderByTotal(), WithLimit(limit))
}

// ASN breaks events down by autonomous system. Events without an ASN are
// left out.
func ASN(events []models.Event, limit int) []GroupStat[string] {
	return Aggregate(events, func(ev models.Event) (string, bool) {
		return ev.ASN, true
	}, cmp.Compare[string], WithFilter(hasASN), WithLimit(limit))
}

// UserAgents breaks events down by user-agent category.
func UserAgents(events []models.Event) []GroupStat[classify.UACategory] {
	return Aggregate(events, func(ev models.Event) (classify.UACategory, bool) {
		return classify.ClassifyUA(ev.UserAgent), true
	}, cmp.Compare[classify.UACategory])
}

func hourKey(ev models.Event) (int, bool) { return classify.HourOfDay(ev.Timestamp) }

func dateKey(ev models.Event) (string, bool) { return classify.CalendarDate(ev.Timestamp) }

// Hourly breaks events down by hour of day, in hour order. Events with a
// malformed timestamp are left out.
func Hourly(events []models.Event) []GroupStat[int] {
	return Aggregate(events, hourKey, cmp.Compare[int], OrderByKey())
}

// Daily breaks events down by calendar date, in date order. Events with a
// malformed timestamp are left out.
func Daily(events []models.Event) []GroupStat[string] {
	return Aggregate(events, dateKey, cmp.Compare[string], OrderByKey())
}

// ===========================================
// Highlights
// ===========================================

// TopThreatASN returns the ASN with the most invalid events.
func TopThreatASN(events []models.Event) (GroupStat[string], bool) {
	rows := ASN(events, 1)
	if len(rows) == 0 || rows[0].Invalid == 0 {
		return GroupStat[string]{}, false
	}
	return rows[0], true
}

// TopAutomationTool returns the scripted-client category seen most often
// among invalid events.
func TopAutomationTool(events []models.Event) (GroupStat[classify.UACategory], bool) {
	rows := Aggregate(events, func(ev models.Event) (classify.UACategory, bool) {
		c := classify.ClassifyUA(ev.UserAgent)
		return c, c.IsAutomation()
	}, cmp.Compare[classify.UACategory], WithFilter(classify.IsInvalid), WithLimit(1))
	if len(rows) == 0 {
		return GroupStat[classify.UACategory]{}, false
	}
	return rows[0], true
}

// PeakAttackHour returns the hour of day with the most invalid events.
func PeakAttackHour(events []models.Event) (GroupStat[int], bool) {
	rows := Aggregate(events, hourKey, cmp.Compare[int], WithFilter(classify.IsInvalid), WithLimit(1))
	if len(rows) == 0 {
		return GroupStat[int]{}, false
	}
	return rows[0], true
}
