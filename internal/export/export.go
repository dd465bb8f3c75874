// Package export renders report views as fixed-header tables and writes them
// as CSV files or aligned console text.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/radiusdt/ivt-audit/internal/aggregate"
	"github.com/radiusdt/ivt-audit/internal/classify"
	"github.com/radiusdt/ivt-audit/internal/reporting"
	"github.com/radiusdt/ivt-audit/internal/roi"
)

// Table is one report view with its column headers.
type Table struct {
	View   string
	Name   string
	File   string
	Header []string
	Rows   [][]string
}

var statHeader = []string{"Total Events", "Invalid Events", "Invalid %"}

func statRow[K comparable](label string, s aggregate.GroupStat[K]) []string {
	return []string{label, count(s.Total), count(s.Invalid), pct(s.InvalidPct)}
}

func groupTable[K comparable](view, name, file, keyHeader string, rows []aggregate.GroupStat[K], label func(K) string) Table {
	t := Table{
		View:   view,
		Name:   name,
		File:   file,
		Header: append([]string{keyHeader}, statHeader...),
		Rows:   make([][]string, 0, len(rows)),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, statRow(label(r.Key), r))
	}
	return t
}

func str[K ~string](k K) string { return string(k) }

// OverallTable renders the dataset summary.
func OverallTable(o aggregate.Overall) Table {
	return Table{
		View:   reporting.ViewOverall,
		Name:   "Overall",
		File:   "overall_summary.csv",
		Header: statHeader,
		Rows:   [][]string{{count(o.Total), count(o.Invalid), pct(o.InvalidPct)}},
	}
}

// ThreatTable renders the threat taxonomy.
func ThreatTable(rows []aggregate.ThreatStat) Table {
	t := Table{
		View:   reporting.ViewThreats,
		Name:   "Threat Taxonomy",
		File:   "threat_taxonomy.csv",
		Header: []string{"Threat Group", "Threat Type", "Events", "% of Invalid"},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{r.Group, r.Type, count(r.Events), pct(r.PctOfInvalid)})
	}
	return t
}

// ThreatTypeTable renders invalid event counts per threat type. Every row is
// invalid, so only the count is shown.
func ThreatTypeTable(rows []aggregate.GroupStat[string]) Table {
	t := Table{
		View:   reporting.ViewThreatTypes,
		Name:   "Threat Types",
		File:   "threat_types.csv",
		Header: []string{"Threat Type", "Events"},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{r.Key, count(r.Total)})
	}
	return t
}

// TimezoneTable renders the IP/device timezone mismatch view.
func TimezoneTable(rows []aggregate.GroupStat[aggregate.TimezonePair]) Table {
	t := Table{
		View:   reporting.ViewTimezones,
		Name:   "Timezone Mismatch",
		File:   "timezone_mismatch.csv",
		Header: []string{"IP Timezone", "Device Timezone", "Events", "Invalid Events", "Invalid %"},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			r.Key.IPTimezone, r.Key.DeviceTimezone,
			count(r.Total), count(r.Invalid), pct(r.InvalidPct),
		})
	}
	return t
}

// Tables renders every view of a report in report order.
func Tables(r *reporting.Report) []Table {
	return []Table{
		OverallTable(r.Overall),
		groupTable(reporting.ViewFunnel, "Funnel Exposure", "funnel_threats.csv", "URL Path", r.Funnel, str[string]),
		groupTable(reporting.ViewPaidTraffic, "Paid Traffic", "paid_traffic_summary.csv", "Traffic Source", r.PaidTraffic, str[classify.Source]),
		ThreatTable(r.Threats),
		ThreatTypeTable(r.ThreatTypes),
		TimezoneTable(r.Timezones),
		groupTable(reporting.ViewASN, "ASN", "asn_analysis.csv", "ASN", r.ASN, str[string]),
		groupTable(reporting.ViewTopASNs, "Top ASNs", "top_asns.csv", "ASN", r.TopASNs, str[string]),
		groupTable(reporting.ViewUserAgents, "User Agents", "user_agent_analysis.csv", "User Agent Type", r.UserAgents, str[classify.UACategory]),
		groupTable(reporting.ViewHourly, "Hourly Patterns", "hourly_patterns.csv", "Hour (24h)", r.Hourly, strconv.Itoa),
		groupTable(reporting.ViewDaily, "Daily Patterns", "daily_patterns.csv", "Date", r.Daily, str[string]),
	}
}

// ROITable renders an ROI analysis as metric/value rows.
func ROITable(a roi.Analysis) Table {
	t := Table{
		View:   "roi",
		Name:   "ROI Analysis",
		File:   "roi_analysis.csv",
		Header: []string{"Metric", "Value"},
	}
	for _, m := range a.Rows() {
		t.Rows = append(t.Rows, []string{m.Name, FormatMetric(m)})
	}
	return t
}

// FormatMetric renders a metric value according to its unit.
func FormatMetric(m roi.Metric) string {
	switch m.Unit {
	case roi.UnitCount:
		return strconv.FormatFloat(m.Value, 'f', 0, 64)
	case roi.UnitCurrency:
		return Currency(m.Value)
	case roi.UnitPercent:
		return strconv.FormatFloat(m.Value, 'f', 1, 64) + "%"
	default:
		return strconv.FormatFloat(m.Value, 'f', 1, 64)
	}
}

// Currency formats v as dollars with thousands separators, e.g. "$11,612.90".
func Currency(v float64) string {
	neg := v < 0
	s := strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

func count(n int64) string { return strconv.FormatInt(n, 10) }

func pct(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

// WriteCSV writes the table header and rows to w.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", t.Name, err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("failed to write %s rows: %w", t.Name, err)
	}
	return nil
}

// WriteFile writes the table as CSV to path.
func WriteFile(path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteDir writes each table to its file under dir, creating dir if needed,
// and returns the paths written.
func WriteDir(dir string, tables []Table) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := make([]string, 0, len(tables))
	for _, t := range tables {
		p := filepath.Join(dir, t.File)
		if err := WriteFile(p, t); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// WriteText writes the table as aligned columns under a title. top caps the
// rows shown; zero or less shows all.
func WriteText(w io.Writer, t Table, top int) error {
	rows := t.Rows
	if top > 0 && len(rows) > top {
		rows = rows[:top]
	}

	fmt.Fprintf(w, "\n%s\n%s\n", t.Name, strings.Repeat("=", len(t.Name)))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Header, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	if len(rows) < len(t.Rows) {
		fmt.Fprintf(tw, "... %d more rows\n", len(t.Rows)-len(rows))
	}
	return tw.Flush()
}
