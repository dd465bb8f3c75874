package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/radiusdt/ivt-audit/internal/aggregate"
	"github.com/radiusdt/ivt-audit/internal/models"
	"github.com/radiusdt/ivt-audit/internal/reporting"
	"github.com/radiusdt/ivt-audit/internal/roi"
)

func TestCurrency(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{0, "$0.00"},
		{5, "$5.00"},
		{967.742, "$967.74"},
		{1000, "$1,000.00"},
		{11612.903, "$11,612.90"},
		{1234567.891, "$1,234,567.89"},
		{-32.26, "-$32.26"},
	}
	for _, tt := range tests {
		if got := Currency(tt.v); got != tt.want {
			t.Errorf("Currency(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestFormatMetric(t *testing.T) {
	tests := []struct {
		m    roi.Metric
		want string
	}{
		{roi.Metric{Value: 1000, Unit: roi.UnitCount}, "1000"},
		{roi.Metric{Value: 2.5, Unit: roi.UnitCurrency}, "$2.50"},
		{roi.Metric{Value: 93.548, Unit: roi.UnitPercent}, "93.5%"},
		{roi.Metric{Value: 15.5, Unit: roi.UnitDays}, "15.5"},
	}
	for _, tt := range tests {
		if got := FormatMetric(tt.m); got != tt.want {
			t.Errorf("FormatMetric(%+v) = %q, want %q", tt.m, got, tt.want)
		}
	}
}

func TestThreatTypeTable(t *testing.T) {
	events := []models.Event{
		{ThreatGroup: "Bot", ThreatType: "Crawler"},
		{ThreatGroup: "Bot", ThreatType: "Crawler"},
		{ThreatGroup: "Fraud", ThreatType: "Proxy"},
		{ThreatType: "Crawler"},
	}
	tbl := ThreatTypeTable(reporting.Build(events, reporting.DefaultLimits()).ThreatTypes)

	var buf strings.Builder
	if err := WriteCSV(&buf, tbl); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	want := "Threat Type,Events\nCrawler,2\nProxy,1\n"
	if !strings.HasSuffix(buf.String(), want) {
		t.Errorf("threat types CSV = %q, want %q", buf.String(), want)
	}
}

func TestTablesHeaders(t *testing.T) {
	events := []models.Event{
		{URL: "/", GCLID: "g", ThreatGroup: "Bot", ThreatType: "Crawler", IPTimezone: "UTC", DeviceTimezone: "Asia/Tokyo", ASN: "AS1", Timestamp: "2024-07-15 20:00:00"},
		{URL: "/a", Timestamp: "2024-07-15 21:00:00"},
	}
	tables := Tables(reporting.Build(events, reporting.DefaultLimits()))

	want := map[string][]string{
		"overall_summary.csv":      {"Total Events", "Invalid Events", "Invalid %"},
		"funnel_threats.csv":       {"URL Path", "Total Events", "Invalid Events", "Invalid %"},
		"paid_traffic_summary.csv": {"Traffic Source", "Total Events", "Invalid Events", "Invalid %"},
		"threat_taxonomy.csv":      {"Threat Group", "Threat Type", "Events", "% of Invalid"},
		"threat_types.csv":         {"Threat Type", "Events"},
		"timezone_mismatch.csv":    {"IP Timezone", "Device Timezone", "Events", "Invalid Events", "Invalid %"},
		"asn_analysis.csv":         {"ASN", "Total Events", "Invalid Events", "Invalid %"},
		"user_agent_analysis.csv":  {"User Agent Type", "Total Events", "Invalid Events", "Invalid %"},
		"hourly_patterns.csv":      {"Hour (24h)", "Total Events", "Invalid Events", "Invalid %"},
		"daily_patterns.csv":       {"Date", "Total Events", "Invalid Events", "Invalid %"},
	}

	seen := map[string]bool{}
	for _, tbl := range tables {
		seen[tbl.File] = true
		h, ok := want[tbl.File]
		if !ok {
			continue
		}
		if strings.Join(tbl.Header, "|") != strings.Join(h, "|") {
			t.Errorf("%s header = %v, want %v", tbl.File, tbl.Header, h)
		}
		for _, row := range tbl.Rows {
			if len(row) != len(tbl.Header) {
				t.Errorf("%s row %v does not match header width", tbl.File, row)
			}
		}
	}
	for f := range want {
		if !seen[f] {
			t.Errorf("missing table %s", f)
		}
	}
}

func TestOverallTable(t *testing.T) {
	tbl := OverallTable(aggregate.Overall{Total: 7, Invalid: 4, Valid: 3, InvalidPct: 57.14})
	if got := strings.Join(tbl.Rows[0], ","); got != "7,4,57.14" {
		t.Errorf("row = %s", got)
	}
}

func TestROITable(t *testing.T) {
	a, err := roi.Analyze(nil, roi.Inputs{GoogleCPC: 1, BingCPC: 1, MonthlyCost: 500, TrialDays: 31})
	if err != nil {
		t.Fatal(err)
	}
	tbl := ROITable(a)
	if len(tbl.Rows) != 12 {
		t.Fatalf("ROI table has %d rows, want 12", len(tbl.Rows))
	}
	if tbl.Rows[0][0] != "Google Ads Invalid Clicks" || tbl.Rows[0][1] != "0" {
		t.Errorf("first row = %v", tbl.Rows[0])
	}
	if tbl.Rows[9][1] != "$500.00" {
		t.Errorf("monthly cost row = %v", tbl.Rows[9])
	}
}

func TestWriteCSVQuotes(t *testing.T) {
	var buf bytes.Buffer
	tbl := Table{Header: []string{"URL Path", "Total Events"}, Rows: [][]string{{"/a,b", "1"}}}
	if err := WriteCSV(&buf, tbl); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "URL Path,Total Events\n\"/a,b\",1\n" {
		t.Errorf("csv = %q", got)
	}
}

func TestWriteDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outputs")
	tables := Tables(reporting.Build(nil, reporting.DefaultLimits()))

	paths, err := WriteDir(dir, tables)
	if err != nil {
		t.Fatalf("WriteDir() error = %v", err)
	}
	if len(paths) != len(tables) {
		t.Fatalf("wrote %d files, want %d", len(paths), len(tables))
	}

	f, err := os.Open(filepath.Join(dir, "hourly_patterns.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0][0] != "Hour (24h)" {
		t.Errorf("hourly file = %v, want header only", records)
	}
}

func TestWriteTextTop(t *testing.T) {
	tbl := Table{
		Name:   "Funnel Exposure",
		Header: []string{"URL Path", "Total Events"},
		Rows:   [][]string{{"/a", "3"}, {"/b", "2"}, {"/c", "1"}},
	}
	var buf bytes.Buffer
	if err := WriteText(&buf, tbl, 2); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "/b") || strings.Contains(out, "/c") {
		t.Errorf("top 2 not applied:\n%s", out)
	}
	if !strings.Contains(out, "1 more rows") {
		t.Errorf("missing truncation note:\n%s", out)
	}
}
