package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/radiusdt/ivt-audit/internal/config"
	"github.com/radiusdt/ivt-audit/internal/metrics"
	"github.com/radiusdt/ivt-audit/internal/models"
	"github.com/radiusdt/ivt-audit/internal/reporting"
	"github.com/radiusdt/ivt-audit/internal/storage"
	"go.uber.org/zap"
)

type downStore struct{}

func (downStore) ScanEvents(context.Context) ([]models.Event, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (downStore) BulkInsert(context.Context, []models.Event) (int64, error) {
	return 0, errors.New("dial tcp: connection refused")
}

func (downStore) Count(context.Context) (int64, error) {
	return 0, errors.New("dial tcp: connection refused")
}

func events() []models.Event {
	return []models.Event{
		{IP: "1", URL: "/pricing", ASN: "AS1", GCLID: "g1", ThreatGroup: "Bot", ThreatType: "Scripted", UserAgent: "curl/8.0", Timestamp: "2024-07-15 20:33:10"},
		{IP: "2", URL: "/pricing", ASN: "AS1", GCLID: "g2", ThreatGroup: "Bot", ThreatType: "Scripted", UserAgent: "curl/8.0", Timestamp: "2024-07-15 20:45:00"},
		{IP: "3", URL: "/", MSCLKID: "m1", Timestamp: "2024-07-16 08:00:00"},
		{IP: "4", URL: "/", Timestamp: "2024-07-16 09:00:00"},
	}
}

func newTestServer(t *testing.T, store storage.EventStore, checks map[string]HealthCheck) http.Handler {
	t.Helper()
	cfg := config.Defaults()
	m := metrics.NewMetrics("ivt", nil)
	return NewServer(&Dependencies{
		Reporting:    reporting.NewService(store, reporting.DefaultLimits(), zap.NewNop(), reporting.WithMetrics(m, "memory")),
		Config:       cfg,
		Logger:       zap.NewNop(),
		Metrics:      m,
		HealthChecks: checks,
	})
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, storage.NewInMemoryEventStore(), nil)
	rec := get(h, "/health")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("GET /health = %d %s", rec.Code, rec.Body)
	}

	h = newTestServer(t, storage.NewInMemoryEventStore(), map[string]HealthCheck{
		"postgres": func(context.Context) error { return errors.New("down") },
	})
	rec = get(h, "/health")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), `"postgres":"unavailable"`) {
		t.Errorf("GET /health with failing check = %d %s", rec.Code, rec.Body)
	}
}

func TestReports(t *testing.T) {
	h := newTestServer(t, storage.NewInMemoryEventStore(events()...), nil)

	rec := get(h, "/reports")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /reports = %d %s", rec.Code, rec.Body)
	}
	var full reporting.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &full); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if full.Overall.Total != 4 || full.Overall.Invalid != 2 || full.Overall.InvalidPct != 50 {
		t.Errorf("overall = %+v", full.Overall)
	}

	for _, name := range reporting.Views {
		rec := get(h, "/reports/"+name)
		if rec.Code != http.StatusOK {
			t.Errorf("GET /reports/%s = %d %s", name, rec.Code, rec.Body)
		}
	}

	rec = get(h, "/reports/hourly")
	var hourly []struct {
		Key   int   `json:"key"`
		Total int64 `json:"total_events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &hourly); err != nil {
		t.Fatalf("decode hourly: %v", err)
	}
	if len(hourly) != 3 || hourly[0].Key != 8 || hourly[2].Key != 20 || hourly[2].Total != 2 {
		t.Errorf("hourly = %+v", hourly)
	}
}

func TestReportErrors(t *testing.T) {
	h := newTestServer(t, storage.NewInMemoryEventStore(events()...), nil)

	if rec := get(h, "/reports/bogus"); rec.Code != http.StatusNotFound {
		t.Errorf("GET /reports/bogus = %d", rec.Code)
	}
	if rec := get(h, "/reports/funnel?format=xml"); rec.Code != http.StatusBadRequest {
		t.Errorf("GET ?format=xml = %d", rec.Code)
	}
	if rec := get(h, "/reports/summary?format=csv"); rec.Code != http.StatusBadRequest {
		t.Errorf("GET summary csv = %d", rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reports", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /reports = %d", rec.Code)
	}
}

func TestReportCSV(t *testing.T) {
	h := newTestServer(t, storage.NewInMemoryEventStore(events()...), nil)

	rec := get(h, "/reports/funnel?format=csv")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET funnel csv = %d %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if lines[0] != "URL Path,Total Events,Invalid Events,Invalid %" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "/pricing,2,2,100.00" {
		t.Errorf("first row = %q", lines[1])
	}
}

func TestStoreUnavailable(t *testing.T) {
	h := newTestServer(t, downStore{}, nil)

	for _, target := range []string{"/reports", "/reports/overall", "/reports/asn?format=csv", "/roi?google_cpc=1&bing_cpc=1&monthly_cost=10"} {
		rec := get(h, target)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503", target, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"error"`) {
			t.Errorf("GET %s body = %s", target, rec.Body)
		}
	}
}

func TestROI(t *testing.T) {
	h := newTestServer(t, storage.NewInMemoryEventStore(events()...), nil)

	rec := get(h, "/roi?google_cpc=2.50&bing_cpc=$1&monthly_cost=100&trial_days=30")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /roi = %d %s", rec.Code, rec.Body)
	}
	var body struct {
		Costs struct {
			GoogleClicks int64   `json:"google_clicks"`
			TotalWaste   float64 `json:"total_waste"`
		} `json:"costs"`
		Rows []struct {
			Metric string `json:"metric"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Costs.GoogleClicks != 2 || body.Costs.TotalWaste != 5 {
		t.Errorf("costs = %+v", body.Costs)
	}
	if len(body.Rows) != 12 {
		t.Errorf("rows = %d, want 12", len(body.Rows))
	}

	rec = get(h, "/roi?google_cpc=1&bing_cpc=1&monthly_cost=10&format=csv")
	if !strings.HasPrefix(rec.Body.String(), "Metric,Value\n") {
		t.Errorf("roi csv = %q", rec.Body.String())
	}
}

func TestROIInvalidInput(t *testing.T) {
	h := newTestServer(t, downStore{}, nil)

	for _, q := range []string{
		"google_cpc=abc&bing_cpc=1&monthly_cost=1",
		"google_cpc=-1&bing_cpc=1&monthly_cost=1",
		"google_cpc=1&bing_cpc=1&monthly_cost=1&trial_days=0",
		"bing_cpc=1&monthly_cost=1",
	} {
		rec := get(h, "/roi?"+q)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("GET /roi?%s = %d, want 400", q, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, storage.NewInMemoryEventStore(events()...), nil)
	get(h, "/reports/overall")

	rec := get(h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"ivt_events_scanned_total", "ivt_http_requests_total", "ivt_invalid_traffic_percent 50"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
