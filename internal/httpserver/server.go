package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/radiusdt/ivt-audit/internal/config"
	"github.com/radiusdt/ivt-audit/internal/export"
	"github.com/radiusdt/ivt-audit/internal/metrics"
	"github.com/radiusdt/ivt-audit/internal/middleware"
	"github.com/radiusdt/ivt-audit/internal/reporting"
	"github.com/radiusdt/ivt-audit/internal/roi"
	"go.uber.org/zap"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	Reporting    *reporting.Service
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	HealthChecks map[string]HealthCheck
}

// Server wraps HTTP handlers around the reporting service.
type Server struct {
	reporting    *reporting.Service
	healthChecks map[string]HealthCheck
	roiDefaults  config.ROIConfig
	logger       *zap.Logger
}

// NewServer constructs a new http.Handler with all routes registered and
// the logging and recovery middleware applied.
func NewServer(deps *Dependencies) http.Handler {
	s := &Server{
		reporting:    deps.Reporting,
		healthChecks: deps.HealthChecks,
		roiDefaults:  deps.Config.ROI,
		logger:       deps.Logger,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled && deps.Metrics != nil {
		mux.Handle(deps.Config.Metrics.Path, deps.Metrics.Handler())
	}

	// Reports
	mux.HandleFunc("/reports", s.handleReports)
	mux.HandleFunc("/reports/", s.handleReportView)

	// Cost model
	mux.HandleFunc("/roi", s.handleROI)

	var h http.Handler = mux
	h = middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics, "/health", deps.Config.Metrics.Path).Handler(h)
	h = middleware.NewRecoveryMiddleware(deps.Logger).Handler(h)
	return h
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	for name, check := range s.healthChecks {
		if err := check(ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("component", name), zap.Error(err))
			status[name] = "unavailable"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// ---- Reports ----

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, err := s.reporting.Report(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.jsonResponse(w, report)
}

func (s *Server) handleReportView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/reports/"), "/")
	if name == "" {
		s.handleReports(w, r)
		return
	}

	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "csv" {
		s.errorResponse(w, "format must be json or csv", http.StatusBadRequest)
		return
	}

	if format == "csv" {
		s.csvView(w, r, name)
		return
	}

	view, err := s.reporting.View(r.Context(), name)
	if errors.Is(err, reporting.ErrUnknownView) {
		s.errorResponse(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.jsonResponse(w, view)
}

func (s *Server) csvView(w http.ResponseWriter, r *http.Request, name string) {
	if !reporting.IsView(name) {
		s.errorResponse(w, "unknown report view: "+name, http.StatusNotFound)
		return
	}

	report, err := s.reporting.Report(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}

	table, ok := tableFor(report, name)
	if !ok {
		s.errorResponse(w, name+" has no csv form", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+table.File+`"`)
	if err := export.WriteCSV(w, table); err != nil {
		s.logger.Error("failed to write csv", zap.String("view", name), zap.Error(err))
	}
}

// tableFor returns the rendered table of a view.
func tableFor(report *reporting.Report, name string) (export.Table, bool) {
	for _, t := range export.Tables(report) {
		if t.View == name {
			return t, true
		}
	}
	return export.Table{}, false
}

// ---- ROI ----

func (s *Server) handleROI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	in, err := roi.ParseInputs(
		queryOr(q.Get("google_cpc"), s.roiDefaults.GoogleCPC),
		queryOr(q.Get("bing_cpc"), s.roiDefaults.BingCPC),
		queryOr(q.Get("monthly_cost"), s.roiDefaults.MonthlyCost),
		q.Get("trial_days"),
	)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if q.Get("trial_days") == "" && s.roiDefaults.TrialDays > 0 {
		in.TrialDays = s.roiDefaults.TrialDays
	}

	analysis, err := s.reporting.ROI(r.Context(), in)
	if errors.Is(err, roi.ErrInvalidInput) {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.storeError(w, err)
		return
	}

	if q.Get("format") == "csv" {
		table := export.ROITable(analysis)
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+table.File+`"`)
		if err := export.WriteCSV(w, table); err != nil {
			s.logger.Error("failed to write csv", zap.String("view", "roi"), zap.Error(err))
		}
		return
	}

	s.jsonResponse(w, struct {
		roi.Analysis
		Rows []roi.Metric `json:"rows"`
	}{analysis, analysis.Rows()})
}

// queryOr returns raw, or the configured default when raw is empty and the
// default is set.
func queryOr(raw string, def float64) string {
	if raw != "" || def == 0 {
		return raw
	}
	return strconv.FormatFloat(def, 'f', -1, 64)
}

// ---- Helpers ----

func (s *Server) storeError(w http.ResponseWriter, err error) {
	s.logger.Error("event store unavailable", zap.Error(err))
	s.errorResponse(w, "event store unavailable", http.StatusServiceUnavailable)
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
