package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/radiusdt/ivt-audit/internal/aggregate"
	"github.com/radiusdt/ivt-audit/internal/classify"
	"github.com/radiusdt/ivt-audit/internal/metrics"
	"github.com/radiusdt/ivt-audit/internal/models"
	"github.com/radiusdt/ivt-audit/internal/roi"
	"github.com/radiusdt/ivt-audit/internal/storage"
	"go.uber.org/zap"
)

// View names accepted by Service.View.
const (
	ViewOverall     = "overall"
	ViewFunnel      = "funnel"
	ViewPaidTraffic = "paid-traffic"
	ViewThreats     = "threats"
	ViewThreatTypes = "threat-types"
	ViewTimezones   = "timezones"
	ViewASN         = "asn"
	ViewTopASNs     = "top-asns"
	ViewUserAgents  = "user-agents"
	ViewHourly      = "hourly"
	ViewDaily       = "daily"
	ViewSummary     = "summary"
)

// Views lists every view name in report order.
var Views = []string{
	ViewOverall, ViewFunnel, ViewPaidTraffic, ViewThreats, ViewThreatTypes,
	ViewTimezones, ViewASN, ViewTopASNs, ViewUserAgents, ViewHourly,
	ViewDaily, ViewSummary,
}

// ErrUnknownView is returned by View for names not in Views.
var ErrUnknownView = errors.New("unknown report view")

const reportCacheKey = "full"

// Limits caps the row count of the capped views. Zero means no cap.
type Limits struct {
	ASN         int
	Timezones   int
	ThreatTypes int
	TopASNs     int
}

// DefaultLimits returns the standard report caps.
func DefaultLimits() Limits {
	return Limits{
		ASN:         aggregate.DefaultASNLimit,
		Timezones:   aggregate.DefaultTimezoneLimit,
		ThreatTypes: aggregate.DefaultThreatTypeLimit,
		TopASNs:     aggregate.DefaultTopASNChartLimit,
	}
}

// Summary is the headline block of a report. Highlights are nil when the
// dataset has no invalid traffic to point at.
type Summary struct {
	Overall           aggregate.Overall                         `json:"overall"`
	TopThreatASN      *aggregate.GroupStat[string]              `json:"top_threat_asn,omitempty"`
	TopAutomationTool *aggregate.GroupStat[classify.UACategory] `json:"top_automation_tool,omitempty"`
	PeakAttackHour    *aggregate.GroupStat[int]                 `json:"peak_attack_hour,omitempty"`
}

// Report holds every view computed from one scan of the event store.
type Report struct {
	GeneratedAt time.Time                                     `json:"generated_at"`
	Overall     aggregate.Overall                             `json:"overall"`
	Funnel      []aggregate.GroupStat[string]                 `json:"funnel"`
	PaidTraffic []aggregate.GroupStat[classify.Source]        `json:"paid_traffic"`
	Threats     []aggregate.ThreatStat                        `json:"threats"`
	ThreatTypes []aggregate.GroupStat[string]                 `json:"threat_types"`
	Timezones   []aggregate.GroupStat[aggregate.TimezonePair] `json:"timezone_mismatch"`
	ASN         []aggregate.GroupStat[string]                 `json:"asn"`
	TopASNs     []aggregate.GroupStat[string]                 `json:"top_asns"`
	UserAgents  []aggregate.GroupStat[classify.UACategory]    `json:"user_agents"`
	Hourly      []aggregate.GroupStat[int]                    `json:"hourly"`
	Daily       []aggregate.GroupStat[string]                 `json:"daily"`
	Summary     Summary                                       `json:"summary"`
}

// View returns the named section of the report.
func (r *Report) View(name string) (any, error) {
	switch name {
	case ViewOverall:
		return r.Overall, nil
	case ViewFunnel:
		return r.Funnel, nil
	case ViewPaidTraffic:
		return r.PaidTraffic, nil
	case ViewThreats:
		return r.Threats, nil
	case ViewThreatTypes:
		return r.ThreatTypes, nil
	case ViewTimezones:
		return r.Timezones, nil
	case ViewASN:
		return r.ASN, nil
	case ViewTopASNs:
		return r.TopASNs, nil
	case ViewUserAgents:
		return r.UserAgents, nil
	case ViewHourly:
		return r.Hourly, nil
	case ViewDaily:
		return r.Daily, nil
	case ViewSummary:
		return r.Summary, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownView, name)
}

// Build computes every view over events.
func Build(events []models.Event, limits Limits) *Report {
	r := &Report{
		GeneratedAt: time.Now().UTC(),
		Overall:     aggregate.ComputeOverall(events),
		Funnel:      aggregate.FunnelExposure(events, 0),
		PaidTraffic: aggregate.PaidTraffic(events),
		Threats:     aggregate.ThreatTaxonomy(events, 0),
		ThreatTypes: aggregate.ThreatTypes(events, limits.ThreatTypes),
		Timezones:   aggregate.TimezoneMismatch(events, limits.Timezones),
		ASN:         aggregate.ASN(events, limits.ASN),
		TopASNs:     aggregate.ASN(events, limits.TopASNs),
		UserAgents:  aggregate.UserAgents(events),
		Hourly:      aggregate.Hourly(events),
		Daily:       aggregate.Daily(events),
	}

	r.Summary.Overall = r.Overall
	if s, ok := aggregate.TopThreatASN(events); ok {
		r.Summary.TopThreatASN = &s
	}
	if s, ok := aggregate.TopAutomationTool(events); ok {
		r.Summary.TopAutomationTool = &s
	}
	if s, ok := aggregate.PeakAttackHour(events); ok {
		r.Summary.PeakAttackHour = &s
	}
	return r
}

// Service builds reports from an event store.
type Service struct {
	store   storage.EventStore
	limits  Limits
	cache   storage.ReportCache
	metrics *metrics.Metrics
	backend string
	logger  *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache serves reports from cache until the next import.
func WithCache(c storage.ReportCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithMetrics records scan and report metrics.
func WithMetrics(m *metrics.Metrics, backend string) Option {
	return func(s *Service) {
		s.metrics = m
		s.backend = backend
	}
}

// NewService creates a reporting service over store.
func NewService(store storage.EventStore, limits Limits, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		limits:  limits,
		backend: "unknown",
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report returns the full report. Store failures are returned unchanged
// and no partial report is produced.
func (s *Service) Report(ctx context.Context) (*Report, error) {
	var (
		gen       int64
		cacheable bool
	)
	if s.cache != nil {
		var cached Report
		g, hit, err := s.cache.Get(ctx, reportCacheKey, &cached)
		if err != nil {
			s.logger.Warn("report cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheLookup(hit)
		if hit {
			return &cached, nil
		}
		// The report is stored under the generation seen before the scan,
		// so an import landing mid-scan leaves it unreachable.
		gen, cacheable = g, err == nil
	}

	events, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	r := Build(events, s.limits)
	s.metrics.RecordReport("full", time.Since(start))
	s.metrics.UpdateTrafficStats(r.Overall.Total, r.Overall.InvalidPct)

	if cacheable {
		if err := s.cache.Set(ctx, gen, reportCacheKey, r); err != nil {
			s.logger.Warn("report cache write failed", zap.Error(err))
		}
	}

	s.logger.Debug("report built",
		zap.Int64("events", r.Overall.Total),
		zap.Float64("invalid_pct", r.Overall.InvalidPct),
		zap.Duration("duration", time.Since(start)),
	)
	return r, nil
}

// View returns a single named view.
func (s *Service) View(ctx context.Context, name string) (any, error) {
	if !IsView(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}
	r, err := s.Report(ctx)
	if err != nil {
		return nil, err
	}
	return r.View(name)
}

// ROI prices the paid invalid traffic. Inputs are validated before the
// store is touched.
func (s *Service) ROI(ctx context.Context, in roi.Inputs) (roi.Analysis, error) {
	if err := in.Validate(); err != nil {
		return roi.Analysis{}, err
	}
	r, err := s.Report(ctx)
	if err != nil {
		return roi.Analysis{}, err
	}
	return roi.Analyze(r.PaidTraffic, in)
}

// Count returns the number of stored events.
func (s *Service) Count(ctx context.Context) (int64, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		s.metrics.RecordStoreError("count")
		return 0, err
	}
	return n, nil
}

func (s *Service) scan(ctx context.Context) ([]models.Event, error) {
	start := time.Now()
	events, err := s.store.ScanEvents(ctx)
	if err != nil {
		s.metrics.RecordStoreError("scan")
		s.logger.Error("event scan failed", zap.Error(err))
		return nil, err
	}
	s.metrics.RecordScan(s.backend, len(events), time.Since(start))
	return events, nil
}

// IsView reports whether name is one of Views.
func IsView(name string) bool {
	for _, v := range Views {
		if v == name {
			return true
		}
	}
	return false
}
