package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/ivt-audit/internal/classify"
	"github.com/radiusdt/ivt-audit/internal/geo"
	"github.com/radiusdt/ivt-audit/internal/metrics"
	"github.com/radiusdt/ivt-audit/internal/models"
	"github.com/radiusdt/ivt-audit/internal/storage"
	"go.uber.org/zap"
)

// ErrImportFailed is returned when an import is rejected. Nothing from the
// file is stored when it is returned.
var ErrImportFailed = errors.New("import failed")

// Result describes a committed import.
type Result struct {
	BatchID  string        `json:"batch_id"`
	Rows     int64         `json:"rows"`
	Invalid  int64         `json:"invalid"`
	Enriched int64         `json:"asn_enriched"`
	Duration time.Duration `json:"duration"`
}

// Importer loads vendor CSV exports into an event store.
type Importer struct {
	store    storage.EventStore
	resolver *geo.Resolver
	cache    storage.ReportCache
	metrics  *metrics.Metrics
	logger   *zap.Logger

	progressEvery int
}

// Option configures an Importer.
type Option func(*Importer)

// WithResolver fills blank ASNs from the IP address.
func WithResolver(r *geo.Resolver) Option {
	return func(i *Importer) { i.resolver = r }
}

// WithCache invalidates cached reports after a committed import.
func WithCache(c storage.ReportCache) Option {
	return func(i *Importer) { i.cache = c }
}

// WithMetrics records import metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Importer) { i.metrics = m }
}

// WithProgressEvery logs parse progress every n rows.
func WithProgressEvery(n int) Option {
	return func(i *Importer) { i.progressEvery = n }
}

// NewImporter creates an importer writing to store.
func NewImporter(store storage.EventStore, logger *zap.Logger, opts ...Option) *Importer {
	i := &Importer{store: store, logger: logger}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ImportFile imports the CSV file at path.
func (i *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrImportFailed, err)
	}
	defer f.Close()

	return i.Import(ctx, f)
}

// Import parses every record from r and stores them in one atomic write.
func (i *Importer) Import(ctx context.Context, r io.Reader) (Result, error) {
	start := time.Now()
	batchID := uuid.New().String()
	logger := i.logger.With(zap.String("batch_id", batchID))

	events, err := i.parse(r, logger)
	if err != nil {
		i.metrics.RecordImport(false, 0, time.Since(start))
		logger.Error("import rejected", zap.Error(err))
		return Result{}, err
	}

	enriched := i.enrich(events, logger)

	n, err := i.store.BulkInsert(ctx, events)
	if err != nil {
		i.metrics.RecordStoreError("bulk_insert")
		i.metrics.RecordImport(false, 0, time.Since(start))
		logger.Error("import rolled back", zap.Int("rows", len(events)), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %w", ErrImportFailed, err)
	}

	if i.cache != nil {
		if err := i.cache.Invalidate(ctx); err != nil {
			logger.Warn("failed to invalidate report cache", zap.Error(err))
		}
	}

	res := Result{
		BatchID:  batchID,
		Rows:     n,
		Enriched: enriched,
		Duration: time.Since(start),
	}
	for _, ev := range events {
		if classify.IsInvalid(ev) {
			res.Invalid++
		}
	}

	i.metrics.RecordImport(true, n, res.Duration)
	logger.Info("import committed",
		zap.Int64("rows", res.Rows),
		zap.Int64("invalid", res.Invalid),
		zap.Int64("asn_enriched", res.Enriched),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (i *Importer) parse(r io.Reader, logger *zap.Logger) ([]models.Event, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrImportFailed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", ErrImportFailed, err)
	}

	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var (
		events []models.Event
		vals   = make([]string, models.ExpectedColumns)
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrImportFailed, err)
		}

		for c, pos := range index {
			vals[c] = rec[pos]
		}
		ev, err := models.EventFromValues(vals)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrImportFailed, line, err)
		}

		events = append(events, ev)

		if i.progressEvery > 0 && len(events)%i.progressEvery == 0 {
			logger.Debug("parsing import", zap.Int("rows", len(events)))
		}
	}
	return events, nil
}

// enrich fills blank ASNs from the resolver, written the way the file's own
// ASN values are written so that both group together in reports. Files
// without any ASN values get "AS15169 Google LLC" style labels.
func (i *Importer) enrich(events []models.Event, logger *zap.Logger) int64 {
	if i.resolver == nil {
		return 0
	}

	style, known := geo.StyleNamed, false
	for _, ev := range events {
		if style, known = geo.DetectLabelStyle(ev.ASN); known {
			break
		}
	}
	if !known {
		style = geo.StyleNamed
	}

	var enriched int64
	for k := range events {
		ev := &events[k]
		if strings.TrimSpace(ev.ASN) != "" {
			continue
		}
		if info, ok := i.resolver.Lookup(ev.IP); ok {
			ev.ASN = info.Format(style)
			enriched++
		}
	}
	if enriched > 0 {
		logger.Debug("filled missing ASNs",
			zap.Int64("rows", enriched),
			zap.Int("label_style", int(style)),
		)
	}
	return enriched
}

// columnIndex maps each schema column to its position in header. Extra
// columns are ignored; a missing one rejects the file.
func columnIndex(header []string) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		pos[h] = i
	}

	index := make([]int, len(models.Columns))
	var missing []string
	for c, col := range models.Columns {
		p, ok := pos[col.Header]
		if !ok {
			missing = append(missing, col.Header)
			continue
		}
		index[c] = p
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrImportFailed, strings.Join(missing, ", "))
	}
	return index, nil
}
