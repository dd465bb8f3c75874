package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/radiusdt/ivt-audit/internal/models"
)

func TestInMemoryEventStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryEventStore(models.Event{IP: "1.1.1.1", Timestamp: "2024-03-01 10:00:00"})

	n, err := s.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Count() = %d, %v; want 1", n, err)
	}

	before, _ := s.ScanEvents(ctx)

	inserted, err := s.BulkInsert(ctx, []models.Event{
		{IP: "2.2.2.2", ThreatGroup: "Bot"},
		{IP: "3.3.3.3"},
	})
	if err != nil {
		t.Fatalf("BulkInsert() error = %v", err)
	}
	if inserted != 2 {
		t.Errorf("BulkInsert() = %d, want 2", inserted)
	}

	after, err := s.ScanEvents(ctx)
	if err != nil {
		t.Fatalf("ScanEvents() error = %v", err)
	}
	if len(after) != 3 {
		t.Fatalf("ScanEvents() returned %d events, want 3", len(after))
	}
	if after[1].IP != "2.2.2.2" || after[2].IP != "3.3.3.3" {
		t.Errorf("insert order not preserved: %+v", after)
	}
	if len(before) != 1 {
		t.Errorf("earlier scan result changed length to %d", len(before))
	}

	after[0].IP = "mutated"
	again, _ := s.ScanEvents(ctx)
	if again[0].IP != "1.1.1.1" {
		t.Error("ScanEvents() result aliases store memory")
	}
}

func TestInMemoryEventStoreCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewInMemoryEventStore()
	if _, err := s.ScanEvents(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ScanEvents() error = %v, want context.Canceled", err)
	}
	if _, err := s.BulkInsert(ctx, []models.Event{{IP: "x"}}); !errors.Is(err, context.Canceled) {
		t.Errorf("BulkInsert() error = %v, want context.Canceled", err)
	}
	if n, _ := s.Count(context.Background()); n != 0 {
		t.Errorf("canceled insert stored %d events", n)
	}
}

func TestValidateTable(t *testing.T) {
	tests := []struct {
		name  string
		table string
		ok    bool
	}{
		{"plain", "ivt_events", true},
		{"leading underscore", "_events", true},
		{"digits", "events2024", true},
		{"leading digit", "2024events", false},
		{"quote", `events"; DROP TABLE x`, false},
		{"schema qualified", "public.events", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTable(tt.table)
			if (err == nil) != tt.ok {
				t.Errorf("validateTable(%q) error = %v, want ok=%v", tt.table, err, tt.ok)
			}
			if err != nil && !errors.Is(err, ErrInvalidTable) {
				t.Errorf("error %v does not wrap ErrInvalidTable", err)
			}
		})
	}
}

func TestPostgresColumnsQueryScopedToSchema(t *testing.T) {
	q := strings.Join(strings.Fields(pgColumnsQuery), " ")
	for _, want := range []string{
		"table_schema = current_schema()",
		"table_name = $1",
		"ORDER BY ordinal_position",
	} {
		if !strings.Contains(q, want) {
			t.Errorf("columns query %q lacks %q", q, want)
		}
	}
}

func TestReportCacheKeysPerGeneration(t *testing.T) {
	if generationKeyFor(3, "full") == generationKeyFor(4, "full") {
		t.Error("generations share a cache key")
	}
	if got := generationKeyFor(3, "full"); got != "ivt:report:3:full" {
		t.Errorf("generationKeyFor() = %q", got)
	}
}

func TestCheckColumns(t *testing.T) {
	all := models.DBColumnNames()
	if err := checkColumns(all); err != nil {
		t.Errorf("checkColumns(all) error = %v", err)
	}

	err := checkColumns(all[:12])
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("checkColumns(12 columns) error = %v, want ErrSchemaMismatch", err)
	}

	renamed := append([]string(nil), all...)
	renamed[0] = "ip"
	err = checkColumns(renamed)
	if !errors.Is(err, ErrSchemaMismatch) || !strings.Contains(err.Error(), "ipv6_string") {
		t.Errorf("checkColumns(renamed) error = %v, want missing ipv6_string", err)
	}
}

func TestRowValuesNullsEmptyNullableColumns(t *testing.T) {
	ev := models.Event{IP: "1.1.1.1", URL: "/", IPTimezone: "", Timestamp: "2024-03-01 10:00:00"}
	row := rowValues(ev)
	if len(row) != models.ExpectedColumns {
		t.Fatalf("rowValues() returned %d values", len(row))
	}

	for i, c := range models.Columns {
		if c.Nullable {
			p, ok := row[i].(*string)
			if !ok || p != nil {
				t.Errorf("column %s = %#v, want nil *string", c.DBName, row[i])
			}
			continue
		}
		if _, ok := row[i].(string); !ok {
			t.Errorf("column %s = %#v, want string", c.DBName, row[i])
		}
	}
}

type fakeRow struct {
	vals []*string
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		*(d.(**string)) = r.vals[i]
	}
	return nil
}

func TestScanEvent(t *testing.T) {
	vals := make([]*string, models.ExpectedColumns)
	vals[0] = models.NullIfEmpty("10.0.0.1")
	vals[10] = models.NullIfEmpty("Bot")
	vals[12] = models.NullIfEmpty("2024-03-01 20:15:00")

	ev, err := scanEvent(fakeRow{vals: vals})
	if err != nil {
		t.Fatalf("scanEvent() error = %v", err)
	}
	if ev.IP != "10.0.0.1" || ev.ThreatGroup != "Bot" || ev.ASN != "" {
		t.Errorf("scanEvent() = %+v", ev)
	}

	boom := errors.New("boom")
	if _, err := scanEvent(fakeRow{err: boom}); !errors.Is(err, boom) {
		t.Errorf("scanEvent() error = %v, want boom", err)
	}
}
