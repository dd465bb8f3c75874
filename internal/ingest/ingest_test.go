package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/radiusdt/ivt-audit/internal/classify"
	"github.com/radiusdt/ivt-audit/internal/geo"
	"github.com/radiusdt/ivt-audit/internal/models"
	"github.com/radiusdt/ivt-audit/internal/storage"
	"go.uber.org/zap"
)

const header = "IP,URL,ASN,Useragent,ip_timezone,device_timezone,utm_source,utm_campaign,gclid,msclkid,threat_group,threat_type,timestamp\n"

const sample = header +
	`10.0.0.1,/pricing,AS15169 Google LLC,"Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/120.0",America/New_York,Europe/Berlin,google,brand,abc,,Bot,Headless,2024-07-15 20:33:10` + "\n" +
	`10.0.0.2,/,,Mozilla/5.0 (Macintosh) Safari/605.1.15,UTC,UTC,,,,,,,2024-07-15 09:00:00` + "\n"

type failingStore struct {
	storage.EventStore
	err error
}

func (f failingStore) BulkInsert(context.Context, []models.Event) (int64, error) {
	return 0, f.err
}

type countingCache struct {
	invalidations int
}

func (c *countingCache) Get(context.Context, string, any) (int64, bool, error) {
	return 0, false, nil
}
func (c *countingCache) Set(context.Context, int64, string, any) error { return nil }
func (c *countingCache) Invalidate(context.Context) error {
	c.invalidations++
	return nil
}

type staticProvider map[string]geo.ASNInfo

func (p staticProvider) LookupASN(ip string) (geo.ASNInfo, error) {
	info, ok := p[ip]
	if !ok {
		return geo.ASNInfo{}, errors.New("not found")
	}
	return info, nil
}

func (p staticProvider) Close() error { return nil }

func TestImport(t *testing.T) {
	store := storage.NewInMemoryEventStore()
	cache := &countingCache{}
	imp := NewImporter(store, zap.NewNop(), WithCache(cache))

	res, err := imp.Import(context.Background(), strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Rows != 2 || res.Invalid != 1 {
		t.Errorf("Import() = %+v, want 2 rows, 1 invalid", res)
	}
	if res.BatchID == "" {
		t.Error("Import() returned empty batch id")
	}
	if cache.invalidations != 1 {
		t.Errorf("cache invalidated %d times, want 1", cache.invalidations)
	}

	events, _ := store.ScanEvents(context.Background())
	if len(events) != 2 {
		t.Fatalf("store holds %d events, want 2", len(events))
	}
	first := events[0]
	if first.IP != "10.0.0.1" || first.ThreatGroup != "Bot" || first.GCLID != "abc" || first.MSCLKID != "" {
		t.Errorf("first event = %+v", first)
	}
	if !strings.Contains(first.UserAgent, "HeadlessChrome") {
		t.Errorf("quoted user agent not parsed: %q", first.UserAgent)
	}
	if events[1].ThreatGroup != "" || events[1].ASN != "" {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestImportReorderedColumns(t *testing.T) {
	csvData := "timestamp,IP,URL,ASN,Useragent,ip_timezone,device_timezone,utm_source,utm_campaign,gclid,msclkid,threat_group,threat_type,extra\n" +
		"2024-07-15 20:33:10,10.0.0.9,/x,,,UTC,UTC,,,,,,,ignored\n"

	store := storage.NewInMemoryEventStore()
	if _, err := NewImporter(store, zap.NewNop()).Import(context.Background(), strings.NewReader(csvData)); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	events, _ := store.ScanEvents(context.Background())
	if events[0].IP != "10.0.0.9" || events[0].Timestamp != "2024-07-15 20:33:10" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestImportRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty file", ""},
		{"missing column", strings.Replace(header, ",msclkid", "", 1) + "a,b,c,d,e,f,g,h,i,j,k,l\n"},
		{"short row", header + "10.0.0.1,/\n"},
		{"bad quoting", header + `10.0.0.1,"/open,,,,,,,,,,,` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewInMemoryEventStore()
			_, err := NewImporter(store, zap.NewNop()).Import(context.Background(), strings.NewReader(tt.data))
			if !errors.Is(err, ErrImportFailed) {
				t.Fatalf("Import() error = %v, want ErrImportFailed", err)
			}
			if n, _ := store.Count(context.Background()); n != 0 {
				t.Errorf("rejected import stored %d events", n)
			}
		})
	}
}

func TestImportStoreFailure(t *testing.T) {
	boom := errors.New("connection reset")
	cache := &countingCache{}
	imp := NewImporter(failingStore{err: boom}, zap.NewNop(), WithCache(cache))

	_, err := imp.Import(context.Background(), strings.NewReader(sample))
	if !errors.Is(err, ErrImportFailed) || !errors.Is(err, boom) {
		t.Errorf("Import() error = %v, want ErrImportFailed wrapping store error", err)
	}
	if cache.invalidations != 0 {
		t.Error("cache invalidated after failed import")
	}
}

func TestImportEnrichesASN(t *testing.T) {
	resolver := geo.NewResolver(staticProvider{
		"10.0.0.2": {Number: 64500, Organization: "Example Hosting"},
	}, 0, nil)
	store := storage.NewInMemoryEventStore()

	res, err := NewImporter(store, zap.NewNop(), WithResolver(resolver)).
		Import(context.Background(), strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Enriched != 1 {
		t.Errorf("Enriched = %d, want 1", res.Enriched)
	}

	events, _ := store.ScanEvents(context.Background())
	if events[0].ASN != "AS15169 Google LLC" {
		t.Errorf("existing ASN overwritten: %q", events[0].ASN)
	}
	if events[1].ASN != "AS64500 Example Hosting" {
		t.Errorf("blank ASN not filled: %q", events[1].ASN)
	}
}

func TestImportEnrichesASNInFileStyle(t *testing.T) {
	provider := staticProvider{
		"10.0.0.1": {Number: 64500, Organization: "Example Hosting"},
		"10.0.0.3": {Number: 15169, Organization: "Google LLC"},
	}
	tests := []struct {
		name   string
		vendor string
		want   string
	}{
		{"prefixed", "AS15169", "AS15169"},
		{"number", "15169", "15169"},
		{"named", "AS15169 Google LLC", "AS15169 Google LLC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Blank rows come before the first vendor ASN.
			data := header +
				"10.0.0.1,/,,,UTC,UTC,,,,,,,2024-07-15 08:00:00\n" +
				"10.0.0.3,/,,,UTC,UTC,,,,,,,2024-07-15 09:00:00\n" +
				"10.0.0.2,/," + tt.vendor + ",,UTC,UTC,,,,,,,2024-07-15 10:00:00\n"

			store := storage.NewInMemoryEventStore()
			imp := NewImporter(store, zap.NewNop(), WithResolver(geo.NewResolver(provider, 0, nil)))
			res, err := imp.Import(context.Background(), strings.NewReader(data))
			if err != nil {
				t.Fatalf("Import() error = %v", err)
			}
			if res.Enriched != 2 {
				t.Errorf("Enriched = %d, want 2", res.Enriched)
			}

			events, _ := store.ScanEvents(context.Background())
			if events[1].ASN != tt.want {
				t.Errorf("filled ASN = %q, want %q to group with vendor value", events[1].ASN, tt.want)
			}
			if events[1].ASN != events[2].ASN {
				t.Errorf("same network written as %q and %q", events[1].ASN, events[2].ASN)
			}
		})
	}
}

func TestImportCountsInvalid(t *testing.T) {
	data := header +
		"10.0.0.1,/,,,UTC,UTC,,,,,Bot,Headless,2024-07-15 08:00:00\n" +
		"10.0.0.2,/,,,UTC,UTC,,,,,,Headless,2024-07-15 08:00:00\n" +
		"10.0.0.3,/,,,UTC,UTC,,,,,Data Center,,2024-07-15 08:00:00\n" +
		"10.0.0.4,/,,,UTC,UTC,,,,,,,2024-07-15 08:00:00\n"

	store := storage.NewInMemoryEventStore()
	res, err := NewImporter(store, zap.NewNop()).Import(context.Background(), strings.NewReader(data))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	events, _ := store.ScanEvents(context.Background())
	var want int64
	for _, ev := range events {
		if classify.IsInvalid(ev) {
			want++
		}
	}
	if want != 2 || res.Invalid != want {
		t.Errorf("Invalid = %d, want %d (threat type alone does not make an event invalid)", res.Invalid, want)
	}
}

func TestImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	if err := os.WriteFile(path, []byte("\ufeff"+sample), 0o644); err != nil {
		t.Fatal(err)
	}

	store := storage.NewInMemoryEventStore()
	imp := NewImporter(store, zap.NewNop())
	if _, err := imp.ImportFile(context.Background(), path); err != nil {
		t.Fatalf("ImportFile() error = %v", err)
	}

	if _, err := imp.ImportFile(context.Background(), path+".missing"); !errors.Is(err, ErrImportFailed) {
		t.Errorf("ImportFile(missing) error = %v, want ErrImportFailed", err)
	}
}
