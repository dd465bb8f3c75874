package geo

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oschwald/maxminddb-golang"
	"github.com/radiusdt/ivt-audit/internal/metrics"
)

// ASNInfo is the autonomous system an address belongs to.
type ASNInfo struct {
	Number       uint   `maxminddb:"autonomous_system_number"`
	Organization string `maxminddb:"autonomous_system_organization"`
}

// LabelStyle is a way of writing an ASN in the ASN column.
type LabelStyle int

const (
	StyleNamed    LabelStyle = iota // "AS15169 Google LLC"
	StylePrefixed                   // "AS15169"
	StyleNumber                     // "15169"
)

// DetectLabelStyle reports the style an existing ASN value is written in.
// ok is false for values that carry no AS number.
func DetectLabelStyle(asn string) (style LabelStyle, ok bool) {
	asn = strings.TrimSpace(asn)
	if asn == "" {
		return 0, false
	}
	rest := asn
	prefixed := len(asn) > 2 && strings.EqualFold(asn[:2], "AS")
	if prefixed {
		rest = asn[2:]
	}

	n := 0
	for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
		n++
	}
	switch {
	case n == 0:
		return 0, false
	case !prefixed && n == len(rest):
		return StyleNumber, true
	case !prefixed:
		return 0, false
	case n == len(rest):
		return StylePrefixed, true
	default:
		return StyleNamed, true
	}
}

// Format renders the ASN in style. An unknown ASN renders as "".
func (a ASNInfo) Format(style LabelStyle) string {
	if a.Number == 0 {
		return ""
	}
	num := strconv.FormatUint(uint64(a.Number), 10)
	switch style {
	case StyleNumber:
		return num
	case StylePrefixed:
		return "AS" + num
	}
	if a.Organization == "" {
		return "AS" + num
	}
	return "AS" + num + " " + a.Organization
}

// Label renders the ASN as "AS15169 Google LLC".
func (a ASNInfo) Label() string {
	return a.Format(StyleNamed)
}

// ASNProvider looks up the ASN of an IP address.
type ASNProvider interface {
	LookupASN(ip string) (ASNInfo, error)
	Close() error
}

// ErrInvalidIP is returned for addresses that do not parse.
var ErrInvalidIP = errors.New("invalid IP address")

// MaxMindASNProvider implements ASNProvider on a GeoLite2-ASN database.
type MaxMindASNProvider struct {
	reader *maxminddb.Reader
}

// NewMaxMindASNProvider opens the database at dbPath.
func NewMaxMindASNProvider(dbPath string) (*MaxMindASNProvider, error) {
	reader, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ASN database: %w", err)
	}
	return &MaxMindASNProvider{reader: reader}, nil
}

func (m *MaxMindASNProvider) LookupASN(ip string) (ASNInfo, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ASNInfo{}, fmt.Errorf("%w: %s", ErrInvalidIP, ip)
	}

	var info ASNInfo
	if err := m.reader.Lookup(parsed, &info); err != nil {
		return ASNInfo{}, fmt.Errorf("failed to look up %s: %w", ip, err)
	}
	return info, nil
}

// Close closes the ASN database.
func (m *MaxMindASNProvider) Close() error {
	if m.reader != nil {
		return m.reader.Close()
	}
	return nil
}

// Resolver fills in missing ASNs, caching lookups by IP.
type Resolver struct {
	provider ASNProvider
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	cache   map[string]ASNInfo
	order   []string // insertion ring; order[next] is the oldest once full
	next    int
	maxSize int
}

// NewResolver creates a resolver over provider. cacheSize bounds the number
// of remembered addresses.
func NewResolver(provider ASNProvider, cacheSize int, m *metrics.Metrics) *Resolver {
	if cacheSize <= 0 {
		cacheSize = 100000
	}
	return &Resolver{
		provider: provider,
		metrics:  m,
		cache:    make(map[string]ASNInfo),
		order:    make([]string, 0, min(cacheSize, 1024)),
		maxSize:  cacheSize,
	}
}

// Lookup returns the ASN of ip. ok is false when the address is unknown.
// Lookup failures are not errors: an event without an ASN is still a valid
// event.
func (r *Resolver) Lookup(ip string) (info ASNInfo, ok bool) {
	if ip == "" || r.provider == nil {
		return ASNInfo{}, false
	}

	start := time.Now()
	r.mu.RLock()
	info, hit := r.cache[ip]
	r.mu.RUnlock()
	if hit {
		r.metrics.RecordGeoLookup(true, time.Since(start))
		return info, info.Number != 0
	}

	info, err := r.provider.LookupASN(ip)
	if err != nil {
		info = ASNInfo{}
	}

	r.mu.Lock()
	r.store(ip, info)
	r.mu.Unlock()

	r.metrics.RecordGeoLookup(false, time.Since(start))
	return info, info.Number != 0
}

// store caches info for ip, evicting the oldest entry at capacity.
// r.mu must be held.
func (r *Resolver) store(ip string, info ASNInfo) {
	if _, ok := r.cache[ip]; ok {
		r.cache[ip] = info
		return
	}
	if len(r.order) < r.maxSize {
		r.order = append(r.order, ip)
	} else {
		delete(r.cache, r.order[r.next])
		r.order[r.next] = ip
		r.next = (r.next + 1) % r.maxSize
	}
	r.cache[ip] = info
}

// Close releases the underlying provider.
func (r *Resolver) Close() error {
	if r.provider == nil {
		return nil
	}
	return r.provider.Close()
}
