// Package aggregate groups traffic events by a derived key and reports how
// much of each group was flagged invalid.
package aggregate

import (
	"math"
	"sort"

	"github.com/radiusdt/ivt-audit/internal/classify"
	"github.com/radiusdt/ivt-audit/internal/models"
)

// GroupStat is one row of a grouped report.
type GroupStat[K comparable] struct {
	Key        K       `json:"key"`
	Total      int64   `json:"total_events"`
	Invalid    int64   `json:"invalid_events"`
	InvalidPct float64 `json:"invalid_pct"`
}

// KeyFunc derives the group key of an event. Returning false drops the
// event from this aggregation only.
type KeyFunc[K comparable] func(ev models.Event) (K, bool)

// Option tunes a single Aggregate call.
type Option func(*options)

type order int

const (
	orderByInvalid order = iota
	orderByTotal
	orderByKey
)

type options struct {
	filter func(models.Event) bool
	limit  int
	order  order
}

// WithFilter keeps only events for which pred returns true.
func WithFilter(pred func(models.Event) bool) Option {
	return func(o *options) { o.filter = pred }
}

// WithLimit caps the result to the first n rows after sorting. n <= 0 means
// no cap.
func WithLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

// OrderByKey sorts rows by key ascending instead of by invalid count.
func OrderByKey() Option {
	return func(o *options) { o.order = orderByKey }
}

// OrderByTotal sorts rows by total event count descending.
func OrderByTotal() Option {
	return func(o *options) { o.order = orderByTotal }
}

// Percent returns part/total as a percentage rounded to two decimals, or 0
// when total is 0.
func Percent(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(100 * float64(part) / float64(total))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Aggregate groups events by key and counts totals and invalid events per
// group. Rows are ordered by invalid count descending with ties broken by
// compare on the key, unless another order option is given.
func Aggregate[K comparable](events []models.Event, key KeyFunc[K], compare func(a, b K) int, opts ...Option) []GroupStat[K] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	statsMap := make(map[K]*GroupStat[K])
	for _, ev := range events {
		if o.filter != nil && !o.filter(ev) {
			continue
		}
		k, ok := key(ev)
		if !ok {
			continue
		}

		st, ok := statsMap[k]
		if !ok {
			st = &GroupStat[K]{Key: k}
			statsMap[k] = st
		}
		st.Total++
		if classify.IsInvalid(ev) {
			st.Invalid++
		}
	}

	result := make([]GroupStat[K], 0, len(statsMap))
	for _, st := range statsMap {
		st.InvalidPct = Percent(st.Invalid, st.Total)
		result = append(result, *st)
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		switch o.order {
		case orderByInvalid:
			if a.Invalid != b.Invalid {
				return a.Invalid > b.Invalid
			}
		case orderByTotal:
			if a.Total != b.Total {
				return a.Total > b.Total
			}
		}
		return compare(a.Key, b.Key) < 0
	})

	if o.limit > 0 && len(result) > o.limit {
		result = result[:o.limit]
	}
	return result
}
