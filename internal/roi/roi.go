// Package roi turns invalid paid clicks into wasted spend and projects what
// blocking them would save against the monthly cost of the verification
// product.
package roi

import (
	"github.com/radiusdt/ivt-audit/internal/aggregate"
	"github.com/radiusdt/ivt-audit/internal/classify"
)

// DaysPerMonth and MonthsPerYear drive the linear projection.
const (
	DaysPerMonth  = 30
	MonthsPerYear = 12

	DefaultTrialDays = 31
)

// Costs is the wasted spend observed during the trial.
type Costs struct {
	GoogleClicks int64   `json:"google_clicks"`
	GoogleCPC    float64 `json:"google_cpc"`
	GoogleWaste  float64 `json:"google_waste"`
	BingClicks   int64   `json:"bing_clicks"`
	BingCPC      float64 `json:"bing_cpc"`
	BingWaste    float64 `json:"bing_waste"`
	TotalWaste   float64 `json:"total_waste"`
}

// Projection extrapolates trial waste to monthly and annual figures.
type Projection struct {
	MonthlySavings float64 `json:"monthly_savings"`
	AnnualSavings  float64 `json:"annual_savings"`
	MonthlyROIPct  float64 `json:"monthly_roi_pct"`
	PaybackDays    float64 `json:"payback_days"`
}

// Waste is the spend lost to invalid clicks on one channel.
func Waste(clicks int64, cpc float64) float64 {
	return float64(clicks) * cpc
}

// InvalidClicks returns the invalid event count of a channel in the paid
// traffic view, or 0 when the channel is absent.
func InvalidClicks(paid []aggregate.GroupStat[classify.Source], src classify.Source) int64 {
	for _, row := range paid {
		if row.Key == src {
			return row.Invalid
		}
	}
	return 0
}

// CalculateCosts prices the invalid Google and Bing clicks of the paid
// traffic view.
func CalculateCosts(paid []aggregate.GroupStat[classify.Source], googleCPC, bingCPC float64) Costs {
	c := Costs{
		GoogleClicks: InvalidClicks(paid, classify.SourceGoogleAds),
		GoogleCPC:    googleCPC,
		BingClicks:   InvalidClicks(paid, classify.SourceBingAds),
		BingCPC:      bingCPC,
	}
	c.GoogleWaste = Waste(c.GoogleClicks, googleCPC)
	c.BingWaste = Waste(c.BingClicks, bingCPC)
	c.TotalWaste = c.GoogleWaste + c.BingWaste
	return c
}

// Project extrapolates the trial waste linearly. trialDays must be positive;
// ParseInputs guarantees that for user-supplied values.
func Project(totalWaste, monthlyCost float64, trialDays int) Projection {
	daily := totalWaste / float64(trialDays)

	p := Projection{
		MonthlySavings: daily * DaysPerMonth,
	}
	p.AnnualSavings = p.MonthlySavings * MonthsPerYear

	if monthlyCost > 0 {
		p.MonthlyROIPct = (p.MonthlySavings - monthlyCost) / monthlyCost * 100
	}
	if totalWaste > 0 {
		p.PaybackDays = monthlyCost / daily
	}
	return p
}
