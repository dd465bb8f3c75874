package roi

import (
	"github.com/radiusdt/ivt-audit/internal/aggregate"
	"github.com/radiusdt/ivt-audit/internal/classify"
)

// Recommendation grades a projection.
type Recommendation string

const (
	RecommendStrong       Recommendation = "strong"
	RecommendPositive     Recommendation = "positive"
	RecommendNotJustified Recommendation = "not_justified"
)

// Recommend grades the projected monthly ROI: above 100% the product pays
// for itself with room to spare, above 0% it still returns value.
func Recommend(p Projection) Recommendation {
	switch {
	case p.MonthlyROIPct > 100:
		return RecommendStrong
	case p.MonthlyROIPct > 0:
		return RecommendPositive
	default:
		return RecommendNotJustified
	}
}

// Analysis is the full ROI result for one set of inputs.
type Analysis struct {
	Inputs         Inputs         `json:"inputs"`
	Costs          Costs          `json:"costs"`
	Projection     Projection     `json:"projection"`
	NetMonthly     float64        `json:"net_monthly_savings"`
	Recommendation Recommendation `json:"recommendation"`
}

// Analyze prices the paid traffic view with validated inputs.
func Analyze(paid []aggregate.GroupStat[classify.Source], in Inputs) (Analysis, error) {
	if err := in.Validate(); err != nil {
		return Analysis{}, err
	}

	costs := CalculateCosts(paid, in.GoogleCPC, in.BingCPC)
	proj := Project(costs.TotalWaste, in.MonthlyCost, in.TrialDays)

	return Analysis{
		Inputs:         in,
		Costs:          costs,
		Projection:     proj,
		NetMonthly:     proj.MonthlySavings - in.MonthlyCost,
		Recommendation: Recommend(proj),
	}, nil
}

// Unit tells a renderer how to format a metric value.
type Unit string

const (
	UnitCount    Unit = "count"
	UnitCurrency Unit = "currency"
	UnitPercent  Unit = "percent"
	UnitDays     Unit = "days"
)

// Metric is one row of the ROI report.
type Metric struct {
	Name  string  `json:"metric"`
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// Rows returns the metric/value table in report order.
func (a Analysis) Rows() []Metric {
	return []Metric{
		{"Google Ads Invalid Clicks", float64(a.Costs.GoogleClicks), UnitCount},
		{"Google Ads CPC", a.Costs.GoogleCPC, UnitCurrency},
		{"Google Ads Waste", a.Costs.GoogleWaste, UnitCurrency},
		{"Bing Ads Invalid Clicks", float64(a.Costs.BingClicks), UnitCount},
		{"Bing Ads CPC", a.Costs.BingCPC, UnitCurrency},
		{"Bing Ads Waste", a.Costs.BingWaste, UnitCurrency},
		{"Total Waste (Trial Period)", a.Costs.TotalWaste, UnitCurrency},
		{"Monthly Savings (Projected)", a.Projection.MonthlySavings, UnitCurrency},
		{"Annual Savings (Projected)", a.Projection.AnnualSavings, UnitCurrency},
		{"Monthly Cost", a.Inputs.MonthlyCost, UnitCurrency},
		{"Monthly ROI", a.Projection.MonthlyROIPct, UnitPercent},
		{"Payback Period (Days)", a.Projection.PaybackDays, UnitDays},
	}
}
