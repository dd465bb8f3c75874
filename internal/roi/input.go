package roi

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidInput is returned for pricing inputs that are not usable
// numbers. No computation is done when it is returned.
var ErrInvalidInput = errors.New("invalid input")

// Inputs are the operator-supplied prices the cost model runs on.
type Inputs struct {
	GoogleCPC   float64 `json:"google_cpc"`
	BingCPC     float64 `json:"bing_cpc"`
	MonthlyCost float64 `json:"monthly_cost"`
	TrialDays   int     `json:"trial_days"`
}

// Validate rejects negative prices and non-positive trial lengths.
func (in Inputs) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"google_cpc", in.GoogleCPC},
		{"bing_cpc", in.BingCPC},
		{"monthly_cost", in.MonthlyCost},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidInput, f.name)
		}
	}
	if in.TrialDays <= 0 {
		return fmt.Errorf("%w: trial_days must be a positive integer", ErrInvalidInput)
	}
	return nil
}

// ParseInputs parses raw text as typed at a prompt or passed in a query
// string. An empty trial length defaults to DefaultTrialDays; a leading
// "$" on prices is accepted.
func ParseInputs(googleCPC, bingCPC, monthlyCost, trialDays string) (Inputs, error) {
	var in Inputs
	var err error

	if in.GoogleCPC, err = parseAmount("google_cpc", googleCPC); err != nil {
		return Inputs{}, err
	}
	if in.BingCPC, err = parseAmount("bing_cpc", bingCPC); err != nil {
		return Inputs{}, err
	}
	if in.MonthlyCost, err = parseAmount("monthly_cost", monthlyCost); err != nil {
		return Inputs{}, err
	}

	in.TrialDays = DefaultTrialDays
	if s := strings.TrimSpace(trialDays); s != "" {
		if in.TrialDays, err = strconv.Atoi(s); err != nil {
			return Inputs{}, fmt.Errorf("%w: trial_days %q is not an integer", ErrInvalidInput, trialDays)
		}
	}

	if err := in.Validate(); err != nil {
		return Inputs{}, err
	}
	return in, nil
}

func parseAmount(name, raw string) (float64, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidInput, name)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", ErrInvalidInput, name, raw)
	}
	return v, nil
}
