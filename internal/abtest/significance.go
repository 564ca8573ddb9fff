package abtest

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/foxzi/outreach/internal/metrics"
)

// Metric selects which counter the significance check compares.
type Metric string

const (
	MetricOpens   Metric = "opens"
	MetricReplies Metric = "replies"
)

const (
	// Minimum sends per variant before the chi-squared test is meaningful.
	minSampleSize = 50

	significanceLevel = 0.05
)

// Decision is the outcome of a significance check. VariantRates is always
// populated so callers can display progress before a verdict; WinnerID is
// set only when the result is significant.
type Decision struct {
	Significant  bool               `json:"significant"`
	Reason       string             `json:"reason,omitempty"`
	PValue       float64            `json:"p_value,omitempty"`
	WinnerID     string             `json:"winner_id,omitempty"`
	WinnerRate   float64            `json:"winner_rate,omitempty"`
	VariantRates map[string]float64 `json:"variant_rates"`
}

// CheckSignificance runs the decision procedure over the test's current
// counters. This is a batch test: polling it repeatedly as data accumulates
// inflates the false-positive rate, which is accepted behavior here.
func (s *Store) CheckSignificance(testID string, metric Metric) (*Decision, error) {
	if metric != MetricOpens && metric != MetricReplies {
		return nil, fmt.Errorf("invalid metric %q", metric)
	}

	variants, err := s.Variants(testID)
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("test %s: %w", testID, ErrNotFound)
	}

	d := Evaluate(variants, metric)
	if d.Significant {
		metrics.IncSignificant()
	}
	return d, nil
}

// Evaluate applies the chi-squared decision procedure to a variant
// snapshot.
func Evaluate(variants []Variant, metric Metric) *Decision {
	rates := make(map[string]float64, len(variants))
	for _, v := range variants {
		rates[v.ID] = successRate(v, metric)
	}

	if len(variants) < 2 {
		return &Decision{
			Reason:       "need at least 2 variants",
			VariantRates: rates,
		}
	}

	minSends := variants[0].Sends
	for _, v := range variants[1:] {
		if v.Sends < minSends {
			minSends = v.Sends
		}
	}
	if minSends < minSampleSize {
		return &Decision{
			Reason:       fmt.Sprintf("need %d+ sends per variant (min: %d)", minSampleSize, minSends),
			VariantRates: rates,
		}
	}

	p := chiSquaredP(variants, metric)

	d := &Decision{
		Significant:  p < significanceLevel,
		PValue:       p,
		VariantRates: rates,
	}

	// Winner: highest success rate, first occurrence breaking ties.
	winnerIdx := 0
	for i, v := range variants {
		if successRate(v, metric) > successRate(variants[winnerIdx], metric) {
			winnerIdx = i
		}
	}
	d.WinnerRate = successRate(variants[winnerIdx], metric)
	if d.Significant {
		d.WinnerID = variants[winnerIdx].ID
	}

	return d
}

func successRate(v Variant, metric Metric) float64 {
	if metric == MetricOpens {
		return v.OpenRate()
	}
	return v.ReplyRate()
}

func successCount(v Variant, metric Metric) int {
	if metric == MetricOpens {
		return v.Opens
	}
	return v.Replies
}

// chiSquaredP computes the p-value of the chi-squared test of independence
// over the 2xk successes/failures contingency table.
func chiSquaredP(variants []Variant, metric Metric) float64 {
	k := len(variants)

	successes := make([]float64, k)
	failures := make([]float64, k)
	var successTotal, failureTotal, n float64

	for i, v := range variants {
		succ := float64(successCount(v, metric))
		fail := float64(v.Sends) - succ
		successes[i] = succ
		failures[i] = fail
		successTotal += succ
		failureTotal += fail
		n += float64(v.Sends)
	}

	// A degenerate table (a row of zeros) has no variation to test.
	if successTotal == 0 || failureTotal == 0 || n == 0 {
		return 1
	}

	var chi2 float64
	for i := range variants {
		colTotal := successes[i] + failures[i]
		expSucc := successTotal * colTotal / n
		expFail := failureTotal * colTotal / n
		chi2 += (successes[i] - expSucc) * (successes[i] - expSucc) / expSucc
		chi2 += (failures[i] - expFail) * (failures[i] - expFail) / expFail
	}

	dist := distuv.ChiSquared{K: float64(k - 1)}
	return dist.Survival(chi2)
}
