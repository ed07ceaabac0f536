// Package contrast compares fitted spectra between recalled and not
// recalled events: group deltas at every coordinate, independent two-sample
// t-tests when per-event fits are available, and assembly of the final
// result in the caller's axis orientation.
package contrast

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// twoSampleTTest compares two groups of raw per-event values. NaN entries
// are excluded per group. Degenerate comparisons (fewer than two finite
// values in either group, zero standard error, or a non-positive df) return
// NaN for both the statistic and the p-value rather than a fabricated
// significance.
//
// welch false runs the pooled-variance Student's t-test; welch true uses
// the unequal-variance form with Welch-Satterthwaite degrees of freedom.
func twoSampleTTest(x, y []float64, welch bool) (tStat, pValue float64) {
	xs := finiteValues(x)
	ys := finiteValues(y)
	n1, n2 := float64(len(xs)), float64(len(ys))
	if n1 < 2 || n2 < 2 {
		return math.NaN(), math.NaN()
	}

	m1, m2 := stat.Mean(xs, nil), stat.Mean(ys, nil)
	v1, v2 := stat.Variance(xs, nil), stat.Variance(ys, nil)

	var se, df float64
	if welch {
		a, b := v1/n1, v2/n2
		se = math.Sqrt(a + b)
		df = (a + b) * (a + b) / (a*a/(n1-1) + b*b/(n2-1))
	} else {
		df = n1 + n2 - 2
		pooled := ((n1-1)*v1 + (n2-1)*v2) / df
		se = math.Sqrt(pooled * (1/n1 + 1/n2))
	}
	if se == 0 || math.IsNaN(se) || df <= 0 || math.IsNaN(df) {
		return math.NaN(), math.NaN()
	}

	tStat = (m1 - m2) / se
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	pValue = 2 * (1 - tDist.CDF(math.Abs(tStat)))
	return tStat, pValue
}

// nanMean averages the finite values, NaN when none remain
func nanMean(v []float64) float64 {
	sum, n := 0.0, 0
	for _, x := range v {
		if math.IsNaN(x) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func finiteValues(v []float64) []float64 {
	out := make([]float64, 0, len(v))
	for _, x := range v {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}
