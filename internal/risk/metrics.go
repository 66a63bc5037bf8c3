package risk

import (
	"math"
	"sort"
	"time"
)

// tradingDaysPerYear is the annualization base for volatility and ratio math
const tradingDaysPerYear = 252

// minObservations is the number of return observations required before any
// metric is computed. Shorter series produce a zeroed Metrics value.
const minObservations = 10

// ComputeMetrics derives the full risk metric set from a daily return
// series. Series shorter than minObservations yield zeroed metrics, not an
// error.
func ComputeMetrics(returns []float64, confidence, riskFreeRate float64) Metrics {
	m := Metrics{Timestamp: time.Now(), Observations: len(returns)}
	if len(returns) < minObservations {
		return m
	}

	m.VaR1d = ValueAtRisk(returns, confidence, 1)
	m.VaR5d = ValueAtRisk(returns, confidence, 5)
	m.VaR10d = ValueAtRisk(returns, confidence, 10)
	m.ExpectedShortfall = ExpectedShortfall(returns, confidence)
	m.MaxDrawdown, m.CurrentDrawdown = Drawdown(returns)
	m.Volatility = stddev(returns) * math.Sqrt(tradingDaysPerYear)
	m.SharpeRatio = SharpeRatio(returns, riskFreeRate)
	m.SortinoRatio = SortinoRatio(returns, riskFreeRate)
	m.CalmarRatio = CalmarRatio(returns, m.MaxDrawdown)
	m.Skewness = skewness(returns)
	m.Kurtosis = kurtosis(returns)
	return m
}

// ValueAtRisk computes the historical VaR over the given horizon in days.
// The one-day VaR is the absolute value of the (1-confidence) percentile of
// the return series, scaled by the square root of the horizon.
func ValueAtRisk(returns []float64, confidence float64, horizonDays int) float64 {
	if len(returns) < minObservations {
		return 0
	}
	var1d := math.Abs(percentile(returns, (1-confidence)*100))
	return var1d * math.Sqrt(float64(horizonDays))
}

// ExpectedShortfall is the mean loss in the tail at or below the VaR
// percentile.
func ExpectedShortfall(returns []float64, confidence float64) float64 {
	if len(returns) < minObservations {
		return 0
	}
	threshold := percentile(returns, (1-confidence)*100)
	var sum float64
	var n int
	for _, r := range returns {
		if r <= threshold {
			sum += r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Abs(sum / float64(n))
}

// Drawdown returns the maximum and current peak-to-trough decline of the
// cumulative return path.
func Drawdown(returns []float64) (maxDD, currentDD float64) {
	if len(returns) < 2 {
		return 0, 0
	}
	cumulative := 1.0
	peak := 1.0
	for _, r := range returns {
		cumulative *= 1 + r
		if cumulative > peak {
			peak = cumulative
		}
		dd := (peak - cumulative) / peak
		if dd > maxDD {
			maxDD = dd
		}
		currentDD = dd
	}
	return maxDD, currentDD
}

// SharpeRatio is the annualized excess return over annualized volatility
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < minObservations {
		return 0
	}
	std := stddev(returns)
	if std == 0 {
		return 0
	}
	annReturn := mean(returns) * tradingDaysPerYear
	annVol := std * math.Sqrt(tradingDaysPerYear)
	return (annReturn - riskFreeRate) / annVol
}

// SortinoRatio penalizes only downside volatility. A series with no
// negative returns has unbounded Sortino and reports +Inf.
func SortinoRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < minObservations {
		return 0
	}
	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	if len(negative) == 0 {
		return math.Inf(1)
	}
	downside := stddev(negative)
	if downside == 0 {
		return 0
	}
	annReturn := mean(returns) * tradingDaysPerYear
	annDownside := downside * math.Sqrt(tradingDaysPerYear)
	return (annReturn - riskFreeRate) / annDownside
}

// CalmarRatio is the annualized return over the maximum drawdown
func CalmarRatio(returns []float64, maxDrawdown float64) float64 {
	if len(returns) < minObservations || maxDrawdown == 0 {
		return 0
	}
	return mean(returns) * tradingDaysPerYear / maxDrawdown
}

// ReturnsFromValues converts a portfolio value series into simple returns,
// skipping intervals whose starting value is not positive.
func ReturnsFromValues(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] > 0 {
			returns = append(returns, (values[i]-values[i-1])/values[i-1])
		}
	}
	return returns
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the population standard deviation
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mu := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// skewness is the bias-adjusted Fisher-Pearson sample skewness
func skewness(xs []float64) float64 {
	n := float64(len(xs))
	if n < 3 {
		return 0
	}
	mu := mean(xs)
	var m2, m3 float64
	for _, x := range xs {
		d := x - mu
		m2 += d * d
		m3 += d * d * d
	}
	m2 /= n
	m3 /= n
	if m2 == 0 {
		return 0
	}
	g1 := m3 / math.Pow(m2, 1.5)
	return math.Sqrt(n*(n-1)) / (n - 2) * g1
}

// kurtosis is the bias-adjusted sample excess kurtosis
func kurtosis(xs []float64) float64 {
	n := float64(len(xs))
	if n < 4 {
		return 0
	}
	mu := mean(xs)
	var m2, m4 float64
	for _, x := range xs {
		d := x - mu
		m2 += d * d
		m4 += d * d * d * d
	}
	s2 := m2 / (n - 1)
	if s2 == 0 {
		return 0
	}
	term := n * (n + 1) / ((n - 1) * (n - 2) * (n - 3)) * m4 / (s2 * s2)
	return term - 3*(n-1)*(n-1)/((n-2)*(n-3))
}

// percentile computes the q-th percentile (0..100) of the series using
// linear interpolation between order statistics.
func percentile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 100 {
		return sorted[len(sorted)-1]
	}
	pos := q / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
