package mlmodel

import "math"

// Bias is 100·ln(Σpredicted / Σactual). It is 0 when both sums are 0 and
// infinite when exactly one of them is.
func Bias(predicted, actual []float64) float64 {
	var p, a float64
	for _, v := range predicted {
		p += v
	}
	for _, v := range actual {
		a += v
	}
	switch {
	case p == 0 && a == 0:
		return 0
	case a == 0:
		return math.Inf(1)
	case p == 0:
		return math.Inf(-1)
	}
	return 100 * math.Log(p/a)
}

// SMAPE is the symmetric mean absolute percentage error in percent,
// aggregated over all pairs: 100·Σ|p−a| / Σ((|p|+|a|)/2). It is 0 when
// every pair is 0.
func SMAPE(predicted, actual []float64) float64 {
	var num, den float64
	for i, a := range actual {
		p := predicted[i]
		num += math.Abs(p - a)
		den += (math.Abs(p) + math.Abs(a)) / 2
	}
	if den == 0 {
		return 0
	}
	return 100 * num / den
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
