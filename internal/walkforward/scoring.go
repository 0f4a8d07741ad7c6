package walkforward

import (
	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
)

// Accuracy is the fraction of exact matches
func Accuracy(yTrue, yPred []market.Signal) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return 0
	}
	hits := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}

// F1Macro averages per-class F1 over the classes present in either yTrue or
// yPred. A class with no true or predicted positives scores 0.
func F1Macro(yTrue, yPred []market.Signal) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return 0
	}

	var tp, fp, fn [market.NumClasses]int
	var present [market.NumClasses]bool
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if !t.Valid() || !p.Valid() {
			continue
		}
		present[t] = true
		present[p] = true
		if t == p {
			tp[t]++
		} else {
			fp[p]++
			fn[t]++
		}
	}

	var sum float64
	classes := 0
	for c := 0; c < market.NumClasses; c++ {
		if !present[c] {
			continue
		}
		classes++
		denom := 2*tp[c] + fp[c] + fn[c]
		if denom > 0 {
			sum += 2 * float64(tp[c]) / float64(denom)
		}
	}
	if classes == 0 {
		return 0
	}
	return sum / float64(classes)
}
