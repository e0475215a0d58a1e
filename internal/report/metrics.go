package report

import (
	"errors"
	"sort"

	"github.com/raphaelgruber/urdufact-go/internal/cost"
)

// ErrNoSamples is returned when a classification has nothing to score.
var ErrNoSamples = errors.New("no labeled samples")

// ClassMetrics are the scores of one class or one average.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// Classification is a per-class and averaged precision/recall/F1 report.
// Undefined ratios are scored as zero.
type Classification struct {
	Classes     map[string]ClassMetrics `json:"classes"`
	Accuracy    float64                 `json:"accuracy"`
	MacroAvg    ClassMetrics            `json:"macro_avg"`
	WeightedAvg ClassMetrics            `json:"weighted_avg"`
}

// Classify scores predicted labels against gold labels. The classes are
// every label seen in either slice.
func Classify(gold, pred []string) (*Classification, error) {
	if len(gold) != len(pred) {
		return nil, errors.New("gold and predicted labels differ in length")
	}
	if len(gold) == 0 {
		return nil, ErrNoSamples
	}

	seen := map[string]struct{}{}
	for i := range gold {
		seen[gold[i]] = struct{}{}
		seen[pred[i]] = struct{}{}
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	c := &Classification{Classes: make(map[string]ClassMetrics, len(labels))}
	correct := 0
	for i := range gold {
		if gold[i] == pred[i] {
			correct++
		}
	}
	c.Accuracy = cost.Round2(float64(correct) / float64(len(gold)))

	var macro, weighted ClassMetrics
	for _, l := range labels {
		var tp, fp, fn int
		for i := range gold {
			switch {
			case gold[i] == l && pred[i] == l:
				tp++
			case gold[i] != l && pred[i] == l:
				fp++
			case gold[i] == l && pred[i] != l:
				fn++
			}
		}
		p := ratio(tp, tp+fp)
		r := ratio(tp, tp+fn)
		f1 := 0.0
		if p+r > 0 {
			f1 = 2 * p * r / (p + r)
		}
		support := tp + fn
		c.Classes[l] = ClassMetrics{Precision: cost.Round2(p), Recall: cost.Round2(r), F1: cost.Round2(f1), Support: support}

		macro.Precision += p
		macro.Recall += r
		macro.F1 += f1
		w := float64(support)
		weighted.Precision += p * w
		weighted.Recall += r * w
		weighted.F1 += f1 * w
	}

	n := float64(len(labels))
	total := float64(len(gold))
	c.MacroAvg = ClassMetrics{
		Precision: cost.Round2(macro.Precision / n),
		Recall:    cost.Round2(macro.Recall / n),
		F1:        cost.Round2(macro.F1 / n),
		Support:   len(gold),
	}
	c.WeightedAvg = ClassMetrics{
		Precision: cost.Round2(weighted.Precision / total),
		Recall:    cost.Round2(weighted.Recall / total),
		F1:        cost.Round2(weighted.F1 / total),
		Support:   len(gold),
	}
	return c, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
