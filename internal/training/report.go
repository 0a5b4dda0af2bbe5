package training

import (
	"fmt"
	"math"
	"strings"

	"github.com/selivandex/stock-signal/pkg/models"
)

// ClassMetrics are per-class precision, recall and F1
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report is a classification report on a held-out set
type Report struct {
	Classes     []ClassMetrics `json:"classes"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
	Accuracy    float64        `json:"accuracy"`
	Support     int            `json:"support"`
}

// Accuracy is the share of matching predictions
func Accuracy(yTrue, yPred []models.Signal) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue))
}

// MeanStd returns the mean and population standard deviation
func MeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	ss := 0.0
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(values)))
}

// ConfusionMatrix counts rows = true class, columns = predicted class, in models.Classes order
func ConfusionMatrix(yTrue, yPred []models.Signal) [][]int {
	pos := classPositions()
	m := make([][]int, len(models.Classes))
	for i := range m {
		m[i] = make([]int, len(models.Classes))
	}
	for i := range yTrue {
		m[pos[yTrue[i]]][pos[yPred[i]]]++
	}
	return m
}

// Classify builds the classification report for every label. Undefined
// ratios (no predictions or no support) are 0.
func Classify(yTrue, yPred []models.Signal) *Report {
	cm := ConfusionMatrix(yTrue, yPred)
	r := &Report{Accuracy: Accuracy(yTrue, yPred), Support: len(yTrue)}

	for k, c := range models.Classes {
		tp := cm[k][k]
		predicted, support := 0, 0
		for j := range models.Classes {
			predicted += cm[j][k]
			support += cm[k][j]
		}

		m := ClassMetrics{Label: c.String(), Support: support}
		if predicted > 0 {
			m.Precision = float64(tp) / float64(predicted)
		}
		if support > 0 {
			m.Recall = float64(tp) / float64(support)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes = append(r.Classes, m)
	}

	n := float64(len(r.Classes))
	r.MacroAvg = ClassMetrics{Label: "macro avg", Support: r.Support}
	r.WeightedAvg = ClassMetrics{Label: "weighted avg", Support: r.Support}
	for _, m := range r.Classes {
		r.MacroAvg.Precision += m.Precision / n
		r.MacroAvg.Recall += m.Recall / n
		r.MacroAvg.F1 += m.F1 / n
		if r.Support > 0 {
			w := float64(m.Support) / float64(r.Support)
			r.WeightedAvg.Precision += m.Precision * w
			r.WeightedAvg.Recall += m.Recall * w
			r.WeightedAvg.F1 += m.F1 * w
		}
	}

	return r
}

// String renders the report as a fixed-width table
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%12s %9s %9s %9s %9s\n", "", "precision", "recall", "f1-score", "support")
	for _, m := range r.Classes {
		fmt.Fprintf(&b, "%12s %9.2f %9.2f %9.2f %9d\n", m.Label, m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintf(&b, "\n%12s %9s %9s %9.2f %9d\n", "accuracy", "", "", r.Accuracy, r.Support)
	for _, m := range []ClassMetrics{r.MacroAvg, r.WeightedAvg} {
		fmt.Fprintf(&b, "%12s %9.2f %9.2f %9.2f %9d\n", m.Label, m.Precision, m.Recall, m.F1, m.Support)
	}
	return b.String()
}

func classPositions() map[models.Signal]int {
	pos := make(map[models.Signal]int, len(models.Classes))
	for i, c := range models.Classes {
		pos[c] = i
	}
	return pos
}
