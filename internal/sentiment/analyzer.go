package sentiment

import (
	"context"
	"strings"
)

// Analyzer performs simple keyword-based sentiment analysis of company news
type Analyzer struct {
	positiveWords map[string]float64
	negativeWords map[string]float64
}

// NewAnalyzer creates new sentiment analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		positiveWords: buildPositiveWords(),
		negativeWords: buildNegativeWords(),
	}
}

// Score implements Scorer over headline and summary
func (a *Analyzer) Score(_ context.Context, headline, summary string) (float64, error) {
	return a.AnalyzeSentiment(headline + " " + summary), nil
}

// AnalyzeSentiment analyzes text and returns sentiment score (-1.0 to 1.0).
// The score is the mean weight of matched keywords, so neutral filler does not dilute it.
func (a *Analyzer) AnalyzeSentiment(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0.0
	}

	var score float64
	matchCount := 0

	for _, word := range words {
		word = strings.Trim(word, ".,!?;:\"'()[]")

		if weight, ok := a.positiveWords[word]; ok {
			score += weight
			matchCount++
		}

		if weight, ok := a.negativeWords[word]; ok {
			score -= weight
			matchCount++
		}
	}

	if matchCount == 0 {
		return 0.0
	}

	normalizedScore := score / float64(matchCount)

	if normalizedScore > 1.0 {
		normalizedScore = 1.0
	} else if normalizedScore < -1.0 {
		normalizedScore = -1.0
	}

	return normalizedScore
}

// buildPositiveWords returns positive keywords for equities
func buildPositiveWords() map[string]float64 {
	return map[string]float64{
		"bullish":      1.0,
		"rally":        0.9,
		"rallies":      0.9,
		"surge":        0.8,
		"surges":       0.8,
		"soar":         0.8,
		"soars":        0.8,
		"record":       0.6,
		"beat":         0.8,
		"beats":        0.8,
		"outperform":   0.8,
		"upgrade":      0.7,
		"upgraded":     0.7,
		"gain":         0.6,
		"gains":        0.6,
		"profit":       0.6,
		"profitable":   0.6,
		"growth":       0.5,
		"grow":         0.5,
		"rise":         0.5,
		"rises":        0.5,
		"higher":       0.4,
		"strong":       0.5,
		"positive":     0.5,
		"optimistic":   0.5,
		"breakthrough": 0.6,
		"partnership":  0.5,
		"innovation":   0.5,
		"dividend":     0.5,
		"buyback":      0.6,
		"approval":     0.6,
		"approved":     0.6,
		"expands":      0.4,
		"raises":       0.5,
	}
}

// buildNegativeWords returns negative keywords for equities
func buildNegativeWords() map[string]float64 {
	return map[string]float64{
		"bearish":       1.0,
		"crash":         1.0,
		"plunge":        0.8,
		"plunges":       0.8,
		"tumble":        0.8,
		"tumbles":       0.8,
		"fall":          0.6,
		"falls":         0.6,
		"drop":          0.6,
		"drops":         0.6,
		"decline":       0.6,
		"declines":      0.6,
		"loss":          0.7,
		"losses":        0.7,
		"miss":          0.8,
		"misses":        0.8,
		"downgrade":     0.7,
		"downgraded":    0.7,
		"underperform":  0.8,
		"lower":         0.4,
		"weak":          0.5,
		"negative":      0.5,
		"pessimistic":   0.5,
		"fear":          0.6,
		"panic":         0.8,
		"selloff":       0.7,
		"lawsuit":       0.7,
		"probe":         0.6,
		"investigation": 0.6,
		"fraud":         1.0,
		"recall":        0.7,
		"layoffs":       0.6,
		"bankruptcy":    1.0,
		"fined":         0.6,
		"cuts":          0.5,
		"overvalued":    0.6,
	}
}
