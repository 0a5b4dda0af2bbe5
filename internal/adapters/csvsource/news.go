package csvsource

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/models"
)

// NewsLoader reads one article file per ticker with date, headline and
// summary columns
type NewsLoader struct {
	dir       string
	pattern   string
	lowercase bool
}

// NewNewsLoader creates loader; lowercase puts the ticker in lower case in file names
func NewNewsLoader(dir, pattern string, lowercase bool) *NewsLoader {
	return &NewsLoader{dir: dir, pattern: pattern, lowercase: lowercase}
}

// Path returns the file path for ticker
func (l *NewsLoader) Path(ticker string) string {
	name := ticker
	if l.lowercase {
		name = strings.ToLower(ticker)
	}
	return filepath.Join(l.dir, expand(l.pattern, name))
}

// LoadNews implements consolidate.NewsSource
func (l *NewsLoader) LoadNews(ctx context.Context, ticker string) ([]models.NewsArticle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := l.Path(ticker)
	records, err := readRecords(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read news for %s: %w", ticker, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := normalizeHeader(records[0])
	dateCol, headlineCol, summaryCol := -1, -1, -1
	sourceCol, urlCol := -1, -1
	for i, h := range header {
		switch h {
		case "date", "datetime", "published_at":
			if dateCol < 0 {
				dateCol = i
			}
		case "headline", "title":
			if headlineCol < 0 {
				headlineCol = i
			}
		case "summary", "description":
			if summaryCol < 0 {
				summaryCol = i
			}
		case "source":
			sourceCol = i
		case "url":
			urlCol = i
		}
	}
	if dateCol < 0 {
		return nil, &models.SchemaError{Field: "date", Source: path}
	}
	if headlineCol < 0 && summaryCol < 0 {
		return nil, &models.SchemaError{Field: "headline", Source: path}
	}

	articles := make([]models.NewsArticle, 0, len(records)-1)
	skipped := 0
	for _, rec := range records[1:] {
		published, err := parseTime(field(rec, dateCol))
		if err != nil {
			skipped++
			continue
		}
		articles = append(articles, models.NewsArticle{
			PublishedAt: published,
			Ticker:      ticker,
			Headline:    strings.TrimSpace(field(rec, headlineCol)),
			Summary:     strings.TrimSpace(field(rec, summaryCol)),
			Source:      field(rec, sourceCol),
			URL:         field(rec, urlCol),
		})
	}

	if skipped > 0 {
		logger.Debug("skipped news rows without a valid date",
			zap.String("ticker", ticker),
			zap.Int("skipped", skipped),
		)
	}

	return articles, nil
}
