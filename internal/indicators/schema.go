package indicators

import (
	"strings"

	"github.com/selivandex/stock-signal/pkg/models"
)

// ColumnMap holds header positions of the required price fields
type ColumnMap struct {
	Date   int
	Open   int
	High   int
	Low    int
	Close  int
	Volume int
}

// RequiredFields lists the price fields in sniffing order
var RequiredFields = []string{"date", "open", "high", "low", "close", "volume"}

// Sniff maps a price file header onto required fields by case-insensitive
// substring match. The first matching header wins.
func Sniff(header []string) (*ColumnMap, error) {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	positions := make(map[string]int, len(RequiredFields))
	for _, field := range RequiredFields {
		positions[field] = -1
		for i, h := range normalized {
			if strings.Contains(h, field) {
				positions[field] = i
				break
			}
		}
		if positions[field] < 0 {
			return nil, &models.SchemaError{Field: field}
		}
	}

	return &ColumnMap{
		Date:   positions["date"],
		Open:   positions["open"],
		High:   positions["high"],
		Low:    positions["low"],
		Close:  positions["close"],
		Volume: positions["volume"],
	}, nil
}
