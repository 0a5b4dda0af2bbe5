package tables

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/selivandex/stock-signal/pkg/models"
)

const dateLayout = "2006-01-02"

// CSVSaver writes tables as comma separated text. Undefined values are empty cells.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) SaveConsolidated(path string, rows []models.ConsolidatedRow) error {
	columns := models.TableColumns[:len(models.TableColumns)-2]
	return writeCSV(path, columns, len(rows), func(i int) []string {
		return formatRow(&rows[i], columns)
	})
}

func (CSVSaver) SaveLabeled(path string, rows []models.LabeledRow) error {
	columns := models.TableColumns
	return writeCSV(path, columns, len(rows), func(i int) []string {
		record := formatRow(&rows[i].ConsolidatedRow, columns[:len(columns)-2])
		return append(record,
			formatFloat(rows[i].FutureReturn),
			strconv.Itoa(int(rows[i].Target)),
		)
	})
}

func formatRow(row *models.ConsolidatedRow, columns []string) []string {
	record := make([]string, 0, len(columns)+2)
	for _, col := range columns {
		switch col {
		case models.ColDate:
			record = append(record, row.Date.Format(dateLayout))
		case models.ColTicker:
			record = append(record, row.Ticker)
		default:
			v, _ := row.Value(col)
			record = append(record, formatFloat(v))
		}
	}
	return record
}

func formatFloat(v float64) string {
	if !models.IsDefined(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeCSV(path string, header []string, n int, record func(i int) []string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := w.Write(record(i)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
