package tables

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/selivandex/stock-signal/pkg/models"
)

const (
	// ConsolidatedName is the base name of the consolidated table
	ConsolidatedName = "consolidated_data"
	// LabeledName is the base name of the labeled training table
	LabeledName = "labeled_data"
)

// Saver writes pipeline tables in one file format
type Saver interface {
	Extension() string
	SaveConsolidated(path string, rows []models.ConsolidatedRow) error
	SaveLabeled(path string, rows []models.LabeledRow) error
}

// NewSaver returns the saver for format (csv or parquet), nil if unsupported
func NewSaver(format string) Saver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}
	case "parquet":
		return ParquetSaver{}
	default:
		return nil
	}
}

// Exporter writes both tables into one directory
type Exporter struct {
	dir   string
	saver Saver
}

// NewExporter creates exporter for dir and format
func NewExporter(dir, format string) (*Exporter, error) {
	saver := NewSaver(format)
	if saver == nil {
		return nil, fmt.Errorf("unsupported export format %q (use csv or parquet)", format)
	}
	return &Exporter{dir: dir, saver: saver}, nil
}

// Path returns the output file of a table
func (e *Exporter) Path(name string) string {
	return filepath.Join(e.dir, name+"."+e.saver.Extension())
}

// ExportConsolidated writes the consolidated table and returns its path
func (e *Exporter) ExportConsolidated(rows []models.ConsolidatedRow) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}
	path := e.Path(ConsolidatedName)
	if err := e.saver.SaveConsolidated(path, rows); err != nil {
		return "", fmt.Errorf("failed to export consolidated table: %w", err)
	}
	return path, nil
}

// ExportLabeled writes the labeled table and returns its path
func (e *Exporter) ExportLabeled(rows []models.LabeledRow) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}
	path := e.Path(LabeledName)
	if err := e.saver.SaveLabeled(path, rows); err != nil {
		return "", fmt.Errorf("failed to export labeled table: %w", err)
	}
	return path, nil
}
