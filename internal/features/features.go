package features

import (
	"fmt"

	"github.com/selivandex/stock-signal/pkg/models"
)

// Manifest is the ordered list of feature columns a model was trained on
type Manifest []string

// excluded columns never become features
var excluded = map[string]bool{
	models.ColTarget:       true,
	models.ColDate:         true,
	models.ColTicker:       true,
	models.ColFutureReturn: true,
}

// ManifestFromColumns drops target, date, ticker and future_return, keeping order
func ManifestFromColumns(columns []string) Manifest {
	m := make(Manifest, 0, len(columns))
	for _, c := range columns {
		if !excluded[c] {
			m = append(m, c)
		}
	}
	return m
}

// DefaultManifest is the manifest of the labeled table layout
func DefaultManifest() Manifest {
	return ManifestFromColumns(models.TableColumns)
}

// Equal reports whether two manifests have the same columns in the same order
func (m Manifest) Equal(other Manifest) bool {
	if len(m) != len(other) {
		return false
	}
	for i := range m {
		if m[i] != other[i] {
			return false
		}
	}
	return true
}

// Index returns column positions by name
func (m Manifest) Index() map[string]int {
	idx := make(map[string]int, len(m))
	for i, c := range m {
		idx[c] = i
	}
	return idx
}

// Matrix is a training design matrix with labels
type Matrix struct {
	Manifest Manifest
	X        [][]float64
	Y        []models.Signal
}

// Project turns typed rows into feature vectors in manifest order. Values are
// copied as-is, including NaN.
func Project(manifest Manifest, rows []models.LabeledRow) ([][]float64, error) {
	X := make([][]float64, len(rows))
	for i := range rows {
		vec := make([]float64, len(manifest))
		for j, col := range manifest {
			v, ok := rows[i].Value(col)
			if !ok {
				return nil, fmt.Errorf("column %q is not a numeric feature", col)
			}
			vec[j] = v
		}
		X[i] = vec
	}
	return X, nil
}

// Prepare projects rows with the default manifest and imputes missing values
func Prepare(rows []models.LabeledRow) (*Matrix, error) {
	return PrepareWith(DefaultManifest(), rows)
}

// PrepareWith projects rows with a given manifest and imputes missing values
func PrepareWith(manifest Manifest, rows []models.LabeledRow) (*Matrix, error) {
	if len(rows) == 0 {
		return nil, &models.DataInsufficientError{Stage: "features", Reason: "no labeled rows"}
	}

	X, err := Project(manifest, rows)
	if err != nil {
		return nil, err
	}
	Impute(X)

	Y := make([]models.Signal, len(rows))
	for i := range rows {
		Y[i] = rows[i].Target
	}

	return &Matrix{Manifest: manifest, X: X, Y: Y}, nil
}

// Impute fills missing (NaN, ±Inf) values in place, per column over the whole
// table: forward fill, then backward fill, then 0.
func Impute(X [][]float64) {
	if len(X) == 0 {
		return
	}
	cols := len(X[0])

	for j := 0; j < cols; j++ {
		last, seen := 0.0, false
		for i := range X {
			if models.IsDefined(X[i][j]) {
				last, seen = X[i][j], true
			} else if seen {
				X[i][j] = last
			}
		}

		next, seen := 0.0, false
		for i := len(X) - 1; i >= 0; i-- {
			if models.IsDefined(X[i][j]) {
				next, seen = X[i][j], true
			} else if seen {
				X[i][j] = next
			}
		}

		for i := range X {
			if !models.IsDefined(X[i][j]) {
				X[i][j] = 0
			}
		}
	}
}

// Vector orders a live feature map by the manifest. Every missing column is
// reported in one MissingFeatureError; nothing is filled in.
func Vector(manifest Manifest, values map[string]float64) ([]float64, error) {
	vec := make([]float64, len(manifest))
	var missing []string

	for i, col := range manifest {
		v, ok := values[col]
		if !ok || !models.IsDefined(v) {
			missing = append(missing, col)
			continue
		}
		vec[i] = v
	}

	if len(missing) > 0 {
		return nil, &models.MissingFeatureError{Missing: missing}
	}
	return vec, nil
}
