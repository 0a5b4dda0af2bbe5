package artifacts

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/internal/features"
	"github.com/selivandex/stock-signal/internal/forest"
	"github.com/selivandex/stock-signal/internal/training"
	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/models"
)

// Bundle file names
const (
	ModelFile      = "stock_prediction_model.json"
	ManifestFile   = "feature_columns.json"
	ImportanceFile = "feature_importance.csv"
	MetadataFile   = "model_metadata.json"

	ModelType = "RandomForestClassifier"
)

// Metadata describes a trained model
type Metadata struct {
	CreatedDate    time.Time     `json:"created_date"`
	ModelType      string        `json:"model_type"`
	NFeatures      int           `json:"n_features"`
	TargetClasses  []string      `json:"target_classes"`
	BestParams     forest.Params `json:"best_params"`
	Seed           int64         `json:"seed"`
	TrainAccuracy  float64       `json:"train_accuracy"`
	TestAccuracy   float64       `json:"test_accuracy"`
	BestCVAccuracy float64       `json:"best_cv_accuracy"`
	CVMean         float64       `json:"cv_mean"`
	CVStd          float64       `json:"cv_std"`
	TrainSize      int           `json:"train_size"`
	TestSize       int           `json:"test_size"`
}

// Bundle is everything needed to serve predictions
type Bundle struct {
	Model      *forest.Forest
	Manifest   features.Manifest
	Importance []training.FeatureImportance
	Metadata   Metadata
}

// Info returns the model summary attached to predictions
func (b *Bundle) Info() models.ModelInfo {
	return models.ModelInfo{
		ModelType:   b.Metadata.ModelType,
		CreatedDate: b.Metadata.CreatedDate,
		NFeatures:   b.Metadata.NFeatures,
	}
}

// FromResult builds a bundle from a fitted training run
func FromResult(res *training.Result, seed int64) (*Bundle, error) {
	if res == nil || res.Model == nil {
		return nil, fmt.Errorf("training result has no fitted model")
	}
	if len(res.Manifest) != res.Model.NFeatures {
		return nil, fmt.Errorf("manifest has %d columns but model expects %d", len(res.Manifest), res.Model.NFeatures)
	}

	return &Bundle{
		Model:      res.Model,
		Manifest:   res.Manifest,
		Importance: res.Importance,
		Metadata: Metadata{
			CreatedDate:    res.FinishedAt.UTC(),
			ModelType:      ModelType,
			NFeatures:      res.Model.NFeatures,
			TargetClasses:  models.ClassLabels(),
			BestParams:     res.BestParams,
			Seed:           seed,
			TrainAccuracy:  res.TrainAccuracy,
			TestAccuracy:   res.TestAccuracy,
			BestCVAccuracy: res.BestCVAccuracy,
			CVMean:         res.DiagnosticMean,
			CVStd:          res.DiagnosticStd,
			TrainSize:      res.TrainSize,
			TestSize:       res.TestSize,
		},
	}, nil
}

// Saver writes bundles into a directory
type Saver struct {
	dir  string
	seed int64
}

// NewSaver creates saver for dir
func NewSaver(dir string, seed int64) *Saver {
	return &Saver{dir: dir, seed: seed}
}

// Dir returns the bundle directory
func (s *Saver) Dir() string {
	return s.dir
}

// Save implements training.ArtifactSink
func (s *Saver) Save(ctx context.Context, res *training.Result) error {
	bundle, err := FromResult(res, s.seed)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return Write(s.dir, bundle)
}

// Write stores the bundle in a temporary sibling directory and renames it
// over dir, so readers see either the old bundle or the complete new one
func Write(dir string, b *Bundle) error {
	dir = filepath.Clean(dir)
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", parent, err)
	}

	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+"-tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp bundle dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := writeFiles(tmp, b); err != nil {
		return err
	}

	var backup string
	if _, err := os.Stat(dir); err == nil {
		backup = fmt.Sprintf("%s.old-%d", dir, time.Now().UnixNano())
		if err := os.Rename(dir, backup); err != nil {
			return fmt.Errorf("failed to move previous bundle: %w", err)
		}
	}
	if err := os.Rename(tmp, dir); err != nil {
		if backup != "" {
			_ = os.Rename(backup, dir)
		}
		return fmt.Errorf("failed to publish bundle: %w", err)
	}
	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			logger.Warn("failed to remove previous bundle", zap.String("path", backup), zap.Error(err))
		}
	}

	logger.Info("model artifacts saved",
		zap.String("dir", dir),
		zap.Int("features", len(b.Manifest)),
		zap.Int("trees", len(b.Model.Trees)),
	)
	return nil
}

func writeFiles(dir string, b *Bundle) error {
	model, err := b.Model.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ModelFile), model, 0o644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, ManifestFile), b.Manifest); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, MetadataFile), b.Metadata); err != nil {
		return err
	}
	return writeImportance(filepath.Join(dir, ImportanceFile), b.Importance)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeImportance(path string, ranked []training.FeatureImportance) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"feature", "importance"}); err != nil {
		return err
	}
	for _, fi := range ranked {
		if err := w.Write([]string{fi.Feature, strconv.FormatFloat(fi.Importance, 'g', -1, 64)}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// Load reads a bundle and checks that manifest and model agree
func Load(dir string) (*Bundle, error) {
	data, err := os.ReadFile(filepath.Join(dir, ModelFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	model, err := forest.Unmarshal(data)
	if err != nil {
		return nil, err
	}

	b := &Bundle{Model: model}
	if err := readJSON(filepath.Join(dir, ManifestFile), &b.Manifest); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, MetadataFile), &b.Metadata); err != nil {
		return nil, err
	}
	if len(b.Manifest) != model.NFeatures {
		return nil, fmt.Errorf("manifest has %d columns but model expects %d", len(b.Manifest), model.NFeatures)
	}

	b.Importance, err = readImportance(filepath.Join(dir, ImportanceFile))
	if err != nil {
		logger.Warn("feature importance not loaded", zap.String("dir", dir), zap.Error(err))
	}

	return b, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readImportance(path string) ([]training.FeatureImportance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}

	var out []training.FeatureImportance
	for i, rec := range records {
		if i == 0 || len(rec) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		out = append(out, training.FeatureImportance{Feature: rec[0], Importance: v})
	}
	return out, nil
}
