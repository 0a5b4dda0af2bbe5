package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/internal/training"
	"github.com/selivandex/stock-signal/pkg/logger"
)

// RunRecord is one row of training_runs
type RunRecord struct {
	ID             int64     `db:"id"`
	StartedAt      time.Time `db:"started_at"`
	FinishedAt     time.Time `db:"finished_at"`
	ArtifactDir    string    `db:"artifact_dir"`
	NFeatures      int       `db:"n_features"`
	TrainSize      int       `db:"train_size"`
	TestSize       int       `db:"test_size"`
	BestParams     string    `db:"best_params"`
	TrainAccuracy  float64   `db:"train_accuracy"`
	TestAccuracy   float64   `db:"test_accuracy"`
	BestCVAccuracy float64   `db:"best_cv_accuracy"`
	CVMean         float64   `db:"cv_mean"`
	CVStd          float64   `db:"cv_std"`
	Report         string    `db:"report"`
	Importance     string    `db:"importance"`
}

// RunRepository stores training run history; implements training.RunRecorder
type RunRepository struct {
	db          *sqlx.DB
	artifactDir string
}

// NewRunRepository creates repository recording runs saved to artifactDir
func NewRunRepository(db *sqlx.DB, artifactDir string) *RunRepository {
	return &RunRepository{db: db, artifactDir: artifactDir}
}

// NewRunRecord converts a training result into a row
func NewRunRecord(res *training.Result, artifactDir string) (*RunRecord, error) {
	params, err := json.Marshal(res.BestParams)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	report, err := json.Marshal(res.Report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	importance, err := json.Marshal(res.Importance)
	if err != nil {
		return nil, fmt.Errorf("failed to encode importance: %w", err)
	}

	return &RunRecord{
		StartedAt:      res.StartedAt,
		FinishedAt:     res.FinishedAt,
		ArtifactDir:    artifactDir,
		NFeatures:      len(res.Manifest),
		TrainSize:      res.TrainSize,
		TestSize:       res.TestSize,
		BestParams:     string(params),
		TrainAccuracy:  res.TrainAccuracy,
		TestAccuracy:   res.TestAccuracy,
		BestCVAccuracy: res.BestCVAccuracy,
		CVMean:         res.DiagnosticMean,
		CVStd:          res.DiagnosticStd,
		Report:         string(report),
		Importance:     string(importance),
	}, nil
}

// RecordRun inserts a finished run
func (r *RunRepository) RecordRun(ctx context.Context, res *training.Result) error {
	rec, err := NewRunRecord(res, r.artifactDir)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO training_runs (
			started_at, finished_at, artifact_dir, n_features, train_size, test_size,
			best_params, train_accuracy, test_accuracy, best_cv_accuracy, cv_mean, cv_std,
			report, importance
		) VALUES (
			:started_at, :finished_at, :artifact_dir, :n_features, :train_size, :test_size,
			:best_params, :train_accuracy, :test_accuracy, :best_cv_accuracy, :cv_mean, :cv_std,
			:report, :importance
		) RETURNING id
	`

	rows, err := r.db.NamedQueryContext(ctx, query, rec)
	if err != nil {
		return fmt.Errorf("failed to insert training run: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&rec.ID); err != nil {
			return fmt.Errorf("failed to read training run id: %w", err)
		}
	}

	logger.Info("training run recorded",
		zap.Int64("id", rec.ID),
		zap.Float64("test_accuracy", rec.TestAccuracy),
	)
	return nil
}

// LatestRuns returns the most recent runs, newest first
func (r *RunRepository) LatestRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	var runs []RunRecord
	query := `
		SELECT id, started_at, finished_at, artifact_dir, n_features, train_size, test_size,
		       best_params, train_accuracy, test_accuracy, best_cv_accuracy, cv_mean, cv_std,
		       report, importance
		FROM training_runs
		ORDER BY finished_at DESC
		LIMIT $1
	`
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list training runs: %w", err)
	}
	return runs, nil
}
