package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/internal/adapters/clickhouse"
	"github.com/selivandex/stock-signal/internal/adapters/config"
	"github.com/selivandex/stock-signal/internal/adapters/csvsource"
	"github.com/selivandex/stock-signal/internal/adapters/database"
	redisAdapter "github.com/selivandex/stock-signal/internal/adapters/redis"
	"github.com/selivandex/stock-signal/internal/adapters/scorer"
	"github.com/selivandex/stock-signal/internal/adapters/tables"
	"github.com/selivandex/stock-signal/internal/adapters/telegram"
	"github.com/selivandex/stock-signal/internal/artifacts"
	"github.com/selivandex/stock-signal/internal/consolidate"
	"github.com/selivandex/stock-signal/internal/indicators"
	"github.com/selivandex/stock-signal/internal/labels"
	"github.com/selivandex/stock-signal/internal/sentiment"
	"github.com/selivandex/stock-signal/internal/training"
	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/metrics"
	"github.com/selivandex/stock-signal/pkg/models"
)

var errLocked = errors.New("another training run holds the artifact lock")

func main() {
	envFile := flag.String("env", ".env", "path to .env file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, envFile string) error {
	cfg, err := initConfig(envFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	start, _ := cfg.Pipeline.Start()
	logger.Info("training pipeline starting",
		zap.Strings("tickers", cfg.Pipeline.Tickers),
		zap.Time("start_date", start),
		zap.String("price_source", cfg.Pipeline.PriceSource),
		zap.String("sentiment_provider", cfg.Sentiment.Provider),
	)

	infra, err := initInfrastructure(cfg)
	if err != nil {
		return err
	}
	defer infra.Close()

	// Acquire before anything is loaded so a second run fails fast
	lock := infra.trainingLock(cfg.Artifacts.Dir)
	acquired, err := lock.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire training lock: %w", err)
	}
	if !acquired {
		return errLocked
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("failed to release training lock", zap.Error(err))
		}
	}()

	rows, err := buildDataset(ctx, cfg, infra)
	if err != nil {
		return err
	}

	trainer := training.NewTrainer(
		trainingOptions(cfg),
		artifacts.NewSaver(cfg.Artifacts.Dir, cfg.Training.Seed),
		infra.recorder(cfg),
		initNotifier(cfg),
	)

	res, err := trainer.Run(ctx, rows)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	fmt.Println(res.Report.String())
	logger.Info("training pipeline finished",
		zap.String("artifacts", cfg.Artifacts.Dir),
		zap.Float64("test_accuracy", res.TestAccuracy),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)

	if cfg.Metrics.TextfilePath != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			logger.Warn("failed to export metrics", zap.Error(err))
		}
	}

	return nil
}

// initConfig loads configuration and initializes logger
func initConfig(envFile string) (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// infrastructure holds the optional backing services of a run
type infrastructure struct {
	db    *database.DB
	ch    *sqlx.DB
	redis *redisAdapter.Client
}

func initInfrastructure(cfg *config.Config) (*infrastructure, error) {
	infra := &infrastructure{}

	if cfg.Database.Enabled {
		db, err := database.New(&cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(db.Conn(), cfg.Database.MigrationsPath); err != nil {
			db.Close()
			return nil, err
		}
		infra.db = db
	}

	if cfg.ClickHouse.Enabled {
		ch, err := clickhouse.Open(&cfg.ClickHouse)
		if err != nil {
			infra.Close()
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := clickhouse.EnsureSchema(ctx, ch); err != nil {
			ch.Close()
			infra.Close()
			return nil, err
		}
		infra.ch = ch
	}

	if cfg.Redis.Enabled {
		client, err := redisAdapter.New(&cfg.Redis)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.redis = client
	}

	return infra, nil
}

func (i *infrastructure) Close() {
	if i.redis != nil {
		i.redis.Close()
	}
	if i.ch != nil {
		i.ch.Close()
	}
	if i.db != nil {
		i.db.Close()
	}
}

func (i *infrastructure) trainingLock(artifactDir string) redisAdapter.Lock {
	if i.redis == nil {
		return redisAdapter.NoopLock{}
	}
	return i.redis.TrainingLock(artifactDir)
}

func (i *infrastructure) recorder(cfg *config.Config) training.RunRecorder {
	if i.db == nil {
		return nil
	}
	return database.NewRunRepository(i.db.DB(), cfg.Artifacts.Dir)
}

// buildDataset runs load -> indicators -> sentiment -> consolidate -> label
func buildDataset(ctx context.Context, cfg *config.Config, infra *infrastructure) ([]models.LabeledRow, error) {
	start, err := cfg.Pipeline.Start()
	if err != nil {
		return nil, err
	}

	var prices consolidate.PriceSource
	var chRepo *clickhouse.Repository
	if infra.ch != nil {
		chRepo = clickhouse.NewRepository(infra.ch, cfg.ClickHouse.Batch)
	}
	switch {
	case cfg.Pipeline.PriceSource == "clickhouse":
		prices = chRepo
	case chRepo != nil && cfg.ClickHouse.MirrorBars:
		prices = clickhouse.NewMirroredSource(csvsource.NewPriceLoader(cfg.Pipeline.PriceDir, cfg.Pipeline.PricePattern), chRepo)
	default:
		prices = csvsource.NewPriceLoader(cfg.Pipeline.PriceDir, cfg.Pipeline.PricePattern)
	}
	news := csvsource.NewNewsLoader(cfg.Pipeline.NewsDir, cfg.Pipeline.NewsPattern, cfg.Pipeline.NewsLowercase)

	articleScorer, err := buildScorer(cfg, infra)
	if err != nil {
		return nil, err
	}

	consolidator := consolidate.New(
		prices,
		news,
		indicators.NewEngine(),
		sentiment.NewAggregator(articleScorer),
		consolidate.Options{Start: start, DropIncomplete: cfg.Pipeline.DropIncomplete},
	)

	consolidated, err := consolidator.Run(ctx, cfg.Pipeline.Tickers)
	if err != nil {
		return nil, fmt.Errorf("consolidation failed: %w", err)
	}
	logger.Info("consolidated table ready",
		zap.Int("rows", len(consolidated.Rows)),
		zap.Int("tickers", len(consolidated.Reports)),
		zap.Strings("skipped", consolidated.Skipped),
		zap.Time("from", consolidated.From),
		zap.Time("to", consolidated.To),
	)

	generator, err := labels.NewGenerator(cfg.Labels.Horizon, cfg.Labels.BuyThreshold, cfg.Labels.SellThreshold)
	if err != nil {
		return nil, err
	}
	labeled, err := generator.Generate(consolidated.Rows)
	if err != nil {
		return nil, fmt.Errorf("label generation failed: %w", err)
	}

	dist := labels.Distribute(labeled)
	for _, c := range dist.Overall {
		logger.Info("label distribution",
			zap.String("label", c.Signal.String()),
			zap.Int("count", c.Count),
			zap.Float64("percent", c.Percent),
		)
	}

	if err := exportTables(cfg, consolidated, labeled); err != nil {
		logger.Warn("table export failed", zap.Error(err))
	}

	if chRepo != nil {
		runID := time.Now().UTC().Format("20060102T150405Z")
		if err := chRepo.SaveLabeled(ctx, runID, labeled); err != nil {
			logger.Warn("failed to store labeled table in ClickHouse", zap.Error(err))
		}
	}

	return labeled, nil
}

// buildScorer wraps the configured scorer with the Redis cache when enabled
func buildScorer(cfg *config.Config, infra *infrastructure) (sentiment.Scorer, error) {
	s, err := scorer.New(&cfg.Sentiment)
	if err != nil {
		return nil, err
	}
	if infra.redis != nil && cfg.Sentiment.Provider != "lexicon" {
		s = sentiment.NewCached(s, infra.redis.ScoreCache("stock-signal:sentiment:"+cfg.Sentiment.Provider, cfg.Sentiment.CacheTTL))
	}
	return s, nil
}

func exportTables(cfg *config.Config, consolidated *consolidate.Result, labeled []models.LabeledRow) error {
	if cfg.Artifacts.ExportFormat == "none" {
		return nil
	}
	exporter, err := tables.NewExporter(cfg.Artifacts.ExportDir, cfg.Artifacts.ExportFormat)
	if err != nil {
		return err
	}

	path, err := exporter.ExportConsolidated(consolidated.Rows)
	if err != nil {
		return err
	}
	logger.Info("consolidated table exported", zap.String("path", path))

	path, err = exporter.ExportLabeled(labeled)
	if err != nil {
		return err
	}
	logger.Info("labeled table exported", zap.String("path", path))
	return nil
}

func trainingOptions(cfg *config.Config) training.Options {
	return training.Options{
		Seed:            cfg.Training.Seed,
		TestRatio:       cfg.Training.TestRatio,
		CVFolds:         cfg.Training.CVFolds,
		DiagnosticFolds: cfg.Training.DiagnosticFolds,
		Workers:         cfg.Training.Workers,
		Grid:            training.Grid(cfg.Training.Grid),
	}
}

// initNotifier returns nil when Telegram is not configured or unreachable
func initNotifier(cfg *config.Config) training.Notifier {
	if !cfg.Telegram.NotifyEnabled() {
		return nil
	}
	tm, err := telegram.NewTemplateManager(cfg.Telegram.TemplatesDir)
	if err != nil {
		logger.Warn("telegram templates not loaded, notifications disabled", zap.Error(err))
		return nil
	}
	n, err := telegram.NewNotifier(&cfg.Telegram, tm)
	if err != nil {
		logger.Warn("telegram notifier unavailable", zap.Error(err))
		return nil
	}
	return n
}
