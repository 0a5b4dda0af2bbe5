package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/internal/adapters/alphavantage"
	"github.com/selivandex/stock-signal/internal/adapters/config"
	"github.com/selivandex/stock-signal/internal/adapters/finnhub"
	redisAdapter "github.com/selivandex/stock-signal/internal/adapters/redis"
	"github.com/selivandex/stock-signal/internal/adapters/scorer"
	"github.com/selivandex/stock-signal/internal/artifacts"
	"github.com/selivandex/stock-signal/internal/health"
	"github.com/selivandex/stock-signal/internal/indicators"
	"github.com/selivandex/stock-signal/internal/inference"
	"github.com/selivandex/stock-signal/internal/sentiment"
	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/metrics"
	"github.com/selivandex/stock-signal/pkg/models"
)

func main() {
	envFile := flag.String("env", ".env", "path to .env file")
	symbols := flag.String("symbols", "", "comma separated symbols (default: PIPELINE_TICKERS)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx, *envFile, *symbols); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, envFile, symbolList string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	symbols := cfg.Pipeline.Tickers
	if symbolList != "" {
		symbols = strings.Split(symbolList, ",")
	}

	bundle, err := artifacts.Load(cfg.Artifacts.Dir)
	switch {
	case err == nil:
		info := bundle.Info()
		logger.Info("model loaded",
			zap.String("dir", cfg.Artifacts.Dir),
			zap.String("model_type", info.ModelType),
			zap.Time("created", info.CreatedDate),
			zap.Int("features", info.NFeatures),
		)
	case cfg.Predict.Addr != "":
		// The server also scores sentiment for training runs, so it starts
		// before the first model exists. Predictions answer 503 until a
		// scheduled reload finds a bundle.
		logger.Warn("no model loaded, serving sentiment only",
			zap.String("dir", cfg.Artifacts.Dir),
			zap.Error(err),
		)
		bundle = nil
	default:
		return fmt.Errorf("failed to load model: %w", err)
	}

	checks := make(map[string]health.Check)
	articleScorer, closeScorer, err := buildScorer(cfg, checks)
	if err != nil {
		return err
	}
	defer closeScorer()

	policy, err := sentiment.ParsePolicy(cfg.Sentiment.FailurePolicy)
	if err != nil {
		return err
	}

	news := finnhub.NewClient(&cfg.Providers.Finnhub)
	market := inference.Market{
		QuoteSource:  news,
		SeriesSource: alphavantage.NewClient(&cfg.Providers.AlphaVantage),
	}
	assembler := inference.NewAssembler(market, news, articleScorer, indicators.NewEngine(), inference.Options{
		Window:         time.Duration(cfg.Sentiment.WindowHours) * time.Hour,
		Policy:         policy,
		HistoryDays:    cfg.Providers.HistoryDays,
		VolumeFallback: inference.VolumeFallback(cfg.Predict.VolumeFallback),
	})
	predictor := inference.NewPredictor(assembler, bundle)

	if cfg.Predict.Schedule == "" && cfg.Predict.Addr == "" {
		return predictAll(ctx, predictor, symbols)
	}

	var server *health.Server
	if cfg.Predict.Addr != "" {
		server = health.NewServer(cfg.Predict.Addr, predictor, checks).
			WithClassifier(scorer.NewHuggingFaceScorer(cfg.Sentiment.ModelURL, cfg.Sentiment.Token))
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("prediction server failed", zap.Error(err))
				cancel()
			}
		}()
		server.SetReady(true)
	}

	var scheduler *cron.Cron
	if cfg.Predict.Schedule != "" {
		scheduler = cron.New(cron.WithSeconds())
		_, err = scheduler.AddFunc(cfg.Predict.Schedule, func() {
			reloadModel(predictor, cfg.Artifacts.Dir)
			if err := predictAll(ctx, predictor, symbols); err != nil {
				logger.Error("scheduled prediction failed", zap.Error(err))
			}
			if cfg.Metrics.TextfilePath != "" {
				if err := metrics.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
					logger.Warn("failed to export metrics", zap.Error(err))
				}
			}
		})
		if err != nil {
			return fmt.Errorf("invalid PREDICT_SCHEDULE %q: %w", cfg.Predict.Schedule, err)
		}
		logger.Info("prediction schedule started", zap.String("schedule", cfg.Predict.Schedule))
		scheduler.Start()
	}

	<-ctx.Done()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	if server != nil {
		server.SetReady(false)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Warn("prediction server shutdown failed", zap.Error(err))
		}
	}

	return nil
}

// predictAll prints one JSON line per symbol. A symbol that cannot be
// predicted is logged and does not stop the others.
func predictAll(ctx context.Context, predictor *inference.Predictor, symbols []string) error {
	enc := json.NewEncoder(os.Stdout)
	failed := 0

	for _, raw := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		if symbol == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		prediction, err := predictor.Predict(ctx, symbol)
		if err != nil {
			failed++
			var missing *models.MissingFeatureError
			if errors.As(err, &missing) {
				logger.Error("live features do not cover the model manifest",
					zap.String("symbol", symbol),
					zap.Strings("missing", missing.Missing),
				)
				continue
			}
			logger.Error("prediction failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		if err := enc.Encode(prediction); err != nil {
			return fmt.Errorf("failed to write prediction: %w", err)
		}
	}

	if failed > 0 && failed == len(symbols) {
		return fmt.Errorf("no symbol could be predicted")
	}
	return nil
}

// reloadModel swaps in a retrained bundle if the artifact dir changed
func reloadModel(predictor *inference.Predictor, dir string) {
	bundle, err := artifacts.Load(dir)
	if err != nil {
		logger.Warn("model reload failed, keeping current model", zap.Error(err))
		return
	}
	current := predictor.Bundle()
	if current != nil && bundle.Metadata.CreatedDate.Equal(current.Metadata.CreatedDate) {
		return
	}
	predictor.Swap(bundle)
	logger.Info("model reloaded", zap.Time("created", bundle.Metadata.CreatedDate))
}

func buildScorer(cfg *config.Config, checks map[string]health.Check) (sentiment.Scorer, func(), error) {
	s, err := scorer.New(&cfg.Sentiment)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Redis.Enabled || cfg.Sentiment.Provider == "lexicon" {
		return s, func() {}, nil
	}

	client, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, scoring without cache", zap.Error(err))
		return s, func() {}, nil
	}
	checks["redis"] = client.Health
	cached := sentiment.NewCached(s, client.ScoreCache("stock-signal:sentiment:"+cfg.Sentiment.Provider, cfg.Sentiment.CacheTTL))
	return cached, func() { client.Close() }, nil
}
