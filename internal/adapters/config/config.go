package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents application configuration
type Config struct {
	Pipeline   PipelineConfig   `envconfig:"PIPELINE"`
	Labels     LabelsConfig     `envconfig:"LABELS"`
	Training   TrainingConfig   `envconfig:"TRAINING"`
	Sentiment  SentimentConfig  `envconfig:"SENTIMENT"`
	Providers  ProvidersConfig  `envconfig:"PROVIDERS"`
	Artifacts  ArtifactsConfig  `envconfig:"ARTIFACTS"`
	Database   DatabaseConfig   `envconfig:"DATABASE"`
	ClickHouse ClickHouseConfig `envconfig:"CLICKHOUSE"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	Telegram   TelegramConfig   `envconfig:"TELEGRAM"`
	Metrics    MetricsConfig    `envconfig:"METRICS"`
	Logging    LoggingConfig    `envconfig:"LOGGING"`
	Predict    PredictConfig    `envconfig:"PREDICT"`
}

// PipelineConfig represents offline data pipeline parameters
type PipelineConfig struct {
	Tickers        []string `envconfig:"TICKERS" default:"AAPL,AMZN,DIS,GOOGL,JNJ,JPM,KO,MSFT,NVDA,TSLA" validate:"min=1,dive,required"`
	StartDate      string   `envconfig:"START_DATE" default:"26/06/2024"`
	PriceSource    string   `envconfig:"PRICE_SOURCE" default:"csv" validate:"oneof=csv clickhouse"` // csv or clickhouse
	PriceDir       string   `envconfig:"PRICE_DIR" default:"data/price"`
	PricePattern   string   `envconfig:"PRICE_PATTERN" default:"13M Data %s - Sheet1.csv"`
	NewsDir        string   `envconfig:"NEWS_DIR" default:"data/news"`
	NewsPattern    string   `envconfig:"NEWS_PATTERN" default:"%s_news_complete_year.csv"`
	NewsLowercase  bool     `envconfig:"NEWS_LOWERCASE" default:"true"`
	DropIncomplete bool     `envconfig:"DROP_INCOMPLETE" default:"false"`
}

// LabelsConfig represents label generation parameters
type LabelsConfig struct {
	Horizon       int     `envconfig:"LABEL_HORIZON" default:"5" validate:"gte=1"`
	BuyThreshold  float64 `envconfig:"LABEL_BUY_THRESHOLD" default:"0.02" validate:"gt=0"`
	SellThreshold float64 `envconfig:"LABEL_SELL_THRESHOLD" default:"-0.02" validate:"lt=0"`
}

// TrainingConfig represents model selection parameters
type TrainingConfig struct {
	Seed            int64   `envconfig:"TRAIN_SEED" default:"42"`
	TestRatio       float64 `envconfig:"TRAIN_TEST_RATIO" default:"0.2" validate:"gt=0,lt=1"`
	CVFolds         int     `envconfig:"TRAIN_CV_FOLDS" default:"3" validate:"gte=2"`
	DiagnosticFolds int     `envconfig:"TRAIN_DIAGNOSTIC_FOLDS" default:"5" validate:"gte=2"`
	Workers         int     `envconfig:"TRAIN_WORKERS" default:"4" validate:"gte=1"`
	GridFile        string  `envconfig:"TRAIN_GRID_FILE"`
	Grid            GridConfig
}

// GridConfig is the hyperparameter search space
type GridConfig struct {
	NEstimators     []int    `envconfig:"GRID_N_ESTIMATORS" default:"100,200" yaml:"n_estimators" validate:"min=1,dive,gte=1"`
	MaxDepth        []int    `envconfig:"GRID_MAX_DEPTH" default:"10,11,12,13,14,15" yaml:"max_depth" validate:"min=1,dive,gte=0"`
	MinSamplesSplit []int    `envconfig:"GRID_MIN_SAMPLES_SPLIT" default:"5,10,15" yaml:"min_samples_split" validate:"min=1,dive,gte=2"`
	MinSamplesLeaf  []int    `envconfig:"GRID_MIN_SAMPLES_LEAF" default:"2,4,6" yaml:"min_samples_leaf" validate:"min=1,dive,gte=1"`
	MaxFeatures     []string `envconfig:"GRID_MAX_FEATURES" default:"sqrt" yaml:"max_features" validate:"min=1,dive,oneof=sqrt log2 all"`
}

// SentimentConfig represents article scoring parameters
type SentimentConfig struct {
	Provider      string        `envconfig:"SENTIMENT_PROVIDER" default:"api" validate:"oneof=api huggingface lexicon"` // api, huggingface or lexicon
	URL           string        `envconfig:"SENTIMENT_URL" default:"http://127.0.0.1:8000/api/sentiment/"` // cmd/predict with PREDICT_ADDR=:8000
	ModelURL      string        `envconfig:"SENTIMENT_MODEL_URL" default:"https://api-inference.huggingface.co/models/mrm8488/distilroberta-finetuned-financial-news-sentiment-analysis"`
	Token         string        `envconfig:"SENTIMENT_TOKEN"`
	Timeout       time.Duration `envconfig:"SENTIMENT_TIMEOUT" default:"10s"`
	Delay         time.Duration `envconfig:"SENTIMENT_DELAY" default:"200ms"`
	WindowHours   int           `envconfig:"SENTIMENT_WINDOW_HOURS" default:"12" validate:"gte=1"`
	FailurePolicy string        `envconfig:"SENTIMENT_FAILURE_POLICY" default:"partial" validate:"oneof=partial skip neutral"` // partial, skip or neutral
	CacheTTL      time.Duration `envconfig:"SENTIMENT_CACHE_TTL" default:"720h"`
}

// ProvidersConfig represents live market data providers
type ProvidersConfig struct {
	Finnhub      ProviderConfig `ignored:"true"`
	AlphaVantage ProviderConfig `ignored:"true"`
	HistoryDays  int            `envconfig:"HISTORY_DAYS" default:"100" validate:"gte=1"`
}

// ProviderConfig represents single HTTP provider configuration, read from
// <PROVIDER>_API_KEY, <PROVIDER>_BASE_URL and <PROVIDER>_TIMEOUT
type ProviderConfig struct {
	APIKey  string        `envconfig:"API_KEY"`
	BaseURL string        `envconfig:"BASE_URL"`
	Timeout time.Duration `envconfig:"TIMEOUT"` // 0 uses the client default
}

// ArtifactsConfig represents outputs of the training pipeline
type ArtifactsConfig struct {
	Dir          string `envconfig:"ARTIFACTS_DIR" default:"models"`
	ExportDir    string `envconfig:"EXPORT_DIR" default:"data/consolidated"`
	ExportFormat string `envconfig:"EXPORT_FORMAT" default:"csv" validate:"oneof=csv parquet none"` // csv, parquet or none
}

// DatabaseConfig represents database connection parameters
type DatabaseConfig struct {
	Enabled        bool   `envconfig:"DB_ENABLED" default:"false"`
	Host           string `envconfig:"DB_HOST" default:"localhost"`
	Port           int    `envconfig:"DB_PORT" default:"5432"`
	Name           string `envconfig:"DB_NAME" default:"stocksignal"`
	User           string `envconfig:"DB_USER"`
	Password       string `envconfig:"DB_PASSWORD"`
	SSLMode        string `envconfig:"DB_SSLMODE" default:"disable"`
	MigrationsPath string `envconfig:"DB_MIGRATIONS_PATH" default:"migrations"`
}

// ClickHouseConfig represents ClickHouse connection parameters
type ClickHouseConfig struct {
	Enabled    bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host       string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port       int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	Database   string `envconfig:"CLICKHOUSE_DATABASE" default:"stocksignal"`
	User       string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password   string `envconfig:"CLICKHOUSE_PASSWORD"`
	Batch      int    `envconfig:"CLICKHOUSE_BATCH" default:"1000"`
	MirrorBars bool   `envconfig:"CLICKHOUSE_MIRROR_BARS" default:"true"` // copy csv bars into market_ohlcv
}

// RedisConfig represents Redis connection parameters
type RedisConfig struct {
	Enabled  bool          `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int           `envconfig:"REDIS_PORT" default:"6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	LockTTL  time.Duration `envconfig:"REDIS_LOCK_TTL" default:"2h"`
}

// TelegramConfig represents Telegram notifier configuration
type TelegramConfig struct {
	BotToken     string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID       int64  `envconfig:"TELEGRAM_CHAT_ID"`
	TemplatesDir string `envconfig:"TELEGRAM_TEMPLATES_DIR"`
}

// MetricsConfig represents metrics export configuration
type MetricsConfig struct {
	TextfilePath string `envconfig:"METRICS_TEXTFILE"`
}

// PredictConfig controls cmd/predict. With neither a schedule nor an
// address it predicts once and exits.
type PredictConfig struct {
	Schedule       string `envconfig:"PREDICT_SCHEDULE"`
	Addr           string `envconfig:"PREDICT_ADDR"`
	VolumeFallback string `envconfig:"PREDICT_VOLUME_FALLBACK" default:"missing" validate:"oneof=missing quote"` // missing or quote
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE"`
}

var validate = validator.New()

const (
	dateLayout    = "02/01/2006"
	isoDateLayout = "2006-01-02"
)

// Load reads .env files (if present) and then the environment.
// A grid file, when configured, replaces the grid from the environment.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := envconfig.Process("FINNHUB", &cfg.Providers.Finnhub); err != nil {
		return nil, fmt.Errorf("failed to process finnhub config: %w", err)
	}
	if err := envconfig.Process("ALPHAVANTAGE", &cfg.Providers.AlphaVantage); err != nil {
		return nil, fmt.Errorf("failed to process alphavantage config: %w", err)
	}

	if cfg.Training.GridFile != "" {
		grid, err := LoadGrid(cfg.Training.GridFile)
		if err != nil {
			return nil, err
		}
		cfg.Training.Grid = *grid
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadGrid reads a YAML hyperparameter grid
func LoadGrid(path string) (*GridConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read grid file: %w", err)
	}

	var grid GridConfig
	if err := yaml.Unmarshal(data, &grid); err != nil {
		return nil, fmt.Errorf("failed to parse grid file: %w", err)
	}

	return &grid, nil
}

// Validate checks field rules and the constraints that span fields
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return describe(err)
	}
	if _, err := c.Pipeline.Start(); err != nil {
		return err
	}
	if c.Pipeline.PriceSource == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("clickhouse price source requires CLICKHOUSE_ENABLED")
	}
	return nil
}

// Validate checks every grid axis has at least one valid value
func (g *GridConfig) Validate() error {
	if err := validate.Struct(g); err != nil {
		return describe(err)
	}
	return nil
}

// describe turns the first validator failure into a readable error
func describe(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	fe := errs[0]
	switch fe.Tag() {
	case "min":
		return fmt.Errorf("%s must not be empty", fe.Namespace())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s, got %v", fe.Namespace(), strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "required":
		return fmt.Errorf("%s is required", fe.Namespace())
	default:
		return fmt.Errorf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
	}
}

// Start returns the parsed start date (dd/mm/yyyy or yyyy-mm-dd)
func (p *PipelineConfig) Start() (time.Time, error) {
	for _, layout := range []string{dateLayout, isoDateLayout} {
		if t, err := time.Parse(layout, p.StartDate); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid start date %q", p.StartDate)
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetDSN returns ClickHouse connection string
func (c *ClickHouseConfig) GetDSN() string {
	return fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

// Addr returns Redis host:port
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NotifyEnabled reports whether training reports go to Telegram
func (c *TelegramConfig) NotifyEnabled() bool {
	return c.BotToken != "" && c.ChatID != 0
}
