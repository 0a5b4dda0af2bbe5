package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/internal/artifacts"
	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/models"
)

// Predictor is the inference surface served over HTTP
type Predictor interface {
	Predict(ctx context.Context, symbol string) (*models.Prediction, error)
	Bundle() *artifacts.Bundle
}

// Classifier scores one article with its class probabilities
type Classifier interface {
	Classify(ctx context.Context, headline, summary string) (*models.SentimentScore, error)
}

// Check reports the health of one dependency
type Check func(ctx context.Context) error

// Server provides health, metrics, prediction and sentiment endpoints
type Server struct {
	server     *http.Server
	predictor  Predictor
	classifier Classifier
	checks     map[string]Check
	ready      bool
	readyMu    sync.RWMutex
	startTime  time.Time
}

// HealthStatus represents system health
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ReadinessStatus represents system readiness
type ReadinessStatus struct {
	Ready     bool              `json:"ready"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Model     *models.ModelInfo `json:"model,omitempty"`
}

type errorResponse struct {
	Error            string   `json:"error"`
	Missing          []string `json:"missing_features,omitempty"`
	RequiredFeatures []string `json:"required_features,omitempty"`
}

type predictRequest struct {
	Symbol string `json:"symbol"`
}

type sentimentRequest struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
}

const classifyTimeout = 30 * time.Second

// NewServer creates server on addr; checks may be nil
func NewServer(addr string, predictor Predictor, checks map[string]Check) *Server {
	mux := http.NewServeMux()

	s := &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		predictor: predictor,
		checks:    checks,
		startTime: time.Now(),
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReadiness)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReadiness)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/predict/", s.handlePredict)
	mux.HandleFunc("/api/sentiment/", s.handleSentiment)

	return s
}

// WithClassifier enables /api/sentiment/. Call before Start.
func (s *Server) WithClassifier(c Classifier) *Server {
	s.classifier = c
	return s
}

// Handler exposes the routes for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Stop
func (s *Server) Start() error {
	logger.Info("prediction server starting",
		zap.String("addr", s.server.Addr),
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("stopping prediction server")
	return s.server.Shutdown(ctx)
}

// SetReady marks the service as ready
func (s *Server) SetReady(ready bool) {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	s.ready = ready

	if ready {
		logger.Info("service marked as ready")
	} else {
		logger.Warn("service marked as not ready")
	}
}

// handleHealth is the liveness probe; dependencies are listed only with ?verbose=true
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	}

	if r.URL.Query().Get("verbose") == "true" {
		status.Checks, _ = s.runChecks(r.Context())
	}

	writeJSON(w, http.StatusOK, status)
}

// handleReadiness is 200 only once ready, with a model loaded and every check passing
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.readyMu.RLock()
	ready := s.ready
	s.readyMu.RUnlock()

	checks, allHealthy := s.runChecks(r.Context())

	status := ReadinessStatus{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if bundle := s.predictor.Bundle(); bundle != nil {
		info := bundle.Info()
		status.Model = &info
		checks["model"] = "loaded"
	} else {
		checks["model"] = "missing"
		allHealthy = false
	}

	status.Ready = ready && allHealthy

	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// handlePredict serves POST {"symbol": "AAPL"} on /api/predict/ and
// GET /api/predict/AAPL
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var symbol string
	switch r.Method {
	case http.MethodGet:
		symbol = strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/predict/"), "/")
	case http.MethodPost:
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		symbol = req.Symbol
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "symbol is required"})
		return
	}

	bundle := s.predictor.Bundle()
	if bundle == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "model not loaded"})
		return
	}

	prediction, err := s.predictor.Predict(r.Context(), symbol)
	if err != nil {
		var missing *models.MissingFeatureError
		var upstream *models.UpstreamError
		switch {
		case errors.As(err, &missing):
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Error:            err.Error(),
				Missing:          missing.Missing,
				RequiredFeatures: bundle.Manifest,
			})
		case errors.As(err, &upstream):
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		default:
			logger.Error("prediction failed", zap.String("symbol", symbol), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "prediction failed"})
		}
		return
	}

	writeJSON(w, http.StatusOK, prediction)
}

// handleSentiment scores POST {"headline", "summary"} and answers with
// {"final_sentiment_score", "details"}
func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	if s.classifier == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "sentiment model not configured"})
		return
	}

	var req sentimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	headline := strings.TrimSpace(req.Headline)
	summary := strings.TrimSpace(req.Summary)
	if headline == "" && summary == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no text provided"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), classifyTimeout)
	defer cancel()

	result, err := s.classifier.Classify(ctx, headline, summary)
	if err != nil {
		var upstream *models.UpstreamError
		if errors.As(err, &upstream) {
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
			return
		}
		logger.Error("sentiment classification failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "sentiment classification failed"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) runChecks(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string, len(s.checks)+1)
	healthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			results[name] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			results[name] = "healthy"
		}
	}
	return results, healthy
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write response", zap.Error(err))
	}
}
