package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mayanetra/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Probabilities used when the classifier answers without a numeric confidence
const (
	FallbackAIProbability    = 0.78
	FallbackHumanProbability = 0.22
)

// DefaultPath is the classifier's prediction endpoint
const DefaultPath = "/predict"

// ErrTransport covers connection errors, timeouts and responses that are not the expected JSON shape
var ErrTransport = errors.New("transport failure")

// ServiceError is an error message reported by the classifier itself
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return "classifier rejected input: " + e.Message
}

// Config configures the classifier client
type Config struct {
	BaseURL string
	Path    string
	Timeout time.Duration
}

// Client talks to the remote text classifier
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// PredictResponse is the raw classifier answer
type PredictResponse struct {
	Prediction  string   `json:"prediction"`
	Probability *float64 `json:"probability,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// NewClient creates a new classifier client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + path,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Classify sends text to the classifier once. There are no retries.
// text is expected to be trimmed and non-empty already.
func (c *Client) Classify(ctx context.Context, text string) (*models.PredictionResult, error) {
	requestID := uuid.New().String()

	jsonData, err := json.Marshal(models.SubmissionRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request: %w", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Classifier request failed", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("%w: failed to send request: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrTransport, err)
	}

	c.logger.Debug("Classifier responded",
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	var result PredictResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response (status %d): %w", ErrTransport, resp.StatusCode, err)
	}

	// A reported error wins over the HTTP status.
	if result.Error != "" {
		c.logger.Info("Classifier reported an error",
			zap.String("request_id", requestID),
			zap.String("error", result.Error))
		return nil, &ServiceError{Message: result.Error}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: classifier returned status %d", ErrTransport, resp.StatusCode)
	}

	return normalize(result)
}

func normalize(resp PredictResponse) (*models.PredictionResult, error) {
	label := strings.TrimSpace(resp.Prediction)
	if label == "" {
		return nil, fmt.Errorf("%w: response has no prediction", ErrTransport)
	}

	if resp.Probability == nil {
		return &models.PredictionResult{Label: label, Probability: FallbackProbability(label)}, nil
	}

	p := *resp.Probability
	if p < 0 || p > 1 {
		return nil, fmt.Errorf("%w: probability %v outside [0,1]", ErrTransport, p)
	}
	return &models.PredictionResult{Label: label, Probability: p}, nil
}

// FallbackProbability derives a probability from the label text alone.
// Any label containing "ai" in any case counts as the AI-generated class.
func FallbackProbability(label string) float64 {
	if strings.Contains(strings.ToLower(label), "ai") {
		return FallbackAIProbability
	}
	return FallbackHumanProbability
}
