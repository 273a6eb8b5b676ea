package vertex

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

	"github.com/googleapis/gax-go/v2"
	"golang.org/x/oauth2"
)

const (
	defaultRequestTimeout = 90 * time.Second
	maxPredictAttempts    = 3
)

var (
	// ErrUnauthenticated indicates the credential could not be minted or was rejected.
	ErrUnauthenticated = errors.New("vertex: unauthenticated")
	// ErrRejected indicates the backend refused the request (content policy or invalid argument).
	ErrRejected = errors.New("vertex: request rejected")
	// ErrModelNotFound indicates the requested publisher model does not exist.
	ErrModelNotFound = errors.New("vertex: model not found")
	// ErrUnavailable indicates a transient backend outage after retries were exhausted.
	ErrUnavailable = errors.New("vertex: backend unavailable")
)

// Config carries the connection settings for the predict endpoint.
type Config struct {
	ProjectID string
	Region    string
	Endpoint  string // optional override, primarily for tests
}

// Client invokes publisher models through the Vertex AI predict REST surface.
type Client struct {
	cfg        Config
	tokens     oauth2.TokenSource
	httpClient *http.Client
	backoff    func() gax.Backoff
}

// Option customises Client construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for predict calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient constructs a predict client authenticated by the token source.
func NewClient(cfg Config, tokens oauth2.TokenSource, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("vertex: project id is required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		return nil, errors.New("vertex: region is required")
	}
	if tokens == nil {
		return nil, errors.New("vertex: token source is required")
	}

	client := &Client{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		backoff: func() gax.Backoff {
			return gax.Backoff{Initial: 500 * time.Millisecond, Max: 8 * time.Second, Multiplier: 2}
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Predict sends the assembled request to the model and decodes the raw predictions.
func (c *Client) Predict(ctx context.Context, req PredictRequest) (PredictResponse, error) {
	if c == nil {
		return PredictResponse{}, errors.New("vertex: client not initialised")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return PredictResponse{}, fmt.Errorf("%w: model is required", ErrRejected)
	}
	if len(req.Instances) == 0 {
		return PredictResponse{}, fmt.Errorf("%w: at least one instance is required", ErrRejected)
	}

	payload, err := json.Marshal(predictEnvelope{Instances: req.Instances, Parameters: req.Parameters})
	if err != nil {
		return PredictResponse{}, fmt.Errorf("vertex: encode request: %w", err)
	}

	token, err := c.tokens.Token()
	if err != nil {
		return PredictResponse{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	endpoint := c.endpointFor(model)
	backoff := c.backoff()

	var lastErr error
	for attempt := 0; attempt < maxPredictAttempts; attempt++ {
		if attempt > 0 {
			if err := gax.Sleep(ctx, backoff.Pause()); err != nil {
				return PredictResponse{}, err
			}
		}

		response, retryable, err := c.doPredict(ctx, endpoint, token.AccessToken, payload)
		if err == nil {
			return response, nil
		}
		lastErr = err
		if !retryable {
			return PredictResponse{}, err
		}
	}
	return PredictResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) doPredict(ctx context.Context, endpoint, accessToken string, payload []byte) (PredictResponse, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return PredictResponse{}, false, fmt.Errorf("vertex: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return PredictResponse{}, true, fmt.Errorf("vertex: predict call: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024*1024))
	if err != nil {
		return PredictResponse{}, true, fmt.Errorf("vertex: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return PredictResponse{}, retryableStatus(resp.StatusCode), classifyHTTPError(resp.StatusCode, body)
	}

	var decoded PredictResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return PredictResponse{}, false, fmt.Errorf("vertex: decode response: %w", err)
	}
	return decoded, false, nil
}

func (c *Client) endpointFor(model string) string {
	base := strings.TrimSpace(c.cfg.Endpoint)
	if base == "" {
		base = fmt.Sprintf("https://%s-aiplatform.googleapis.com", c.cfg.Region)
	}
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		strings.TrimRight(base, "/"), c.cfg.ProjectID, c.cfg.Region, model)
}

type apiErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func classifyHTTPError(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthenticated, message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrModelNotFound, message)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrRejected, message)
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", ErrUnavailable, message)
	default:
		return fmt.Errorf("vertex: predict failed with status %d: %s", status, message)
	}
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
