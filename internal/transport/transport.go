package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// UploadBaseURL is the resumable/simple upload endpoint.
const UploadBaseURL = "https://www.googleapis.com/upload/storage/v1/b"

// JSONAPIBaseURL is the JSON metadata API endpoint, already ending in
// "/b": callers append "/{bucket}/o/...".
const JSONAPIBaseURL = "https://www.googleapis.com/storage/v1/b"

// Retry tuning.
const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
)

// Credentials holds the service-account identity needed to authenticate
// requests and to sign URLs/policies.
type Credentials struct {
	ClientEmail   string
	PrivateKeyPEM []byte
}

// CredentialsProvider supplies bearer tokens and signing credentials.
// Client only depends on this interface; callers wire a real
// implementation such as GoogleCredentials.
type CredentialsProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
	// Token returns a bearer token for Authorization headers.
	Token(ctx context.Context) (string, error)
}

// Client performs authenticated HTTP requests against the GCS JSON API
// and upload endpoints, with retry and exponential backoff.
type Client struct {
	HTTPClient *http.Client
	Creds      CredentialsProvider
	Logger     *slog.Logger

	// MaxRetries bounds the generic retry loop in Do.
	MaxRetries int

	// sleepFunc allows tests to skip real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New creates a Client. A nil logger defaults to slog.Default().
func New(httpClient *http.Client, creds CredentialsProvider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		HTTPClient: httpClient,
		Creds:      creds,
		Logger:     logger,
		MaxRetries: maxRetries,
		sleepFunc:  timeSleep,
	}
}

// Do executes an authenticated JSON request against url (an absolute URL)
// with automatic retry on transient errors. The caller is responsible for
// closing the response body on success. On error returns an *APIError
// wrapping a sentinel; use errors.Is to classify.
func (c *Client) Do(ctx context.Context, method, url string, body io.Reader, contentType string) (*http.Response, error) {
	requestID := uuid.NewString()

	var attempt int

	for {
		if err := rewindBody(body); err != nil {
			return nil, err
		}

		resp, err := c.doOnce(ctx, method, url, body, contentType, requestID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("transport: request canceled: %w", ctx.Err())
			}

			if attempt >= c.MaxRetries {
				return nil, fmt.Errorf("transport: %s %s failed after %d retries: %w", method, url, c.MaxRetries, err)
			}

			backoff := c.calcBackoff(attempt)
			c.Logger.Warn("retrying after network error",
				slog.String("method", method), slog.String("url", url),
				slog.Int("attempt", attempt+1), slog.Duration("backoff", backoff),
				slog.String("request_id", requestID), slog.String("error", err.Error()))

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, fmt.Errorf("transport: request canceled: %w", sleepErr)
			}

			attempt++

			continue
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		errBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if IsRetryable(resp.StatusCode) && attempt < c.MaxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.Logger.Warn("retrying after HTTP error",
				slog.String("method", method), slog.String("url", url),
				slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff), slog.String("request_id", requestID))

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, fmt.Errorf("transport: request canceled: %w", sleepErr)
			}

			attempt++

			continue
		}

		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(errBody), Err: ClassifyStatus(resp.StatusCode)}
	}
}

func (c *Client) doOnce(
	ctx context.Context, method, url string, body io.Reader, contentType, requestID string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("transport: creating request: %w", err)
	}

	tok, err := c.Creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-Goog-Request-Id", requestID)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.Logger.Debug("preparing request",
		slog.String("method", method), slog.String("url", url), slog.String("request_id", requestID))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	c.Logger.Debug("response received",
		slog.String("method", method), slog.Int("status", resp.StatusCode), slog.String("request_id", requestID))

	return resp, nil
}

// DoRaw executes a single request with no retry and no automatic body
// rewinding, used by the resumable-upload Transmit phase, where the
// request body is a live, non-seekable pipe and any retry must be driven
// by the caller's own state machine, not this generic loop.
func (c *Client) DoRaw(req *http.Request) (*http.Response, error) {
	tok, err := c.Creds.Token(req.Context())
	if err != nil {
		return nil, fmt.Errorf("transport: obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)

	return c.HTTPClient.Do(req)
}

// retryBackoff honors Retry-After on 429s, falling back to exponential
// backoff with jitter otherwise.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with +/-25% jitter. This is
// the general request-retry backoff; the resumable state machine's own
// 5xx policy (2^retries seconds plus up to a second of jitter) lives in
// internal/upload.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand

	return time.Duration(backoff + jitter)
}

func rewindBody(body io.Reader) error {
	if body == nil {
		return nil
	}

	if seeker, ok := body.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("transport: rewinding request body for retry: %w", err)
		}
	}

	return nil
}

func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetSleepFunc overrides the retry delay function, for tests.
func (c *Client) SetSleepFunc(f func(ctx context.Context, d time.Duration) error) {
	c.sleepFunc = f
}
