// Package fal talks to the FAL.ai queue API for the multiple-angles
// image-edit model.
//
// client.go implements the queue round-trip (submit, poll, fetch) and wraps
// it in the throttle and retry policy from retry.go. It composes:
//   - core.GetHTTPClient: HTTP client factory
//   - logging.Logger: structured logging with key redaction
//   - cenkalti/backoff: exponential retry schedule
package fal

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

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"multiangle/core"
	"multiangle/logging"
)

const (
	// DefaultQueueURL is the public FAL queue.
	DefaultQueueURL = "https://queue.fal.run"

	// DefaultEndpoint is the multiple-angles LoRA gallery model.
	DefaultEndpoint = "fal-ai/qwen-image-edit-plus-lora-gallery/multiple-angles"

	DefaultPollInterval   = 500 * time.Millisecond
	DefaultRequestTimeout = 300 * time.Second

	maxErrorBody = 64 << 10
)

var (
	// ErrMissingKey indicates the client was built without credentials.
	ErrMissingKey = errors.New("fal: API key is required")

	// ErrNilLogger indicates the logger is nil.
	ErrNilLogger = errors.New("fal: logger cannot be nil")
)

// Observer receives per-attempt and per-retry events. metrics.Recorder
// implements it; nil disables observation.
type Observer interface {
	ObserveAttempt(outcome string)
	ObserveRetry(reason string)
}

type noopObserver struct{}

func (noopObserver) ObserveAttempt(string) {}
func (noopObserver) ObserveRetry(string)   {}

// Options configures a Client. Zero values select defaults.
type Options struct {
	APIKey         string
	QueueURL       string
	Endpoint       string
	HTTPClient     *http.Client
	PollInterval   time.Duration
	RequestTimeout time.Duration
	Policy         RetryPolicy
	Logger         *logging.Logger
	Observer       Observer

	// Sleeper replaces the throttle and poll waits. Tests use it to record
	// delays without waiting.
	Sleeper Sleeper

	// NewTimer replaces the backoff timer between retries.
	NewTimer func() backoff.Timer
}

// Client submits generation jobs to the FAL queue.
//
// A Client issues one request at a time per Generate call and holds no
// per-request state, so a single instance serves a whole run.
type Client struct {
	apiKey         string
	queueURL       string
	endpoint       string
	httpClient     *http.Client
	pollInterval   time.Duration
	requestTimeout time.Duration
	policy         RetryPolicy
	logger         *logging.Logger
	observer       Observer
	sleep          Sleeper
	newTimer       func() backoff.Timer
}

// NewClient creates a Client.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingKey
	}
	if opts.Logger == nil {
		return nil, ErrNilLogger
	}

	c := &Client{
		apiKey:         opts.APIKey,
		queueURL:       strings.TrimRight(opts.QueueURL, "/"),
		endpoint:       strings.Trim(opts.Endpoint, "/"),
		httpClient:     opts.HTTPClient,
		pollInterval:   opts.PollInterval,
		requestTimeout: opts.RequestTimeout,
		policy:         opts.Policy.normalized(),
		logger:         opts.Logger.Named("api"),
		observer:       opts.Observer,
		sleep:          opts.Sleeper,
		newTimer:       opts.NewTimer,
	}
	if c.queueURL == "" {
		c.queueURL = DefaultQueueURL
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = DefaultRequestTimeout
	}
	if c.observer == nil {
		c.observer = noopObserver{}
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}

	return c, nil
}

// NewClientFromConfig builds a Client from the loaded configuration.
func NewClientFromConfig(cfg *core.Config, logger *logging.Logger, observer Observer) (*Client, error) {
	return NewClient(Options{
		APIKey: cfg.FalKey,
		// Per-attempt deadlines come from RequestTimeout; the HTTP client
		// itself has none so long polls are not cut short.
		HTTPClient:     core.GetHTTPClient(cfg, 0),
		QueueURL:       cfg.QueueURL,
		Endpoint:       cfg.Endpoint,
		PollInterval:   cfg.PollInterval,
		RequestTimeout: cfg.RequestTimeout,
		Policy: RetryPolicy{
			ThrottleDelay: cfg.ThrottleDelay,
			MaxAttempts:   cfg.MaxRetries,
			InitialDelay:  cfg.InitialRetryDelay,
			Multiplier:    cfg.RetryMultiplier,
			MaxDelay:      cfg.MaxRetryDelay,
		},
		Logger:   logger,
		Observer: observer,
	})
}

// HTTPClient returns the underlying HTTP client, shared with the downloader.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Policy returns the effective retry policy.
func (c *Client) Policy() RetryPolicy {
	return c.policy
}

// Close releases idle keep-alive connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Generate sleeps the throttle delay, then runs one queue round-trip with
// retries on rate limiting and transient failures.
//
// Errors:
//   - *RetryError when every attempt failed with a retryable error
//   - the classified error (ErrUnauthorized, ErrBadRequest, ...) for a
//     non-retryable failure, after exactly one attempt
//   - ctx.Err() when the context is cancelled
func (c *Client) Generate(ctx context.Context, args EditArguments) (*Result, error) {
	log := c.logger.With(zap.Float64("angle", args.RotateRightLeft))

	if err := c.sleep(ctx, c.policy.ThrottleDelay); err != nil {
		return nil, err
	}

	var (
		result    *Result
		lastErr   error
		attempts  int
		permanent bool
	)

	operation := func() error {
		if err := ctx.Err(); err != nil {
			permanent = true
			return backoff.Permanent(err)
		}

		attempts++
		res, err := c.attempt(ctx, args)
		c.observer.ObserveAttempt(outcomeLabel(err))
		if err == nil {
			result = res
			return nil
		}

		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			permanent = true
			return backoff.Permanent(ctxErr)
		}
		if !IsRetryable(err) {
			permanent = true
			log.Error("request failed, not retrying",
				zap.Int("attempt", attempts),
				zap.Error(err))
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		reason := retryReason(err)
		c.observer.ObserveRetry(reason)
		log.Warn("attempt failed, backing off",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", c.policy.MaxAttempts),
			zap.String("reason", reason),
			zap.Duration("retry_in", next),
			zap.Error(err))
	}

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, c.policy.newBackOff(ctx), notify, timer)
	if err == nil {
		result.Attempts = attempts
		log.Debug("request succeeded", zap.Int("attempts", attempts), zap.String("request_id", result.RequestID))
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if permanent {
		return nil, lastErr
	}

	log.Error("retries exhausted",
		zap.Int("attempts", attempts),
		zap.Error(lastErr))
	return nil, &RetryError{Attempts: attempts, Err: lastErr}
}

// attempt performs submit, poll and fetch under a single per-attempt deadline.
func (c *Client) attempt(ctx context.Context, args EditArguments) (*Result, error) {
	actx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	sub, err := c.submit(actx, args)
	if err != nil {
		return nil, c.deadlineAware(ctx, actx, err)
	}
	log := c.logger.With(zap.String("request_id", sub.RequestID))
	log.Debug("job submitted")

	responseURL, err := c.waitForCompletion(actx, sub, log)
	if err != nil {
		return nil, c.deadlineAware(ctx, actx, err)
	}

	var result Result
	if err := c.getJSON(actx, responseURL, &result); err != nil {
		return nil, c.deadlineAware(ctx, actx, err)
	}
	if len(result.Images) == 0 || result.Images[0].URL == "" {
		return nil, fmt.Errorf("%w (request %s)", ErrNoImages, sub.RequestID)
	}
	result.RequestID = sub.RequestID
	return &result, nil
}

// deadlineAware turns an expired per-attempt deadline into ErrTransient while
// leaving parent cancellation untouched.
func (c *Client) deadlineAware(parent, attempt context.Context, err error) error {
	if parent.Err() == nil && errors.Is(attempt.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: no result within %s: %v", ErrTransient, c.requestTimeout, err)
	}
	return err
}

func (c *Client) submit(ctx context.Context, args EditArguments) (*submission, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("fal: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.queueURL+"/"+c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fal: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var sub submission
	if err := c.do(req, &sub); err != nil {
		return nil, err
	}
	if sub.RequestID == "" {
		return nil, fmt.Errorf("%w: submission response has no request_id", ErrTransient)
	}

	base := c.queueURL + "/" + appID(c.endpoint) + "/requests/" + sub.RequestID
	if sub.StatusURL == "" {
		sub.StatusURL = base + "/status"
	}
	if sub.ResponseURL == "" {
		sub.ResponseURL = base
	}
	return &sub, nil
}

// waitForCompletion polls the status URL until the job completes and returns
// the URL of the result payload.
func (c *Client) waitForCompletion(ctx context.Context, sub *submission, log *logging.Logger) (string, error) {
	lastStatus := ""
	for {
		var st jobStatus
		if err := c.getJSON(ctx, sub.StatusURL, &st); err != nil {
			return "", err
		}

		if st.Status != lastStatus {
			fields := []zap.Field{zap.String("status", st.Status)}
			if st.QueuePosition != nil {
				fields = append(fields, zap.Int("queue_position", *st.QueuePosition))
			}
			log.Debug("job status", fields...)
			lastStatus = st.Status
		}

		switch st.Status {
		case StatusCompleted:
			if st.Error != "" {
				if mentionsRateLimit(st.Error) {
					return "", fmt.Errorf("%w: %s", ErrRateLimited, st.Error)
				}
				return "", fmt.Errorf("%w: %s", ErrJobFailed, st.Error)
			}
			if st.ResponseURL != "" {
				return st.ResponseURL, nil
			}
			return sub.ResponseURL, nil
		case StatusInQueue, StatusInProgress:
		default:
			return "", fmt.Errorf("%w: unexpected job status %q", ErrTransient, st.Status)
		}

		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return "", err
		}
	}
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("fal: failed to create request: %w", err)
	}
	return c.do(req, out)
}

// do sends an authenticated request and decodes a 2xx JSON body into out.
func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "multiangle/"+core.Version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newAPIError(resp.StatusCode, errorMessage(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrTransient, err)
	}
	return nil
}

// errorMessage extracts "detail" or "error" from a JSON error body, falling
// back to the raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case len(payload.Detail) > 0:
			var s string
			if json.Unmarshal(payload.Detail, &s) == nil {
				return s
			}
			return string(payload.Detail)
		case payload.Error != "":
			return payload.Error
		case payload.Message != "":
			return payload.Message
		}
	}
	return string(body)
}

// appID returns the owner/app prefix of an endpoint path; the queue serves
// request status under the app, not the full endpoint.
func appID(endpoint string) string {
	parts := strings.SplitN(endpoint, "/", 3)
	if len(parts) < 2 {
		return endpoint
	}
	return parts[0] + "/" + parts[1]
}
