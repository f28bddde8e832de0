// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package storageclient implements the Storage Gateway over HTTP/JSON.
package storageclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ManuGH/fem/internal/feature/ports"
	"github.com/ManuGH/fem/internal/log"
	"github.com/ManuGH/fem/internal/resilience"
	"github.com/ManuGH/fem/internal/telemetry"
)

var (
	// ErrUnavailable is returned when storage could not be reached or kept
	// failing after the retries.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrRejected is returned when storage refused the request.
	ErrRejected = errors.New("storage rejected request")
)

const (
	pathStore     = "/files/store"
	pathReference = "/files/reference"
	pathDelete    = "/files/delete"

	// HeaderIdempotencyKey is constant across the retries of one call.
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Options configures the client. Zero fields use the defaults.
// BreakerThreshold consecutive unavailable answers stop calls for
// BreakerReset.
type Options struct {
	Timeout          time.Duration
	MaxRetries       int
	Backoff          time.Duration
	MaxBackoff       time.Duration
	RateLimit        rate.Limit
	RateLimitBurst   int
	UserAgent        string
	Token            string
	BreakerThreshold int
	BreakerReset     time.Duration
}

const (
	defaultTimeout        = 10 * time.Second
	defaultRetries        = 2
	defaultBackoff        = 200 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
	defaultRateLimit      = 20
	defaultRateLimitBurst = 40
)

func normalizeOptions(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = "fem"
	}
	return opts
}

// Client submits file requests to the storage service. It implements
// ports.StorageGateway.
type Client struct {
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	userAgent  string
	token      string
	breaker    *resilience.CircuitBreaker

	mu  sync.Mutex
	rnd *rand.Rand
}

var _ ports.StorageGateway = (*Client)(nil)

func New(baseURL string, opts Options) *Client {
	o := normalizeOptions(opts)
	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: o.Timeout,
		TLSHandshakeTimeout:   5 * time.Second,
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout:   o.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		limiter:    rate.NewLimiter(o.RateLimit, o.RateLimitBurst),
		maxRetries: o.MaxRetries,
		backoff:    o.Backoff,
		maxBackoff: o.MaxBackoff,
		userAgent:  o.UserAgent,
		token:      o.Token,
		breaker:    resilience.NewCircuitBreaker("storage", o.BreakerThreshold, o.BreakerReset),
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
}

type groupResponse struct {
	GroupID string `json:"groupId"`
}

func (c *Client) Store(ctx context.Context, reqs []ports.FileStoreRequest) (string, error) {
	return c.submit(ctx, pathStore, reqs)
}

func (c *Client) Reference(ctx context.Context, reqs []ports.FileReferenceRequest) (string, error) {
	return c.submit(ctx, pathReference, reqs)
}

func (c *Client) Delete(ctx context.Context, reqs []ports.FileDeletionRequest) (string, error) {
	return c.submit(ctx, pathDelete, reqs)
}

// submit posts {"requests": reqs} and returns the group id of the answer.
func (c *Client) submit(ctx context.Context, path string, reqs any) (string, error) {
	body, err := json.Marshal(struct {
		Requests any `json:"requests"`
	}{reqs})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}

	var resp *http.Response
	err = c.breaker.Execute(func() error {
		var postErr error
		resp, postErr = c.post(ctx, path, body)
		return postErr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: %s returned %d: %s", ErrRejected, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out groupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode %s response: %w", path, err)
	}
	if out.GroupID == "" {
		return "", fmt.Errorf("%w: %s returned no group id", ErrRejected, path)
	}
	return out.GroupID, nil
}

// post sends body with retries on transport errors and 5xx answers. The
// caller closes the returned body.
func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	ctx, span := telemetry.Tracer("fem.storageclient").Start(ctx, "fem.storage.http", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("http.route", path))
	defer span.End()

	key := uuid.NewString()
	logger := log.WithComponentFromContext(ctx, "storageclient")
	maxAttempts := c.maxRetries + 1
	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		c.applyHeaders(req, key)

		resp, err := c.http.Do(req)
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		if err == nil && status < http.StatusInternalServerError {
			span.SetAttributes(attribute.Int("http.status_code", status), attribute.Int("attempts", attempt))
			if status >= http.StatusBadRequest {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			return resp, nil
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		lastErr, lastStatus = err, status
		if ctx.Err() != nil || attempt == maxAttempts {
			break
		}

		wait := c.backoffFor(attempt - 1)
		logger.Debug().
			Str(log.FieldEvent, "storageclient.retry").
			Str("path", path).
			Int("attempt", attempt).
			Int("status", status).
			AnErr("cause", err).
			Dur("wait", wait).
			Msg("retrying storage request")
		if err := sleepWithContext(ctx, wait); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%s returned %d", path, lastStatus)
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) applyHeaders(req *http.Request, key string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(HeaderIdempotencyKey, key)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) backoffFor(attempt int) time.Duration {
	wait := c.backoff * time.Duration(1<<attempt)
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	c.mu.Lock()
	jitter := time.Duration(c.rnd.Int63n(int64(wait/5 + 1)))
	c.mu.Unlock()
	return wait + jitter
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
