/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package fetch implements the single upstream-fetch module: a typed HTTP
// client with connection reuse, per-host concurrency limiting, bounded
// retries on connection errors and 5xx, and a response size cap.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrResponseTooLarge is returned when an upstream response exceeds the
// configured size cap.
var ErrResponseTooLarge = errors.New("upstream response exceeds size cap")

// Config configures a Client.
type Config struct {
	// PerHostConcurrency bounds in-flight requests to a single host.
	PerHostConcurrency int
	// RequestTimeout bounds a single attempt; it is clamped to
	// MaxRequestTimeout.
	RequestTimeout time.Duration
	// MaxRequestTimeout is the hard ceiling on RequestTimeout.
	MaxRequestTimeout time.Duration
	// MaxAttempts is the total number of tries (including the first),
	// applied only to connection errors and 5xx responses.
	MaxAttempts int
	// MaxResponseBytes caps the size of a read response body.
	MaxResponseBytes int64
}

// DefaultConfig returns the spec-documented defaults: 32 per-host
// concurrency, 30s timeout (120s ceiling), 3 attempts, 50MB response cap.
func DefaultConfig() Config {
	return Config{
		PerHostConcurrency: 32,
		RequestTimeout:     30 * time.Second,
		MaxRequestTimeout:  120 * time.Second,
		MaxAttempts:        3,
		MaxResponseBytes:   50 * 1024 * 1024,
	}
}

func (c Config) effectiveTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return DefaultConfig().RequestTimeout
	}

	if c.MaxRequestTimeout > 0 && c.RequestTimeout > c.MaxRequestTimeout {
		return c.MaxRequestTimeout
	}

	return c.RequestTimeout
}

// Response is a fetched upstream body plus status and headers, already
// capped to MaxResponseBytes.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StatusError reports an upstream 4xx response (returned at once, without
// retry) or a 5xx response that exhausted retries.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.StatusCode)
}

// Client is a single shared upstream-fetch module: one Client is intended to
// be reused across every request to a given adapter's upstream.
type Client struct {
	cfg         Config
	http        *http.Client
	hostGatesMu sync.Mutex
	hostGates   map[string]chan struct{}
}

// New constructs a Client with connection reuse via a shared http.Transport.
func New(cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}

	if cfg.PerHostConcurrency <= 0 {
		cfg.PerHostConcurrency = DefaultConfig().PerHostConcurrency
	}

	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultConfig().MaxResponseBytes
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PerHostConcurrency * 2,
		MaxIdleConnsPerHost: cfg.PerHostConcurrency,
		MaxConnsPerHost:     cfg.PerHostConcurrency,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		cfg:       cfg,
		http:      &http.Client{Transport: transport},
		hostGates: make(map[string]chan struct{}),
	}
}

// gateFor lazily creates a per-host concurrency semaphore, guarded by a
// mutex since concurrent requests to the same or different hosts may both
// trigger first-touch creation.
func (c *Client) gateFor(host string) chan struct{} {
	c.hostGatesMu.Lock()
	defer c.hostGatesMu.Unlock()

	gate, ok := c.hostGates[host]
	if !ok {
		gate = make(chan struct{}, c.cfg.PerHostConcurrency)
		c.hostGates[host] = gate
	}

	return gate
}

// Do issues req with retry, per-host concurrency limiting, and a response
// size cap. Authorization, if present on req, is forwarded as-is — callers
// are responsible for setting it from the original client's credentials or
// substituting an adapter-specific key, per the Bridge's forwarding rules.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	gate := c.gateFor(req.URL.Host)

	select {
	case gate <- struct{}{}:
		defer func() { <-gate }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	operation := func() (*Response, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.effectiveTimeout())
		defer cancel()

		attemptReq := req.Clone(attemptCtx)

		resp, err := c.http.Do(attemptReq)
		if err != nil {
			// Connection-level errors are retryable.
			return nil, err
		}

		defer resp.Body.Close()

		body, err := readCapped(resp.Body, c.cfg.MaxResponseBytes)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		if resp.StatusCode >= 500 {
			return nil, &StatusError{StatusCode: resp.StatusCode, URL: req.URL.String()}
		}

		if resp.StatusCode >= 400 {
			return nil, backoff.Permanent(&StatusError{StatusCode: resp.StatusCode, URL: req.URL.String()})
		}

		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.Multiplier = 2
	bo.RandomizationFactor = 1 // full jitter

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)),
	)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func readCapped(r io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(r, limit+1)

	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if int64(len(body)) > limit {
		return nil, ErrResponseTooLarge
	}

	return body, nil
}
