//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of BankETL.
//
// BankETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// BankETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with BankETL. If not, see https://www.gnu.org/licenses/.

package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Package quotes implements the external quote-fetching utility. It sits
// outside the transaction pipeline: no shared state crosses the boundary,
// and nothing here is retried by the core.
//
// Each fetch runs under an explicit retry policy (fixed attempt budget,
// fixed inter-attempt delay, per-attempt timeout). Fetches for multiple
// symbols run concurrently with independent lifecycles and no ordering
// guarantee.

// ClientError provides structured error information for quote fetches.
type ClientError struct {
	Op         string // Operation that failed (e.g., "request", "status_check", "decode")
	StatusCode int    // HTTP status code if applicable
	Err        error  // Underlying error
}

func (e *ClientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("quotes %s [%d]: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("quotes %s: %v", e.Op, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// RetryPolicy bounds a single fetch: Attempts tries in total, Delay between
// attempts, Timeout per attempt. Nothing is retried beyond the budget.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
}

// DefaultRetryPolicy matches the upstream API's service expectations.
var DefaultRetryPolicy = RetryPolicy{
	Attempts: 3,
	Delay:    time.Second,
	Timeout:  10 * time.Second,
}

// Quote is a single fetched quote.
type Quote struct {
	ID     int    `json:"id"`
	Quote  string `json:"quote"`
	Author string `json:"author"`
}

// Result pairs a symbol with its fetch outcome. Err is non-nil only after
// the retry budget is exhausted.
type Result struct {
	Symbol string
	Quote  *Quote
	Err    error
}

const defaultBaseURL = "https://dummyjson.com/quotes/random"

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) { c.policy = policy }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client fetches quotes from the upstream API. It is safe for concurrent
// use; each request carries its own timeout context.
type Client struct {
	baseURL string
	client  *http.Client
	policy  RetryPolicy
	logger  *log.Logger
}

// NewClient creates a quote client with default or overridden options.
func NewClient(options ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		client:  http.DefaultClient,
		policy:  DefaultRetryPolicy,
		logger:  log.Default(),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.policy.Attempts < 1 {
		c.policy.Attempts = 1
	}
	return c
}

// Fetch retrieves one quote, retrying within the policy budget. The symbol
// identifies the request in logs and results; the upstream endpoint serves
// a quote per call.
func (c *Client) Fetch(ctx context.Context, symbol string) (*Quote, error) {
	var lastErr error

	for attempt := 1; attempt <= c.policy.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.policy.Delay):
			case <-ctx.Done():
				return nil, &ClientError{Op: "retry_wait", Err: ctx.Err()}
			}
		}

		quote, err := c.fetchOnce(ctx, symbol)
		if err == nil {
			return quote, nil
		}
		lastErr = err
		c.logger.Warn("quote fetch attempt failed",
			"symbol", symbol, "attempt", attempt, "err", err)
	}

	c.logger.Error("quote fetch exhausted retry budget",
		"symbol", symbol, "attempts", c.policy.Attempts)
	return nil, lastErr
}

// FetchAll fetches quotes for all symbols concurrently. Every symbol gets a
// Result; failed fetches carry their error instead of being dropped.
func (c *Client) FetchAll(ctx context.Context, symbols []string) []Result {
	results := make([]Result, len(symbols))

	var wg sync.WaitGroup
	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			quote, err := c.Fetch(ctx, symbol)
			results[i] = Result{Symbol: symbol, Quote: quote, Err: err}
		}(i, symbol)
	}
	wg.Wait()

	return results
}

// fetchOnce performs a single attempt under the per-attempt timeout.
func (c *Client) fetchOnce(ctx context.Context, symbol string) (*Quote, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, &ClientError{Op: "create_request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ClientError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &ClientError{
			Op:         "status_check",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	var quote Quote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, &ClientError{Op: "decode", Err: err}
	}

	c.logger.Info("fetched quote", "symbol", symbol, "id", quote.ID)
	return &quote, nil
}
