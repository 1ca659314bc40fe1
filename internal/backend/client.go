// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend is the HTTP client for the RAG backend: document
// listing, knowledge-base management, chat, and the streaming ingestion
// endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout bounds plain request/response calls.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps how much of a response body is read.
	// PERFORMANCE: prevents a misbehaving backend from exhausting memory.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	// HeaderGoogleToken carries the provider token on endpoints that
	// reach the document store directly.
	HeaderGoogleToken = "X-Google-Token"
)

// =============================================================================
// SHARED HTTP CLIENTS
// =============================================================================

// PERFORMANCE: Shared HTTP clients with connection pooling.
var (
	// sharedHTTPClient is for request/response calls, with timeout.
	sharedHTTPClient = &http.Client{
		Timeout: DefaultTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	// sharedStreamingClient has no global timeout; stream lifetimes are
	// bounded by the caller's context instead.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
		},
	}
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrUnauthorized   = errors.New("unauthorized: sign in again")
	ErrNotFound       = errors.New("resource not found")
	ErrRateLimited    = errors.New("rate limited by backend")
	ErrServerError    = errors.New("backend server error")
	ErrStreamRefused  = errors.New("backend refused the stream")
	ErrStreamAborted  = errors.New("stream reported an error")
	ErrEmptyResponse  = errors.New("empty response from backend")
)

// APIError is a structured backend error.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.Code, e.Message)
}

// =============================================================================
// CLIENT
// =============================================================================

// TokenProvider supplies the current access token. The auth manager
// satisfies this; an empty string means signed out.
type TokenProvider interface {
	AccessToken() string
}

// Client talks to the RAG backend. Safe for concurrent use.
type Client struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
	streaming  *http.Client

	// folderLocks serializes streaming operations per folder URL so two
	// streams never race on the same logical resource.
	mu          sync.Mutex
	folderLocks map[string]*sync.Mutex
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL string, tokens TokenProvider) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		tokens:      tokens,
		httpClient:  sharedHTTPClient,
		streaming:   sharedStreamingClient,
		folderLocks: make(map[string]*sync.Mutex),
	}
}

// WithTimeout replaces the request/response client with one using the
// given timeout. Streaming calls are unaffected.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpClient = &http.Client{
			Timeout:   d,
			Transport: sharedHTTPClient.Transport,
		}
	}
	return c
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// setHeaders attaches auth headers. withGoogleToken also forwards the
// provider token for endpoints that read the document store.
func (c *Client) setHeaders(req *http.Request, withGoogleToken bool) {
	token := c.tokens.AccessToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		if withGoogleToken {
			req.Header.Set(HeaderGoogleToken, token)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// doRequest performs one JSON request/response call and decodes the body
// into out when out is non-nil.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, withGoogleToken bool, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	c.setHeaders(req, withGoogleToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseSize))
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) == 0 {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// handleErrorResponse maps a non-2xx response onto the error taxonomy.
// The body is consulted for a structured message but never trusted to be
// JSON.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	apiErr := &APIError{Code: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	var parsed struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &parsed) == nil {
		switch {
		case parsed.Detail != "":
			apiErr.Message = parsed.Detail
		case parsed.Message != "":
			apiErr.Message = parsed.Message
		case parsed.Error != "":
			apiErr.Message = parsed.Error
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrServerError, apiErr.Message)
	default:
		return apiErr
	}
}
