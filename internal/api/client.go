// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

// Package api talks to the popup backend: fetching popup definitions
// in server mode and posting fire-and-forget analytics events.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/MagicFeedback/deepdots-popup-sdk/popup"
)

const (
	// UserAgent identifies the SDK to the backend.
	UserAgent = "deepdots-popup-sdk/1.0"

	// MaxResponseLen caps how much of a definitions payload is read.
	MaxResponseLen = 1 << 20
)

// Client is a thin HTTP client for the popup backend. Failures never
// reach the embedding application: callers absorb errors into "no
// definitions" or "event not recorded".
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

// NewClient creates a backend client. A nil http.Client falls back to
// http.DefaultClient; no timeout is imposed on top of it.
func NewClient(baseURL string, httpc *http.Client, logger *slog.Logger) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{baseURL: baseURL, httpc: httpc, logger: logger}
}

// FetchDefinitions retrieves the popup definitions for an API key,
// optionally filtered to one user. Non-200 responses and non-array
// payloads yield zero definitions.
func (c *Client) FetchDefinitions(ctx context.Context, apiKey, userID string) ([]popup.Definition, error) {
	endpoint := fmt.Sprintf("%s/sdk/%s/popups", c.baseURL, url.PathEscape(apiKey))
	if userID != "" {
		filter, err := json.Marshal(map[string]any{"where": map[string]string{"userId": userID}})
		if err != nil {
			return nil, fmt.Errorf("encoding filter: %w", err)
		}
		endpoint += "?filter=" + url.QueryEscape(string(filter))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching popup definitions: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("definitions fetch returned non-200", "status", resp.StatusCode)
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseLen))
	if err != nil {
		return nil, fmt.Errorf("reading definitions response: %w", err)
	}

	return popup.ParseDefinitions(body, c.logger), nil
}

// eventPayload is the analytics POST body.
type eventPayload struct {
	PublicKey string `json:"publicKey"`
	Status    string `json:"status"`
	PopupID   string `json:"popupId"`
	UserID    string `json:"userId,omitempty"`
}

// RecordEvent posts one analytics event. It is best-effort: any
// failure is returned for logging and nothing is retried.
func (c *Client) RecordEvent(ctx context.Context, publicKey, status, popupID, userID string) error {
	payload, err := json.Marshal(eventPayload{
		PublicKey: publicKey,
		Status:    status,
		PopupID:   popupID,
		UserID:    userID,
	})
	if err != nil {
		return fmt.Errorf("encoding analytics event: %w", err)
	}

	endpoint := c.baseURL + "/sdk/popups"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("posting analytics event: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseLen))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("analytics endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}
