// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

package deepdots

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/caarlos0/env/v11"

	"github.com/MagicFeedback/deepdots-popup-sdk/host"
	"github.com/MagicFeedback/deepdots-popup-sdk/popup"
	"github.com/MagicFeedback/deepdots-popup-sdk/render"
	"github.com/MagicFeedback/deepdots-popup-sdk/storage"
)

// Mode selects where popup definitions come from.
type Mode string

const (
	// ModeClient uses the definitions supplied inline in InitParams.
	ModeClient Mode = "client"
	// ModeServer fetches definitions from the backend by API key.
	ModeServer Mode = "server"
)

// Environment names for API base URL resolution.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Default API base URLs per environment.
const (
	devBaseURL  = "https://api-dev.magicfeedback.com"
	prodBaseURL = "https://api.magicfeedback.com"
)

// envOverrides are environment-variable overrides applied on top of
// the NodeEnv-derived defaults.
type envOverrides struct {
	APIBaseURL string `env:"DEEPDOTS_API_BASE_URL"`
}

// InitParams configures the SDK at Init time.
type InitParams struct {
	// APIKey authenticates definition fetches and analytics posts.
	APIKey string

	// Mode selects client (inline definitions) or server (fetched)
	// operation. Defaults to client.
	Mode Mode

	// NodeEnv selects the API environment: "development" or
	// "production" (the default).
	NodeEnv string

	// BaseURL overrides the NodeEnv-derived API base URL.
	BaseURL string

	// Debug enables debug-level logging.
	Debug bool

	// UserID attributes fetches and analytics to one visitor.
	UserID string

	// Popups are the inline popup definitions used in client mode.
	Popups []popup.Definition

	// Logger receives SDK logs; slog.Default() when nil.
	Logger *slog.Logger

	// Renderer displays popups; render.Noop when nil.
	Renderer render.Renderer

	// Environment is the page the SDK observes. May be nil in
	// headless hosts; scroll, click and exit triggers then no-op.
	Environment host.Environment

	// Store persists the deferred exit queue across reloads. An
	// in-memory store is used when nil.
	Store storage.Store

	// HTTPClient performs backend requests; http.DefaultClient when
	// nil. No fetch timeout or retry is added on top of it.
	HTTPClient *http.Client
}

// Config is the resolved SDK configuration, immutable after Init.
type Config struct {
	APIKey  string
	BaseURL string
	Mode    Mode
	Debug   bool
	UserID  string
}

// resolveBaseURL determines the API base URL: an explicit override
// wins, then the DEEPDOTS_API_BASE_URL environment variable, then the
// NodeEnv default.
func resolveBaseURL(nodeEnv, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return "", fmt.Errorf("parsing environment overrides: %w", err)
	}
	if ov.APIBaseURL != "" {
		return ov.APIBaseURL, nil
	}

	if nodeEnv == EnvDevelopment {
		return devBaseURL, nil
	}
	return prodBaseURL, nil
}
