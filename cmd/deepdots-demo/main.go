// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

// deepdots-demo runs a self-contained demonstration of the popup SDK:
// it starts a local stub of the popup backend, initializes the SDK in
// server mode against it and drives a simulated page session through
// the time, scroll and exit triggers.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	deepdots "github.com/MagicFeedback/deepdots-popup-sdk"
	"github.com/MagicFeedback/deepdots-popup-sdk/host"
	"github.com/MagicFeedback/deepdots-popup-sdk/popup"
	"github.com/MagicFeedback/deepdots-popup-sdk/render"
	"github.com/MagicFeedback/deepdots-popup-sdk/storage"
)

// demoConfig is loaded from the environment (and an optional .env
// file) before flags are applied.
type demoConfig struct {
	ListenAddr string `env:"DEMO_LISTEN_ADDR" envDefault:"127.0.0.1:0"`
	APIKey     string `env:"DEMO_API_KEY" envDefault:"demo-key"`
	RedisURL   string `env:"DEMO_REDIS_URL"`
	Debug      bool   `env:"DEMO_DEBUG" envDefault:"true"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading .env: %w", err)
	}

	var cfg demoConfig
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Backend stub listen address")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	baseURL, shutdown, err := startBackendStub(cfg, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	store, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	userID := uuid.New().String()
	sim := host.NewSim("https://shop.example.com/#/checkout")
	sim.AddElement("help-button")

	sdk := deepdots.New()
	err = sdk.Init(deepdots.InitParams{
		APIKey:      cfg.APIKey,
		Mode:        deepdots.ModeServer,
		BaseURL:     baseURL,
		Debug:       cfg.Debug,
		UserID:      userID,
		Logger:      logger,
		Renderer:    &consoleRenderer{logger: logger},
		Environment: sim,
		Store:       store,
	})
	if err != nil {
		return fmt.Errorf("initializing SDK: %w", err)
	}

	sdk.On(deepdots.EventPopupShown, func(ev deepdots.Event) {
		logger.Info("popup shown", "surveyId", ev.SurveyID, "data", ev.Data)
	})
	sdk.On(deepdots.EventSurveyCompleted, func(ev deepdots.Event) {
		logger.Info("survey completed", "surveyId", ev.SurveyID)
	})

	// Server mode fetches definitions asynchronously; AutoLaunch
	// resumes on its own once they arrive.
	if err := sdk.AutoLaunch(); err != nil {
		return err
	}

	logger.Info("demo session starting", "userId", userID, "backend", baseURL)
	runSession(sdk, sim, logger)
	logger.Info("demo session finished", "exitQueue", sdk.ExitQueueLen())
	return nil
}

// runSession drives the simulated visitor through each trigger.
func runSession(sdk *deepdots.SDK, sim *host.Sim, logger *slog.Logger) {
	// Let definitions load and the 1s time trigger fire.
	time.Sleep(1500 * time.Millisecond)

	logger.Info("visitor scrolls past the threshold")
	sim.Scroll(900)

	logger.Info("visitor clicks the help button")
	sim.FinishLoading()
	sim.ClickElement("help-button", false)

	logger.Info("host fires a custom event")
	if err := sdk.TriggerEvent("cart_abandoned"); err != nil {
		logger.Error("trigger event failed", "error", err)
	}

	logger.Info("visitor navigates away from checkout")
	sim.Navigate(host.NavPushState, "https://shop.example.com/#/thanks")

	// Give the deferred exit popup time to fire.
	time.Sleep(500 * time.Millisecond)
}

func buildStore(cfg demoConfig, logger *slog.Logger) (storage.Store, error) {
	if cfg.RedisURL == "" {
		return storage.NewMemoryStore(), nil
	}
	store, err := storage.NewRedisStore(storage.RedisStoreOptions{
		URL:    cfg.RedisURL,
		Prefix: "deepdots-demo:",
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	logger.Info("using Redis-backed exit queue", "url", cfg.RedisURL)
	return store, nil
}

// startBackendStub serves the two endpoints the SDK talks to and
// returns the base URL to point the SDK at.
func startBackendStub(cfg demoConfig, logger *slog.Logger) (string, func(), error) {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/sdk/{apiKey}/popups", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "apiKey") != cfg.APIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(demoDefinitions())
	})
	r.Post("/sdk/popups", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		logger.Info("analytics event received",
			"status", body["status"], "popupId", body["popupId"], "userId", body["userId"])
		w.WriteHeader(http.StatusCreated)
	})

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return "", nil, fmt.Errorf("listening on %s: %w", cfg.ListenAddr, err)
	}

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("backend stub failed", "error", err)
		}
	}()

	baseURL := "http://" + ln.Addr().String()
	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return baseURL, shutdown, nil
}

// demoDefinitions covers every trigger type once.
func demoDefinitions() []byte {
	defs := []map[string]any{
		{
			"id": "demo-time", "surveyId": "survey-time",
			"trigger": map[string]any{"type": "time_on_page", "value": 1},
		},
		{
			"id": "demo-scroll", "surveyId": "survey-scroll",
			"trigger": map[string]any{"type": "scroll", "value": 60},
		},
		{
			"id": "demo-click", "surveyId": "survey-click",
			"trigger": map[string]any{"type": "click", "value": "help-button"},
		},
		{
			"id": "demo-event", "surveyId": "survey-event",
			"trigger": map[string]any{"type": "event", "value": "cart_abandoned"},
		},
		{
			"id": "demo-exit", "surveyId": "survey-exit",
			"trigger":  map[string]any{"type": "exit", "value": 0},
			"segments": map[string]any{"path": []string{"/#/checkout"}},
		},
	}
	raw, _ := json.Marshal(defs)
	return raw
}

// consoleRenderer prints popups instead of rendering them.
type consoleRenderer struct {
	logger *slog.Logger
}

func (c *consoleRenderer) Show(surveyID, productID string, actions *popup.Actions, emit render.EmitFunc, onClose func(), envLabel string) {
	c.logger.Info("rendering popup", "surveyId", surveyID, "productId", productID, "env", envLabel)
}

func (c *consoleRenderer) Hide() {}
