// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

// Package trigger installs derived triggers against a host
// environment. Each installation translates one trigger into the
// appropriate listener registrations and reports firings to its Sink;
// one-shot kinds detach themselves after firing.
package trigger

import (
	"log/slog"
	"time"

	"github.com/MagicFeedback/deepdots-popup-sdk/host"
)

// Kind is the internal trigger vocabulary derived from definitions.
type Kind string

const (
	KindTime   Kind = "time"
	KindScroll Kind = "scroll"
	KindClick  Kind = "click"
	KindExit   Kind = "exit"
	KindEvent  Kind = "event"
)

// Defaults applied when a definition leaves the trigger value unset.
const (
	DefaultTimeDelay       = 5 * time.Second
	DefaultScrollThreshold = 50.0
)

// NavigationDedupWindow suppresses duplicate navigation reports for
// the same {from,to} pair, e.g. an anchor click that also surfaces as
// a history API call.
const NavigationDedupWindow = 150 * time.Millisecond

// Trigger is one derived trigger: the behavioral signal that may fire
// a specific popup definition. Field use depends on Kind: Delay for
// time and exit, Threshold for scroll, Target for click (element id)
// and event (event name).
type Trigger struct {
	Kind      Kind
	Delay     time.Duration
	Threshold float64
	Target    string
	SurveyID  string
	PopupID   string
}

// Sink receives trigger firings. The orchestrator implements it.
type Sink interface {
	// TriggerSurvey evaluates conditions for the definition and shows
	// it when they pass.
	TriggerSurvey(surveyID, popupID string)

	// QueueExitPopup records a deferred exit popup for display after
	// the visitor has left sourceURL.
	QueueExitPopup(surveyID string, delay time.Duration, sourceURL, popupID string)
}

// Install wires one trigger into the environment and returns a cancel
// function that detaches whatever the installation registered. A nil
// environment disables the scroll, click and exit kinds; time triggers
// are environment-agnostic and event triggers are passive (they fire
// only through the orchestrator's named-event entry point).
func Install(env host.Environment, t Trigger, sink Sink, logger *slog.Logger) host.CancelFunc {
	if logger == nil {
		logger = slog.Default()
	}

	switch t.Kind {
	case KindTime:
		return installTime(t, sink, logger)
	case KindScroll:
		return installScroll(env, t, sink, logger)
	case KindClick:
		return installClick(env, t, sink, logger)
	case KindExit:
		return installExit(env, t, sink, logger)
	case KindEvent:
		logger.Debug("event trigger registered", "event", t.Target, "popupId", t.PopupID)
		return func() {}
	default:
		logger.Debug("unsupported trigger kind", "kind", t.Kind)
		return func() {}
	}
}

func installTime(t Trigger, sink Sink, logger *slog.Logger) host.CancelFunc {
	delay := t.Delay
	if delay <= 0 {
		delay = DefaultTimeDelay
	}
	timer := time.AfterFunc(delay, func() {
		sink.TriggerSurvey(t.SurveyID, t.PopupID)
	})
	logger.Debug("time trigger set", "delay", delay, "popupId", t.PopupID)
	return func() { timer.Stop() }
}

func installScroll(env host.Environment, t Trigger, sink Sink, logger *slog.Logger) host.CancelFunc {
	if env == nil {
		logger.Debug("scroll trigger skipped: no host environment", "popupId", t.PopupID)
		return func() {}
	}

	threshold := t.Threshold
	if threshold <= 0 {
		threshold = DefaultScrollThreshold
	}

	var cancel host.CancelFunc
	fired := false
	cancel = env.OnScroll(func(state host.ScrollState) {
		if fired {
			return
		}
		if scrollPercent(state) < threshold {
			return
		}
		fired = true
		cancel()
		sink.TriggerSurvey(t.SurveyID, t.PopupID)
	})
	logger.Debug("scroll trigger set", "threshold", threshold, "popupId", t.PopupID)
	return func() { cancel() }
}

// scrollPercent computes how far down the page the visitor is. A
// document no taller than the viewport counts as fully scrolled.
func scrollPercent(state host.ScrollState) float64 {
	scrollable := state.DocumentHeight - state.ViewportHeight
	if scrollable <= 0 {
		return 100
	}
	return state.Offset / scrollable * 100
}

func installClick(env host.Environment, t Trigger, sink Sink, logger *slog.Logger) host.CancelFunc {
	if env == nil {
		logger.Debug("click trigger skipped: no host environment", "popupId", t.PopupID)
		return func() {}
	}
	if t.Target == "" {
		logger.Debug("click trigger missing element id", "popupId", t.PopupID)
		return func() {}
	}

	var cancelClick host.CancelFunc = func() {}

	attach := func() bool {
		fired := false
		cancel, ok := env.OnElementClick(t.Target, func(ev host.ClickEvent) {
			// A prevented click neither fires nor consumes the
			// one-shot handler.
			if ev.DefaultPrevented || fired {
				return
			}
			fired = true
			sink.TriggerSurvey(t.SurveyID, t.PopupID)
		})
		if !ok {
			logger.Debug("click trigger target not found", "element", t.Target)
			return false
		}
		cancelClick = cancel
		logger.Debug("click trigger set", "element", t.Target, "popupId", t.PopupID)
		return true
	}

	if attach() {
		return func() { cancelClick() }
	}

	// The element may not exist yet; retry once after the document
	// finishes loading.
	cancelReady := env.OnReady(func() { attach() })
	return func() {
		cancelReady()
		cancelClick()
	}
}
