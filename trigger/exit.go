// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

package trigger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/MagicFeedback/deepdots-popup-sdk/host"
	"github.com/MagicFeedback/deepdots-popup-sdk/popup"
)

// exitWatch observes navigation intent for one exit trigger. It stays
// subscribed for the life of the installation: every accepted
// transition is handed to the queue, whose replace semantics make
// repeats idempotent, and the dedup window absorbs the same transition
// surfacing on two channels at once.
type exitWatch struct {
	trigger Trigger
	sink    Sink
	logger  *slog.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func installExit(env host.Environment, t Trigger, sink Sink, logger *slog.Logger) host.CancelFunc {
	if env == nil {
		logger.Debug("exit trigger skipped: no host environment", "popupId", t.PopupID)
		return func() {}
	}

	w := &exitWatch{
		trigger:  t,
		sink:     sink,
		logger:   logger,
		lastSeen: make(map[string]time.Time),
	}
	cancel := env.OnNavigation(w.observe)
	logger.Debug("exit trigger set", "popupId", t.PopupID, "delay", t.Delay)
	return cancel
}

func (w *exitWatch) observe(nav host.Navigation) {
	if nav.Kind == host.NavAnchorClick && !anchorNavigates(nav) {
		return
	}

	from := popup.NormalizeURL(nav.From)
	to := popup.NormalizeURL(nav.To)
	if from == to {
		return
	}
	if w.duplicate(from, to) {
		w.logger.Debug("duplicate navigation suppressed", "from", from, "to", to, "channel", nav.Kind.String())
		return
	}

	w.logger.Debug("exit navigation observed", "from", from, "to", to, "channel", nav.Kind.String())
	w.sink.QueueExitPopup(w.trigger.SurveyID, w.trigger.Delay, nav.From, w.trigger.PopupID)
}

// anchorNavigates filters anchor clicks down to the ones that will
// actually leave the current route in this tab: unprevented left
// clicks without modifier keys, targeting the same tab and origin.
func anchorNavigates(nav host.Navigation) bool {
	if nav.DefaultPrevented {
		return false
	}
	if nav.Button != 0 {
		return false
	}
	if nav.AltKey || nav.CtrlKey || nav.MetaKey || nav.ShiftKey {
		return false
	}
	if nav.TargetAttr != "" && nav.TargetAttr != "_self" {
		return false
	}
	return popup.SameOrigin(nav.From, nav.To)
}

// duplicate reports whether the same transition was already seen
// within the dedup window, recording it either way.
func (w *exitWatch) duplicate(from, to string) bool {
	key := from + "\x00" + to
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	if last, ok := w.lastSeen[key]; ok && now.Sub(last) < NavigationDedupWindow {
		return true
	}
	// Drop stale entries so the map does not grow with the visit.
	for k, ts := range w.lastSeen {
		if now.Sub(ts) >= NavigationDedupWindow {
			delete(w.lastSeen, k)
		}
	}
	w.lastSeen[key] = now
	return false
}
