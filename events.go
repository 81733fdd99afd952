// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

package deepdots

import (
	"context"
	"time"
)

// EventType identifies a lifecycle event emitted by the SDK.
type EventType string

const (
	// EventPopupShown fires when a popup has been handed to the
	// renderer. Data carries the popupId.
	EventPopupShown EventType = "popup_shown"

	// EventPopupClicked fires when the visitor interacts with a popup
	// control.
	EventPopupClicked EventType = "popup_clicked"

	// EventSurveyCompleted fires when the survey attached to a popup
	// was completed. Emitting it marks the survey answered for the
	// rest of the session.
	EventSurveyCompleted EventType = "survey_completed"
)

// Analytics statuses posted to the backend.
const (
	statusOpened    = "opened"
	statusCompleted = "completed"
)

// Event is the payload delivered to listeners.
type Event struct {
	Type      EventType
	SurveyID  string
	Timestamp time.Time
	Data      map[string]any
}

// Listener receives lifecycle events.
type Listener func(Event)

// Subscription identifies a registered listener for Off.
type Subscription int

// On registers a listener for an event type and returns its
// subscription handle. Multiple listeners per type are supported;
// invocation order is unspecified.
func (s *SDK) On(t EventType, fn Listener) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	sub := s.nextSub
	listeners := s.listeners[t]
	if listeners == nil {
		listeners = make(map[Subscription]Listener)
		s.listeners[t] = listeners
	}
	listeners[sub] = fn
	return sub
}

// Off removes a previously registered listener. Unknown handles are
// ignored.
func (s *SDK) Off(t EventType, sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners[t], sub)
}

// emitEvent builds the event, applies its side effects and notifies
// listeners. A survey_completed emission marks the survey answered
// before any listener runs, and shown/completed events trigger a
// best-effort analytics post. Listener panics are recovered per
// listener so one failing consumer cannot starve its siblings.
func (s *SDK) emitEvent(t EventType, surveyID string, data map[string]any) {
	s.mu.Lock()
	ev := Event{Type: t, SurveyID: surveyID, Timestamp: s.now(), Data: data}

	if t == EventSurveyCompleted {
		s.answered[surveyID] = struct{}{}
	}

	listeners := make([]Listener, 0, len(s.listeners[t]))
	for _, fn := range s.listeners[t] {
		listeners = append(listeners, fn)
	}
	logger := s.logger
	s.mu.Unlock()

	logger.Debug("event emitted", "type", string(t), "surveyId", surveyID)

	switch t {
	case EventPopupShown:
		s.recordAnalytics(statusOpened, surveyID, data)
	case EventSurveyCompleted:
		s.recordAnalytics(statusCompleted, surveyID, data)
	}

	for _, fn := range listeners {
		s.safeNotify(fn, ev)
	}
}

func (s *SDK) safeNotify(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event listener panicked", "type", string(ev.Type), "panic", r)
		}
	}()
	fn(ev)
}

// recordAnalytics posts one analytics event attributed to whichever
// popupId is resolvable: explicit in the event data, else the most
// recently shown popup for the survey, else the event is skipped.
func (s *SDK) recordAnalytics(status, surveyID string, data map[string]any) {
	s.mu.Lock()
	client := s.api
	cfg := s.cfg
	popupID, _ := data["popupId"].(string)
	if popupID == "" {
		popupID = s.surveyPopup[surveyID]
	}
	s.mu.Unlock()

	if client == nil || cfg == nil {
		return
	}
	if popupID == "" {
		s.logger.Debug("analytics event skipped: no popupId resolvable", "surveyId", surveyID, "status", status)
		return
	}

	go func() {
		if err := client.RecordEvent(context.Background(), cfg.APIKey, status, popupID, cfg.UserID); err != nil {
			s.logger.Debug("analytics event not recorded", "error", err, "popupId", popupID, "status", status)
		}
	}()
}
