// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

// Package popup defines the popup definition data model, the tolerant
// normalization of raw server payloads into that model, and the URL and
// route-segment matching rules shared by live and deferred evaluation.
package popup

import "encoding/json"

// Trigger type vocabulary as delivered by the server.
const (
	TriggerTimeOnPage = "time_on_page"
	TriggerScroll     = "scroll"
	TriggerExit       = "exit"
	TriggerClick      = "click"
	TriggerEvent      = "event"
)

// Condition is a gating predicate evaluated before a popup is displayed.
// All conditions attached to a trigger must pass (logical AND).
type Condition struct {
	// Answered set to false means the popup requires the survey to not
	// have been answered yet this session.
	Answered bool `json:"answered"`

	// CooldownDays is the minimum number of days between displays of
	// the same popup. Zero disables the cooldown.
	CooldownDays float64 `json:"cooldownDays"`
}

// TriggerSpec describes when a popup definition wants to fire.
// Value semantics depend on Type: seconds for time_on_page and exit,
// percent for scroll, an element identifier for click, and an event
// name for event triggers.
type TriggerSpec struct {
	Type string `json:"type"`

	// ValueNum carries numeric trigger values (seconds, percent).
	ValueNum float64 `json:"value,omitempty"`

	// ValueStr carries string trigger values (element id, event name).
	ValueStr string `json:"-"`

	Condition []Condition `json:"condition,omitempty"`
}

// Action is one labelled popup control. SurveyID, CooldownDays and
// AutoCompleteParams are populated only for the action kinds that carry
// them; the engine passes all of this through to the renderer opaquely.
type Action struct {
	Label              string         `json:"label"`
	SurveyID           string         `json:"surveyId,omitempty"`
	CooldownDays       float64        `json:"cooldownDays,omitempty"`
	AutoCompleteParams map[string]any `json:"autoCompleteParams,omitempty"`
}

// Actions holds the optional label overrides for the popup controls.
type Actions struct {
	Accept   *Action `json:"accept,omitempty"`
	Decline  *Action `json:"decline,omitempty"`
	Complete *Action `json:"complete,omitempty"`
	Start    *Action `json:"start,omitempty"`
	Back     *Action `json:"back,omitempty"`
}

// Segments restricts where a popup may show. An empty or absent Path
// list matches everywhere. Lang is parsed and retained but not enforced
// by the engine.
type Segments struct {
	Lang []string `json:"lang,omitempty"`
	Path []string `json:"path,omitempty"`
}

// Definition is the unit of popup configuration. Definitions are
// created at init (inline or fetched) and are immutable for the
// session; they are looked up by ID or SurveyID.
type Definition struct {
	ID        string `json:"id"`
	SurveyID  string `json:"surveyId"`
	ProductID string `json:"productId"`

	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`

	Trigger  TriggerSpec `json:"trigger"`
	Actions  *Actions    `json:"actions,omitempty"`
	Segments Segments    `json:"segments,omitempty"`

	// Style is carried opaquely for the renderer.
	Style json.RawMessage `json:"style,omitempty"`
}

// Valid reports whether the definition carries the fields the engine
// needs to derive a trigger from it.
func (d Definition) Valid() bool {
	return d.ID != "" && d.SurveyID != "" && d.Trigger.Type != ""
}

// KnownTriggerType reports whether the trigger type belongs to the
// recognized server vocabulary.
func KnownTriggerType(t string) bool {
	switch t {
	case TriggerTimeOnPage, TriggerScroll, TriggerExit, TriggerClick, TriggerEvent:
		return true
	}
	return false
}
