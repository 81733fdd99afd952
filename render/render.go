// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

// Package render declares the renderer capability the SDK core
// delegates all display work to. The core never touches the page
// directly once a renderer is set; a no-op renderer is legal and is
// the default in headless hosts and tests.
package render

import "github.com/MagicFeedback/deepdots-popup-sdk/popup"

// EmitFunc lets the renderer report lifecycle events (popup_clicked,
// survey_completed) back into the SDK event bus.
type EmitFunc func(eventType, surveyID string, data map[string]any)

// Renderer displays survey popups. Show receives the action labels
// from the popup definition opaquely; interpreting them is entirely
// the renderer's business.
type Renderer interface {
	Show(surveyID, productID string, actions *popup.Actions, emit EmitFunc, onClose func(), envLabel string)
	Hide()
}

// Initializer is an optional interface for renderers that need to
// prepare resources before the first Show.
type Initializer interface {
	Init()
}

// Noop is a renderer that displays nothing. It keeps the SDK fully
// functional in server-side rendering and test environments.
type Noop struct{}

// Show implements Renderer.
func (Noop) Show(string, string, *popup.Actions, EmitFunc, func(), string) {}

// Hide implements Renderer.
func (Noop) Hide() {}

var _ Renderer = Noop{}
