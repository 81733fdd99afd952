// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

// Package host abstracts the page environment the SDK observes:
// current location, scroll position, element clicks and navigation
// intent. Browser-embedded hosts bridge real DOM events into this
// interface; headless hosts pass nil and only time and named-event
// triggers remain active.
package host

// CancelFunc detaches a previously registered listener. Calling it
// more than once is harmless.
type CancelFunc func()

// ScrollState is a snapshot of the page's scroll geometry.
type ScrollState struct {
	Offset         float64 // vertical scroll offset
	DocumentHeight float64 // total scrollable height
	ViewportHeight float64 // visible height
}

// ClickEvent describes a click on a watched element.
type ClickEvent struct {
	// DefaultPrevented is true when another handler already consumed
	// the click.
	DefaultPrevented bool
}

// NavigationKind identifies the channel a navigation intent arrived on.
type NavigationKind int

const (
	// NavAnchorClick is a click on an anchor element.
	NavAnchorClick NavigationKind = iota
	// NavPushState is a programmatic history push.
	NavPushState
	// NavReplaceState is a programmatic history replace.
	NavReplaceState
	// NavHashChange is a location hash change.
	NavHashChange
	// NavPopState is back/forward navigation.
	NavPopState
)

// String returns the channel name for logging.
func (k NavigationKind) String() string {
	switch k {
	case NavAnchorClick:
		return "anchor"
	case NavPushState:
		return "pushstate"
	case NavReplaceState:
		return "replacestate"
	case NavHashChange:
		return "hashchange"
	case NavPopState:
		return "popstate"
	default:
		return "unknown"
	}
}

// Navigation is one observed navigation intent from URL From to URL
// To. The original navigation always proceeds; observers never get to
// intercept it. Anchor-click fields are zero-valued for the other
// channels.
type Navigation struct {
	Kind NavigationKind
	From string
	To   string

	// Anchor click details.
	Button           int    // 0 = left button
	AltKey           bool
	CtrlKey          bool
	MetaKey          bool
	ShiftKey         bool
	TargetAttr       string // anchor target attribute, "" or "_self" for same tab
	DefaultPrevented bool
}

// Environment is the set of page signals the trigger installer wires
// against. Implementations must be safe for concurrent use; listener
// callbacks may be invoked from any goroutine.
type Environment interface {
	// Location returns the current full URL.
	Location() string

	// OnScroll registers a scroll listener.
	OnScroll(fn func(ScrollState)) CancelFunc

	// OnNavigation registers a navigation-intent listener. Every
	// navigation (anchor click, programmatic, hash change,
	// back/forward) is reported exactly once per channel it occurs on.
	OnNavigation(fn func(Navigation)) CancelFunc

	// OnElementClick registers a click listener on the element with
	// the given identifier. The boolean reports whether the element
	// was present at registration time; when false no listener is
	// installed and the returned cancel is a no-op.
	OnElementClick(elementID string, fn func(ClickEvent)) (CancelFunc, bool)

	// OnReady registers a callback for document load completion. If
	// the document has already finished loading the callback fires
	// immediately. The callback is invoked at most once.
	OnReady(fn func()) CancelFunc
}
