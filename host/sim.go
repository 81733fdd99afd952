// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

package host

import "sync"

// Sim is a scriptable Environment for tests and demos. It models just
// enough of a page to exercise every trigger kind: a current URL, a
// document geometry, a set of clickable elements and the four
// navigation channels.
type Sim struct {
	mu sync.Mutex

	location string
	doc      ScrollState
	loaded   bool
	elements map[string]bool

	nextID     int
	scrollSubs map[int]func(ScrollState)
	navSubs    map[int]func(Navigation)
	clickSubs  map[string]map[int]func(ClickEvent)
	readySubs  map[int]func()
}

// NewSim creates a simulated page at the given starting URL. The
// document starts still loading; call FinishLoading to complete it.
func NewSim(location string) *Sim {
	return &Sim{
		location:   location,
		doc:        ScrollState{DocumentHeight: 2000, ViewportHeight: 800},
		elements:   make(map[string]bool),
		scrollSubs: make(map[int]func(ScrollState)),
		navSubs:    make(map[int]func(Navigation)),
		clickSubs:  make(map[string]map[int]func(ClickEvent)),
		readySubs:  make(map[int]func()),
	}
}

// Location returns the current URL.
func (s *Sim) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

// SetLocation moves the page without emitting a navigation event,
// mirroring a fresh page load at that URL.
func (s *Sim) SetLocation(url string) {
	s.mu.Lock()
	s.location = url
	s.mu.Unlock()
}

// SetGeometry configures the simulated document and viewport heights.
func (s *Sim) SetGeometry(documentHeight, viewportHeight float64) {
	s.mu.Lock()
	s.doc.DocumentHeight = documentHeight
	s.doc.ViewportHeight = viewportHeight
	s.mu.Unlock()
}

// AddElement makes an element identifier resolvable for click
// triggers.
func (s *Sim) AddElement(id string) {
	s.mu.Lock()
	s.elements[id] = true
	s.mu.Unlock()
}

// OnScroll implements Environment.
func (s *Sim) OnScroll(fn func(ScrollState)) CancelFunc {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.scrollSubs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.scrollSubs, id)
		s.mu.Unlock()
	}
}

// OnNavigation implements Environment.
func (s *Sim) OnNavigation(fn func(Navigation)) CancelFunc {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.navSubs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.navSubs, id)
		s.mu.Unlock()
	}
}

// OnElementClick implements Environment.
func (s *Sim) OnElementClick(elementID string, fn func(ClickEvent)) (CancelFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.elements[elementID] {
		return func() {}, false
	}
	id := s.nextID
	s.nextID++
	subs := s.clickSubs[elementID]
	if subs == nil {
		subs = make(map[int]func(ClickEvent))
		s.clickSubs[elementID] = subs
	}
	subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.clickSubs[elementID], id)
		s.mu.Unlock()
	}, true
}

// OnReady implements Environment.
func (s *Sim) OnReady(fn func()) CancelFunc {
	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		fn()
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.readySubs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.readySubs, id)
		s.mu.Unlock()
	}
}

// FinishLoading marks the document loaded and fires pending ready
// callbacks.
func (s *Sim) FinishLoading() {
	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return
	}
	s.loaded = true
	pending := make([]func(), 0, len(s.readySubs))
	for _, fn := range s.readySubs {
		pending = append(pending, fn)
	}
	s.readySubs = make(map[int]func())
	s.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// Scroll moves the scroll offset and notifies scroll listeners.
func (s *Sim) Scroll(offset float64) {
	s.mu.Lock()
	s.doc.Offset = offset
	state := s.doc
	subs := make([]func(ScrollState), 0, len(s.scrollSubs))
	for _, fn := range s.scrollSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// ClickElement emits a click on the element with the given identifier.
func (s *Sim) ClickElement(id string, defaultPrevented bool) {
	s.mu.Lock()
	subs := make([]func(ClickEvent), 0, len(s.clickSubs[id]))
	for _, fn := range s.clickSubs[id] {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	ev := ClickEvent{DefaultPrevented: defaultPrevented}
	for _, fn := range subs {
		fn(ev)
	}
}

// Navigate moves the page to a new URL through the given channel and
// notifies navigation listeners. Extra anchor-click detail can be
// attached via opts.
func (s *Sim) Navigate(kind NavigationKind, to string, opts ...func(*Navigation)) {
	s.mu.Lock()
	nav := Navigation{Kind: kind, From: s.location, To: to}
	for _, opt := range opts {
		opt(&nav)
	}
	// Prevented or modified clicks do not move the page.
	moves := !nav.DefaultPrevented && nav.Button == 0 &&
		!nav.AltKey && !nav.CtrlKey && !nav.MetaKey && !nav.ShiftKey &&
		(nav.TargetAttr == "" || nav.TargetAttr == "_self")
	if moves {
		s.location = to
	}
	subs := make([]func(Navigation), 0, len(s.navSubs))
	for _, fn := range s.navSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(nav)
	}
}

var _ Environment = (*Sim)(nil)
