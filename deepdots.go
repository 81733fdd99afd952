// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

// Package deepdots is an embeddable SDK that decides when to surface a
// survey popup to a visitor. It derives behavioral triggers (time on
// page, scroll depth, clicks, exit intent, host-fired events) from
// popup definitions, gates every firing through answered-state,
// cooldown and route targeting conditions, and defers exit popups
// across a navigation boundary via persisted state. Rendering is
// delegated to a pluggable renderer; the SDK itself never touches the
// page beyond the injected host environment.
package deepdots

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MagicFeedback/deepdots-popup-sdk/host"
	"github.com/MagicFeedback/deepdots-popup-sdk/internal/api"
	"github.com/MagicFeedback/deepdots-popup-sdk/popup"
	"github.com/MagicFeedback/deepdots-popup-sdk/render"
	"github.com/MagicFeedback/deepdots-popup-sdk/storage"
	"github.com/MagicFeedback/deepdots-popup-sdk/trigger"
)

// ErrNotInitialized is returned by operations that require a prior
// successful Init.
var ErrNotInitialized = errors.New("deepdots: SDK not initialized, call Init first")

// SDK is the popup orchestrator. It owns the configuration, the popup
// definitions, the derived triggers and all per-session runtime state.
// All methods are safe for concurrent use.
type SDK struct {
	mu sync.Mutex

	logger *slog.Logger
	cfg    *Config

	initialized bool
	renderer    render.Renderer
	env         host.Environment
	store       storage.Store
	api         *api.Client

	defs         []popup.Definition
	triggers     []trigger.Trigger
	popupsLoaded bool

	pendingAutoLaunch bool
	installed         []host.CancelFunc

	// answeredSurveys grows monotonically for the session.
	answered map[string]struct{}
	// lastShown carries the cooldown arithmetic per popup id.
	lastShown map[string]time.Time
	// surveyPopup maps surveyId to the most recently shown popup id,
	// used to attribute analytics when only the surveyId is known.
	surveyPopup map[string]string

	listeners map[EventType]map[Subscription]Listener
	nextSub   Subscription

	queueTimers map[string]*time.Timer

	now func() time.Time
}

// New creates an uninitialized SDK.
func New() *SDK {
	return &SDK{
		logger:      slog.Default(),
		renderer:    render.Noop{},
		answered:    make(map[string]struct{}),
		lastShown:   make(map[string]time.Time),
		surveyPopup: make(map[string]string),
		listeners:   make(map[EventType]map[Subscription]Listener),
		queueTimers: make(map[string]*time.Timer),
		now:         time.Now,
	}
}

// Init configures the SDK. It is idempotent: a second call while
// already initialized is a logged no-op. In client mode the inline
// definitions become active immediately; in server mode they are
// fetched asynchronously and operations that need them are suspended
// until the fetch resolves.
func (s *SDK) Init(params InitParams) error {
	s.mu.Lock()

	if s.initialized {
		s.logger.Debug("SDK already initialized")
		s.mu.Unlock()
		return nil
	}

	baseURL, err := resolveBaseURL(params.NodeEnv, params.BaseURL)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	mode := params.Mode
	if mode == "" {
		mode = ModeClient
	}

	if params.Logger != nil {
		s.logger = params.Logger
	}
	s.logger = s.logger.With("component", "deepdots")

	s.cfg = &Config{
		APIKey:  params.APIKey,
		BaseURL: baseURL,
		Mode:    mode,
		Debug:   params.Debug,
		UserID:  params.UserID,
	}
	s.env = params.Environment
	if params.Renderer != nil {
		s.renderer = params.Renderer
	}
	s.store = params.Store
	if s.store == nil {
		s.store = storage.NewMemoryStore()
	}
	s.api = api.NewClient(baseURL, params.HTTPClient, s.logger)
	s.initialized = true

	renderer := s.renderer
	s.logger.Debug("SDK initialized", "mode", string(mode), "baseUrl", baseURL)
	s.mu.Unlock()

	if init, ok := renderer.(render.Initializer); ok {
		init.Init()
	}

	if mode == ModeClient {
		s.adoptDefinitions(params.Popups)
		return nil
	}

	go s.fetchDefinitions(params.APIKey, params.UserID)
	return nil
}

// fetchDefinitions loads the definition set in server mode. Transport
// and payload errors degrade to zero definitions; a pending AutoLaunch
// resumes once the set is in place.
func (s *SDK) fetchDefinitions(apiKey, userID string) {
	defs, err := s.api.FetchDefinitions(context.Background(), apiKey, userID)
	if err != nil {
		s.logger.Debug("definitions fetch failed", "error", err)
	}
	s.adoptDefinitions(defs)
}

// adoptDefinitions installs the active definition set, derives its
// triggers, replays the deferred exit queue and resumes a pending
// auto-launch.
func (s *SDK) adoptDefinitions(defs []popup.Definition) {
	s.mu.Lock()
	s.defs = defs
	s.popupsLoaded = true
	s.configureTriggersLocked(s.deriveTriggersLocked())
	resume := s.pendingAutoLaunch
	s.pendingAutoLaunch = false
	s.mu.Unlock()

	s.logger.Debug("popup definitions loaded", "count", len(defs))
	s.processDeferredExitQueue()

	if resume {
		s.startTriggers()
	}
}

// AutoLaunch installs every derived trigger. Called before the
// definition set is loaded (server mode), it suspends itself and
// resumes automatically once definitions arrive. Calling it again
// re-installs the now-current trigger set.
func (s *SDK) AutoLaunch() error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	if !s.popupsLoaded {
		s.pendingAutoLaunch = true
		s.logger.Debug("auto-launch deferred until popups are loaded")
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.startTriggers()
	return nil
}

// startTriggers replaces any previous installations with the current
// trigger set.
func (s *SDK) startTriggers() {
	s.mu.Lock()
	for _, cancel := range s.installed {
		cancel()
	}
	s.installed = s.installed[:0]

	triggers := make([]trigger.Trigger, len(s.triggers))
	copy(triggers, s.triggers)
	env := s.env
	logger := s.logger
	s.mu.Unlock()

	logger.Debug("auto-launch enabled", "triggers", len(triggers))

	installed := make([]host.CancelFunc, 0, len(triggers))
	for _, t := range triggers {
		installed = append(installed, trigger.Install(env, t, s, logger))
	}

	s.mu.Lock()
	s.installed = append(s.installed, installed...)
	s.mu.Unlock()
}

// ConfigureTriggers replaces the trigger set manually. Most hosts rely
// on the triggers derived from definitions instead.
func (s *SDK) ConfigureTriggers(triggers []trigger.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	s.configureTriggersLocked(triggers)
	return nil
}

func (s *SDK) configureTriggersLocked(triggers []trigger.Trigger) {
	s.triggers = triggers
	s.logger.Debug("triggers configured", "count", len(triggers))
}

// deriveTriggersLocked maps the server trigger vocabulary onto the
// internal one, one trigger per valid definition. Seconds become
// durations for time and exit kinds; unrecognized or malformed trigger
// blocks are skipped.
func (s *SDK) deriveTriggersLocked() []trigger.Trigger {
	var derived []trigger.Trigger
	for _, def := range s.defs {
		if !def.Valid() {
			s.logger.Debug("skipping invalid popup definition", "id", def.ID)
			continue
		}

		t := trigger.Trigger{SurveyID: def.SurveyID, PopupID: def.ID}
		spec := def.Trigger
		switch spec.Type {
		case popup.TriggerTimeOnPage:
			t.Kind = trigger.KindTime
			t.Delay = time.Duration(spec.ValueNum * float64(time.Second))
		case popup.TriggerScroll:
			t.Kind = trigger.KindScroll
			t.Threshold = spec.ValueNum
		case popup.TriggerExit:
			t.Kind = trigger.KindExit
			t.Delay = time.Duration(spec.ValueNum * float64(time.Second))
		case popup.TriggerClick:
			t.Kind = trigger.KindClick
			t.Target = spec.ValueStr
		case popup.TriggerEvent:
			t.Kind = trigger.KindEvent
			t.Target = spec.ValueStr
		default:
			s.logger.Debug("unsupported trigger type", "type", spec.Type, "id", def.ID)
			continue
		}
		derived = append(derived, t)
	}
	return derived
}

// ShowOptions is the legacy show shorthand for hosts that manage their
// own definitions.
type ShowOptions struct {
	SurveyID  string
	ProductID string
	Data      map[string]any
}

// Show displays a popup definition immediately, bypassing trigger and
// condition evaluation, and emits popup_shown.
func (s *SDK) Show(def popup.Definition) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	s.mu.Unlock()

	s.logger.Debug("showing popup", "popupId", def.ID, "surveyId", def.SurveyID)
	s.showDefinition(def)
	return nil
}

// ShowSurvey displays a popup from the legacy {surveyId, productId,
// data} shorthand.
func (s *SDK) ShowSurvey(opts ShowOptions) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	renderer := s.renderer
	envLabel := s.envLabelLocked()
	s.mu.Unlock()

	s.logger.Debug("showing popup (legacy options)", "surveyId", opts.SurveyID)
	renderer.Show(opts.SurveyID, opts.ProductID, nil, s.rendererEmit, s.hidePopup, envLabel)
	s.emitEvent(EventPopupShown, opts.SurveyID, opts.Data)
	return nil
}

// ShowByPopupID displays the definition with the given id; unknown ids
// are a logged no-op.
func (s *SDK) ShowByPopupID(popupID string) error {
	s.mu.Lock()
	def, ok := s.findDefinitionByID(popupID)
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("popup definition not found", "popupId", popupID)
		return nil
	}
	return s.Show(def)
}

// TriggerSurvey resolves a definition (preferring popupID when given),
// evaluates its conditions against the current location and shows it
// when they pass. This is the entry point fired triggers call into.
func (s *SDK) TriggerSurvey(surveyID, popupID string) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return
	}
	def, ok := s.findDefinition(surveyID, popupID)
	if !ok {
		s.logger.Debug("no popup definition for survey", "surveyId", surveyID, "popupId", popupID)
		s.mu.Unlock()
		return
	}
	if !s.shouldShow(def, "", false) {
		s.logger.Debug("conditions prevented showing popup", "popupId", def.ID)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.showDefinition(def)
}

// TriggerEvent fires the named-event entry point. Among definitions
// with a matching event trigger (exact, case-sensitive match after
// trimming), the first whose conditions pass for the current route is
// shown. No match is a logged no-op.
func (s *SDK) TriggerEvent(eventName string) error {
	name := strings.TrimSpace(eventName)

	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}

	var match popup.Definition
	found := false
	for _, def := range s.defs {
		if def.Trigger.Type != popup.TriggerEvent {
			continue
		}
		if strings.TrimSpace(def.Trigger.ValueStr) != name {
			continue
		}
		if s.shouldShow(def, "", false) {
			match = def
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		s.logger.Debug("no matching event popup", "event", name)
		return nil
	}

	s.showDefinition(match)
	return nil
}

// MarkSurveyAnswered marks a survey answered for the rest of the
// session, blocking every definition that requires "not yet answered"
// for that survey.
func (s *SDK) MarkSurveyAnswered(surveyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answered[surveyID] = struct{}{}
}

// SetRenderer swaps the active renderer. When the SDK is already
// initialized a renderer with an Init hook is prepared immediately.
func (s *SDK) SetRenderer(r render.Renderer) {
	if r == nil {
		r = render.Noop{}
	}
	s.mu.Lock()
	s.renderer = r
	initialized := s.initialized
	s.mu.Unlock()

	if init, ok := r.(render.Initializer); ok && initialized {
		init.Init()
	}
}

// showDefinition is the single display path for definitions: it
// records the analytics attribution and the cooldown stamp, hands the
// popup to the renderer and emits popup_shown with the popupId.
func (s *SDK) showDefinition(def popup.Definition) {
	s.mu.Lock()
	s.surveyPopup[def.SurveyID] = def.ID
	s.lastShown[def.ID] = s.now()
	renderer := s.renderer
	envLabel := s.envLabelLocked()
	s.mu.Unlock()

	renderer.Show(def.SurveyID, def.ProductID, def.Actions, s.rendererEmit, s.hidePopup, envLabel)
	s.emitEvent(EventPopupShown, def.SurveyID, map[string]any{"popupId": def.ID})
}

// rendererEmit lets the renderer feed popup_clicked and
// survey_completed back into the event bus.
func (s *SDK) rendererEmit(eventType, surveyID string, data map[string]any) {
	s.emitEvent(EventType(eventType), surveyID, data)
}

func (s *SDK) hidePopup() {
	s.mu.Lock()
	renderer := s.renderer
	s.mu.Unlock()
	renderer.Hide()
}

func (s *SDK) envLabelLocked() string {
	if s.cfg != nil && s.cfg.BaseURL == devBaseURL {
		return EnvDevelopment
	}
	return EnvProduction
}

// findDefinition resolves a definition by popup id first, then by the
// first definition for the survey. Callers must hold s.mu.
func (s *SDK) findDefinition(surveyID, popupID string) (popup.Definition, bool) {
	if popupID != "" {
		if def, ok := s.findDefinitionByID(popupID); ok {
			return def, true
		}
	}
	for _, def := range s.defs {
		if def.SurveyID == surveyID {
			return def, true
		}
	}
	return popup.Definition{}, false
}

// findDefinitionByID resolves a definition by id. Callers must hold
// s.mu.
func (s *SDK) findDefinitionByID(popupID string) (popup.Definition, bool) {
	for _, def := range s.defs {
		if def.ID == popupID {
			return def, true
		}
	}
	return popup.Definition{}, false
}

var _ trigger.Sink = (*SDK)(nil)
