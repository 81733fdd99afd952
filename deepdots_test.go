// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

package deepdots

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagicFeedback/deepdots-popup-sdk/host"
	"github.com/MagicFeedback/deepdots-popup-sdk/popup"
	"github.com/MagicFeedback/deepdots-popup-sdk/render"
	"github.com/MagicFeedback/deepdots-popup-sdk/trigger"
)

// captureRenderer records every Show call.
type captureRenderer struct {
	mu     sync.Mutex
	shown  []string // survey ids in display order
	inited int
}

func (c *captureRenderer) Show(surveyID, productID string, actions *popup.Actions, emit render.EmitFunc, onClose func(), envLabel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shown = append(c.shown, surveyID)
}

func (c *captureRenderer) Hide() {}

func (c *captureRenderer) Init() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inited++
}

func (c *captureRenderer) shownCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.shown)
}

func (c *captureRenderer) lastShown() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.shown) == 0 {
		return ""
	}
	return c.shown[len(c.shown)-1]
}

// analyticsPost is one captured analytics event.
type analyticsPost struct {
	PublicKey string `json:"publicKey"`
	Status    string `json:"status"`
	PopupID   string `json:"popupId"`
	UserID    string `json:"userId"`
}

// backendStub serves the definitions and analytics endpoints over
// httptest so no SDK test ever leaves the process.
type backendStub struct {
	srv *httptest.Server

	mu    sync.Mutex
	defs  []byte
	posts []analyticsPost
}

func newBackendStub(t *testing.T, defs string) *backendStub {
	t.Helper()
	b := &backendStub{defs: []byte(defs)}
	if defs == "" {
		b.defs = []byte(`[]`)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sdk/{apiKey}/popups", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b.defs)
	})
	mux.HandleFunc("POST /sdk/popups", func(w http.ResponseWriter, r *http.Request) {
		var post analyticsPost
		if err := json.NewDecoder(r.Body).Decode(&post); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.posts = append(b.posts, post)
		b.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backendStub) postCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.posts)
}

func (b *backendStub) postsCopy() []analyticsPost {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]analyticsPost, len(b.posts))
	copy(out, b.posts)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// newClientSDK initializes an SDK in client mode against a local stub
// backend with a capture renderer.
func newClientSDK(t *testing.T, defs []popup.Definition, env host.Environment) (*SDK, *captureRenderer, *backendStub) {
	t.Helper()
	stub := newBackendStub(t, "")
	r := &captureRenderer{}
	sdk := New()
	err := sdk.Init(InitParams{
		APIKey:      "test-key",
		Mode:        ModeClient,
		BaseURL:     stub.srv.URL,
		UserID:      "visitor-1",
		Popups:      defs,
		Renderer:    r,
		Environment: env,
	})
	require.NoError(t, err)
	return sdk, r, stub
}

func timeDef(id, surveyID string, seconds float64, conds ...popup.Condition) popup.Definition {
	return popup.Definition{
		ID:       id,
		SurveyID: surveyID,
		Trigger: popup.TriggerSpec{
			Type:      popup.TriggerTimeOnPage,
			ValueNum:  seconds,
			Condition: conds,
		},
	}
}

func TestOperationsRequireInit(t *testing.T) {
	sdk := New()

	assert.ErrorIs(t, sdk.AutoLaunch(), ErrNotInitialized)
	assert.ErrorIs(t, sdk.TriggerEvent("x"), ErrNotInitialized)
	assert.ErrorIs(t, sdk.Show(popup.Definition{ID: "p", SurveyID: "s"}), ErrNotInitialized)
	assert.ErrorIs(t, sdk.ShowSurvey(ShowOptions{SurveyID: "s"}), ErrNotInitialized)
	assert.ErrorIs(t, sdk.ConfigureTriggers(nil), ErrNotInitialized)
}

func TestInitIsIdempotent(t *testing.T) {
	defs := []popup.Definition{timeDef("p1", "s1", 1)}
	sdk, r, _ := newClientSDK(t, defs, nil)

	// A second Init is a no-op: the original definitions stay active.
	err := sdk.Init(InitParams{Mode: ModeClient, Popups: []popup.Definition{timeDef("p2", "s2", 1)}})
	require.NoError(t, err)

	require.NoError(t, sdk.ShowByPopupID("p1"))
	assert.Equal(t, 1, r.shownCount())
	require.NoError(t, sdk.ShowByPopupID("p2"))
	assert.Equal(t, 1, r.shownCount(), "definitions from the second Init must not be adopted")
}

func TestInitCallsRendererInit(t *testing.T) {
	_, r, _ := newClientSDK(t, nil, nil)
	assert.Equal(t, 1, r.inited)
}

func TestShowBypassesConditions(t *testing.T) {
	def := timeDef("p1", "s1", 1, popup.Condition{Answered: false})
	sdk, r, _ := newClientSDK(t, []popup.Definition{def}, nil)

	sdk.MarkSurveyAnswered("s1")
	require.NoError(t, sdk.Show(def))
	assert.Equal(t, []string{"s1"}, r.shown)
}

func TestShowSurveyLegacyShorthand(t *testing.T) {
	sdk, r, _ := newClientSDK(t, nil, nil)

	var events []Event
	sdk.On(EventPopupShown, func(ev Event) { events = append(events, ev) })

	require.NoError(t, sdk.ShowSurvey(ShowOptions{SurveyID: "s9", ProductID: "prod", Data: map[string]any{"k": "v"}}))
	assert.Equal(t, []string{"s9"}, r.shown)
	require.Len(t, events, 1)
	assert.Equal(t, "s9", events[0].SurveyID)
	assert.Equal(t, "v", events[0].Data["k"])
}

func TestAnsweredConditionBlocks(t *testing.T) {
	def := timeDef("p1", "s1", 1, popup.Condition{Answered: false})
	sdk, r, _ := newClientSDK(t, []popup.Definition{def}, nil)

	sdk.TriggerSurvey("s1", "p1")
	assert.Equal(t, 1, r.shownCount())

	sdk.MarkSurveyAnswered("s1")
	sdk.TriggerSurvey("s1", "p1")
	assert.Equal(t, 1, r.shownCount(), "answered survey must not re-show")
}

func TestSurveyCompletedEventMarksAnswered(t *testing.T) {
	def := timeDef("p1", "s1", 1, popup.Condition{Answered: false})
	sdk, r, _ := newClientSDK(t, []popup.Definition{def}, nil)

	sdk.TriggerSurvey("s1", "p1")
	require.Equal(t, 1, r.shownCount())

	sdk.emitEvent(EventSurveyCompleted, "s1", nil)
	sdk.TriggerSurvey("s1", "p1")
	assert.Equal(t, 1, r.shownCount())
}

func TestCooldownBlocksAndExpires(t *testing.T) {
	def := timeDef("p1", "s1", 1, popup.Condition{Answered: true, CooldownDays: 7})
	sdk, r, _ := newClientSDK(t, []popup.Definition{def}, nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	sdk.now = func() time.Time { return now }

	sdk.TriggerSurvey("s1", "p1")
	require.Equal(t, 1, r.shownCount())

	now = base.Add(6 * 24 * time.Hour)
	sdk.TriggerSurvey("s1", "p1")
	assert.Equal(t, 1, r.shownCount(), "cooldown must block within the window")

	now = base.Add(8 * 24 * time.Hour)
	sdk.TriggerSurvey("s1", "p1")
	assert.Equal(t, 2, r.shownCount(), "cooldown must expire after the window")

	// The display stamp is refreshed every show.
	now = now.Add(24 * time.Hour)
	sdk.TriggerSurvey("s1", "p1")
	assert.Equal(t, 2, r.shownCount())
}

func TestPathSegmentsGateTriggerFirings(t *testing.T) {
	sim := host.NewSim("https://example.com/#/game")
	def := timeDef("p1", "s1", 1)
	def.Segments.Path = []string{"/#/login"}
	sdk, r, _ := newClientSDK(t, []popup.Definition{def}, sim)

	sdk.TriggerSurvey("s1", "p1")
	assert.Equal(t, 0, r.shownCount())

	sim.SetLocation("https://example.com/#/login")
	sdk.TriggerSurvey("s1", "p1")
	assert.Equal(t, 1, r.shownCount())
}

func TestTriggerEvent(t *testing.T) {
	answered := popup.Definition{
		ID: "p1", SurveyID: "s1",
		Trigger: popup.TriggerSpec{
			Type: popup.TriggerEvent, ValueStr: "signup",
			Condition: []popup.Condition{{Answered: false}},
		},
	}
	fallback := popup.Definition{
		ID: "p2", SurveyID: "s2",
		Trigger: popup.TriggerSpec{Type: popup.TriggerEvent, ValueStr: "signup"},
	}
	other := timeDef("p3", "s3", 1)

	sdk, r, _ := newClientSDK(t, []popup.Definition{answered, fallback, other}, nil)

	// Unknown names are a no-op, not an error.
	require.NoError(t, sdk.TriggerEvent("unknown"))
	assert.Equal(t, 0, r.shownCount())

	// Whitespace is trimmed; the first passing match wins.
	require.NoError(t, sdk.TriggerEvent("  signup  "))
	assert.Equal(t, "s1", r.lastShown())

	// Once s1 is answered the scan falls through to the next match.
	sdk.MarkSurveyAnswered("s1")
	require.NoError(t, sdk.TriggerEvent("signup"))
	assert.Equal(t, "s2", r.lastShown())

	// Event triggers are re-firable.
	require.NoError(t, sdk.TriggerEvent("signup"))
	assert.Equal(t, 3, r.shownCount())
}

func TestListenerOffAndPanicIsolation(t *testing.T) {
	sdk, _, _ := newClientSDK(t, []popup.Definition{timeDef("p1", "s1", 1)}, nil)

	var calls int
	sub := sdk.On(EventPopupShown, func(Event) { calls++ })
	sdk.On(EventPopupShown, func(Event) { panic("listener bug") })
	var after int
	sdk.On(EventPopupShown, func(Event) { after++ })

	sdk.TriggerSurvey("s1", "p1")
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, after, "a panicking listener must not starve its siblings")

	sdk.Off(EventPopupShown, sub)
	sdk.TriggerSurvey("s1", "p1")
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, after)
}

func TestSetRenderer(t *testing.T) {
	sdk, first, _ := newClientSDK(t, []popup.Definition{timeDef("p1", "s1", 1)}, nil)

	second := &captureRenderer{}
	sdk.SetRenderer(second)
	assert.Equal(t, 1, second.inited, "renderer swapped after Init must be prepared")

	sdk.TriggerSurvey("s1", "p1")
	assert.Equal(t, 0, first.shownCount())
	assert.Equal(t, 1, second.shownCount())
}

func TestDerivedTriggersFireEndToEnd(t *testing.T) {
	sim := host.NewSim("https://example.com/shop")
	sim.SetGeometry(2000, 1000)
	sim.AddElement("cta")

	defs := []popup.Definition{
		timeDef("p-time", "s-time", 0.05),
		{
			ID: "p-scroll", SurveyID: "s-scroll",
			Trigger: popup.TriggerSpec{Type: popup.TriggerScroll, ValueNum: 60},
		},
		{
			ID: "p-click", SurveyID: "s-click",
			Trigger: popup.TriggerSpec{Type: popup.TriggerClick, ValueStr: "cta"},
		},
	}
	sdk, r, _ := newClientSDK(t, defs, sim)
	require.NoError(t, sdk.AutoLaunch())

	waitFor(t, time.Second, func() bool { return r.shownCount() >= 1 })
	assert.Equal(t, "s-time", r.shown[0])

	sim.Scroll(700)
	waitFor(t, time.Second, func() bool { return r.shownCount() >= 2 })

	sim.ClickElement("cta", false)
	waitFor(t, time.Second, func() bool { return r.shownCount() >= 3 })
}

func TestServerModeDefersAutoLaunch(t *testing.T) {
	stub := newBackendStub(t, `[
		{"id": "p1", "surveyId": "s1", "trigger": {"type": "time_on_page", "value": 0.05}}
	]`)

	r := &captureRenderer{}
	sdk := New()
	err := sdk.Init(InitParams{
		APIKey:   "server-key",
		Mode:     ModeServer,
		BaseURL:  stub.srv.URL,
		UserID:   "visitor-2",
		Renderer: r,
	})
	require.NoError(t, err)

	// AutoLaunch before the fetch completes suspends itself and
	// resumes once definitions arrive.
	require.NoError(t, sdk.AutoLaunch())

	waitFor(t, 2*time.Second, func() bool { return r.shownCount() == 1 })
	assert.Equal(t, "s1", r.lastShown())

	// The display posts an "opened" analytics event.
	waitFor(t, 2*time.Second, func() bool { return stub.postCount() >= 1 })
	posts := stub.postsCopy()
	assert.Equal(t, "opened", posts[0].Status)
	assert.Equal(t, "p1", posts[0].PopupID)
	assert.Equal(t, "server-key", posts[0].PublicKey)
	assert.Equal(t, "visitor-2", posts[0].UserID)
}

func TestAnalyticsCompletedEvent(t *testing.T) {
	sdk, _, stub := newClientSDK(t, []popup.Definition{timeDef("p1", "s1", 1)}, nil)

	sdk.TriggerSurvey("s1", "p1")
	sdk.emitEvent(EventSurveyCompleted, "s1", nil)

	waitFor(t, 2*time.Second, func() bool { return stub.postCount() >= 2 })
	statuses := map[string]string{}
	for _, p := range stub.postsCopy() {
		statuses[p.Status] = p.PopupID
	}
	assert.Equal(t, "p1", statuses["opened"])
	assert.Equal(t, "p1", statuses["completed"], "completed must attribute to the shown popup")
}

func TestConfigureTriggersManually(t *testing.T) {
	sdk, r, _ := newClientSDK(t, []popup.Definition{timeDef("p1", "s1", 10)}, nil)

	require.NoError(t, sdk.ConfigureTriggers([]trigger.Trigger{
		{Kind: trigger.KindTime, Delay: 20 * time.Millisecond, SurveyID: "s1", PopupID: "p1"},
	}))
	require.NoError(t, sdk.AutoLaunch())

	waitFor(t, time.Second, func() bool { return r.shownCount() == 1 })
}

func TestResolveBaseURL(t *testing.T) {
	url, err := resolveBaseURL("", "")
	require.NoError(t, err)
	assert.Equal(t, prodBaseURL, url)

	url, err = resolveBaseURL(EnvDevelopment, "")
	require.NoError(t, err)
	assert.Equal(t, devBaseURL, url)

	url, err = resolveBaseURL(EnvDevelopment, "https://override.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://override.example.com", url)

	t.Setenv("DEEPDOTS_API_BASE_URL", "https://env.example.com")
	url, err = resolveBaseURL("", "")
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", url)
}
