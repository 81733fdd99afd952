// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

package popup

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"
)

// Parse errors returned by normalizeDefinition. Callers filter these
// out rather than surfacing them; they exist so dropped payloads are
// distinguishable in debug logs.
var (
	errNotAnObject    = errors.New("definition is not a JSON object")
	errMissingID      = errors.New("definition missing id")
	errMissingSurvey  = errors.New("definition missing surveyId")
	errMissingTrigger = errors.New("definition missing trigger block")
)

// ParseDefinitions normalizes a raw JSON payload into popup
// definitions. The payload must be a JSON array; anything else yields
// zero definitions. Individual entries that cannot be normalized are
// dropped with a debug log, never an error — malformed configuration
// must degrade to "no popup", not break the host application.
func ParseDefinitions(payload []byte, logger *slog.Logger) []Definition {
	if logger == nil {
		logger = slog.Default()
	}
	if !gjson.ValidBytes(payload) {
		logger.Debug("popup payload is not valid JSON")
		return nil
	}

	root := gjson.ParseBytes(payload)
	if !root.IsArray() {
		logger.Debug("popup payload is not a JSON array")
		return nil
	}

	var defs []Definition
	root.ForEach(func(_, raw gjson.Result) bool {
		def, err := normalizeDefinition(raw)
		if err != nil {
			logger.Debug("dropping popup definition", "error", err, "id", raw.Get("id").String())
			return true
		}
		defs = append(defs, def)
		return true
	})
	return defs
}

// normalizeDefinition maps one duck-typed server object onto the
// canonical Definition. The server historically used several shapes:
// the trigger block may live under "trigger" or "triggers", and the
// condition list may appear at the top level as "conditions" when the
// trigger block lacks one. Trigger values arrive as numbers or strings
// depending on the trigger type.
func normalizeDefinition(raw gjson.Result) (Definition, error) {
	if !raw.IsObject() {
		return Definition{}, errNotAnObject
	}

	id := raw.Get("id").String()
	if id == "" {
		return Definition{}, errMissingID
	}
	surveyID := raw.Get("surveyId").String()
	if surveyID == "" {
		return Definition{}, errMissingSurvey
	}

	trig := raw.Get("trigger")
	if !trig.IsObject() {
		trig = raw.Get("triggers")
	}
	if !trig.IsObject() {
		return Definition{}, errMissingTrigger
	}

	def := Definition{
		ID:        id,
		SurveyID:  surveyID,
		ProductID: raw.Get("productId").String(),
		Title:     raw.Get("title").String(),
		Message:   raw.Get("message").String(),
		Trigger:   normalizeTrigger(trig),
	}

	if len(def.Trigger.Condition) == 0 {
		def.Trigger.Condition = normalizeConditions(raw.Get("conditions"))
	}

	if segs := raw.Get("segments"); segs.IsObject() {
		def.Segments = Segments{
			Lang: stringList(segs.Get("lang")),
			Path: stringList(segs.Get("path")),
		}
	}

	if actions := raw.Get("actions"); actions.IsObject() {
		var parsed Actions
		if err := json.Unmarshal([]byte(actions.Raw), &parsed); err == nil {
			def.Actions = &parsed
		}
	}

	if style := raw.Get("style"); style.Exists() {
		def.Style = json.RawMessage(style.Raw)
	}

	return def, nil
}

func normalizeTrigger(trig gjson.Result) TriggerSpec {
	spec := TriggerSpec{
		Type:      strings.TrimSpace(trig.Get("type").String()),
		Condition: normalizeConditions(trig.Get("condition")),
	}

	value := trig.Get("value")
	switch value.Type {
	case gjson.Number:
		spec.ValueNum = value.Float()
	case gjson.String:
		spec.ValueStr = strings.TrimSpace(value.String())
		// Numeric values occasionally arrive as strings.
		spec.ValueNum = value.Float()
	}
	return spec
}

func normalizeConditions(list gjson.Result) []Condition {
	if !list.IsArray() {
		return nil
	}
	var conds []Condition
	list.ForEach(func(_, c gjson.Result) bool {
		if !c.IsObject() {
			return true
		}
		conds = append(conds, Condition{
			Answered:     c.Get("answered").Bool(),
			CooldownDays: c.Get("cooldownDays").Float(),
		})
		return true
	})
	return conds
}

func stringList(list gjson.Result) []string {
	if !list.IsArray() {
		return nil
	}
	var out []string
	list.ForEach(func(_, v gjson.Result) bool {
		if s := v.String(); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}
