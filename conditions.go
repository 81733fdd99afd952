// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

package deepdots

import (
	"time"

	"github.com/MagicFeedback/deepdots-popup-sdk/popup"
)

const day = 24 * time.Hour

// shouldShow evaluates whether a definition may be displayed right
// now. Unless skipPathCheck is set, the definition's segment paths
// must match candidateURL (or the current location when candidateURL
// is empty). Every trigger condition must then hold: a definition
// requiring "not yet answered" is blocked once its survey was
// completed, and a cooldown blocks re-display until the configured
// number of days has elapsed since the popup was last shown. Absent
// state counts as "never shown" and "not answered".
//
// Pure read of runtime state; callers must hold s.mu.
func (s *SDK) shouldShow(def popup.Definition, candidateURL string, skipPathCheck bool) bool {
	if !skipPathCheck {
		url := candidateURL
		if url == "" && s.env != nil {
			url = s.env.Location()
		}
		if !popup.MatchesPath(def.Segments.Path, url) {
			return false
		}
	}

	for _, c := range def.Trigger.Condition {
		if !s.conditionHolds(def, c) {
			return false
		}
	}
	return true
}

func (s *SDK) conditionHolds(def popup.Definition, c popup.Condition) bool {
	if !c.Answered {
		if _, answered := s.answered[def.SurveyID]; answered {
			return false
		}
	}

	if c.CooldownDays > 0 {
		if last, ok := s.lastShown[def.ID]; ok {
			cooldown := time.Duration(c.CooldownDays * float64(day))
			if s.now().Sub(last) < cooldown {
				return false
			}
		}
	}
	return true
}
