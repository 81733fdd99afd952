// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

package deepdots

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MagicFeedback/deepdots-popup-sdk/popup"
	"github.com/MagicFeedback/deepdots-popup-sdk/storage"
)

// exitQueueStorageKey is the fixed storage slot holding the deferred
// exit queue across reloads.
const exitQueueStorageKey = "deepdots:exit-popups"

// exitRecord is one persisted deferred exit popup: show popup ID after
// the visitor has left SourceURL, no earlier than DueAt.
type exitRecord struct {
	ID        string `json:"id"`
	SurveyID  string `json:"surveyId"`
	SourceURL string `json:"sourceUrl"`
	DueAt     int64  `json:"dueAt"` // epoch milliseconds
}

func (r exitRecord) timerKey() string {
	return r.ID + "\x00" + r.SourceURL
}

// QueueExitPopup records a deferred exit popup. The definition is
// resolved by popupID first, then surveyID; if its conditions
// (including the path match against sourceURL) fail at queue time the
// record is never created. An existing record for the same popup and
// source URL is replaced, and its timer rescheduled, rather than
// duplicated.
func (s *SDK) QueueExitPopup(surveyID string, delay time.Duration, sourceURL, popupID string) {
	s.mu.Lock()

	if !s.initialized {
		s.mu.Unlock()
		return
	}

	def, ok := s.findDefinition(surveyID, popupID)
	if !ok {
		s.logger.Debug("exit queue: no definition", "surveyId", surveyID, "popupId", popupID)
		s.mu.Unlock()
		return
	}
	if !s.shouldShow(def, sourceURL, false) {
		s.logger.Debug("exit queue: conditions rejected at queue time", "popupId", def.ID, "sourceUrl", sourceURL)
		s.mu.Unlock()
		return
	}

	if delay < 0 {
		delay = 0
	}
	rec := exitRecord{
		ID:        def.ID,
		SurveyID:  def.SurveyID,
		SourceURL: popup.NormalizeURL(sourceURL),
		DueAt:     s.now().Add(delay).UnixMilli(),
	}

	queue := s.loadQueueLocked()
	replaced := false
	for i := range queue {
		if queue[i].ID == rec.ID && queue[i].SourceURL == rec.SourceURL {
			queue[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		queue = append(queue, rec)
	}
	s.saveQueueLocked(queue)
	s.scheduleExitRecordLocked(rec)
	s.logger.Debug("exit popup queued", "popupId", rec.ID, "sourceUrl", rec.SourceURL, "dueAt", rec.DueAt)
	s.mu.Unlock()
}

// ExitQueueLen returns the number of persisted deferred exit records.
func (s *SDK) ExitQueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loadQueueLocked())
}

// processDeferredExitQueue replays the persisted queue on init.
// Records whose definition vanished are dropped silently; records past
// due fire immediately, the rest get a timer for the remaining delay
// so a reload never resets the configured wait.
func (s *SDK) processDeferredExitQueue() {
	s.mu.Lock()
	queue := s.loadQueueLocked()
	if len(queue) == 0 {
		s.mu.Unlock()
		return
	}

	kept := queue[:0]
	var due, scheduled []exitRecord
	for _, rec := range queue {
		if _, ok := s.findDefinitionByID(rec.ID); !ok {
			continue
		}
		kept = append(kept, rec)
		if rec.DueAt <= s.now().UnixMilli() {
			due = append(due, rec)
		} else {
			scheduled = append(scheduled, rec)
		}
	}
	s.saveQueueLocked(kept)
	for _, rec := range scheduled {
		s.scheduleExitRecordLocked(rec)
	}
	s.mu.Unlock()

	for _, rec := range due {
		s.tryShowDeferredExitPopup(rec)
	}
}

// scheduleExitRecordLocked arms the in-memory timer for a record,
// replacing any previous timer for the same record. At most one live
// timer exists per queued record.
func (s *SDK) scheduleExitRecordLocked(rec exitRecord) {
	key := rec.timerKey()
	if old, ok := s.queueTimers[key]; ok {
		old.Stop()
	}
	remaining := time.Duration(rec.DueAt-s.now().UnixMilli()) * time.Millisecond
	if remaining < 0 {
		remaining = 0
	}
	s.queueTimers[key] = time.AfterFunc(remaining, func() {
		s.tryShowDeferredExitPopup(rec)
	})
}

// tryShowDeferredExitPopup consumes one queued record. It is shown
// only when its definition still exists, the visitor has genuinely
// left the queued source route, and the conditions still hold (path
// check skipped: the point is to show after leaving the source, not to
// re-match it). The record is removed from the queue either way.
func (s *SDK) tryShowDeferredExitPopup(rec exitRecord) {
	s.mu.Lock()
	s.removeQueueRecordLocked(rec)

	def, ok := s.findDefinitionByID(rec.ID)
	if !ok {
		s.logger.Debug("deferred exit: definition vanished", "popupId", rec.ID)
		s.mu.Unlock()
		return
	}

	current := ""
	if s.env != nil {
		current = popup.NormalizeURL(s.env.Location())
	}
	if current == popup.NormalizeURL(rec.SourceURL) {
		s.logger.Debug("deferred exit: route never changed", "popupId", rec.ID, "url", current)
		s.mu.Unlock()
		return
	}

	if !s.shouldShow(def, current, true) {
		s.logger.Debug("deferred exit: conditions rejected", "popupId", rec.ID)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.showDefinition(def)
}

// removeQueueRecordLocked drops a record from the persisted queue and
// clears its timer.
func (s *SDK) removeQueueRecordLocked(rec exitRecord) {
	key := rec.timerKey()
	if t, ok := s.queueTimers[key]; ok {
		t.Stop()
		delete(s.queueTimers, key)
	}

	queue := s.loadQueueLocked()
	kept := queue[:0]
	for _, r := range queue {
		if r.ID == rec.ID && r.SourceURL == rec.SourceURL {
			continue
		}
		kept = append(kept, r)
	}
	s.saveQueueLocked(kept)
}

// loadQueueLocked reads the persisted queue, treating a missing or
// malformed slot as empty.
func (s *SDK) loadQueueLocked() []exitRecord {
	raw, err := s.store.Get(context.Background(), exitQueueStorageKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Debug("exit queue read failed", "error", err)
		}
		return nil
	}

	var queue []exitRecord
	if err := json.Unmarshal(raw, &queue); err != nil {
		s.logger.Debug("exit queue entry malformed, resetting", "error", err)
		return nil
	}
	return queue
}

// saveQueueLocked persists the queue, deleting the slot when empty.
func (s *SDK) saveQueueLocked(queue []exitRecord) {
	ctx := context.Background()
	if len(queue) == 0 {
		if err := s.store.Delete(ctx, exitQueueStorageKey); err != nil {
			s.logger.Debug("exit queue delete failed", "error", err)
		}
		return
	}

	raw, err := json.Marshal(queue)
	if err != nil {
		s.logger.Debug("exit queue encode failed", "error", err)
		return
	}
	if err := s.store.Set(ctx, exitQueueStorageKey, raw); err != nil {
		s.logger.Debug("exit queue write failed", "error", err)
	}
}
