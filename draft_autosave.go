package main

import (
	"database/sql"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// DraftAutoSaver persists an in-progress record to the local draft store
// with a trailing-edge debounce: each Update restarts the quiet-period
// timer and only the latest snapshot is written when it fires. Storage
// errors are logged and swallowed; a failing draft layer must never
// interrupt data entry.
type DraftAutoSaver struct {
	db       *sql.DB
	key      string
	debounce time.Duration
	notifier Notifier
	registry *NotifyRegistry
	onSave   func()

	mu      sync.Mutex
	timer   *time.Timer
	loaded  bool
	stopped bool
}

func NewDraftAutoSaver(db *sql.DB, key string, debounce time.Duration, notifier Notifier, registry *NotifyRegistry) *DraftAutoSaver {
	return &DraftAutoSaver{
		db:       db,
		key:      key,
		debounce: debounce,
		notifier: notifier,
		registry: registry,
	}
}

// SetOnSave installs a callback invoked after each successful write.
func (s *DraftAutoSaver) SetOnSave(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSave = fn
}

// LoadOnce restores a stored draft, if any, exactly once. A fresh draft
// is handed to onLoad and announced once per key per session; a stale
// one is silently removed. Updates are ignored until this has run.
func (s *DraftAutoSaver) LoadOnce(onLoad func(data []byte)) {
	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return
	}
	s.loaded = true
	s.mu.Unlock()

	data, _, ok, err := LoadFreshDraft(s.db, s.key, time.Now())
	if err != nil {
		log.Printf("draft load error for %s: %v", s.key, err)
		return
	}
	if !ok {
		return
	}
	if onLoad != nil {
		onLoad(data)
		if s.registry == nil || s.registry.FirstTime(s.key) {
			s.notifier.Success("Se encontró un borrador guardado. Se ha restaurado automáticamente.")
		}
	}
}

// Update schedules a debounced save of the given snapshot. A newer
// Update before the timer fires discards the pending one.
func (s *DraftAutoSaver) Update(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("draft marshal error for %s: %v", s.key, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.save(payload)
	})
}

func (s *DraftAutoSaver) save(payload []byte) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	onSave := s.onSave
	s.mu.Unlock()

	if err := SaveDraft(s.db, s.key, payload, time.Now()); err != nil {
		log.Printf("draft save error for %s: %v", s.key, err)
		return
	}
	if onSave != nil {
		onSave()
	}
}

// Clear removes the stored draft immediately. In-memory data is untouched.
func (s *DraftAutoSaver) Clear() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if err := DeleteDraft(s.db, s.key); err != nil {
		log.Printf("draft delete error for %s: %v", s.key, err)
	}
}

// Stop cancels any pending save. Used on form teardown so no stray write
// lands afterwards.
func (s *DraftAutoSaver) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
