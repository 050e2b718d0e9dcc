package main

import (
	"bytes"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// DBAutoSaver pushes changed snapshots of a record to the backend after a
// quiet period. It keeps a reference snapshot of the last known-saved
// state; an Update that matches the reference is not a change. The first
// Update only seeds the reference (first render is not a change), and an
// armed skip guard swallows exactly one change — used right after a
// programmatic bulk load so what was just loaded is not re-saved.
type DBAutoSaver struct {
	debounce time.Duration
	onSave   func(snapshot []byte) error
	onError  func(error)
	notifier Notifier

	mu         sync.Mutex
	reference  []byte
	seeded     bool
	skipNext   bool
	timer      *time.Timer
	saving     bool
	lastSaved  time.Time
	hasUnsaved bool
	stopped    bool
}

func NewDBAutoSaver(debounce time.Duration, notifier Notifier, onSave func([]byte) error, onError func(error)) *DBAutoSaver {
	return &DBAutoSaver{
		debounce: debounce,
		notifier: notifier,
		onSave:   onSave,
		onError:  onError,
	}
}

// Update offers the current snapshot for change detection.
func (s *DBAutoSaver) Update(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("autosave marshal error: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if !s.seeded {
		s.reference = payload
		s.seeded = true
		return
	}

	if s.skipNext {
		s.skipNext = false
		s.reference = payload
		return
	}

	if bytes.Equal(s.reference, payload) {
		return
	}

	s.hasUnsaved = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.doSave(payload, "Cambios guardados automáticamente")
	})
}

// SaveNow cancels any pending timer and saves the given snapshot
// immediately, whether or not a change was detected.
func (s *DBAutoSaver) SaveNow(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("autosave marshal error: %v", err)
		return
	}

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.doSave(payload, "Cambios guardados")
}

func (s *DBAutoSaver) doSave(payload []byte, successMsg string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.saving = true
	s.mu.Unlock()

	err := s.onSave(payload)

	s.mu.Lock()
	s.saving = false
	if err == nil {
		s.reference = payload
		s.seeded = true
		s.lastSaved = time.Now()
		s.hasUnsaved = false
	}
	s.mu.Unlock()

	if err != nil {
		log.Printf("autosave error: %v", err)
		if s.onError != nil {
			s.onError(err)
		} else {
			s.notifier.Error("Error al guardar cambios")
		}
		return
	}
	s.notifier.Success(successMsg)
}

// UpdateReference replaces the reference snapshot without saving. Used
// after loading an existing record so future comparisons start from the
// loaded state.
func (s *DBAutoSaver) UpdateReference(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("autosave marshal error: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reference = payload
	s.seeded = true
}

// SkipNextSave arms the guard that swallows the next detected change.
func (s *DBAutoSaver) SkipNextSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipNext = true
}

func (s *DBAutoSaver) IsSaving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

func (s *DBAutoSaver) LastSaved() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved
}

func (s *DBAutoSaver) HasUnsavedChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasUnsaved
}

// Stop cancels any pending save; a save already in flight still clears
// its saving flag but no new one starts.
func (s *DBAutoSaver) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
