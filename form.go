package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var ErrNumeroObligatorio = errors.New("número de verificación es obligatorio")

// FormSession owns the in-memory state of one verification record being
// authored. All mutations funnel through it: every change to a specimen
// row re-derives that row synchronously, and every state change is
// offered to whichever persistence path is active — the local draft
// saver while composing a new record, the remote autosaver while editing
// a persisted one.
type FormSession struct {
	client    *APIClient
	notifier  Notifier
	exportDir string
	loc       *time.Location

	draft  *DraftAutoSaver
	remote *DBAutoSaver

	mu       sync.Mutex
	data     VerificacionMuestras
	recordID int64

	status          RecepcionStatus
	suggestions     []Suggestion
	showSuggestions bool
	suggestSeq      int
}

// NewFormSession starts a session for a fresh record. A stored draft
// under the "new" key is restored when present and fresh.
func NewFormSession(cfg Config, client *APIClient, notifier Notifier, db *sql.DB, registry *NotifyRegistry) *FormSession {
	s := &FormSession{
		client:    client,
		notifier:  notifier,
		exportDir: cfg.ExportOutputDir,
		loc:       cfg.Location,
		data:      NewVerificacion(cfg.Location),
		status:    RecepcionStatus{Estado: EstadoIdle},
	}
	s.draft = NewDraftAutoSaver(db, DraftKey(0), cfg.DraftDebounce(), notifier, registry)
	s.draft.LoadOnce(func(data []byte) {
		var v VerificacionMuestras
		if err := json.Unmarshal(data, &v); err != nil {
			return
		}
		s.mu.Lock()
		s.data = v
		s.mu.Unlock()
	})
	return s
}

// OpenFormSession loads an existing record for editing. The remote
// autosaver's reference is set to the loaded state so the load itself is
// not treated as a change.
func OpenFormSession(cfg Config, client *APIClient, notifier Notifier, id int64) (*FormSession, error) {
	v, err := client.GetVerificacion(id)
	if err != nil {
		notifier.Error("Error al cargar la verificación")
		return nil, err
	}
	normalizeLoadedVerificacion(&v)

	s := &FormSession{
		client:    client,
		notifier:  notifier,
		exportDir: cfg.ExportOutputDir,
		loc:       cfg.Location,
		data:      v,
		recordID:  id,
		status:    RecepcionStatus{Estado: EstadoIdle},
	}
	s.remote = NewDBAutoSaver(cfg.AutosaveDebounce(), notifier,
		func(snapshot []byte) error {
			return client.UpdateVerificacionRaw(id, snapshot)
		},
		func(error) {
			notifier.Error("Error al guardar cambios automáticamente")
		},
	)
	s.remote.UpdateReference(s.data)
	return s, nil
}

// normalizeLoadedVerificacion cleans up a record as stored by older
// backend versions: case drift on acceptance strings, retired conformity
// vocabulary, and the legacy perpendicularity column names.
func normalizeLoadedVerificacion(v *VerificacionMuestras) {
	v.FechaVerificacion = FormatDateForInput(v.FechaVerificacion)
	for _, p := range []*string{&v.EquipoBernier, &v.EquipoLainas1, &v.EquipoLainas2, &v.EquipoEscuadra, &v.EquipoBalanza} {
		if *p == "" {
			*p = "-"
		}
	}
	for i := range v.Muestras {
		normalizeLoadedMuestra(&v.Muestras[i])
	}
}

func normalizeLoadedMuestra(m *MuestraVerificada) {
	m.AceptacionDiametro = strings.ToUpper(m.AceptacionDiametro)
	m.PlanitudSuperiorAceptacion = strings.ToUpper(m.PlanitudSuperiorAceptacion)
	m.PlanitudInferiorAceptacion = strings.ToUpper(m.PlanitudInferiorAceptacion)
	m.PlanitudDepresionesAceptacion = strings.ToUpper(m.PlanitudDepresionesAceptacion)

	accion := m.AccionRealizar
	if accion == "" {
		accion = "-"
	}
	norm := strings.TrimSpace(strings.Replace(strings.ToUpper(accion), "CARA ", "", 1))
	if optionMatch(AccionOptions, norm) != "" {
		m.AccionRealizar = norm
	} else {
		m.AccionRealizar = accion
	}

	conf := m.Conformidad
	if conf == "" {
		conf = "-"
	}
	switch strings.ToUpper(conf) {
	case "CONFORME":
		conf = "Ensayar"
	case "NO CONFORME":
		conf = "No Ensayar"
	}
	if matched := optionMatch(ConformidadOptions, conf); matched != "" {
		m.Conformidad = matched
	} else {
		m.Conformidad = "-"
	}

	// Fold in the legacy perpendicularity fields, current names winning.
	if m.PerpendicularidadSup1 == nil {
		m.PerpendicularidadSup1 = m.LegacyP1
	}
	if m.PerpendicularidadSup2 == nil {
		m.PerpendicularidadSup2 = m.LegacyP2
	}
	if m.PerpendicularidadInf1 == nil {
		m.PerpendicularidadInf1 = m.LegacyP3
	}
	if m.PerpendicularidadInf2 == nil {
		m.PerpendicularidadInf2 = m.LegacyP4
	}
	if m.PerpendicularidadMedida == nil {
		m.PerpendicularidadMedida = m.LegacyCumple
	}
	m.LegacyP1, m.LegacyP2, m.LegacyP3, m.LegacyP4, m.LegacyCumple = nil, nil, nil, nil, nil
}

func optionMatch(options []string, val string) string {
	for _, opt := range options {
		if strings.EqualFold(opt, val) {
			return opt
		}
	}
	return ""
}

// touch offers the current state to the active persistence path. Caller
// must hold s.mu.
func (s *FormSession) touch() {
	snapshot := s.data
	if s.draft != nil {
		s.draft.Update(snapshot)
	}
	if s.remote != nil {
		s.remote.Update(snapshot)
	}
}

// Data returns a copy of the current record state.
func (s *FormSession) Data() VerificacionMuestras {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.data
	v.Muestras = append([]MuestraVerificada(nil), s.data.Muestras...)
	return v
}

// Apply mutates header fields of the record.
func (s *FormSession) Apply(mutate func(*VerificacionMuestras)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.data)
	s.touch()
}

// UpdateMuestra mutates one specimen row and re-derives it in the same
// step; consumers of the state never observe a stale derived field.
func (s *FormSession) UpdateMuestra(index int, mutate func(*MuestraVerificada)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.data.Muestras) {
		return fmt.Errorf("muestra index %d out of range", index)
	}
	mutate(&s.data.Muestras[index])
	s.data.Muestras[index] = CalculateDerived(s.data.Muestras[index])
	s.touch()
	return nil
}

// LemCodeBlur normalizes a row's laboratory code on loss of focus.
func (s *FormSession) LemCodeBlur(index int) error {
	return s.UpdateMuestra(index, func(m *MuestraVerificada) {
		m.CodigoLem = FormatLemCode(m.CodigoLem, s.loc)
	})
}

func (s *FormSession) AddMuestra() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Muestras = append(s.data.Muestras, NewMuestra(len(s.data.Muestras)+1))
	s.touch()
}

// CopyMuestra duplicates a row at the end of the list.
func (s *FormSession) CopyMuestra(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.data.Muestras) {
		return fmt.Errorf("muestra index %d out of range", index)
	}
	dup := s.data.Muestras[index]
	dup.ItemNumero = len(s.data.Muestras) + 1
	s.data.Muestras = append(s.data.Muestras, dup)
	s.touch()
	return nil
}

func (s *FormSession) RemoveMuestra(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.data.Muestras) {
		return fmt.Errorf("muestra index %d out of range", index)
	}
	s.data.Muestras = append(s.data.Muestras[:index], s.data.Muestras[index+1:]...)
	for i := range s.data.Muestras {
		s.data.Muestras[i].ItemNumero = i + 1
	}
	s.touch()
	return nil
}

// SetAllEquipment fills every equipment slot with one value.
func (s *FormSession) SetAllEquipment(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.EquipoBernier = value
	s.data.EquipoLainas1 = value
	s.data.EquipoLainas2 = value
	s.data.EquipoEscuadra = value
	s.data.EquipoBalanza = value
	s.touch()
}

// Submit validates and persists the record: create for a new record
// (clearing its draft), update for an existing one; both then download
// the spreadsheet artifact.
func (s *FormSession) Submit() error {
	s.mu.Lock()
	if strings.TrimSpace(s.data.NumeroVerificacion) == "" {
		s.mu.Unlock()
		s.notifier.Error("Número de verificación es obligatorio")
		return ErrNumeroObligatorio
	}
	payload := s.data
	payload.Muestras = append([]MuestraVerificada(nil), s.data.Muestras...)
	payload.FechaVerificacion = FormatDateForDB(payload.FechaVerificacion)
	id := s.recordID
	s.mu.Unlock()

	if id != 0 {
		if err := s.client.UpdateVerificacion(id, payload); err != nil {
			s.notifier.Error(err.Error())
			return err
		}
		s.notifier.Success("Actualizado correctamente")
		s.downloadExcel(id)
		return nil
	}

	created, err := s.client.CreateVerificacion(payload)
	if err != nil {
		s.notifier.Error(err.Error())
		return err
	}
	s.notifier.Success("Guardado correctamente")
	if s.draft != nil {
		s.draft.Clear()
	}
	s.mu.Lock()
	s.recordID = created.ID
	s.data.ID = created.ID
	s.mu.Unlock()
	if created.ID != 0 {
		s.downloadExcel(created.ID)
	}
	return nil
}

func (s *FormSession) downloadExcel(id int64) {
	s.mu.Lock()
	numero := s.data.NumeroVerificacion
	s.mu.Unlock()
	if _, err := DownloadExcel(s.client, id, numero, s.exportDir); err != nil {
		s.notifier.Error("Error al descargar Excel")
	}
}

// ResetDraft discards the stored draft and the in-memory data, returning
// the session to a blank record.
func (s *FormSession) ResetDraft() {
	if s.draft != nil {
		s.draft.Clear()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = NewVerificacion(s.loc)
	s.status = RecepcionStatus{Estado: EstadoIdle}
	s.suggestions = nil
	s.showSuggestions = false
}

// Close cancels pending debounce timers so no write lands after
// teardown.
func (s *FormSession) Close() {
	if s.draft != nil {
		s.draft.Stop()
	}
	if s.remote != nil {
		s.remote.Stop()
	}
}
