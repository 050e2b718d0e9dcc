package main

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Identifier lookup states.
const (
	EstadoIdle       = "idle"
	EstadoBuscando   = "buscando"
	EstadoDisponible = "disponible"
	EstadoOcupado    = "ocupado"
)

// Backend stage-status literals. "en_proceso" additionally counts as
// done for the compression stage only.
const (
	stageCompletado = "completado"
	stageEnProceso  = "en_proceso"
)

// Formatos reports which laboratory stages already have a registered
// format for the identifier.
type Formatos struct {
	Recepcion    bool
	Verificacion bool
	Compresion   bool
}

// RecepcionStatus is the outcome of an identifier lookup, driving the
// availability indicator next to the verification-number field.
type RecepcionStatus struct {
	Estado   string
	Mensaje  string
	Formatos *Formatos
}

var yearSuffixRe = regexp.MustCompile(`-(\d{2})$`)

// SetNumeroVerificacion records the identifier as typed (uppercased) and
// refreshes the typeahead suggestions once at least two characters are
// present. Last-issued-wins: a response for a superseded query is
// discarded.
func (s *FormSession) SetNumeroVerificacion(val string) {
	val = strings.ToUpper(val)
	s.mu.Lock()
	s.data.NumeroVerificacion = val
	s.touch()
	if len(val) < 2 {
		s.suggestions = nil
		s.showSuggestions = false
		s.mu.Unlock()
		return
	}
	s.suggestSeq++
	seq := s.suggestSeq
	s.mu.Unlock()

	results, err := s.client.GetSuggestions(val)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.suggestSeq {
		return
	}
	if err != nil {
		log.Printf("suggestions error for %q: %v", val, err)
		return
	}
	s.suggestions = results
	s.showSuggestions = len(results) > 0
}

func (s *FormSession) Suggestions() []Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Suggestion(nil), s.suggestions...)
}

// ShowSuggestions reports whether the typeahead dropdown should be
// visible: open while the latest query returned results, closed on a
// short identifier or after a selection.
func (s *FormSession) ShowSuggestions() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showSuggestions
}

// SelectSuggestion adopts a suggestion's canonical identifier, closes
// the dropdown, and runs the status lookup for it.
func (s *FormSession) SelectSuggestion(sug Suggestion) {
	s.mu.Lock()
	s.data.NumeroVerificacion = sug.NumeroRecepcion
	s.suggestions = nil
	s.showSuggestions = false
	s.touch()
	s.mu.Unlock()
	s.BuscarRecepcion(sug.NumeroRecepcion)
}

// NumeroBlur normalizes the identifier when the field loses focus on a
// new record: the -REC marker is inserted before a trailing two-digit
// year, or appended, unless already present. The normalized identifier
// is then looked up.
func (s *FormSession) NumeroBlur() {
	s.mu.Lock()
	value := strings.TrimSpace(s.data.NumeroVerificacion)
	isNew := s.recordID == 0
	if value == "" || !isNew {
		s.mu.Unlock()
		return
	}
	if !strings.Contains(strings.ToUpper(value), "-REC") {
		if yearSuffixRe.MatchString(value) {
			value = yearSuffixRe.ReplaceAllString(value, "-REC-$1")
		} else {
			value += "-REC"
		}
		s.data.NumeroVerificacion = value
		s.touch()
	}
	s.mu.Unlock()
	s.BuscarRecepcion(value)
}

// BuscarRecepcion checks an identifier against the tracing service and
// reconciles the response into the form. Backend data never overwrites a
// field the technician already filled in, and the specimen list is only
// populated while it is empty. A transport failure degrades to
// "disponible" so data entry is never blocked.
func (s *FormSession) BuscarRecepcion(numero string) {
	if len(numero) < 2 {
		return
	}

	s.mu.Lock()
	s.status = RecepcionStatus{Estado: EstadoBuscando}
	s.mu.Unlock()

	st, err := s.client.CheckStatus(numero)
	if err != nil {
		log.Printf("tracing lookup error for %q: %v", numero, err)
		s.mu.Lock()
		s.status = RecepcionStatus{
			Estado:  EstadoDisponible,
			Mensaje: "Error de conexión - Verifique manualmente",
		}
		s.mu.Unlock()
		return
	}

	if !st.Exists {
		s.mu.Lock()
		s.status = RecepcionStatus{
			Estado:   EstadoDisponible,
			Mensaje:  "Número disponible para registro",
			Formatos: &Formatos{},
		}
		s.mu.Unlock()
		return
	}

	recepcionDone := st.Recepcion != nil && st.Recepcion.Status == stageCompletado
	verificacionDone := st.Verificacion != nil && st.Verificacion.Status == stageCompletado
	compresionDone := st.Compresion != nil &&
		(st.Compresion.Status == stageCompletado || st.Compresion.Status == stageEnProceso)

	estado := EstadoDisponible
	mensaje := "Recepción válida - Disponible para verificación"
	if verificacionDone {
		estado = EstadoOcupado
		mensaje = "Verificación ya registrada"
	}
	if !recepcionDone {
		mensaje = "Atención: Falta registro de Recepción"
	}

	datos := gjson.ParseBytes(st.Datos)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = RecepcionStatus{
		Estado:  estado,
		Mensaje: mensaje,
		Formatos: &Formatos{
			Recepcion:    recepcionDone,
			Verificacion: verificacionDone,
			Compresion:   compresionDone,
		},
	}

	// Merge, never overwriting what the technician entered.
	if cliente := datos.Get("cliente").String(); cliente != "" && s.data.Cliente == "" {
		s.data.Cliente = cliente
	}
	if ot := datos.Get("numero_ot").String(); ot != "" && s.data.NumeroOT == "" {
		s.data.NumeroOT = ot
	}
	if id := datos.Get("id").Int(); id != 0 && s.data.RecepcionID == 0 {
		s.data.RecepcionID = id
	}

	if len(s.data.Muestras) == 0 {
		muestras := datos.Get("muestras").Array()
		if len(muestras) > 0 {
			rows := make([]MuestraVerificada, 0, len(muestras))
			for i, m := range muestras {
				row := NewMuestra(i + 1)
				row.CodigoLem = FormatLemCode(m.Get("codigo_lem").String(), s.loc)
				if tipo := m.Get("tipo_testigo").String(); tipo != "" {
					row.TipoTestigo = tipo
				}
				rows = append(rows, row)
			}
			s.data.Muestras = rows
			s.notifier.Success(fmt.Sprintf("Datos importados: %d muestras", len(rows)))
		}
	}
	s.touch()
}

// ImportarMuestras rebuilds the specimen list from the linked reception
// record, replacing any current rows, and adopts its reception date as
// the verification date. Requires the reception link to be known.
func (s *FormSession) ImportarMuestras() error {
	s.mu.Lock()
	recepcionID := s.data.RecepcionID
	s.mu.Unlock()
	if recepcionID == 0 {
		return nil
	}

	body, err := s.client.GetRecepcion(recepcionID)
	if err != nil {
		s.notifier.Error("Error al importar muestras de recepción")
		return err
	}

	orden := gjson.ParseBytes(body)
	items := orden.Get("muestras").Array()
	if len(items) == 0 {
		items = orden.Get("items").Array()
	}
	if len(items) == 0 {
		s.notifier.Error("No se encontraron muestras en esta recepción")
		return nil
	}

	rows := make([]MuestraVerificada, 0, len(items))
	for i, item := range items {
		codigo := item.Get("codigo_muestra").String()
		if codigo == "" {
			codigo = item.Get("codigo_muestra_lem").String()
		}
		row := NewMuestra(i + 1)
		row.CodigoLem = FormatLemCode(codigo, s.loc)
		rows = append(rows, row)
	}

	s.mu.Lock()
	if fecha := orden.Get("fecha_recepcion").String(); fecha != "" {
		s.data.FechaVerificacion = FormatDateForInput(fecha)
	}
	s.data.Muestras = rows
	s.touch()
	s.mu.Unlock()

	s.notifier.Success(fmt.Sprintf("%d muestras importadas correctamente", len(rows)))
	return nil
}

// Status returns the current identifier-lookup status.
func (s *FormSession) Status() RecepcionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
