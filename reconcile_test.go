package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// tracingBackend fakes the tracing and reception endpoints.
type tracingBackend struct {
	mu          sync.Mutex
	validate    map[string]string // numero -> response body
	suggest     map[string]string // query -> response body
	recepciones map[string]string // id -> response body
	validateLog []string
}

func (b *tracingBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/tracing/validate/"):
			numero := strings.TrimPrefix(r.URL.Path, "/api/tracing/validate/")
			b.validateLog = append(b.validateLog, numero)
			if body, ok := b.validate[numero]; ok {
				w.Write([]byte(body))
				return
			}
			w.Write([]byte(`{"exists": false}`))
		case r.URL.Path == "/api/tracing/suggest":
			if body, ok := b.suggest[r.URL.Query().Get("q")]; ok {
				w.Write([]byte(body))
				return
			}
			w.Write([]byte(`[]`))
		case strings.HasPrefix(r.URL.Path, "/api/recepcion/"):
			id := strings.TrimPrefix(r.URL.Path, "/api/recepcion/")
			if body, ok := b.recepciones[id]; ok {
				w.Write([]byte(body))
				return
			}
			http.NotFound(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func (b *tracingBackend) lookups() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.validateLog...)
}

func newReconcileSession(t *testing.T, backend *tracingBackend) (*FormSession, *testNotifier) {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	return newTestSession(t, srv.URL)
}

func TestNumeroBlurAppendsRecMarker(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"CON-2170", "CON-2170-REC"},
		{"CON-2170-25", "CON-2170-REC-25"},
		{"CON-2170-REC", "CON-2170-REC"},
		{"CON-2170-REC-25", "CON-2170-REC-25"},
	}
	for _, tc := range cases {
		backend := &tracingBackend{}
		s, _ := newReconcileSession(t, backend)
		s.Apply(func(v *VerificacionMuestras) { v.NumeroVerificacion = tc.in })
		s.NumeroBlur()
		if got := s.Data().NumeroVerificacion; got != tc.want {
			t.Errorf("blur(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if lookups := backend.lookups(); len(lookups) != 1 || lookups[0] != tc.want {
			t.Errorf("blur(%q) looked up %v, want [%s]", tc.in, lookups, tc.want)
		}
	}
}

func TestNumeroBlurSkipsEmptyAndExistingRecords(t *testing.T) {
	backend := &tracingBackend{}
	s, _ := newReconcileSession(t, backend)
	s.NumeroBlur()
	if got := s.Data().NumeroVerificacion; got != "" {
		t.Fatalf("blur on empty field produced %q", got)
	}
	if len(backend.lookups()) != 0 {
		t.Fatal("blur on empty field should not look up")
	}

	// Persisted records keep their identifier untouched.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": 3, "numero_verificacion": "CON-9"})
	}))
	defer srv.Close()
	client := &APIClient{BaseURL: srv.URL, HTTPClient: http.DefaultClient}
	existing, err := OpenFormSession(testConfig(t, srv.URL), client, &testNotifier{}, 3)
	if err != nil {
		t.Fatalf("OpenFormSession failed: %v", err)
	}
	defer existing.Close()
	existing.NumeroBlur()
	if got := existing.Data().NumeroVerificacion; got != "CON-9" {
		t.Fatalf("blur rewrote a persisted identifier to %q", got)
	}
}

func TestBuscarRecepcionNotFound(t *testing.T) {
	backend := &tracingBackend{}
	s, _ := newReconcileSession(t, backend)
	s.BuscarRecepcion("CON-404-REC")

	st := s.Status()
	if st.Estado != EstadoDisponible {
		t.Fatalf("estado = %q, want disponible", st.Estado)
	}
	if st.Mensaje != "Número disponible para registro" {
		t.Fatalf("mensaje = %q", st.Mensaje)
	}
	if st.Formatos == nil || st.Formatos.Recepcion || st.Formatos.Verificacion || st.Formatos.Compresion {
		t.Fatalf("formatos = %+v, want all false", st.Formatos)
	}
}

func TestBuscarRecepcionConnectionErrorFailsOpen(t *testing.T) {
	s, _ := newTestSession(t, "http://127.0.0.1:1")
	s.BuscarRecepcion("CON-2170-REC")

	st := s.Status()
	if st.Estado != EstadoDisponible {
		t.Fatalf("estado = %q, want disponible on transport failure", st.Estado)
	}
	if st.Mensaje != "Error de conexión - Verifique manualmente" {
		t.Fatalf("mensaje = %q", st.Mensaje)
	}
}

func TestBuscarRecepcionTooShort(t *testing.T) {
	backend := &tracingBackend{}
	s, _ := newReconcileSession(t, backend)
	s.BuscarRecepcion("C")
	if len(backend.lookups()) != 0 {
		t.Fatal("single-character identifier should not be looked up")
	}
	if st := s.Status(); st.Estado != EstadoIdle {
		t.Fatalf("estado = %q, want idle", st.Estado)
	}
}

func TestBuscarRecepcionMergesAndImports(t *testing.T) {
	backend := &tracingBackend{validate: map[string]string{
		"CON-2170-REC-25": `{
			"exists": true,
			"recepcion": {"status": "completado"},
			"verificacion": {"status": "pendiente"},
			"compresion": {"status": "en_proceso"},
			"datos": {
				"id": 81,
				"cliente": "Constructora Andina",
				"numero_ot": "OT-118",
				"muestras": [
					{"codigo_lem": "2170", "tipo_testigo": "4in x 8in"},
					{"codigo_lem": "2171-CO"}
				]
			}
		}`,
	}}
	s, notifier := newReconcileSession(t, backend)
	s.Apply(func(v *VerificacionMuestras) { v.Cliente = "Cliente Manual" })

	s.BuscarRecepcion("CON-2170-REC-25")

	st := s.Status()
	if st.Estado != EstadoDisponible {
		t.Fatalf("estado = %q, want disponible", st.Estado)
	}
	if st.Mensaje != "Recepción válida - Disponible para verificación" {
		t.Fatalf("mensaje = %q", st.Mensaje)
	}
	if !st.Formatos.Recepcion || st.Formatos.Verificacion || !st.Formatos.Compresion {
		t.Fatalf("formatos = %+v", st.Formatos)
	}

	data := s.Data()
	if data.Cliente != "Cliente Manual" {
		t.Fatalf("backend overwrote cliente: %q", data.Cliente)
	}
	if data.NumeroOT != "OT-118" {
		t.Fatalf("numero_ot not merged: %q", data.NumeroOT)
	}
	if data.RecepcionID != 81 {
		t.Fatalf("recepcion_id not merged: %d", data.RecepcionID)
	}
	if len(data.Muestras) != 2 {
		t.Fatalf("got %d imported rows, want 2", len(data.Muestras))
	}
	if data.Muestras[0].CodigoLem != FormatLemCode("2170", time.Local) {
		t.Fatalf("row code %q not normalized", data.Muestras[0].CodigoLem)
	}
	if data.Muestras[0].TipoTestigo != "4in x 8in" {
		t.Fatalf("tipo_testigo = %q", data.Muestras[0].TipoTestigo)
	}
	if data.Muestras[1].TipoTestigo != "-" {
		t.Fatalf("missing tipo_testigo should default, got %q", data.Muestras[1].TipoTestigo)
	}
	if !notifier.hasSuccessContaining("Datos importados: 2 muestras") {
		t.Fatal("import notice missing")
	}

	// Re-running the lookup must not clobber the existing rows.
	s.UpdateMuestra(0, func(m *MuestraVerificada) { m.Diametro1MM = "100" })
	s.BuscarRecepcion("CON-2170-REC-25")
	data = s.Data()
	if data.Muestras[0].Diametro1MM != "100" {
		t.Fatal("lookup replaced rows the technician already edited")
	}
}

func TestBuscarRecepcionOcupado(t *testing.T) {
	backend := &tracingBackend{validate: map[string]string{
		"CON-2170-REC": `{
			"exists": true,
			"recepcion": {"status": "completado"},
			"verificacion": {"status": "completado"},
			"compresion": {"status": "pendiente"},
			"datos": {}
		}`,
		"CON-2171-REC": `{
			"exists": true,
			"recepcion": {"status": "pendiente"},
			"verificacion": {"status": "pendiente"},
			"datos": {}
		}`,
	}}
	s, _ := newReconcileSession(t, backend)

	s.BuscarRecepcion("CON-2170-REC")
	st := s.Status()
	if st.Estado != EstadoOcupado || st.Mensaje != "Verificación ya registrada" {
		t.Fatalf("got %q/%q, want ocupado/Verificación ya registrada", st.Estado, st.Mensaje)
	}

	s.BuscarRecepcion("CON-2171-REC")
	st = s.Status()
	if st.Estado != EstadoDisponible {
		t.Fatalf("estado = %q, want disponible", st.Estado)
	}
	if st.Mensaje != "Atención: Falta registro de Recepción" {
		t.Fatalf("mensaje = %q", st.Mensaje)
	}
}

func TestSetNumeroVerificacionSuggestions(t *testing.T) {
	backend := &tracingBackend{
		suggest: map[string]string{
			"CON-21": `[
				{"numero_recepcion": "CON-2170-REC-25", "cliente": "Acme", "muestras_count": 3, "estados": {"verificacion": "pendiente"}}
			]`,
		},
		validate: map[string]string{
			"CON-2170-REC-25": `{"exists": true, "recepcion": {"status": "completado"}, "datos": {}}`,
		},
	}
	s, _ := newReconcileSession(t, backend)

	s.SetNumeroVerificacion("con-21")
	if got := s.Data().NumeroVerificacion; got != "CON-21" {
		t.Fatalf("identifier stored as %q, want uppercased", got)
	}
	sugs := s.Suggestions()
	if len(sugs) != 1 || sugs[0].NumeroRecepcion != "CON-2170-REC-25" {
		t.Fatalf("suggestions = %+v", sugs)
	}
	if !s.ShowSuggestions() {
		t.Fatal("dropdown should open when the query returns results")
	}

	s.SelectSuggestion(sugs[0])
	if got := s.Data().NumeroVerificacion; got != "CON-2170-REC-25" {
		t.Fatalf("selection not adopted: %q", got)
	}
	if len(s.Suggestions()) != 0 || s.ShowSuggestions() {
		t.Fatal("dropdown should close after selection")
	}
	if lookups := backend.lookups(); len(lookups) != 1 || lookups[0] != "CON-2170-REC-25" {
		t.Fatalf("selection lookups = %v", lookups)
	}

	// Below two characters the dropdown clears without a request.
	s.SetNumeroVerificacion("C")
	if len(s.Suggestions()) != 0 || s.ShowSuggestions() {
		t.Fatal("short identifier should clear suggestions")
	}
}

func TestSetNumeroVerificacionDiscardsStaleResponse(t *testing.T) {
	slowStarted := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tracing/suggest" {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Query().Get("q") {
		case "CON-21":
			close(slowStarted)
			<-release
			w.Write([]byte(`[{"numero_recepcion": "CON-2199-REC-24", "cliente": "Respuesta Lenta"}]`))
		case "CON-217":
			w.Write([]byte(`[{"numero_recepcion": "CON-2170-REC-25", "cliente": "Respuesta Actual"}]`))
		default:
			w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	s, _ := newTestSession(t, srv.URL)

	done := make(chan struct{})
	go func() {
		s.SetNumeroVerificacion("CON-21")
		close(done)
	}()
	<-slowStarted

	// The technician kept typing while the first query was in flight.
	s.SetNumeroVerificacion("CON-217")
	sugs := s.Suggestions()
	if len(sugs) != 1 || sugs[0].NumeroRecepcion != "CON-2170-REC-25" {
		t.Fatalf("suggestions = %+v", sugs)
	}

	close(release)
	<-done

	sugs = s.Suggestions()
	if len(sugs) != 1 || sugs[0].NumeroRecepcion != "CON-2170-REC-25" {
		t.Fatalf("superseded response replaced the dropdown: %+v", sugs)
	}
	if !s.ShowSuggestions() {
		t.Fatal("dropdown should stay open on the newer results")
	}
}

func TestImportarMuestras(t *testing.T) {
	backend := &tracingBackend{recepciones: map[string]string{
		"81": `{
			"fecha_recepcion": "10/03/2025",
			"muestras": [
				{"codigo_muestra": "2170"},
				{"codigo_muestra_lem": "2171-CO-25"}
			]
		}`,
	}}
	s, notifier := newReconcileSession(t, backend)
	s.Apply(func(v *VerificacionMuestras) { v.RecepcionID = 81 })
	s.AddMuestra() // existing rows are replaced on explicit import

	if err := s.ImportarMuestras(); err != nil {
		t.Fatalf("ImportarMuestras failed: %v", err)
	}

	data := s.Data()
	if len(data.Muestras) != 2 {
		t.Fatalf("got %d rows, want 2", len(data.Muestras))
	}
	if data.Muestras[0].CodigoLem != FormatLemCode("2170", time.Local) {
		t.Fatalf("row 0 code = %q", data.Muestras[0].CodigoLem)
	}
	if data.Muestras[1].CodigoLem != "2171-CO-25" {
		t.Fatalf("row 1 code = %q, fallback field not used", data.Muestras[1].CodigoLem)
	}
	if data.FechaVerificacion != "2025-03-10" {
		t.Fatalf("fecha_verificacion = %q, want the reception date in ISO form", data.FechaVerificacion)
	}
	if !notifier.hasSuccessContaining("2 muestras importadas correctamente") {
		t.Fatal("import notice missing")
	}
}

func TestImportarMuestrasItemsFallback(t *testing.T) {
	backend := &tracingBackend{recepciones: map[string]string{
		"81": `{"items": [{"codigo_muestra": "2170"}]}`,
	}}
	s, _ := newReconcileSession(t, backend)
	s.Apply(func(v *VerificacionMuestras) { v.RecepcionID = 81 })

	if err := s.ImportarMuestras(); err != nil {
		t.Fatalf("ImportarMuestras failed: %v", err)
	}
	if got := len(s.Data().Muestras); got != 1 {
		t.Fatalf("got %d rows from items fallback, want 1", got)
	}
}

func TestImportarMuestrasEmptyLeavesRowsAlone(t *testing.T) {
	backend := &tracingBackend{recepciones: map[string]string{
		"81": `{"muestras": []}`,
	}}
	s, notifier := newReconcileSession(t, backend)
	s.Apply(func(v *VerificacionMuestras) { v.RecepcionID = 81 })
	s.AddMuestra()

	if err := s.ImportarMuestras(); err != nil {
		t.Fatalf("ImportarMuestras failed: %v", err)
	}
	if got := len(s.Data().Muestras); got != 1 {
		t.Fatalf("empty reception mutated rows: %d", got)
	}
	if !notifier.hasErrorContaining("No se encontraron muestras en esta recepción") {
		t.Fatal("empty-reception notice missing")
	}
}

func TestImportarMuestrasWithoutLink(t *testing.T) {
	backend := &tracingBackend{}
	s, notifier := newReconcileSession(t, backend)
	if err := s.ImportarMuestras(); err != nil {
		t.Fatalf("ImportarMuestras failed: %v", err)
	}
	if notifier.errorCount() != 0 || notifier.successCount() != 0 {
		t.Fatal("import without a reception link should be a silent no-op")
	}
}

func TestImportarMuestrasTransportError(t *testing.T) {
	s, notifier := newTestSession(t, "http://127.0.0.1:1")
	s.Apply(func(v *VerificacionMuestras) { v.RecepcionID = 81 })
	if err := s.ImportarMuestras(); err == nil {
		t.Fatal("transport failure should surface an error")
	}
	if !notifier.hasErrorContaining("Error al importar muestras de recepción") {
		t.Fatal("import failure notice missing")
	}
}
