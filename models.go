package main

import (
	"strings"
	"time"
)

// Enumerated option sets for form fields. The first entry is always the
// "unset" placeholder the backend also uses.
var (
	EquipmentOptions = []string{"-", "EQP-0255"}

	AccionOptions = []string{
		"-",
		"NEOPRENO SUPERIOR E INFERIOR",
		"NEOPRENO SUPERIOR",
		"NEOPRENO INFERIOR",
		"CAPEO SUPERIOR E INFERIOR",
		"CAPEO SUPERIOR",
		"CAPEO INFERIOR",
	}

	TipoTestigoOptions = []string{"-", "4in x 8in", "6in x 12in"}

	ConformidadOptions = []string{"-", "Ensayar", "No Ensayar"}
)

// MuestraVerificada is one specimen row of a verification record.
// Measurement inputs stay as entered (strings); the derived fields
// tolerancia_porcentaje, aceptacion_diametro and pesar are recomputed by
// CalculateDerived and must never be edited directly.
type MuestraVerificada struct {
	ItemNumero  int    `json:"item_numero"`
	CodigoLem   string `json:"codigo_lem"`
	TipoTestigo string `json:"tipo_testigo"`

	Diametro1MM          string  `json:"diametro_1_mm,omitempty"`
	Diametro2MM          string  `json:"diametro_2_mm,omitempty"`
	ToleranciaPorcentaje float64 `json:"tolerancia_porcentaje"`
	AceptacionDiametro   string  `json:"aceptacion_diametro,omitempty"`

	// Tri-state checks: nil = unset, true = CUMPLE, false = NO CUMPLE.
	PerpendicularidadSup1   *bool `json:"perpendicularidad_sup1,omitempty"`
	PerpendicularidadSup2   *bool `json:"perpendicularidad_sup2,omitempty"`
	PerpendicularidadInf1   *bool `json:"perpendicularidad_inf1,omitempty"`
	PerpendicularidadInf2   *bool `json:"perpendicularidad_inf2,omitempty"`
	PerpendicularidadMedida *bool `json:"perpendicularidad_medida,omitempty"`

	PlanitudSuperiorAceptacion    string `json:"planitud_superior_aceptacion,omitempty"`
	PlanitudInferiorAceptacion    string `json:"planitud_inferior_aceptacion,omitempty"`
	PlanitudDepresionesAceptacion string `json:"planitud_depresiones_aceptacion,omitempty"`
	AccionRealizar                string `json:"accion_realizar,omitempty"`
	Conformidad                   string `json:"conformidad,omitempty"`

	Longitud1MM      string `json:"longitud_1_mm,omitempty"`
	Longitud2MM      string `json:"longitud_2_mm,omitempty"`
	Longitud3MM      string `json:"longitud_3_mm,omitempty"`
	MasaMuestraAireG string `json:"masa_muestra_aire_g,omitempty"`
	Pesar            string `json:"pesar,omitempty"`

	// Legacy column names some stored records still carry. Folded into the
	// perpendicularidad_* fields on load and never written back.
	LegacyP1     *bool `json:"perpendicularidad_p1,omitempty"`
	LegacyP2     *bool `json:"perpendicularidad_p2,omitempty"`
	LegacyP3     *bool `json:"perpendicularidad_p3,omitempty"`
	LegacyP4     *bool `json:"perpendicularidad_p4,omitempty"`
	LegacyCumple *bool `json:"perpendicularidad_cumple,omitempty"`
}

// VerificacionMuestras is one verification record: header data plus the
// ordered list of specimen rows. Item numbers are 1-based, contiguous,
// and renumbered on every insert/delete.
type VerificacionMuestras struct {
	ID                 int64  `json:"id,omitempty"`
	NumeroVerificacion string `json:"numero_verificacion"`
	CodigoDocumento    string `json:"codigo_documento"`
	Version            string `json:"version"`
	FechaDocumento     string `json:"fecha_documento"`
	Pagina             string `json:"pagina"`
	VerificadoPor      string `json:"verificado_por,omitempty"`
	FechaVerificacion  string `json:"fecha_verificacion,omitempty"`
	Cliente            string `json:"cliente,omitempty"`
	EquipoBernier      string `json:"equipo_bernier,omitempty"`
	EquipoLainas1      string `json:"equipo_lainas_1,omitempty"`
	EquipoLainas2      string `json:"equipo_lainas_2,omitempty"`
	EquipoEscuadra     string `json:"equipo_escuadra,omitempty"`
	EquipoBalanza      string `json:"equipo_balanza,omitempty"`
	Nota               string `json:"nota,omitempty"`
	RecepcionID        int64  `json:"recepcion_id,omitempty"`
	NumeroOT           string `json:"numero_ot,omitempty"`

	Muestras []MuestraVerificada `json:"muestras_verificadas"`
}

// NewVerificacion returns the initial state of a fresh, unsaved record.
// Document dates are stamped in loc so a deployment serving a lab in
// another timezone does not drift around midnight.
func NewVerificacion(loc *time.Location) VerificacionMuestras {
	now := time.Now()
	if loc != nil {
		now = now.In(loc)
	}
	return VerificacionMuestras{
		NumeroVerificacion: "",
		CodigoDocumento:    "FOR-LAB-015",
		Version:            "01",
		FechaDocumento:     now.Format("02/01/2006"),
		Pagina:             "1 de 1",
		FechaVerificacion:  now.Format("2006-01-02"),
		EquipoBernier:      "-",
		EquipoLainas1:      "-",
		EquipoLainas2:      "-",
		EquipoEscuadra:     "-",
		EquipoBalanza:      "-",
		Muestras:           []MuestraVerificada{},
	}
}

// NewMuestra returns an empty specimen row with default choices.
func NewMuestra(itemNumero int) MuestraVerificada {
	return MuestraVerificada{
		ItemNumero:                    itemNumero,
		TipoTestigo:                   "-",
		PlanitudSuperiorAceptacion:    "-",
		PlanitudInferiorAceptacion:    "-",
		PlanitudDepresionesAceptacion: "-",
		AccionRealizar:                "-",
		Conformidad:                   "-",
	}
}

// FormatDateForInput converts DD/MM/YYYY into the ISO YYYY-MM-DD editing
// representation. Values already in ISO form pass through unchanged.
func FormatDateForInput(dateStr string) string {
	if dateStr == "" {
		return ""
	}
	if isISODate(dateStr) {
		return dateStr
	}
	parts := strings.Split(dateStr, "/")
	if len(parts) == 3 {
		return parts[2] + "-" + pad2(parts[1]) + "-" + pad2(parts[0])
	}
	return dateStr
}

// FormatDateForDB converts ISO YYYY-MM-DD into the DD/MM/YYYY persistence
// representation.
func FormatDateForDB(dateStr string) string {
	if dateStr == "" {
		return ""
	}
	parts := strings.Split(dateStr, "-")
	if len(parts) == 3 {
		return parts[2] + "/" + parts[1] + "/" + parts[0]
	}
	return dateStr
}

func isISODate(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i, c := range s {
		if i == 4 || i == 7 {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
