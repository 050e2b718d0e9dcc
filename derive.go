package main

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	toleranciaMaxPorcentaje = 2.0
	pesarRatioLimite        = 1.75
)

// parseMeasure parses a measurement field permissively: anything that is
// not a number counts as 0, matching how the form treats blank inputs.
func parseMeasure(val string) float64 {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0
	}
	return f
}

// CalculateDerived recomputes the derived fields of a specimen row from
// its raw measurements. All other fields pass through unchanged. It must
// be called after every mutation of a raw field so the derived values
// never go stale.
//
// Diameter tolerance: |d1-d2|/d1*100, rounded to 2 decimals; CUMPLE when
// the rounded value is <= 2.0. Weigh recommendation: PESAR when the
// length/diameter ratio is strictly below 1.75, so a ratio of exactly
// 1.75 reads NO PESAR.
func CalculateDerived(m MuestraVerificada) MuestraVerificada {
	d1 := parseMeasure(m.Diametro1MM)
	d2 := parseMeasure(m.Diametro2MM)

	if d1 > 0 && d2 > 0 {
		tol := math.Round(math.Abs(d1-d2)/d1*100*100) / 100
		m.ToleranciaPorcentaje = tol
		if tol <= toleranciaMaxPorcentaje {
			m.AceptacionDiametro = "CUMPLE"
		} else {
			m.AceptacionDiametro = "NO CUMPLE"
		}
	} else {
		m.ToleranciaPorcentaje = 0
		m.AceptacionDiametro = ""
	}

	l1 := parseMeasure(m.Longitud1MM)
	l2 := parseMeasure(m.Longitud2MM)
	l3 := parseMeasure(m.Longitud3MM)

	if d1 > 0 && d2 > 0 && l1 > 0 && l2 > 0 {
		avgD := (d1 + d2) / 2
		var sum float64
		var n int
		for _, l := range []float64{l1, l2, l3} {
			if l > 0 {
				sum += l
				n++
			}
		}
		if n > 0 {
			if sum/float64(n)/avgD < pesarRatioLimite {
				m.Pesar = "PESAR"
			} else {
				m.Pesar = "NO PESAR"
			}
		}
	} else {
		m.Pesar = ""
	}

	return m
}

// FormatLemCode normalizes a laboratory code to the canonical
// <digits>-CO-<YY> form using the current year in the lab's timezone.
// Runs on loss of focus, not per keystroke, and is idempotent.
func FormatLemCode(value string, loc *time.Location) string {
	now := time.Now()
	if loc != nil {
		now = now.In(loc)
	}
	return formatLemCodeYear(value, now.Format("06"))
}

func formatLemCodeYear(value, yy string) string {
	if value == "" {
		return ""
	}
	suffix := "-CO-" + yy
	clean := strings.ToUpper(strings.TrimSpace(value))

	if isAllDigits(clean) {
		return clean + suffix
	}
	if strings.HasSuffix(clean, "-CO") {
		return strings.TrimSuffix(clean, "-CO") + suffix
	}
	if strings.HasSuffix(clean, "-CO-") {
		return strings.TrimSuffix(clean, "-CO-") + suffix
	}
	if strings.HasSuffix(clean, suffix) {
		return clean
	}
	// Free-form codes keep whatever the technician typed.
	return clean
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
