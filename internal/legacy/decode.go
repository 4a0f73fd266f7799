// Package legacy decodes the browser-storage dump left by the former client into
// reconciliation input. Every field-name variant the old forms produced is handled
// here so the reconciler only sees canonical records.
package legacy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/olympiad-registration-api/internal/models"
	"github.com/noah-isme/olympiad-registration-api/internal/reconcile"
)

// Storage keys as written by the old client, first match wins.
var (
	registrationKeys = []string{"registrations", "inscripciones"}
	studentKeys      = []string{"students", "estudiantes"}
	callKeys         = []string{"convocatorias", "calls"}
	areaKeys         = []string{"areas"}
)

// Dump is the canonical view of a storage export.
type Dump struct {
	Registrations []reconcile.RawRegistration
	Legacy        []reconcile.LegacySelection
	Students      []models.Student
	Calls         []models.Call
	Areas         []models.Area
}

// Input builds reconciliation input. Non-empty lookups replace the dump's own calls/areas.
func (d *Dump) Input(calls []models.Call, areas []models.Area, defaultCallID string) reconcile.Input {
	if len(calls) == 0 {
		calls = d.Calls
	}
	if len(areas) == 0 {
		areas = d.Areas
	}
	return reconcile.Input{
		Registrations: d.Registrations,
		Legacy:        d.Legacy,
		Calls:         calls,
		Areas:         areas,
		DefaultCallID: defaultCallID,
	}
}

type object = map[string]interface{}

// Decode reads a storage dump: a JSON object whose values are either JSON or strings
// holding JSON, as browser key-value stores keep them.
func Decode(r io.Reader) (*Dump, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var root object
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode storage dump: %w", err)
	}

	dump := &Dump{}
	for _, item := range list(root, callKeys) {
		if m, ok := item.(object); ok {
			dump.Calls = append(dump.Calls, decodeCall(m))
		}
	}
	for _, item := range list(root, areaKeys) {
		if m, ok := item.(object); ok {
			dump.Areas = append(dump.Areas, decodeArea(m, ""))
		}
	}
	for _, item := range list(root, registrationKeys) {
		if m, ok := item.(object); ok {
			dump.Registrations = append(dump.Registrations, decodeRegistration(m))
		}
	}
	for _, item := range list(root, studentKeys) {
		m, ok := item.(object)
		if !ok {
			continue
		}
		student := decodeStudent(m)
		dump.Students = append(dump.Students, student)
		if sel, ok := decodeSelection(m, student.ID); ok {
			dump.Legacy = append(dump.Legacy, sel)
		}
	}
	return dump, nil
}

// list returns the array stored under the first present key, unwrapping string-encoded JSON.
func list(root object, keys []string) []interface{} {
	for _, key := range keys {
		v, ok := root[key]
		if !ok {
			continue
		}
		if s, isString := v.(string); isString {
			dec := json.NewDecoder(bytes.NewReader([]byte(s)))
			dec.UseNumber()
			var inner interface{}
			if err := dec.Decode(&inner); err != nil {
				return nil
			}
			v = inner
		}
		if arr, isArr := v.([]interface{}); isArr {
			return arr
		}
		return nil
	}
	return nil
}

func decodeCall(m object) models.Call {
	call := models.Call{
		ID:          str(m, "id", "id_convocatoria"),
		Name:        str(m, "nombre", "name"),
		Description: str(m, "descripcion", "description"),
		StartsAt:    timestamp(m, "fecha_inicio_inscripciones", "fecha_inicio", "starts_at"),
		EndsAt:      timestamp(m, "fecha_fin_inscripciones", "fecha_fin", "ends_at"),
		CostPerArea: number(m, "costo_por_area", "costoPorArea", "cost_per_area"),
		MaxAreas:    int(number(m, "maximo_areas", "max_areas", "maxAreas", "max_areas_por_estudiante")),
		Active:      flag(m, "activa", "active", "estado"),
	}
	if call.MaxAreas < 1 {
		call.MaxAreas = 1
	}
	if arr, ok := m["areas"].([]interface{}); ok {
		for _, item := range arr {
			if am, ok := item.(object); ok {
				call.Areas = append(call.Areas, decodeArea(am, call.ID))
			}
		}
	}
	return call
}

func decodeArea(m object, callID string) models.Area {
	area := models.Area{
		ID:          str(m, "id", "id_area"),
		CallID:      callID,
		Name:        str(m, "nombre", "name"),
		Description: str(m, "descripcion", "description"),
	}
	if area.CallID == "" {
		area.CallID = str(m, "convocatoria_id", "call_id")
	}
	if raw := str(m, "requisitos", "requirements", "rango_cursos"); raw != "" {
		if ranges, err := models.ParseCourseRanges(raw); err == nil {
			area.Requirements = ranges
		}
	}
	return area
}

func decodeRegistration(m object) reconcile.RawRegistration {
	raw := reconcile.RawRegistration{
		ID:        str(m, "id", "id_inscripcion"),
		StudentID: str(m, "estudiante_id", "student_id", "estudianteId", "studentId"),
		CallID:    str(m, "convocatoria_id", "call_id", "convocatoriaId", "callId"),
		Status:    status(str(m, "estado", "status")),
		Kind:      kind(str(m, "tipo", "kind", "tipo_orden")),
		TotalCost: number(m, "costo_total", "costoTotal", "total_cost"),
		CreatedAt: timestamp(m, "fecha_creacion", "fechaCreacion", "fecha_registro", "created_at", "createdAt"),
		UpdatedAt: timestamp(m, "fecha_actualizacion", "updated_at", "updatedAt"),
	}
	if raw.StudentID == "" {
		raw.StudentID = nestedID(m, "estudiante", "student")
	}
	if raw.CallID == "" {
		raw.CallID = nestedID(m, "convocatoria", "call")
	}
	raw.Areas = areaRefs(m, "areas", "areas_seleccionadas", "areasSeleccionadas")
	raw.PaymentOrder = paymentOrder(m)
	return raw
}

func decodeStudent(m object) models.Student {
	first := str(m, "nombre", "nombres", "name")
	last := str(m, "apellidos", "apellido", "last_name")
	student := models.Student{
		ID:       str(m, "id", "id_estudiante"),
		CI:       str(m, "ci", "carnet"),
		FullName: strings.TrimSpace(first + " " + last),
		Email:    str(m, "email", "correo"),
		Phone:    str(m, "telefono", "celular", "phone"),
		Course:   int(number(m, "curso", "course", "grado")),
		SchoolID: str(m, "colegio_id", "school_id"),
	}
	if student.SchoolID == "" {
		if s := str(m, "colegio"); s != "" {
			student.SchoolID = s
		} else {
			student.SchoolID = nestedID(m, "colegio", "school")
		}
	}
	if tutor := str(m, "tutor_id", "tutorId"); tutor != "" {
		student.TutorID = &tutor
	}
	return student
}

func decodeSelection(m object, studentID string) (reconcile.LegacySelection, bool) {
	refs := areaRefs(m, "areas", "areas_seleccionadas", "areasSeleccionadas")
	if len(refs) == 0 {
		return reconcile.LegacySelection{}, false
	}
	sel := reconcile.LegacySelection{
		StudentID:    studentID,
		CreatedAt:    timestamp(m, "fecha_inscripcion", "fecha_registro", "created_at"),
		PaymentOrder: paymentOrder(m),
	}
	for _, ref := range refs {
		sel.AreaIDs = append(sel.AreaIDs, ref.ID)
	}
	return sel, true
}

func paymentOrder(m object) *models.PaymentOrder {
	for _, key := range []string{"orden_pago", "ordenPago", "payment_order"} {
		om, ok := m[key].(object)
		if !ok {
			continue
		}
		return &models.PaymentOrder{
			ID:        str(om, "id", "codigo"),
			Amount:    number(om, "monto", "monto_total", "amount"),
			Status:    status(str(om, "estado", "status")),
			Kind:      kind(str(om, "tipo", "kind")),
			CreatedAt: timestamp(om, "fecha_creacion", "fecha_emision", "created_at"),
			ExpiresAt: timestamp(om, "fecha_expiracion", "fecha_vencimiento", "expires_at"),
		}
	}
	return nil
}

// areaRefs accepts ids, numbers and area objects under the first present key.
func areaRefs(m object, keys ...string) []reconcile.RawArea {
	for _, key := range keys {
		arr, ok := m[key].([]interface{})
		if !ok {
			continue
		}
		refs := make([]reconcile.RawArea, 0, len(arr))
		for _, item := range arr {
			switch v := item.(type) {
			case object:
				area := decodeArea(v, "")
				if area.ID != "" {
					refs = append(refs, reconcile.RawArea{ID: area.ID, CallID: area.CallID, Name: area.Name, Description: area.Description, Requirements: area.Requirements})
				}
			default:
				if id := scalar(v); id != "" {
					refs = append(refs, reconcile.RawArea{ID: id})
				}
			}
		}
		return refs
	}
	return nil
}

func nestedID(m object, keys ...string) string {
	for _, key := range keys {
		if nested, ok := m[key].(object); ok {
			if id := str(nested, "id"); id != "" {
				return id
			}
		}
	}
	return ""
}

func str(m object, keys ...string) string {
	for _, key := range keys {
		if s := scalar(m[key]); s != "" {
			return s
		}
	}
	return ""
}

func scalar(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func number(m object, keys ...string) float64 {
	for _, key := range keys {
		switch t := m[key].(type) {
		case json.Number:
			if f, err := t.Float64(); err == nil {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return f
			}
		case float64:
			return t
		}
	}
	return 0
}

func flag(m object, keys ...string) bool {
	for _, key := range keys {
		switch t := m[key].(type) {
		case bool:
			return t
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "1", "activa", "activo", "active", "abierta":
				return true
			}
			return false
		case json.Number:
			return t.String() != "0"
		}
	}
	return false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

func timestamp(m object, keys ...string) time.Time {
	for _, key := range keys {
		switch t := m[key].(type) {
		case json.Number:
			if ms, err := t.Int64(); err == nil && ms > 0 {
				return time.UnixMilli(ms).UTC()
			}
		case string:
			s := strings.TrimSpace(t)
			for _, layout := range timeLayouts {
				if ts, err := time.Parse(layout, s); err == nil {
					return ts.UTC()
				}
			}
		}
	}
	return time.Time{}
}

func status(s string) models.RegistrationStatus {
	switch strings.ToLower(s) {
	case "pending", "pendiente":
		return models.RegistrationStatusPending
	case "paid", "pagado", "pagada":
		return models.RegistrationStatusPaid
	case "verified", "verificado", "verificada", "validado":
		return models.RegistrationStatusVerified
	case "rejected", "rechazado", "rechazada":
		return models.RegistrationStatusRejected
	}
	return ""
}

func kind(s string) models.OrderKind {
	switch strings.ToLower(s) {
	case "group", "grupal", "grupo":
		return models.OrderKindGroup
	case "":
		return ""
	}
	return models.OrderKindIndividual
}
