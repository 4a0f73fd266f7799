package reconcile

import (
	"time"

	"github.com/noah-isme/olympiad-registration-api/internal/models"
)

// RawArea is an area reference as persisted: sometimes a bare id, sometimes a full object.
type RawArea struct {
	ID           string              `json:"id"`
	CallID       string              `json:"call_id,omitempty"`
	Name         string              `json:"name,omitempty"`
	Description  string              `json:"description,omitempty"`
	Requirements models.CourseRanges `json:"requirements,omitempty"`
}

// Complete reports whether the reference embeds a usable area object.
func (a RawArea) Complete() bool {
	return a.Name != "" && a.Description != ""
}

// RawRegistration is a persisted registration before validation. Only ids are guaranteed.
type RawRegistration struct {
	ID           string                    `json:"id"`
	StudentID    string                    `json:"student_id"`
	CallID       string                    `json:"call_id"`
	Areas        []RawArea                 `json:"areas"`
	Status       models.RegistrationStatus `json:"status,omitempty"`
	Kind         models.OrderKind          `json:"kind,omitempty"`
	TotalCost    float64                   `json:"total_cost,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
	PaymentOrder *models.PaymentOrder      `json:"payment_order,omitempty"`
}

// LegacySelection is a flat list of area ids kept on a student, predating registration records.
type LegacySelection struct {
	StudentID    string               `json:"student_id"`
	AreaIDs      []string             `json:"area_ids"`
	CreatedAt    time.Time            `json:"created_at"`
	PaymentOrder *models.PaymentOrder `json:"payment_order,omitempty"`
}

// Input is everything a reconciliation pass needs. Calls and Areas are lookup tables.
type Input struct {
	Registrations []RawRegistration
	Legacy        []LegacySelection
	Calls         []models.Call
	Areas         []models.Area
	DefaultCallID string
}

// Action names a repair or drop applied to a record.
type Action string

// Actions reported by a pass.
const (
	ActionDropped          Action = "dropped"
	ActionMerged           Action = "merged"
	ActionAreaResolved     Action = "area_resolved"
	ActionAreaPlaceholder  Action = "area_placeholder"
	ActionAreaDuplicate    Action = "area_duplicate"
	ActionCostRecomputed   Action = "cost_recomputed"
	ActionOrderSynthesized Action = "order_synthesized"
	ActionOrderAmountSync  Action = "order_amount_synced"
	ActionMigrated         Action = "migrated"
	ActionLegacySkipped    Action = "legacy_skipped"
	ActionOverLimit        Action = "over_limit"
)

// Issue records what happened to a single record.
type Issue struct {
	RecordID  string `json:"record_id,omitempty"`
	StudentID string `json:"student_id,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Action    Action `json:"action"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail"`
}

// Report aggregates the diagnostics of one pass.
type Report struct {
	Input             int     `json:"input"`
	Output            int     `json:"output"`
	Dropped           int     `json:"dropped"`
	Merged            int     `json:"merged"`
	ResolvedAreas     int     `json:"resolved_areas"`
	PlaceholderAreas  int     `json:"placeholder_areas"`
	RecomputedCosts   int     `json:"recomputed_costs"`
	SynthesizedOrders int     `json:"synthesized_orders"`
	Migrated          int     `json:"migrated"`
	Issues            []Issue `json:"issues"`
}

// Counts returns the per-action totals, useful for metrics.
func (r Report) Counts() map[Action]int {
	counts := make(map[Action]int)
	for _, issue := range r.Issues {
		counts[issue.Action]++
	}
	return counts
}

// Result is the reconciled registration list plus diagnostics.
type Result struct {
	Registrations []models.Registration `json:"registrations"`
	Report        Report                `json:"report"`
}
