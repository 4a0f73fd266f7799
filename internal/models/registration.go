package models

import "time"

// RegistrationStatus tracks payment verification of a registration.
type RegistrationStatus string

// Possible registration statuses.
const (
	RegistrationStatusPending  RegistrationStatus = "pending"
	RegistrationStatusPaid     RegistrationStatus = "paid"
	RegistrationStatusVerified RegistrationStatus = "verified"
	RegistrationStatusRejected RegistrationStatus = "rejected"
)

// Finalized reports whether the status blocks further edits.
func (s RegistrationStatus) Finalized() bool {
	return s == RegistrationStatusPaid || s == RegistrationStatusVerified
}

// Valid reports whether s is a known status.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case RegistrationStatusPending, RegistrationStatusPaid, RegistrationStatusVerified, RegistrationStatusRejected:
		return true
	}
	return false
}

// OrderKind selects the payment order validity window.
type OrderKind string

// Order kinds.
const (
	OrderKindIndividual OrderKind = "individual"
	OrderKindGroup      OrderKind = "group"
)

// PaymentOrder is the amount due for one registration.
type PaymentOrder struct {
	ID             string             `db:"id" json:"id"`
	RegistrationID string             `db:"registration_id" json:"registration_id"`
	Amount         float64            `db:"amount" json:"amount"`
	Status         RegistrationStatus `db:"status" json:"status"`
	Kind           OrderKind          `db:"kind" json:"kind"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	ExpiresAt      time.Time          `db:"expires_at" json:"expires_at"`
}

// Registration is a student's area selection for one call.
type Registration struct {
	ID           string             `db:"id" json:"id"`
	StudentID    string             `db:"student_id" json:"student_id"`
	CallID       string             `db:"call_id" json:"call_id"`
	Status       RegistrationStatus `db:"status" json:"status"`
	Kind         OrderKind          `db:"kind" json:"kind"`
	TotalCost    float64            `db:"total_cost" json:"total_cost"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at" json:"updated_at"`
	Areas        []Area             `db:"-" json:"areas"`
	PaymentOrder PaymentOrder       `db:"-" json:"payment_order"`
}

// AreaIDs returns the ids of the selected areas in order.
func (r Registration) AreaIDs() []string {
	ids := make([]string, len(r.Areas))
	for i, a := range r.Areas {
		ids[i] = a.ID
	}
	return ids
}
