package models

import "time"

// Student represents a participant registered by an administrator, a tutor or themselves.
type Student struct {
	ID        string    `db:"id" json:"id"`
	CI        string    `db:"ci" json:"ci"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	Course    int       `db:"course" json:"course"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	TutorID   *string   `db:"tutor_id" json:"tutor_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search   string
	TutorID  string
	SchoolID string
	Course   int
	Page     int
	PageSize int
}
