package models

import "time"

// School is the educational unit a student attends.
type School struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Department string    `db:"department" json:"department"`
	Province   string    `db:"province" json:"province"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
