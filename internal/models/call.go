package models

import "time"

// Call is a time-boxed registration campaign ("convocatoria").
type Call struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	StartsAt    time.Time `db:"starts_at" json:"starts_at"`
	EndsAt      time.Time `db:"ends_at" json:"ends_at"`
	CostPerArea float64   `db:"cost_per_area" json:"cost_per_area"`
	MaxAreas    int       `db:"max_areas" json:"max_areas"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
	Areas       []Area    `db:"-" json:"areas"`
}

// Open reports whether registrations are accepted at now.
func (c Call) Open(now time.Time) bool {
	return c.Active && !now.Before(c.StartsAt) && !now.After(c.EndsAt)
}

// FindArea returns the area with the given id, if the call offers it.
func (c Call) FindArea(id string) (Area, bool) {
	for _, a := range c.Areas {
		if a.ID == id {
			return a, true
		}
	}
	return Area{}, false
}

// CallFilter defines filters supported by list endpoints.
type CallFilter struct {
	Active   *bool
	Page     int
	PageSize int
}
