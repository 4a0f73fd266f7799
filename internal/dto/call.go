package dto

import "time"

// AreaRequest describes one area of a call. Requirements uses the "4,7-12" range syntax.
type AreaRequest struct {
	ID           string `json:"id" validate:"omitempty,max=64"`
	Name         string `json:"name" validate:"required,max=120"`
	Description  string `json:"description" validate:"required,max=500"`
	Requirements string `json:"requirements" validate:"omitempty,max=64"`
}

// CallRequest is the payload to create or update a call for registration.
type CallRequest struct {
	Name        string        `json:"name" validate:"required,max=160"`
	Description string        `json:"description" validate:"max=2000"`
	StartsAt    time.Time     `json:"starts_at" validate:"required"`
	EndsAt      time.Time     `json:"ends_at" validate:"required,gtfield=StartsAt"`
	CostPerArea float64       `json:"cost_per_area" validate:"gte=0"`
	MaxAreas    int           `json:"max_areas" validate:"required,min=1,max=20"`
	Active      bool          `json:"active"`
	Areas       []AreaRequest `json:"areas" validate:"omitempty,dive"`
}

// ReplaceAreasRequest swaps the full area list of a call.
type ReplaceAreasRequest struct {
	Areas []AreaRequest `json:"areas" validate:"required,dive"`
}

// EligibleArea is an area annotated for a given course.
type EligibleArea struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Courses     string `json:"courses"`
	Eligible    bool   `json:"eligible"`
}

// EligibleAreasResponse lists a call's areas for one course.
type EligibleAreasResponse struct {
	CallID      string         `json:"call_id"`
	Course      int            `json:"course"`
	CourseLabel string         `json:"course_label"`
	MaxAreas    int            `json:"max_areas"`
	CostPerArea float64        `json:"cost_per_area"`
	Areas       []EligibleArea `json:"areas"`
}
