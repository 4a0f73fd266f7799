package dto

import "github.com/noah-isme/olympiad-registration-api/internal/models"

// RegistrationRequest carries the selected areas of one student for one call.
type RegistrationRequest struct {
	StudentID string           `json:"student_id" validate:"required"`
	CallID    string           `json:"call_id" validate:"required"`
	AreaIDs   []string         `json:"area_ids" validate:"dive,required"`
	Kind      models.OrderKind `json:"kind" validate:"omitempty,oneof=individual group"`
}

// RejectedArea explains why a requested area was not selected.
type RejectedArea struct {
	AreaID  string `json:"area_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QuoteResponse previews a selection without persisting it.
type QuoteResponse struct {
	StudentID   string         `json:"student_id"`
	CallID      string         `json:"call_id"`
	Course      int            `json:"course"`
	CourseLabel string         `json:"course_label"`
	Selected    []models.Area  `json:"selected"`
	TotalCost   float64        `json:"total_cost"`
	MaxAreas    int            `json:"max_areas"`
	Rejected    []RejectedArea `json:"rejected,omitempty"`
	Open        bool           `json:"open"`
	Warning     string         `json:"warning,omitempty"`
	Existing    string         `json:"existing_registration_id,omitempty"`
}

// PaymentStatusRequest moves a registration through payment verification.
type PaymentStatusRequest struct {
	Status models.RegistrationStatus `json:"status" validate:"required,oneof=pending paid verified rejected"`
}
