package dto

import "github.com/noah-isme/olympiad-registration-api/internal/models"

// RegistrationExportQuery narrows a registration export.
type RegistrationExportQuery struct {
	CallID    string                    `form:"call_id"`
	Status    models.RegistrationStatus `form:"status" validate:"omitempty,oneof=pending paid verified rejected"`
	Semicolon bool                      `form:"semicolon"`
}
