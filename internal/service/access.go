package service

import (
	"github.com/noah-isme/olympiad-registration-api/internal/models"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
)

// authorizeStudent checks that actor may act on behalf of student. A nil actor is an
// internal caller and is always allowed.
func authorizeStudent(actor *models.JWTClaims, student *models.Student) error {
	if actor == nil {
		return nil
	}
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTutor:
		if student.TutorID != nil && *student.TutorID == actor.UserID {
			return nil
		}
	case models.RoleStudent:
		if actor.StudentID != "" && actor.StudentID == student.ID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to act for this student")
}
