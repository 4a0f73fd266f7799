package dto

// CreateStudentRequest registers a student. TutorID is taken from the caller when a tutor creates it.
type CreateStudentRequest struct {
	CI       string `json:"ci" validate:"required,ci"`
	FullName string `json:"full_name" validate:"required,min=3,max=160"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
	Course   int    `json:"course" validate:"required,min=1,max=12"`
	SchoolID string `json:"school_id" validate:"required"`
	TutorID  string `json:"tutor_id" validate:"omitempty"`
}

// StudentQuery binds list filters from the query string.
type StudentQuery struct {
	Search   string `form:"search"`
	SchoolID string `form:"school_id"`
	Course   int    `form:"course"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
