package dto

// CreateSchoolRequest registers a school.
type CreateSchoolRequest struct {
	Name       string `json:"name" validate:"required,max=160"`
	Department string `json:"department" validate:"required,max=80"`
	Province   string `json:"province" validate:"max=80"`
}
