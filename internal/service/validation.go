package service

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	ciPattern    = regexp.MustCompile(`^[0-9]{5,10}(-[0-9A-Za-z]{1,2})?$`)
	phonePattern = regexp.MustCompile(`^[67][0-9]{7}$`)
)

// NewValidator returns a validator with the domain tags registered:
// ci (national identity card, optional extension) and phone (mobile number).
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ci", func(fl validator.FieldLevel) bool {
		return ciPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}
