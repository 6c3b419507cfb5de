package middleware

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs validator tags on a request struct before any
// persistence call happens.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}
