package httpapi

import (
	"github.com/go-playground/validator/v10"

	"github.com/shortlyhq/shortly/internal/apierr"
)

var validate = validator.New()

// validateStruct runs struct-tag validation, translating any failure into
// a BadRequest so handlers never need to inspect validator internals.
func validateStruct(dst interface{}) error {
	if err := validate.Struct(dst); err != nil {
		return apierr.BadRequestf("validation failed: %s", err.Error())
	}
	return nil
}
