package domain

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("folder_color", func(fl validator.FieldLevel) bool {
			return IsValidFolderColor(fl.Field().String())
		})
	})
	return validate
}

// Validate checks an input or patch struct against its validate tags.
// Failures are returned as validator.ValidationErrors.
func Validate(v any) error {
	return validatorInstance().Struct(v)
}
