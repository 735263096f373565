package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pauljones0/dealboard/internal/models"
)

// Validator is a wrapper around the validator library.
type Validator struct {
	validate *validator.Validate
}

// New creates a new Validator instance.
func New() *Validator {
	validate := validator.New()
	// Report fields by their JSON names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{
		validate: validate,
	}
}

// ValidateStruct validates a struct based on its tags.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateDeal checks a normalized deal before it is stored. Failures wrap
// models.ErrMissingRequiredField for absent values and
// models.ErrInvalidNumeric for out-of-range numbers.
func (v *Validator) ValidateDeal(d models.Deal) error {
	err := v.validate.Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validation failed: %w", err)
	}

	var missing, invalid []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			missing = append(missing, fe.Field())
		default:
			invalid = append(invalid, fmt.Sprintf("%s %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", models.ErrMissingRequiredField, strings.Join(missing, ", "))
	}
	return fmt.Errorf("%w: %s", models.ErrInvalidNumeric, strings.Join(invalid, ", "))
}
