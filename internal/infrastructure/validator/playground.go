package validator

import (
	"fmt"
	"reflect"
	"strings"

	playground "github.com/go-playground/validator/v10"
)

type playgroundValidator struct {
	driver *playground.Validate
}

var _ Validator = (*playgroundValidator)(nil)

// NewPlayground builds a Validator using go-playground/validator with
// struct tag names (falling back to the field name) for error reporting.
func NewPlayground() Validator {
	driver := playground.New()
	driver.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &playgroundValidator{driver: driver}
}

func (v *playgroundValidator) Validate(i any) error {
	return v.driver.Struct(i)
}

func (v *playgroundValidator) ToDetails(err error) []FieldError {
	ve, ok := err.(playground.ValidationErrors)
	if !ok {
		return nil
	}

	details := make([]FieldError, 0, len(ve))
	for _, fe := range ve {
		details = append(details, FieldError{
			Field:   fe.Field(),
			Code:    fe.Tag(),
			Message: translateTag(fe),
		})
	}
	return details
}

func translateTag(fe playground.FieldError) string {
	field := fe.Field()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, param)
	case "max":
		return fmt.Sprintf("%s must not be greater than %s characters", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, param)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
