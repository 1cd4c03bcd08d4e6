package shared

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RequestValidator checks `validate` struct tags and reports failures as
// invalid_request errors keyed by JSON field name.
type RequestValidator struct{}

func (RequestValidator) Validate(i any) error {
	err := validate.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return BadRequest("invalid_request", "invalid request body")
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}
	return NewAPIError("invalid_request", "request failed validation").
		WithDetails(details).
		ToHTTP(http.StatusBadRequest)
}

// BindAndValidate decodes the request body into v and validates it. It does
// not depend on e.Validator being set so handlers behave the same in tests.
func BindAndValidate(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return BadRequest("invalid_request", "invalid request body")
	}
	return RequestValidator{}.Validate(v)
}
