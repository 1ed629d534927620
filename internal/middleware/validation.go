package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

var productIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonFieldName)
	if err := validate.RegisterValidation("productid", validateProductID); err != nil {
		panic(err)
	}
}

// jsonFieldName reports fields by their JSON name so messages match the request body.
func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

func validateProductID(fl validator.FieldLevel) bool {
	return productIDPattern.MatchString(fl.Field().String())
}

// ValidateRequest validates the request body against a struct with validation tags
func ValidateRequest(v interface{}) error {
	return validate.Struct(v)
}

// DecodeAndValidate decodes JSON request body and validates it
func DecodeAndValidate(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &DecodeError{Err: err}
	}
	return ValidateRequest(v)
}

// DecodeError is returned by DecodeAndValidate when the body is not valid JSON
// for the target struct.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode request body: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Field returns the JSON field whose value had the wrong type, if any.
func (e *DecodeError) Field() string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(e.Err, &typeErr) {
		return typeErr.Field
	}
	return ""
}

// Message is a client-facing description of the decode failure.
func (e *DecodeError) Message() string {
	if errors.Is(e.Err, io.EOF) {
		return "Request body is required"
	}
	if field := e.Field(); field != "" {
		return fmt.Sprintf("Invalid value for %s", field)
	}
	return "Invalid request body"
}

// ValidationError represents a field validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FormatValidationErrors converts validator errors to a readable format
func FormatValidationErrors(err error) []ValidationError {
	var errors []ValidationError

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			errors = append(errors, ValidationError{
				Field:   e.Field(),
				Message: getErrorMessage(e),
			})
		}
	}

	return errors
}

func getErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "productid":
		return "Invalid product ID"
	case "min":
		return e.Field() + " is too short"
	case "max":
		return e.Field() + " is too long"
	case "gte":
		return e.Field() + " must be greater than or equal to " + e.Param()
	case "lte":
		return e.Field() + " must be less than or equal to " + e.Param()
	default:
		return "Invalid " + e.Field()
	}
}
