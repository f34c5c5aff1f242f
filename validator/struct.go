package validator

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	_ = validate.RegisterValidation("httpurl", isHTTPURL)
}

// errorMessages maps validation tags to custom error messages.
var errorMessages = map[string]string{
	"required": "The field '%s' is required.",
	"email":    "The field '%s' must be a valid email address.",
	"url":      "The field '%s' must be a valid URL.",
	"httpurl":  "The field '%s' must be an absolute http(s) URL.",
	"min":      "The field '%s' must contain at least %s.",
	"max":      "The field '%s' must contain no more than %s.",
	"lte":      "The field '%s' must be less than or equal to %s.",
	"gte":      "The field '%s' must be greater than or equal to %s.",
	"gt":       "The field '%s' must be greater than %s.",
	"lt":       "The field '%s' must be less than %s.",
	"oneof":    "The field '%s' must be one of [%s].",
}

// isHTTPURL accepts absolute http and https URLs with a host.
func isHTTPURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// fieldPath strips the root struct name from a namespace,
// e.g. "SubmitBatchBody.items[0].source_url" -> "items[0].source_url".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// parseMessage constructs a friendly error message based on the validation tag.
func parseMessage(field string, e validator.FieldError) string {
	if msg, ok := errorMessages[e.Tag()]; ok {
		switch strings.Count(msg, "%s") {
		case 1:
			return fmt.Sprintf(msg, field)
		case 2:
			return fmt.Sprintf(msg, field, e.Param())
		}
	}
	return fmt.Sprintf("Field '%s' is invalid: %s", field, e.Tag())
}

// ValidateStruct validates a struct and returns a map of JSON field paths to friendly error messages.
func ValidateStruct(s any) map[string]string {
	validationErrors := make(map[string]string)

	err := validate.Struct(s)
	if err == nil {
		return validationErrors
	}
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			field := fieldPath(e.Namespace())
			validationErrors[field] = parseMessage(field, e)
		}
		return validationErrors
	}
	validationErrors["_"] = err.Error()
	return validationErrors
}

// Struct validates s and folds any failures into a single error, sorted by field.
func Struct(s any) error {
	errs := ValidateStruct(s)
	if len(errs) == 0 {
		return nil
	}
	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, errs[f])
	}
	return errors.New(strings.Join(msgs, " "))
}

// Var validates a single value against tag.
func Var(v any, tag string) error {
	return validate.Var(v, tag)
}
