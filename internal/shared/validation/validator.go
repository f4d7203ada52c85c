package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Struct valida um DTO usando as tags `validate`
func Struct(s any) error {
	return get().Struct(s)
}

// Format converte erros de validação em mensagens por campo, sem vazar nomes internos de struct
func Format(err error) map[string]string {
	if err == nil {
		return nil
	}

	out := make(map[string]string)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["error"] = "invalid request format"
		return out
	}

	for _, e := range verrs {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			out[field] = "this field is required"
		case "oneof":
			out[field] = fmt.Sprintf("must be one of: %s", e.Param())
		case "gt":
			out[field] = fmt.Sprintf("must be greater than %s", e.Param())
		case "min":
			out[field] = fmt.Sprintf("must be at least %s", e.Param())
		case "max":
			out[field] = fmt.Sprintf("must be at most %s", e.Param())
		case "len":
			out[field] = fmt.Sprintf("must have exactly %s items", e.Param())
		case "ne":
			out[field] = fmt.Sprintf("must not be %s", e.Param())
		default:
			out[field] = "invalid value"
		}
	}
	return out
}
