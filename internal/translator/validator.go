package translator

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks the struct tags on the request and its messages and folds
// every violation into one ErrInvalidRequest.
func Validate(req domain.ChatRequest) error {
	err := getValidator().Struct(req)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		messages = append(messages, describe(fieldErr))
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, strings.Join(messages, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "ChatRequest.")
	field = strings.ReplaceAll(field, "Messages", "messages")
	field = strings.ReplaceAll(field, ".Role", ".role")

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s item(s)", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed on the '%s' tag", field, fe.Tag())
	}
}
