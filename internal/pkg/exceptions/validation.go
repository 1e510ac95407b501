package exceptions

import (
	"discharge-export-service/internal/pkg/constvars"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FormatFirstValidationError renders the first failed field as a client message.
func FormatFirstValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return constvars.ErrClientCannotProcessRequest
	}

	first := validationErrors[0]
	message, ok := constvars.CustomValidationErrorMessages[first.Tag()]
	if !ok {
		return fmt.Sprintf("%s is invalid", first.Field())
	}
	if strings.Contains(message, "%s") {
		message = fmt.Sprintf(message, first.Param())
	}
	return fmt.Sprintf("%s %s", first.Field(), message)
}
