package helper

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"document-qa/internal/models"
)

// UserMessage turns any error into the sentence shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var pe *models.ProviderError
	hasProvider := errors.As(err, &pe)
	detail := err.Error()
	if hasProvider && pe.Message != "" {
		detail = pe.Message
	}

	switch {
	case errors.Is(err, models.ErrEmptyInput):
		marker := models.ErrEmptyInput.Error() + ": "
		if i := strings.Index(detail, marker); i >= 0 {
			return upperFirst(detail[i+len(marker):])
		}
		return upperFirst(detail)
	case errors.Is(err, models.ErrAuthentication):
		return "Authentication failed: " + detail + ". Check your API key."
	case errors.Is(err, models.ErrService):
		return "The AI service returned an error: " + detail
	default:
		return "Error: " + detail
	}
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
