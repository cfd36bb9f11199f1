package llmservice

import (
	"errors"
	"net/http"
	"strings"

	"document-qa/internal/models"

	goopenai "github.com/sashabaranov/go-openai"
)

var authHints = []string{
	"status code: 401",
	"status code 401",
	"401 unauthorized",
	"invalid_api_key",
	"incorrect api key",
	"invalid api key",
	"missing the openai api key",
	"no auth credentials",
	"authentication",
}

// Classify converts a provider failure into a *models.ProviderError. Errors that are already
// classified pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *models.ProviderError
	if errors.As(err, &pe) {
		return err
	}

	kind := models.ErrService
	msg := err.Error()

	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		msg = apiErr.Message
		if isAuthStatus(apiErr.HTTPStatusCode) {
			kind = models.ErrAuthentication
		}
	case errors.As(err, &reqErr):
		if isAuthStatus(reqErr.HTTPStatusCode) {
			kind = models.ErrAuthentication
		}
	default:
		lower := strings.ToLower(msg)
		for _, hint := range authHints {
			if strings.Contains(lower, hint) {
				kind = models.ErrAuthentication
				break
			}
		}
	}

	return &models.ProviderError{Kind: kind, Op: op, Message: msg, Err: err}
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
