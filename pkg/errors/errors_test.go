package errors

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitedCarriesRetryAfter(t *testing.T) {
	err := RateLimited("too many requests", 42)
	assert.Equal(t, http.StatusTooManyRequests, err.HTTPStatus)
	assert.Equal(t, 42, err.Details["retry_after"])
}

func TestUnprocessableMapsTo422(t *testing.T) {
	err := Unprocessable("could not parse line")
	assert.Equal(t, http.StatusUnprocessableEntity, err.HTTPStatus)
	assert.Equal(t, CodeUnprocessable, err.Code)
}

func TestToResponseShape(t *testing.T) {
	err := Validation("source is required").WithDetail("field", "source")
	resp := err.ToResponse()
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeValidation, resp.Error)
	assert.Equal(t, "source is required", resp.Message)
	assert.Equal(t, "source", resp.Details["field"])
}

func TestIsAndGetHTTPStatus(t *testing.T) {
	err := Unauthorized("invalid credentials")
	assert.True(t, Is(err, CodeUnauthorized))
	assert.False(t, Is(err, CodeForbidden))
	assert.Equal(t, http.StatusUnauthorized, GetHTTPStatus(err))
}
