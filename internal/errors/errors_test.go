package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvishnuk/poll-server/internal/domain"
)

func TestValidationError(t *testing.T) {
	err := ValidationError("invalid input")

	assert.Equal(t, TypeValidation, err.Type)
	assert.Equal(t, "invalid input", err.Message)
	assert.Nil(t, err.Cause)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
	assert.Contains(t, err.Error(), "validation")
	assert.Contains(t, err.Error(), "invalid input")
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("poll not found")

	assert.Equal(t, TypeNotFound, err.Type)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus())
	assert.Contains(t, err.Error(), "not_found")
}

func TestConflictError(t *testing.T) {
	err := ConflictError("poll is closed")

	assert.Equal(t, TypeConflict, err.Type)
	assert.Equal(t, http.StatusConflict, err.HTTPStatus())
	assert.Contains(t, err.Error(), "conflict")
}

func TestUnavailableError(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := UnavailableError("backing store unavailable", cause)

	assert.Equal(t, TypeUnavailable, err.Type)
	assert.Equal(t, cause, err.Cause)
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus())
	assert.Contains(t, err.Error(), "connection refused")
}

func TestInternalError(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := InternalError("failed to save poll", cause)

	assert.Equal(t, TypeInternal, err.Type)
	assert.Equal(t, cause, err.Cause)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
	assert.Contains(t, err.Error(), "failed to save poll")
	assert.Contains(t, err.Error(), "boom")
}

func TestInternalErrorWithoutCause(t *testing.T) {
	err := InternalError("something went wrong", nil)

	assert.Nil(t, err.Cause)
	assert.NotContains(t, err.Error(), "<nil>")
}

func TestWithContextChaining(t *testing.T) {
	err := ValidationError("invalid input").
		WithContext("poll_id", "123").
		WithContext("option", "gopher")

	assert.Len(t, err.Context, 2)
	assert.Equal(t, "123", err.Context["poll_id"])
	assert.Equal(t, "gopher", err.Context["option"])
}

func TestWithContextNilMap(t *testing.T) {
	err := &Error{
		Type:    TypeValidation,
		Message: "test",
		Context: nil,
	}

	err = err.WithContext("key", "value")

	assert.NotNil(t, err.Context)
	assert.Equal(t, "value", err.Context["key"])
}

func TestToResponse(t *testing.T) {
	err := NotFoundError("poll not found")

	resp := err.ToResponse()

	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "poll not found", resp.Message)
	assert.Equal(t, TypeNotFound, resp.Type)
	assert.Nil(t, resp.Data)
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := InternalError("wrapped", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestErrorsIs(t *testing.T) {
	rootCause := fmt.Errorf("root")
	wrapped := InternalError("wrapped", rootCause)

	assert.True(t, errors.Is(wrapped, rootCause))
}

func TestErrorsAs(t *testing.T) {
	err := ValidationError("test")

	var target *Error
	require.True(t, errors.As(err, &target))
	assert.Equal(t, TypeValidation, target.Type)
}

func TestFromDomain(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   ErrorType
		wantStatus int
	}{
		{"poll not found", domain.ErrPollNotFound, TypeNotFound, http.StatusNotFound},
		{"poll closed", domain.ErrPollClosed, TypeConflict, http.StatusConflict},
		{"option not found", domain.ErrOptionNotFound, TypeValidation, http.StatusBadRequest},
		{"invalid poll", domain.ErrInvalidPoll, TypeValidation, http.StatusBadRequest},
		{"backend unavailable", domain.ErrBackendUnavailable, TypeUnavailable, http.StatusServiceUnavailable},
		{"unknown error", fmt.Errorf("boom"), TypeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FromDomain(tt.err)

			require.NotNil(t, result)
			assert.Equal(t, tt.wantType, result.Type)
			assert.Equal(t, tt.wantStatus, result.HTTPStatus())
		})
	}
}

func TestFromDomain_WrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("cast vote: %w", domain.ErrPollClosed)

	result := FromDomain(wrapped)

	require.NotNil(t, result)
	assert.Equal(t, TypeConflict, result.Type)
}

func TestFromDomain_Nil(t *testing.T) {
	assert.Nil(t, FromDomain(nil))
}

func TestAsStructuredErrorWithStructuredError(t *testing.T) {
	original := ValidationError("original")
	result := AsStructuredError(original)

	assert.Equal(t, original, result)
}

func TestAsStructuredErrorWithStandardError(t *testing.T) {
	original := fmt.Errorf("standard error")
	result := AsStructuredError(original)

	require.NotNil(t, result)
	assert.Equal(t, TypeInternal, result.Type)
	assert.Equal(t, "internal server error", result.Message)
	assert.Equal(t, original, result.Cause)
}

func TestAsStructuredErrorWithNil(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))
}

func TestHTTPStatusAllTypes(t *testing.T) {
	tests := []struct {
		name       string
		errorType  ErrorType
		wantStatus int
	}{
		{"validation", TypeValidation, http.StatusBadRequest},
		{"not_found", TypeNotFound, http.StatusNotFound},
		{"conflict", TypeConflict, http.StatusConflict},
		{"unavailable", TypeUnavailable, http.StatusServiceUnavailable},
		{"internal", TypeInternal, http.StatusInternalServerError},
		{"unknown", ErrorType("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &Error{Type: tt.errorType}
			assert.Equal(t, tt.wantStatus, err.HTTPStatus())
		})
	}
}
