package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Wrapping(t *testing.T) {
	cause := errors.New("insert failed")
	err := fmt.Errorf("accept: %w", DomainCreateFailed(cause))

	assert.True(t, IsAppError(err))
	assert.True(t, HasCode(err, CodeDomainCreateFailed))
	assert.False(t, HasCode(err, CodeAssociationFailed))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(err))
	assert.Contains(t, err.Error(), "[DOMAIN_CREATE_FAILED]")
}

func TestAppError_Constructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"stale", SuggestionStale(5), CodeSuggestionStale, http.StatusConflict},
		{"not found", SuggestionNotFound(5), CodeSuggestionNotFound, http.StatusNotFound},
		{"lookup", LookupFailed("exact", errors.New("x")), CodeLookupFailed, http.StatusBadGateway},
		{"invalid", InvalidInput("contactId", "must be positive"), CodeInvalidInput, http.StatusBadRequest},
		{"unavailable", Unavailable("decision log"), CodeUnavailable, http.StatusServiceUnavailable},
		{"timeout", Timeout("compute"), CodeTimeout, http.StatusGatewayTimeout},
		{"rate limited", RateLimited(3), CodeRateLimited, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
		})
	}

	assert.Equal(t, 3, RateLimited(3).Details["retry_after"])
	assert.Equal(t, "contactId", InvalidInput("contactId", "bad").Details["field"])
}

func TestAsAppError(t *testing.T) {
	plain := errors.New("plain")
	wrapped := AsAppError(plain)
	assert.Equal(t, CodeInternalError, wrapped.Code)
	assert.ErrorIs(t, wrapped, plain)

	conflict := Conflict("x")
	assert.Same(t, conflict, AsAppError(conflict))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(plain))
}
