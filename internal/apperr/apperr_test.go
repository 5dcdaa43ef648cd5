package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("confirming entity: %w", NotFound("entity", "e-1"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeValidation, CodeOf(Validation("bad")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeAPI, CodeOf(fmt.Errorf("x: %w", Wrap(CodeAPI, errors.New("503"), "model call failed"))))
}

func TestPublicMessage_HidesInternalErrors(t *testing.T) {
	assert.Equal(t, "internal error", PublicMessage(errors.New("sql: database is locked")))
	assert.Equal(t, "entity e-1 not found", PublicMessage(NotFound("entity", "e-1")))
	assert.Equal(t, "not allowed", PublicMessage(ErrUnauthorized))
	assert.Equal(t, "model call failed", PublicMessage(Wrap(CodeAPI, errors.New("503 from upstream"), "model call failed")))
	assert.Equal(t, "", PublicMessage(nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeUnauthenticated: http.StatusUnauthorized,
		CodeUnauthorized:    http.StatusForbidden,
		CodeNotFound:        http.StatusNotFound,
		CodeValidation:      http.StatusBadRequest,
		CodeConflict:        http.StatusConflict,
		CodeRateLimited:     http.StatusTooManyRequests,
		CodeAPI:             http.StatusBadGateway,
		CodeInternal:        http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), "code %s", code)
	}
}
