package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type intakeProbe struct {
	Email       string `validate:"required,email"`
	ApplicantID string `validate:"required,uuid"`
	Household   int    `validate:"min=1"`
}

func TestInvalidFlattensFieldErrors(t *testing.T) {
	err := validator.New().Struct(intakeProbe{Email: "nope"})
	require.Error(t, err)

	out := Invalid(err, "invalid intake payload")
	assert.Equal(t, http.StatusBadRequest, out.Status)
	assert.Equal(t, ErrValidation.Code, out.Code)
	assert.Equal(t, map[string]string{
		"email":        "must be a valid email",
		"applicant_id": "is required",
		"household":    "must be at least 1",
	}, out.Details)
}

func TestInvalidWithoutFieldErrors(t *testing.T) {
	out := Invalid(errors.New("unexpected EOF"), "invalid payload")
	assert.Nil(t, out.Details)
	assert.Equal(t, "invalid payload: unexpected EOF", out.Error())
}

func TestIsMatchesByCode(t *testing.T) {
	cloned := Clone(ErrNotFound, "applicant not found")
	assert.ErrorIs(t, cloned, ErrNotFound)
	assert.ErrorIs(t, fmt.Errorf("lookup: %w", cloned), ErrNotFound)
	assert.NotErrorIs(t, cloned, ErrConflict)
	assert.Equal(t, "resource not found", ErrNotFound.Message)
}

func TestFromErrorHidesUnknownErrors(t *testing.T) {
	out := FromError(errors.New("pq: connection reset"))
	assert.Equal(t, http.StatusInternalServerError, out.Status)
	assert.Equal(t, ErrInternal.Message, out.Message)
	assert.Nil(t, FromError(nil))

	wrapped := FromError(fmt.Errorf("outer: %w", ErrOpportunityFull))
	assert.Equal(t, ErrOpportunityFull.Code, wrapped.Code)
}
