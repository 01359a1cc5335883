package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/service"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

type fakeIntake struct {
	raw    []byte
	result *service.IntakeResult
	err    error
}

func (f *fakeIntake) Submit(_ context.Context, raw []byte) (*service.IntakeResult, error) {
	f.raw = raw
	return f.result, f.err
}

func intakeResult(created bool) *service.IntakeResult {
	return &service.IntakeResult{
		Applicant: &models.Applicant{ID: "a-1", Points: 29, WaitlistPosition: 971},
		Portal:    &models.PortalToken{AccessToken: "tok", ApplicantID: "a-1"},
		Created:   created,
	}
}

func TestIntakeHandlerCreated(t *testing.T) {
	intake := &fakeIntake{result: intakeResult(true)}
	handler := NewIntakeHandler(intake)

	body := []byte(`{"id":"a-1","email":"sam@example.com"}`)
	c, rec := newTestContext(http.MethodPost, "/intake", body)
	handler.Submit(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, body, intake.raw)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	applicant := envelope.Data["applicant"].(map[string]interface{})
	assert.EqualValues(t, 971, applicant["waitlist_position"])
	assert.NotContains(t, envelope.Data, "Created")
}

func TestIntakeHandlerResubmissionReturnsOK(t *testing.T) {
	handler := NewIntakeHandler(&fakeIntake{result: intakeResult(false)})

	c, rec := newTestContext(http.MethodPost, "/intake", []byte(`{}`))
	handler.Submit(c)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIntakeHandlerMapsServiceErrors(t *testing.T) {
	handler := NewIntakeHandler(&fakeIntake{err: appErrors.Clone(appErrors.ErrNotEligible, "too young")})

	c, rec := newTestContext(http.MethodPost, "/intake", []byte(`{}`))
	handler.Submit(c)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "NOT_ELIGIBLE", envelope.Error.Code)
}

func TestIntakeHandlerRejectsOversizedBody(t *testing.T) {
	intake := &fakeIntake{result: intakeResult(true)}
	handler := NewIntakeHandler(intake)

	c, rec := newTestContext(http.MethodPost, "/intake", bytes.Repeat([]byte("a"), maxIntakeBody+1))
	handler.Submit(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, intake.raw)
}
