package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ambassador-api/internal/service"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
	"github.com/noah-isme/ambassador-api/pkg/response"
)

const maxIntakeBody = 64 << 10

type intakeSubmitter interface {
	Submit(ctx context.Context, raw []byte) (*service.IntakeResult, error)
}

// IntakeHandler accepts the public application form.
type IntakeHandler struct {
	intake intakeSubmitter
}

// NewIntakeHandler constructs IntakeHandler.
func NewIntakeHandler(intake intakeSubmitter) *IntakeHandler {
	return &IntakeHandler{intake: intake}
}

// Submit godoc
// @Summary Submit an ambassador application
// @Description Scores the applicant, assigns an ambassador type and waitlist position, and returns a portal token. Resubmitting the same id with the same email returns the stored applicant; another email gets 409.
// @Tags Intake
// @Accept json
// @Produce json
// @Param payload body service.IntakeRequest true "Application"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /intake [post]
func (h *IntakeHandler) Submit(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxIntakeBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "payload too large"))
			return
		}
		response.Error(c, appErrors.Invalid(err, "invalid payload"))
		return
	}
	result, err := h.intake.Submit(c.Request.Context(), raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Created {
		response.Created(c, result)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
