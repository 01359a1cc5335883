package handler

import (
	"io"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ambassador-api/internal/service"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
	"github.com/noah-isme/ambassador-api/pkg/response"
)

type contentStore interface {
	Store(r io.Reader) (*service.UploadResult, error)
	Open(token string) (*os.File, string, error)
}

// UploadHandler accepts applicant content and serves it back via signed links.
type UploadHandler struct {
	uploads contentStore
}

// NewUploadHandler constructs UploadHandler.
func NewUploadHandler(uploads contentStore) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

// Upload godoc
// @Summary Upload content
// @Description Stores an image or video and returns a signed URL to reference from the intake form.
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Content file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /uploads [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Invalid(err, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	result, err := h.uploads.Store(file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Serve godoc
// @Summary Fetch uploaded content
// @Tags Uploads
// @Param token path string true "Signed token"
// @Success 200
// @Failure 404 {object} response.Envelope
// @Router /uploads/{token} [get]
func (h *UploadHandler) Serve(c *gin.Context) {
	file, contentType, err := h.uploads.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveFile(c, file, contentType, "")
}
