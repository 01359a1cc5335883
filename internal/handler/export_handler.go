package handler

import (
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ambassador-api/pkg/response"
)

type exportOpener interface {
	Open(token string) (*os.File, string, error)
}

// ExportHandler serves rendered exports by signed token.
type ExportHandler struct {
	exports exportOpener
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports exportOpener) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Download godoc
// @Summary Download an export
// @Tags Applicants
// @Produce octet-stream
// @Param token path string true "Signed export token"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /admin/exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	file, name, err := h.exports.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	contentType := "text/csv"
	if filepath.Ext(name) == ".pdf" {
		contentType = "application/pdf"
	}
	serveFile(c, file, contentType, name)
}
