package handler

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ambassador-api/internal/service"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

type fakeContentStore struct {
	dir      string
	received []byte
}

func (f *fakeContentStore) Store(r io.Reader) (*service.UploadResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.received = data
	return &service.UploadResult{URL: "/api/v1/uploads/tok", ContentType: "image/png", Size: int64(len(data))}, nil
}

func (f *fakeContentStore) Open(token string) (*os.File, string, error) {
	if token != "tok" {
		return nil, "", appErrors.ErrNotFound
	}
	path := filepath.Join(f.dir, "content")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o600); err != nil {
		return nil, "", err
	}
	file, err := os.Open(path)
	return file, "image/png", err
}

func TestUploadHandlerStoresMultipartFile(t *testing.T) {
	store := &fakeContentStore{dir: t.TempDir()}
	handler := NewUploadHandler(store)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "clip.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("png-bytes"))
	require.NoError(t, writer.Close())

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/uploads", &body)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())
	handler.Upload(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []byte("png-bytes"), store.received)
}

func TestUploadHandlerRequiresFileField(t *testing.T) {
	handler := NewUploadHandler(&fakeContentStore{dir: t.TempDir()})

	c, rec := newTestContext(http.MethodPost, "/uploads", []byte(`{}`))
	handler.Upload(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadHandlerServe(t *testing.T) {
	handler := NewUploadHandler(&fakeContentStore{dir: t.TempDir()})

	c, rec := newTestContext(http.MethodGet, "/uploads/tok", nil)
	c.AddParam("token", "tok")
	handler.Serve(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "png-bytes", rec.Body.String())

	c, rec = newTestContext(http.MethodGet, "/uploads/nope", nil)
	c.AddParam("token", "nope")
	handler.Serve(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
