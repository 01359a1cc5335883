package service

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
	"github.com/noah-isme/ambassador-api/pkg/storage"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newUploadForTest(t *testing.T, maxBytes int64) *UploadService {
	t.Helper()
	store, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewDownloadSigner("secret", time.Hour)
	return NewUploadService(store, signer, UploadConfig{
		APIPrefix:    "/api/v1/",
		MaxBytes:     maxBytes,
		AllowedMIMEs: []string{"image/png", "image/jpeg", "video/mp4"},
	}, nil)
}

func TestUploadStoreSniffsAndSigns(t *testing.T) {
	svc := newUploadForTest(t, 1024)
	payload := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0x01}, 100)...)

	result, err := svc.Store(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "image/png", result.ContentType)
	assert.EqualValues(t, len(payload), result.Size)
	require.True(t, strings.HasPrefix(result.URL, "/api/v1/uploads/"))

	token := strings.TrimPrefix(result.URL, "/api/v1/uploads/")
	file, contentType, err := svc.Open(token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, "image/png", contentType)
	stored, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, payload, stored)
}

func TestUploadStoreRejectsDisallowedType(t *testing.T) {
	svc := newUploadForTest(t, 1024)

	_, err := svc.Store(strings.NewReader("#!/bin/sh\necho hi\n"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "text/plain")
}

func TestUploadStoreRejectsEmptyAndOversized(t *testing.T) {
	svc := newUploadForTest(t, 64)

	_, err := svc.Store(bytes.NewReader(nil))
	require.Error(t, err)

	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0x01}, 200)...)
	_, err = svc.Store(bytes.NewReader(big))
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "exceeds 64 bytes")
}

func TestUploadOpenRejectsExportTokens(t *testing.T) {
	svc := newUploadForTest(t, 1024)

	token, _, err := svc.signer.Generate(exportOwner, "exports/applicants.csv")
	require.NoError(t, err)
	_, _, err = svc.Open(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
