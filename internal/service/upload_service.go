package service

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
	"github.com/noah-isme/ambassador-api/pkg/storage"
)

const (
	contentDir   = "content"
	contentOwner = "content"
)

type streamStorage interface {
	SaveStream(filename string, r io.Reader, maxBytes int64) (int64, error)
	Open(filename string) (*os.File, error)
}

// UploadConfig governs content uploads.
type UploadConfig struct {
	APIPrefix    string
	MaxBytes     int64
	AllowedMIMEs []string
}

// UploadResult describes a stored upload.
type UploadResult struct {
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// UploadService stores applicant content and serves it back through signed links.
type UploadService struct {
	storage streamStorage
	signer  *storage.DownloadSigner
	logger  *zap.Logger
	cfg     UploadConfig
	allowed map[string]string
}

// NewUploadService constructs an UploadService.
func NewUploadService(store streamStorage, signer *storage.DownloadSigner, cfg UploadConfig, logger *zap.Logger) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 25 * 1024 * 1024
	}
	allowed := make(map[string]string, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mt = strings.ToLower(strings.TrimSpace(mt))
		allowed[mt] = extensionFor(mt)
	}
	return &UploadService{storage: store, signer: signer, logger: logger, cfg: cfg, allowed: allowed}
}

// Store sniffs the content type, writes the stream and returns a signed download URL.
// The client-declared type is ignored.
func (s *UploadService) Store(r io.Reader) (*UploadResult, error) {
	buffered := bufio.NewReaderSize(r, 512)
	head, err := buffered.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, appErrors.Invalid(err, "failed to read upload")
	}
	if len(head) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "upload is empty")
	}
	contentType := http.DetectContentType(head)
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}
	ext, ok := s.allowed[contentType]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("content type %s is not allowed", contentType))
	}

	relPath := fmt.Sprintf("%s/%s/%s%s", contentDir, time.Now().UTC().Format("2006/01"), uuid.NewString(), ext)
	size, err := s.storage.SaveStream(relPath, buffered, s.cfg.MaxBytes)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxBytes))
		}
		return nil, appErrors.Internal(err, "failed to store upload")
	}
	token, expiresAt, err := s.signer.Generate(contentOwner, relPath)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign upload")
	}
	s.logger.Info("content uploaded", zap.String("path", relPath), zap.String("content_type", contentType), zap.Int64("size", size))

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &UploadResult{
		URL:         fmt.Sprintf("%s/uploads/%s", prefix, token),
		ContentType: contentType,
		Size:        size,
		ExpiresAt:   expiresAt,
	}, nil
}

// Open resolves a signed token to the stored file and its content type.
func (s *UploadService) Open(token string) (*os.File, string, error) {
	owner, relPath, _, err := s.signer.Parse(token, false)
	if err != nil || owner != contentOwner {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "upload link is invalid or expired")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "upload not found")
	}
	contentType := mime.TypeByExtension(filepath.Ext(relPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return file, contentType, nil
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "video/quicktime":
		return ".mov"
	case "video/webm":
		return ".webm"
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
