package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/ambassador-api/internal/models"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type auditLogLister interface {
	List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error)
}

// AuditService exposes the audit trail to administrators.
type AuditService struct {
	repo auditLogLister
}

// NewAuditService constructs an AuditService.
func NewAuditService(repo auditLogLister) *AuditService {
	return &AuditService{repo: repo}
}

// List returns audit entries with pagination.
func (s *AuditService) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, *models.Pagination, error) {
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list audit logs")
	}
	return logs, paginationFor(filter.Page, filter.PageSize, 50, total), nil
}

// recordAudit writes an audit entry attributed to actor; failures are logged and never surface to callers.
func recordAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, actor *models.JWTClaims, action, resource, resourceID string, newValues interface{}) {
	var actorID string
	if actor != nil && actor.Role != models.RoleApplicant {
		actorID = actor.UserID
	}
	writeAudit(ctx, audit, logger, auditEntry(actorID, action, resource, resourceID, models.RequestMeta{}, nil, newValues))
}

func auditEntry(actorID, action, resource, resourceID string, meta models.RequestMeta, before, after interface{}) *models.AuditLog {
	entry := &models.AuditLog{Action: action, Resource: resource, IPAddress: meta.IP, UserAgent: meta.UserAgent}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	entry.OldValues = marshalAudit(before)
	entry.NewValues = marshalAudit(after)
	return entry
}

func marshalAudit(v interface{}) []byte {
	if v == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return payload
}

func writeAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, entry *models.AuditLog) {
	if audit == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := audit.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

func paginationFor(page, size, defaultSize, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultSize
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
