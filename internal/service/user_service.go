package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/repository"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

type staffRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	CountActiveSuperAdmins(ctx context.Context) (int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id string) error
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	FullName string          `json:"full_name" validate:"required,max=120"`
	Role     models.UserRole `json:"role" validate:"required,oneof=SUPERADMIN ADMIN REVIEWER"`
	Active   *bool           `json:"active"`
	Password string          `json:"password" validate:"required,min=8"`
}

// UpdateUserRequest payload for updating users.
type UpdateUserRequest struct {
	FullName string          `json:"full_name" validate:"required,max=120"`
	Role     models.UserRole `json:"role" validate:"required,oneof=SUPERADMIN ADMIN REVIEWER"`
	Active   *bool           `json:"active"`
}

// UserService manages back-office accounts.
type UserService struct {
	repo      staffRepository
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo staffRepository, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, audit: audit, validator: validate, logger: logger}
}

type staffSnapshot struct {
	FullName string          `json:"full_name"`
	Role     models.UserRole `json:"role"`
	Active   bool            `json:"active"`
}

func snapshot(u *models.User) staffSnapshot {
	return staffSnapshot{FullName: u.FullName, Role: u.Role, Active: u.Active}
}

func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}
	return users, paginationFor(filter.Page, filter.PageSize, 20, total), nil
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load user")
	}
	return user, nil
}

// Create adds a staff account. Accounts are active unless the payload says otherwise.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid create user payload")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}
	user := &models.User{
		Email:        req.Email,
		FullName:     req.FullName,
		Role:         req.Role,
		Active:       req.Active == nil || *req.Active,
		PasswordHash: string(hash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, appErrors.Internal(err, "failed to create user")
	}

	writeAudit(ctx, s.audit, s.logger, auditEntry(actorID, models.AuditActionUserCreate, "users", user.ID, meta, nil, snapshot(user)))
	return user, nil
}

// Update changes name, role and active flag. The last active superadmin
// can be neither demoted nor deactivated.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid update payload")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := snapshot(user)

	user.FullName = req.FullName
	user.Role = req.Role
	if req.Active != nil {
		user.Active = *req.Active
	}
	if id == actorID && !user.Active {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot deactivate your own account")
	}
	losesSuperadmin := before.Role == models.RoleSuperAdmin && before.Active &&
		(user.Role != models.RoleSuperAdmin || !user.Active)
	if losesSuperadmin {
		if err := s.keepOneSuperadmin(ctx); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to update user")
	}

	writeAudit(ctx, s.audit, s.logger, auditEntry(actorID, models.AuditActionUserUpdate, "users", user.ID, meta, before, snapshot(user)))
	return user, nil
}

// Delete deactivates a staff account; rows are never removed.
func (s *UserService) Delete(ctx context.Context, id string, actorID string, meta models.RequestMeta) error {
	if id == actorID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot deactivate your own account")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == models.RoleSuperAdmin && user.Active {
		if err := s.keepOneSuperadmin(ctx); err != nil {
			return err
		}
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Internal(err, "failed to deactivate user")
	}

	before := snapshot(user)
	user.Active = false
	writeAudit(ctx, s.audit, s.logger, auditEntry(actorID, models.AuditActionUserDelete, "users", id, meta, before, snapshot(user)))
	return nil
}

func (s *UserService) keepOneSuperadmin(ctx context.Context) error {
	n, err := s.repo.CountActiveSuperAdmins(ctx)
	if err != nil {
		return appErrors.Internal(err, "failed to count superadmins")
	}
	if n <= 1 {
		return appErrors.Clone(appErrors.ErrConflict, "at least one active superadmin is required")
	}
	return nil
}
