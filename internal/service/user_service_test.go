package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/repository"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

type staffRepoStub struct {
	users map[string]*models.User
}

func newStaffRepo(users ...models.User) *staffRepoStub {
	s := &staffRepoStub{users: map[string]*models.User{}}
	for i := range users {
		u := users[i]
		s.users[u.ID] = &u
	}
	return s
}

func (s *staffRepoStub) List(_ context.Context, _ models.UserFilter) ([]models.User, int, error) {
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (s *staffRepoStub) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *staffRepoStub) CountActiveSuperAdmins(context.Context) (int, error) {
	n := 0
	for _, u := range s.users {
		if u.Role == models.RoleSuperAdmin && u.Active {
			n++
		}
	}
	return n, nil
}

func (s *staffRepoStub) Create(_ context.Context, user *models.User) error {
	for _, u := range s.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	user.ID = "new-" + user.Email
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *staffRepoStub) Update(_ context.Context, user *models.User) error {
	if _, ok := s.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *staffRepoStub) Deactivate(_ context.Context, id string) error {
	u, ok := s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Active = false
	return nil
}

func codeOf(err error) string {
	if err == nil {
		return ""
	}
	return appErrors.FromError(err).Code
}

func TestUserServiceCreateDefaultsActiveAndAudits(t *testing.T) {
	repo := newStaffRepo()
	audit := &auditSink{}
	svc := NewUserService(repo, audit, nil, nil)

	user, err := svc.Create(context.Background(), CreateUserRequest{Email: "rev@example.com", FullName: "Rev", Password: "long enough", Role: models.RoleReviewer}, "root-1", testMeta)
	require.NoError(t, err)
	assert.True(t, user.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("long enough")))

	require.Len(t, audit.logs, 1)
	entry := audit.logs[0]
	assert.Equal(t, models.AuditActionUserCreate, entry.Action)
	assert.Equal(t, "root-1", *entry.UserID)
	assert.Equal(t, testMeta.IP, entry.IPAddress)
	assert.NotContains(t, string(entry.NewValues), "password")
}

func TestUserServiceCreateRejections(t *testing.T) {
	repo := newStaffRepo(models.User{ID: "a", Email: "taken@example.com", Role: models.RoleAdmin, Active: true})
	svc := NewUserService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{Email: "taken@example.com", FullName: "T", Password: "long enough", Role: models.RoleAdmin}, "root-1", testMeta)
	assert.Equal(t, appErrors.ErrConflict.Code, codeOf(err))

	_, err = svc.Create(context.Background(), CreateUserRequest{Email: "x@example.com", FullName: "X", Password: "long enough", Role: models.RoleApplicant}, "root-1", testMeta)
	assert.Equal(t, appErrors.ErrValidation.Code, codeOf(err))

	_, err = svc.Create(context.Background(), CreateUserRequest{Email: "x@example.com", FullName: "X", Password: "short", Role: models.RoleAdmin}, "root-1", testMeta)
	assert.Equal(t, appErrors.ErrValidation.Code, codeOf(err))
}

func TestUserServiceUpdateRecordsBeforeAndAfter(t *testing.T) {
	repo := newStaffRepo(models.User{ID: "1", FullName: "Old", Role: models.RoleReviewer, Active: true})
	audit := &auditSink{}
	svc := NewUserService(repo, audit, nil, nil)

	user, err := svc.Update(context.Background(), "1", UpdateUserRequest{FullName: "New", Role: models.RoleAdmin}, "root-1", testMeta)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.True(t, user.Active)

	require.Len(t, audit.logs, 1)
	assert.JSONEq(t, `{"full_name":"Old","role":"REVIEWER","active":true}`, string(audit.logs[0].OldValues))
	assert.JSONEq(t, `{"full_name":"New","role":"ADMIN","active":true}`, string(audit.logs[0].NewValues))
}

func TestUserServiceKeepsLastSuperadmin(t *testing.T) {
	repo := newStaffRepo(
		models.User{ID: "root-1", Role: models.RoleSuperAdmin, Active: true},
		models.User{ID: "admin-1", Role: models.RoleAdmin, Active: true},
	)
	svc := NewUserService(repo, nil, nil, nil)

	_, err := svc.Update(context.Background(), "root-1", UpdateUserRequest{FullName: "Root", Role: models.RoleAdmin}, "admin-1", testMeta)
	assert.Equal(t, appErrors.ErrConflict.Code, codeOf(err))

	err = svc.Delete(context.Background(), "root-1", "admin-1", testMeta)
	assert.Equal(t, appErrors.ErrConflict.Code, codeOf(err))
	assert.True(t, repo.users["root-1"].Active)

	repo.users["root-2"] = &models.User{ID: "root-2", Role: models.RoleSuperAdmin, Active: true}
	require.NoError(t, svc.Delete(context.Background(), "root-1", "root-2", testMeta))
	assert.False(t, repo.users["root-1"].Active)
}

func TestUserServiceSelfDeactivation(t *testing.T) {
	repo := newStaffRepo(
		models.User{ID: "root-1", Role: models.RoleSuperAdmin, Active: true},
		models.User{ID: "root-2", Role: models.RoleSuperAdmin, Active: true},
	)
	svc := NewUserService(repo, nil, nil, nil)

	assert.Equal(t, appErrors.ErrForbidden.Code, codeOf(svc.Delete(context.Background(), "root-1", "root-1", testMeta)))

	inactive := false
	_, err := svc.Update(context.Background(), "root-1", UpdateUserRequest{FullName: "Root", Role: models.RoleSuperAdmin, Active: &inactive}, "root-1", testMeta)
	assert.Equal(t, appErrors.ErrForbidden.Code, codeOf(err))
	assert.True(t, repo.users["root-1"].Active)
}

func TestUserServiceMissingAccount(t *testing.T) {
	svc := NewUserService(newStaffRepo(), nil, nil, nil)

	_, err := svc.Get(context.Background(), "ghost")
	assert.Equal(t, appErrors.ErrNotFound.Code, codeOf(err))
	assert.Equal(t, appErrors.ErrNotFound.Code, codeOf(svc.Delete(context.Background(), "ghost", "root-1", testMeta)))
}

func TestUserServiceListPagination(t *testing.T) {
	svc := NewUserService(newStaffRepo(models.User{ID: "1"}, models.User{ID: "2"}), nil, nil, nil)

	users, pagination, err := svc.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 2, pagination.TotalCount)
}
