package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ambassador-api/internal/middleware"
	"github.com/noah-isme/ambassador-api/internal/models"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

type fakeStaffAuth struct {
	meta        models.RequestMeta
	userID      string
	revoked     string
	refreshErr  error
	passwordReq models.ChangePasswordRequest
}

func (f *fakeStaffAuth) Login(_ context.Context, req models.LoginRequest, meta models.RequestMeta) (*models.StaffSession, error) {
	f.meta = meta
	if req.Password != "correct horse" {
		return nil, appErrors.ErrInvalidCredentials
	}
	return &models.StaffSession{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer", User: &models.UserInfo{ID: "u1"}}, nil
}

func (f *fakeStaffAuth) Refresh(_ context.Context, _ models.RefreshTokenRequest, meta models.RequestMeta) (*models.StaffSession, error) {
	f.meta = meta
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &models.StaffSession{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

func (f *fakeStaffAuth) Logout(_ context.Context, refreshToken, userID string, _ models.RequestMeta) error {
	f.revoked, f.userID = refreshToken, userID
	return nil
}

func (f *fakeStaffAuth) ChangePassword(_ context.Context, userID string, req models.ChangePasswordRequest, _ models.RequestMeta) error {
	f.userID, f.passwordReq = userID, req
	return nil
}

func TestAuthHandlerLogin(t *testing.T) {
	fake := &fakeStaffAuth{}
	handler := NewAuthHandler(fake)

	c, rec := newTestContext(http.MethodPost, "/auth/login", []byte(`{"email":"lead@example.com","password":"correct horse"}`))
	c.Request.Header.Set("User-Agent", "browser")
	handler.Login(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"refresh_token":"refresh"`)
	assert.Equal(t, "browser", fake.meta.UserAgent)

	c, rec = newTestContext(http.MethodPost, "/auth/login", []byte(`{"email":"lead@example.com","password":"nope"}`))
	handler.Login(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newTestContext(http.MethodPost, "/auth/login", []byte(`{"email":`))
	handler.Login(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerRefreshReplay(t *testing.T) {
	handler := NewAuthHandler(&fakeStaffAuth{refreshErr: appErrors.Clone(appErrors.ErrUnauthorized, "refresh token has been revoked")})
	c, rec := newTestContext(http.MethodPost, "/auth/refresh", []byte(`{"refresh_token":"spent"}`))

	handler.Refresh(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "revoked")
}

func TestAuthHandlerLogoutUsesCaller(t *testing.T) {
	fake := &fakeStaffAuth{}
	handler := NewAuthHandler(fake)

	c, rec := newTestContext(http.MethodPost, "/auth/logout", []byte(`{"refresh_token":"refresh"}`))
	handler.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newTestContext(http.MethodPost, "/auth/logout", []byte(`{"refresh_token":"refresh"}`))
	c.Set(middleware.ContextUserKey, superadminClaims)
	handler.Logout(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "root-1", fake.userID)
	assert.Equal(t, "refresh", fake.revoked)
}

func TestAuthHandlerChangePassword(t *testing.T) {
	fake := &fakeStaffAuth{}
	handler := NewAuthHandler(fake)
	c, rec := newTestContext(http.MethodPost, "/auth/change-password", []byte(`{"old_password":"a","new_password":"battery staple"}`))
	c.Set(middleware.ContextUserKey, superadminClaims)

	handler.ChangePassword(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "root-1", fake.userID)
	assert.Equal(t, "battery staple", fake.passwordReq.NewPassword)
}

func TestAuthHandlerMeRejectsPortalTokens(t *testing.T) {
	handler := NewAuthHandler(&fakeStaffAuth{})

	c, rec := newTestContext(http.MethodGet, "/auth/me", nil)
	c.Set(middleware.ContextUserKey, applicantClaims)
	handler.Me(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/auth/me", nil)
	c.Set(middleware.ContextUserKey, superadminClaims)
	handler.Me(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"SUPERADMIN"`)
}
