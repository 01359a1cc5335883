package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/ambassador-api/internal/models"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

type staffLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
}

type sessionStore interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) error
}

type portalApplicantLookup interface {
	FindByEmailAndReferralCode(ctx context.Context, email, code string) (*models.Applicant, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	PortalTokenExpiry  time.Duration
	Issuer             string
	Audience           []string
	SingleSession      bool
}

// AuthService authenticates back-office users and issues applicant portal tokens.
type AuthService struct {
	users      staffLookup
	sessions   sessionStore
	applicants portalApplicantLookup
	audit      auditLogger
	validator  *validator.Validate
	logger     *zap.Logger
	config     AuthConfig
	now        func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users staffLookup, sessions sessionStore, applicants portalApplicantLookup, audit auditLogger, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.PortalTokenExpiry <= 0 {
		config.PortalTokenExpiry = 30 * 24 * time.Hour
	}
	if config.RefreshTokenExpiry <= 0 {
		config.RefreshTokenExpiry = 7 * 24 * time.Hour
	}
	return &AuthService{
		users:      users,
		sessions:   sessions,
		applicants: applicants,
		audit:      audit,
		validator:  validate,
		logger:     logger,
		config:     config,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

var errBadCredentials = appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")

// Login checks staff credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, meta models.RequestMeta) (*models.StaffSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, errBadCredentials
	case err != nil:
		return nil, appErrors.Internal(err, "failed to fetch user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, errBadCredentials
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	now := s.now()
	if s.config.SingleSession {
		if err := s.sessions.RevokeAllForUser(ctx, user.ID, now); err != nil {
			s.logger.Warn("failed to end previous sessions", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	session, err := s.openSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	session.User = user.Info()

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	writeAudit(ctx, s.audit, s.logger, auditEntry(user.ID, models.AuditActionLogin, "auth", user.ID, meta, nil, map[string]string{"via": "password"}))
	return session, nil
}

// Refresh rotates a session. A token that was already rotated or logged out
// is treated as stolen: every session of its owner is revoked.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest, meta models.RequestMeta) (*models.StaffSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid refresh payload")
	}

	stored, err := s.lookupSession(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if stored.RevokedAt != nil {
		s.revokeEverything(ctx, stored.UserID, meta)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token has been revoked")
	}
	if !stored.Usable(now) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token has expired")
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
	case err != nil:
		return nil, appErrors.Internal(err, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	rotated, err := s.sessions.Revoke(ctx, stored.ID, now)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to rotate refresh token")
	}
	if !rotated {
		// a concurrent refresh won the race
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token has been revoked")
	}
	return s.openSession(ctx, user, meta)
}

// Logout revokes one of the caller's sessions.
func (s *AuthService) Logout(ctx context.Context, refreshToken, userID string, meta models.RequestMeta) error {
	stored, err := s.lookupSession(ctx, refreshToken)
	if err != nil {
		return err
	}
	if stored.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	}
	if _, err := s.sessions.Revoke(ctx, stored.ID, s.now()); err != nil {
		return appErrors.Internal(err, "failed to revoke refresh token")
	}
	writeAudit(ctx, s.audit, s.logger, auditEntry(userID, models.AuditActionLogout, "auth", userID, meta, nil, nil))
	return nil
}

// ChangePassword verifies the old password, stores the new hash and ends all sessions.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest, meta models.RequestMeta) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Invalid(err, "invalid change password payload")
	}

	user, err := s.users.FindByID(ctx, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "user not found")
	case err != nil:
		return appErrors.Internal(err, "failed to load user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)) != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Internal(err, "failed to hash password")
	}
	now := s.now()
	if err := s.users.UpdatePassword(ctx, userID, string(hash), now); err != nil {
		return appErrors.Internal(err, "failed to update password")
	}
	if err := s.sessions.RevokeAllForUser(ctx, userID, now); err != nil {
		s.logger.Warn("failed to end sessions after password change", zap.String("user_id", userID), zap.Error(err))
	}
	writeAudit(ctx, s.audit, s.logger, auditEntry(userID, models.AuditActionPasswordChange, "auth", userID, meta, nil, nil))
	return nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(*jwt.Token) (interface{}, error) {
		return []byte(s.config.AccessTokenSecret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// IssuePortalToken signs an APPLICANT-role token scoped to one applicant.
func (s *AuthService) IssuePortalToken(applicant *models.Applicant) (*models.PortalToken, error) {
	signed, expiresAt, err := s.sign(models.JWTClaims{
		UserID:   applicant.ID,
		Role:     models.RoleApplicant,
		Email:    applicant.Email,
		FullName: applicant.FullName(),
	}, s.config.PortalTokenExpiry)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign portal token")
	}
	return &models.PortalToken{
		AccessToken: signed,
		ExpiresIn:   int64(s.config.PortalTokenExpiry.Seconds()),
		ExpiresAt:   expiresAt,
		ApplicantID: applicant.ID,
	}, nil
}

// PortalSession re-issues a portal token for an applicant who knows their email and referral code.
func (s *AuthService) PortalSession(ctx context.Context, req models.PortalSessionRequest) (*models.PortalToken, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid portal session payload")
	}
	if s.applicants == nil {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "portal sessions are unavailable")
	}
	applicant, err := s.applicants.FindByEmailAndReferralCode(ctx, req.Email, strings.ToUpper(req.ReferralCode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "email or referral code is incorrect")
		}
		return nil, appErrors.Internal(err, "failed to load applicant")
	}
	return s.IssuePortalToken(applicant)
}

func (s *AuthService) lookupSession(ctx context.Context, raw string) (*models.RefreshToken, error) {
	stored, err := s.sessions.FindByHash(ctx, hashToken(raw))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load refresh token")
	}
	return stored, nil
}

func (s *AuthService) revokeEverything(ctx context.Context, userID string, meta models.RequestMeta) {
	if err := s.sessions.RevokeAllForUser(ctx, userID, s.now()); err != nil {
		s.logger.Error("failed to revoke sessions after token replay", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.logger.Warn("refresh token replayed, all sessions revoked", zap.String("user_id", userID), zap.String("ip", meta.IP))
	writeAudit(ctx, s.audit, s.logger, auditEntry("", models.AuditActionSessionReplay, "auth", userID, meta, nil, nil))
}

// openSession signs an access token and stores a fresh refresh token for user.
func (s *AuthService) openSession(ctx context.Context, user *models.User, meta models.RequestMeta) (*models.StaffSession, error) {
	access, expiresAt, err := s.sign(models.JWTClaims{
		UserID:   user.ID,
		Role:     user.Role,
		Email:    user.Email,
		FullName: user.FullName,
	}, s.config.AccessTokenExpiry)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create access token")
	}

	raw, err := newOpaqueToken()
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create refresh token")
	}
	now := s.now()
	if err := s.sessions.Create(ctx, &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(raw),
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		CreatedAt: now,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}); err != nil {
		return nil, appErrors.Internal(err, "failed to persist refresh token")
	}

	return &models.StaffSession{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *AuthService) sign(claims models.JWTClaims, ttl time.Duration) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.config.Issuer,
		Subject:   claims.UserID,
		Audience:  s.config.Audience,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
