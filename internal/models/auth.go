package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RequestMeta fingerprints the caller for session rows and audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// LoginRequest holds staff credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest exchanges a refresh token for a new session.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,nefield=OldPassword"`
}

// StaffSession is returned by login and refresh. User is only set on login.
type StaffSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *UserInfo `json:"user,omitempty"`
}

// UserInfo describes the authenticated staff member.
type UserInfo struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
}

// JWTClaims is the access token payload for both staff and applicant tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// PortalSessionRequest lets an applicant recover portal access.
type PortalSessionRequest struct {
	Email        string `json:"email" validate:"required,email"`
	ReferralCode string `json:"referral_code" validate:"required,len=8"`
}

// PortalToken is the access token handed to applicants.
type PortalToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	ApplicantID string    `json:"applicant_id"`
}
