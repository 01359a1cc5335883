package models

import (
	"time"

	"github.com/lib/pq"
)

// ApplicantStatus is the review state set by admins.
type ApplicantStatus string

const (
	ApplicantStatusNew       ApplicantStatus = "new"
	ApplicantStatusReviewed  ApplicantStatus = "reviewed"
	ApplicantStatusContacted ApplicantStatus = "contacted"
	ApplicantStatusAccepted  ApplicantStatus = "accepted"
	ApplicantStatusRejected  ApplicantStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s ApplicantStatus) Valid() bool {
	switch s {
	case ApplicantStatusNew, ApplicantStatusReviewed, ApplicantStatusContacted, ApplicantStatusAccepted, ApplicantStatusRejected:
		return true
	}
	return false
}

// Applicant is a person who submitted the intake form.
type Applicant struct {
	ID               string          `db:"id" json:"id"`
	SchoolID         string          `db:"school_id" json:"school_id"`
	FirstName        string          `db:"first_name" json:"first_name"`
	LastName         string          `db:"last_name" json:"last_name"`
	Email            string          `db:"email" json:"email"`
	Phone            string          `db:"phone" json:"phone"`
	AgeEligible      bool            `db:"age_eligible" json:"age_eligible"`
	InstagramHandle  string          `db:"instagram_handle" json:"instagram_handle"`
	TiktokHandle     string          `db:"tiktok_handle" json:"tiktok_handle"`
	FollowerCount    int             `db:"follower_count" json:"follower_count"`
	PersonalityType  string          `db:"personality_type" json:"personality_type"`
	Interests        pq.StringArray  `db:"interests" json:"interests"`
	Scenes           pq.StringArray  `db:"scenes" json:"scenes"`
	HouseholdSize    int             `db:"household_size" json:"household_size"`
	ContentUploaded  bool            `db:"content_uploaded" json:"content_uploaded"`
	ContentURLs      pq.StringArray  `db:"content_urls" json:"content_urls"`
	AmbassadorType   string          `db:"ambassador_type" json:"ambassador_type"`
	Score            int             `db:"score" json:"score"`
	Points           int             `db:"points" json:"points"`
	WaitlistPosition int             `db:"waitlist_position" json:"waitlist_position"`
	ReferralCode     string          `db:"referral_code" json:"referral_code"`
	ReferredBy       *string         `db:"referred_by" json:"referred_by,omitempty"`
	Status           ApplicantStatus `db:"status" json:"status"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (a Applicant) FullName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// ApplicantDetail adds the school name for list and detail views.
type ApplicantDetail struct {
	Applicant
	SchoolName *string `db:"school_name" json:"school_name,omitempty"`
}

// ApplicantFilter encapsulates admin search parameters.
type ApplicantFilter struct {
	Search         string
	Status         *ApplicantStatus
	SchoolID       string
	AmbassadorType string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// LeaderboardEntry is the public slice of an applicant shown in the portal.
// The id stays server side; it is the key portal tokens are issued for.
type LeaderboardEntry struct {
	Rank             int    `db:"-" json:"rank"`
	ApplicantID      string `db:"id" json:"-"`
	DisplayName      string `db:"display_name" json:"display_name"`
	SchoolName       string `db:"school_name" json:"school_name"`
	Points           int    `db:"points" json:"points"`
	WaitlistPosition int    `db:"waitlist_position" json:"waitlist_position"`
}
