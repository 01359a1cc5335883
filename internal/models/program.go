package models

import "time"

// School is an institution applicants pick during intake.
type School struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	City      string    `db:"city" json:"city"`
	State     string    `db:"state" json:"state"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SchoolFilter narrows school listings.
type SchoolFilter struct {
	Search   string
	Active   *bool
	Page     int
	PageSize int
}

// AmbassadorType is a category assigned by weighted draw at intake.
type AmbassadorType struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Weight      float64   `db:"weight" json:"weight"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Challenge is a boost applicants complete for points.
type Challenge struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Points      int       `db:"points" json:"points"`
	ActionURL   string    `db:"action_url" json:"action_url"`
	Active      bool      `db:"active" json:"active"`
	SortOrder   int       `db:"sort_order" json:"sort_order"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ChallengeCompletion records one applicant finishing one challenge.
type ChallengeCompletion struct {
	ID            string    `db:"id" json:"id"`
	ApplicantID   string    `db:"applicant_id" json:"applicant_id"`
	ChallengeID   string    `db:"challenge_id" json:"challenge_id"`
	PointsAwarded int       `db:"points_awarded" json:"points_awarded"`
	CompletedAt   time.Time `db:"completed_at" json:"completed_at"`
}

// Boost is a challenge as seen by one applicant.
type Boost struct {
	Challenge
	Completed   bool       `db:"completed" json:"completed"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// BoostResult is returned after a completion is recorded.
type BoostResult struct {
	ChallengeID      string `json:"challenge_id"`
	PointsAwarded    int    `json:"points_awarded"`
	Points           int    `json:"points"`
	WaitlistPosition int    `json:"waitlist_position"`
}

// OpportunityStatus is the lifecycle of a brand campaign.
type OpportunityStatus string

const (
	OpportunityStatusDraft  OpportunityStatus = "draft"
	OpportunityStatusOpen   OpportunityStatus = "open"
	OpportunityStatusClosed OpportunityStatus = "closed"
)

// Opportunity is a brand campaign approved applicants can apply to.
type Opportunity struct {
	ID          string            `db:"id" json:"id"`
	Brand       string            `db:"brand" json:"brand"`
	Title       string            `db:"title" json:"title"`
	Description string            `db:"description" json:"description"`
	TotalSpots  int               `db:"total_spots" json:"total_spots"`
	SpotsFilled int               `db:"spots_filled" json:"spots_filled"`
	Status      OpportunityStatus `db:"status" json:"status"`
	Deadline    *time.Time        `db:"deadline" json:"deadline,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// ApplicationStatus tracks an opportunity application review.
type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusApproved ApplicationStatus = "approved"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

// OpportunityApplication links an applicant to an opportunity.
type OpportunityApplication struct {
	ID            string            `db:"id" json:"id"`
	OpportunityID string            `db:"opportunity_id" json:"opportunity_id"`
	ApplicantID   string            `db:"applicant_id" json:"applicant_id"`
	Pitch         string            `db:"pitch" json:"pitch"`
	Status        ApplicationStatus `db:"status" json:"status"`
	ReviewedBy    *string           `db:"reviewed_by" json:"reviewed_by,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

// OpportunityApplicationDetail adds applicant context for reviewers.
type OpportunityApplicationDetail struct {
	OpportunityApplication
	ApplicantName  string `db:"applicant_name" json:"applicant_name"`
	ApplicantEmail string `db:"applicant_email" json:"applicant_email"`
}

// DashboardCount is a labelled tally.
type DashboardCount struct {
	Label string `db:"label" json:"label"`
	Count int    `db:"count" json:"count"`
}

// DashboardSummary is the admin overview payload.
type DashboardSummary struct {
	TotalApplicants   int              `json:"total_applicants"`
	ByStatus          []DashboardCount `json:"by_status"`
	ByAmbassadorType  []DashboardCount `json:"by_ambassador_type"`
	TopSchools        []DashboardCount `json:"top_schools"`
	CompletionsTotal  int              `json:"completions_total"`
	OpenOpportunities int              `json:"open_opportunities"`
	GeneratedAt       time.Time        `json:"generated_at"`
}

// SystemMetrics is a lightweight snapshot of process metrics.
type SystemMetrics struct {
	CacheHitRatio            float64               `json:"cache_hit_ratio"`
	CacheHits                uint64                `json:"cache_hits"`
	CacheMisses              uint64                `json:"cache_misses"`
	RequestsTotal            uint64                `json:"requests_total"`
	AverageRequestDurationMs float64               `json:"average_request_duration_ms"`
	IntakesAccepted          uint64                `json:"intakes_accepted"`
	IntakesRejected          uint64                `json:"intakes_rejected"`
	ChallengeCompletions     uint64                `json:"challenge_completions"`
	PointsAwarded            uint64                `json:"points_awarded"`
	NotificationsSent        uint64                `json:"notifications_sent"`
	NotificationsFailed      uint64                `json:"notifications_failed"`
	Goroutines               int                   `json:"goroutines"`
	Queues                   map[string]QueueDepth `json:"queues,omitempty"`
	GeneratedAt              time.Time             `json:"generated_at"`
}

// QueueDepth reports one background queue.
type QueueDepth struct {
	Pending   int    `json:"pending"`
	Retrying  int64  `json:"retrying"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}
