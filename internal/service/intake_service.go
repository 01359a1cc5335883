package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/repository"
	"github.com/noah-isme/ambassador-api/internal/waitlist"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

type intakeApplicantRepository interface {
	Create(ctx context.Context, applicant *models.Applicant) (bool, error)
	FindByID(ctx context.Context, id string) (*models.ApplicantDetail, error)
	FindByReferralCode(ctx context.Context, code string) (*models.Applicant, error)
	ApplyPoints(ctx context.Context, id string, delta int, ledger repository.LedgerFunc) (waitlist.Ledger, error)
}

type schoolFinder interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
}

type ambassadorTypeLister interface {
	List(ctx context.Context, activeOnly bool) ([]models.AmbassadorType, error)
}

type portalTokenIssuer interface {
	IssuePortalToken(applicant *models.Applicant) (*models.PortalToken, error)
}

type welcomeNotifier interface {
	Welcome(applicant *models.Applicant)
}

// IntakeRequest is the public application form.
type IntakeRequest struct {
	ID              string   `json:"id" validate:"omitempty,uuid"`
	SchoolID        string   `json:"school_id" validate:"required,uuid"`
	FirstName       string   `json:"first_name" validate:"required,max=100"`
	LastName        string   `json:"last_name" validate:"max=100"`
	Email           string   `json:"email" validate:"required,email"`
	Phone           string   `json:"phone" validate:"max=32"`
	AgeEligible     *bool    `json:"age_eligible" validate:"required"`
	InstagramHandle string   `json:"instagram_handle" validate:"max=64"`
	TiktokHandle    string   `json:"tiktok_handle" validate:"max=64"`
	FollowerCount   int      `json:"follower_count" validate:"min=0"`
	PersonalityType string   `json:"personality_type" validate:"max=64"`
	Interests       []string `json:"interests" validate:"max=20,dive,max=64"`
	Scenes          []string `json:"scenes" validate:"max=20,dive,max=64"`
	HouseholdSize   int      `json:"household_size" validate:"omitempty,min=1,max=50"`
	ContentURLs     []string `json:"content_urls" validate:"max=10,dive,max=512"`
	ReferredBy      string   `json:"referred_by" validate:"omitempty,len=8"`
}

// IntakeResult is returned to the applicant after submitting.
type IntakeResult struct {
	Applicant *models.Applicant   `json:"applicant"`
	Portal    *models.PortalToken `json:"portal"`
	Created   bool                `json:"-"`
}

// IntakeConfig tunes the intake flow.
type IntakeConfig struct {
	Enabled              bool
	Waitlist             waitlist.Config
	ReferralBonus        int
	ReferralCodeAttempts int
}

// IntakeService scores new applicants and places them on the waitlist.
type IntakeService struct {
	applicants intakeApplicantRepository
	schools    schoolFinder
	types      ambassadorTypeLister
	tokens     portalTokenIssuer
	notifier   welcomeNotifier
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	random     waitlist.RandomSource
	schema     *gojsonschema.Schema
	cfg        IntakeConfig
	now        func() time.Time
}

// IntakeServiceParams groups constructor dependencies.
type IntakeServiceParams struct {
	Applicants intakeApplicantRepository
	Schools    schoolFinder
	Types      ambassadorTypeLister
	Tokens     portalTokenIssuer
	Notifier   welcomeNotifier
	Cache      *CacheService
	Metrics    *MetricsService
	Validator  *validator.Validate
	Logger     *zap.Logger
	Random     waitlist.RandomSource
	Config     IntakeConfig
}

// NewIntakeService constructs an IntakeService.
func NewIntakeService(params IntakeServiceParams) (*IntakeService, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(intakeSchema))
	if err != nil {
		return nil, err
	}
	cfg := params.Config
	cfg.Waitlist = cfg.Waitlist.Normalize()
	if cfg.ReferralCodeAttempts <= 0 {
		cfg.ReferralCodeAttempts = 5
	}
	if cfg.ReferralBonus < 0 {
		cfg.ReferralBonus = 0
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	random := params.Random
	if random == nil {
		random = waitlist.GlobalSource()
	}
	return &IntakeService{
		applicants: params.Applicants,
		schools:    params.Schools,
		types:      params.Types,
		tokens:     params.Tokens,
		notifier:   params.Notifier,
		cache:      params.Cache,
		metrics:    params.Metrics,
		validator:  validate,
		logger:     logger,
		random:     random,
		schema:     schema,
		cfg:        cfg,
		now:        time.Now,
	}, nil
}

// Submit validates a raw intake document, stores the applicant and issues portal access.
// Resubmitting a known id returns the stored applicant unchanged, but only
// to a submitter presenting the same email.
func (s *IntakeService) Submit(ctx context.Context, raw []byte) (*IntakeResult, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "intake is closed")
	}
	req, err := s.decode(raw)
	if err != nil {
		s.metrics.RecordIntake("rejected", "")
		return nil, err
	}
	if !*req.AgeEligible {
		s.metrics.RecordIntake("rejected", "")
		return nil, appErrors.Clone(appErrors.ErrNotEligible, "applicant must meet the age requirement")
	}

	school, err := s.schools.FindByID(ctx, req.SchoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "school not found")
		}
		return nil, appErrors.Internal(err, "failed to load school")
	}
	if !school.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school is not accepting applicants")
	}

	if req.ID != "" {
		if existing, err := s.applicants.FindByID(ctx, req.ID); err == nil {
			return s.resubmitted(&existing.Applicant, req.Email)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Internal(err, "failed to load applicant")
		}
	}

	applicant := s.buildApplicant(req)
	typeName, err := s.drawAmbassadorType(ctx)
	if err != nil {
		return nil, err
	}
	applicant.AmbassadorType = typeName

	referrer := s.lookupReferrer(ctx, req.ReferredBy)
	if referrer != nil {
		applicant.ReferredBy = &referrer.ReferralCode
	}

	created, err := s.insertWithReferralCode(ctx, applicant)
	if err != nil {
		return nil, err
	}
	if !created {
		existing, err := s.applicants.FindByID(ctx, applicant.ID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load applicant")
		}
		return s.resubmitted(&existing.Applicant, applicant.Email)
	}

	s.metrics.RecordIntake("accepted", applicant.AmbassadorType)
	s.metrics.RecordPoints("intake", applicant.Points)
	if referrer != nil && referrer.ID != applicant.ID {
		s.creditReferrer(ctx, referrer)
	}
	s.invalidateRankings(ctx)
	if s.notifier != nil {
		s.notifier.Welcome(applicant)
	}

	token, err := s.tokens.IssuePortalToken(applicant)
	if err != nil {
		return nil, err
	}
	s.logger.Info("applicant joined waitlist",
		zap.String("applicant_id", applicant.ID),
		zap.String("ambassador_type", applicant.AmbassadorType),
		zap.Int("score", applicant.Score),
		zap.Int("waitlist_position", applicant.WaitlistPosition),
	)
	return &IntakeResult{Applicant: applicant, Portal: token, Created: true}, nil
}

func (s *IntakeService) decode(raw []byte) (*IntakeRequest, error) {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, appErrors.Invalid(err, "intake payload is not valid JSON")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid intake payload: "+strings.Join(msgs, "; "))
	}

	var req IntakeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, appErrors.Invalid(err, "invalid intake payload")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid intake payload")
	}
	req.ReferredBy = strings.ToUpper(strings.TrimSpace(req.ReferredBy))
	return &req, nil
}

func (s *IntakeService) buildApplicant(req *IntakeRequest) *models.Applicant {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	household := req.HouseholdSize
	if household < 1 {
		household = 1
	}
	contentUploaded := len(req.ContentURLs) > 0
	score := s.cfg.Waitlist.Score(waitlist.ScoreInput{
		Interests:       req.Interests,
		HouseholdSize:   household,
		ContentUploaded: contentUploaded,
	})
	now := s.now().UTC()
	return &models.Applicant{
		ID:               id,
		SchoolID:         req.SchoolID,
		FirstName:        strings.TrimSpace(req.FirstName),
		LastName:         strings.TrimSpace(req.LastName),
		Email:            strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:            req.Phone,
		AgeEligible:      true,
		InstagramHandle:  strings.TrimPrefix(strings.TrimSpace(req.InstagramHandle), "@"),
		TiktokHandle:     strings.TrimPrefix(strings.TrimSpace(req.TiktokHandle), "@"),
		FollowerCount:    req.FollowerCount,
		PersonalityType:  req.PersonalityType,
		Interests:        nonNilStrings(req.Interests),
		Scenes:           nonNilStrings(req.Scenes),
		HouseholdSize:    household,
		ContentUploaded:  contentUploaded,
		ContentURLs:      nonNilStrings(req.ContentURLs),
		Score:            score,
		Points:           score,
		WaitlistPosition: s.cfg.Waitlist.Position(score),
		Status:           models.ApplicantStatusNew,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (s *IntakeService) drawAmbassadorType(ctx context.Context) (string, error) {
	types, err := s.types.List(ctx, true)
	if err != nil {
		return "", appErrors.Internal(err, "failed to load ambassador types")
	}
	items := make([]waitlist.Weighted, 0, len(types))
	for _, t := range types {
		items = append(items, waitlist.Weighted{Name: t.Name, Weight: t.Weight})
	}
	picked, ok := waitlist.SelectWeighted(items, s.random)
	if !ok {
		s.logger.Warn("no active ambassador types; leaving type unassigned")
		return "", nil
	}
	return picked.Name, nil
}

func (s *IntakeService) lookupReferrer(ctx context.Context, code string) *models.Applicant {
	if code == "" {
		return nil
	}
	if !waitlist.IsReferralCode(code) {
		s.logger.Warn("ignoring malformed referral code", zap.String("referred_by", code))
		return nil
	}
	referrer, err := s.applicants.FindByReferralCode(ctx, code)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("referral lookup failed", zap.String("referred_by", code), zap.Error(err))
		} else {
			s.logger.Warn("ignoring unknown referral code", zap.String("referred_by", code))
		}
		return nil
	}
	return referrer
}

func (s *IntakeService) insertWithReferralCode(ctx context.Context, applicant *models.Applicant) (bool, error) {
	for attempt := 1; attempt <= s.cfg.ReferralCodeAttempts; attempt++ {
		applicant.ReferralCode = waitlist.ReferralCode(s.random)
		created, err := s.applicants.Create(ctx, applicant)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, repository.ErrDuplicateReferralCode) {
			return false, appErrors.Internal(err, "failed to store applicant")
		}
		s.logger.Warn("referral code collision", zap.Int("attempt", attempt))
	}
	return false, appErrors.Clone(appErrors.ErrConflict, "could not allocate a unique referral code")
}

func (s *IntakeService) creditReferrer(ctx context.Context, referrer *models.Applicant) {
	if s.cfg.ReferralBonus == 0 {
		return
	}
	ledger, err := s.applicants.ApplyPoints(ctx, referrer.ID, s.cfg.ReferralBonus, s.cfg.Waitlist.ApplyPoints)
	if err != nil {
		// the new applicant is already stored; RecalculatePoints can repair the referrer later
		s.logger.Error("failed to credit referral bonus", zap.String("referrer_id", referrer.ID), zap.Error(err))
		return
	}
	s.metrics.RecordPoints("referral", s.cfg.ReferralBonus)
	s.logger.Info("referral bonus credited",
		zap.String("referrer_id", referrer.ID),
		zap.Int("points", ledger.Total),
		zap.Int("waitlist_position", ledger.Position),
	)
}

func (s *IntakeService) resubmitted(applicant *models.Applicant, email string) (*IntakeResult, error) {
	if !strings.EqualFold(strings.TrimSpace(email), applicant.Email) {
		s.metrics.RecordIntake("rejected", "")
		s.logger.Warn("intake resubmission with foreign email", zap.String("applicant_id", applicant.ID))
		return nil, appErrors.Clone(appErrors.ErrConflict, "an application with this id already exists")
	}
	s.metrics.RecordIntake("duplicate", "")
	token, err := s.tokens.IssuePortalToken(applicant)
	if err != nil {
		return nil, err
	}
	return &IntakeResult{Applicant: applicant, Portal: token}, nil
}

func (s *IntakeService) invalidateRankings(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, leaderboardCachePattern, dashboardCachePattern)
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

const intakeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["school_id", "first_name", "email", "age_eligible"],
  "properties": {
    "id": {"type": "string"},
    "school_id": {"type": "string", "minLength": 1},
    "first_name": {"type": "string", "minLength": 1},
    "last_name": {"type": "string"},
    "email": {"type": "string", "minLength": 3},
    "phone": {"type": "string"},
    "age_eligible": {"type": "boolean"},
    "instagram_handle": {"type": "string"},
    "tiktok_handle": {"type": "string"},
    "follower_count": {"type": "integer", "minimum": 0},
    "personality_type": {"type": "string"},
    "interests": {"type": "array", "items": {"type": "string"}},
    "scenes": {"type": "array", "items": {"type": "string"}},
    "household_size": {"type": "integer", "minimum": 1},
    "content_urls": {"type": "array", "items": {"type": "string"}},
    "referred_by": {"type": ["string", "null"]}
  }
}`
