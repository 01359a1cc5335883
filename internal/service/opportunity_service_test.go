package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/repository"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

type opportunityRepoStub struct {
	items        map[string]*models.Opportunity
	applications map[string]*models.OpportunityApplication
	reviewErr    error
}

func newOpportunityRepoStub(items ...models.Opportunity) *opportunityRepoStub {
	repo := &opportunityRepoStub{items: map[string]*models.Opportunity{}, applications: map[string]*models.OpportunityApplication{}}
	for i := range items {
		item := items[i]
		repo.items[item.ID] = &item
	}
	return repo
}

func (r *opportunityRepoStub) List(_ context.Context, status *models.OpportunityStatus) ([]models.Opportunity, error) {
	var out []models.Opportunity
	for _, item := range r.items {
		if status == nil || item.Status == *status {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *opportunityRepoStub) FindByID(_ context.Context, id string) (*models.Opportunity, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *item
	return &clone, nil
}

func (r *opportunityRepoStub) Create(_ context.Context, item *models.Opportunity) error {
	item.ID = "created"
	r.items[item.ID] = item
	return nil
}

func (r *opportunityRepoStub) Update(_ context.Context, item *models.Opportunity) error {
	if _, ok := r.items[item.ID]; !ok {
		return sql.ErrNoRows
	}
	r.items[item.ID] = item
	return nil
}

func (r *opportunityRepoStub) Delete(_ context.Context, id string) error {
	if _, ok := r.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.items, id)
	return nil
}

func (r *opportunityRepoStub) Apply(_ context.Context, application *models.OpportunityApplication) error {
	key := application.OpportunityID + "/" + application.ApplicantID
	if _, ok := r.applications[key]; ok {
		return repository.ErrDuplicateApplication
	}
	application.ID = key
	r.applications[key] = application
	return nil
}

func (r *opportunityRepoStub) ListApplications(_ context.Context, opportunityID string) ([]models.OpportunityApplicationDetail, error) {
	var out []models.OpportunityApplicationDetail
	for _, app := range r.applications {
		if app.OpportunityID == opportunityID {
			out = append(out, models.OpportunityApplicationDetail{OpportunityApplication: *app})
		}
	}
	return out, nil
}

func (r *opportunityRepoStub) ListApplicationsForApplicant(_ context.Context, applicantID string) ([]models.OpportunityApplication, error) {
	var out []models.OpportunityApplication
	for _, app := range r.applications {
		if app.ApplicantID == applicantID {
			out = append(out, *app)
		}
	}
	return out, nil
}

func (r *opportunityRepoStub) ReviewApplication(_ context.Context, applicationID string, status models.ApplicationStatus, reviewerID string) (*models.OpportunityApplication, error) {
	if r.reviewErr != nil {
		return nil, r.reviewErr
	}
	app, ok := r.applications[applicationID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	app.Status = status
	app.ReviewedBy = &reviewerID
	return app, nil
}

func newOpportunityForTest(repo *opportunityRepoStub, applicants *applicantRepoStub, audit auditLogger) *OpportunityService {
	svc := NewOpportunityService(repo, applicants, audit, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestOpportunityApplyRequiresAcceptedApplicant(t *testing.T) {
	applicants := newApplicantRepoStub(idA)
	repo := newOpportunityRepoStub(models.Opportunity{ID: "op", Status: models.OpportunityStatusOpen, TotalSpots: 3})
	svc := newOpportunityForTest(repo, applicants, nil)

	_, err := svc.Apply(context.Background(), idA, "op", ApplyOpportunityRequest{Pitch: "hi"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	applicants.applicants[idA].Status = models.ApplicantStatusAccepted
	application, err := svc.Apply(context.Background(), idA, "op", ApplyOpportunityRequest{Pitch: "  I make videos  "})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusPending, application.Status)
	assert.Equal(t, "I make videos", application.Pitch)

	_, err = svc.Apply(context.Background(), idA, "op", ApplyOpportunityRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestOpportunityApplyRejectsClosedFullOrExpired(t *testing.T) {
	past := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	applicants := newApplicantRepoStub(idA)
	applicants.applicants[idA].Status = models.ApplicantStatusAccepted
	repo := newOpportunityRepoStub(
		models.Opportunity{ID: "closed", Status: models.OpportunityStatusClosed, TotalSpots: 3},
		models.Opportunity{ID: "expired", Status: models.OpportunityStatusOpen, TotalSpots: 3, Deadline: &past},
		models.Opportunity{ID: "full", Status: models.OpportunityStatusOpen, TotalSpots: 2, SpotsFilled: 2},
	)
	svc := newOpportunityForTest(repo, applicants, nil)

	cases := map[string]string{
		"closed":  appErrors.ErrValidation.Code,
		"expired": appErrors.ErrValidation.Code,
		"full":    appErrors.ErrOpportunityFull.Code,
		"missing": appErrors.ErrNotFound.Code,
	}
	for id, code := range cases {
		_, err := svc.Apply(context.Background(), idA, id, ApplyOpportunityRequest{})
		require.Error(t, err, id)
		assert.Equal(t, code, appErrors.FromError(err).Code, id)
	}
}

func TestOpportunityListOpenHidesExpired(t *testing.T) {
	past := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := newOpportunityRepoStub(
		models.Opportunity{ID: "a", Status: models.OpportunityStatusOpen, Deadline: &future},
		models.Opportunity{ID: "b", Status: models.OpportunityStatusOpen, Deadline: &past},
		models.Opportunity{ID: "c", Status: models.OpportunityStatusDraft},
		models.Opportunity{ID: "d", Status: models.OpportunityStatusOpen},
	)
	svc := newOpportunityForTest(repo, newApplicantRepoStub(), nil)

	items, err := svc.ListOpen(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	assert.ElementsMatch(t, []string{"a", "d"}, ids)
}

func TestOpportunityCreateDefaultsToDraft(t *testing.T) {
	svc := newOpportunityForTest(newOpportunityRepoStub(), newApplicantRepoStub(), nil)

	item, err := svc.Create(context.Background(), OpportunityRequest{Brand: " Acme ", Title: "Launch", TotalSpots: 5})
	require.NoError(t, err)
	assert.Equal(t, models.OpportunityStatusDraft, item.Status)
	assert.Equal(t, "Acme", item.Brand)

	_, err = svc.Create(context.Background(), OpportunityRequest{Title: "No brand"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestOpportunityUpdateKeepsFilledSpots(t *testing.T) {
	repo := newOpportunityRepoStub(models.Opportunity{ID: "op", Brand: "Acme", Title: "Launch", Status: models.OpportunityStatusOpen, TotalSpots: 5, SpotsFilled: 3})
	svc := newOpportunityForTest(repo, newApplicantRepoStub(), nil)

	_, err := svc.Update(context.Background(), "op", OpportunityRequest{Brand: "Acme", Title: "Launch", TotalSpots: 2})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	item, err := svc.Update(context.Background(), "op", OpportunityRequest{Brand: "Acme", Title: "Launch", TotalSpots: 3})
	require.NoError(t, err)
	assert.Equal(t, models.OpportunityStatusOpen, item.Status)
}

func TestOpportunityReviewAuditsAndMapsErrors(t *testing.T) {
	repo := newOpportunityRepoStub(models.Opportunity{ID: "op", Status: models.OpportunityStatusOpen, TotalSpots: 1})
	repo.applications["app-1"] = &models.OpportunityApplication{ID: "app-1", OpportunityID: "op", ApplicantID: idA, Status: models.ApplicationStatusPending}
	audit := &auditStub{}
	svc := newOpportunityForTest(repo, newApplicantRepoStub(), audit)

	app, err := svc.Review(context.Background(), adminClaims, "app-1", ReviewApplicationRequest{Status: models.ApplicationStatusApproved})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusApproved, app.Status)
	assert.Equal(t, "admin-1", *app.ReviewedBy)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionApplicationReview, audit.entries[0].Action)

	_, err = svc.Review(context.Background(), adminClaims, "nope", ReviewApplicationRequest{Status: models.ApplicationStatusApproved})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	repo.reviewErr = repository.ErrOpportunityFull
	_, err = svc.Review(context.Background(), adminClaims, "app-1", ReviewApplicationRequest{Status: models.ApplicationStatusApproved})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrOpportunityFull.Code, appErrors.FromError(err).Code)
}
