package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ambassador-api/internal/models"
)

const opportunityColumns = `id, brand, title, description, total_spots, spots_filled, status, deadline, created_at, updated_at`

// OpportunityRepository persists brand opportunities and applications to them.
type OpportunityRepository struct {
	db *sqlx.DB
}

// NewOpportunityRepository constructs an OpportunityRepository.
func NewOpportunityRepository(db *sqlx.DB) *OpportunityRepository {
	return &OpportunityRepository{db: db}
}

// List returns opportunities, optionally filtered by status.
func (r *OpportunityRepository) List(ctx context.Context, status *models.OpportunityStatus) ([]models.Opportunity, error) {
	query := fmt.Sprintf("SELECT %s FROM opportunities", opportunityColumns)
	var args []interface{}
	if status != nil {
		query += " WHERE status = $1"
		args = append(args, *status)
	}
	query += " ORDER BY created_at DESC"
	var items []models.Opportunity
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	return items, nil
}

// FindByID fetches an opportunity.
func (r *OpportunityRepository) FindByID(ctx context.Context, id string) (*models.Opportunity, error) {
	var item models.Opportunity
	query := fmt.Sprintf("SELECT %s FROM opportunities WHERE id = $1", opportunityColumns)
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find opportunity: %w", err)
	}
	return &item, nil
}

// CountOpen returns the number of open opportunities.
func (r *OpportunityRepository) CountOpen(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM opportunities WHERE status = $1`, models.OpportunityStatusOpen); err != nil {
		return 0, fmt.Errorf("count open opportunities: %w", err)
	}
	return total, nil
}

// Create inserts an opportunity.
func (r *OpportunityRepository) Create(ctx context.Context, item *models.Opportunity) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO opportunities (id, brand, title, description, total_spots, spots_filled, status, deadline, created_at, updated_at)
        VALUES (:id, :brand, :title, :description, :total_spots, :spots_filled, :status, :deadline, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create opportunity: %w", err)
	}
	return nil
}

// Update modifies the editable fields. spots_filled is owned by ReviewApplication.
func (r *OpportunityRepository) Update(ctx context.Context, item *models.Opportunity) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE opportunities SET brand = :brand, title = :title, description = :description, total_spots = :total_spots,
        status = :status, deadline = :deadline, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		return fmt.Errorf("update opportunity: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an opportunity and its applications.
func (r *OpportunityRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin opportunity delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM opportunity_applications WHERE opportunity_id = $1`, id); err != nil {
		return fmt.Errorf("delete opportunity applications: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM opportunities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete opportunity: %w", err)
	}
	if affected, rowsErr := res.RowsAffected(); rowsErr == nil && affected == 0 {
		err = sql.ErrNoRows
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit opportunity delete: %w", err)
	}
	return nil
}

// Apply records an application. An applicant may apply to an opportunity once.
func (r *OpportunityRepository) Apply(ctx context.Context, application *models.OpportunityApplication) error {
	if application.ID == "" {
		application.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	application.CreatedAt = now
	application.UpdatedAt = now
	if application.Status == "" {
		application.Status = models.ApplicationStatusPending
	}
	const query = `INSERT INTO opportunity_applications (id, opportunity_id, applicant_id, pitch, status, reviewed_by, created_at, updated_at)
        VALUES (:id, :opportunity_id, :applicant_id, :pitch, :status, :reviewed_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, application); err != nil {
		if isUniqueViolation(err, constraintApplicationUnique) {
			return ErrDuplicateApplication
		}
		return fmt.Errorf("create opportunity application: %w", err)
	}
	return nil
}

// ListApplications returns applications for an opportunity with applicant context.
func (r *OpportunityRepository) ListApplications(ctx context.Context, opportunityID string) ([]models.OpportunityApplicationDetail, error) {
	const query = `SELECT oa.id, oa.opportunity_id, oa.applicant_id, oa.pitch, oa.status, oa.reviewed_by, oa.created_at, oa.updated_at,
        a.first_name || ' ' || a.last_name AS applicant_name, a.email AS applicant_email
        FROM opportunity_applications oa
        JOIN applicants a ON a.id = oa.applicant_id
        WHERE oa.opportunity_id = $1
        ORDER BY oa.created_at ASC`
	var items []models.OpportunityApplicationDetail
	if err := r.db.SelectContext(ctx, &items, query, opportunityID); err != nil {
		return nil, fmt.Errorf("list opportunity applications: %w", err)
	}
	return items, nil
}

// ListApplicationsForApplicant returns one applicant's applications.
func (r *OpportunityRepository) ListApplicationsForApplicant(ctx context.Context, applicantID string) ([]models.OpportunityApplication, error) {
	const query = `SELECT id, opportunity_id, applicant_id, pitch, status, reviewed_by, created_at, updated_at
        FROM opportunity_applications WHERE applicant_id = $1 ORDER BY created_at DESC`
	var items []models.OpportunityApplication
	if err := r.db.SelectContext(ctx, &items, query, applicantID); err != nil {
		return nil, fmt.Errorf("list applicant applications: %w", err)
	}
	return items, nil
}

// ReviewApplication moves an application to status and keeps the
// opportunity's spots_filled in step within the same transaction.
func (r *OpportunityRepository) ReviewApplication(ctx context.Context, applicationID string, status models.ApplicationStatus, reviewerID string) (result *models.OpportunityApplication, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin application review: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var application models.OpportunityApplication
	const selectApp = `SELECT id, opportunity_id, applicant_id, pitch, status, reviewed_by, created_at, updated_at
        FROM opportunity_applications WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &application, selectApp, applicationID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock application: %w", err)
	}

	var spots struct {
		Total  int `db:"total_spots"`
		Filled int `db:"spots_filled"`
	}
	if err = tx.GetContext(ctx, &spots, `SELECT total_spots, spots_filled FROM opportunities WHERE id = $1 FOR UPDATE`, application.OpportunityID); err != nil {
		return nil, fmt.Errorf("lock opportunity: %w", err)
	}

	filled := spots.Filled
	wasApproved := application.Status == models.ApplicationStatusApproved
	nowApproved := status == models.ApplicationStatusApproved
	switch {
	case nowApproved && !wasApproved:
		if filled >= spots.Total {
			err = ErrOpportunityFull
			return nil, err
		}
		filled++
	case wasApproved && !nowApproved && filled > 0:
		filled--
	}

	now := time.Now().UTC()
	if filled != spots.Filled {
		if _, err = tx.ExecContext(ctx, `UPDATE opportunities SET spots_filled = $2, updated_at = $3 WHERE id = $1`, application.OpportunityID, filled, now); err != nil {
			return nil, fmt.Errorf("update spots filled: %w", err)
		}
	}
	if _, err = tx.ExecContext(ctx, `UPDATE opportunity_applications SET status = $2, reviewed_by = $3, updated_at = $4 WHERE id = $1`, applicationID, status, reviewerID, now); err != nil {
		return nil, fmt.Errorf("update application status: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit application review: %w", err)
	}

	application.Status = status
	application.ReviewedBy = &reviewerID
	application.UpdatedAt = now
	return &application, nil
}
