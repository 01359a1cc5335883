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

const ambassadorTypeColumns = `id, name, description, weight, active, created_at, updated_at`

// AmbassadorTypeRepository persists the weighted type catalogue.
type AmbassadorTypeRepository struct {
	db *sqlx.DB
}

// NewAmbassadorTypeRepository constructs an AmbassadorTypeRepository.
func NewAmbassadorTypeRepository(db *sqlx.DB) *AmbassadorTypeRepository {
	return &AmbassadorTypeRepository{db: db}
}

// List returns all types, optionally only active ones.
func (r *AmbassadorTypeRepository) List(ctx context.Context, activeOnly bool) ([]models.AmbassadorType, error) {
	query := fmt.Sprintf("SELECT %s FROM ambassador_types", ambassadorTypeColumns)
	if activeOnly {
		query += " WHERE active = TRUE"
	}
	query += " ORDER BY name ASC"
	var types []models.AmbassadorType
	if err := r.db.SelectContext(ctx, &types, query); err != nil {
		return nil, fmt.Errorf("list ambassador types: %w", err)
	}
	return types, nil
}

// FindByID fetches one type.
func (r *AmbassadorTypeRepository) FindByID(ctx context.Context, id string) (*models.AmbassadorType, error) {
	var item models.AmbassadorType
	query := fmt.Sprintf("SELECT %s FROM ambassador_types WHERE id = $1", ambassadorTypeColumns)
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find ambassador type: %w", err)
	}
	return &item, nil
}

// Create inserts a type.
func (r *AmbassadorTypeRepository) Create(ctx context.Context, item *models.AmbassadorType) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO ambassador_types (id, name, description, weight, active, created_at, updated_at)
        VALUES (:id, :name, :description, :weight, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		if isUniqueViolation(err, "") {
			return ErrDuplicateAmbassadorType
		}
		return fmt.Errorf("create ambassador type: %w", err)
	}
	return nil
}

// Update modifies a type.
func (r *AmbassadorTypeRepository) Update(ctx context.Context, item *models.AmbassadorType) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE ambassador_types SET name = :name, description = :description, weight = :weight, active = :active, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrDuplicateAmbassadorType
		}
		return fmt.Errorf("update ambassador type: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a type. Applicants keep the assigned name.
func (r *AmbassadorTypeRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ambassador_types WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ambassador type: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
