package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/waitlist"
)

const challengeColumns = `id, title, description, points, action_url, active, sort_order, created_at, updated_at`

// ChallengeRepository persists boost challenges and their completions.
type ChallengeRepository struct {
	db *sqlx.DB
}

// NewChallengeRepository constructs a ChallengeRepository.
func NewChallengeRepository(db *sqlx.DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

// List returns challenges in display order.
func (r *ChallengeRepository) List(ctx context.Context, activeOnly bool) ([]models.Challenge, error) {
	query := fmt.Sprintf("SELECT %s FROM challenges", challengeColumns)
	if activeOnly {
		query += " WHERE active = TRUE"
	}
	query += " ORDER BY sort_order ASC, created_at ASC"
	var challenges []models.Challenge
	if err := r.db.SelectContext(ctx, &challenges, query); err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	return challenges, nil
}

// FindByID fetches a challenge.
func (r *ChallengeRepository) FindByID(ctx context.Context, id string) (*models.Challenge, error) {
	var challenge models.Challenge
	query := fmt.Sprintf("SELECT %s FROM challenges WHERE id = $1", challengeColumns)
	if err := r.db.GetContext(ctx, &challenge, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find challenge: %w", err)
	}
	return &challenge, nil
}

// Create inserts a challenge.
func (r *ChallengeRepository) Create(ctx context.Context, challenge *models.Challenge) error {
	if challenge.ID == "" {
		challenge.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	challenge.CreatedAt = now
	challenge.UpdatedAt = now
	const query = `INSERT INTO challenges (id, title, description, points, action_url, active, sort_order, created_at, updated_at)
        VALUES (:id, :title, :description, :points, :action_url, :active, :sort_order, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, challenge); err != nil {
		return fmt.Errorf("create challenge: %w", err)
	}
	return nil
}

// Update modifies a challenge.
func (r *ChallengeRepository) Update(ctx context.Context, challenge *models.Challenge) error {
	challenge.UpdatedAt = time.Now().UTC()
	const query = `UPDATE challenges SET title = :title, description = :description, points = :points, action_url = :action_url,
        active = :active, sort_order = :sort_order, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, challenge)
	if err != nil {
		return fmt.Errorf("update challenge: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a challenge. Challenges with completions are deactivated
// instead so past point awards stay traceable.
func (r *ChallengeRepository) Delete(ctx context.Context, id string) (deactivated bool, err error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM challenges WHERE id = $1`, id)
	if err != nil {
		if !isForeignKeyViolation(err, "") {
			return false, fmt.Errorf("delete challenge: %w", err)
		}
		res, err = r.db.ExecContext(ctx, `UPDATE challenges SET active = FALSE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
		if err != nil {
			return false, fmt.Errorf("deactivate challenge: %w", err)
		}
		deactivated = true
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return false, sql.ErrNoRows
	}
	return deactivated, nil
}

// ListBoosts returns active challenges annotated with the applicant's completion state.
func (r *ChallengeRepository) ListBoosts(ctx context.Context, applicantID string) ([]models.Boost, error) {
	const query = `SELECT c.id, c.title, c.description, c.points, c.action_url, c.active, c.sort_order, c.created_at, c.updated_at,
        (cc.id IS NOT NULL) AS completed, cc.completed_at
        FROM challenges c
        LEFT JOIN challenge_completions cc ON cc.challenge_id = c.id AND cc.applicant_id = $1
        WHERE c.active = TRUE
        ORDER BY c.sort_order ASC, c.created_at ASC`
	var boosts []models.Boost
	if err := r.db.SelectContext(ctx, &boosts, query, applicantID); err != nil {
		return nil, fmt.Errorf("list boosts: %w", err)
	}
	return boosts, nil
}

// CountCompletions returns the number of recorded completions.
func (r *ChallengeRepository) CountCompletions(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM challenge_completions`); err != nil {
		return 0, fmt.Errorf("count completions: %w", err)
	}
	return total, nil
}

// CompleteChallenge records the completion and credits its points in one
// transaction. A second completion of the same challenge by the same
// applicant fails with ErrDuplicateCompletion and leaves points untouched.
func (r *ChallengeRepository) CompleteChallenge(ctx context.Context, completion *models.ChallengeCompletion, ledger LedgerFunc) (result waitlist.Ledger, err error) {
	if completion.ID == "" {
		completion.ID = uuid.NewString()
	}
	if completion.CompletedAt.IsZero() {
		completion.CompletedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return waitlist.Ledger{}, fmt.Errorf("begin completion transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insert = `INSERT INTO challenge_completions (id, applicant_id, challenge_id, points_awarded, completed_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.ExecContext(ctx, insert, completion.ID, completion.ApplicantID, completion.ChallengeID, completion.PointsAwarded, completion.CompletedAt); err != nil {
		switch {
		case isUniqueViolation(err, constraintCompletionUnique):
			err = ErrDuplicateCompletion
		case isForeignKeyViolation(err, constraintCompletionChallengeFK):
			err = ErrChallengeNotFound
		case isForeignKeyViolation(err, ""):
			err = ErrApplicantNotFound
		default:
			err = fmt.Errorf("insert completion: %w", err)
		}
		return waitlist.Ledger{}, err
	}

	if result, err = applyLedgerTx(ctx, tx, completion.ApplicantID, completion.PointsAwarded, ledger); err != nil {
		return waitlist.Ledger{}, err
	}
	if err = tx.Commit(); err != nil {
		return waitlist.Ledger{}, fmt.Errorf("commit completion: %w", err)
	}
	return result, nil
}
