package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/waitlist"
)

// LedgerFunc turns a current total and a delta into the new ledger state.
// waitlist.Config.ApplyPoints satisfies it.
type LedgerFunc func(current, delta int) (waitlist.Ledger, error)

// PositionFunc maps a point total to a waitlist position.
type PositionFunc func(points int) int

const applicantColumns = `a.id, a.school_id, a.first_name, a.last_name, a.email, a.phone, a.age_eligible, a.instagram_handle, a.tiktok_handle,
        a.follower_count, a.personality_type, a.interests, a.scenes, a.household_size, a.content_uploaded, a.content_urls, a.ambassador_type,
        a.score, a.points, a.waitlist_position, a.referral_code, a.referred_by, a.status, a.created_at, a.updated_at`

// ApplicantRepository manages persistence for applicants and their point ledger.
type ApplicantRepository struct {
	db *sqlx.DB
}

// NewApplicantRepository constructs an ApplicantRepository.
func NewApplicantRepository(db *sqlx.DB) *ApplicantRepository {
	return &ApplicantRepository{db: db}
}

// List returns applicants matching the filter with the total count.
func (r *ApplicantRepository) List(ctx context.Context, filter models.ApplicantFilter) ([]models.ApplicantDetail, int, error) {
	base := "FROM applicants a LEFT JOIN schools s ON s.id = a.school_id"
	var args []interface{}
	conditions := []string{"1=1"}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("a.school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.AmbassadorType != "" {
		conditions = append(conditions, fmt.Sprintf("a.ambassador_type = $%d", len(args)+1))
		args = append(args, filter.AmbassadorType)
	}
	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(a.first_name || ' ' || a.last_name) LIKE $%d OR LOWER(a.email) LIKE $%d OR LOWER(a.instagram_handle) LIKE $%d)", idx, idx, idx))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"created_at":        "a.created_at",
		"points":            "a.points",
		"waitlist_position": "a.waitlist_position",
		"last_name":         "a.last_name",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "a.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s, s.name AS school_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, applicantColumns, base, column, order, size, offset)

	var applicants []models.ApplicantDetail
	if err := r.db.SelectContext(ctx, &applicants, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applicants: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count applicants: %w", err)
	}
	return applicants, total, nil
}

// FindByID fetches an applicant with school context.
func (r *ApplicantRepository) FindByID(ctx context.Context, id string) (*models.ApplicantDetail, error) {
	query := fmt.Sprintf(`SELECT %s, s.name AS school_name
        FROM applicants a LEFT JOIN schools s ON s.id = a.school_id
        WHERE a.id = $1`, applicantColumns)
	var detail models.ApplicantDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find applicant: %w", err)
	}
	return &detail, nil
}

// FindByReferralCode resolves the owner of a referral code.
func (r *ApplicantRepository) FindByReferralCode(ctx context.Context, code string) (*models.Applicant, error) {
	query := fmt.Sprintf(`SELECT %s FROM applicants a WHERE a.referral_code = $1 LIMIT 1`, applicantColumns)
	var applicant models.Applicant
	if err := r.db.GetContext(ctx, &applicant, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find applicant by referral code: %w", err)
	}
	return &applicant, nil
}

// FindByEmailAndReferralCode is used to re-issue portal sessions.
func (r *ApplicantRepository) FindByEmailAndReferralCode(ctx context.Context, email, code string) (*models.Applicant, error) {
	query := fmt.Sprintf(`SELECT %s FROM applicants a WHERE LOWER(a.email) = LOWER($1) AND a.referral_code = $2 LIMIT 1`, applicantColumns)
	var applicant models.Applicant
	if err := r.db.GetContext(ctx, &applicant, query, email, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find applicant session: %w", err)
	}
	return &applicant, nil
}

// Create inserts a new applicant. The insert is idempotent on id: when a
// row with the same id already exists nothing is written and created is false.
func (r *ApplicantRepository) Create(ctx context.Context, applicant *models.Applicant) (created bool, err error) {
	if applicant.ID == "" {
		applicant.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if applicant.CreatedAt.IsZero() {
		applicant.CreatedAt = now
	}
	applicant.UpdatedAt = now
	const query = `INSERT INTO applicants (id, school_id, first_name, last_name, email, phone, age_eligible, instagram_handle, tiktok_handle,
        follower_count, personality_type, interests, scenes, household_size, content_uploaded, content_urls, ambassador_type,
        score, points, waitlist_position, referral_code, referred_by, status, created_at, updated_at)
        VALUES (:id, :school_id, :first_name, :last_name, :email, :phone, :age_eligible, :instagram_handle, :tiktok_handle,
        :follower_count, :personality_type, :interests, :scenes, :household_size, :content_uploaded, :content_urls, :ambassador_type,
        :score, :points, :waitlist_position, :referral_code, :referred_by, :status, :created_at, :updated_at)
        ON CONFLICT (id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, applicant)
	if err != nil {
		if isUniqueViolation(err, constraintReferralCodeUnique) {
			return false, ErrDuplicateReferralCode
		}
		return false, fmt.Errorf("create applicant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create applicant rows: %w", err)
	}
	return affected > 0, nil
}

// UpdateStatus moves every listed applicant to status and returns the ids
// that actually changed.
func (r *ApplicantRepository) UpdateStatus(ctx context.Context, ids []string, status models.ApplicantStatus) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`UPDATE applicants SET status = ?, updated_at = ? WHERE id IN (?) AND status <> ? RETURNING id`, status, time.Now().UTC(), ids, status)
	if err != nil {
		return nil, fmt.Errorf("build status update: %w", err)
	}
	var changed []string
	if err := r.db.SelectContext(ctx, &changed, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("update applicant status: %w", err)
	}
	return changed, nil
}

// OverridePosition sets the waitlist position directly.
func (r *ApplicantRepository) OverridePosition(ctx context.Context, id string, position int) error {
	const query = `UPDATE applicants SET waitlist_position = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, position, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("override waitlist position: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteMany removes applicants and their dependent rows.
func (r *ApplicantRepository) DeleteMany(ctx context.Context, ids []string) (deleted int64, err error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin applicant delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		`DELETE FROM challenge_completions WHERE applicant_id IN (?)`,
		`DELETE FROM opportunity_applications WHERE applicant_id IN (?)`,
	} {
		query, args, buildErr := sqlx.In(stmt, ids)
		if buildErr != nil {
			err = fmt.Errorf("build dependent delete: %w", buildErr)
			return 0, err
		}
		if _, err = tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return 0, fmt.Errorf("delete applicant dependents: %w", err)
		}
	}

	query, args, err := sqlx.In(`DELETE FROM applicants WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("build applicant delete: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete applicants: %w", err)
	}
	deleted, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete applicants rows: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit applicant delete: %w", err)
	}
	return deleted, nil
}

// ApplyPoints adds delta to the applicant's total and stores the derived
// position. The row is locked for the duration of the transaction so
// concurrent additions serialise instead of overwriting each other.
func (r *ApplicantRepository) ApplyPoints(ctx context.Context, id string, delta int, ledger LedgerFunc) (result waitlist.Ledger, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return waitlist.Ledger{}, fmt.Errorf("begin points transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if result, err = applyLedgerTx(ctx, tx, id, delta, ledger); err != nil {
		return waitlist.Ledger{}, err
	}
	if err = tx.Commit(); err != nil {
		return waitlist.Ledger{}, fmt.Errorf("commit points transaction: %w", err)
	}
	return result, nil
}

// RecalculatePoints rebuilds the total from the intake score, completed
// challenges and referral bonuses. Running it twice yields the same total.
func (r *ApplicantRepository) RecalculatePoints(ctx context.Context, id string, referralBonus int, position PositionFunc) (result waitlist.Ledger, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return waitlist.Ledger{}, fmt.Errorf("begin recalculation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current struct {
		Score        int    `db:"score"`
		ReferralCode string `db:"referral_code"`
	}
	if err = tx.GetContext(ctx, &current, `SELECT score, referral_code FROM applicants WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			err = ErrApplicantNotFound
			return waitlist.Ledger{}, err
		}
		return waitlist.Ledger{}, fmt.Errorf("lock applicant: %w", err)
	}

	var earned int
	if err = tx.GetContext(ctx, &earned, `SELECT COALESCE(SUM(points_awarded), 0) FROM challenge_completions WHERE applicant_id = $1`, id); err != nil {
		return waitlist.Ledger{}, fmt.Errorf("sum completions: %w", err)
	}
	var referrals int
	if err = tx.GetContext(ctx, &referrals, `SELECT COUNT(*) FROM applicants WHERE referred_by = $1`, current.ReferralCode); err != nil {
		return waitlist.Ledger{}, fmt.Errorf("count referrals: %w", err)
	}

	total := current.Score + earned + referrals*referralBonus
	result = waitlist.Ledger{Total: total, Position: position(total)}
	if err = writeLedgerTx(ctx, tx, id, result); err != nil {
		return waitlist.Ledger{}, err
	}
	if err = tx.Commit(); err != nil {
		return waitlist.Ledger{}, fmt.Errorf("commit recalculation: %w", err)
	}
	return result, nil
}

// Leaderboard returns the top applicants by points.
func (r *ApplicantRepository) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	const query = `SELECT a.id, a.first_name || ' ' || LEFT(a.last_name, 1) AS display_name, COALESCE(s.name, '') AS school_name, a.points, a.waitlist_position
        FROM applicants a LEFT JOIN schools s ON s.id = a.school_id
        WHERE a.status <> $1
        ORDER BY a.points DESC, a.created_at ASC LIMIT $2`
	var entries []models.LeaderboardEntry
	if err := r.db.SelectContext(ctx, &entries, query, models.ApplicantStatusRejected, limit); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// Count returns the number of applicants.
func (r *ApplicantRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM applicants`); err != nil {
		return 0, fmt.Errorf("count applicants: %w", err)
	}
	return total, nil
}

// CountByStatus tallies applicants per status.
func (r *ApplicantRepository) CountByStatus(ctx context.Context) ([]models.DashboardCount, error) {
	return r.tally(ctx, "count by status", `SELECT status AS label, COUNT(*) AS count FROM applicants GROUP BY status ORDER BY count DESC`)
}

// CountByAmbassadorType tallies applicants per assigned type.
func (r *ApplicantRepository) CountByAmbassadorType(ctx context.Context) ([]models.DashboardCount, error) {
	return r.tally(ctx, "count by ambassador type", `SELECT ambassador_type AS label, COUNT(*) AS count FROM applicants GROUP BY ambassador_type ORDER BY count DESC`)
}

// TopSchools returns the schools with the most applicants.
func (r *ApplicantRepository) TopSchools(ctx context.Context, limit int) ([]models.DashboardCount, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.tally(ctx, "top schools", `SELECT COALESCE(s.name, 'unknown') AS label, COUNT(*) AS count
        FROM applicants a LEFT JOIN schools s ON s.id = a.school_id
        GROUP BY s.name ORDER BY count DESC LIMIT $1`, limit)
}

func (r *ApplicantRepository) tally(ctx context.Context, label, query string, args ...interface{}) ([]models.DashboardCount, error) {
	var counts []models.DashboardCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return counts, nil
}

func applyLedgerTx(ctx context.Context, tx *sqlx.Tx, id string, delta int, ledger LedgerFunc) (waitlist.Ledger, error) {
	var current int
	if err := tx.GetContext(ctx, &current, `SELECT points FROM applicants WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return waitlist.Ledger{}, ErrApplicantNotFound
		}
		return waitlist.Ledger{}, fmt.Errorf("lock applicant points: %w", err)
	}
	result, err := ledger(current, delta)
	if err != nil {
		return waitlist.Ledger{}, err
	}
	if err := writeLedgerTx(ctx, tx, id, result); err != nil {
		return waitlist.Ledger{}, err
	}
	return result, nil
}

func writeLedgerTx(ctx context.Context, tx *sqlx.Tx, id string, ledger waitlist.Ledger) error {
	const query = `UPDATE applicants SET points = $2, waitlist_position = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, ledger.Total, ledger.Position, time.Now().UTC()); err != nil {
		return fmt.Errorf("write applicant points: %w", err)
	}
	return nil
}
