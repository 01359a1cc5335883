package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrDuplicateCompletion means the applicant already finished the challenge.
	ErrDuplicateCompletion = errors.New("challenge already completed by applicant")
	// ErrDuplicateReferralCode means a generated code collided with a stored one.
	ErrDuplicateReferralCode = errors.New("referral code already taken")
	// ErrDuplicateApplication means the applicant already applied to the opportunity.
	ErrDuplicateApplication = errors.New("opportunity application already exists")
	// ErrApplicantNotFound is returned by ledger writes against a missing applicant.
	ErrApplicantNotFound = errors.New("applicant not found")
	// ErrChallengeNotFound is returned when a completion names a removed challenge.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrOpportunityFull is returned when an approval would exceed total spots.
	ErrOpportunityFull = errors.New("opportunity is full")
	// ErrDuplicateSchool means a school with the same name and state exists.
	ErrDuplicateSchool = errors.New("school already exists")
	// ErrSchoolInUse blocks deleting a school applicants still reference.
	ErrSchoolInUse = errors.New("school has applicants")
	// ErrDuplicateAmbassadorType means the type name is taken.
	ErrDuplicateAmbassadorType = errors.New("ambassador type already exists")
	// ErrDuplicateEmail means a staff account already uses the address.
	ErrDuplicateEmail = errors.New("email already registered")
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"

	constraintCompletionUnique   = "challenge_completions_applicant_id_challenge_id_key"
	constraintReferralCodeUnique = "applicants_referral_code_key"
	constraintApplicationUnique  = "opportunity_applications_opportunity_id_applicant_id_key"

	constraintCompletionChallengeFK = "challenge_completions_challenge_id_fkey"
)

// isUniqueViolation reports whether err is a Postgres unique violation,
// optionally restricted to one constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if string(pqErr.Code) != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// isForeignKeyViolation mirrors isUniqueViolation for 23503.
func isForeignKeyViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != pqForeignKeyViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// expectRow maps a zero-row write to sql.ErrNoRows.
func expectRow(res sql.Result) error {
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
