package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-guardian/core/otp"
)

const challengeColumns = `id, user_id, code_hash, created_at, expires_at, verified, verified_at, attempts, invalidated_at`

type challengeRow struct {
	ID            string    `db:"id"`
	UserID        string    `db:"user_id"`
	CodeHash      []byte    `db:"code_hash"`
	CreatedAt     time.Time `db:"created_at"`
	ExpiresAt     time.Time `db:"expires_at"`
	Verified      bool      `db:"verified"`
	VerifiedAt    null.Time `db:"verified_at"`
	Attempts      int       `db:"attempts"`
	InvalidatedAt null.Time `db:"invalidated_at"`
}

func (r challengeRow) toChallenge() otp.Challenge {
	return otp.Challenge{
		ID:            r.ID,
		UserID:        r.UserID,
		CodeHash:      r.CodeHash,
		CreatedAt:     r.CreatedAt.UTC(),
		ExpiresAt:     r.ExpiresAt.UTC(),
		Verified:      r.Verified,
		VerifiedAt:    timeOrZero(r.VerifiedAt),
		Attempts:      r.Attempts,
		InvalidatedAt: timeOrZero(r.InvalidatedAt),
	}
}

type otpRepository struct {
	db *sqlx.DB
}

var _ otp.Repository = (*otpRepository)(nil) // interface compliance check

func NewOTPRepository(db *sqlx.DB) otp.Repository {
	return &otpRepository{db: db}
}

func (repo *otpRepository) CreateChallenge(ctx context.Context, ch otp.Challenge) (otp.Challenge, error) {
	row := challengeRow{
		ID:            ch.ID,
		UserID:        ch.UserID,
		CodeHash:      ch.CodeHash,
		CreatedAt:     ch.CreatedAt,
		ExpiresAt:     ch.ExpiresAt,
		Verified:      ch.Verified,
		VerifiedAt:    nullTime(ch.VerifiedAt),
		Attempts:      ch.Attempts,
		InvalidatedAt: nullTime(ch.InvalidatedAt),
	}
	q := `INSERT INTO otp_challenges (` + challengeColumns + `)
		VALUES (:id, :user_id, :code_hash, :created_at, :expires_at, :verified, :verified_at, :attempts, :invalidated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		if isUniqueViolation(err) {
			return otp.Challenge{}, otp.ErrPendingExists
		}
		return otp.Challenge{}, errors.Wrap(err, "inserting challenge")
	}
	ch.Code = ""
	return ch, nil
}

func (repo *otpRepository) GetLatestPendingChallenge(ctx context.Context, userID string) (otp.Challenge, error) {
	var row challengeRow
	q := `SELECT ` + challengeColumns + ` FROM otp_challenges
		WHERE user_id = $1 AND NOT verified AND invalidated_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`
	if err := repo.db.GetContext(ctx, &row, q, userID); err != nil {
		if err == sql.ErrNoRows {
			return otp.Challenge{}, otp.ErrNotFound
		}
		return otp.Challenge{}, errors.Wrap(err, "selecting challenge")
	}
	return row.toChallenge(), nil
}

func (repo *otpRepository) InvalidatePendingChallenges(ctx context.Context, userID string, at time.Time) (int64, error) {
	q := `UPDATE otp_challenges SET invalidated_at = $2
		WHERE user_id = $1 AND NOT verified AND invalidated_at IS NULL`
	res, err := repo.db.ExecContext(ctx, q, userID, at)
	if err != nil {
		return 0, errors.Wrap(err, "invalidating challenges")
	}
	return res.RowsAffected()
}

func (repo *otpRepository) RecordFailedAttempt(ctx context.Context, id string) (int, error) {
	var attempts int
	q := `UPDATE otp_challenges SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`
	if err := repo.db.GetContext(ctx, &attempts, q, id); err != nil {
		if err == sql.ErrNoRows {
			return 0, otp.ErrNotFound
		}
		return 0, errors.Wrap(err, "recording failed attempt")
	}
	return attempts, nil
}

func (repo *otpRepository) InvalidateChallenge(ctx context.Context, id string, at time.Time) error {
	q := `UPDATE otp_challenges SET invalidated_at = COALESCE(invalidated_at, $2) WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, q, id, at)
	if err != nil {
		return errors.Wrap(err, "invalidating challenge")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return otp.ErrNotFound
	}
	return nil
}

// MarkChallengeVerified only matches a pending challenge, so concurrent verifications succeed once.
func (repo *otpRepository) MarkChallengeVerified(ctx context.Context, id string, at time.Time) error {
	q := `UPDATE otp_challenges SET verified = TRUE, verified_at = $2
		WHERE id = $1 AND NOT verified AND invalidated_at IS NULL`
	res, err := repo.db.ExecContext(ctx, q, id, at)
	if err != nil {
		return errors.Wrap(err, "verifying challenge")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "verifying challenge")
	}
	if n == 0 {
		return otp.ErrNotFound
	}
	return nil
}

func (repo *otpRepository) DeleteChallengesCreatedBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM otp_challenges WHERE created_at < $1`, before)
	if err != nil {
		return 0, errors.Wrap(err, "deleting challenges")
	}
	return res.RowsAffected()
}
