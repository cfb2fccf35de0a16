package dummydb

import (
	"context"
	"time"

	"github.com/trezcool/masomo-guardian/core/otp"
)

type otpRepository struct {
	db *otpTable
}

var _ otp.Repository = (*otpRepository)(nil) // interface compliance check

func NewOTPRepository(db *DB) otp.Repository {
	return &otpRepository{db: db.otp}
}

func (repo *otpRepository) find(id string) *otp.Challenge {
	for _, ch := range repo.db.table {
		if ch.ID == id {
			return ch
		}
	}
	return nil
}

func (repo *otpRepository) CreateChallenge(_ context.Context, ch otp.Challenge) (otp.Challenge, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, c := range repo.db.table {
		if c.UserID == ch.UserID && c.IsPending() {
			return otp.Challenge{}, otp.ErrPendingExists
		}
	}
	ch.Code = "" // never stored
	ch.CodeHash = append([]byte(nil), ch.CodeHash...)
	repo.db.table = append(repo.db.table, &ch)
	return ch, nil
}

func (repo *otpRepository) GetLatestPendingChallenge(_ context.Context, userID string) (otp.Challenge, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var latest *otp.Challenge
	for _, ch := range repo.db.table {
		if ch.UserID != userID || !ch.IsPending() {
			continue
		}
		// ties are broken by insertion order
		if latest == nil || !ch.CreatedAt.Before(latest.CreatedAt) {
			latest = ch
		}
	}
	if latest == nil {
		return otp.Challenge{}, otp.ErrNotFound
	}
	return *latest, nil
}

func (repo *otpRepository) InvalidatePendingChallenges(_ context.Context, userID string, at time.Time) (int64, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var n int64
	for _, ch := range repo.db.table {
		if ch.UserID == userID && ch.IsPending() {
			ch.InvalidatedAt = at
			n++
		}
	}
	return n, nil
}

func (repo *otpRepository) RecordFailedAttempt(_ context.Context, id string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ch := repo.find(id)
	if ch == nil {
		return 0, otp.ErrNotFound
	}
	ch.Attempts++
	return ch.Attempts, nil
}

func (repo *otpRepository) InvalidateChallenge(_ context.Context, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	ch := repo.find(id)
	if ch == nil {
		return otp.ErrNotFound
	}
	if ch.InvalidatedAt.IsZero() {
		ch.InvalidatedAt = at
	}
	return nil
}

func (repo *otpRepository) MarkChallengeVerified(_ context.Context, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	ch := repo.find(id)
	if ch == nil || !ch.IsPending() {
		return otp.ErrNotFound
	}
	ch.Verified = true
	ch.VerifiedAt = at
	return nil
}

func (repo *otpRepository) DeleteChallengesCreatedBefore(_ context.Context, before time.Time) (int64, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	kept := repo.db.table[:0]
	var n int64
	for _, ch := range repo.db.table {
		if ch.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, ch)
	}
	repo.db.table = kept
	return n, nil
}
