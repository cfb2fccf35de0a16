package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-guardian/core"
	"github.com/trezcool/masomo-guardian/core/attendance"
	"github.com/trezcool/masomo-guardian/core/otp"
	"github.com/trezcool/masomo-guardian/core/user"
)

// RepoT0 is the reference time of the repository suites.
var RepoT0 = time.Date(2024, 3, 4, 7, 0, 0, 0, time.UTC)

// RunUserRepositoryTests runs the behaviour shared by every user.Repository on an empty repository.
func RunUserRepositoryTests(t *testing.T, repo user.Repository) {
	ctx := context.Background()
	newUser := func(name, email string) user.User {
		return user.User{
			ID:           uuid.NewString(),
			Name:         name,
			Email:        email,
			IsActive:     true,
			Roles:        []string{user.RoleParent},
			PasswordHash: []byte("hash"),
			CreatedAt:    RepoT0,
			UpdatedAt:    RepoT0,
		}
	}

	amani, err := repo.CreateUser(ctx, newUser("Amani", "amani@test.cd"))
	require.NoError(t, err)
	bahati, err := repo.CreateUser(ctx, newUser("Bahati", "bahati@test.cd"))
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, newUser("Other", "amani@test.cd"))
	assert.Equal(t, user.ErrEmailExists, err)

	got, err := repo.GetUserByEmail(ctx, "amani@test.cd")
	require.NoError(t, err)
	assert.Equal(t, amani.ID, got.ID)
	assert.Equal(t, []string{user.RoleParent}, got.Roles)
	assert.Equal(t, RepoT0, got.CreatedAt)
	assert.False(t, got.IsEmailVerified())

	got.Email = bahati.Email
	_, err = repo.UpdateUser(ctx, got)
	assert.Equal(t, user.ErrEmailExists, err)

	got.Email = amani.Email
	got.Name = "Amani K."
	got.EmailVerifiedAt = RepoT0.Add(time.Hour)
	got.LastLogin = RepoT0.Add(2 * time.Hour)
	_, err = repo.UpdateUser(ctx, got)
	require.NoError(t, err)

	got, err = repo.GetUserByID(ctx, amani.ID)
	require.NoError(t, err)
	assert.Equal(t, "Amani K.", got.Name)
	assert.Equal(t, RepoT0.Add(time.Hour), got.EmailVerifiedAt)
	assert.Equal(t, RepoT0.Add(2*time.Hour), got.LastLogin)

	_, err = repo.UpdateUser(ctx, newUser("Ghost", "ghost@test.cd"))
	assert.Equal(t, user.ErrNotFound, err)
	_, err = repo.GetUserByID(ctx, uuid.NewString())
	assert.Equal(t, user.ErrNotFound, err)
	_, err = repo.GetUserByEmail(ctx, "ghost@test.cd")
	assert.Equal(t, user.ErrNotFound, err)
}

// RunOTPRepositoryTests runs the behaviour shared by every otp.Repository on an empty repository.
// Challenges belong to users created through users.
func RunOTPRepositoryTests(t *testing.T, repo otp.Repository, users user.Repository) {
	ctx := context.Background()
	u1 := CreateUser(t, users, "Mwalimu", "teacher@test.cd", "Passw0rd!", []string{user.RoleTeacher}, time.Time{})
	u2 := CreateUser(t, users, "Principal", "principal@test.cd", "Passw0rd!", []string{user.RoleAdminPrincipal}, time.Time{})

	newChallenge := func(userID string, createdAt time.Time) otp.Challenge {
		return otp.Challenge{
			ID:        uuid.NewString(),
			UserID:    userID,
			Code:      "123456",
			CodeHash:  []byte("hash-" + userID),
			CreatedAt: createdAt,
			ExpiresAt: createdAt.Add(otp.DefaultTTL),
		}
	}

	_, err := repo.GetLatestPendingChallenge(ctx, u1.ID)
	assert.Equal(t, otp.ErrNotFound, err)

	c1, err := repo.CreateChallenge(ctx, newChallenge(u1.ID, RepoT0))
	require.NoError(t, err)
	assert.Empty(t, c1.Code)

	// at most one pending challenge per user
	_, err = repo.CreateChallenge(ctx, newChallenge(u1.ID, RepoT0.Add(time.Second)))
	assert.Equal(t, otp.ErrPendingExists, err)

	latest, err := repo.GetLatestPendingChallenge(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, latest.ID)
	assert.Equal(t, c1.CodeHash, latest.CodeHash)
	assert.Equal(t, RepoT0.Add(otp.DefaultTTL), latest.ExpiresAt)
	assert.Empty(t, latest.Code)
	assert.True(t, latest.IsPending())

	n, err := repo.RecordFailedAttempt(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = repo.RecordFailedAttempt(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = repo.RecordFailedAttempt(ctx, uuid.NewString())
	assert.Equal(t, otp.ErrNotFound, err)

	invalidated, err := repo.InvalidatePendingChallenges(ctx, u1.ID, RepoT0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), invalidated)
	_, err = repo.GetLatestPendingChallenge(ctx, u1.ID)
	assert.Equal(t, otp.ErrNotFound, err)
	assert.Equal(t, otp.ErrNotFound, repo.MarkChallengeVerified(ctx, c1.ID, RepoT0.Add(time.Minute)))

	c2, err := repo.CreateChallenge(ctx, newChallenge(u1.ID, RepoT0.Add(time.Minute)))
	require.NoError(t, err)
	c3, err := repo.CreateChallenge(ctx, newChallenge(u2.ID, RepoT0.Add(2*time.Minute)))
	require.NoError(t, err)

	latest, err = repo.GetLatestPendingChallenge(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, c2.ID, latest.ID)
	assert.Zero(t, latest.Attempts)

	// verified exactly once
	require.NoError(t, repo.MarkChallengeVerified(ctx, c2.ID, RepoT0.Add(3*time.Minute)))
	assert.Equal(t, otp.ErrNotFound, repo.MarkChallengeVerified(ctx, c2.ID, RepoT0.Add(4*time.Minute)))
	_, err = repo.GetLatestPendingChallenge(ctx, u1.ID)
	assert.Equal(t, otp.ErrNotFound, err)

	require.NoError(t, repo.InvalidateChallenge(ctx, c3.ID, RepoT0.Add(5*time.Minute)))
	require.NoError(t, repo.InvalidateChallenge(ctx, c3.ID, RepoT0.Add(6*time.Minute)))
	assert.Equal(t, otp.ErrNotFound, repo.InvalidateChallenge(ctx, uuid.NewString(), RepoT0))
	assert.Equal(t, otp.ErrNotFound, repo.MarkChallengeVerified(ctx, c3.ID, RepoT0.Add(7*time.Minute)))

	deleted, err := repo.DeleteChallengesCreatedBefore(ctx, RepoT0.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	deleted, err = repo.DeleteChallengesCreatedBefore(ctx, RepoT0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

// RunAttendanceRepositoryTests runs the behaviour shared by every attendance.Repository on an empty repository.
func RunAttendanceRepositoryTests(t *testing.T, repo attendance.Repository) {
	ctx := context.Background()
	day := attendance.Day(RepoT0)

	_, err := repo.GetRecord(ctx, "amani", day)
	assert.Equal(t, attendance.ErrNotFound, err)

	// stale version on a missing record
	_, err = repo.SetStaffMark(ctx, "amani", day, attendance.StaffMark{Status: attendance.Absent, MarkedAt: RepoT0}, 1)
	assert.Equal(t, attendance.ErrConflict, err)

	rec, err := repo.SetGuardianReport(ctx, "amani", RepoT0, attendance.GuardianReport{
		Status: attendance.Departed, Reason: "bus", ReportedAt: RepoT0, ReportedBy: "u1",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, day, rec.Date)
	assert.Equal(t, RepoT0, rec.UpdatedAt)
	assert.Nil(t, rec.Staff)

	rec, err = repo.SetStaffMark(ctx, "amani", day, attendance.StaffMark{
		Status: attendance.Absent, MarkedAt: RepoT0.Add(2 * time.Hour), MarkedBy: "u2",
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Version)
	assert.Equal(t, attendance.SignalMismatch, rec.Signal())
	require.NotNil(t, rec.Guardian, "a staff write keeps the guardian side")
	assert.Equal(t, "bus", rec.Guardian.Reason)

	_, err = repo.SetStaffMark(ctx, "amani", day, attendance.StaffMark{Status: attendance.Present, MarkedAt: RepoT0.Add(3 * time.Hour)}, 1)
	assert.Equal(t, attendance.ErrConflict, err)

	// last write wins
	rec, err = repo.SetStaffMark(ctx, "amani", day, attendance.StaffMark{
		Status: attendance.Present, MarkedAt: RepoT0.Add(3 * time.Hour), MarkedBy: "u2",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Version)

	rec, err = repo.GetRecord(ctx, "amani", RepoT0.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, &attendance.GuardianReport{
		Status: attendance.Departed, Reason: "bus", ReportedAt: RepoT0, ReportedBy: "u1",
	}, rec.Guardian)
	assert.Equal(t, &attendance.StaffMark{
		Status: attendance.Present, MarkedAt: RepoT0.Add(3 * time.Hour), MarkedBy: "u2",
	}, rec.Staff)
	assert.Equal(t, attendance.SignalOK, rec.Signal())
	assert.Equal(t, RepoT0.Add(3*time.Hour), rec.UpdatedAt)

	_, err = repo.SetStaffMark(ctx, "bahati", day, attendance.StaffMark{Status: attendance.Present, MarkedAt: RepoT0.Add(time.Hour)}, 0)
	require.NoError(t, err)
	_, err = repo.SetStaffMark(ctx, "carine", day, attendance.StaffMark{Status: attendance.Present, MarkedAt: RepoT0.Add(4 * time.Hour)}, 0)
	require.NoError(t, err)
	_, err = repo.SetStaffMark(ctx, "amani", day.AddDate(0, 0, 1), attendance.StaffMark{Status: attendance.Present, MarkedAt: RepoT0.Add(24 * time.Hour)}, 0)
	require.NoError(t, err)

	ids := func(recs []attendance.Record) []string {
		res := make([]string, 0, len(recs))
		for _, r := range recs {
			res = append(res, r.SubjectID)
		}
		return res
	}

	recs, err := repo.QueryRecords(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, []string{"amani", "bahati", "carine"}, ids(recs))

	recs, err = repo.QueryRecords(ctx, day, core.DBOrdering{Field: "updated_at"})
	require.NoError(t, err)
	assert.Equal(t, []string{"carine", "amani", "bahati"}, ids(recs))

	recs, err = repo.QueryRecords(ctx, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Empty(t, recs)
}
