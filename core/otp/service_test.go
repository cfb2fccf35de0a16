package otp_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-guardian/core"
	"github.com/trezcool/masomo-guardian/core/otp"
	"github.com/trezcool/masomo-guardian/core/user"
	emailsvc "github.com/trezcool/masomo-guardian/services/email"
	eventsvc "github.com/trezcool/masomo-guardian/services/events"
	metricsvc "github.com/trezcool/masomo-guardian/services/metrics"
	"github.com/trezcool/masomo-guardian/services/throttle"
	dummydb "github.com/trezcool/masomo-guardian/storage/database/dummy"
	apptest "github.com/trezcool/masomo-guardian/tests"
)

var t0 = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

type otpEnv struct {
	svc     *otp.Service
	repo    otp.Repository
	usrRepo user.Repository
	events  *eventsvc.LogPublisher
	metrics *metricsvc.Prometheus
	usr     user.User
	now     time.Time
}

func (env *otpEnv) advance(d time.Duration) { env.now = env.now.Add(d) }

func setup(t *testing.T, configure ...func(conf *core.Config)) *otpEnv {
	conf := core.NewTestConfig()
	for _, fn := range configure {
		fn(conf)
	}
	logger := apptest.NewLogger(conf)
	db := dummydb.Open()

	env := &otpEnv{
		repo:    dummydb.NewOTPRepository(db),
		usrRepo: dummydb.NewUserRepository(db),
		events:  eventsvc.NewLogPublisher(logger),
		metrics: metricsvc.NewPrometheus(),
		now:     t0,
	}
	clock := func() time.Time { return env.now }
	otp.NowFunc = clock
	t.Cleanup(func() { otp.NowFunc = time.Now })

	env.svc = otp.NewService(conf, otp.Deps{
		Repo:     env.repo,
		Users:    user.NewService(env.usrRepo),
		Mail:     emailsvc.NewConsoleServiceMock(conf, logger),
		Throttle: throttle.NewMemoryThrottle(clock),
		Metrics:  env.metrics,
		Events:   env.events,
		Logger:   logger,
	})
	env.usr = apptest.CreateUser(t, env.usrRepo, "Mwalimu", "teacher@test.cd", "Passw0rd!", []string{user.RoleTeacher}, time.Time{})
	emailsvc.ClearSentMessages()
	return env
}

func (env *otpEnv) generate(t *testing.T) otp.Challenge {
	t.Helper()
	ch, err := env.svc.Generate(context.Background(), otp.NewChallenge{UserID: env.usr.ID, Email: env.usr.Email})
	require.NoError(t, err)
	return ch
}

// wrongCode returns a well formed code different from code.
func wrongCode(code string) string {
	if code == "111111" {
		return "222222"
	}
	return "111111"
}

func isValidationErr(err error) bool {
	_, ok := errors.Cause(err).(*core.ValidationError)
	return ok
}

func TestService_Generate(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name string
			nc   otp.NewChallenge
		}{
			{name: "user_id required", nc: otp.NewChallenge{Email: env.usr.Email}},
			{name: "invalid email", nc: otp.NewChallenge{UserID: env.usr.ID, Email: "lol"}},
			{name: "email mismatch", nc: otp.NewChallenge{UserID: env.usr.ID, Email: "other@test.cd"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := env.svc.Generate(ctx, tt.nc)
				assert.True(t, isValidationErr(err), "got %v", err)
			})
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := env.svc.Generate(ctx, otp.NewChallenge{UserID: "nope", Email: env.usr.Email})
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})

	t.Run("issued", func(t *testing.T) {
		ch, err := env.svc.Generate(ctx, otp.NewChallenge{UserID: " " + env.usr.ID, Email: strings.ToUpper(env.usr.Email)})
		require.NoError(t, err)

		assert.True(t, otp.IsWellFormedCode(ch.Code))
		assert.Equal(t, env.usr.ID, ch.UserID)
		assert.Equal(t, t0, ch.CreatedAt)
		assert.Equal(t, t0.Add(10*time.Minute), ch.ExpiresAt)
		assert.True(t, ch.IsPending())
		assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.ChallengesIssued))

		stored, err := env.repo.GetLatestPendingChallenge(ctx, env.usr.ID)
		require.NoError(t, err)
		assert.Equal(t, ch.ID, stored.ID)
		assert.Empty(t, stored.Code, "code must not be stored")
		assert.NotContains(t, string(stored.CodeHash), ch.Code)

		msgs := emailsvc.SentMessages()
		require.Len(t, msgs, 1)
		assert.Equal(t, env.usr.Email, msgs[0].To[0].Address)
		assert.Contains(t, msgs[0].TextContent, ch.Code)
		assert.Contains(t, msgs[0].TextContent, "10 minutes")
		assert.Contains(t, msgs[0].HTMLContent, ch.Code)
	})
}

func TestService_Generate_cooldown(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	first := env.generate(t)
	nc := otp.NewChallenge{UserID: env.usr.ID, Email: env.usr.Email}

	for i := 1; i <= 5; i++ {
		env.advance(time.Second)
		_, err := env.svc.Generate(ctx, nc)
		assert.True(t, core.IsKind(err, core.ErrTooManyRequests), "got %v", err)
	}
	_, err := env.svc.Generate(ctx, nc)
	assert.EqualError(t, err, "please wait 55 seconds before requesting a new code")
	assert.Len(t, emailsvc.SentMessages(), 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.ChallengesIssued))

	latest, err := env.repo.GetLatestPendingChallenge(ctx, env.usr.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID, "a refused request must not invalidate the pending code")

	// a lockout cannot be bypassed by asking for a new code right away
	bad := wrongCode(first.Code)
	for i := 0; i < 5; i++ {
		_, _ = env.svc.Verify(ctx, env.usr.ID, bad)
	}
	_, err = env.svc.Generate(ctx, nc)
	assert.True(t, core.IsKind(err, core.ErrTooManyRequests))

	env.advance(55 * time.Second)
	second, err := env.svc.Generate(ctx, nc)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestService_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed code", func(t *testing.T) {
		env := setup(t)
		env.generate(t)
		for _, code := range []string{"", "12345", "abcdef", "1234567"} {
			_, err := env.svc.Verify(ctx, env.usr.ID, code)
			assert.True(t, isValidationErr(err), "code %q: got %v", code, err)
		}
	})

	t.Run("no challenge", func(t *testing.T) {
		env := setup(t)
		_, err := env.svc.Verify(ctx, env.usr.ID, "123456")
		assert.Equal(t, otp.ErrNotFound, errors.Cause(err))
		assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.Verifications.WithLabelValues(core.OutcomeNotFound)))
	})

	t.Run("success just before expiry, exactly once", func(t *testing.T) {
		env := setup(t)
		ch := env.generate(t)
		env.advance(9*time.Minute + 59*time.Second)

		usr, err := env.svc.Verify(ctx, env.usr.ID, ch.Code)
		require.NoError(t, err)
		assert.True(t, usr.IsEmailVerified())
		assert.False(t, usr.RequiresVerification())
		assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.Verifications.WithLabelValues(core.OutcomeSuccess)))

		stored, err := env.usrRepo.GetUserByID(ctx, env.usr.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsEmailVerified())

		_, err = env.svc.Verify(ctx, env.usr.ID, ch.Code)
		assert.Equal(t, otp.ErrNotFound, errors.Cause(err), "a challenge verifies only once")
	})

	t.Run("expired", func(t *testing.T) {
		env := setup(t)
		ch := env.generate(t)
		env.advance(10*time.Minute + time.Second)

		_, err := env.svc.Verify(ctx, env.usr.ID, ch.Code)
		assert.Equal(t, otp.ErrExpired, errors.Cause(err))
		assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.Verifications.WithLabelValues(core.OutcomeExpired)))
	})

	t.Run("mismatch then success", func(t *testing.T) {
		env := setup(t)
		ch := env.generate(t)

		_, err := env.svc.Verify(ctx, env.usr.ID, wrongCode(ch.Code))
		assert.Equal(t, otp.ErrMismatch, errors.Cause(err))

		stored, err := env.repo.GetLatestPendingChallenge(ctx, env.usr.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.Attempts)

		_, err = env.svc.Verify(ctx, env.usr.ID, ch.Code)
		assert.NoError(t, err)
	})

	t.Run("lockout after max attempts", func(t *testing.T) {
		env := setup(t)
		ch := env.generate(t)
		bad := wrongCode(ch.Code)

		for i := 1; i < 5; i++ {
			_, err := env.svc.Verify(ctx, env.usr.ID, bad)
			require.Equal(t, otp.ErrMismatch, errors.Cause(err), "attempt %d", i)
		}
		_, err := env.svc.Verify(ctx, env.usr.ID, bad)
		assert.Equal(t, otp.ErrTooManyAttempts, errors.Cause(err))
		assert.True(t, core.IsKind(err, core.ErrTooManyRequests))

		// the right code cannot rescue a locked challenge
		_, err = env.svc.Verify(ctx, env.usr.ID, ch.Code)
		assert.Equal(t, otp.ErrNotFound, errors.Cause(err))

		evts := env.events.Events(core.SubjectOTPLocked)
		require.Len(t, evts, 1)
		var evt otp.LockedEvent
		require.NoError(t, json.Unmarshal(evts[0].Data, &evt))
		assert.Equal(t, env.usr.ID, evt.UserID)
		assert.Equal(t, ch.ID, evt.ChallengeID)
		assert.Equal(t, 5, evt.Attempts)
		assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.Verifications.WithLabelValues(core.OutcomeLocked)))
		assert.Equal(t, float64(4), testutil.ToFloat64(env.metrics.Verifications.WithLabelValues(core.OutcomeMismatch)))
	})

	t.Run("unlimited attempts when lockout is disabled", func(t *testing.T) {
		env := setup(t, func(conf *core.Config) { conf.OTP.MaxAttempts = 0 })
		ch := env.generate(t)
		bad := wrongCode(ch.Code)

		for i := 1; i <= 12; i++ {
			_, err := env.svc.Verify(ctx, env.usr.ID, bad)
			require.Equal(t, otp.ErrMismatch, errors.Cause(err), "attempt %d", i)
		}

		stored, err := env.repo.GetLatestPendingChallenge(ctx, env.usr.ID)
		require.NoError(t, err)
		assert.Equal(t, ch.ID, stored.ID)
		assert.False(t, stored.Verified)
		assert.True(t, stored.IsPending())
		assert.Equal(t, 12, stored.Attempts)
		assert.Empty(t, env.events.Events(core.SubjectOTPLocked))
		assert.Equal(t, float64(12), testutil.ToFloat64(env.metrics.Verifications.WithLabelValues(core.OutcomeMismatch)))

		_, err = env.svc.Verify(ctx, env.usr.ID, ch.Code)
		assert.NoError(t, err)
	})

	t.Run("only the newest challenge counts", func(t *testing.T) {
		env := setup(t)
		first := env.generate(t)
		env.advance(time.Minute)
		second := env.generate(t)
		for second.Code == first.Code {
			env.advance(time.Minute)
			second = env.generate(t)
		}

		_, err := env.svc.Verify(ctx, env.usr.ID, first.Code)
		assert.Equal(t, otp.ErrMismatch, errors.Cause(err))

		_, err = env.svc.Verify(ctx, env.usr.ID, second.Code)
		assert.NoError(t, err)
	})
}

func TestService_Resend(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown user", func(t *testing.T) {
		env := setup(t)
		_, err := env.svc.Resend(ctx, "nope")
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})

	t.Run("cooldown", func(t *testing.T) {
		env := setup(t)
		first := env.generate(t)

		env.advance(20 * time.Second)
		_, err := env.svc.Resend(ctx, env.usr.ID)
		assert.True(t, core.IsKind(err, core.ErrTooManyRequests), "got %v", err)
		assert.EqualError(t, err, "please wait 40 seconds before requesting a new code")

		env.advance(40 * time.Second)
		second, err := env.svc.Resend(ctx, env.usr.ID)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, env.now.Add(10*time.Minute), second.ExpiresAt)
		assert.Len(t, emailsvc.SentMessages(), 2)

		// the countdown restarts
		env.advance(time.Second)
		_, err = env.svc.Resend(ctx, env.usr.ID)
		assert.True(t, core.IsKind(err, core.ErrTooManyRequests))

		latest, err := env.repo.GetLatestPendingChallenge(ctx, env.usr.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, latest.ID, "the first challenge must be invalidated")
	})

	t.Run("resend without prior challenge", func(t *testing.T) {
		env := setup(t)
		ch, err := env.svc.Resend(ctx, env.usr.ID)
		require.NoError(t, err)
		_, err = env.svc.Verify(ctx, env.usr.ID, ch.Code)
		assert.NoError(t, err)
	})
}

func TestService_Purge(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	env.generate(t)
	env.advance(31 * 24 * time.Hour)
	env.generate(t)

	n, err := env.svc.Purge(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = env.svc.Purge(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}
