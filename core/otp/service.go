package otp

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-guardian/core"
	"github.com/trezcool/masomo-guardian/core/user"
)

const (
	DefaultTTL            = 10 * time.Minute
	DefaultResendCooldown = 60 * time.Second

	codeTemplate = "otp_code"
)

var (
	// errors
	ErrNotFound        = core.NewDomainError(core.ErrNotFound, "no pending verification code, please request a new one")
	ErrExpired         = core.NewDomainError(core.ErrExpired, "verification code expired, please request a new one")
	ErrMismatch        = core.NewDomainError(core.ErrMismatch, "invalid verification code")
	ErrTooManyAttempts = core.NewDomainError(core.ErrTooManyRequests, "too many failed attempts, please request a new code")
	ErrPendingExists   = core.NewDomainError(core.ErrConflict, "another verification code was just issued, please use it")

	errEmailMismatch = "email does not match this account"

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// CreateChallenge fails with ErrPendingExists if the user still has a pending challenge.
		CreateChallenge(ctx context.Context, ch Challenge) (Challenge, error)
		// GetLatestPendingChallenge returns the most recently created challenge of the user
		// that is neither verified nor invalidated, or ErrNotFound.
		GetLatestPendingChallenge(ctx context.Context, userID string) (Challenge, error)
		// InvalidatePendingChallenges invalidates every pending challenge of the user.
		InvalidatePendingChallenges(ctx context.Context, userID string, at time.Time) (int64, error)
		// RecordFailedAttempt increments the attempts counter of the challenge and returns its new value.
		RecordFailedAttempt(ctx context.Context, id string) (int, error)
		InvalidateChallenge(ctx context.Context, id string, at time.Time) error
		// MarkChallengeVerified verifies a pending challenge; it fails with ErrNotFound if the challenge is not pending anymore.
		MarkChallengeVerified(ctx context.Context, id string, at time.Time) error
		DeleteChallengesCreatedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// Throttle reserves keys for a time window.
	Throttle interface {
		// Allow reserves key for window if it is free. Otherwise, it returns how long until it frees up.
		Allow(ctx context.Context, key string, window time.Duration) (retryAfter time.Duration, err error)
	}

	// Users is the subset of user.Service needed to verify accounts.
	Users interface {
		GetByID(ctx context.Context, id string) (user.User, error)
		MarkEmailVerified(ctx context.Context, usr user.User) (user.User, error)
	}

	Deps struct {
		Repo     Repository
		Users    Users
		Mail     core.EmailService
		Throttle Throttle
		Metrics  core.Metrics
		Events   core.EventPublisher
		Logger   core.Logger
	}

	Service struct {
		Deps
		ttl            time.Duration
		resendCooldown time.Duration
		maxAttempts    int
		signer         codeSigner
	}

	codeMailData struct {
		Name      string
		Code      string
		ExpiresIn string
	}
)

func NewService(conf *core.Config, deps Deps) *Service {
	svc := &Service{
		Deps:           deps,
		ttl:            conf.OTP.TTL,
		resendCooldown: conf.OTP.ResendCooldown,
		maxAttempts:    conf.OTP.MaxAttempts,
		signer:         newCodeSigner(conf.SecretKey),
	}
	if svc.ttl <= 0 {
		svc.ttl = DefaultTTL
	}
	if svc.resendCooldown <= 0 {
		svc.resendCooldown = DefaultResendCooldown
	}
	return svc
}

func resendKey(userID string) string {
	return "otp:resend:" + userID
}

// Generate issues a new challenge for the user owning nc.Email and emails them the code,
// at most once per resend cooldown. Every challenge previously issued to the user stops being verifiable.
func (svc *Service) Generate(ctx context.Context, nc NewChallenge) (Challenge, error) {
	nc.UserID = core.CleanString(nc.UserID)
	nc.Email = core.CleanString(nc.Email, true /* lower */)
	if nc.UserID == "" {
		return Challenge{}, core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: "user_id is a required field"})
	}
	if _, err := mail.ParseAddress(nc.Email); err != nil {
		return Challenge{}, core.NewValidationError(nil, core.FieldError{Field: "email", Error: "email must be a valid email address"})
	}

	usr, err := svc.Users.GetByID(ctx, nc.UserID)
	if err != nil {
		return Challenge{}, errors.Wrap(err, "finding user")
	}
	if !strings.EqualFold(usr.Email, nc.Email) {
		return Challenge{}, core.NewValidationError(nil, core.FieldError{Field: "email", Error: errEmailMismatch})
	}

	if err = svc.startCooldown(ctx, usr.ID); err != nil {
		return Challenge{}, err
	}
	return svc.issue(ctx, usr)
}

// Resend issues a new challenge to the user, at most once per resend cooldown.
func (svc *Service) Resend(ctx context.Context, userID string) (Challenge, error) {
	usr, err := svc.Users.GetByID(ctx, userID)
	if err != nil {
		return Challenge{}, errors.Wrap(err, "finding user")
	}

	if err = svc.startCooldown(ctx, usr.ID); err != nil {
		return Challenge{}, err
	}
	return svc.issue(ctx, usr)
}

// startCooldown reserves the next issue for the user; it fails with ErrTooManyRequests within the resend cooldown.
func (svc *Service) startCooldown(ctx context.Context, userID string) error {
	retryAfter, err := svc.Throttle.Allow(ctx, resendKey(userID), svc.resendCooldown)
	if err != nil {
		return errors.Wrap(err, "checking resend cooldown")
	}
	if retryAfter > 0 {
		secs := int(math.Ceil(retryAfter.Seconds()))
		return core.NewDomainError(
			core.ErrTooManyRequests,
			fmt.Sprintf("please wait %d seconds before requesting a new code", secs),
		)
	}
	return nil
}

func (svc *Service) issue(ctx context.Context, usr user.User) (Challenge, error) {
	code, err := generateCode()
	if err != nil {
		return Challenge{}, errors.Wrap(err, "generating code")
	}

	now := NowFunc().UTC()
	if _, err = svc.Repo.InvalidatePendingChallenges(ctx, usr.ID, now); err != nil {
		return Challenge{}, errors.Wrap(err, "invalidating pending challenges")
	}

	ch := Challenge{
		ID:        uuid.NewString(),
		UserID:    usr.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(svc.ttl),
	}
	ch.CodeHash = svc.signer.sign(ch.ID, code)
	if ch, err = svc.Repo.CreateChallenge(ctx, ch); err != nil {
		return Challenge{}, errors.Wrap(err, "creating challenge")
	}
	ch.Code = code

	svc.Mail.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Your verification code",
		TemplateName: codeTemplate,
		TemplateData: codeMailData{Name: usr.Name, Code: code, ExpiresIn: humanizeDuration(svc.ttl)},
	})
	svc.Metrics.ChallengeIssued()
	return ch, nil
}

// Verify checks code against the newest pending challenge of the user.
// On success, the challenge is verified (exactly once) and the user's email is marked verified.
func (svc *Service) Verify(ctx context.Context, userID, code string) (user.User, error) {
	code = core.CleanString(code)
	if !IsWellFormedCode(code) {
		return user.User{}, core.NewValidationError(nil, core.FieldError{Field: "code", Error: otpCodeText})
	}

	ch, err := svc.Repo.GetLatestPendingChallenge(ctx, core.CleanString(userID))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			svc.Metrics.ChallengeVerified(core.OutcomeNotFound)
		}
		return user.User{}, errors.Wrap(err, "finding pending challenge")
	}

	now := NowFunc().UTC()
	if ch.IsExpired(now) {
		svc.Metrics.ChallengeVerified(core.OutcomeExpired)
		return user.User{}, ErrExpired
	}

	if !svc.signer.verify(ch.ID, code, ch.CodeHash) {
		return user.User{}, svc.fail(ctx, ch, now)
	}

	if err = svc.Repo.MarkChallengeVerified(ctx, ch.ID, now); err != nil {
		return user.User{}, errors.Wrap(err, "marking challenge verified")
	}
	svc.Metrics.ChallengeVerified(core.OutcomeSuccess)

	usr, err := svc.Users.GetByID(ctx, ch.UserID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding user")
	}
	usr, err = svc.Users.MarkEmailVerified(ctx, usr)
	if err != nil {
		return user.User{}, errors.Wrap(err, "marking email verified")
	}
	return usr, nil
}

// fail records a failed attempt and locks the challenge out once it reaches the max attempts.
func (svc *Service) fail(ctx context.Context, ch Challenge, now time.Time) error {
	attempts, err := svc.Repo.RecordFailedAttempt(ctx, ch.ID)
	if err != nil {
		return errors.Wrap(err, "recording failed attempt")
	}
	if svc.maxAttempts <= 0 || attempts < svc.maxAttempts {
		svc.Metrics.ChallengeVerified(core.OutcomeMismatch)
		return ErrMismatch
	}

	if err = svc.Repo.InvalidateChallenge(ctx, ch.ID, now); err != nil {
		return errors.Wrap(err, "invalidating challenge")
	}
	svc.Metrics.ChallengeVerified(core.OutcomeLocked)
	evt := LockedEvent{UserID: ch.UserID, ChallengeID: ch.ID, Attempts: attempts, LockedAt: now}
	if err = svc.Events.Publish(ctx, core.SubjectOTPLocked, evt); err != nil {
		svc.Logger.Error("otp: publishing locked event", err)
	}
	return ErrTooManyAttempts
}

// Purge deletes the challenges created more than `olderThan` ago.
func (svc *Service) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := svc.Repo.DeleteChallengesCreatedBefore(ctx, NowFunc().UTC().Add(-olderThan))
	return n, errors.Wrap(err, "deleting challenges")
}

func humanizeDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		if m := int(d / time.Minute); m != 1 {
			return fmt.Sprintf("%d minutes", m)
		}
		return "1 minute"
	}
	return d.String()
}
