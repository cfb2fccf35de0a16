package otp

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-guardian/core"
)

// Challenge is a one-time code issued to a user. Challenges are never deleted by the verification flow.
type Challenge struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Code          string    `json:"-"` // only set on the value returned at issue time
	CodeHash      []byte    `json:"-"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	ExpiresAt     time.Time `json:"expires_at"` // UTC
	Verified      bool      `json:"verified"`
	VerifiedAt    time.Time `json:"verified_at"`    // UTC
	Attempts      int       `json:"attempts"`       // failed verifications
	InvalidatedAt time.Time `json:"invalidated_at"` // UTC; superseded or locked out
}

// IsPending reports whether the challenge can still be matched by a verification.
func (ch Challenge) IsPending() bool {
	return !ch.Verified && ch.InvalidatedAt.IsZero()
}

func (ch Challenge) IsExpired(now time.Time) bool {
	return now.After(ch.ExpiresAt)
}

// NewChallenge is the input of Service.Generate.
type NewChallenge struct {
	UserID string `json:"user_id" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
}

func (nc *NewChallenge) Validate(validate *validator.Validate) error {
	nc.UserID = core.CleanString(nc.UserID)
	nc.Email = core.CleanString(nc.Email, true /* lower */)
	return validate.Struct(nc)
}

// Verification is a code submitted by a user.
type Verification struct {
	UserID string `json:"user_id" validate:"required"`
	Code   string `json:"code" validate:"required,otpcode"`
}

func (v *Verification) Validate(validate *validator.Validate) error {
	v.UserID = core.CleanString(v.UserID)
	v.Code = core.CleanString(v.Code)
	return validate.Struct(v)
}

type ResendRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (r *ResendRequest) Validate(validate *validator.Validate) error {
	r.UserID = core.CleanString(r.UserID)
	return validate.Struct(r)
}

// LockedEvent is published when a challenge is invalidated after too many failed attempts.
type LockedEvent struct {
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id"`
	Attempts    int       `json:"attempts"`
	LockedAt    time.Time `json:"locked_at"`
}
