package core

// Metrics counts domain events.
type Metrics interface {
	ChallengeIssued()
	ChallengeVerified(outcome string)
	AttendanceMarked(side string)
	AttendanceFlagged(signal string)
}

// Verification outcomes
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeExpired  = "expired"
	OutcomeMismatch = "mismatch"
	OutcomeLocked   = "locked"
)
