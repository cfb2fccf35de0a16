package core

import "context"

// Event subjects
const (
	SubjectAttendanceMismatch = "attendance.mismatch"
	SubjectAttendanceReview   = "attendance.review"
	SubjectOTPLocked          = "otp.locked"
)

// EventPublisher publishes JSON-encodable payloads on a subject.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload interface{}) error
}
