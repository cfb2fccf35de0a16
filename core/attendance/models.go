package attendance

import (
	"time"
)

type (
	// GuardianStatus is reported by a guardian before school hours.
	GuardianStatus string

	// StaffStatus is marked by staff when taking attendance.
	StaffStatus string

	// Signal is the reconciliation of both sides of a Record.
	Signal string
)

const (
	Departed    GuardianStatus = "DEPARTED"
	NotDeparted GuardianStatus = "NOT_DEPARTED"

	Present StaffStatus = "PRESENT"
	Absent  StaffStatus = "ABSENT"

	SignalPending  Signal = "pending" // one side has not reported yet
	SignalOK       Signal = "ok"
	SignalMismatch Signal = "mismatch" // departed from home, absent at school
	SignalReview   Signal = "review"   // not departed, yet present at school
)

func (s GuardianStatus) IsValid() bool { return s == Departed || s == NotDeparted }
func (s StaffStatus) IsValid() bool    { return s == Present || s == Absent }

func (s Signal) IsValid() bool {
	switch s {
	case SignalPending, SignalOK, SignalMismatch, SignalReview:
		return true
	}
	return false
}

type GuardianReport struct {
	Status     GuardianStatus `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	ReportedAt time.Time      `json:"reported_at"` // UTC
	ReportedBy string         `json:"reported_by"`
}

type StaffMark struct {
	Status   StaffStatus `json:"status"`
	MarkedAt time.Time   `json:"marked_at"` // UTC
	MarkedBy string      `json:"marked_by"`
}

// Record pairs both reports for a student on a day. Each side is written independently (last write wins).
type Record struct {
	SubjectID string          `json:"student_id"`
	Date      time.Time       `json:"date"` // UTC midnight
	Guardian  *GuardianReport `json:"guardian"`
	Staff     *StaffMark      `json:"staff"`
	Version   int             `json:"version"` // bumped on every write
	UpdatedAt time.Time       `json:"updated_at"`
}

// ComputeMismatch reports whether the guardian reported a departure and staff marked the student absent.
func ComputeMismatch(r Record) bool {
	return r.Guardian != nil && r.Staff != nil &&
		r.Guardian.Status == Departed && r.Staff.Status == Absent
}

// NeedsReview reports whether the guardian reported no departure but staff marked the student present.
// A child can get to school by other means, so this is only a notice.
func NeedsReview(r Record) bool {
	return r.Guardian != nil && r.Staff != nil &&
		r.Guardian.Status == NotDeparted && r.Staff.Status == Present
}

// SignalOf derives the signal of a record. It is never stored.
func SignalOf(r Record) Signal {
	switch {
	case ComputeMismatch(r):
		return SignalMismatch
	case NeedsReview(r):
		return SignalReview
	case r.Guardian == nil || r.Staff == nil:
		return SignalPending
	default:
		return SignalOK
	}
}

func (r Record) Mismatch() bool { return ComputeMismatch(r) }
func (r Record) Signal() Signal { return SignalOf(r) }

// Day truncates t to midnight UTC, keeping its calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewGuardianReport is the input of Service.RecordGuardianStatus.
type NewGuardianReport struct {
	SubjectID  string
	Date       time.Time
	Status     GuardianStatus
	Reason     string
	ReportedBy string
	IfVersion  int // > 0: compare-and-swap
}

// NewStaffMark is the input of Service.RecordStaffStatus.
type NewStaffMark struct {
	SubjectID string
	Date      time.Time
	Status    StaffStatus
	MarkedBy  string
	IfVersion int // > 0: compare-and-swap
}

type QueryFilter struct {
	Date   time.Time
	Signal Signal // empty: all
}

// FlagEvent is published when a record's signal becomes a mismatch or a review notice.
type FlagEvent struct {
	SubjectID  string         `json:"student_id"`
	Date       string         `json:"date"`
	Signal     Signal         `json:"signal"`
	Guardian   GuardianStatus `json:"guardian_status"`
	Reason     string         `json:"reason,omitempty"`
	ReportedBy string         `json:"reported_by,omitempty"`
	Staff      StaffStatus    `json:"staff_status"`
	MarkedBy   string         `json:"marked_by,omitempty"`
	FlaggedAt  time.Time      `json:"flagged_at"`
}
