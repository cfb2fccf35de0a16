package attendance

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-guardian/core"
	"github.com/trezcool/masomo-guardian/core/user"
)

const (
	SideGuardian = "guardian"
	SideStaff    = "staff"

	mismatchTemplate = "attendance_mismatch"
)

var (
	// errors
	ErrNotFound = core.NewDomainError(core.ErrNotFound, "attendance record not found")
	ErrConflict = core.NewDomainError(core.ErrConflict, "attendance record was modified meanwhile, please reload it")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		GetRecord(ctx context.Context, subjectID string, date time.Time) (Record, error)
		// SetGuardianReport writes the guardian side of the record, creating the record if needed.
		// When ifVersion > 0, the write only happens if the record is at that version; otherwise it fails with ErrConflict.
		SetGuardianReport(ctx context.Context, subjectID string, date time.Time, report GuardianReport, ifVersion int) (Record, error)
		// SetStaffMark is SetGuardianReport's counterpart for the staff side.
		SetStaffMark(ctx context.Context, subjectID string, date time.Time, mark StaffMark, ifVersion int) (Record, error)
		QueryRecords(ctx context.Context, date time.Time, orderings ...core.DBOrdering) ([]Record, error)
	}

	// Users is used to notify the reporting guardian of a mismatch.
	Users interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Deps struct {
		Repo    Repository
		Users   Users
		Mail    core.EmailService
		Metrics core.Metrics
		Events  core.EventPublisher
		Logger  core.Logger
	}

	Service struct {
		Deps
	}

	mismatchMailData struct {
		Name      string
		SubjectID string
		Date      string
		Reason    string
	}
)

func NewService(deps Deps) *Service {
	return &Service{Deps: deps}
}

// RecordGuardianDeparture records that the student left home for school. A reason is required.
func (svc *Service) RecordGuardianDeparture(ctx context.Context, subjectID string, date time.Time, reason, reportedBy string) (Record, error) {
	return svc.RecordGuardianStatus(ctx, NewGuardianReport{
		SubjectID:  subjectID,
		Date:       date,
		Status:     Departed,
		Reason:     reason,
		ReportedBy: reportedBy,
	})
}

func (svc *Service) RecordGuardianStatus(ctx context.Context, nr NewGuardianReport) (Record, error) {
	nr.SubjectID = core.CleanString(nr.SubjectID)
	nr.Reason = core.CleanString(nr.Reason)

	var flds []core.FieldError
	flds = append(flds, checkSubject(nr.SubjectID, nr.Date)...)
	if !nr.Status.IsValid() {
		flds = append(flds, core.FieldError{Field: "status", Error: guardianStatusText})
	}
	if nr.Status == Departed && nr.Reason == "" {
		flds = append(flds, core.FieldError{Field: "reason", Error: "a reason is required when reporting a departure"})
	}
	if len(flds) > 0 {
		return Record{}, core.NewValidationError(nil, flds...)
	}

	report := GuardianReport{
		Status:     nr.Status,
		Reason:     nr.Reason,
		ReportedAt: NowFunc().UTC(),
		ReportedBy: nr.ReportedBy,
	}
	return svc.write(ctx, SideGuardian, nr.SubjectID, Day(nr.Date), func(day time.Time) (Record, error) {
		return svc.Repo.SetGuardianReport(ctx, nr.SubjectID, day, report, nr.IfVersion)
	})
}

// RecordStaffStatus records the student's presence as marked by staff. The last write wins,
// unless nm.IfVersion is set.
func (svc *Service) RecordStaffStatus(ctx context.Context, nm NewStaffMark) (Record, error) {
	nm.SubjectID = core.CleanString(nm.SubjectID)

	flds := checkSubject(nm.SubjectID, nm.Date)
	if !nm.Status.IsValid() {
		flds = append(flds, core.FieldError{Field: "status", Error: staffStatusText})
	}
	if len(flds) > 0 {
		return Record{}, core.NewValidationError(nil, flds...)
	}

	mark := StaffMark{
		Status:   nm.Status,
		MarkedAt: NowFunc().UTC(),
		MarkedBy: nm.MarkedBy,
	}
	return svc.write(ctx, SideStaff, nm.SubjectID, Day(nm.Date), func(day time.Time) (Record, error) {
		return svc.Repo.SetStaffMark(ctx, nm.SubjectID, day, mark, nm.IfVersion)
	})
}

func checkSubject(subjectID string, date time.Time) []core.FieldError {
	var flds []core.FieldError
	if subjectID == "" {
		flds = append(flds, core.FieldError{Field: "student_id", Error: "student_id is a required field"})
	}
	if date.IsZero() {
		flds = append(flds, core.FieldError{Field: "date", Error: "date is a required field"})
	}
	return flds
}

// write applies a one-sided write and notifies when it turns the record's signal into a mismatch or a review notice.
func (svc *Service) write(ctx context.Context, side, subjectID string, day time.Time, set func(day time.Time) (Record, error)) (Record, error) {
	before, err := svc.Repo.GetRecord(ctx, subjectID, day)
	if err != nil && errors.Cause(err) != ErrNotFound {
		return Record{}, errors.Wrap(err, "finding record")
	}

	rec, err := set(day)
	if err != nil {
		return Record{}, errors.Wrapf(err, "recording %s status", side)
	}
	svc.Metrics.AttendanceMarked(side)

	if sig := SignalOf(rec); sig != SignalOf(before) && (sig == SignalMismatch || sig == SignalReview) {
		svc.flag(ctx, rec, sig)
	}
	return rec, nil
}

func (svc *Service) flag(ctx context.Context, rec Record, sig Signal) {
	svc.Metrics.AttendanceFlagged(string(sig))

	subject := core.SubjectAttendanceReview
	if sig == SignalMismatch {
		subject = core.SubjectAttendanceMismatch
	}
	evt := FlagEvent{
		SubjectID:  rec.SubjectID,
		Date:       rec.Date.Format(core.DateLayout),
		Signal:     sig,
		Guardian:   rec.Guardian.Status,
		Reason:     rec.Guardian.Reason,
		ReportedBy: rec.Guardian.ReportedBy,
		Staff:      rec.Staff.Status,
		MarkedBy:   rec.Staff.MarkedBy,
		FlaggedAt:  NowFunc().UTC(),
	}
	if err := svc.Events.Publish(ctx, subject, evt); err != nil {
		svc.Logger.Error("attendance: publishing "+subject, err)
	}

	if sig == SignalMismatch {
		svc.notifyGuardian(ctx, rec)
	}
}

func (svc *Service) notifyGuardian(ctx context.Context, rec Record) {
	if rec.Guardian.ReportedBy == "" {
		return
	}
	guardian, err := svc.Users.GetByID(ctx, rec.Guardian.ReportedBy)
	if err != nil {
		svc.Logger.Warn("attendance: finding reporting guardian", err)
		return
	}
	svc.Mail.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: guardian.Name, Address: guardian.Email}},
		Subject:      "Attendance alert: " + rec.SubjectID + " was marked absent",
		TemplateName: mismatchTemplate,
		TemplateData: mismatchMailData{
			Name:      guardian.Name,
			SubjectID: rec.SubjectID,
			Date:      rec.Date.Format(core.DateLayout),
			Reason:    rec.Guardian.Reason,
		},
	})
}

// Get returns the record of the student on the given day, or ErrNotFound if nobody reported yet.
func (svc *Service) Get(ctx context.Context, subjectID string, date time.Time) (Record, error) {
	return svc.Repo.GetRecord(ctx, core.CleanString(subjectID), Day(date))
}

// Query lists the records of a day, optionally only those with the given signal.
func (svc *Service) Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Record, error) {
	if filter.Date.IsZero() {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "date", Error: "date is a required field"})
	}
	if filter.Signal != "" && !filter.Signal.IsValid() {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "signal", Error: signalText})
	}

	recs, err := svc.Repo.QueryRecords(ctx, Day(filter.Date), orderings...)
	if err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	if filter.Signal == "" {
		return recs, nil
	}
	matching := recs[:0]
	for _, rec := range recs {
		if SignalOf(rec) == filter.Signal {
			matching = append(matching, rec)
		}
	}
	return matching, nil
}
