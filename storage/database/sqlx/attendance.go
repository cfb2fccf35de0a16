package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-guardian/core"
	"github.com/trezcool/masomo-guardian/core/attendance"
)

const attendanceColumns = `subject_id, date, guardian_status, guardian_reason, guardian_reported_at, guardian_reported_by,
	staff_status, staff_marked_at, staff_marked_by, version, updated_at`

var attendanceOrderings = map[string]string{
	"student_id": "subject_id",
	"updated_at": "updated_at",
}

type attendanceRow struct {
	SubjectID          string      `db:"subject_id"`
	Date               time.Time   `db:"date"`
	GuardianStatus     null.String `db:"guardian_status"`
	GuardianReason     string      `db:"guardian_reason"`
	GuardianReportedAt null.Time   `db:"guardian_reported_at"`
	GuardianReportedBy string      `db:"guardian_reported_by"`
	StaffStatus        null.String `db:"staff_status"`
	StaffMarkedAt      null.Time   `db:"staff_marked_at"`
	StaffMarkedBy      string      `db:"staff_marked_by"`
	Version            int         `db:"version"`
	UpdatedAt          time.Time   `db:"updated_at"`
}

func (r attendanceRow) toRecord() attendance.Record {
	rec := attendance.Record{
		SubjectID: r.SubjectID,
		Date:      attendance.Day(r.Date),
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.GuardianStatus.Valid {
		rec.Guardian = &attendance.GuardianReport{
			Status:     attendance.GuardianStatus(r.GuardianStatus.String),
			Reason:     r.GuardianReason,
			ReportedAt: timeOrZero(r.GuardianReportedAt),
			ReportedBy: r.GuardianReportedBy,
		}
	}
	if r.StaffStatus.Valid {
		rec.Staff = &attendance.StaffMark{
			Status:   attendance.StaffStatus(r.StaffStatus.String),
			MarkedAt: timeOrZero(r.StaffMarkedAt),
			MarkedBy: r.StaffMarkedBy,
		}
	}
	return rec
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) GetRecord(ctx context.Context, subjectID string, date time.Time) (attendance.Record, error) {
	var row attendanceRow
	q := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE subject_id = $1 AND date = $2`
	if err := repo.db.GetContext(ctx, &row, q, subjectID, sqlDate(date)); err != nil {
		if err == sql.ErrNoRows {
			return attendance.Record{}, attendance.ErrNotFound
		}
		return attendance.Record{}, errors.Wrap(err, "selecting attendance record")
	}
	return row.toRecord(), nil
}

// sqlDate formats the calendar day of t for DATE columns.
func sqlDate(t time.Time) string {
	return attendance.Day(t).Format(core.DateLayout)
}

// upsert writes one side of a record in a single statement.
// The other side's columns are never touched. $1 & $2 are the key, $3 is the write time (stored in atCol),
// and insertCols name the side's columns bound to $4, $5...
func (repo *attendanceRepository) upsert(ctx context.Context, atCol, insertCols, setClause string, ifVersion int, args ...interface{}) (attendance.Record, error) {
	var (
		row attendanceRow
		q   string
	)
	if ifVersion > 0 {
		q = `UPDATE attendance_records SET ` + setClause + `, version = version + 1, updated_at = $3
			WHERE subject_id = $1 AND date = $2 AND version = $` + placeholder(len(args)+1) + `
			RETURNING ` + attendanceColumns
		args = append(args, ifVersion)
	} else {
		values := "$1, $2, $3, $3"
		for i := 4; i <= len(args); i++ {
			values += ", $" + placeholder(i)
		}
		q = `INSERT INTO attendance_records (subject_id, date, updated_at, ` + atCol + `, ` + insertCols + `)
			VALUES (` + values + `)
			ON CONFLICT (subject_id, date) DO UPDATE SET ` + setClause + `,
				version = attendance_records.version + 1, updated_at = EXCLUDED.updated_at
			RETURNING ` + attendanceColumns
	}

	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		if err == sql.ErrNoRows && ifVersion > 0 {
			return attendance.Record{}, attendance.ErrConflict
		}
		return attendance.Record{}, errors.Wrap(err, "upserting attendance record")
	}
	return row.toRecord(), nil
}

func (repo *attendanceRepository) SetGuardianReport(ctx context.Context, subjectID string, date time.Time, report attendance.GuardianReport, ifVersion int) (attendance.Record, error) {
	return repo.upsert(
		ctx,
		`guardian_reported_at`,
		`guardian_status, guardian_reason, guardian_reported_by`,
		`guardian_status = $4, guardian_reason = $5, guardian_reported_at = $3, guardian_reported_by = $6`,
		ifVersion,
		subjectID, sqlDate(date), report.ReportedAt, string(report.Status), report.Reason, report.ReportedBy,
	)
}

func (repo *attendanceRepository) SetStaffMark(ctx context.Context, subjectID string, date time.Time, mark attendance.StaffMark, ifVersion int) (attendance.Record, error) {
	return repo.upsert(
		ctx,
		`staff_marked_at`,
		`staff_status, staff_marked_by`,
		`staff_status = $4, staff_marked_by = $5, staff_marked_at = $3`,
		ifVersion,
		subjectID, sqlDate(date), mark.MarkedAt, string(mark.Status), mark.MarkedBy,
	)
}

func (repo *attendanceRepository) QueryRecords(ctx context.Context, date time.Time, orderings ...core.DBOrdering) ([]attendance.Record, error) {
	rows := make([]attendanceRow, 0)
	q := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE date = $1` +
		orderBy(attendanceOrderings, orderings, "subject_id ASC")
	if err := repo.db.SelectContext(ctx, &rows, q, sqlDate(date)); err != nil {
		return nil, errors.Wrap(err, "selecting attendance records")
	}
	recs := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.toRecord())
	}
	return recs, nil
}

func placeholder(n int) string {
	return strconv.Itoa(n)
}
