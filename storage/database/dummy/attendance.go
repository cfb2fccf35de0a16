package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/masomo-guardian/core"
	"github.com/trezcool/masomo-guardian/core/attendance"
)

type attendanceRepository struct {
	db *attendanceTable
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db.attendance}
}

func cloneRecord(rec attendance.Record) attendance.Record {
	if rec.Guardian != nil {
		g := *rec.Guardian
		rec.Guardian = &g
	}
	if rec.Staff != nil {
		s := *rec.Staff
		rec.Staff = &s
	}
	return rec
}

func (repo *attendanceRepository) GetRecord(_ context.Context, subjectID string, date time.Time) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.table[attendanceKey{subjectID, attendance.Day(date)}]; ok {
		return cloneRecord(*rec), nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

// set runs update on the (possibly new) record of the student on date, under the table lock.
func (repo *attendanceRepository) set(subjectID string, date time.Time, ifVersion int, update func(rec *attendance.Record)) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := attendanceKey{subjectID, attendance.Day(date)}
	rec, ok := repo.db.table[key]
	if ifVersion > 0 && (!ok || rec.Version != ifVersion) {
		return attendance.Record{}, attendance.ErrConflict
	}
	if !ok {
		rec = &attendance.Record{SubjectID: subjectID, Date: key.date}
		repo.db.table[key] = rec
	}
	update(rec)
	rec.Version++
	return cloneRecord(*rec), nil
}

func (repo *attendanceRepository) SetGuardianReport(_ context.Context, subjectID string, date time.Time, report attendance.GuardianReport, ifVersion int) (attendance.Record, error) {
	return repo.set(subjectID, date, ifVersion, func(rec *attendance.Record) {
		rec.Guardian = &report
		rec.UpdatedAt = report.ReportedAt
	})
}

func (repo *attendanceRepository) SetStaffMark(_ context.Context, subjectID string, date time.Time, mark attendance.StaffMark, ifVersion int) (attendance.Record, error) {
	return repo.set(subjectID, date, ifVersion, func(rec *attendance.Record) {
		rec.Staff = &mark
		rec.UpdatedAt = mark.MarkedAt
	})
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, date time.Time, orderings ...core.DBOrdering) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	day := attendance.Day(date)
	recs := make([]attendance.Record, 0)
	for key, rec := range repo.db.table {
		if key.date.Equal(day) {
			recs = append(recs, cloneRecord(*rec))
		}
	}

	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "student_id", Ascending: true}}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, ord := range orderings {
			cmp := compareRecords(recs[i], recs[j], ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
	return recs, nil
}

func compareRecords(a, b attendance.Record, field string) int {
	switch field {
	case "student_id":
		switch {
		case a.SubjectID < b.SubjectID:
			return -1
		case a.SubjectID > b.SubjectID:
			return 1
		}
	case "updated_at":
		switch {
		case a.UpdatedAt.Before(b.UpdatedAt):
			return -1
		case a.UpdatedAt.After(b.UpdatedAt):
			return 1
		}
	}
	return 0
}
