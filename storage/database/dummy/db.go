// Package dummydb implements the repositories in memory, for tests & local development.
package dummydb

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/masomo-guardian/core/attendance"
	"github.com/trezcool/masomo-guardian/core/otp"
	"github.com/trezcool/masomo-guardian/core/user"
)

type (
	DB struct {
		user       *userTable
		otp        *otpTable
		attendance *attendanceTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User // {id: user}
	}

	otpTable struct {
		sync.RWMutex
		table []*otp.Challenge // in creation order
	}

	attendanceKey struct {
		subjectID string
		date      time.Time
	}

	attendanceTable struct {
		sync.RWMutex
		table map[attendanceKey]*attendance.Record
	}
)

func Open() *DB {
	return &DB{
		user:       &userTable{table: make(map[string]*user.User)},
		otp:        &otpTable{},
		attendance: &attendanceTable{table: make(map[attendanceKey]*attendance.Record)},
	}
}

// PingContext makes the DB a core.Pinger.
func (db *DB) PingContext(context.Context) error { return nil }
