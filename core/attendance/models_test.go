package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func record(g GuardianStatus, s StaffStatus) Record {
	var rec Record
	if g != "" {
		rec.Guardian = &GuardianReport{Status: g}
	}
	if s != "" {
		rec.Staff = &StaffMark{Status: s}
	}
	return rec
}

func TestSignalOf(t *testing.T) {
	tests := []struct {
		name         string
		rec          Record
		wantMismatch bool
		wantReview   bool
		want         Signal
	}{
		{name: "no report", rec: record("", ""), want: SignalPending},
		{name: "guardian only", rec: record(Departed, ""), want: SignalPending},
		{name: "staff only", rec: record("", Absent), want: SignalPending},
		{name: "departed & present", rec: record(Departed, Present), want: SignalOK},
		{name: "departed & absent", rec: record(Departed, Absent), wantMismatch: true, want: SignalMismatch},
		{name: "not departed & absent", rec: record(NotDeparted, Absent), want: SignalOK},
		{name: "not departed & present", rec: record(NotDeparted, Present), wantReview: true, want: SignalReview},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMismatch, ComputeMismatch(tt.rec))
			assert.Equal(t, tt.wantMismatch, tt.rec.Mismatch())
			assert.Equal(t, tt.wantReview, NeedsReview(tt.rec))
			assert.Equal(t, tt.want, SignalOf(tt.rec))
			assert.Equal(t, tt.want, tt.rec.Signal())
		})
	}
}

func TestDay(t *testing.T) {
	wat := time.FixedZone("WAT", 3600)
	want := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, want, Day(time.Date(2024, 3, 4, 7, 30, 0, 0, time.UTC)))
	assert.Equal(t, want, Day(time.Date(2024, 3, 4, 23, 59, 59, 0, time.UTC)))
	assert.Equal(t, want, Day(time.Date(2024, 3, 4, 0, 30, 0, 0, wat)), "the local calendar day is kept")
}

func TestStatuses_IsValid(t *testing.T) {
	assert.True(t, Departed.IsValid())
	assert.True(t, NotDeparted.IsValid())
	assert.False(t, GuardianStatus("departed").IsValid())
	assert.False(t, GuardianStatus("").IsValid())

	assert.True(t, Present.IsValid())
	assert.True(t, Absent.IsValid())
	assert.False(t, StaffStatus("LATE").IsValid())

	for _, s := range []Signal{SignalPending, SignalOK, SignalMismatch, SignalReview} {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, Signal("MISMATCH").IsValid())
}
