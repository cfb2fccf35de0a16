package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-guardian/core"
	"github.com/trezcool/masomo-guardian/core/attendance"
	"github.com/trezcool/masomo-guardian/core/user"
)

type attendanceApi struct {
	svc      *attendance.Service
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := attendanceApi{svc: deps.AttendanceSvc, validate: deps.Validate}
	staffOnly := rolesMiddleware(user.StaffRoles...)

	ag := g.Group("/attendance", jwt)
	ag.POST("/guardian", api.reportGuardian, rolesMiddleware(user.RoleParent))
	ag.POST("/staff", api.markStaff, staffOnly)
	ag.GET("", api.query, staffOnly)
	ag.GET("/:student_id/:date", api.retrieve)
}

type (
	GuardianReportRequest struct {
		StudentID string `json:"student_id" validate:"required,max=64"`
		Date      string `json:"date" validate:"required,isodate"`
		Status    string `json:"status" validate:"required,guardianstatus"`
		Reason    string `json:"reason" validate:"max=500"`
		Version   int    `json:"version" validate:"min=0"`
	}

	StaffMarkRequest struct {
		StudentID string `json:"student_id" validate:"required,max=64"`
		Date      string `json:"date" validate:"required,isodate"`
		Status    string `json:"status" validate:"required,staffstatus"`
		Version   int    `json:"version" validate:"min=0"`
	}

	AttendanceQueryRequest struct {
		Date   string `json:"date" query:"date" validate:"required,isodate"`
		Signal string `json:"signal" query:"signal" validate:"omitempty,attendancesignal"`
	}

	RecordResponse struct {
		StudentID   string                     `json:"student_id"`
		Date        string                     `json:"date"`
		Guardian    *attendance.GuardianReport `json:"guardian"`
		Staff       *attendance.StaffMark      `json:"staff"`
		Version     int                        `json:"version"`
		UpdatedAt   time.Time                  `json:"updated_at"`
		Mismatch    bool                       `json:"mismatch"`
		NeedsReview bool                       `json:"needs_review"`
		Signal      attendance.Signal          `json:"signal"`
	}
)

func (r *GuardianReportRequest) Validate(validate *validator.Validate) error {
	r.StudentID = core.CleanString(r.StudentID)
	r.Date = core.CleanString(r.Date)
	r.Status = core.CleanString(r.Status)
	r.Reason = core.CleanString(r.Reason)
	return validate.Struct(r)
}

func (r *StaffMarkRequest) Validate(validate *validator.Validate) error {
	r.StudentID = core.CleanString(r.StudentID)
	r.Date = core.CleanString(r.Date)
	r.Status = core.CleanString(r.Status)
	return validate.Struct(r)
}

func newRecordResponse(rec attendance.Record) RecordResponse {
	return RecordResponse{
		StudentID:   rec.SubjectID,
		Date:        rec.Date.Format(core.DateLayout),
		Guardian:    rec.Guardian,
		Staff:       rec.Staff,
		Version:     rec.Version,
		UpdatedAt:   rec.UpdatedAt,
		Mismatch:    attendance.ComputeMismatch(rec),
		NeedsReview: attendance.NeedsReview(rec),
		Signal:      attendance.SignalOf(rec),
	}
}

func (api *attendanceApi) reportGuardian(ctx echo.Context) error {
	var data GuardianReportRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GuardianReportRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	date, _ := core.ParseDate(data.Date) // validated

	rec, err := api.svc.RecordGuardianStatus(ctx.Request().Context(), attendance.NewGuardianReport{
		SubjectID:  data.StudentID,
		Date:       date,
		Status:     attendance.GuardianStatus(data.Status),
		Reason:     data.Reason,
		ReportedBy: claims.Subject,
		IfVersion:  data.Version,
	})
	if err != nil {
		return errors.Wrap(err, "recording guardian status")
	}
	return ctx.JSON(http.StatusOK, newRecordResponse(rec))
}

func (api *attendanceApi) markStaff(ctx echo.Context) error {
	var data StaffMarkRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StaffMarkRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	date, _ := core.ParseDate(data.Date) // validated

	rec, err := api.svc.RecordStaffStatus(ctx.Request().Context(), attendance.NewStaffMark{
		SubjectID: data.StudentID,
		Date:      date,
		Status:    attendance.StaffStatus(data.Status),
		MarkedBy:  claims.Subject,
		IfVersion: data.Version,
	})
	if err != nil {
		return errors.Wrap(err, "recording staff status")
	}
	return ctx.JSON(http.StatusOK, newRecordResponse(rec))
}

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	date, err := core.ParseDate(ctx.Param("date"))
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "date", Error: "must be a date formatted as YYYY-MM-DD"})
	}
	rec, err := api.svc.Get(ctx.Request().Context(), ctx.Param("student_id"), date)
	if err != nil {
		return errors.Wrap(err, "finding attendance record")
	}
	return ctx.JSON(http.StatusOK, newRecordResponse(rec))
}

func (api *attendanceApi) query(ctx echo.Context) error {
	var data AttendanceQueryRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AttendanceQueryRequest")
	}
	data.Date = core.CleanString(data.Date)
	data.Signal = core.CleanString(data.Signal, true /* lower */)
	if err := api.validate.Struct(&data); err != nil {
		return err
	}
	date, _ := core.ParseDate(data.Date) // validated
	ordering := new(Ordering)
	ordering.Bind(ctx)

	recs, err := api.svc.Query(
		ctx.Request().Context(),
		attendance.QueryFilter{Date: date, Signal: attendance.Signal(data.Signal)},
		ordering.Orderings...,
	)
	if err != nil {
		return errors.Wrap(err, "querying attendance records")
	}
	res := make([]RecordResponse, 0, len(recs))
	for _, rec := range recs {
		res = append(res, newRecordResponse(rec))
	}
	return ctx.JSON(http.StatusOK, res)
}
