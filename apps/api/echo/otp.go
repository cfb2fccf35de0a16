package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-guardian/core"
	"github.com/trezcool/masomo-guardian/core/otp"
)

type otpApi struct {
	conf     *core.Config
	svc      *otp.Service
	validate *validator.Validate
}

func registerOTPAPI(g *echo.Group, limiter echo.MiddlewareFunc, conf *core.Config, deps ServerDeps) {
	api := otpApi{conf: conf, svc: deps.OTPSvc, validate: deps.Validate}

	og := g.Group("/otp", limiter)
	og.POST("", api.generate)
	og.POST("/verify", api.verify)
	og.POST("/resend", api.resend)
}

type OTPResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"` // debug only
	User    interface{} `json:"user,omitempty"`
	Token   string      `json:"token,omitempty"`
}

func (api *otpApi) sent(ctx echo.Context, ch otp.Challenge) error {
	res := OTPResponse{Success: true, Message: "verification code sent"}
	if api.conf.Debug {
		res.Code = ch.Code
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *otpApi) generate(ctx echo.Context) error {
	var data otp.NewChallenge
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewChallenge")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ch, err := api.svc.Generate(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "generating challenge")
	}
	return api.sent(ctx, ch)
}

func (api *otpApi) resend(ctx echo.Context) error {
	var data otp.ResendRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResendRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ch, err := api.svc.Resend(ctx.Request().Context(), data.UserID)
	if err != nil {
		return errors.Wrap(err, "resending challenge")
	}
	return api.sent(ctx, ch)
}

func (api *otpApi) verify(ctx echo.Context) error {
	var data otp.Verification
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Verification")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Verify(ctx.Request().Context(), data.UserID, data.Code)
	if err != nil {
		return errors.Wrap(err, "verifying challenge")
	}
	token, err := GenerateToken(api.conf, GetUserClaims(api.conf, usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, OTPResponse{Success: true, Message: "email verified", User: usr, Token: token})
}
