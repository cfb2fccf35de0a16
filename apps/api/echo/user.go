package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-guardian/core"
	"github.com/trezcool/masomo-guardian/core/otp"
	"github.com/trezcool/masomo-guardian/core/user"
)

var errRolesNotAllowed = "only parent or teacher accounts can sign up"

type userApi struct {
	conf     *core.Config
	svc      user.Service
	otpSvc   *otp.Service
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, jwt, limiter echo.MiddlewareFunc, conf *core.Config, deps ServerDeps) {
	api := userApi{
		conf:     conf,
		svc:      deps.UserSvc,
		otpSvc:   deps.OTPSvc,
		validate: deps.Validate,
	}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/register", api.register, limiter)
	ug.POST("/login", api.login, limiter)

	// authed endpoints
	ag := ug.Group("", jwt)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.me)
}

// Handlers

func (api *userApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	for _, role := range data.Roles {
		if !isSignupRole(role) {
			return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errRolesNotAllowed})
		}
	}

	c := ctx.Request().Context()
	usr, err := api.svc.Create(c, data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}

	res := RegisterResponse{User: usr, VerificationRequired: usr.RequiresVerification()}
	if res.VerificationRequired {
		ch, err := api.otpSvc.Generate(c, otp.NewChallenge{UserID: usr.ID, Email: usr.Email})
		if err != nil {
			return errors.Wrap(err, "generating challenge")
		}
		if api.conf.Debug {
			res.Code = ch.Code
		}
	}
	return ctx.JSON(http.StatusCreated, res)
}

func isSignupRole(role string) bool {
	for _, r := range user.SignupRoles {
		if role == r {
			return true
		}
	}
	return false
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := authenticate(ctx.Request().Context(), data.Email, data.Password, api.svc)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(api.conf, GetUserClaims(api.conf, usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.conf, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	RegisterResponse struct {
		User                 user.User `json:"user"`
		VerificationRequired bool      `json:"verification_required"`
		Code                 string    `json:"code,omitempty"` // debug only
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}
