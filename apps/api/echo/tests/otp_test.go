package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/masomo-guardian/apps/api/echo"
	"github.com/trezcool/masomo-guardian/core"
	"github.com/trezcool/masomo-guardian/core/otp"
	"github.com/trezcool/masomo-guardian/core/user"
	apptest "github.com/trezcool/masomo-guardian/tests"
)

func (env *apiEnv) requestCode(t *testing.T, usr user.User) string {
	t.Helper()
	rec := env.do(http.MethodPost, "/v1/otp", "", marshalObj(t, otp.NewChallenge{UserID: usr.ID, Email: usr.Email}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res echoapi.OTPResponse
	unmarshal(t, rec, &res)
	require.True(t, res.Success)
	return res.Code
}

func otherCode(code string) string {
	if code == "123456" {
		return "654321"
	}
	return "123456"
}

func Test_otpApi_generate(t *testing.T) {
	env := setup(t)
	teacher := apptest.CreateUser(t, env.usrRepo, "Mwalimu", "teacher@test.cd", goodPwd, []string{user.RoleTeacher}, time.Time{})

	tests := []httpTest{
		{
			name: "required fields", body: []byte("{}"), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"user_id": "this field is required", "email": "this field is required"}),
		},
		{
			name: "invalid email", body: marshalObj(t, otp.NewChallenge{UserID: teacher.ID, Email: "lol"}), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"email": "email must be a valid email address"}),
		},
		{
			name: "unknown user", body: marshalObj(t, otp.NewChallenge{UserID: "nope", Email: teacher.Email}), wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "user not found"}),
		},
		{
			name: "email of another account", body: marshalObj(t, otp.NewChallenge{UserID: teacher.ID, Email: "other@test.cd"}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"email": "email does not match this account"}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/otp"
	}
	runHTTPTests(t, env, tests)

	t.Run("sent", func(t *testing.T) {
		code := env.requestCode(t, teacher)
		assert.True(t, otp.IsWellFormedCode(code))
		assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.ChallengesIssued))
	})

	t.Run("cooldown", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/v1/otp", "", marshalObj(t, otp.NewChallenge{UserID: teacher.ID, Email: teacher.Email}))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusTooManyRequests,
			wantData: marshalObj(t, httpErr{Error: "please wait 60 seconds before requesting a new code"}),
		}, rec)
		assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.ChallengesIssued))

		env.advance(time.Minute)
		assert.True(t, otp.IsWellFormedCode(env.requestCode(t, teacher)))
	})
}

func Test_otpApi_verify(t *testing.T) {
	path := "/v1/otp/verify"
	verification := func(t *testing.T, userID, code string) []byte {
		return marshalObj(t, otp.Verification{UserID: userID, Code: code})
	}

	t.Run("validation", func(t *testing.T) {
		env := setup(t)
		runHTTPTests(t, env, []httpTest{
			{
				name: "required fields", method: http.MethodPost, path: path, body: []byte("{}"), wantCode: http.StatusBadRequest,
				wantData: marshalObj(t, map[string]string{"user_id": "this field is required", "code": "this field is required"}),
			},
			{
				name: "malformed code", method: http.MethodPost, path: path, body: verification(t, "u1", "12ab56"), wantCode: http.StatusBadRequest,
				wantData: marshalObj(t, map[string]string{"code": "must be a 6-digit code"}),
			},
			{
				name: "no pending code", method: http.MethodPost, path: path, body: verification(t, "u1", "123456"), wantCode: http.StatusNotFound,
				wantData: marshalObj(t, httpErr{Error: "no pending verification code, please request a new one"}),
			},
		})
	})

	t.Run("verify then login", func(t *testing.T) {
		env := setup(t)
		teacher := apptest.CreateUser(t, env.usrRepo, "Mwalimu", "teacher@test.cd", goodPwd, []string{user.RoleTeacher}, time.Time{})
		code := env.requestCode(t, teacher)

		rec := env.do(http.MethodPost, path, "", verification(t, teacher.ID, otherCode(code)))
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "invalid verification code"})}, rec)

		env.advance(9*time.Minute + 59*time.Second)
		rec = env.do(http.MethodPost, path, "", verification(t, teacher.ID, code))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res echoapi.OTPResponse
		unmarshal(t, rec, &res)
		assert.True(t, res.Success)
		assert.Equal(t, "email verified", res.Message)
		assert.NotEmpty(t, res.Token)

		// the token is usable right away
		rec = env.do(http.MethodGet, "/v1/users/me", res.Token)
		assert.Equal(t, http.StatusOK, rec.Code)

		// exactly once
		rec = env.do(http.MethodPost, path, "", verification(t, teacher.ID, code))
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = env.do(http.MethodPost, "/v1/users/login", "", marshalObj(t, echoapi.LoginRequest{Email: teacher.Email, Password: goodPwd}))
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("expired", func(t *testing.T) {
		env := setup(t)
		teacher := apptest.CreateUser(t, env.usrRepo, "Mwalimu", "teacher@test.cd", goodPwd, []string{user.RoleTeacher}, time.Time{})
		code := env.requestCode(t, teacher)

		env.advance(10*time.Minute + time.Second)
		rec := env.do(http.MethodPost, path, "", verification(t, teacher.ID, code))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusGone,
			wantData: marshalObj(t, httpErr{Error: "verification code expired, please request a new one"}),
		}, rec)
	})

	t.Run("locked out", func(t *testing.T) {
		env := setup(t)
		teacher := apptest.CreateUser(t, env.usrRepo, "Mwalimu", "teacher@test.cd", goodPwd, []string{user.RoleTeacher}, time.Time{})
		code := env.requestCode(t, teacher)
		bad := verification(t, teacher.ID, otherCode(code))

		for i := 1; i < env.conf.OTP.MaxAttempts; i++ {
			rec := env.do(http.MethodPost, path, "", bad)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		}
		rec := env.do(http.MethodPost, path, "", bad)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusTooManyRequests,
			wantData: marshalObj(t, httpErr{Error: "too many failed attempts, please request a new code"}),
		}, rec)
		assert.Len(t, env.events.Events(core.SubjectOTPLocked), 1)
	})
}

func Test_otpApi_resend(t *testing.T) {
	env := setup(t)
	path := "/v1/otp/resend"
	teacher := apptest.CreateUser(t, env.usrRepo, "Mwalimu", "teacher@test.cd", goodPwd, []string{user.RoleTeacher}, time.Time{})

	runHTTPTests(t, env, []httpTest{
		{
			name: "required fields", method: http.MethodPost, path: path, body: []byte("{}"), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"user_id": "this field is required"}),
		},
		{
			name: "unknown user", method: http.MethodPost, path: path, body: marshalObj(t, otp.ResendRequest{UserID: "nope"}),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "user not found"}),
		},
	})

	first := env.requestCode(t, teacher)
	resend := marshalObj(t, otp.ResendRequest{UserID: teacher.ID})

	env.advance(45 * time.Second)
	rec := env.do(http.MethodPost, path, "", resend)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusTooManyRequests,
		wantData: marshalObj(t, httpErr{Error: "please wait 15 seconds before requesting a new code"}),
	}, rec)

	env.advance(15 * time.Second)
	rec = env.do(http.MethodPost, path, "", resend)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res echoapi.OTPResponse
	unmarshal(t, rec, &res)
	second := res.Code
	require.True(t, otp.IsWellFormedCode(second))

	if first != second {
		rec = env.do(http.MethodPost, "/v1/otp/verify", "", marshalObj(t, otp.Verification{UserID: teacher.ID, Code: first}))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "a superseded code must not verify")
	}
	rec = env.do(http.MethodPost, "/v1/otp/verify", "", marshalObj(t, otp.Verification{UserID: teacher.ID, Code: second}))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
