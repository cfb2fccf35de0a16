package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/masomo-guardian/apps/api/echo"
	"github.com/trezcool/masomo-guardian/core"
	"github.com/trezcool/masomo-guardian/core/attendance"
	"github.com/trezcool/masomo-guardian/core/otp"
	"github.com/trezcool/masomo-guardian/core/user"
	emailsvc "github.com/trezcool/masomo-guardian/services/email"
	eventsvc "github.com/trezcool/masomo-guardian/services/events"
	metricsvc "github.com/trezcool/masomo-guardian/services/metrics"
	"github.com/trezcool/masomo-guardian/services/throttle"
	dummydb "github.com/trezcool/masomo-guardian/storage/database/dummy"
	testutil "github.com/trezcool/masomo-guardian/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type apiEnv struct {
	conf    *core.Config
	app     *echoapi.Server
	usrRepo user.Repository
	events  *eventsvc.LogPublisher
	metrics *metricsvc.Prometheus
	now     time.Time // otp clock
}

func (env *apiEnv) advance(d time.Duration) { env.now = env.now.Add(d) }

func setup(t *testing.T, healthChecks ...map[string]core.Pinger) *apiEnv {
	conf := core.NewTestConfig()
	conf.Server.RateLimit = 1000
	conf.Server.RateBurst = 1000

	logger := testutil.NewLogger(conf)
	validate, translator := testutil.NewValidator()
	db := dummydb.Open()

	env := &apiEnv{
		conf:    conf,
		usrRepo: dummydb.NewUserRepository(db),
		events:  eventsvc.NewLogPublisher(logger),
		metrics: metricsvc.NewPrometheus(),
		now:     time.Now().UTC(),
	}
	clock := func() time.Time { return env.now }
	otp.NowFunc = clock
	t.Cleanup(func() { otp.NowFunc = time.Now })

	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(env.usrRepo)

	checks := map[string]core.Pinger{"db": db}
	if len(healthChecks) > 0 {
		checks = healthChecks[0]
	}

	env.app = echoapi.NewServer(conf, echoapi.ServerDeps{
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    usrSvc,
		OTPSvc: otp.NewService(conf, otp.Deps{
			Repo:     dummydb.NewOTPRepository(db),
			Users:    usrSvc,
			Mail:     mailSvc,
			Throttle: throttle.NewMemoryThrottle(clock),
			Metrics:  env.metrics,
			Events:   env.events,
			Logger:   logger,
		}),
		AttendanceSvc: attendance.NewService(attendance.Deps{
			Repo:    dummydb.NewAttendanceRepository(db),
			Users:   usrSvc,
			Mail:    mailSvc,
			Metrics: env.metrics,
			Events:  env.events,
			Logger:  logger,
		}),
		Metrics:        env.metrics,
		HealthChecks:   checks,
		DisableReqLogs: true,
	})
	emailsvc.ClearSentMessages()
	return env
}

func (env *apiEnv) do(method, path, token string, body ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, body...)
	env.app.ServeHTTP(rec, req)
	return rec
}

func (env *apiEnv) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(env.conf, echoapi.GetUserClaims(env.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, env *apiEnv, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}
