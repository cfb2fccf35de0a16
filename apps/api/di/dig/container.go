package dig_container

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/masomo-guardian/apps/api/echo"
	"github.com/trezcool/masomo-guardian/core"
	"github.com/trezcool/masomo-guardian/core/attendance"
	"github.com/trezcool/masomo-guardian/core/otp"
	"github.com/trezcool/masomo-guardian/core/user"
	emailsvc "github.com/trezcool/masomo-guardian/services/email"
	eventsvc "github.com/trezcool/masomo-guardian/services/events"
	logsvc "github.com/trezcool/masomo-guardian/services/logger"
	metricsvc "github.com/trezcool/masomo-guardian/services/metrics"
	"github.com/trezcool/masomo-guardian/services/throttle"
	"github.com/trezcool/masomo-guardian/storage/database"
	dummydb "github.com/trezcool/masomo-guardian/storage/database/dummy"
	sqlxrepos "github.com/trezcool/masomo-guardian/storage/database/sqlx"
)

const setUpTimeout = 30 * time.Second

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// HealthCheck is a dependency checked by `/healthz`.
	HealthCheck struct {
		Name   string
		Pinger core.Pinger
	}

	// ClosersParam collects what must be closed on shutdown.
	ClosersParam struct {
		dig.In
		Closers []io.Closer `group:"closers"`
	}

	storage struct {
		dig.Out
		UserRepo       user.Repository
		OTPRepo        otp.Repository
		AttendanceRepo attendance.Repository
		HealthCheck    HealthCheck `group:"healthchecks"`
		Closer         io.Closer   `group:"closers"`
	}

	throttleOut struct {
		dig.Out
		Throttle    otp.Throttle
		HealthCheck HealthCheck `group:"healthchecks"`
		Closer      io.Closer   `group:"closers"`
	}

	eventsOut struct {
		dig.Out
		Publisher core.EventPublisher
		Closer    io.Closer `group:"closers"`
	}

	serverParams struct {
		dig.In
		Conf          *core.Config
		Logger        core.Logger
		Validate      *validator.Validate
		Translator    ut.Translator
		UserSvc       user.Service
		OTPSvc        *otp.Service
		AttendanceSvc *attendance.Service
		Metrics       *metricsvc.Prometheus
		HealthChecks  []HealthCheck `group:"healthchecks"`
	}

	closerFunc func() error
)

func (f closerFunc) Close() error { return f() }

var noopCloser = closerFunc(func() error { return nil })

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) storage {
	if conf.Database.Engine == "memory" {
		db := dummydb.Open()
		return storage{
			UserRepo:       dummydb.NewUserRepository(db),
			OTPRepo:        dummydb.NewOTPRepository(db),
			AttendanceRepo: dummydb.NewAttendanceRepository(db),
			HealthCheck:    HealthCheck{Name: "db", Pinger: db},
			Closer:         noopCloser,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), setUpTimeout)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		loggerParam.Logger.Fatal("setting up database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		loggerParam.Logger.Fatal("opening database", err)
	}
	if err = database.Migrate(db.DB, "up"); err != nil {
		loggerParam.Logger.Fatal("migrating database", err)
	}
	return storage{
		UserRepo:       sqlxrepos.NewUserRepository(db),
		OTPRepo:        sqlxrepos.NewOTPRepository(db),
		AttendanceRepo: sqlxrepos.NewAttendanceRepository(db),
		HealthCheck:    HealthCheck{Name: "db", Pinger: db},
		Closer:         db,
	}
}

func newThrottle(conf *core.Config) throttleOut {
	if conf.Redis.Addr == "" {
		t := throttle.NewMemoryThrottle(nil)
		return throttleOut{Throttle: t, HealthCheck: HealthCheck{Name: "throttle", Pinger: t}, Closer: noopCloser}
	}
	t := throttle.NewRedisThrottle(throttle.NewRedisClient(conf), "guardian:")
	return throttleOut{Throttle: t, HealthCheck: HealthCheck{Name: "redis", Pinger: t}, Closer: t}
}

func newEventPublisher(conf *core.Config, logger core.Logger) eventsOut {
	if conf.NATS.URL != "" {
		pub, err := eventsvc.NewNATSPublisher(conf, logger)
		if err == nil {
			return eventsOut{Publisher: pub, Closer: pub}
		}
		logger.Error("nats unavailable, events will only be logged", err)
	}
	return eventsOut{Publisher: eventsvc.NewLogPublisher(logger), Closer: noopCloser}
}

func newMetrics(m *metricsvc.Prometheus) core.Metrics {
	return m
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	otp.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate
}

func newOTPService(
	conf *core.Config,
	repo otp.Repository,
	users user.Service,
	mail core.EmailService,
	thr otp.Throttle,
	metrics core.Metrics,
	events core.EventPublisher,
	logger core.Logger,
) *otp.Service {
	return otp.NewService(conf, otp.Deps{
		Repo:     repo,
		Users:    users,
		Mail:     mail,
		Throttle: thr,
		Metrics:  metrics,
		Events:   events,
		Logger:   logger,
	})
}

func newAttendanceService(
	repo attendance.Repository,
	users user.Service,
	mail core.EmailService,
	metrics core.Metrics,
	events core.EventPublisher,
	logger core.Logger,
) *attendance.Service {
	return attendance.NewService(attendance.Deps{
		Repo:    repo,
		Users:   users,
		Mail:    mail,
		Metrics: metrics,
		Events:  events,
		Logger:  logger,
	})
}

func newServer(p serverParams) *echoapi.Server {
	checks := make(map[string]core.Pinger, len(p.HealthChecks))
	for _, hc := range p.HealthChecks {
		checks[hc.Name] = hc.Pinger
	}
	return echoapi.NewServer(p.Conf, echoapi.ServerDeps{
		Logger:         p.Logger,
		Validate:       p.Validate,
		Translator:     p.Translator,
		UserSvc:        p.UserSvc,
		OTPSvc:         p.OTPSvc,
		AttendanceSvc:  p.AttendanceSvc,
		Metrics:        p.Metrics,
		HealthChecks:   checks,
		DisableReqLogs: p.Conf.TestMode,
	})
}

// New returns a new dependency injection dig.Container.
// newConfig defaults to core.NewConfig.
func New(newConfig ...func() *core.Config) *dig.Container {
	c := dig.New()

	confFunc := core.NewConfig
	if len(newConfig) > 0 {
		confFunc = newConfig[0]
	}

	must(c.Provide(confFunc))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newThrottle))
	must(c.Provide(newEventPublisher))
	must(c.Provide(emailsvc.New))
	must(c.Provide(metricsvc.NewPrometheus))
	must(c.Provide(newMetrics))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(newOTPService))
	must(c.Provide(newAttendanceService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
