package emailsvc

import (
	"github.com/trezcool/masomo-guardian/core"
)

// New returns the email service selected by `mail.backend`.
func New(conf *core.Config, logger core.Logger) core.EmailService {
	switch conf.Mail.Backend {
	case "sendgrid":
		return NewSendgridService(conf, logger)
	case "smtp":
		return NewSMTPService(conf, logger)
	default:
		if conf.TestMode {
			return NewConsoleServiceMock(conf, logger)
		}
		return NewConsoleService(conf, logger)
	}
}
