package emailsvc

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/trezcool/masomo-guardian/core"
)

type smtpService struct {
	dialer     *gomail.Dialer
	site       core.SiteData
	from       string
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*smtpService)(nil)

// NewSMTPService sends emails through an SMTP relay (e.g. mailhog in development).
func NewSMTPService(conf *core.Config, logger core.Logger) core.EmailService {
	return &smtpService{
		dialer:     gomail.NewDialer(conf.Mail.SMTPHost, conf.Mail.SMTPPort, conf.Mail.SMTPUser, conf.Mail.SMTPPassword),
		site:       core.NewSiteData(conf),
		from:       conf.DefaultFromEmail.String(),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc smtpService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(svc.site); err != nil {
				svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
				return
			}
			if msg.HasRecipients() && msg.HasContent() {
				if err := svc.dialer.DialAndSend(svc.prepare(*msg)); err != nil {
					svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
				}
			}
		}()
	}
}

func (svc smtpService) prepare(msg core.EmailMessage) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", svc.from)
	m.SetHeader("Subject", svc.subjPrefix+msg.Subject)

	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, m.FormatAddress(addr.Address, addr.Name))
	}
	m.SetHeader("To", to...)
	if len(msg.Cc) > 0 {
		cc := make([]string, 0, len(msg.Cc))
		for _, addr := range msg.Cc {
			cc = append(cc, m.FormatAddress(addr.Address, addr.Name))
		}
		m.SetHeader("Cc", cc...)
	}
	if len(msg.Bcc) > 0 {
		bcc := make([]string, 0, len(msg.Bcc))
		for _, addr := range msg.Bcc {
			bcc = append(bcc, addr.Address)
		}
		m.SetHeader("Bcc", bcc...)
	}

	m.SetBody("text/plain", msg.TextContent)
	if msg.HTMLContent != "" {
		m.AddAlternative("text/html", msg.HTMLContent)
	}
	return m
}
