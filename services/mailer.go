package services

import (
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// EmailMessage is one outbound email.
type EmailMessage struct {
	To      string
	From    string
	Subject string
	HTML    string
}

// Mailer delivers email. The SMTP implementation is used in production; the
// log implementation runs when SMTP is not configured and in tests.
type Mailer interface {
	Send(msg EmailMessage) error
}

// SMTPMailer sends through an SMTP relay via gomail.
type SMTPMailer struct {
	dialer     *gomail.Dialer
	senderName string
}

func NewSMTPMailer(host string, port int, user, password, senderName string) *SMTPMailer {
	return &SMTPMailer{
		dialer:     gomail.NewDialer(host, port, user, password),
		senderName: senderName,
	}
}

func (m *SMTPMailer) Send(msg EmailMessage) error {
	message := gomail.NewMessage()
	message.SetAddressHeader("From", msg.From, m.senderName)
	message.SetHeader("To", msg.To)
	message.SetHeader("Subject", msg.Subject)
	message.SetBody("text/html", msg.HTML)
	return m.dialer.DialAndSend(message)
}

// LogMailer logs instead of sending. Used when SMTP is unconfigured so
// local development does not require a relay.
type LogMailer struct{}

func (LogMailer) Send(msg EmailMessage) error {
	logrus.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("Email send simulated (SMTP not configured)")
	return nil
}
