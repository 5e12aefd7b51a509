package mail

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/nmkhang/authcore/internal/config"
	"gopkg.in/gomail.v2"
)

type SMTPNotifier struct {
	*gomail.Dialer
	From string
}

func (s *SMTPNotifier) Send(message *Message) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.From)
	msg.SetHeader("To", message.To...)
	if len(message.Cc) > 0 {
		msg.SetHeader("Cc", message.Cc...)
	}
	msg.SetHeader("Subject", message.Subject)
	msg.SetBody("text/plain", message.Body)
	return s.DialAndSend(msg)
}

func dialSMTP(smtpCfg config.SMTPConfig) (*gomail.Dialer, error) {
	dialer := gomail.NewDialer(smtpCfg.Host, smtpCfg.Port, smtpCfg.Username, smtpCfg.Password)
	dialer.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	if smtpCfg.TLS {
		cert, err := tls.LoadX509KeyPair(smtpCfg.CertFile, smtpCfg.KeyFile)
		if err != nil {
			return nil, err
		}

		caPool := x509.NewCertPool()
		if smtpCfg.CAFile != "" {
			caCert, err := os.ReadFile(smtpCfg.CAFile)
			if err != nil {
				return nil, err
			}
			caPool.AppendCertsFromPEM(caCert)
		}

		dialer.TLSConfig = &tls.Config{
			ServerName:         smtpCfg.Host,
			InsecureSkipVerify: true,
			Certificates:       []tls.Certificate{cert},
			RootCAs:            caPool,
		}
	}
	return dialer, nil
}

func NewSMTPNotifier(smtpCfg config.SMTPConfig, from string) (*SMTPNotifier, error) {
	dialer, err := dialSMTP(smtpCfg)
	if err != nil {
		return nil, err
	}
	return &SMTPNotifier{
		Dialer: dialer,
		From:   from,
	}, nil
}
