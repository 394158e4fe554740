package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSender envia el correo de verificacion via SMTP.
type SMTPSender struct {
	host        string
	port        int
	username    string
	password    string
	from        string
	fromName    string
	useTLS      bool
	frontendURL string
}

func NewSMTPSender(host string, port int, username, password, from, fromName, frontendURL string, useTLS bool) (*SMTPSender, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("smtp from is required")
	}
	if port == 0 {
		port = 587
	}
	return &SMTPSender{
		host:        host,
		port:        port,
		username:    username,
		password:    password,
		from:        from,
		fromName:    fromName,
		useTLS:      useTLS,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}, nil
}

func (s *SMTPSender) SendVerification(_ context.Context, m VerificationEmail) error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("to email is required")
	}

	verificationURL := fmt.Sprintf("%s/verify-email?token=%s", s.frontendURL, m.Token)
	subject := "Verify Your Email - Cosmic User Registration"
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"Thank you for registering. Please verify your email address by opening:\n\n"+
			"%s\n\n"+
			"This link will expire in 24 hours.\n\n"+
			"Your Account Details:\n"+
			"  Username: %s\n"+
			"  Display Name: %s\n"+
			"  System Email: %s\n\n"+
			"If you did not create this account, please ignore this email.\n\n"+
			"Best regards,\nCosmic Registration Team\n",
		m.DisplayName,
		verificationURL,
		m.Username,
		m.DisplayName,
		m.SystemEmail,
	)
	msg := buildMessage(s.from, s.fromName, m.To, subject, body)
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	if s.useTLS {
		conn, err := tls.Dial("tcp", addr, &tls.Config{
			ServerName: s.host,
		})
		if err != nil {
			return err
		}
		defer conn.Close()

		client, err := smtp.NewClient(conn, s.host)
		if err != nil {
			return err
		}
		defer client.Quit()

		if auth != nil {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
		if err := client.Mail(s.from); err != nil {
			return err
		}
		if err := client.Rcpt(m.To); err != nil {
			return err
		}
		writer, err := client.Data()
		if err != nil {
			return err
		}
		if _, err := writer.Write([]byte(msg)); err != nil {
			_ = writer.Close()
			return err
		}
		return writer.Close()
	}

	return smtp.SendMail(addr, auth, s.from, []string{m.To}, []byte(msg))
}

func buildMessage(from, fromName, to, subject, body string) string {
	fromHeader := from
	if strings.TrimSpace(fromName) != "" {
		fromHeader = fmt.Sprintf("%s <%s>", fromName, from)
	}

	headers := []string{
		fmt.Sprintf("From: %s", fromHeader),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
	}

	return strings.Join(headers, "\r\n") + "\r\n\r\n" + body
}
