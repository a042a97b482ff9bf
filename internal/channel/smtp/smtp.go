// Package smtp delivers notifications as plain-text email over SMTP
// submission.
package smtp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"taskping/internal/channel"
	logx "taskping/pkg/logx"
)

type Config struct {
	Addr     string // host:port of the submission endpoint
	Username string
	Password string
	From     string
	StartTLS bool
}

type Channel struct {
	cfg Config
	log logx.Logger

	// send is swappable for tests; defaults to go-smtp submission.
	send func(ctx context.Context, from string, to []string, r io.Reader) error
}

func New(cfg Config, log logx.Logger) (*Channel, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("smtp addr is empty")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp from address is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Channel{cfg: cfg, log: log}
	c.send = c.submit
	return c, nil
}

func (c *Channel) Name() string { return "email" }

// Deliver renders a single-part MIME message and submits it. Any
// failure is returned as-is; the caller decides about retries.
func (c *Channel) Deliver(ctx context.Context, rcpt channel.Recipient, subject, body string) error {
	if strings.TrimSpace(rcpt.Email) == "" {
		return fmt.Errorf("recipient %q has no email address", rcpt.DisplayName)
	}

	msg, err := buildMessage(c.cfg.From, rcpt, subject, body)
	if err != nil {
		return fmt.Errorf("building mail: %w", err)
	}

	if err := c.send(ctx, c.cfg.From, []string{rcpt.Email}, msg); err != nil {
		return fmt.Errorf("smtp submit to %s: %w", rcpt.Email, err)
	}

	c.log.Debug("mail submitted", logx.String("to", rcpt.Email), logx.String("subject", subject))
	return nil
}

func buildMessage(from string, rcpt channel.Recipient, subject, body string) (io.Reader, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Name: rcpt.DisplayName, Address: rcpt.Email}})
	h.SetSubject(subject)

	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, body); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func (c *Channel) submit(ctx context.Context, from string, to []string, r io.Reader) error {
	var auth sasl.Client
	if c.cfg.Username != "" {
		auth = sasl.NewPlainClient("", c.cfg.Username, c.cfg.Password)
	}

	// go-smtp's SendMail upgrades to STARTTLS when the server offers
	// it, which covers the submission setups this daemon targets.
	done := make(chan error, 1)
	go func() {
		done <- gosmtp.SendMail(c.cfg.Addr, auth, from, to, r)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
