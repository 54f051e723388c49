// Package notify delivers warnings to their recipients. Delivery is
// best-effort everywhere: a notifier logs its failures and never returns
// them, since a monitoring pass must not die on a broken mailer.
package notify

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/ravell/memwatchd/pkg/pressure"
)

const mailTimeout = 30 * time.Second

// Mail pipes the body to the system mail command, the same delivery path
// an interactive `mail -s` would take.
type Mail struct {
	command   string
	recipient string
	timeout   time.Duration
	log       *slog.Logger
}

var _ pressure.Notifier = (*Mail)(nil)

// NewMail returns a notifier mailing the given recipient.
func NewMail(recipient string, logger *slog.Logger) *Mail {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mail{
		command:   "mail",
		recipient: recipient,
		timeout:   mailTimeout,
		log:       logger.With("component", "notify"),
	}
}

func (m *Mail) Send(subject, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.command, "-s", subject, m.recipient)
	cmd.Stdin = strings.NewReader(body)
	// Cap the pipe wait in case the mailer leaves children behind.
	cmd.WaitDelay = time.Second
	if out, err := cmd.CombinedOutput(); err != nil {
		m.log.Error("mail delivery failed",
			"recipient", m.recipient,
			"subject", subject,
			"err", err,
			"output", strings.TrimSpace(string(out)))
		return
	}
	m.log.Debug("mail sent", "recipient", m.recipient, "subject", subject)
}

// Log writes warnings to the logger and nowhere else, the mode for hosts
// without a configured recipient and for dry runs.
type Log struct {
	log *slog.Logger
}

var _ pressure.Notifier = (*Log)(nil)

// NewLog returns a log-only notifier.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{log: logger.With("component", "notify")}
}

func (l *Log) Send(subject, body string) {
	l.log.Warn("notification", "subject", subject, "body", body)
}

// Fanout delivers to every notifier in order.
type Fanout []pressure.Notifier

var _ pressure.Notifier = (Fanout)(nil)

func (f Fanout) Send(subject, body string) {
	for _, n := range f {
		n.Send(subject, body)
	}
}
