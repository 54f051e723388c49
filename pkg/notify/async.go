package notify

import (
	"log/slog"

	"github.com/ravell/memwatchd/pkg/pressure"
)

type message struct {
	subject string
	body    string
}

// Async decouples delivery from the monitoring loop: Send enqueues and
// returns immediately while a single worker drains the queue in order.
// When the queue is full the newest message is dropped with a log line,
// trading completeness for a loop that can never stall behind a slow
// mailer.
type Async struct {
	next  pressure.Notifier
	queue chan message
	done  chan struct{}
	log   *slog.Logger
}

var _ pressure.Notifier = (*Async)(nil)

// NewAsync starts the delivery worker. depth bounds the queue.
func NewAsync(next pressure.Notifier, depth int, logger *slog.Logger) *Async {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		next:  next,
		queue: make(chan message, depth),
		done:  make(chan struct{}),
		log:   logger.With("component", "notify"),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for msg := range a.queue {
		a.next.Send(msg.subject, msg.body)
	}
}

func (a *Async) Send(subject, body string) {
	select {
	case a.queue <- message{subject: subject, body: body}:
	default:
		a.log.Warn("notification queue full, dropping", "subject", subject)
	}
}

// Close drains whatever is queued and stops the worker. Send must not be
// called after Close.
func (a *Async) Close() {
	close(a.queue)
	<-a.done
}
