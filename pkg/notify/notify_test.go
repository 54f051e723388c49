package notify

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recorder) Send(subject, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func capture() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestLogNotifier(t *testing.T) {
	log, buf := capture()
	NewLog(log).Send("Memory Usage Warning: alice", "body text")

	assert.Contains(t, buf.String(), "Memory Usage Warning: alice")
	assert.Contains(t, buf.String(), "body text")
}

func TestFanout(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Fanout{a, b}.Send("subject", "body")

	assert.Equal(t, []string{"subject"}, a.subjects)
	assert.Equal(t, []string{"subject"}, b.subjects)
}

func TestMailSuccess(t *testing.T) {
	log, buf := capture()
	m := NewMail("admins@example.org", log)
	m.command = "true" // swallows the arguments and exits clean

	m.Send("subject", "body")
	assert.NotContains(t, buf.String(), "mail delivery failed")
}

func TestMailFailureIsLoggedNotFatal(t *testing.T) {
	log, buf := capture()
	m := NewMail("admins@example.org", log)
	m.command = "false"

	m.Send("subject", "body")
	assert.Contains(t, buf.String(), "mail delivery failed")
}

func TestMailMissingBinary(t *testing.T) {
	log, buf := capture()
	m := NewMail("admins@example.org", log)
	m.command = "memwatchd-no-such-mailer"

	m.Send("subject", "body")
	assert.Contains(t, buf.String(), "mail delivery failed")
}

func TestMailTimeout(t *testing.T) {
	log, buf := capture()
	m := NewMail("admins@example.org", log)

	script := filepath.Join(t.TempDir(), "slowmail")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 5\n"), 0o755))
	m.command = script
	m.timeout = 50 * time.Millisecond

	start := time.Now()
	m.Send("subject", "body")

	// The wedged mailer is killed at the deadline, well before its sleep.
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, buf.String(), "mail delivery failed")
}
