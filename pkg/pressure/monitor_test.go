package pressure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type groupStep struct {
	samples map[int]GroupSample
	err     error
}

type systemStep struct {
	snap SystemSnapshot
	err  error
}

// scriptedSampler replays prepared readings call by call; the last step
// repeats once the script runs out. A non-nil groupPolled gets a ping per
// SnapshotGroups call, letting loop tests wait for a poll instead of
// sleeping.
type scriptedSampler struct {
	groupSteps  []groupStep
	systemSteps []systemStep
	groupCalls  int
	systemCalls int
	killed      []int
	killErr     error
	groupPolled chan struct{}
}

func (s *scriptedSampler) SnapshotGroups() (map[int]GroupSample, error) {
	step := s.groupSteps[min(s.groupCalls, len(s.groupSteps)-1)]
	s.groupCalls++
	if s.groupPolled != nil {
		select {
		case s.groupPolled <- struct{}{}:
		default:
		}
	}
	return step.samples, step.err
}

func (s *scriptedSampler) SnapshotSystemMemory() (SystemSnapshot, error) {
	step := s.systemSteps[min(s.systemCalls, len(s.systemSteps)-1)]
	s.systemCalls++
	return step.snap, step.err
}

func (s *scriptedSampler) Terminate(pgid int) error {
	s.killed = append(s.killed, pgid)
	return s.killErr
}

type recordingNotifier struct {
	subjects []string
	bodies   []string
}

func (n *recordingNotifier) Send(subject, body string) {
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func healthy() systemStep {
	return systemStep{snap: SystemSnapshot{Total: 100 * gib, Available: 70 * gib}}
}

func newTestMonitor(t *testing.T, p *Policy, s *scriptedSampler) (*Monitor, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	m, err := NewMonitor(p, s, n, "lab-07", discardLogger())
	require.NoError(t, err)
	m.now = func() time.Time { return t0 }
	return m, n
}

func TestMonitorStartupFailure(t *testing.T) {
	s := &scriptedSampler{
		systemSteps: []systemStep{{err: errors.New("meminfo unreadable")}},
	}
	_, err := NewMonitor(ladder(), s, &recordingNotifier{}, "lab-07", discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host memory")
}

func TestMonitorWarnsThenMutes(t *testing.T) {
	p := ladder()
	s := &scriptedSampler{
		groupSteps: []groupStep{
			{samples: map[int]GroupSample{100: {User: "alice", CPUTime: 50, Memory: 60 * gib}}},
		},
		systemSteps: []systemStep{healthy()},
	}
	m, n := newTestMonitor(t, p, s)

	clock := t0
	m.now = func() time.Time { return clock }

	// First sighting: the group enters idle-as-of-now, so nothing fires.
	m.Tick()
	assert.Empty(t, n.subjects)

	// One interval with no CPU burned puts it over the zero allowance.
	clock = clock.Add(p.Interval)
	m.Tick()
	require.Equal(t, []string{"Memory Usage Warning: alice"}, n.subjects)
	assert.Contains(t, n.bodies[0], "kill -- -100")

	// Still idle, still over, but inside the cooldown.
	clock = clock.Add(p.Interval)
	m.Tick()
	assert.Len(t, n.subjects, 1)
}

func TestMonitorSkipsTickOnSamplingFailure(t *testing.T) {
	p := ladder()
	sample := map[int]GroupSample{100: {User: "alice", CPUTime: 50, Memory: 60 * gib}}
	s := &scriptedSampler{
		groupSteps: []groupStep{
			{samples: sample},
			{err: fmt.Errorf("read process table: %w", ErrSamplingUnavailable)},
			{samples: sample},
		},
		systemSteps: []systemStep{healthy()},
	}
	m, n := newTestMonitor(t, p, s)

	clock := t0
	m.now = func() time.Time { return clock }

	m.Tick()
	require.Equal(t, 1, m.tracker.Len())

	// The failed tick changes nothing: no drops, no warnings, no system check.
	clock = clock.Add(p.Interval)
	m.Tick()
	assert.Equal(t, 1, m.tracker.Len())
	assert.Empty(t, n.subjects)
	assert.Equal(t, 2, s.systemCalls) // startup plus the one good tick

	// Idle time kept accruing across the gap, so the next good tick warns.
	clock = clock.Add(p.Interval)
	m.Tick()
	assert.Equal(t, []string{"Memory Usage Warning: alice"}, n.subjects)
}

func TestMonitorTerminateCascade(t *testing.T) {
	p := ladder()
	p.TerminateEnabled = true
	s := &scriptedSampler{
		groupSteps: []groupStep{
			{samples: map[int]GroupSample{
				100: {User: "alice", Memory: 40 * gib},
				200: {User: "bob", Memory: 30 * gib},
			}},
			{samples: map[int]GroupSample{
				200: {User: "bob", Memory: 30 * gib},
			}},
		},
		systemSteps: []systemStep{
			healthy(), // startup measure
			{snap: SystemSnapshot{Total: 100 * gib, Available: 4 * gib}},
			{snap: SystemSnapshot{Total: 100 * gib, Available: 12 * gib}},
		},
	}
	m, n := newTestMonitor(t, p, s)

	m.Tick()

	// One kill clears the pressure: the heaviest group goes, the re-check
	// comes back fine, and no plain critical warning follows.
	assert.Equal(t, []int{100}, s.killed)
	require.Equal(t, []string{"System Memory Critical (Terminated 100)"}, n.subjects)
	assert.Equal(t,
		"Critical warning: lab-07 memory usage high: 4.0GB of 100.0GB available (4.00%).\n\n"+
			"Terminated alice's process group 100 and freed 40.0GB (40.00%) of RAM.",
		n.bodies[0])
	assert.Equal(t, 1, m.tracker.Len())
}

func TestMonitorCascadeDowngradesWithoutVictims(t *testing.T) {
	p := ladder()
	p.TerminateEnabled = true
	s := &scriptedSampler{
		groupSteps: []groupStep{{samples: map[int]GroupSample{}}},
		systemSteps: []systemStep{
			healthy(),
			{snap: SystemSnapshot{Total: 100 * gib, Available: 2 * gib}},
		},
	}
	m, n := newTestMonitor(t, p, s)

	m.Tick()

	assert.Empty(t, s.killed)
	require.Equal(t, []string{"System Memory Critical"}, n.subjects)
	assert.Equal(t,
		"Critical warning: lab-07 memory usage high: 2.0GB of 100.0GB available (2.00%).",
		n.bodies[0])
}

func TestMonitorCascadeCapsKills(t *testing.T) {
	p := ladder()
	p.TerminateEnabled = true
	// The sampler keeps reporting the same groups after every kill and the
	// host never recovers: the cascade must stop at the starting population.
	s := &scriptedSampler{
		groupSteps: []groupStep{
			{samples: map[int]GroupSample{
				100: {User: "alice", Memory: 40 * gib},
				200: {User: "bob", Memory: 30 * gib},
			}},
		},
		systemSteps: []systemStep{
			healthy(),
			{snap: SystemSnapshot{Total: 100 * gib, Available: 2 * gib}},
		},
	}
	m, n := newTestMonitor(t, p, s)

	m.Tick()

	assert.Len(t, s.killed, 2)
	require.Len(t, n.subjects, 3)
	assert.Equal(t, "System Memory Critical (Terminated 100)", n.subjects[0])
	assert.Equal(t, "System Memory Critical (Terminated 100)", n.subjects[1])
	assert.Equal(t, "System Memory Critical", n.subjects[2])
}

func TestMonitorCascadeStopsOnSamplingFailure(t *testing.T) {
	samples := map[int]GroupSample{
		100: {User: "alice", Memory: 40 * gib},
		200: {User: "bob", Memory: 30 * gib},
	}
	low := systemStep{snap: SystemSnapshot{Total: 100 * gib, Available: 4 * gib}}

	t.Run("process table goes away", func(t *testing.T) {
		p := ladder()
		p.TerminateEnabled = true
		s := &scriptedSampler{
			groupSteps: []groupStep{
				{samples: samples},
				{err: fmt.Errorf("read process table: %w", ErrSamplingUnavailable)},
			},
			systemSteps: []systemStep{healthy(), low},
		}
		m, n := newTestMonitor(t, p, s)

		m.Tick()

		// One kill, then the failed group pass ends the cascade with the
		// plain critical warning; the tracked set is left as it was.
		assert.Equal(t, []int{100}, s.killed)
		require.Equal(t, []string{
			"System Memory Critical (Terminated 100)",
			"System Memory Critical",
		}, n.subjects)
		assert.Equal(t, 2, m.tracker.Len())
	})

	t.Run("host snapshot goes away", func(t *testing.T) {
		p := ladder()
		p.TerminateEnabled = true
		s := &scriptedSampler{
			groupSteps: []groupStep{{samples: samples}},
			systemSteps: []systemStep{
				healthy(),
				low,
				{err: errors.New("meminfo unreadable")},
			},
		}
		m, n := newTestMonitor(t, p, s)

		m.Tick()

		// The re-sample after the kill fails, so the warning falls back to
		// the reading that triggered the cascade.
		assert.Equal(t, []int{100}, s.killed)
		require.Equal(t, []string{
			"System Memory Critical (Terminated 100)",
			"System Memory Critical",
		}, n.subjects)
		assert.Contains(t, n.bodies[1], "4.0GB of 100.0GB")
		assert.Equal(t, 2, m.tracker.Len())
	})
}

func TestMonitorTerminateFailureStillWarns(t *testing.T) {
	p := ladder()
	p.TerminateEnabled = true
	s := &scriptedSampler{
		groupSteps: []groupStep{
			{samples: map[int]GroupSample{100: {User: "alice", Memory: 40 * gib}}},
		},
		systemSteps: []systemStep{
			healthy(),
			{snap: SystemSnapshot{Total: 100 * gib, Available: 4 * gib}},
			{snap: SystemSnapshot{Total: 100 * gib, Available: 12 * gib}},
		},
		killErr: errors.New("operation not permitted"),
	}
	m, n := newTestMonitor(t, p, s)

	m.Tick()

	// The signal failed but the monitor carries on: combined warning out,
	// cascade finishes on the recovered snapshot.
	assert.Equal(t, []int{100}, s.killed)
	assert.Equal(t, []string{"System Memory Critical (Terminated 100)"}, n.subjects)
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	p := ladder()
	p.Interval = 10 * time.Millisecond
	s := &scriptedSampler{
		groupSteps:  []groupStep{{samples: map[int]GroupSample{}}},
		systemSteps: []systemStep{healthy()},
		groupPolled: make(chan struct{}, 16),
	}
	m, _ := newTestMonitor(t, p, s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	// Two observed polls prove the immediate tick plus at least one ticker
	// fire, however loaded the machine is.
	for i := 0; i < 2; i++ {
		select {
		case <-s.groupPolled:
		case <-time.After(5 * time.Second):
			t.Fatal("monitor stopped polling")
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop on cancel")
	}
	assert.GreaterOrEqual(t, s.groupCalls, 2)
}

func TestMonitorLogsVerdictAndAction(t *testing.T) {
	p := ladder()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s := &scriptedSampler{
		groupSteps: []groupStep{
			{samples: map[int]GroupSample{100: {User: "alice", CPUTime: 50, Memory: 60 * gib}}},
		},
		systemSteps: []systemStep{healthy()},
	}
	n := &recordingNotifier{}
	m, err := NewMonitor(p, s, n, "lab-07", logger)
	require.NoError(t, err)

	clock := t0
	m.now = func() time.Time { return clock }

	m.Tick()
	clock = clock.Add(p.Interval)
	m.Tick()

	out := buf.String()
	assert.Contains(t, out, "verdict=ok")
	assert.Contains(t, out, "verdict=warned")
	assert.Contains(t, out, "action=ok")
}

func TestSystemSnapshotAvailableFraction(t *testing.T) {
	snap := SystemSnapshot{Total: 100 * gib, Available: 110 * gib, SwapFree: 40 * gib}
	assert.InDelta(t, 1.1, snap.AvailableFraction(), 1e-9)

	assert.Zero(t, SystemSnapshot{}.AvailableFraction())
}
