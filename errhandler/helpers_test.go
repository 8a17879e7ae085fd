package errhandler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jathurchan/bgerr/types"
)

const (
	testWaitFor = 2 * time.Second
	testTick    = 2 * time.Millisecond
)

// testOptions returns options with millisecond backoff so recovery loops
// finish quickly.
func testOptions() Options {
	opts := DefaultOptions()
	opts.BackoffBase = time.Millisecond
	opts.BackoffCap = 4 * time.Millisecond
	opts.MaxRetryAttempts = 3
	opts.DiscardedErrorLogInterval = 0
	return opts
}

type testEnv struct {
	mu       *sync.Mutex
	h        *ErrorHandler
	metrics  *mockMetrics
	listener *recordingListener
}

func newTestEnv(t *testing.T, opts Options, configure func(*Dependencies)) *testEnv {
	t.Helper()
	mu := &sync.Mutex{}
	env := &testEnv{
		mu:       mu,
		metrics:  newMockMetrics(),
		listener: newRecordingListener(),
	}
	deps := Dependencies{
		Mu:        mu,
		Metrics:   env.metrics,
		Listeners: []EventListener{env.listener},
	}
	if configure != nil {
		configure(&deps)
	}
	h, err := NewErrorHandler(opts, deps)
	require.NoError(t, err)
	env.h = h

	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		h.EndAutoRecovery()
		_ = h.Close()
	})
	return env
}

// locked runs fn with the host mutex held.
func (e *testEnv) locked(fn func(h *ErrorHandler)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.h)
}

func (e *testEnv) record(o types.Outcome, reason types.Reason) types.Outcome {
	var out types.Outcome
	e.locked(func(h *ErrorHandler) { out = h.RecordError(o, reason) })
	return out
}

func (e *testEnv) bgError() types.Outcome {
	var out types.Outcome
	e.locked(func(h *ErrorHandler) { out = h.BackgroundError() })
	return out
}

func (e *testEnv) inProgress() bool {
	var out bool
	e.locked(func(h *ErrorHandler) { out = h.IsRecoveryInProgress() })
	return out
}

// waitRecoveryEnd blocks until the listener has seen n recovery ends.
func (e *testEnv) waitRecoveryEnd(t *testing.T, n int) []RecoveryEndInfo {
	t.Helper()
	require.Eventually(t, func() bool { return len(e.listener.ends()) >= n },
		testWaitFor, testTick, "expected %d recovery end(s)", n)
	return e.listener.ends()
}

// spaceProbe is a SpaceMonitor whose answer can be flipped by tests.
type spaceProbe struct {
	enough atomic.Bool
	calls  atomic.Int32
	err    atomic.Value // error
}

func (p *spaceProbe) EnoughSpaceAvailable(ctx context.Context) (bool, error) {
	p.calls.Add(1)
	if v := p.err.Load(); v != nil {
		if err, ok := v.(error); ok && err != nil {
			return false, err
		}
	}
	return p.enough.Load(), nil
}

// retryHook is a RetryFunc that fails until told to succeed.
type retryHook struct {
	mu       sync.Mutex
	calls    int
	failWith types.Outcome
	block    chan struct{}
}

func newRetryHook(failWith types.Outcome) *retryHook {
	return &retryHook{failWith: failWith}
}

func (r *retryHook) fn(ctx context.Context, reason types.Reason) types.Outcome {
	r.mu.Lock()
	r.calls++
	block := r.block
	out := r.failWith
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return types.FromError(ctx.Err())
		}
	}
	return out
}

func (r *retryHook) succeed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = types.OK()
}

func (r *retryHook) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type mockMetrics struct {
	mu          sync.Mutex
	errors      map[types.Reason]int
	severity    types.Severity
	starts      map[RecoveryKind]int
	attempts    map[RecoveryKind]int
	successes   map[RecoveryKind]int
	endsByState map[RecoveryResult]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{
		errors:      make(map[types.Reason]int),
		starts:      make(map[RecoveryKind]int),
		attempts:    make(map[RecoveryKind]int),
		successes:   make(map[RecoveryKind]int),
		endsByState: make(map[RecoveryResult]int),
	}
}

func (m *mockMetrics) ObserveBackgroundError(reason types.Reason, severity types.Severity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[reason]++
}

func (m *mockMetrics) ObserveSeverity(severity types.Severity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.severity = severity
}

func (m *mockMetrics) ObserveRecoveryStart(kind RecoveryKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts[kind]++
}

func (m *mockMetrics) ObserveRecoveryAttempt(kind RecoveryKind, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[kind]++
	if success {
		m.successes[kind]++
	}
}

func (m *mockMetrics) ObserveRecoveryEnd(kind RecoveryKind, result RecoveryResult, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endsByState[result]++
}

func (m *mockMetrics) startCount(kind RecoveryKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts[kind]
}

func (m *mockMetrics) currentSeverity() types.Severity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.severity
}

// recordingListener captures every callback. Its own mutex is separate from
// the host mutex so tests can read it while recovery runs.
type recordingListener struct {
	mu       sync.Mutex
	bgErrors []types.Outcome
	begins   int
	endInfos []RecoveryEndInfo
	veto     bool
}

func newRecordingListener() *recordingListener {
	return &recordingListener{}
}

func (l *recordingListener) OnBackgroundError(reason types.Reason, bgError types.Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bgErrors = append(l.bgErrors, bgError)
}

func (l *recordingListener) OnErrorRecoveryBegin(reason types.Reason, bgError types.Outcome) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.begins++
	return !l.veto
}

func (l *recordingListener) OnErrorRecoveryEnd(info RecoveryEndInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.endInfos = append(l.endInfos, info)
}

func (l *recordingListener) setVeto(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.veto = v
}

func (l *recordingListener) ends() []RecoveryEndInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]RecoveryEndInfo(nil), l.endInfos...)
}

func (l *recordingListener) backgroundErrors() []types.Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.Outcome(nil), l.bgErrors...)
}

func (l *recordingListener) beginCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.begins
}

type panickingListener struct {
	NoOpEventListener
}

func (panickingListener) OnBackgroundError(types.Reason, types.Outcome) {
	panic("listener failure")
}
