package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"paraderos-agent/internal/location"
	"paraderos-agent/internal/models"
	"paraderos-agent/internal/reporting"
)

type fakeSource struct {
	mu sync.Mutex

	foreground location.PermissionStatus
	background location.PermissionStatus
	running    bool
	startErr   error
	fix        models.PositionSample
	fixErr     error
	fixPanic   bool

	fgPrompts int
	bgPrompts int
	starts    []location.UpdatesConfig
	stops     int
	fixCalls  int
}

func grantedSource() *fakeSource {
	return &fakeSource{
		foreground: location.PermissionGranted,
		background: location.PermissionGranted,
		fix: models.PositionSample{
			Latitude:   -33.6117,
			Longitude:  -70.5757,
			CapturedAt: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func (f *fakeSource) RequestForegroundPermission(ctx context.Context) (location.PermissionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fgPrompts++
	return f.foreground, nil
}

func (f *fakeSource) RequestBackgroundPermission(ctx context.Context) (location.PermissionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bgPrompts++
	return f.background, nil
}

func (f *fakeSource) StartContinuousUpdates(ctx context.Context, cfg location.UpdatesConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, cfg)
	if f.startErr != nil {
		return f.startErr
	}
	if f.foreground != location.PermissionGranted || f.background != location.PermissionGranted {
		return location.ErrPermissionDenied
	}
	f.running = true
	return nil
}

func (f *fakeSource) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeSource) StopContinuousUpdates(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
	return nil
}

func (f *fakeSource) CurrentPosition(ctx context.Context, accuracy location.Accuracy) (models.PositionSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixCalls++
	if f.fixPanic {
		panic("position provider crashed")
	}
	return f.fix, f.fixErr
}

func (f *fakeSource) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

type reportCall struct {
	msg   models.PositionUpdateMessage
	token string
}

type fakeReporter struct {
	mu      sync.Mutex
	calls   []reportCall
	outcome reporting.Outcome
}

func (r *fakeReporter) Report(ctx context.Context, msg models.PositionUpdateMessage, token string) reporting.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reportCall{msg: msg, token: token})

	outcome := r.outcome
	if outcome == "" {
		outcome = reporting.OutcomeAcked
	}
	res := reporting.Result{Outcome: outcome, Duration: time.Millisecond, TraceID: "trace"}
	if outcome != reporting.OutcomeAcked {
		res.Err = errors.New("report failed")
	}
	return res
}

func (r *fakeReporter) Calls() []reportCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reportCall(nil), r.calls...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *recordingNotifier) Notify(title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, title)
}

func (n *recordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

// failingStore fails every operation
type failingStore struct{}

var errStoreDown = errors.New("store unavailable")

func (failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errStoreDown
}

func (failingStore) Set(ctx context.Context, key, value string) error {
	return errStoreDown
}

func (failingStore) MultiRemove(ctx context.Context, keys ...string) error {
	return errStoreDown
}

type recordingPublisher struct {
	events []string
	mutex  sync.Mutex
}

func (p *recordingPublisher) Publish(eventType string, data interface{}) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.events = append(p.events, eventType)
}

func (p *recordingPublisher) Events() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]string(nil), p.events...)
}
