package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"paraderos-agent/internal/location"
	"paraderos-agent/internal/metrics"
	"paraderos-agent/internal/models"
	"paraderos-agent/internal/reporting"
	"paraderos-agent/internal/session"
	"paraderos-agent/internal/tasks"
)

// Watchdog re-arms location updates the platform stopped behind our back and
// sends a best-effort heartbeat position
type Watchdog struct {
	Store             session.Store
	Source            location.Source
	Reporter          Reporter
	Updates           location.UpdatesConfig
	HeartbeatAccuracy location.Accuracy
	Metrics           *metrics.Collector
	Now               func() time.Time
	OnReport          func(source string, r reporting.Result)
	OnRearm           func()
}

// Run is the task body registered under WatchdogTaskName
func (w *Watchdog) Run(ctx context.Context, inv tasks.Invocation) (result tasks.Result) {
	defer func() {
		if p := recover(); p != nil {
			logFailure("WATCHDOG", &Error{Kind: KindUnexpected, Op: inv.ID, Err: fmt.Errorf("panic: %v", p)})
			result = tasks.ResultFailed
		}
		w.Metrics.RecordInvocation(WatchdogTaskName, result.String())
	}()

	wo, err := session.ReadActiveWorkOrder(ctx, w.Store)
	if err != nil && !errors.Is(err, session.ErrCorrupt) {
		logFailure("WATCHDOG", &Error{Kind: KindUnexpected, Op: "read work order", Err: err})
		return tasks.ResultFailed
	}
	if !wo.Active() {
		return tasks.ResultSuccess
	}

	if !w.Source.IsRunning() {
		log.Printf("⚠️  [WATCHDOG] Location updates not running for order #%d, re-arming", wo.ID)
		if err := w.Source.StartContinuousUpdates(ctx, w.Updates); err != nil {
			logFailure("WATCHDOG", &Error{Kind: KindOf(err), Op: "re-arm location updates", Err: err})
			return tasks.ResultFailed
		}
		w.Metrics.RecordRearm()
		w.Metrics.SetTrackingActive(true)
		if w.OnRearm != nil {
			w.OnRearm()
		}
		log.Printf("✅ [WATCHDOG] Location updates re-armed")
	}

	w.heartbeat(ctx)
	return tasks.ResultSuccess
}

// heartbeat never fails the invocation
func (w *Watchdog) heartbeat(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("❌ [WATCHDOG] Heartbeat panicked: %v", p)
		}
	}()

	accuracy := w.HeartbeatAccuracy
	if accuracy == "" {
		accuracy = location.AccuracyBalanced
	}

	sample, err := w.Source.CurrentPosition(ctx, accuracy)
	if err != nil {
		log.Printf("⚠️  [WATCHDOG] Heartbeat skipped, no position: %v", err)
		return
	}

	s, err := session.ReadSession(ctx, w.Store)
	if err != nil {
		log.Printf("⚠️  [WATCHDOG] Heartbeat skipped, session unreadable: %v", err)
		return
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if !s.Complete() || session.TokenExpired(s.AccessToken, now()) {
		logFailure("WATCHDOG", &Error{Kind: KindSessionAbsent, Op: "heartbeat"})
		return
	}

	r := w.Reporter.Report(ctx, models.NewPositionUpdate(s.UserID, sample), s.AccessToken)
	w.Metrics.RecordReport("watchdog", string(r.Outcome), r.Duration.Seconds())
	if w.OnReport != nil {
		w.OnReport("watchdog", r)
	}
	if !r.OK() {
		logFailure("WATCHDOG", &Error{Kind: kindOfReport(r), Op: "heartbeat " + r.TraceID, Err: r.Err})
	}
}
