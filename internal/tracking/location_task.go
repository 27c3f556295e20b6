package tracking

import (
	"context"
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

// Reporter pushes one position update
type Reporter interface {
	Report(ctx context.Context, msg models.PositionUpdateMessage, token string) reporting.Result
}

// LocationTask forwards the newest sample of each delivered batch. It keeps
// no state between invocations; everything is read from the store.
type LocationTask struct {
	Store    session.Store
	Reporter Reporter
	Metrics  *metrics.Collector
	Now      func() time.Time
	// OnReport observes every report attempt
	OnReport func(source string, r reporting.Result)
}

// Run is the task body registered under LocationTaskName
func (t *LocationTask) Run(ctx context.Context, inv tasks.Invocation) (result tasks.Result) {
	defer func() {
		if p := recover(); p != nil {
			logFailure("LOCATION TASK", &Error{Kind: KindUnexpected, Op: inv.ID, Err: fmt.Errorf("panic: %v", p)})
			result = tasks.ResultFailed
		}
		t.Metrics.RecordInvocation(LocationTaskName, result.String())
	}()

	if inv.Err != nil {
		log.Printf("❌ [LOCATION TASK] Invocation %s delivered an error: %v", inv.ID, inv.Err)
		return tasks.ResultNoData
	}

	sample, ok := latestSample(inv.Data)
	if !ok {
		return tasks.ResultNoData
	}

	s, err := session.ReadSession(ctx, t.Store)
	if err != nil {
		logFailure("LOCATION TASK", &Error{Kind: KindUnexpected, Op: "read session", Err: err})
		return tasks.ResultFailed
	}
	if !s.Complete() || session.TokenExpired(s.AccessToken, t.now()) {
		logFailure("LOCATION TASK", &Error{Kind: KindSessionAbsent, Op: "read session"})
		return tasks.ResultNoData
	}

	r := t.Reporter.Report(ctx, models.NewPositionUpdate(s.UserID, sample), s.AccessToken)
	t.Metrics.RecordReport("location", string(r.Outcome), r.Duration.Seconds())
	if t.OnReport != nil {
		t.OnReport("location", r)
	}
	if !r.OK() {
		logFailure("LOCATION TASK", &Error{Kind: kindOfReport(r), Op: "report " + r.TraceID, Err: r.Err})
	}

	// The report outcome does not change the task result
	return tasks.ResultSuccess
}

func (t *LocationTask) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func latestSample(data interface{}) (models.PositionSample, bool) {
	switch d := data.(type) {
	case location.Batch:
		return d.Latest()
	case *location.Batch:
		if d == nil {
			return models.PositionSample{}, false
		}
		return d.Latest()
	case []models.PositionSample:
		return location.Batch{Samples: d}.Latest()
	default:
		return models.PositionSample{}, false
	}
}
