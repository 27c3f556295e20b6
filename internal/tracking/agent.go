package tracking

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"paraderos-agent/internal/location"
	"paraderos-agent/internal/metrics"
	"paraderos-agent/internal/models"
	"paraderos-agent/internal/reporting"
	"paraderos-agent/internal/session"
	"paraderos-agent/internal/tasks"
)

// Deps are the collaborators an Agent is assembled from
type Deps struct {
	Registry *tasks.Registry
	Source   location.Source
	Store    session.Store
	// Reporter is used by the location task, Heartbeat by the watchdog.
	// Heartbeat defaults to Reporter.
	Reporter  Reporter
	Heartbeat Reporter
	Notifier  Notifier
	Metrics   *metrics.Collector
	// Publisher is optional
	Publisher Publisher
}

// Options tune the tasks
type Options struct {
	Updates           location.UpdatesConfig
	WatchdogInterval  time.Duration
	HeartbeatAccuracy location.Accuracy
}

// ReportSummary describes the most recent report attempt
type ReportSummary struct {
	Source   string    `json:"source"`
	Outcome  string    `json:"outcome"`
	Error    string    `json:"error,omitempty"`
	Duration string    `json:"duration"`
	At       time.Time `json:"at"`
}

// Status is a point-in-time view of the agent
type Status struct {
	Tracking           bool              `json:"tracking"`
	WatchdogRegistered bool              `json:"watchdog_registered"`
	Background         tasks.Status      `json:"background"`
	Registrations      []string          `json:"registrations"`
	SessionPresent     bool              `json:"session_present"`
	UserID             int               `json:"user_id,omitempty"`
	ActiveOrder        *models.WorkOrder `json:"active_order,omitempty"`
	LastReport         *ReportSummary    `json:"last_report,omitempty"`
}

// Agent owns both background tasks and the controller that drives them
type Agent struct {
	Controller *Controller
	Location   *LocationTask
	Watchdog   *Watchdog

	registry  *tasks.Registry
	store     session.Store
	publisher Publisher

	lastReport *ReportSummary
	mutex      sync.RWMutex
}

// NewAgent defines both tasks on the registry. The watchdog is not
// registered until EnsureWatchdogRegistered.
func NewAgent(deps Deps, opts Options) *Agent {
	if deps.Heartbeat == nil {
		deps.Heartbeat = deps.Reporter
	}

	a := &Agent{
		registry:  deps.Registry,
		store:     deps.Store,
		publisher: deps.Publisher,
	}
	a.Controller = NewController(deps.Source, deps.Registry, deps.Notifier, opts.Updates, opts.WatchdogInterval, deps.Metrics)
	a.Controller.publisher = deps.Publisher
	a.Location = &LocationTask{
		Store:    deps.Store,
		Reporter: deps.Reporter,
		Metrics:  deps.Metrics,
		OnReport: a.recordReport,
	}
	a.Watchdog = &Watchdog{
		Store:             deps.Store,
		Source:            deps.Source,
		Reporter:          deps.Heartbeat,
		Updates:           opts.Updates,
		HeartbeatAccuracy: opts.HeartbeatAccuracy,
		Metrics:           deps.Metrics,
		OnReport:          a.recordReport,
		OnRearm: func() {
			if a.publisher != nil {
				a.publisher.Publish(EventTrackingRearmed, nil)
			}
		},
	}

	deps.Registry.Define(LocationTaskName, a.Location.Run)
	deps.Registry.Define(WatchdogTaskName, a.Watchdog.Run)
	deps.Registry.OnExpiration(func(name string) {
		log.Printf("⏱️  [TRACKING] %s was stopped by the scheduler budget", name)
	})
	return a
}

// RunWatchdog invokes the watchdog once, outside its periodic schedule
func (a *Agent) RunWatchdog(ctx context.Context) tasks.Result {
	return a.registry.Invoke(ctx, WatchdogTaskName, nil, nil)
}

// Status reads the store afresh; a corrupt entry shows up as absent
func (a *Agent) Status(ctx context.Context) (Status, error) {
	st := Status{
		Tracking:           a.Controller.Tracking(),
		WatchdogRegistered: a.registry.IsRegistered(WatchdogTaskName),
		Background:         a.registry.Status(),
		Registrations:      a.registry.Registrations(),
	}

	s, err := session.ReadSession(ctx, a.store)
	if err != nil {
		return st, err
	}
	st.SessionPresent = s.Complete()
	st.UserID = s.UserID

	wo, err := session.ReadActiveWorkOrder(ctx, a.store)
	if err != nil && !errors.Is(err, session.ErrCorrupt) {
		return st, err
	}
	st.ActiveOrder = wo

	a.mutex.RLock()
	if a.lastReport != nil {
		last := *a.lastReport
		st.LastReport = &last
	}
	a.mutex.RUnlock()
	return st, nil
}

func (a *Agent) recordReport(source string, r reporting.Result) {
	summary := &ReportSummary{
		Source:   source,
		Outcome:  string(r.Outcome),
		Duration: r.Duration.String(),
		At:       time.Now().UTC(),
	}
	if r.Err != nil {
		summary.Error = r.Err.Error()
	}

	a.mutex.Lock()
	a.lastReport = summary
	a.mutex.Unlock()

	if a.publisher != nil {
		a.publisher.Publish(EventReport, summary)
	}
}
