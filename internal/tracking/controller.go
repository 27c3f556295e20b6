package tracking

import (
	"context"
	"log"
	"sync"
	"time"

	"paraderos-agent/internal/location"
	"paraderos-agent/internal/metrics"
	"paraderos-agent/internal/tasks"
)

const (
	permissionNoticeTitle = "Location permission required"
	permissionNoticeBody  = "Allow location access all the time so your route can be tracked"
)

// Controller starts and stops the location task in step with the active
// work order. Calls are serialized.
type Controller struct {
	source           location.Source
	registry         *tasks.Registry
	notifier         Notifier
	updates          location.UpdatesConfig
	watchdogInterval time.Duration
	metrics          *metrics.Collector
	publisher        Publisher
	mutex            sync.Mutex
}

func NewController(source location.Source, registry *tasks.Registry, notifier Notifier, updates location.UpdatesConfig, watchdogInterval time.Duration, m *metrics.Collector) *Controller {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Controller{
		source:           source,
		registry:         registry,
		notifier:         notifier,
		updates:          updates,
		watchdogInterval: watchdogInterval,
		metrics:          m,
	}
}

// StartTracking asks for both location permissions and starts continuous
// updates. A denial is shown to the user and returned as KindPermissionDenied.
func (c *Controller) StartTracking(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	fg, err := c.source.RequestForegroundPermission(ctx)
	if err != nil {
		return &Error{Kind: KindUnexpected, Op: "request foreground permission", Err: err}
	}
	if fg != location.PermissionGranted {
		return c.denied("foreground")
	}

	bg, err := c.source.RequestBackgroundPermission(ctx)
	if err != nil {
		return &Error{Kind: KindUnexpected, Op: "request background permission", Err: err}
	}
	if bg != location.PermissionGranted {
		return c.denied("background")
	}

	if c.source.IsRunning() {
		return nil
	}

	if err := c.source.StartContinuousUpdates(ctx, c.updates); err != nil {
		kind := KindOf(err)
		if kind == KindPermissionDenied {
			return c.denied("start updates")
		}
		return &Error{Kind: kind, Op: "start location updates", Err: err}
	}
	c.metrics.SetTrackingActive(true)
	c.publish(EventTrackingStarted)
	return nil
}

// StopTracking is a no-op when updates are not running
func (c *Controller) StopTracking(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.source.IsRunning() {
		return nil
	}
	if err := c.source.StopContinuousUpdates(ctx); err != nil {
		return &Error{Kind: KindUnexpected, Op: "stop location updates", Err: err}
	}
	c.metrics.SetTrackingActive(false)
	c.publish(EventTrackingStopped)
	return nil
}

// EnsureWatchdogRegistered registers the watchdog if the scheduler allows
// background execution. Silent when it does not.
func (c *Controller) EnsureWatchdogRegistered(ctx context.Context) error {
	if status := c.registry.Status(); status != tasks.StatusAvailable {
		log.Printf("⚠️  [WATCHDOG] Background execution %s, watchdog not registered", status)
		return nil
	}
	if c.registry.IsRegistered(WatchdogTaskName) {
		return nil
	}
	if err := c.registry.Register(WatchdogTaskName, tasks.Options{MinInterval: c.watchdogInterval}); err != nil {
		return &Error{Kind: KindUnexpected, Op: "register watchdog", Err: err}
	}
	return nil
}

// Tracking reports whether location updates are running
func (c *Controller) Tracking() bool {
	return c.source.IsRunning()
}

func (c *Controller) publish(eventType string) {
	if c.publisher != nil {
		c.publisher.Publish(eventType, nil)
	}
}

func (c *Controller) denied(which string) error {
	err := &Error{Kind: KindPermissionDenied, Op: which + " permission", Err: location.ErrPermissionDenied}
	log.Printf("❌ [TRACKING] %s", err)
	c.notifier.Notify(permissionNoticeTitle, permissionNoticeBody)
	return err
}
