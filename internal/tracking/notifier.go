package tracking

import "log"

// Notifier shows a user-visible notice
type Notifier interface {
	Notify(title, body string)
}

// LogNotifier writes notices to the log, for headless devices
type LogNotifier struct{}

func (LogNotifier) Notify(title, body string) {
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Printf("🔔 %s", title)
	log.Printf("   %s", body)
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// Publisher receives agent events for live subscribers
type Publisher interface {
	Publish(eventType string, data interface{})
}

const (
	EventReport          = "report"
	EventTrackingStarted = "tracking_started"
	EventTrackingStopped = "tracking_stopped"
	EventTrackingRearmed = "tracking_rearmed"
)
