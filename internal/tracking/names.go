package tracking

const (
	// LocationTaskName receives position batches while a work order is active
	LocationTaskName = "location-background-task"
	// WatchdogTaskName is registered once per process and never unregistered
	WatchdogTaskName = "location-watchdog-task"
)
