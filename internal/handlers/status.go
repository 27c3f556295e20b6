package handlers

import (
	"context"
	"net/http"

	"paraderos-agent/internal/tasks"
	"paraderos-agent/internal/tracking"
	"paraderos-agent/pkg/utils"
)

// Agent is the part of the tracking agent the control API exposes
type Agent interface {
	Status(ctx context.Context) (tracking.Status, error)
	RunWatchdog(ctx context.Context) tasks.Result
}

// Tracker starts and stops location tracking
type Tracker interface {
	StartTracking(ctx context.Context) error
	StopTracking(ctx context.Context) error
}

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}
}

// GetStatus reports tracking, watchdog and session state
func GetStatus(agent Agent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := agent.Status(r.Context())
		if err != nil {
			respondError(w, "status", err)
			return
		}
		utils.Success(w, "", st)
	}
}

// RunWatchdog runs one watchdog pass outside its schedule
func RunWatchdog(agent Agent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := agent.RunWatchdog(r.Context())
		status := http.StatusOK
		if res == tasks.ResultFailed {
			status = http.StatusInternalServerError
		}
		utils.JSON(w, status, map[string]interface{}{
			"error":   res == tasks.ResultFailed,
			"message": "watchdog " + res.String(),
			"data":    res.String(),
		})
	}
}

func StartTracking(tracker Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := tracker.StartTracking(r.Context()); err != nil {
			respondError(w, "start tracking", err)
			return
		}
		utils.Success(w, "tracking started", true)
	}
}

func StopTracking(tracker Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := tracker.StopTracking(r.Context()); err != nil {
			respondError(w, "stop tracking", err)
			return
		}
		utils.Success(w, "tracking stopped", false)
	}
}
