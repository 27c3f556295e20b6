package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"paraderos-agent/pkg/utils"
)

// DiagnosticLog is a log entry forwarded by the order UI
type DiagnosticLog struct {
	Timestamp string                 `json:"timestamp"`
	Context   string                 `json:"context"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
	Platform  string                 `json:"platform"`
}

// ReceiveDiagnosticLog writes UI diagnostics into the agent log so one log
// covers the whole device
// POST /api/logs/diagnostic
func ReceiveDiagnosticLog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var entry DiagnosticLog
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			utils.Error(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if entry.Message == "" {
			utils.Error(w, http.StatusBadRequest, "message is required")
			return
		}

		prefix := "📱"
		switch entry.Level {
		case "ERROR":
			prefix = "🔴"
		case "WARNING":
			prefix = "🟡"
		case "INFO":
			prefix = "🔵"
		}

		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Printf("%s UI DIAGNOSTIC [%s] %s", prefix, entry.Level, entry.Context)
		log.Printf("   Platform:  %s", entry.Platform)
		log.Printf("   Timestamp: %s", entry.Timestamp)
		log.Printf("   Message:   %s", entry.Message)
		if len(entry.Data) > 0 {
			if data, err := json.MarshalIndent(entry.Data, "      ", "  "); err == nil {
				log.Printf("   Data:\n      %s", data)
			}
		}
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

		utils.Success(w, "logged", nil)
	}
}
