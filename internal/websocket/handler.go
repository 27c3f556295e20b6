package websocket

import (
	"log"
	"net/http"

	"paraderos-agent/internal/middleware"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// the feed is bound to a local address and gated by the token
		return true
	},
}

// HandleWebSocket upgrades to the event feed. The control token comes as a
// bearer header or, for browsers that cannot set handshake headers, ?token=.
func HandleWebSocket(hub *Hub, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := middleware.GetCallerFromContext(r)
		if !ok {
			tokenString, found := middleware.BearerToken(r)
			if !found {
				tokenString = r.URL.Query().Get("token")
			}
			if tokenString == "" {
				log.Println("❌ No token for WebSocket connection")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			var err error
			caller, err = middleware.ParseToken(secret, tokenString)
			if err != nil {
				log.Printf("❌ Invalid WebSocket token: %v", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("❌ WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(caller.Subject, conn, hub)
		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
