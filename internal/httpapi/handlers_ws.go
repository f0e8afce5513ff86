package httpapi

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"codedox/internal/progress"
)

// websocketUpgrade gates the route to only accept genuine websocket
// handshakes, matching the gofiber/websocket integration pattern.
func websocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// registerWebsocketRoute subscribes one websocket connection to
// progress events for the topic given in its query string ("?topic=" a
// job_id or source_id), relaying from the broker until the client
// disconnects.
func registerWebsocketRoute(broker *progress.Broker) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		topic := conn.Query("topic")
		if topic == "" {
			topic = conn.Params("client_id")
		}

		sub := broker.Subscribe(topic)
		defer sub.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
		}
	})
}
