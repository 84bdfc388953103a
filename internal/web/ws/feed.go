package ws

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tasklight/tasklight/internal/config"
	"github.com/tasklight/tasklight/internal/web/sse"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Feed streams broker events over a websocket connection. It shares the
// SSE broker so both transports see the same events.
type Feed struct {
	broker *sse.Broker
}

// NewFeed creates a new websocket event feed
func NewFeed(broker *sse.Broker) *Feed {
	return &Feed{broker: broker}
}

// ServeHTTP upgrades the connection and streams events until the client
// disconnects or the broker shuts down.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	client := f.broker.Subscribe(fmt.Sprintf("ws-%p-%d", r, time.Now().UnixNano()))
	defer f.broker.Unsubscribe(client)

	// Drain reads so close frames and pongs are processed
	readErrCh := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErrCh <- err
				return
			}
		}
	}()

	pingTicker := time.NewTicker(config.GetTimeouts().WebSocketPing)
	defer pingTicker.Stop()

	for {
		select {
		case <-r.Context().Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-readErrCh:
			return

		case msg, ok := <-client.Messages:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
				log.Debug().Err(err).Str("client_id", client.ID).Msg("WebSocket write failed")
				return
			}

		case <-pingTicker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
